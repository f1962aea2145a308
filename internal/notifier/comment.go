package notifier

import (
	"bytes"
	"reflect"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"

	"remindbot/pkg/tgui"
)

// Comments are markdown. Lists stay literal text since Telegram has no list markup.
var (
	commentMarkdown = goldmark.New(
		goldmark.WithParser(parser.NewParser(
			parser.WithBlockParsers(withoutLists(parser.DefaultBlockParsers())...),
			parser.WithInlineParsers(parser.DefaultInlineParsers()...),
			parser.WithParagraphTransformers(parser.DefaultParagraphTransformers()...),
		)),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)
	commentPolicy = telegramPolicy()
)

func withoutLists(ps []util.PrioritizedValue) []util.PrioritizedValue {
	drop := map[reflect.Type]bool{
		reflect.TypeOf(parser.NewListParser()):     true,
		reflect.TypeOf(parser.NewListItemParser()): true,
	}
	out := make([]util.PrioritizedValue, 0, len(ps))
	for _, p := range ps {
		if !drop[reflect.TypeOf(p.Value)] {
			out = append(out, p)
		}
	}
	return out
}

// telegramPolicy keeps the tag set Telegram's HTML parse mode accepts.
func telegramPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("b", "strong", "i", "em", "u", "ins", "s", "strike", "del",
		"tg-spoiler", "code", "pre", "blockquote")
	p.AllowAttrs("href").OnElements("a")
	p.RequireParseableURLs(true)
	p.AllowURLSchemes("http", "https", "mailto", "tg")
	p.AllowAttrs("class").Matching(regexp.MustCompile(`^tg-spoiler$`)).OnElements("span")
	p.AllowAttrs("emoji-id").Matching(regexp.MustCompile(`^[0-9]+$`)).OnElements("tg-emoji")
	return p
}

// RenderComment converts a markdown comment to Telegram-safe HTML.
// Input that fails to render falls back to escaped plain text.
func RenderComment(src string) tgui.H {
	src = strings.TrimSpace(src)
	if src == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := commentMarkdown.Convert([]byte(src), &buf); err != nil {
		return tgui.Esc(src)
	}
	return tgui.Raw(strings.TrimSpace(commentPolicy.Sanitize(buf.String())))
}
