package telegram

import "strings"

// TextLimit stays under the 4096 rune cap of a single message.
const TextLimit = 4000

// SplitText cuts s into sendable chunks. Cuts prefer a newline in the last
// two thirds of the window and, for HTML, never land inside an open tag.
func SplitText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = TextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	html := strings.EqualFold(parseMode, "HTML")

	var chunks []string
	for start := 0; start < len(rs); {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			end = cutPoint(rs, start, end, limit, html)
		}
		chunks = append(chunks, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return chunks
}

func cutPoint(rs []rune, start, end, limit int, html bool) int {
	for i := end - 1; i-start >= limit/3; i-- {
		if rs[i] == '\n' {
			end = i + 1
			break
		}
	}
	if !html {
		return end
	}
	open, closed := -1, -1
	for i := start; i < end; i++ {
		switch rs[i] {
		case '<':
			open = i
		case '>':
			closed = i
		}
	}
	if open > closed && open > start+1 {
		return open
	}
	return end
}
