package notifier

import (
	"testing"
	"time"

	"remindbot/internal/deadline"
)

func TestRenderDeadline(t *testing.T) {
	t.Parallel()
	msk := time.FixedZone("MSK", 3*3600)
	d := deadline.Deadline{
		ID:      1,
		Name:    "Lab <1>",
		Subject: "Math & CS",
		Due:     now.Add(3 * time.Hour),
		Comment: "bring a laptop",
		Link:    "https://lms.test/a?b=1&c=2",
	}
	got := RenderDeadline(d, now, msk)
	want := "<b>Math &amp; CS</b> - Lab &lt;1&gt;\n" +
		"⏰ 01.03.25 18:00 <i>(3 hours from now)</i>\n" +
		"🔗 <a href=\"https://lms.test/a?b=1&amp;c=2\">Link</a>\n" +
		"bring a laptop"
	if got != want {
		t.Fatalf("RenderDeadline =\n%s\nwant\n%s", got, want)
	}
}

func TestRenderDeadlineMinimal(t *testing.T) {
	t.Parallel()
	got := RenderDeadline(deadline.Deadline{Name: "Essay", Due: now.Add(-2 * 24 * time.Hour)}, now, nil)
	want := "<b>unknown subject</b> - Essay\n⏰ 27.02.25 12:00 <i>(2 days ago)</i>"
	if got != want {
		t.Fatalf("RenderDeadline = %q, want %q", got, want)
	}
}

func TestRenderList(t *testing.T) {
	t.Parallel()
	if got := RenderList(nil, 0, now, nil); got != emptyList {
		t.Fatalf("empty list = %q", got)
	}
	ds := []deadline.Deadline{{Name: "a", Due: now}, {Name: "b", Due: now}}
	got := RenderList(ds, 20, now, nil)
	want := "21. <b>unknown subject</b> - a\n⏰ 01.03.25 12:00 <i>(now)</i>\n\n" +
		"22. <b>unknown subject</b> - b\n⏰ 01.03.25 12:00 <i>(now)</i>"
	if got != want {
		t.Fatalf("RenderList = %q", got)
	}
}

func TestRelative(t *testing.T) {
	t.Parallel()
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "now"},
		{10 * time.Second, "10 seconds from now"},
		{-time.Minute, "1 minute ago"},
		{5 * time.Minute, "5 minutes from now"},
		{time.Hour, "1 hour from now"},
		{3 * time.Hour, "3 hours from now"},
		{-30 * time.Hour, "1 day ago"},
		{5 * 24 * time.Hour, "5 days from now"},
		{-10 * 24 * time.Hour, "1 week ago"},
	}
	for _, tt := range tests {
		got := Relative(now.Add(tt.d), now)
		if got != tt.want {
			t.Fatalf("Relative(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestRenderComment(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "  ", ""},
		{"plain", "bring a laptop", "bring a laptop"},
		{"markdown", "**read** _ch. 3_ & see [docs](https://x.test)",
			`<strong>read</strong> <em>ch. 3</em> &amp; see <a href="https://x.test">docs</a>`},
		{"disallowed tags stripped", "hi <u>there</u> <img src=x onerror=y>", "hi <u>there</u>"},
		{"unsafe link dropped", "[x](javascript:alert(1))", "x"},
		{"lists stay literal", "- one\n- two", "- one\n- two"},
	}
	for _, tt := range tests {
		if got := string(RenderComment(tt.in)); got != tt.want {
			t.Fatalf("%s: RenderComment(%q) = %q, want %q", tt.name, tt.in, got, tt.want)
		}
	}
}
