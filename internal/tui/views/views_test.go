package views

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/nkaluva9/health-chatbot/internal/activity"
	"github.com/nkaluva9/health-chatbot/internal/api"
	"github.com/nkaluva9/health-chatbot/internal/tui/ui"
)

const testCard = `{"type":"AdaptiveCard","body":[{"type":"TextBlock","text":"Pick one"}],
"actions":[{"type":"Action.OpenUrl","title":"Docs","url":"https://example.com"},
{"type":"Action.Submit","title":"Go","data":{"action":"go"}}]}`

func TestRenderThread(t *testing.T) {
	theme := ui.DefaultTheme()
	msgs := []activity.Activity{
		{Type: activity.TypeMessage, From: activity.Participant{ID: "u1", Name: "Pat"}, Text: "hi [red]there"},
		{Type: activity.TypeTyping, From: activity.Participant{ID: "bot"}},
		{Type: activity.TypeMessage, From: activity.Participant{ID: "bot", Name: "Assistant"},
			Attachments: []activity.Attachment{{
				ContentType: activity.AdaptiveCardContentType,
				Content:     json.RawMessage(testCard),
			}}},
	}

	out := RenderThread(theme, msgs, "u1", true)

	if !strings.Contains(out, "You") {
		t.Error("own messages should be labelled You")
	}
	if strings.Contains(out, "Pat") {
		t.Error("own name should not be shown")
	}
	if !strings.Contains(out, "Assistant") {
		t.Error("bot name missing")
	}
	if !strings.Contains(out, "hi [red[]there") {
		t.Errorf("message text not escaped: %q", out)
	}
	if !strings.Contains(out, "Pick one") || !strings.Contains(out, "[1[] Docs") || !strings.Contains(out, "[2[] Go") {
		t.Errorf("card not rendered with numbered actions: %q", out)
	}
	if !strings.Contains(out, "typing") {
		t.Error("typing indicator missing")
	}
	if strings.Count(out, "Assistant") != 2 {
		t.Error("typing activities must not render as messages")
	}
}

func TestRenderThreadEmpty(t *testing.T) {
	out := RenderThread(ui.DefaultTheme(), nil, "u1", false)
	if !strings.Contains(out, "Say hello") {
		t.Errorf("empty thread = %q", out)
	}
}

func TestParseActionShortcut(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want bool
	}{
		{"/1", 1, true},
		{"/12", 12, true},
		{"/0", 0, false},
		{"/", 0, false},
		{"/1a", 0, false},
		{"1", 0, false},
		{"/help", 0, false},
		{"/100", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			n, ok := ParseActionShortcut(tt.in)
			if ok != tt.want || n != tt.n {
				t.Errorf("ParseActionShortcut(%q) = %d, %v; want %d, %v", tt.in, n, ok, tt.n, tt.want)
			}
		})
	}
}

func TestSessionListFilter(t *testing.T) {
	sl := NewSessionList(ui.DefaultTheme())
	sl.now = func() time.Time { return time.UnixMilli(10_000_000) }
	sl.Update([]api.SessionView{
		{ID: "s1", Title: "Headache remedies", LastMessageAtMs: 9_000_000},
		{ID: "s2", Title: "Sleep", IsArchived: true},
		{ID: "s3", Title: "Back HEADACHE"},
	})

	if got := sl.SessionByIndex(2); got != "s2" {
		t.Errorf("SessionByIndex(2) = %q", got)
	}
	sl.SetFilter("headache")
	if got := sl.SessionByIndex(2); got != "s3" {
		t.Errorf("filtered SessionByIndex(2) = %q", got)
	}
	if got := sl.SessionByIndex(3); got != "" {
		t.Errorf("SessionByIndex past end = %q", got)
	}
	if got := sl.GetRowCount(); got != 3 {
		t.Errorf("rows = %d, want header + 2", got)
	}
	sl.ClearFilter()
	if got := sl.GetRowCount(); got != 4 {
		t.Errorf("rows = %d, want header + 3", got)
	}
	if got := sl.relative(0); got != "-" {
		t.Errorf("relative(0) = %q", got)
	}
}

func TestSanitizeForTerminal(t *testing.T) {
	in := "ok\x1b[31m‍👍🏻\tdone\n"
	got := sanitizeForTerminal(in)
	if got != "ok[31m👍\tdone\n" {
		t.Errorf("sanitizeForTerminal() = %q", got)
	}
}

func TestRenderQR(t *testing.T) {
	qr := renderQR("https://adaptivecards.io")
	lines := strings.Split(strings.TrimRight(qr, "\n"), "\n")
	if len(lines) < 10 {
		t.Fatalf("QR too small: %d lines", len(lines))
	}
	if !strings.ContainsAny(qr, "█▀▄") {
		t.Error("QR has no blocks")
	}
}

func TestStatusBarLine(t *testing.T) {
	sb := NewStatusBar(ui.DefaultTheme(), "main")
	sb.now = func() time.Time { return time.Date(2024, 1, 1, 9, 30, 0, 0, time.Local) }
	sb.SetState("ONLINE", "Headache", true)
	sb.SetFlash(&ui.FlashMessage{Text: "sent", Level: ui.FlashInfo})

	line := sb.line()
	for _, want := range []string{"main", "ONLINE", "Headache", "typing", "09:30", "sent"} {
		if !strings.Contains(line, want) {
			t.Errorf("status line %q missing %q", line, want)
		}
	}
}

func TestLinkView(t *testing.T) {
	lv := NewLinkView(ui.DefaultTheme())
	lv.ShowURL("https://adaptivecards.io")
	if lv.URL() != "https://adaptivecards.io" {
		t.Errorf("URL() = %q", lv.URL())
	}
	if !strings.Contains(lv.GetText(true), "https://adaptivecards.io") {
		t.Error("link text not shown")
	}
}
