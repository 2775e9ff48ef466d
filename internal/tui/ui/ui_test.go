package ui

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestPagesStack(t *testing.T) {
	p := NewPages()
	for _, name := range []string{"chat", "sessions", "help"} {
		p.AddPage(name, NewLogo(DefaultTheme()), true, false)
	}

	var changes int
	p.SetOnChange(func([]string) { changes++ })

	p.Reset("chat")
	p.Push("sessions")
	p.Push("sessions")
	p.Push("help")
	if got := strings.Join(p.Stack(), ","); got != "chat,sessions,help" {
		t.Errorf("stack = %s", got)
	}
	if changes != 3 {
		t.Errorf("changes = %d, want 3 (repeat push is a no-op)", changes)
	}

	p.Push("sessions")
	if got := strings.Join(p.Stack(), ","); got != "chat,help,sessions" {
		t.Errorf("stack after re-push = %s", got)
	}

	if top := p.Pop(); top != "sessions" {
		t.Errorf("Pop() = %q", top)
	}
	p.Pop()
	if top := p.Pop(); top != "" {
		t.Errorf("root must not pop, got %q", top)
	}
	if p.Current() != "chat" {
		t.Errorf("Current() = %q", p.Current())
	}
}

func TestFlashExpiry(t *testing.T) {
	f := NewFlashModel()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return now }

	if f.Current() != nil {
		t.Fatal("new model should be empty")
	}
	f.Err(errors.New("boom"))
	msg := f.Current()
	if msg == nil || msg.Text != "boom" || msg.Level != FlashErr {
		t.Fatalf("Current() = %+v", msg)
	}

	now = now.Add(11 * time.Second)
	if f.Current() != nil {
		t.Error("message should have expired")
	}
}

func TestFlashCoalescesRepeats(t *testing.T) {
	f := NewFlashModel()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return now }

	f.Warn("event stream lost")
	now = now.Add(6 * time.Second)
	f.Warn("event stream lost")
	now = now.Add(6 * time.Second)

	msg := f.Current()
	if msg == nil {
		t.Fatal("repeat should have extended the expiry")
	}
	if got := msg.String(); got != "event stream lost (x2)" {
		t.Errorf("String() = %q", got)
	}

	f.Info("reconnecting")
	if msg := f.Current(); msg.String() != "reconnecting" || msg.Repeats != 1 {
		t.Errorf("different text should replace the notice, got %+v", msg)
	}

	now = now.Add(time.Minute)
	f.Info("reconnecting")
	if msg := f.Current(); msg.Repeats != 1 {
		t.Errorf("expired notice should not be counted, got %d repeats", msg.Repeats)
	}
}

func TestPromptHistory(t *testing.T) {
	p := NewPrompt(DefaultTheme())
	p.Activate(PromptCommand)
	p.remember("sessions")
	p.remember("help")
	p.remember("help")
	p.Activate(PromptCommand)

	if got := p.step(-1); got != "help" {
		t.Errorf("step(-1) = %q", got)
	}
	if got := p.step(-1); got != "sessions" {
		t.Errorf("step(-1) = %q", got)
	}
	if got := p.step(-1); got != "sessions" {
		t.Errorf("step past oldest = %q", got)
	}
	p.step(1)
	if got := p.step(1); got != "" {
		t.Errorf("step past newest = %q, want empty", got)
	}
}

func TestMenuColumns(t *testing.T) {
	m := NewMenu(DefaultTheme())
	var hints []MenuHint
	for i := 0; i < 7; i++ {
		hints = append(hints, MenuHint{Key: string(rune('a' + i)), Description: "x"})
	}
	lines := strings.Split(m.render(hints), "\n")
	if len(lines) != menuRows {
		t.Fatalf("lines = %d, want %d", len(lines), menuRows)
	}
	if !strings.Contains(lines[0], "<a>") || !strings.Contains(lines[0], "<f>") {
		t.Errorf("first row = %q, want a and f", lines[0])
	}
}

func TestCrumbsActiveLast(t *testing.T) {
	c := NewCrumbs(DefaultTheme())
	out := c.render([]string{"Chat", "Sessions"})
	if !strings.Contains(out, "<chat>") || !strings.HasSuffix(out, "<sessions> [-:-:-]") {
		t.Errorf("render = %q", out)
	}
	if strings.Count(out, ":b]") != 1 {
		t.Errorf("exactly one crumb should be bold: %q", out)
	}
}

func TestLogoFollowsStatus(t *testing.T) {
	l := NewLogo(DefaultTheme())
	l.SetStatus("ONLINE")
	online := l.GetText(false)
	l.SetStatus("DISCONNECTED")
	offline := l.GetText(false)

	if online == offline {
		t.Error("badge did not change color with status")
	}
	if !strings.Contains(offline, "health chat") {
		t.Errorf("badge text = %q", offline)
	}
}
