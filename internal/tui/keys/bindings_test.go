package keys

import (
	"testing"

	"github.com/gdamore/tcell/v2"

	"github.com/nkaluva9/health-chatbot/internal/tui/ui"
)

func TestViewShadowsGlobal(t *testing.T) {
	r := NewRegistry()
	var got string
	r.AddGlobal("quit", &Action{Key: tcell.KeyRune, Rune: 'q', Handler: func() { got = "global" }})
	r.AddView("help", "back", &Action{Key: tcell.KeyRune, Rune: 'q', Handler: func() { got = "view" }})

	if !r.handle("help", tcell.KeyRune, 'q') || got != "view" {
		t.Errorf("help view: got %q, want view", got)
	}
	if !r.handle("chat", tcell.KeyRune, 'q') || got != "global" {
		t.Errorf("chat view: got %q, want global", got)
	}
	if r.handle("chat", tcell.KeyRune, 'z') {
		t.Error("unbound key should not be handled")
	}
}

func TestSpecialKeys(t *testing.T) {
	r := NewRegistry()
	hit := false
	r.AddGlobal("back", &Action{Key: tcell.KeyEscape, Handler: func() { hit = true }})
	if !r.handle("x", tcell.KeyEscape, 0) || !hit {
		t.Error("escape binding not triggered")
	}
}

func TestDigits(t *testing.T) {
	r := NewRegistry()
	var n int
	r.OnDigit("chat", func(d int) { n = d })

	if !r.handle("chat", tcell.KeyRune, '7') || n != 7 {
		t.Errorf("digit = %d, want 7", n)
	}
	if r.handle("chat", tcell.KeyRune, '0') {
		t.Error("0 is not an action index")
	}
	if r.handle("sessions", tcell.KeyRune, '3') {
		t.Error("digits are scoped to their view")
	}
}

func TestHintsOrder(t *testing.T) {
	r := NewRegistry()
	r.AddGlobal("quit", &Action{Rune: 'q', Key: tcell.KeyRune, Visible: true, Hint: ui.MenuHint{Key: "q", Description: "Quit"}})
	r.AddGlobal("help", &Action{Rune: '?', Key: tcell.KeyRune, Visible: true, Hint: ui.MenuHint{Key: "?", Description: "Help"}})
	r.AddView("chat", "new", &Action{Rune: 'n', Key: tcell.KeyRune, Visible: true, Hint: ui.MenuHint{Key: "n", Description: "New"}})
	r.AddView("chat", "secret", &Action{Rune: 'z', Key: tcell.KeyRune})

	hints := r.Hints("chat")
	var keys []string
	for _, h := range hints {
		keys = append(keys, h.Key)
	}
	want := []string{"n", "?", "q"}
	if len(keys) != len(want) {
		t.Fatalf("hints = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("hints = %v, want %v", keys, want)
		}
	}
}
