package keys

import (
	"sort"

	"github.com/gdamore/tcell/v2"

	"github.com/nkaluva9/health-chatbot/internal/tui/ui"
)

// Action represents a keybinding action.
type Action struct {
	Key     tcell.Key
	Rune    rune
	Hint    ui.MenuHint
	Handler func()
	Visible bool
}

// Matches returns true if the key (and rune, for tcell.KeyRune) matches
// this action.
func (a *Action) Matches(key tcell.Key, r rune) bool {
	if a.Key != tcell.KeyRune {
		return key == a.Key
	}
	return key == tcell.KeyRune && r == a.Rune
}

// scope is the bindings of one view, kept in registration order.
type scope struct {
	names   []string
	actions map[string]*Action
	digits  func(n int)
}

func (s *scope) add(name string, a *Action) {
	if _, ok := s.actions[name]; !ok {
		s.names = append(s.names, name)
	}
	s.actions[name] = a
}

func (s *scope) match(key tcell.Key, r rune) bool {
	for _, name := range s.names {
		if a := s.actions[name]; a.Matches(key, r) {
			a.Handler()
			return true
		}
	}
	if s.digits != nil && key == tcell.KeyRune && r >= '1' && r <= '9' {
		s.digits(int(r - '0'))
		return true
	}
	return false
}

// Registry holds keybindings organized by view. View bindings shadow
// global ones.
type Registry struct {
	global *scope
	views  map[string]*scope
}

// NewRegistry creates a new keybinding registry.
func NewRegistry() *Registry {
	return &Registry{
		global: newScope(),
		views:  make(map[string]*scope),
	}
}

func newScope() *scope {
	return &scope{actions: make(map[string]*Action)}
}

func (r *Registry) view(name string) *scope {
	s, ok := r.views[name]
	if !ok {
		s = newScope()
		r.views[name] = s
	}
	return s
}

// AddGlobal registers a global keybinding.
func (r *Registry) AddGlobal(name string, action *Action) {
	r.global.add(name, action)
}

// AddView registers a view-specific keybinding.
func (r *Registry) AddView(view, name string, action *Action) {
	r.view(view).add(name, action)
}

// OnDigit routes the keys 1-9 of a view to fn.
func (r *Registry) OnDigit(view string, fn func(n int)) {
	r.view(view).digits = fn
}

// Hints returns the visible hints of a view followed by the global ones,
// each group sorted by key.
func (r *Registry) Hints(view string) []ui.MenuHint {
	var hints []ui.MenuHint
	if s, ok := r.views[view]; ok {
		hints = append(hints, visible(s)...)
	}
	return append(hints, visible(r.global)...)
}

func visible(s *scope) []ui.MenuHint {
	var hints []ui.MenuHint
	for _, name := range s.names {
		if a := s.actions[name]; a.Visible {
			hints = append(hints, a.Hint)
		}
	}
	sort.SliceStable(hints, func(i, j int) bool { return hints[i].Key < hints[j].Key })
	return hints
}

// HandleEvent dispatches a key event to the matching action of the view,
// then to the global bindings. It reports whether a handler ran.
func (r *Registry) HandleEvent(view string, ev *tcell.EventKey) bool {
	return r.handle(view, ev.Key(), ev.Rune())
}

func (r *Registry) handle(view string, key tcell.Key, ch rune) bool {
	if s, ok := r.views[view]; ok && s.match(key, ch) {
		return true
	}
	return r.global.match(key, ch)
}
