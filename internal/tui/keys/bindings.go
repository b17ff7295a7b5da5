// Package keys maps key events to TUI actions.
package keys

import "github.com/gdamore/tcell/v2"

// Scope names where a binding applies.
type Scope string

const (
	Global Scope = "global"
	// Thread bindings apply while the message list has focus.
	Thread Scope = "thread"
)

// Action represents a keybinding action.
type Action struct {
	Key         tcell.Key
	Rune        rune
	Description string
	Handler     func()
}

// Matches returns true if the event matches this action.
func (a *Action) Matches(ev *tcell.EventKey) bool {
	if a.Key != tcell.KeyRune {
		return ev.Key() == a.Key
	}
	return ev.Key() == tcell.KeyRune && ev.Rune() == a.Rune
}

// Registry holds keybindings in registration order.
type Registry struct {
	scopes map[Scope][]*Action
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{scopes: make(map[Scope][]*Action)}
}

// Add registers action under scope.
func (r *Registry) Add(scope Scope, action *Action) {
	r.scopes[scope] = append(r.scopes[scope], action)
}

// Hints lists descriptions for scope followed by the global ones.
func (r *Registry) Hints(scope Scope) []string {
	var hints []string
	for _, s := range []Scope{scope, Global} {
		for _, a := range r.scopes[s] {
			if a.Description != "" {
				hints = append(hints, a.Description)
			}
		}
		if scope == Global {
			break
		}
	}
	return hints
}

// HandleEvent runs the first action matching ev, scope bindings first.
// It reports whether one matched.
func (r *Registry) HandleEvent(scope Scope, ev *tcell.EventKey) bool {
	for _, s := range []Scope{scope, Global} {
		for _, a := range r.scopes[s] {
			if a.Matches(ev) {
				a.Handler()
				return true
			}
		}
	}
	return false
}
