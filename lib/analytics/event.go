// Package analytics implements the in-process event-tracking and
// trigger-dispatch engine: trigger configuration selects a tracker variant,
// the registry instantiates one tracker per (root, kind), and each tracker
// turns occurrences of its condition into Events delivered to registered
// listeners. Deciding when to fire is this package's job; reporting and
// transport of fired events belong to external collaborators.
package analytics

import (
	"strings"
	"unicode"

	"github.com/pomeroyr/amphtml/lib/dom"
)

// Event is the normalized record produced by every tracker. Immutable after
// construction.
type Event struct {
	target    dom.Element
	eventType string
	vars      map[string]string
}

// NewEvent builds an Event. vars is copied; a nil vars yields a fresh empty
// map so no two events ever share one.
func NewEvent(target dom.Element, eventType string, vars map[string]string) *Event {
	copied := make(map[string]string, len(vars))
	for k, v := range vars {
		copied[k] = v
	}
	return &Event{target: target, eventType: eventType, vars: copied}
}

// Target returns the element the event is attributed to.
func (e *Event) Target() dom.Element { return e.target }

// Type returns the trigger event type.
func (e *Event) Type() string { return e.eventType }

// Vars returns the event's variable map. Callers must not mutate it.
func (e *Event) Vars() map[string]string { return e.vars }

// varAttrPrefix marks element attributes that feed event variables:
// data-vars-foo-bar becomes the variable fooBar.
const varAttrPrefix = "data-vars-"

func varsFromAttributes(el dom.Element) map[string]string {
	vars := map[string]string{}
	if el == nil {
		return vars
	}
	for name, value := range el.Attributes() {
		if !strings.HasPrefix(name, varAttrPrefix) {
			continue
		}
		vars[dashToCamelCase(name[len(varAttrPrefix):])] = value
	}
	return vars
}

func dashToCamelCase(s string) string {
	var b strings.Builder
	upper := false
	for _, r := range s {
		if r == '-' {
			upper = true
			continue
		}
		if upper {
			b.WriteRune(unicode.ToUpper(r))
			upper = false
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
