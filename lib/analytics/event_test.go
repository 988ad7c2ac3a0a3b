package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pomeroyr/amphtml/lib/dom/memdom"
)

func TestNewEventRoundTrip(t *testing.T) {
	t.Parallel()
	el := memdom.NewElement("div", map[string]string{"id": "a"})
	ev := NewEvent(el, "click", map[string]string{"foo": "bar"})

	assert.Equal(t, el.ID(), ev.Target().ID())
	assert.Equal(t, "click", ev.Type())
	assert.Equal(t, map[string]string{"foo": "bar"}, ev.Vars())
}

func TestNewEventVarsDefaultToFreshEmptyMap(t *testing.T) {
	t.Parallel()
	a := NewEvent(nil, "x", nil)
	b := NewEvent(nil, "x", nil)

	require.NotNil(t, a.Vars())
	assert.Empty(t, a.Vars())

	// No two events share a map.
	a.Vars()["k"] = "v"
	assert.Empty(t, b.Vars())
}

func TestNewEventCopiesInputVars(t *testing.T) {
	t.Parallel()
	in := map[string]string{"k": "v"}
	ev := NewEvent(nil, "x", in)

	in["k"] = "mutated"
	in["extra"] = "1"
	assert.Equal(t, map[string]string{"k": "v"}, ev.Vars())
}

func TestVarsFromAttributes(t *testing.T) {
	t.Parallel()
	el := memdom.NewElement("a", map[string]string{
		"href":                "/x",
		"data-vars-event-id":  "42",
		"data-vars-label":     "cta",
		"data-other-thing":    "ignored",
		"data-vars-long-name": "v",
	})

	vars := varsFromAttributes(el)
	assert.Equal(t, map[string]string{
		"eventId":  "42",
		"label":    "cta",
		"longName": "v",
	}, vars)
}

func TestVarsFromAttributesNilElement(t *testing.T) {
	t.Parallel()
	vars := varsFromAttributes(nil)
	require.NotNil(t, vars)
	assert.Empty(t, vars)
}
