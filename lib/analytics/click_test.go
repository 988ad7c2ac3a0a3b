package analytics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pomeroyr/amphtml/lib/dom/memdom"
)

func clickTrackerForTest(t *testing.T) (*ClickEventTracker, *memdom.Root) {
	t.Helper()
	reg, root, _ := newTestRegistry(t)
	tracker, err := reg.GetTracker(KindClick)
	require.NoError(t, err)
	return tracker.(*ClickEventTracker), root
}

func TestClickRequiresSelector(t *testing.T) {
	t.Parallel()
	tracker, _ := clickTrackerForTest(t)

	_, err := tracker.Add(context.Background(), nil, "click", &TriggerConfig{}, func(*Event) {})
	require.ErrorIs(t, err, ErrMissingClickSelector)

	_, err = tracker.Add(context.Background(), nil, "click", nil, func(*Event) {})
	require.ErrorIs(t, err, ErrMissingClickSelector)
}

func TestClickDeliversMatchedElementWithVars(t *testing.T) {
	t.Parallel()
	tracker, root := clickTrackerForTest(t)
	doc := root.GetRootElement().(*memdom.Element)
	cta := memdom.NewElement("button", map[string]string{
		"class":              "cta",
		"data-vars-event-id": "7",
	})
	icon := memdom.NewElement("span", nil)
	root.AppendChild(doc, cta)
	root.AppendChild(cta, icon)

	sink := &eventSink{}
	_, err := tracker.Add(context.Background(), nil, "click", &TriggerConfig{Selector: ".cta"}, sink.listener)
	require.NoError(t, err)

	// Clicking a descendant attributes the event to the matched ancestor.
	root.Click(icon)

	require.Equal(t, 1, sink.len())
	assert.Equal(t, []string{"click"}, sink.types())
	assert.Equal(t, "7", sink.varsAt(0)["eventId"])
}

func TestClickIgnoresNonMatchingTargets(t *testing.T) {
	t.Parallel()
	tracker, root := clickTrackerForTest(t)
	doc := root.GetRootElement().(*memdom.Element)
	other := memdom.NewElement("p", nil)
	root.AppendChild(doc, other)

	sink := &eventSink{}
	_, err := tracker.Add(context.Background(), nil, "click", &TriggerConfig{Selector: ".cta"}, sink.listener)
	require.NoError(t, err)

	root.Click(other)
	assert.Equal(t, 0, sink.len())
}

func TestClickUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()
	tracker, root := clickTrackerForTest(t)
	doc := root.GetRootElement().(*memdom.Element)
	cta := memdom.NewElement("button", map[string]string{"class": "cta"})
	root.AppendChild(doc, cta)

	sink := &eventSink{}
	unsub, err := tracker.Add(context.Background(), nil, "click", &TriggerConfig{Selector: ".cta"}, sink.listener)
	require.NoError(t, err)

	root.Click(cta)
	unsub()
	root.Click(cta)

	assert.Equal(t, 1, sink.len())
}

func TestClickDisposeDetachesRootListener(t *testing.T) {
	t.Parallel()
	tracker, root := clickTrackerForTest(t)
	doc := root.GetRootElement().(*memdom.Element)
	cta := memdom.NewElement("button", map[string]string{"class": "cta"})
	root.AppendChild(doc, cta)

	sink := &eventSink{}
	_, err := tracker.Add(context.Background(), nil, "click", &TriggerConfig{Selector: ".cta"}, sink.listener)
	require.NoError(t, err)

	tracker.Dispose()
	root.Click(cta)
	assert.Equal(t, 0, sink.len())
}
