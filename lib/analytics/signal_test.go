package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pomeroyr/amphtml/lib/dom"
	"github.com/pomeroyr/amphtml/lib/dom/memdom"
)

func TestSignalTrackerRootScope(t *testing.T) {
	t.Parallel()
	reg, root, _ := newTestRegistry(t)
	tracker, err := reg.GetTracker(KindRenderStart)
	require.NoError(t, err)

	sink := &eventSink{}
	unsub, err := tracker.Add(context.Background(), nil, dom.SignalRenderStart, nil, sink.listener)
	require.NoError(t, err)
	unsub() // no-op by contract

	root.RootSignals().Signal(dom.SignalRenderStart)
	waitForEvents(t, sink, 1)
	assert.Equal(t, []string{dom.SignalRenderStart}, sink.types())

	// The signal resolves exactly once; delivery happened exactly once.
	root.RootSignals().Signal(dom.SignalRenderStart)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, sink.len())
}

func TestSignalTrackerElementScope(t *testing.T) {
	t.Parallel()
	reg, root, _ := newTestRegistry(t)
	tracker, err := reg.GetTracker(KindRenderStart)
	require.NoError(t, err)

	doc := root.GetRootElement().(*memdom.Element)
	vid := memdom.NewElement("amp-video", map[string]string{"id": "v"})
	root.AppendChild(doc, vid)

	sink := &eventSink{}
	_, err = tracker.Add(context.Background(), nil, dom.SignalRenderStart, &TriggerConfig{Selector: "#v"}, sink.listener)
	require.NoError(t, err)

	vid.ElementSignals().Signal(dom.SignalRenderStart)
	waitForEvents(t, sink, 1)
	assert.Equal(t, "v", sink.events[0].Target().ID())
}

func TestSignalTrackerDisposeCancelsPendingDelivery(t *testing.T) {
	t.Parallel()
	reg, root, _ := newTestRegistry(t)
	tracker, err := reg.GetTracker(KindRenderStart)
	require.NoError(t, err)

	sink := &eventSink{}
	_, err = tracker.Add(context.Background(), nil, dom.SignalRenderStart, nil, sink.listener)
	require.NoError(t, err)

	tracker.Dispose()
	root.RootSignals().Signal(dom.SignalRenderStart)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, sink.len())
}

func TestIniLoadTrackerRootScope(t *testing.T) {
	t.Parallel()
	reg, root, _ := newTestRegistry(t)
	tracker, err := reg.GetTracker(KindIniLoad)
	require.NoError(t, err)

	sink := &eventSink{}
	_, err = tracker.Add(context.Background(), nil, dom.SignalIniLoad, nil, sink.listener)
	require.NoError(t, err)

	root.RootSignals().Signal(dom.SignalIniLoad)
	waitForEvents(t, sink, 1)
}

func TestIniLoadTrackerElementRacesLoadSignals(t *testing.T) {
	t.Parallel()
	reg, root, _ := newTestRegistry(t)
	tracker, err := reg.GetTracker(KindIniLoad)
	require.NoError(t, err)

	doc := root.GetRootElement().(*memdom.Element)
	img := memdom.NewElement("amp-img", map[string]string{"id": "hero"})
	root.AppendChild(doc, img)

	sink := &eventSink{}
	_, err = tracker.Add(context.Background(), nil, dom.SignalIniLoad, &TriggerConfig{Selector: "#hero"}, sink.listener)
	require.NoError(t, err)

	// load-end winning the race is enough; the ini-load signal is discarded.
	img.ElementSignals().Signal(dom.SignalLoadEnd)
	waitForEvents(t, sink, 1)

	img.ElementSignals().Signal(dom.SignalIniLoad)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, sink.len())
}

func TestElementSignalWithoutCapabilityIsSatisfied(t *testing.T) {
	t.Parallel()
	plain := memdom.NewElement("div", nil)
	require.Nil(t, plain.Signals())

	select {
	case <-elementSignal(dom.SignalRenderStart, plain):
	default:
		t.Fatal("element without signal capability should resolve immediately")
	}
}

func TestFirstSignalResolvesOnEitherInput(t *testing.T) {
	t.Parallel()
	a := make(chan struct{})
	b := make(chan struct{})
	done := make(chan struct{})
	defer close(done)

	out := firstSignal(done, a, b)
	select {
	case <-out:
		t.Fatal("resolved before either input")
	case <-time.After(10 * time.Millisecond):
	}

	close(b)
	select {
	case <-out:
	case <-time.After(time.Second):
		t.Fatal("never resolved after second input closed")
	}
}
