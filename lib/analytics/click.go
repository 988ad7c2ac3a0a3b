package analytics

import (
	"context"

	"github.com/pomeroyr/amphtml/lib/dom"
	"github.com/pomeroyr/amphtml/lib/observable"
)

// ClickEventTracker delegates root-level clicks to per-selector listeners.
// One listener on the root's delegation anchor feeds a shared observable;
// each registration subscribes a selective dispatcher to it.
type ClickEventTracker struct {
	root         dom.Root
	clicks       *observable.Observable[dom.ClickEvent]
	unlistenRoot dom.UnlistenFunc
}

func newClickTracker(reg *Registry) *ClickEventTracker {
	t := &ClickEventTracker{
		root:   reg.root,
		clicks: observable.New[dom.ClickEvent](),
	}
	t.unlistenRoot = reg.root.OnClick(func(ev dom.ClickEvent) {
		t.clicks.Fire(ev)
	})
	return t
}

func (t *ClickEventTracker) Add(_ context.Context, contextEl dom.Element, _ string, cfg *TriggerConfig, listener ListenerFunc) (UnsubscribeFunc, error) {
	if cfg == nil || cfg.Selector == "" {
		return nil, ErrMissingClickSelector
	}
	selective := t.root.CreateSelectiveListener(func(matched dom.Element, _ dom.ClickEvent) {
		listener(NewEvent(matched, "click", varsFromAttributes(matched)))
	}, contextEl, cfg.Selector, cfg.SelectionMethod)

	return UnsubscribeFunc(t.clicks.Subscribe(selective)), nil
}

func (t *ClickEventTracker) Dispose() {
	t.unlistenRoot()
	t.clicks.RemoveAll()
}
