package analytics

import (
	"context"
	"fmt"
	"sync"

	"github.com/samber/lo"

	"github.com/pomeroyr/amphtml/lib/dom"
	"github.com/pomeroyr/amphtml/lib/logger"
)

// hiddenEventType is the visibility trigger whose report waits for the page
// to leave the foreground.
const hiddenEventType = "hidden"

// VisibilityTracker gates event delivery behind a readiness channel obtained
// from another tracker's signal (waitFor) and forwards the actual viewport
// computation to the root's visibility service.
type VisibilityTracker struct {
	reg  *Registry
	root dom.Root
	regs *registrationSet

	mu              sync.Mutex
	waitForTrackers map[Kind]signalPromiseTracker
}

func newVisibilityTracker(reg *Registry) *VisibilityTracker {
	return &VisibilityTracker{
		reg:             reg,
		root:            reg.root,
		regs:            newRegistrationSet(),
		waitForTrackers: make(map[Kind]signalPromiseTracker),
	}
}

func (t *VisibilityTracker) Add(ctx context.Context, contextEl dom.Element, eventType string, cfg *TriggerConfig, listener ListenerFunc) (UnsubscribeFunc, error) {
	var spec *VisibilitySpec
	var selector string
	var method dom.SelectionMethod
	var waitFor string
	if cfg != nil {
		spec = cfg.VisibilitySpec
		selector = cfg.Selector
		method = cfg.SelectionMethod
	}
	if spec != nil {
		if selector == "" {
			selector = spec.Selector
		}
		if spec.SelectionMethod != "" {
			method = spec.SelectionMethod
		}
		waitFor = spec.WaitFor
	}
	params := spec.Params()

	var reportReady dom.ReportReadyFunc
	if eventType == hiddenEventType {
		reportReady = t.reportReadyWhenHidden()
	}

	manager := t.root.GetVisibilityManager()

	if isRootSelector(selector) {
		// The selector still matters here: an explicit ":root"/":host" keeps
		// the default ini-load gate, while no selector defaults to none.
		ready, err := t.getReadyPromise(waitFor, selector, nil)
		if err != nil {
			return nil, err
		}
		unlisten := manager.ListenRoot(params, ready, reportReady, t.onVisibilityEvent(eventType, listener))
		var once sync.Once
		return func() { once.Do(unlisten) }, nil
	}

	// Validate waitFor synchronously even though the element resolves later.
	if waitFor != "" && waitFor != waitForNone {
		if _, err := waitForKind(waitFor); err != nil {
			return nil, err
		}
	}

	regCtx, release := t.regs.track(ctx)
	pending := &pendingUnlisten{}
	go func() {
		el, err := t.root.GetAmpElement(regCtx, contextEl, selector, method)
		if err != nil {
			return
		}
		ready, err := t.getReadyPromise(waitFor, selector, el)
		if err != nil {
			logger.FromContext(regCtx).Error("failed to resolve visibility waitFor gate", "waitFor", waitFor, "err", err)
			return
		}
		unlisten, err := manager.ListenElement(regCtx, el, params, ready, reportReady, t.onVisibilityEvent(eventType, listener))
		if err != nil {
			logger.FromContext(regCtx).Error("failed to attach visibility listener", "selector", selector, "err", err)
			return
		}
		pending.set(dom.UnlistenFunc(unlisten))
	}()

	return func() {
		release()
		pending.cancel()
	}, nil
}

func (t *VisibilityTracker) Dispose() {
	t.regs.cancelAll()
}

// onVisibilityEvent merges variable-prefixed attributes from the target into
// the reported visibility state and fires the listener.
func (t *VisibilityTracker) onVisibilityEvent(eventType string, listener ListenerFunc) dom.VisibilityCallback {
	return func(el dom.Element, state map[string]string) {
		vars := lo.Assign(state, varsFromAttributes(el))
		listener(NewEvent(el, eventType, vars))
	}
}

// getReadyPromise resolves the waitFor gate. A nil channel means no gating:
// no waitFor and no selector defaults to none; no waitFor with a selector
// defaults to ini-load. el is nil for root-scoped registrations.
func (t *VisibilityTracker) getReadyPromise(waitFor, selector string, el dom.Element) (<-chan struct{}, error) {
	if waitFor == "" {
		if selector == "" {
			return nil, nil
		}
		waitFor = dom.SignalIniLoad
	}
	if waitFor == waitForNone {
		return nil, nil
	}
	kind, err := waitForKind(waitFor)
	if err != nil {
		return nil, err
	}
	delegate, err := t.waitForTracker(kind)
	if err != nil {
		return nil, err
	}
	if el == nil {
		return delegate.RootSignal(waitFor), nil
	}
	return delegate.ElementSignal(waitFor, el), nil
}

// waitForTracker resolves and caches the delegated tracker per waitFor kind.
func (t *VisibilityTracker) waitForTracker(kind Kind) (signalPromiseTracker, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if delegate, ok := t.waitForTrackers[kind]; ok {
		return delegate, nil
	}
	whitelist := map[Kind]bool{}
	for _, k := range visibilityWaitForWhitelist {
		whitelist[k] = true
	}
	tracker, err := t.reg.GetTrackerForWhitelist(kind, whitelist)
	if err != nil {
		return nil, err
	}
	delegate, ok := tracker.(signalPromiseTracker)
	if !ok {
		return nil, fmt.Errorf("%w: %q cannot gate visibility", ErrTrackerNotAllowed, kind)
	}
	t.waitForTrackers[kind] = delegate
	return delegate, nil
}

// reportReadyWhenHidden returns a factory whose channel closes when the page
// visibility transitions away from foreground; already-hidden pages are
// immediately ready.
func (t *VisibilityTracker) reportReadyWhenHidden() dom.ReportReadyFunc {
	viewer := t.root.GetViewer()
	return func() <-chan struct{} {
		if !viewer.IsVisible() {
			return closedSignal
		}
		ch := make(chan struct{})
		var mu sync.Mutex
		var fired bool
		var unlisten dom.UnlistenFunc
		unl := viewer.OnVisibilityChanged(func(visible bool) {
			if visible {
				return
			}
			mu.Lock()
			if fired {
				mu.Unlock()
				return
			}
			fired = true
			u := unlisten
			unlisten = nil
			mu.Unlock()
			close(ch)
			if u != nil {
				u()
			}
		})
		mu.Lock()
		if fired {
			// The transition landed during registration; the callback could
			// not see unl, so detach here.
			mu.Unlock()
			unl()
		} else {
			unlisten = unl
			mu.Unlock()
		}
		return ch
	}
}

// pendingUnlisten holds the unlisten of an asynchronously attached
// registration; cancelling before attachment makes the attachment a no-op.
type pendingUnlisten struct {
	mu        sync.Mutex
	unlisten  dom.UnlistenFunc
	cancelled bool
}

func (p *pendingUnlisten) set(unlisten dom.UnlistenFunc) {
	p.mu.Lock()
	cancelled := p.cancelled
	if !cancelled {
		p.unlisten = unlisten
	}
	p.mu.Unlock()
	if cancelled {
		unlisten()
	}
}

func (p *pendingUnlisten) cancel() {
	p.mu.Lock()
	unlisten := p.unlisten
	p.unlisten = nil
	p.cancelled = true
	p.mu.Unlock()
	if unlisten != nil {
		unlisten()
	}
}
