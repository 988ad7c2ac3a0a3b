package analytics

import (
	"context"

	"github.com/pomeroyr/amphtml/lib/dom"
)

// signalPromiseTracker is implemented by trackers whose condition can serve
// as a readiness gate for another tracker (visibility waitFor).
type signalPromiseTracker interface {
	// RootSignal returns the root-scoped readiness channel for name.
	RootSignal(name string) <-chan struct{}
	// ElementSignal returns the element-scoped readiness channel for name.
	ElementSignal(name string, el dom.Element) <-chan struct{}
}

var closedSignal = func() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// elementSignal resolves name against el's signal source. An element without
// signal capability counts as already satisfied.
func elementSignal(name string, el dom.Element) <-chan struct{} {
	signals := el.Signals()
	if signals == nil {
		return closedSignal
	}
	return signals.WhenSignal(name)
}

// firstSignal resolves when the first of exactly two named signals does; the
// other is discarded, not awaited.
func firstSignal(done <-chan struct{}, a, b <-chan struct{}) <-chan struct{} {
	out := make(chan struct{})
	go func() {
		select {
		case <-a:
		case <-b:
		case <-done:
			return
		}
		close(out)
	}()
	return out
}

// isRootSelector reports whether selector addresses the scoping root itself.
func isRootSelector(selector string) bool {
	return selector == "" || selector == dom.RootSelector || selector == dom.HostSelector
}

// SignalTracker waits for a named readiness signal at root or element scope
// and delivers exactly once per registration.
type SignalTracker struct {
	root dom.Root
	regs *registrationSet
}

func newSignalTracker(reg *Registry) *SignalTracker {
	return &SignalTracker{root: reg.root, regs: newRegistrationSet()}
}

func (t *SignalTracker) Add(ctx context.Context, contextEl dom.Element, eventType string, cfg *TriggerConfig, listener ListenerFunc) (UnsubscribeFunc, error) {
	var selector string
	var method dom.SelectionMethod
	if cfg != nil {
		selector = cfg.Selector
		method = cfg.SelectionMethod
	}
	regCtx, _ := t.regs.track(ctx)

	if isRootSelector(selector) {
		go deliverOnSignal(regCtx, t.RootSignal(eventType), t.root.GetRootElement(), eventType, listener)
	} else {
		go func() {
			el, err := t.root.GetAmpElement(regCtx, contextEl, selector, method)
			if err != nil {
				return
			}
			deliverOnSignal(regCtx, t.ElementSignal(eventType, el), el, eventType, listener)
		}()
	}
	// Signals resolve at most once, so there is nothing to undo.
	return func() {}, nil
}

func (t *SignalTracker) Dispose() {
	t.regs.cancelAll()
}

func (t *SignalTracker) RootSignal(name string) <-chan struct{} {
	return t.root.Signals().WhenSignal(name)
}

func (t *SignalTracker) ElementSignal(name string, el dom.Element) <-chan struct{} {
	return elementSignal(name, el)
}

// IniLoadTracker waits for initial load: the root's ini-load signal, or for
// elements whichever of {ini-load, load-end} resolves first.
type IniLoadTracker struct {
	root dom.Root
	regs *registrationSet
}

func newIniLoadTracker(reg *Registry) *IniLoadTracker {
	return &IniLoadTracker{root: reg.root, regs: newRegistrationSet()}
}

func (t *IniLoadTracker) Add(ctx context.Context, contextEl dom.Element, eventType string, cfg *TriggerConfig, listener ListenerFunc) (UnsubscribeFunc, error) {
	var selector string
	var method dom.SelectionMethod
	if cfg != nil {
		selector = cfg.Selector
		method = cfg.SelectionMethod
	}
	regCtx, _ := t.regs.track(ctx)

	if isRootSelector(selector) {
		go deliverOnSignal(regCtx, t.root.WhenIniLoaded(), t.root.GetRootElement(), eventType, listener)
	} else {
		go func() {
			el, err := t.root.GetAmpElement(regCtx, contextEl, selector, method)
			if err != nil {
				return
			}
			deliverOnSignal(regCtx, t.elementLoaded(regCtx, el), el, eventType, listener)
		}()
	}
	return func() {}, nil
}

func (t *IniLoadTracker) Dispose() {
	t.regs.cancelAll()
}

func (t *IniLoadTracker) RootSignal(string) <-chan struct{} {
	return t.root.WhenIniLoaded()
}

func (t *IniLoadTracker) ElementSignal(_ string, el dom.Element) <-chan struct{} {
	return t.elementLoaded(context.Background(), el)
}

func (t *IniLoadTracker) elementLoaded(ctx context.Context, el dom.Element) <-chan struct{} {
	signals := el.Signals()
	if signals == nil {
		return closedSignal
	}
	return firstSignal(ctx.Done(),
		signals.WhenSignal(dom.SignalIniLoad),
		signals.WhenSignal(dom.SignalLoadEnd))
}

func deliverOnSignal(ctx context.Context, signal <-chan struct{}, target dom.Element, eventType string, listener ListenerFunc) {
	select {
	case <-signal:
	case <-ctx.Done():
		return
	}
	select {
	case <-ctx.Done():
		return
	default:
	}
	listener(NewEvent(target, eventType, nil))
}
