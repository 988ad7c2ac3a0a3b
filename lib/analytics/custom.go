package analytics

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pomeroyr/amphtml/lib/dom"
	"github.com/pomeroyr/amphtml/lib/observable"
)

const (
	// sandboxPrefix marks event types whose buffered occurrences are replayed
	// exactly once, to the first listener that attaches, and never expire.
	sandboxPrefix = "sandbox-"
	// bufferWindow is how long after construction ordinary custom events are
	// buffered for listeners that have not attached yet.
	bufferWindow = 10 * time.Second
	// replayDelay defers buffered replay by one tick after subscription.
	replayDelay = time.Millisecond
)

// CustomEventTracker is arbitrary named-event pub/sub. Events fired before
// any listener attaches are buffered: ordinary types for bufferWindow after
// construction, sandbox-prefixed types until their first listener replays
// them.
type CustomEventTracker struct {
	root  dom.Root
	clock Clock
	regs  *registrationSet

	mu          sync.Mutex
	observables map[string]*observable.Observable[*Event]
	// buffer is nil once the buffering window has closed.
	buffer        map[string][]*Event
	sandboxBuffer map[string][]*Event
	cancelWindow  func()
}

func newCustomTracker(reg *Registry) *CustomEventTracker {
	t := &CustomEventTracker{
		root:          reg.root,
		clock:         reg.clock,
		regs:          newRegistrationSet(),
		observables:   make(map[string]*observable.Observable[*Event]),
		buffer:        make(map[string][]*Event),
		sandboxBuffer: make(map[string][]*Event),
	}
	t.cancelWindow = t.clock.AfterFunc(bufferWindow, func() {
		t.mu.Lock()
		t.buffer = nil
		t.mu.Unlock()
	})
	return t
}

// Trigger fires event to current listeners for its type and buffers it for
// late ones. Ordinary types buffer regardless of delivery while the window
// is open; sandbox types buffer only when nothing was listening.
func (t *CustomEventTracker) Trigger(event *Event) {
	eventType := event.Type()
	sandbox := strings.HasPrefix(eventType, sandboxPrefix)

	t.mu.Lock()
	obs := t.observables[eventType]
	if sandbox {
		if obs == nil {
			t.sandboxBuffer[eventType] = append(t.sandboxBuffer[eventType], event)
		}
	} else if t.buffer != nil {
		t.buffer[eventType] = append(t.buffer[eventType], event)
	}
	t.mu.Unlock()

	if obs != nil {
		obs.Fire(event)
	}
}

func (t *CustomEventTracker) Add(ctx context.Context, contextEl dom.Element, eventType string, cfg *TriggerConfig, listener ListenerFunc) (UnsubscribeFunc, error) {
	return t.add(ctx, contextEl, eventType, cfg, listener, true)
}

// addLive subscribes to live occurrences only, skipping buffered replay.
// Delegated toggle listeners re-arm on every state flip; replaying the
// occurrences that already flipped the state would flip it again.
func (t *CustomEventTracker) addLive(ctx context.Context, contextEl dom.Element, eventType string, cfg *TriggerConfig, listener ListenerFunc) (UnsubscribeFunc, error) {
	return t.add(ctx, contextEl, eventType, cfg, listener, false)
}

func (t *CustomEventTracker) add(ctx context.Context, contextEl dom.Element, eventType string, cfg *TriggerConfig, listener ListenerFunc, withReplay bool) (UnsubscribeFunc, error) {
	selector := dom.RootSelector
	var method dom.SelectionMethod
	if cfg != nil {
		if cfg.Selector != "" {
			selector = cfg.Selector
		}
		method = cfg.SelectionMethod
	}
	sandbox := strings.HasPrefix(eventType, sandboxPrefix)

	regCtx, release := t.regs.track(ctx)
	pending := newPendingTarget(listener)

	// Snapshot the replay slice and subscribe under one lock, so an event
	// fired concurrently lands in exactly one of the two paths.
	t.mu.Lock()
	var replay []*Event
	if withReplay {
		if sandbox {
			replay = append(replay, t.sandboxBuffer[eventType]...)
		} else if t.buffer != nil {
			replay = append(replay, t.buffer[eventType]...)
		}
	}
	obs := t.observables[eventType]
	if obs == nil {
		obs = observable.New[*Event]()
		t.observables[eventType] = obs
	}
	unsubObs := obs.Subscribe(func(ev *Event) {
		pending.deliver(ev)
	})
	t.mu.Unlock()

	// Resolve the target element once; events arriving before resolution are
	// queued and flushed in order.
	go func() {
		target, err := t.root.GetElement(regCtx, contextEl, selector, method)
		if err != nil {
			return // cancelled, or the selector never resolves
		}
		pending.resolve(target)
	}()

	if len(replay) > 0 {
		// Replay one tick later. The sandbox buffer is consumed only once the
		// target resolved and replay is actually happening; a registration
		// cancelled before resolution leaves it for the next listener.
		t.clock.AfterFunc(replayDelay, func() {
			go func() {
				select {
				case <-pending.resolved:
				case <-regCtx.Done():
					return
				}
				if sandbox {
					t.mu.Lock()
					delete(t.sandboxBuffer, eventType)
					t.mu.Unlock()
				}
				for _, ev := range replay {
					pending.deliverResolved(ev)
				}
			}()
		})
	}

	return func() {
		release()
		unsubObs()
	}, nil
}

func (t *CustomEventTracker) Dispose() {
	t.regs.cancelAll()
	t.mu.Lock()
	t.cancelWindow()
	t.buffer = nil
	t.sandboxBuffer = make(map[string][]*Event)
	observables := t.observables
	t.observables = make(map[string]*observable.Observable[*Event])
	t.mu.Unlock()
	for _, obs := range observables {
		obs.RemoveAll()
	}
}

// pendingTarget queues events for one registration until its target element
// resolves, then applies the ancestor-containment filter and delivers.
type pendingTarget struct {
	listener ListenerFunc
	resolved chan struct{}

	mu     sync.Mutex
	target dom.Element
	queue  []*Event
}

func newPendingTarget(listener ListenerFunc) *pendingTarget {
	return &pendingTarget{listener: listener, resolved: make(chan struct{})}
}

func (p *pendingTarget) resolve(target dom.Element) {
	p.mu.Lock()
	p.target = target
	queue := p.queue
	p.queue = nil
	p.mu.Unlock()
	close(p.resolved)
	for _, ev := range queue {
		p.deliverResolved(ev)
	}
}

func (p *pendingTarget) deliver(ev *Event) {
	p.mu.Lock()
	if p.target == nil {
		p.queue = append(p.queue, ev)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.deliverResolved(ev)
}

func (p *pendingTarget) deliverResolved(ev *Event) {
	if p.target.Contains(ev.Target()) {
		p.listener(ev)
	}
}
