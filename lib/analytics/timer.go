package analytics

import (
	"context"
	"sync"

	"github.com/pomeroyr/amphtml/lib/dom"
	"github.com/pomeroyr/amphtml/lib/logger"
)

// toggleState is the timer's delegated-trigger state. Start and stop
// listeners share one toggle handler, so a timer is either waiting for its
// start condition or running and waiting for its stop condition, never both.
type toggleState int

const (
	stateListeningForStart toggleState = iota
	stateRunning
)

func (s toggleState) String() string {
	switch s {
	case stateListeningForStart:
		return "listening-for-start"
	case stateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// next is the toggle transition table. A toggle occurrence flips the state:
// the same underlying event starts a stopped timer and stops a running one.
func (s toggleState) next() toggleState {
	if s == stateRunning {
		return stateListeningForStart
	}
	return stateRunning
}

// listenBuilder arms a delegated start or stop trigger and returns its
// unsubscribe.
type listenBuilder func() (UnsubscribeFunc, error)

// timerHandler is the per-registration timer state machine.
type timerHandler struct {
	id        int
	eventType string
	listener  ListenerFunc
	cfg       *timerConfig
	// unstoppable timers have no stop condition and get a hard cap at
	// cfg.maxLength after each start.
	unstoppable  bool
	startBuilder listenBuilder // nil when the timer starts at load time
	stopBuilder  listenBuilder

	mu            sync.Mutex
	state         toggleState
	stopInterval  func() // non-nil iff the interval is armed
	cancelCap     func()
	unlistenStart UnsubscribeFunc
	unlistenStop  UnsubscribeFunc
}

// running reports whether the handler holds a live interval handle.
func (h *timerHandler) running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopInterval != nil
}

// teardown clears the interval, the cap and both delegated listeners. Safe
// to call more than once.
func (h *timerHandler) teardown() {
	h.mu.Lock()
	stopInterval := h.stopInterval
	cancelCap := h.cancelCap
	unlistenStart := h.unlistenStart
	unlistenStop := h.unlistenStop
	h.stopInterval = nil
	h.cancelCap = nil
	h.unlistenStart = nil
	h.unlistenStop = nil
	h.mu.Unlock()

	if stopInterval != nil {
		stopInterval()
	}
	if cancelCap != nil {
		cancelCap()
	}
	if unlistenStart != nil {
		unlistenStart()
	}
	if unlistenStop != nil {
		unlistenStop()
	}
}

// TimerEventTracker owns every timer registration for its root. Timer ids
// are issued by a per-tracker monotonic sequence; the first issued id is 2.
type TimerEventTracker struct {
	reg   *Registry
	root  dom.Root
	clock Clock

	mu       sync.Mutex
	handlers map[int]*timerHandler
	idSeq    int
}

func newTimerTracker(reg *Registry) *TimerEventTracker {
	return &TimerEventTracker{
		reg:      reg,
		root:     reg.root,
		clock:    reg.clock,
		handlers: make(map[int]*timerHandler),
		idSeq:    1,
	}
}

func (t *TimerEventTracker) Add(ctx context.Context, contextEl dom.Element, eventType string, cfg *TriggerConfig, listener ListenerFunc) (UnsubscribeFunc, error) {
	tc, err := parseTimerSpec(cfg)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.idSeq++
	id := t.idSeq
	t.mu.Unlock()

	h := &timerHandler{
		id:          id,
		eventType:   eventType,
		listener:    listener,
		cfg:         tc,
		unstoppable: tc.stopSpec == nil,
	}
	toggle := func(*Event) { t.handleTimerToggle(ctx, id) }
	if tc.startSpec != nil {
		h.startBuilder, err = t.delegateBuilder(ctx, contextEl, tc.startSpec, toggle)
		if err != nil {
			return nil, err
		}
	}
	if tc.stopSpec != nil {
		h.stopBuilder, err = t.delegateBuilder(ctx, contextEl, tc.stopSpec, toggle)
		if err != nil {
			return nil, err
		}
	}

	t.mu.Lock()
	t.handlers[id] = h
	t.mu.Unlock()

	if h.startBuilder == nil {
		t.startTimer(ctx, id)
	} else {
		t.listenForStart(ctx, h)
	}
	return func() { t.removeTracker(id) }, nil
}

// delegateBuilder resolves a nested start/stop spec against the timer
// whitelist and returns a builder that arms it on demand.
func (t *TimerEventTracker) delegateBuilder(ctx context.Context, contextEl dom.Element, spec *TriggerConfig, toggle ListenerFunc) (listenBuilder, error) {
	kind, err := KindForOn(spec.On)
	if err != nil {
		return nil, err
	}
	delegate, err := t.reg.GetTrackerForWhitelist(kind, timerWhitelist)
	if err != nil {
		return nil, err
	}
	if err := ValidateTrigger(spec); err != nil {
		return nil, err
	}
	return func() (UnsubscribeFunc, error) {
		// Toggle listeners must only see occurrences after arming; buffered
		// replay would re-toggle on occurrences already consumed.
		if live, ok := delegate.(liveAdder); ok {
			return live.addLive(ctx, contextEl, spec.On, spec, toggle)
		}
		return delegate.Add(ctx, contextEl, spec.On, spec, toggle)
	}, nil
}

// handleTimerToggle serves both the start and stop delegated listeners: a
// running timer stops, a stopped one starts. Binding both conditions to one
// handler keeps same-source start/stop specs from double-starting.
func (t *TimerEventTracker) handleTimerToggle(ctx context.Context, id int) {
	t.mu.Lock()
	h := t.handlers[id]
	t.mu.Unlock()
	if h == nil {
		return
	}
	if h.running() {
		t.stopTimer(ctx, id)
	} else {
		t.startTimer(ctx, id)
	}
}

func (t *TimerEventTracker) startTimer(ctx context.Context, id int) {
	t.mu.Lock()
	h := t.handlers[id]
	t.mu.Unlock()
	if h == nil {
		return
	}

	h.mu.Lock()
	if h.stopInterval != nil {
		h.mu.Unlock()
		return
	}
	fire := func() { h.listener(NewEvent(t.root.GetRootElement(), h.eventType, nil)) }
	h.state = h.state.next()
	h.stopInterval = t.clock.Interval(h.cfg.interval, fire)
	if h.unstoppable {
		h.cancelCap = t.clock.AfterFunc(h.cfg.maxLength, func() {
			t.removeTracker(id)
		})
	}
	unlistenStart := h.unlistenStart
	h.unlistenStart = nil
	h.mu.Unlock()

	if unlistenStart != nil {
		unlistenStart()
	}
	if h.stopBuilder != nil {
		t.listenForStop(ctx, h)
	}
	if h.cfg.immediate {
		fire()
	}
}

func (t *TimerEventTracker) stopTimer(ctx context.Context, id int) {
	t.mu.Lock()
	h := t.handlers[id]
	t.mu.Unlock()
	if h == nil {
		return
	}

	h.mu.Lock()
	stopInterval := h.stopInterval
	unlistenStop := h.unlistenStop
	h.stopInterval = nil
	h.unlistenStop = nil
	h.state = h.state.next()
	h.mu.Unlock()

	if stopInterval != nil {
		stopInterval()
	}
	if unlistenStop != nil {
		unlistenStop()
	}
	t.listenForStart(ctx, h)
}

func (t *TimerEventTracker) listenForStart(ctx context.Context, h *timerHandler) {
	if h.startBuilder == nil {
		// Only reachable through a stop transition, which requires a stop
		// spec, which requires a start spec.
		panic("analytics: timer listening for start without a start trigger")
	}
	unlisten, err := h.startBuilder()
	if err != nil {
		logger.FromContext(ctx).Error("failed to arm timer start trigger", "timerId", h.id, "err", err)
		return
	}
	h.mu.Lock()
	h.unlistenStart = unlisten
	h.mu.Unlock()
}

func (t *TimerEventTracker) listenForStop(ctx context.Context, h *timerHandler) {
	unlisten, err := h.stopBuilder()
	if err != nil {
		logger.FromContext(ctx).Error("failed to arm timer stop trigger", "timerId", h.id, "err", err)
		return
	}
	h.mu.Lock()
	h.unlistenStop = unlisten
	h.mu.Unlock()
}

// removeTracker tears one timer down and forgets its id. Serves the
// registration's unsubscribe, the unstoppable cap, and disposal alike.
func (t *TimerEventTracker) removeTracker(id int) {
	t.mu.Lock()
	h := t.handlers[id]
	delete(t.handlers, id)
	t.mu.Unlock()
	if h != nil {
		h.teardown()
	}
}

// Dispose tears down every tracked timer id exhaustively; one teardown never
// prevents the next.
func (t *TimerEventTracker) Dispose() {
	t.mu.Lock()
	ids := make([]int, 0, len(t.handlers))
	for id := range t.handlers {
		ids = append(ids, id)
	}
	t.mu.Unlock()
	for _, id := range ids {
		t.removeTracker(id)
	}
}
