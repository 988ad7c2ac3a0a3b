package analytics

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/pomeroyr/amphtml/lib/dom"
	"github.com/pomeroyr/amphtml/lib/logger"
)

// ListenerFunc receives every event a registration fires.
type ListenerFunc func(*Event)

// UnsubscribeFunc removes exactly the registration that produced it. Always
// idempotent, and safe to call before async target resolution completes.
type UnsubscribeFunc func()

// Tracker is the common contract of every trigger variant.
type Tracker interface {
	// Add subscribes listener to occurrences of eventType under cfg.
	// contextEl scopes relative selectors; nil means the root.
	Add(ctx context.Context, contextEl dom.Element, eventType string, cfg *TriggerConfig, listener ListenerFunc) (UnsubscribeFunc, error)
	// Dispose releases every resource the tracker holds. Called once, at
	// root teardown.
	Dispose()
}

// liveAdder is implemented by trackers that can subscribe to live occurrences
// only, with no buffered replay. Delegated start/stop toggles need this: a
// replayed occurrence already flipped the toggle once.
type liveAdder interface {
	addLive(ctx context.Context, contextEl dom.Element, eventType string, cfg *TriggerConfig, listener ListenerFunc) (UnsubscribeFunc, error)
}

// Kind is the closed enumeration of tracker variants.
type Kind string

const (
	KindCustom      Kind = "custom"
	KindClick       Kind = "click"
	KindRenderStart Kind = "render-start"
	KindIniLoad     Kind = "ini-load"
	KindTimer       Kind = "timer"
	KindVideo       Kind = "video"
	KindVisible     Kind = "visible"
	KindHidden      Kind = "hidden"
)

// storageKey collapses kinds that share one tracker instance: visible and
// hidden are both served by the visibility tracker.
func (k Kind) storageKey() Kind {
	if k == KindHidden {
		return KindVisible
	}
	return k
}

// KindForOn maps a trigger's "on" value to its tracker kind. Names that match
// no built-in condition are custom events.
func KindForOn(on string) (Kind, error) {
	if on == "" {
		return "", fmt.Errorf("%w: empty 'on'", ErrUnknownTrigger)
	}
	switch on {
	case "click":
		return KindClick, nil
	case "timer":
		return KindTimer, nil
	case dom.SignalRenderStart:
		return KindRenderStart, nil
	case dom.SignalIniLoad:
		return KindIniLoad, nil
	case "visible":
		return KindVisible, nil
	case "hidden":
		return KindHidden, nil
	}
	if strings.HasPrefix(on, "video-") {
		return KindVideo, nil
	}
	return KindCustom, nil
}

// timerWhitelist lists the tracker kinds a timer's start/stop spec may
// delegate to. Timers may not nest.
var timerWhitelist = map[Kind]bool{
	KindCustom:      true,
	KindClick:       true,
	KindRenderStart: true,
	KindIniLoad:     true,
	KindVideo:       true,
	KindVisible:     true,
}

// visibilityWaitForWhitelist lists the tracker kinds usable as a visibility
// readiness gate, keyed by waitFor value.
var visibilityWaitForWhitelist = map[string]Kind{
	dom.SignalIniLoad:     KindIniLoad,
	dom.SignalRenderStart: KindRenderStart,
}

// waitForNone disables readiness gating.
const waitForNone = "none"

func waitForKind(waitFor string) (Kind, error) {
	kind, ok := visibilityWaitForWhitelist[waitFor]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrBadWaitFor, waitFor)
	}
	return kind, nil
}

// Registry creates and caches one tracker per (root, kind). It is the
// engine's entry point: configuration selects a variant by name, and the
// registry hands back the shared tracker instance for it.
type Registry struct {
	root  dom.Root
	clock Clock

	mu       sync.Mutex
	trackers map[Kind]Tracker
	disposed bool
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithClock substitutes the host clock, for tests.
func WithClock(c Clock) RegistryOption {
	return func(r *Registry) { r.clock = c }
}

// NewRegistry builds the tracker registry for one scoping root.
func NewRegistry(root dom.Root, opts ...RegistryOption) *Registry {
	r := &Registry{
		root:     root,
		clock:    SystemClock(),
		trackers: make(map[Kind]Tracker),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Root returns the scoping root shared by this registry's trackers.
func (r *Registry) Root() dom.Root { return r.root }

// GetTracker returns the tracker for kind, creating it on first use.
func (r *Registry) GetTracker(kind Kind) (Tracker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return nil, fmt.Errorf("registry disposed")
	}
	key := kind.storageKey()
	if t, ok := r.trackers[key]; ok {
		return t, nil
	}
	t, err := r.newTracker(key)
	if err != nil {
		return nil, err
	}
	r.trackers[key] = t
	return t, nil
}

// GetTrackerForWhitelist returns the tracker for kind only when the caller's
// whitelist admits it.
func (r *Registry) GetTrackerForWhitelist(kind Kind, whitelist map[Kind]bool) (Tracker, error) {
	if !whitelist[kind.storageKey()] {
		return nil, fmt.Errorf("%w: %q", ErrTrackerNotAllowed, kind)
	}
	return r.GetTracker(kind)
}

// AddTrigger registers listener for the trigger described by cfg, selecting
// the tracker variant from cfg.On.
func (r *Registry) AddTrigger(ctx context.Context, cfg *TriggerConfig, listener ListenerFunc) (UnsubscribeFunc, error) {
	if cfg == nil || cfg.On == "" {
		return nil, fmt.Errorf("%w: missing 'on'", ErrUnknownTrigger)
	}
	kind, err := KindForOn(cfg.On)
	if err != nil {
		return nil, err
	}
	tracker, err := r.GetTracker(kind)
	if err != nil {
		return nil, err
	}
	unsubscribe, err := tracker.Add(ctx, nil, cfg.On, cfg, listener)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	log := logger.FromContext(ctx)
	log.Debug("registered trigger", "id", id, "on", cfg.On, "kind", string(kind))
	return func() {
		unsubscribe()
		log.Debug("removed trigger", "id", id, "on", cfg.On)
	}, nil
}

// Dispose tears down every tracker. One tracker's teardown failing never
// prevents the others from running.
func (r *Registry) Dispose() {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	r.disposed = true
	trackers := make([]Tracker, 0, len(r.trackers))
	for _, t := range r.trackers {
		trackers = append(trackers, t)
	}
	r.trackers = make(map[Kind]Tracker)
	r.mu.Unlock()

	for _, t := range trackers {
		t.Dispose()
	}
}

func (r *Registry) newTracker(kind Kind) (Tracker, error) {
	switch kind {
	case KindCustom:
		return newCustomTracker(r), nil
	case KindClick:
		return newClickTracker(r), nil
	case KindRenderStart:
		return newSignalTracker(r), nil
	case KindIniLoad:
		return newIniLoadTracker(r), nil
	case KindTimer:
		return newTimerTracker(r), nil
	case KindVideo:
		return newVideoTracker(r), nil
	case KindVisible:
		return newVisibilityTracker(r), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTrigger, kind)
	}
}

// registrationSet holds the cancel funcs of in-flight registrations so a
// tracker's Dispose can end them; a cancelled registration's eventual
// resolution becomes a no-op.
type registrationSet struct {
	mu      sync.Mutex
	seq     uint64
	cancels map[uint64]context.CancelFunc
}

func newRegistrationSet() *registrationSet {
	return &registrationSet{cancels: make(map[uint64]context.CancelFunc)}
}

// track derives a cancellable context for one registration and returns it
// with an idempotent release that cancels and forgets it.
func (s *registrationSet) track(ctx context.Context) (context.Context, func()) {
	regCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.seq++
	id := s.seq
	s.cancels[id] = cancel
	s.mu.Unlock()

	var once sync.Once
	return regCtx, func() {
		once.Do(func() {
			cancel()
			s.mu.Lock()
			delete(s.cancels, id)
			s.mu.Unlock()
		})
	}
}

func (s *registrationSet) cancelAll() {
	s.mu.Lock()
	cancels := s.cancels
	s.cancels = make(map[uint64]context.CancelFunc)
	s.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}
