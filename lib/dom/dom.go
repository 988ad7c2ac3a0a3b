// Package dom declares the document-side collaborator contracts consumed by
// the analytics trigger engine: element scoping roots, one-shot lifecycle
// signals, click delegation, video session streams, and the visibility
// computation service. The engine only decides when triggers fire; everything
// behind these interfaces is supplied by the host document implementation.
package dom

import (
	"context"
	"time"
)

// SelectionMethod controls how a selector is resolved relative to its
// context element.
type SelectionMethod string

const (
	// SelectionAuto lets the root pick the default resolution strategy.
	SelectionAuto SelectionMethod = ""
	// SelectionScope resolves the selector within the context subtree.
	SelectionScope SelectionMethod = "scope"
	// SelectionClosest resolves the selector against the context's ancestors.
	SelectionClosest SelectionMethod = "closest"
)

// Selectors that address the scoping root itself rather than an element.
const (
	RootSelector = ":root"
	HostSelector = ":host"
)

// Well-known one-shot signal names.
const (
	SignalIniLoad     = "ini-load"
	SignalLoadEnd     = "load-end"
	SignalRenderStart = "render-start"
)

// UnlistenFunc detaches a listener. Implementations must be idempotent.
type UnlistenFunc func()

// SignalSource exposes one-time awaitable lifecycle milestones. The returned
// channel is closed exactly once when the named signal resolves; asking for
// the same name again returns a channel in the same state.
type SignalSource interface {
	WhenSignal(name string) <-chan struct{}
}

// Element is a node in the scoping root's document subtree.
type Element interface {
	// ID returns a stable identity for logging and comparison.
	ID() string
	// Tag returns the element's tag name.
	Tag() string
	// Contains reports whether other is el or a descendant of el.
	Contains(other Element) bool
	// Attributes returns the element's attribute map.
	Attributes() map[string]string
	// Signals returns the element's signal source, or nil when the element
	// exposes no signal capability.
	Signals() SignalSource
}

// ClickEvent is a raw click delivered through the root's delegation anchor.
type ClickEvent struct {
	Target Element
}

// ClickHandler receives the element a selective listener matched along with
// the original click.
type ClickHandler func(matched Element, ev ClickEvent)

// VideoSessionTag labels a raw video session event variant.
type VideoSessionTag string

const (
	VideoPlay           VideoSessionTag = "video-play"
	VideoPause          VideoSessionTag = "video-pause"
	VideoEnded          VideoSessionTag = "video-ended"
	VideoSecondsPlayed  VideoSessionTag = "video-seconds-played"
	VideoSession        VideoSessionTag = "video-session"
	VideoSessionVisible VideoSessionTag = "video-session-visible"
)

// VideoSessionEvent is one occurrence on the root's shared video stream.
type VideoSessionEvent struct {
	Tag      VideoSessionTag
	Element  Element
	Autoplay bool
	Details  map[string]string
}

// VisibilityParams carries the viewport-intersection thresholds the
// visibility service evaluates. Zero values mean "no constraint".
type VisibilityParams struct {
	VisiblePercentageMin float64
	VisiblePercentageMax float64
	TotalTimeMin         time.Duration
	ContinuousTimeMin    time.Duration
}

// VisibilityCallback receives the element judged visible and the computed
// visibility state for the report.
type VisibilityCallback func(el Element, state map[string]string)

// ReportReadyFunc produces a channel that closes when a report may be sent.
type ReportReadyFunc func() <-chan struct{}

// VisibilityService performs the viewport-intersection computation. The
// engine passes it a readiness channel that gates reporting; a nil channel
// means no gating.
type VisibilityService interface {
	ListenRoot(params VisibilityParams, ready <-chan struct{}, reportReady ReportReadyFunc, cb VisibilityCallback) UnlistenFunc
	ListenElement(ctx context.Context, el Element, params VisibilityParams, ready <-chan struct{}, reportReady ReportReadyFunc, cb VisibilityCallback) (UnlistenFunc, error)
}

// Viewer reports the page's foreground/background state.
type Viewer interface {
	IsVisible() bool
	OnVisibilityChanged(fn func(visible bool)) UnlistenFunc
}

// Root is the scoping context within which selectors and signals resolve.
// One Root is shared by reference across every tracker created for the same
// scope; trackers never own its lifecycle.
type Root interface {
	// GetRootElement returns the element fired events are attributed to.
	GetRootElement() Element
	// GetRoot returns the event-delegation anchor.
	GetRoot() Element
	// GetElement resolves selector relative to contextEl, blocking until the
	// document is ready and the element exists, or ctx is cancelled.
	GetElement(ctx context.Context, contextEl Element, selector string, method SelectionMethod) (Element, error)
	// GetAmpElement is GetElement restricted to AMP elements.
	GetAmpElement(ctx context.Context, contextEl Element, selector string, method SelectionMethod) (Element, error)
	// Signals returns the root-scoped signal source.
	Signals() SignalSource
	// WhenIniLoaded closes when the root's initial load completes.
	WhenIniLoaded() <-chan struct{}
	// GetVisibilityManager returns the visibility computation service.
	GetVisibilityManager() VisibilityService
	// GetViewer returns the page foreground/background signal.
	GetViewer() Viewer
	// OnClick subscribes to clicks on the delegation anchor.
	OnClick(fn func(ClickEvent)) UnlistenFunc
	// OnVideoSession subscribes to the shared video session event stream.
	OnVideoSession(fn func(VideoSessionEvent)) UnlistenFunc
	// CreateSelectiveListener wraps handler so it only fires when the click's
	// target, or one of its ancestors up to contextEl, matches selector under
	// the given method. The matched element is passed to handler.
	CreateSelectiveListener(handler ClickHandler, contextEl Element, selector string, method SelectionMethod) func(ClickEvent)
}
