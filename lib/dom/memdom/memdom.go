// Package memdom is an in-memory implementation of the dom collaborator
// contracts. It backs the engine's tests and the triggerlint demo; it is not
// a real document. Selectors are limited to ":root", "#id", ".class" and tag
// names, which is enough to exercise every trigger path.
package memdom

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/pomeroyr/amphtml/lib/dom"
	"github.com/pomeroyr/amphtml/lib/observable"
)

// Signals is a manual dom.SignalSource. Each named signal resolves at most
// once; asking again returns the already-resolved channel.
type Signals struct {
	mu    sync.Mutex
	chans map[string]chan struct{}
}

func NewSignals() *Signals {
	return &Signals{chans: make(map[string]chan struct{})}
}

func (s *Signals) WhenSignal(name string) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.chans[name]
	if !ok {
		ch = make(chan struct{})
		s.chans[name] = ch
	}
	return ch
}

// Signal resolves the named signal. Resolving twice is a no-op.
func (s *Signals) Signal(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.chans[name]
	if !ok {
		ch = make(chan struct{})
		s.chans[name] = ch
	}
	select {
	case <-ch:
	default:
		close(ch)
	}
}

// Element is an in-memory dom.Element. Elements whose tag carries the "amp-"
// prefix expose a signal source; plain elements do not.
type Element struct {
	id      string
	tag     string
	attrs   map[string]string
	signals *Signals

	mu       sync.Mutex
	parent   *Element
	children []*Element
}

// NewElement builds a detached element. The "id" attribute, when present,
// becomes the element's identity; otherwise a random one is assigned.
func NewElement(tag string, attrs map[string]string) *Element {
	if attrs == nil {
		attrs = map[string]string{}
	}
	id := attrs["id"]
	if id == "" {
		id = uuid.NewString()
	}
	e := &Element{id: id, tag: tag, attrs: attrs}
	if strings.HasPrefix(tag, "amp-") {
		e.signals = NewSignals()
	}
	return e
}

func (e *Element) ID() string  { return e.id }
func (e *Element) Tag() string { return e.tag }

func (e *Element) Attributes() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]string, len(e.attrs))
	for k, v := range e.attrs {
		out[k] = v
	}
	return out
}

func (e *Element) Signals() dom.SignalSource {
	if e.signals == nil {
		return nil
	}
	return e.signals
}

// ElementSignals returns the element's manual signal source for test
// driving, or nil for non-AMP elements.
func (e *Element) ElementSignals() *Signals { return e.signals }

func (e *Element) Contains(other dom.Element) bool {
	cur, ok := other.(*Element)
	if !ok {
		return false
	}
	for cur != nil {
		if cur == e {
			return true
		}
		cur.mu.Lock()
		parent := cur.parent
		cur.mu.Unlock()
		cur = parent
	}
	return false
}

func (e *Element) matches(selector string) bool {
	switch {
	case strings.HasPrefix(selector, "#"):
		return e.id == selector[1:]
	case strings.HasPrefix(selector, "."):
		for _, c := range strings.Fields(e.attrs["class"]) {
			if c == selector[1:] {
				return true
			}
		}
		return false
	default:
		return e.tag == selector
	}
}

func (e *Element) findFirst(selector string) *Element {
	if e.matches(selector) {
		return e
	}
	e.mu.Lock()
	children := append([]*Element(nil), e.children...)
	e.mu.Unlock()
	for _, c := range children {
		if found := c.findFirst(selector); found != nil {
			return found
		}
	}
	return nil
}

func (e *Element) closest(selector string) *Element {
	for cur := e; cur != nil; {
		if cur.matches(selector) {
			return cur
		}
		cur.mu.Lock()
		parent := cur.parent
		cur.mu.Unlock()
		cur = parent
	}
	return nil
}

// Viewer is a manual page foreground/background signal.
type Viewer struct {
	mu      sync.Mutex
	visible bool
	obs     *observable.Observable[bool]
}

func NewViewer() *Viewer {
	return &Viewer{visible: true, obs: observable.New[bool]()}
}

func (v *Viewer) IsVisible() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.visible
}

func (v *Viewer) SetVisible(visible bool) {
	v.mu.Lock()
	changed := v.visible != visible
	v.visible = visible
	v.mu.Unlock()
	if changed {
		v.obs.Fire(visible)
	}
}

func (v *Viewer) OnVisibilityChanged(fn func(bool)) dom.UnlistenFunc {
	return dom.UnlistenFunc(v.obs.Subscribe(fn))
}

// ListenerCount reports live visibility-change listeners, for tests.
func (v *Viewer) ListenerCount() int { return v.obs.Len() }

type visibilityListen struct {
	el          *Element // nil for root listens
	ready       <-chan struct{}
	reportReady dom.ReportReadyFunc
	cb          dom.VisibilityCallback
	done        chan struct{}
}

// VisibilityManager is a manually driven dom.VisibilityService: tests call
// Trigger to simulate a qualifying visibility event. Readiness gating is
// honored: a triggered callback waits for the listen's ready channel (and
// report-ready channel, when configured) before firing.
type VisibilityManager struct {
	mu      sync.Mutex
	listens []*visibilityListen
}

func NewVisibilityManager() *VisibilityManager {
	return &VisibilityManager{}
}

func (m *VisibilityManager) ListenRoot(_ dom.VisibilityParams, ready <-chan struct{}, reportReady dom.ReportReadyFunc, cb dom.VisibilityCallback) dom.UnlistenFunc {
	return m.listen(&visibilityListen{ready: ready, reportReady: reportReady, cb: cb, done: make(chan struct{})})
}

func (m *VisibilityManager) ListenElement(_ context.Context, el dom.Element, _ dom.VisibilityParams, ready <-chan struct{}, reportReady dom.ReportReadyFunc, cb dom.VisibilityCallback) (dom.UnlistenFunc, error) {
	mel, ok := el.(*Element)
	if !ok {
		return nil, fmt.Errorf("memdom: foreign element %q", el.ID())
	}
	return m.listen(&visibilityListen{el: mel, ready: ready, reportReady: reportReady, cb: cb, done: make(chan struct{})}), nil
}

func (m *VisibilityManager) listen(l *visibilityListen) dom.UnlistenFunc {
	m.mu.Lock()
	m.listens = append(m.listens, l)
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(l.done)
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, cur := range m.listens {
				if cur == l {
					m.listens = append(m.listens[:i], m.listens[i+1:]...)
					break
				}
			}
		})
	}
}

// Trigger simulates a qualifying visibility event on el, delivering state to
// every listen whose scope contains el.
func (m *VisibilityManager) Trigger(el *Element, state map[string]string) {
	m.mu.Lock()
	listens := append([]*visibilityListen(nil), m.listens...)
	m.mu.Unlock()

	for _, l := range listens {
		if l.el != nil && !l.el.Contains(el) {
			continue
		}
		target := el
		if l.el != nil {
			target = l.el
		}
		go func(l *visibilityListen, target *Element) {
			if l.ready != nil {
				select {
				case <-l.ready:
				case <-l.done:
					return
				}
			}
			if l.reportReady != nil {
				select {
				case <-l.reportReady():
				case <-l.done:
					return
				}
			}
			select {
			case <-l.done:
				return
			default:
			}
			l.cb(target, state)
		}(l, target)
	}
}

// ListenCount reports the number of live listens, for tests.
func (m *VisibilityManager) ListenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listens)
}

// Root is an in-memory dom.Root over a mutable element tree.
type Root struct {
	doc        *Element
	signals    *Signals
	viewer     *Viewer
	visibility *VisibilityManager
	clicks     *observable.Observable[dom.ClickEvent]
	videos     *observable.Observable[dom.VideoSessionEvent]

	mu      sync.Mutex
	mutated chan struct{} // closed and replaced on every tree mutation
}

// NewRoot builds a root scoped to doc. The document element participates in
// containment and selector resolution like any other element.
func NewRoot(doc *Element) *Root {
	return &Root{
		doc:        doc,
		signals:    NewSignals(),
		viewer:     NewViewer(),
		visibility: NewVisibilityManager(),
		clicks:     observable.New[dom.ClickEvent](),
		videos:     observable.New[dom.VideoSessionEvent](),
		mutated:    make(chan struct{}),
	}
}

func (r *Root) GetRootElement() dom.Element { return r.doc }
func (r *Root) GetRoot() dom.Element        { return r.doc }
func (r *Root) Signals() dom.SignalSource   { return r.signals }

// RootSignals returns the manual root signal source for test driving.
func (r *Root) RootSignals() *Signals { return r.signals }

func (r *Root) WhenIniLoaded() <-chan struct{} {
	return r.signals.WhenSignal(dom.SignalIniLoad)
}

func (r *Root) GetVisibilityManager() dom.VisibilityService { return r.visibility }

// Visibility returns the manual visibility service for test driving.
func (r *Root) Visibility() *VisibilityManager { return r.visibility }

func (r *Root) GetViewer() dom.Viewer { return r.viewer }

// Viewer returns the manual viewer for test driving.
func (r *Root) PageViewer() *Viewer { return r.viewer }

func (r *Root) OnClick(fn func(dom.ClickEvent)) dom.UnlistenFunc {
	return dom.UnlistenFunc(r.clicks.Subscribe(fn))
}

func (r *Root) OnVideoSession(fn func(dom.VideoSessionEvent)) dom.UnlistenFunc {
	return dom.UnlistenFunc(r.videos.Subscribe(fn))
}

// Click simulates a click whose original target is el.
func (r *Root) Click(el *Element) {
	r.clicks.Fire(dom.ClickEvent{Target: el})
}

// EmitVideoSession pushes one raw event onto the shared video stream.
func (r *Root) EmitVideoSession(ev dom.VideoSessionEvent) {
	r.videos.Fire(ev)
}

// AppendChild attaches child under parent and wakes pending resolutions.
func (r *Root) AppendChild(parent, child *Element) {
	parent.mu.Lock()
	child.parent = parent
	parent.children = append(parent.children, child)
	parent.mu.Unlock()

	r.mu.Lock()
	close(r.mutated)
	r.mutated = make(chan struct{})
	r.mu.Unlock()
}

func (r *Root) GetElement(ctx context.Context, contextEl dom.Element, selector string, method dom.SelectionMethod) (dom.Element, error) {
	scope := r.doc
	if contextEl != nil {
		if mel, ok := contextEl.(*Element); ok {
			scope = mel
		}
	}
	for {
		if el := r.resolve(scope, selector, method); el != nil {
			return el, nil
		}
		r.mu.Lock()
		mutated := r.mutated
		r.mu.Unlock()
		select {
		case <-mutated:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (r *Root) GetAmpElement(ctx context.Context, contextEl dom.Element, selector string, method dom.SelectionMethod) (dom.Element, error) {
	el, err := r.GetElement(ctx, contextEl, selector, method)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(el.Tag(), "amp-") {
		return nil, fmt.Errorf("memdom: selector %q matched non-AMP element <%s>", selector, el.Tag())
	}
	return el, nil
}

func (r *Root) resolve(scope *Element, selector string, method dom.SelectionMethod) *Element {
	switch selector {
	case dom.RootSelector, dom.HostSelector:
		return r.doc
	}
	switch method {
	case dom.SelectionClosest:
		return scope.closest(selector)
	case dom.SelectionScope:
		return scope.findFirst(selector)
	default:
		return r.doc.findFirst(selector)
	}
}

func (r *Root) CreateSelectiveListener(handler dom.ClickHandler, contextEl dom.Element, selector string, method dom.SelectionMethod) func(dom.ClickEvent) {
	scope := r.doc
	if contextEl != nil {
		if mel, ok := contextEl.(*Element); ok {
			scope = mel
		}
	}
	return func(ev dom.ClickEvent) {
		target, ok := ev.Target.(*Element)
		if !ok {
			return
		}
		if selector == dom.RootSelector || selector == dom.HostSelector {
			handler(r.doc, ev)
			return
		}
		// Walk from the click target upward looking for a match within scope.
		matched := target.closest(selector)
		if matched == nil || !scope.Contains(matched) {
			return
		}
		if method == dom.SelectionScope && !scope.Contains(target) {
			return
		}
		handler(matched, ev)
	}
}
