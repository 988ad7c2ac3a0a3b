package analytics

import (
	"context"
	"sync"

	"github.com/pomeroyr/amphtml/lib/dom"
	"github.com/pomeroyr/amphtml/lib/logger"
	"github.com/pomeroyr/amphtml/lib/observable"
)

// videoSelector picks the trigger's target selector, preferring the video
// spec's own over the trigger-level one.
func videoSelector(cfg *TriggerConfig) string {
	if cfg == nil {
		return ""
	}
	if cfg.VideoSpec != nil && cfg.VideoSpec.Selector != "" {
		return cfg.VideoSpec.Selector
	}
	return cfg.Selector
}

// VideoEventTracker filters the root's shared video session stream by each
// registration's spec: interval sampling for seconds-played, autoplay
// exclusion, visibility-based session end, and target containment.
type VideoEventTracker struct {
	root         dom.Root
	regs         *registrationSet
	sessions     *observable.Observable[dom.VideoSessionEvent]
	unlistenRoot dom.UnlistenFunc
}

func newVideoTracker(reg *Registry) *VideoEventTracker {
	t := &VideoEventTracker{
		root:     reg.root,
		regs:     newRegistrationSet(),
		sessions: observable.New[dom.VideoSessionEvent](),
	}
	t.unlistenRoot = reg.root.OnVideoSession(func(ev dom.VideoSessionEvent) {
		t.sessions.Fire(ev)
	})
	return t
}

func (t *VideoEventTracker) Add(ctx context.Context, contextEl dom.Element, eventType string, cfg *TriggerConfig, listener ListenerFunc) (UnsubscribeFunc, error) {
	selector := videoSelector(cfg)
	if selector == "" {
		return nil, ErrMissingVideoSelector
	}
	var spec VideoSpec
	if cfg.VideoSpec != nil {
		spec = *cfg.VideoSpec
	}
	var method dom.SelectionMethod
	if cfg != nil {
		method = cfg.SelectionMethod
	}
	log := logger.FromContext(ctx)

	regCtx, release := t.regs.track(ctx)

	// Resolve the target once; only events whose element it contains pass.
	var targetMu sync.Mutex
	var target dom.Element
	go func() {
		el, err := t.root.GetAmpElement(regCtx, contextEl, selector, method)
		if err != nil {
			return
		}
		targetMu.Lock()
		target = el
		targetMu.Unlock()
	}()

	var secondsPlayedCount int
	unsubObs := t.sessions.Subscribe(func(ev dom.VideoSessionEvent) {
		tag := ev.Tag
		if tag == dom.VideoSessionVisible {
			// A becomes-visible session event is a session start.
			tag = dom.VideoSession
		}
		if string(tag) != eventType {
			return
		}
		if tag == dom.VideoSecondsPlayed {
			if spec.Interval == 0 {
				log.Error("video-seconds-played requires a non-zero interval in videoSpec", "selector", selector)
				return
			}
			secondsPlayedCount++
			if secondsPlayedCount%spec.Interval != 0 {
				return
			}
		}
		if ev.Tag == dom.VideoSessionVisible && !spec.EndSessionWhenInvisible {
			return
		}
		if spec.ExcludeAutoplay && ev.Autoplay {
			return
		}
		targetMu.Lock()
		resolved := target
		targetMu.Unlock()
		if resolved == nil || !resolved.Contains(ev.Element) {
			return
		}
		listener(NewEvent(ev.Element, eventType, ev.Details))
	})

	return func() {
		release()
		unsubObs()
	}, nil
}

func (t *VideoEventTracker) Dispose() {
	t.regs.cancelAll()
	t.unlistenRoot()
	t.sessions.RemoveAll()
}
