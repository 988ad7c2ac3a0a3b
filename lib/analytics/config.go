package analytics

import (
	"fmt"
	"time"

	"github.com/pomeroyr/amphtml/lib/dom"
)

// TriggerConfig describes one configured trigger. Nested specs use pointers
// so absent and zero-valued fields stay distinguishable.
type TriggerConfig struct {
	// On names the condition; it selects the tracker variant.
	On string `json:"on,omitempty"`
	// Selector scopes the trigger to an element; defaults vary per tracker.
	Selector        string              `json:"selector,omitempty"`
	SelectionMethod dom.SelectionMethod `json:"selectionMethod,omitempty"`

	TimerSpec      *TimerSpec      `json:"timerSpec,omitempty"`
	VideoSpec      *VideoSpec      `json:"videoSpec,omitempty"`
	VisibilitySpec *VisibilitySpec `json:"visibilitySpec,omitempty"`
}

// TimerSpec configures a timer trigger. Start and stop conditions are
// themselves trigger specs, resolved recursively through the registry.
type TimerSpec struct {
	// Interval between fires, in seconds. Required; minimum 0.5.
	Interval *float64 `json:"interval,omitempty"`
	// MaxTimerLength caps an unstoppable timer, in seconds. Default 7200.
	MaxTimerLength *float64 `json:"maxTimerLength,omitempty"`
	// Immediate fires once at start in addition to the interval. Default true.
	Immediate *bool `json:"immediate,omitempty"`

	StartSpec *TriggerConfig `json:"startSpec,omitempty"`
	StopSpec  *TriggerConfig `json:"stopSpec,omitempty"`
}

// VideoSpec configures a video trigger.
type VideoSpec struct {
	Selector string `json:"selector,omitempty"`
	// Interval samples video-seconds-played occurrences: only every Nth
	// occurrence passes through. Required non-zero for that event type.
	Interval                int  `json:"interval,omitempty"`
	EndSessionWhenInvisible bool `json:"end-session-when-invisible,omitempty"`
	ExcludeAutoplay         bool `json:"exclude-autoplay,omitempty"`
}

// VisibilitySpec configures a visibility trigger. Threshold fields are
// forwarded untouched to the visibility computation service.
type VisibilitySpec struct {
	Selector        string              `json:"selector,omitempty"`
	SelectionMethod dom.SelectionMethod `json:"selectionMethod,omitempty"`
	// WaitFor gates reporting behind another tracker's readiness signal.
	// One of "none", "ini-load", "render-start". Defaults to "none" without a
	// selector and "ini-load" with one.
	WaitFor string `json:"waitFor,omitempty"`

	VisiblePercentageMin float64 `json:"visiblePercentageMin,omitempty"`
	VisiblePercentageMax float64 `json:"visiblePercentageMax,omitempty"`
	// Times are in milliseconds, matching the configuration surface.
	TotalTimeMin      int `json:"totalTimeMin,omitempty"`
	ContinuousTimeMin int `json:"continuousTimeMin,omitempty"`
}

// Params converts the configured thresholds for the visibility service.
func (s *VisibilitySpec) Params() dom.VisibilityParams {
	if s == nil {
		return dom.VisibilityParams{}
	}
	return dom.VisibilityParams{
		VisiblePercentageMin: s.VisiblePercentageMin,
		VisiblePercentageMax: s.VisiblePercentageMax,
		TotalTimeMin:         time.Duration(s.TotalTimeMin) * time.Millisecond,
		ContinuousTimeMin:    time.Duration(s.ContinuousTimeMin) * time.Millisecond,
	}
}

const (
	minTimerIntervalSeconds      = 0.5
	defaultMaxTimerLengthSeconds = 7200
)

// timerConfig is a TimerSpec with defaults applied and units resolved.
type timerConfig struct {
	interval  time.Duration
	maxLength time.Duration
	immediate bool
	startSpec *TriggerConfig
	stopSpec  *TriggerConfig
}

func parseTimerSpec(cfg *TriggerConfig) (*timerConfig, error) {
	if cfg == nil || cfg.TimerSpec == nil {
		return nil, ErrBadTimerSpec
	}
	spec := cfg.TimerSpec
	if spec.Interval == nil {
		return nil, ErrMissingTimerInterval
	}
	if *spec.Interval < minTimerIntervalSeconds {
		return nil, fmt.Errorf("%w: %v", ErrBadTimerInterval, *spec.Interval)
	}
	maxLength := float64(defaultMaxTimerLengthSeconds)
	if spec.MaxTimerLength != nil {
		maxLength = *spec.MaxTimerLength
	}
	if maxLength <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrBadMaxTimerLength, maxLength)
	}
	if spec.StopSpec != nil && spec.StartSpec == nil {
		return nil, fmt.Errorf("%w: stopSpec requires startSpec", ErrBadTimerStopSpec)
	}
	immediate := true
	if spec.Immediate != nil {
		immediate = *spec.Immediate
	}
	return &timerConfig{
		interval:  time.Duration(*spec.Interval * float64(time.Second)),
		maxLength: time.Duration(maxLength * float64(time.Second)),
		immediate: immediate,
		startSpec: spec.StartSpec,
		stopSpec:  spec.StopSpec,
	}, nil
}

// ValidateTrigger checks a trigger configuration the way registration would,
// without arming anything. Nested timer start/stop specs are validated
// recursively.
func ValidateTrigger(cfg *TriggerConfig) error {
	if cfg == nil || cfg.On == "" {
		return fmt.Errorf("%w: missing 'on'", ErrUnknownTrigger)
	}
	kind, err := KindForOn(cfg.On)
	if err != nil {
		return err
	}
	switch kind {
	case KindClick:
		if cfg.Selector == "" {
			return ErrMissingClickSelector
		}
	case KindTimer:
		tc, err := parseTimerSpec(cfg)
		if err != nil {
			return err
		}
		for _, nested := range []*TriggerConfig{tc.startSpec, tc.stopSpec} {
			if nested == nil {
				continue
			}
			nestedKind, err := KindForOn(nested.On)
			if err != nil {
				return err
			}
			if !timerWhitelist[nestedKind.storageKey()] {
				return fmt.Errorf("%w: %q inside timerSpec", ErrTrackerNotAllowed, nested.On)
			}
			if err := ValidateTrigger(nested); err != nil {
				return err
			}
		}
	case KindVideo:
		if videoSelector(cfg) == "" {
			return ErrMissingVideoSelector
		}
	case KindVisible:
		spec := cfg.VisibilitySpec
		if spec != nil && spec.WaitFor != "" && spec.WaitFor != waitForNone {
			if _, err := waitForKind(spec.WaitFor); err != nil {
				return err
			}
		}
	}
	return nil
}
