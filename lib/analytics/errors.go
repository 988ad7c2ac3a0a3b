package analytics

import "errors"

// Configuration errors are user-caused and surface synchronously from Add.
var (
	ErrMissingClickSelector = errors.New("Missing required selector on click trigger")
	ErrMissingVideoSelector = errors.New("missing required selector on video trigger")
	ErrBadTimerSpec         = errors.New("bad timer specification")
	ErrMissingTimerInterval = errors.New("timer interval specification required")
	ErrBadTimerInterval     = errors.New("bad timer interval specification")
	ErrBadMaxTimerLength    = errors.New("bad maxTimerLength specification")
	ErrBadTimerStartSpec    = errors.New("bad timer start specification")
	ErrBadTimerStopSpec     = errors.New("bad timer stop specification")
	ErrBadWaitFor           = errors.New("unsupported waitFor value")
	ErrUnknownTrigger       = errors.New("unknown trigger kind")
	ErrTrackerNotAllowed    = errors.New("trigger kind not allowed in this context")
)
