package analytics

import (
	"sync"
	"time"
)

// Clock abstracts the host clock so timer and buffering semantics are
// deterministic under test. The zero configuration uses SystemClock.
type Clock interface {
	Now() time.Time
	// AfterFunc runs fn once after d. The returned cancel is idempotent.
	AfterFunc(d time.Duration, fn func()) (cancel func())
	// Interval runs fn every d until the returned stop is called.
	Interval(d time.Duration, fn func()) (stop func())
}

type systemClock struct{}

// SystemClock returns a Clock backed by the time package.
func SystemClock() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

func (systemClock) Interval(d time.Duration, fn func()) func() {
	ticker := time.NewTicker(d)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				fn()
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}
