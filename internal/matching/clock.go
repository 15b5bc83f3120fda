package matching

import "time"

// Clock abstracts wall time and tickers so tests can drive matching cycles
// without real waits.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker is the cancellable periodic signal driving one profile's loop.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// realClock is the production Clock.
type realClock struct{}

// NewRealClock returns a Clock backed by the runtime.
func NewRealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{ticker: time.NewTicker(d)}
}

type realTicker struct {
	ticker *time.Ticker
}

func (t *realTicker) C() <-chan time.Time { return t.ticker.C }
func (t *realTicker) Stop()               { t.ticker.Stop() }
