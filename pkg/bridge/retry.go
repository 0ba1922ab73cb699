package bridge

import (
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/whiteboard-sdk/whiteboard.go/pkg/constants"
)

// Retryer paces the dial-and-join attempts of a session. attempt counts
// the retries so far, starting at 0; lastErr is why the previous attempt
// failed. Reset is called once a session rejoined.
type Retryer interface {
	NextDelay(attempt int, lastErr error) (time.Duration, bool)
	Reset()
}

// Backoff multiplies the wait by Factor after every failed attempt, from
// Initial up to Max. Spread moves each wait by a random fraction in
// [-Spread, Spread] so members dropped together do not rejoin in
// lockstep. A join the engine itself timed out waits Max right away.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
	Spread  float64

	// Attempts caps the retries; 0 leaves it to the session timeout.
	Attempts int

	// Rand returns a value in [0, 1). Nil uses math/rand.
	Rand func() float64
}

func NewBackoff() *Backoff {
	return &Backoff{
		Initial: 500 * time.Millisecond,
		Max:     10 * time.Second,
		Factor:  2,
		Spread:  0.3,
	}
}

func (b *Backoff) NextDelay(attempt int, lastErr error) (time.Duration, bool) {
	if b.Attempts > 0 && attempt >= b.Attempts {
		return 0, false
	}

	wait := float64(b.Max)
	if !errors.Is(lastErr, constants.ErrConnectionTimeout) {
		wait = math.Min(float64(b.Initial)*math.Pow(b.Factor, float64(attempt)), float64(b.Max))
	}
	if b.Spread > 0 {
		draw := rand.Float64
		if b.Rand != nil {
			draw = b.Rand
		}
		wait += wait * b.Spread * (2*draw() - 1)
	}
	if wait < 0 {
		wait = 0
	}
	return time.Duration(wait), true
}

func (b *Backoff) Reset() {}

// FixedDelay waits Delay before every retry.
type FixedDelay struct {
	Delay time.Duration

	// Attempts caps the retries; 0 leaves it to the session timeout.
	Attempts int
}

func NewFixedDelay(delay time.Duration, attempts int) *FixedDelay {
	return &FixedDelay{Delay: delay, Attempts: attempts}
}

func (f *FixedDelay) NextDelay(attempt int, _ error) (time.Duration, bool) {
	if f.Attempts > 0 && attempt >= f.Attempts {
		return 0, false
	}
	return f.Delay, true
}

func (f *FixedDelay) Reset() {}

// Budget bounds a Retryer by the session timeout: no wait it hands out
// ends after Deadline.
type Budget struct {
	Retryer  Retryer
	Deadline time.Time
}

// Next returns the wait before retry attempt, as seen at now.
func (b Budget) Next(now time.Time, attempt int, lastErr error) (time.Duration, bool) {
	wait, ok := b.Retryer.NextDelay(attempt, lastErr)
	if !ok {
		return 0, false
	}
	left := b.Deadline.Sub(now)
	if left < 0 {
		left = 0
	}
	return min(wait, left), true
}
