// Package session launches worker sessions and delivers text into them. All
// waiting is bounded polling against the rendered terminal; there is no
// structured channel to the worker CLIs.
package session

import "time"

// Sleeper pauses for the given duration. Injectable so tests run instantly.
type Sleeper func(time.Duration)

// Clock returns the current time. Injectable alongside Sleeper.
type Clock func() time.Time

// PollPolicy bounds a polling wait: fixed interval, hard maximum, and a grace
// period before negative evidence (a bare shell prompt) may be trusted.
type PollPolicy struct {
	// Interval between capture ticks.
	Interval time.Duration
	// MaxWait is the hard ceiling; polling never blocks longer.
	MaxWait time.Duration
	// Grace is the minimum elapsed time before a shell prompt counts as a
	// failed launch. Shells echo the command line for a moment before the
	// worker takes over the screen.
	Grace time.Duration
}

// DefaultLaunchPolicy is tuned for worker CLIs that draw their first prompt
// within a few seconds on a warm machine.
func DefaultLaunchPolicy() PollPolicy {
	return PollPolicy{
		Interval: 2 * time.Second,
		MaxWait:  45 * time.Second,
		Grace:    6 * time.Second,
	}
}

// InjectTiming bounds one injection attempt.
type InjectTiming struct {
	// TextSettle separates the literal text from the activation key. Batching
	// them makes these CLIs drop one or the other.
	TextSettle time.Duration
	// KeySettle is the wait after the activation key before re-capturing.
	KeySettle time.Duration
	// AmbiguousWait is the extra pause when the capture is inconclusive,
	// taken instead of a resend to avoid duplicate submission.
	AmbiguousWait time.Duration
}

// DefaultInjectTiming matches the rhythm interactive worker CLIs tolerate.
func DefaultInjectTiming() InjectTiming {
	return InjectTiming{
		TextSettle:    500 * time.Millisecond,
		KeySettle:     2 * time.Second,
		AmbiguousWait: 3 * time.Second,
	}
}
