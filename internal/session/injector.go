package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/kingrea/dispatch/internal/logbook"
	"github.com/kingrea/dispatch/internal/worker"
)

// InjectionUncertainError is soft: attempts are exhausted but the session
// keeps running, and the text may well have landed. Callers log a warning
// instead of failing the operation.
type InjectionUncertainError struct {
	Session  string
	Attempts int
}

func (e *InjectionUncertainError) Error() string {
	return fmt.Sprintf("session: %s: injection unconfirmed after %d attempts", e.Session, e.Attempts)
}

// Injector delivers text into a running worker session with bounded retry.
type Injector struct {
	term   Terminal
	log    *logbook.Logbook
	sleep  Sleeper
	timing InjectTiming
}

// InjectorOption tunes an Injector.
type InjectorOption func(*Injector)

// WithInjectSleeper replaces the sleep function, used in tests.
func WithInjectSleeper(s Sleeper) InjectorOption {
	return func(i *Injector) { i.sleep = s }
}

// WithTiming overrides the attempt timing.
func WithTiming(t InjectTiming) InjectorOption {
	return func(i *Injector) { i.timing = t }
}

// NewInjector returns an injector over the given terminal.
func NewInjector(term Terminal, log *logbook.Logbook, opts ...InjectorOption) *Injector {
	inj := &Injector{term: term, log: log, sleep: time.Sleep, timing: DefaultInjectTiming()}
	for _, opt := range opts {
		opt(inj)
	}
	return inj
}

// Inject sends text to the session and confirms the worker accepted it.
//
// Per attempt: send the literal text, settle, send the activation key as a
// separate event, settle longer, then re-capture and classify. Acknowledged
// means ack markers are visible. Still-unsent (the text sits verbatim at the
// prompt) means the activation key was dropped: resend only the key, never
// the text. Anything else is ambiguous, including text gone with no marker,
// since a redraw can clear the prompt without the worker taking the input:
// wait longer and re-check rather than resend, because a duplicate submission
// is worse than a late one. Text that stays gone across the re-check is
// treated as delivered. Interrupt keys are never used here; they would abort
// unrelated in-flight work.
func (inj *Injector) Inject(name, text string, patterns worker.ScreenPatterns, maxAttempts int) error {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if err := inj.term.SendText(name, text); err != nil {
		return fmt.Errorf("session: %s: send text: %w", name, err)
	}
	inj.sleep(inj.timing.TextSettle)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := inj.term.SendKey(name, "Enter"); err != nil {
			return fmt.Errorf("session: %s: send activation key: %w", name, err)
		}
		inj.sleep(inj.timing.KeySettle)

		buffer, err := inj.term.Capture(name, 0)
		if err != nil {
			return fmt.Errorf("session: %s: capture: %w", name, err)
		}
		switch classifyDelivery(buffer, text, patterns) {
		case deliveryAcknowledged:
			return nil
		case deliveryStillUnsent:
			inj.log.With(name).Warn("activation key dropped, resending key (attempt %d/%d)", attempt, maxAttempts)
		case deliveryAmbiguous:
			inj.sleep(inj.timing.AmbiguousWait)
			recheck, err := inj.term.Capture(name, 0)
			if err != nil {
				return fmt.Errorf("session: %s: capture: %w", name, err)
			}
			switch classifyDelivery(recheck, text, patterns) {
			case deliveryAcknowledged:
				return nil
			case deliveryAmbiguous:
				// The text stayed gone across the extra wait: the worker
				// consumed it, the ack marker just never reached the screen.
				return nil
			case deliveryStillUnsent:
				// A redraw put the text back at the prompt.
				inj.log.With(name).Warn("activation key dropped, resending key (attempt %d/%d)", attempt, maxAttempts)
			}
		}
	}
	return &InjectionUncertainError{Session: name, Attempts: maxAttempts}
}

type deliveryState int

const (
	deliveryAcknowledged deliveryState = iota
	deliveryStillUnsent
	deliveryAmbiguous
)

// classifyDelivery reduces a post-injection capture to one of three verdicts.
// The marker text is the first line of the injected input; multi-line briefs
// wrap unpredictably at the prompt, the first line does not.
func classifyDelivery(buffer, text string, patterns worker.ScreenPatterns) deliveryState {
	if patterns.Acknowledged(buffer) {
		return deliveryAcknowledged
	}
	marker := firstLine(text)
	if marker == "" {
		return deliveryAmbiguous
	}
	if strings.Contains(buffer, marker) {
		return deliveryStillUnsent
	}
	// No ack marker and the text is not visible. That usually means the
	// worker consumed it, but a mid-redraw capture looks the same, so the
	// caller must wait and re-check before trusting it.
	return deliveryAmbiguous
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return strings.TrimSpace(text[:i])
	}
	return strings.TrimSpace(text)
}
