package errors

import (
	"context"
	goerrors "errors"
)

// Outcome is the explicit result of one crawl operation. Callers branch on
// it instead of inspecting error text.
type Outcome int

const (
	OutcomeOk Outcome = iota
	OutcomeNotFound
	OutcomeStale
	OutcomeTimeout
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOk:
		return "ok"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeStale:
		return "stale"
	case OutcomeTimeout:
		return "timeout"
	default:
		return "failed"
	}
}

// OutcomeOf maps an error onto an Outcome. An exhausted retry reports the
// outcome of its last attempt.
func OutcomeOf(err error) Outcome {
	if err == nil {
		return OutcomeOk
	}
	if goerrors.Is(err, context.DeadlineExceeded) {
		return OutcomeTimeout
	}
	var ce *CrawlError
	if goerrors.As(err, &ce) && ce.Kind == KindRetryExhausted && ce.Cause != nil {
		return OutcomeOf(ce.Cause)
	}
	switch KindOf(err) {
	case KindControlNotFound, KindNavigationFailure:
		return OutcomeNotFound
	case KindContextStale:
		return OutcomeStale
	case KindTimeout:
		return OutcomeTimeout
	default:
		return OutcomeFailed
	}
}
