package errors

import (
	goerrors "errors"
	"fmt"
)

// Kind classifies a crawl failure.
type Kind string

const (
	KindContextStale      Kind = "CONTEXT_STALE"
	KindNavigationFailure Kind = "NAVIGATION_FAILURE"
	KindControlNotFound   Kind = "CONTROL_NOT_FOUND"
	KindExtractionEmpty   Kind = "EXTRACTION_EMPTY"
	KindRetryExhausted    Kind = "RETRY_EXHAUSTED"
	KindTimeout           Kind = "TIMEOUT"
	KindConfig            Kind = "CONFIG"
	KindStorage           Kind = "STORAGE"
	KindInternal          Kind = "INTERNAL"
)

// CrawlError is the error type shared by every crawl component.
type CrawlError struct {
	Kind      Kind
	Op        string
	Message   string
	Cause     error
	Context   map[string]interface{}
	Retryable bool
}

// Error implements the error interface
func (e *CrawlError) Error() string {
	if e == nil {
		return "unknown crawl error"
	}
	prefix := fmt.Sprintf("[%s]", e.Kind)
	if e.Op != "" {
		prefix = fmt.Sprintf("[%s] %s", e.Kind, e.Op)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap allows errors.Is and errors.As to see the cause
func (e *CrawlError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches another CrawlError of the same kind, so sentinels like
// ErrContextStale work with errors.Is.
func (e *CrawlError) Is(target error) bool {
	t, ok := target.(*CrawlError)
	if !ok || e == nil {
		return false
	}
	return t.Op == "" && t.Message == "" && t.Kind == e.Kind
}

// WithContext adds a key to the error context and returns the error
func (e *CrawlError) WithContext(key string, value interface{}) *CrawlError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Kind sentinels for errors.Is.
var (
	ErrContextStale      = &CrawlError{Kind: KindContextStale}
	ErrNavigationFailure = &CrawlError{Kind: KindNavigationFailure}
	ErrControlNotFound   = &CrawlError{Kind: KindControlNotFound}
	ErrExtractionEmpty   = &CrawlError{Kind: KindExtractionEmpty}
	ErrRetryExhausted    = &CrawlError{Kind: KindRetryExhausted}
	ErrTimeout           = &CrawlError{Kind: KindTimeout}
	ErrConfig            = &CrawlError{Kind: KindConfig}
)

// retryableKinds are recovered by retrying the surrounding unit of work.
var retryableKinds = map[Kind]bool{
	KindContextStale:    true,
	KindControlNotFound: true,
	KindTimeout:         true,
}

// New creates a crawl error of the given kind
func New(kind Kind, op, message string) *CrawlError {
	return &CrawlError{
		Kind:      kind,
		Op:        op,
		Message:   message,
		Retryable: retryableKinds[kind],
	}
}

// Wrap creates a crawl error of the given kind around cause. A nil cause
// yields nil.
func Wrap(kind Kind, op string, cause error, message string) *CrawlError {
	if cause == nil {
		return nil
	}
	return &CrawlError{
		Kind:      kind,
		Op:        op,
		Message:   message,
		Cause:     cause,
		Retryable: retryableKinds[kind],
	}
}

// ContextStale reports that a resolved surface is no longer live.
func ContextStale(op string, cause error) *CrawlError {
	return &CrawlError{Kind: KindContextStale, Op: op, Message: "surface is no longer live", Cause: cause, Retryable: true}
}

// NavigationFailure reports a menu node that could not be found or expanded.
func NavigationFailure(op, label, message string) *CrawlError {
	return New(KindNavigationFailure, op, message).WithContext("label", label)
}

// ControlNotFound reports a filter, export or pagination control that no probe located.
func ControlNotFound(op, control string) *CrawlError {
	return New(KindControlNotFound, op, fmt.Sprintf("control %q not found", control)).WithContext("control", control)
}

// Timeout reports a bounded wait that expired.
func Timeout(op, what string) *CrawlError {
	return New(KindTimeout, op, fmt.Sprintf("timed out waiting for %s", what))
}

// ConfigError reports invalid or missing configuration.
func ConfigError(message string, cause error) *CrawlError {
	return &CrawlError{Kind: KindConfig, Op: "config", Message: message, Cause: cause}
}

// StorageError reports a persistence failure.
func StorageError(message string, cause error) *CrawlError {
	return &CrawlError{Kind: KindStorage, Op: "storage", Message: message, Cause: cause}
}

// KindOf returns the kind of the first CrawlError in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ce *CrawlError
	if goerrors.As(err, &ce) {
		return ce.Kind
	}
	return KindInternal
}

// IsRetryable reports whether err should consume a retry attempt rather than
// abort. Errors outside the taxonomy are treated as retryable because browser
// protocol failures are usually transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ce *CrawlError
	if goerrors.As(err, &ce) {
		return ce.Retryable
	}
	return true
}

// Is and As re-export the standard helpers so callers need one import.
func Is(err, target error) bool { return goerrors.Is(err, target) }

func As(err error, target any) bool { return goerrors.As(err, target) }
