// Package errs defines the error-kind taxonomy shared across the archiver's
// stages and adapters.
package errs

import "fmt"

// Kind discriminates the category of an Error. Retryability and fatality
// are properties of the Kind, not of the call site.
type Kind string

const (
	KindConfiguration     Kind = "configuration"      // not retryable, fail-fast at startup
	KindLockHeld          Kind = "lock-held"           // not retryable, exit 1
	KindConfigurationStore Kind = "configuration-store" // retryable
	KindArchiveStore      Kind = "archive-store"       // retryable
	KindFCLPreparation    Kind = "fcl-preparation"     // retryable
	KindBlobCreation      Kind = "blob-creation"       // retryable
	KindVerification      Kind = "verification"        // retryable (MD5 mismatch)
	KindReporting         Kind = "reporting"           // not retryable, swallowed/logged only
	KindPermanentSkip     Kind = "permanent-skip"      // not retryable, fuzz-mode only
)

// Retryable reports whether an error of this Kind is eligible for the
// stage-engine retry loop.
func (k Kind) Retryable() bool {
	switch k {
	case KindConfigurationStore, KindArchiveStore, KindFCLPreparation, KindBlobCreation, KindVerification:
		return true
	default:
		return false
	}
}

// Fatal reports whether an error of this Kind should abort the dispatcher
// immediately, bypassing retry and failure-log bookkeeping.
func (k Kind) Fatal() bool {
	return k == KindConfiguration || k == KindLockHeld
}

// Error is the single concrete error type used throughout the archiver. It
// carries the originating stage, the run number if known, structured
// diagnostic key/values, and the wrapped underlying cause.
type Error struct {
	Kind    Kind
	Stage   string
	Run     *int
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s", e.Kind)
	if e.Stage != "" {
		msg = fmt.Sprintf("%s[%s]", msg, e.Stage)
	}
	if e.Run != nil {
		msg = fmt.Sprintf("%s run=%d", msg, *e.Run)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, errs.Kind) style checks via a sentinel wrapper;
// callers typically compare e.Kind directly after an errors.As.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return te.Kind == e.Kind
}

// New constructs an Error of the given kind, wrapping cause and attaching
// stage/run/detail context.
func New(kind Kind, stage string, run *int, cause error, details map[string]any) *Error {
	return &Error{Kind: kind, Stage: stage, Run: run, Err: cause, Details: details}
}

// Sentinel returns an unwrapped sentinel of a given Kind, used for
// errors.Is-style comparisons against a bare kind value.
func Sentinel(kind Kind) *Error { return &Error{Kind: kind} }
