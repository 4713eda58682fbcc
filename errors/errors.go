package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind classifies an error by how the pipeline must react to it.
type Kind int

const (
	// KindInternal is a programming or environment fault.
	KindInternal Kind = iota
	// KindFragment is a per-fragment failure, recoverable by dropping the fragment.
	KindFragment
	// KindContract means a stage cannot satisfy the contract; the pass aborts.
	KindContract
	// KindTransport means a source could not reach storage or a peer; the pass aborts.
	KindTransport
	// KindResource means a unit of work cannot fit the memory ceiling.
	KindResource
	// KindInvalid is invalid caller input or configuration.
	KindInvalid
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindFragment:
		return "fragment"
	case KindContract:
		return "contract"
	case KindTransport:
		return "transport"
	case KindResource:
		return "resource"
	case KindInvalid:
		return "invalid"
	default:
		return "internal"
	}
}

// AppError is the unified pipeline error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Kind decides whether the failure is recoverable.
	Kind Kind `json:"-"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// HTTPStatus is the status the worker endpoint answers with.
	HTTPStatus int `json:"-"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, kind Kind, message string) *AppError {
	return &AppError{
		Code:       code,
		Kind:       kind,
		Message:    message,
		HTTPStatus: statusFor(kind),
		Retryable:  IsRetryableCode(code),
	}
}

func statusFor(kind Kind) int {
	switch kind {
	case KindContract, KindInvalid:
		return http.StatusBadRequest
	case KindFragment:
		return http.StatusUnprocessableEntity
	case KindTransport:
		return http.StatusBadGateway
	case KindResource:
		return http.StatusInsufficientStorage
	default:
		return http.StatusInternalServerError
	}
}

// --- Constructors ---

// IncompatibleContract creates an error for a stage that cannot satisfy a contract.
func IncompatibleContract(stage, reason string) *AppError {
	return New(ErrCodeIncompatibleContract, KindContract,
		fmt.Sprintf("%s cannot satisfy contract: %s", stage, reason)).
		WithDetail("stage", stage)
}

// UnknownVariable creates an error for a variable a source does not provide.
func UnknownVariable(stage, variable string) *AppError {
	return New(ErrCodeUnknownVariable, KindContract,
		fmt.Sprintf("%s has no variable %q", stage, variable)).
		WithDetail("stage", stage).
		WithDetail("variable", variable)
}

// TypeMismatch creates an error for a data object of an unexpected variant.
func TypeMismatch(stage, want, got string) *AppError {
	return New(ErrCodeTypeMismatch, KindContract,
		fmt.Sprintf("%s expects %s data, got %s", stage, want, got)).
		WithDetail("stage", stage)
}

// DataIntegrity creates an error for a malformed fragment.
func DataIntegrity(domain int, reason string) *AppError {
	return New(ErrCodeDataIntegrity, KindFragment,
		fmt.Sprintf("domain %d is malformed: %s", domain, reason)).
		WithDetail("domain", domain)
}

// FragmentFailed creates an error for a per-fragment transform failure.
func FragmentFailed(stage string, domain int, cause error) *AppError {
	return New(ErrCodeFragmentFailed, KindFragment,
		fmt.Sprintf("%s failed on domain %d", stage, domain)).
		WithDetail("stage", stage).
		WithDetail("domain", domain).
		WithCause(cause)
}

// TransportFailure creates an error for unreachable storage or peers.
func TransportFailure(target string, cause error) *AppError {
	return New(ErrCodeTransport, KindTransport,
		fmt.Sprintf("unable to reach %s", target)).
		WithDetail("target", target).
		WithCause(cause)
}

// Timeout creates an error for an operation that timed out.
func Timeout(operation string) *AppError {
	return New(ErrCodeTimeout, KindTransport, "operation timed out").
		WithDetail("operation", operation)
}

// MalformedFrame creates an error for an undecodable wire frame.
func MalformedFrame(reason string) *AppError {
	return New(ErrCodeMalformedFrame, KindTransport, "malformed frame: "+reason)
}

// CircuitOpen creates an error for a peer whose calls are suspended.
func CircuitOpen(target string) *AppError {
	e := New(ErrCodeCircuitOpen, KindTransport, fmt.Sprintf("calls to %s are suspended after repeated failures", target)).
		WithDetail("target", target)
	e.HTTPStatus = http.StatusServiceUnavailable
	return e
}

// Busy creates an error for a request rejected because every slot is taken.
func Busy(target string, slots int) *AppError {
	e := New(ErrCodeBusy, KindTransport, fmt.Sprintf("%s is busy", target)).
		WithDetail("target", target).
		WithDetail("slots", slots)
	e.HTTPStatus = http.StatusServiceUnavailable
	return e
}

// ResourceExhausted creates an error for work that cannot fit a limit.
func ResourceExhausted(resource string, need, limit int64) *AppError {
	return New(ErrCodeResourceExhausted, KindResource,
		fmt.Sprintf("%s needs %d bytes, limit is %d", resource, need, limit)).
		WithDetail("resource", resource).
		WithDetail("need", need).
		WithDetail("limit", limit)
}

// NotFound creates an error for a resource that was not found.
func NotFound(resource, id string) *AppError {
	e := New(ErrCodeNotFound, KindInvalid, fmt.Sprintf("the requested %s was not found", resource)).
		WithDetail("resource", resource)
	e.HTTPStatus = http.StatusNotFound
	if id != "" {
		e.WithDetail("id", id)
	}
	return e
}

// InvalidInput creates an error for invalid input.
func InvalidInput(field, reason string) *AppError {
	e := New(ErrCodeInvalidInput, KindInvalid, "invalid input: "+reason)
	if field != "" {
		e.WithDetail("field", field)
	}
	return e
}

// Validation creates an error for struct validation failures.
func Validation(message string) *AppError {
	return New(ErrCodeInvalidInput, KindInvalid, message)
}

// InvalidState creates an error for an illegal state transition.
func InvalidState(from, to string) *AppError {
	return New(ErrCodeInvalidState, KindInternal,
		fmt.Sprintf("illegal transition %s -> %s", from, to))
}

// Internal creates an error for an unexpected failure.
func Internal(cause error) *AppError {
	return New(ErrCodeInternal, KindInternal, "an unexpected error occurred").WithCause(cause)
}

// --- Classification ---

// AsAppError converts an error to an AppError if possible.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the kind of err. Errors that are not AppErrors are internal.
func KindOf(err error) Kind {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

// IsFragment reports whether err can be recovered by dropping one fragment.
func IsFragment(err error) bool {
	return err != nil && KindOf(err) == KindFragment
}

// IsFatal reports whether err must abort the pass.
func IsFatal(err error) bool {
	return err != nil && !IsFragment(err)
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Retryable
	}
	return false
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return stderrors.As(err, target) }

// Join returns an error wrapping errs, or nil when all are nil.
func Join(errs ...error) error { return stderrors.Join(errs...) }
