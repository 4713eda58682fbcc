package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Contract errors
const (
	// ErrCodeIncompatibleContract indicates a stage cannot satisfy the requested contract.
	ErrCodeIncompatibleContract ErrorCode = "INCOMPATIBLE_CONTRACT"
	// ErrCodeUnknownVariable indicates a contract names a variable the source does not have.
	ErrCodeUnknownVariable ErrorCode = "UNKNOWN_VARIABLE"
	// ErrCodeTypeMismatch indicates a data object of the wrong variant reached a stage.
	ErrCodeTypeMismatch ErrorCode = "TYPE_MISMATCH"
)

// Data errors
const (
	// ErrCodeDataIntegrity indicates a fetched fragment failed well-formedness checks.
	ErrCodeDataIntegrity ErrorCode = "DATA_INTEGRITY"
	// ErrCodeFragmentFailed indicates a per-fragment transform failed.
	ErrCodeFragmentFailed ErrorCode = "FRAGMENT_FAILED"
)

// Transport errors (retryable)
const (
	// ErrCodeTransport indicates a source could not reach its storage or peer.
	ErrCodeTransport ErrorCode = "TRANSPORT_FAILURE"
	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeMalformedFrame indicates a wire frame could not be decoded.
	ErrCodeMalformedFrame ErrorCode = "MALFORMED_FRAME"
	// ErrCodeCircuitOpen indicates calls to a peer are suspended after repeated failures.
	ErrCodeCircuitOpen ErrorCode = "CIRCUIT_OPEN"
)

// Resource errors
const (
	// ErrCodeResourceExhausted indicates a single unit of work cannot fit the memory ceiling.
	ErrCodeResourceExhausted ErrorCode = "RESOURCE_EXHAUSTED"
	// ErrCodeBusy indicates a worker has no free slot for another request.
	ErrCodeBusy ErrorCode = "BUSY"
	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
)

// Validation and internal errors
const (
	// ErrCodeInvalidInput indicates the input is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeInvalidState indicates an illegal pass state transition.
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"
	// ErrCodeInternal indicates an internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeTransport: true,
	ErrCodeTimeout:   true,
	ErrCodeBusy:      true,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
