package errors

// ErrorResponse is the JSON structure returned by the worker endpoint.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody contains the error details sent to clients.
type ErrorBody struct {
	Code      ErrorCode      `json:"code"`
	Kind      string         `json:"kind"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
}

// ToResponse converts an AppError to an ErrorResponse for JSON serialization.
func (e *AppError) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:      e.Code,
			Kind:      e.Kind.String(),
			Message:   e.Message,
			Retryable: e.Retryable,
			Details:   e.Details,
		},
	}
}

// FromResponse rebuilds an AppError from a decoded worker response.
func FromResponse(r ErrorResponse, status int) *AppError {
	kind := KindInternal
	for _, k := range []Kind{KindFragment, KindContract, KindTransport, KindResource, KindInvalid} {
		if k.String() == r.Error.Kind {
			kind = k
			break
		}
	}
	return &AppError{
		Code:       r.Error.Code,
		Kind:       kind,
		Message:    r.Error.Message,
		Retryable:  r.Error.Retryable,
		HTTPStatus: status,
		Details:    r.Error.Details,
	}
}
