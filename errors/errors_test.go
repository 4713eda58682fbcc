package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestAppError_New_Retryable(t *testing.T) {
	err := New(ErrCodeTransport, KindTransport, "down")
	if !err.Retryable {
		t.Error("TRANSPORT_FAILURE should be retryable")
	}
	if err.HTTPStatus != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", err.HTTPStatus)
	}
}

func TestAppError_New_NotRetryable(t *testing.T) {
	err := New(ErrCodeIncompatibleContract, KindContract, "no")
	if err.Retryable {
		t.Error("INCOMPATIBLE_CONTRACT should not be retryable")
	}
}

func TestAppError_ErrorString(t *testing.T) {
	err := TransportFailure("store", fmt.Errorf("refused"))
	if !strings.Contains(err.Error(), "cause: refused") {
		t.Errorf("expected cause in message, got %q", err.Error())
	}
	plain := IncompatibleContract("render", "image unsupported")
	if strings.Contains(plain.Error(), "cause") {
		t.Errorf("unexpected cause in %q", plain.Error())
	}
}

func TestConstructors_Kinds(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		kind Kind
		code ErrorCode
	}{
		{"incompatible", IncompatibleContract("f", "r"), KindContract, ErrCodeIncompatibleContract},
		{"unknown var", UnknownVariable("s", "v"), KindContract, ErrCodeUnknownVariable},
		{"type mismatch", TypeMismatch("s", "mesh", "image"), KindContract, ErrCodeTypeMismatch},
		{"integrity", DataIntegrity(3, "bad"), KindFragment, ErrCodeDataIntegrity},
		{"fragment", FragmentFailed("f", 2, nil), KindFragment, ErrCodeFragmentFailed},
		{"transport", TransportFailure("x", nil), KindTransport, ErrCodeTransport},
		{"timeout", Timeout("fetch"), KindTransport, ErrCodeTimeout},
		{"frame", MalformedFrame("short"), KindTransport, ErrCodeMalformedFrame},
		{"circuit", CircuitOpen("worker"), KindTransport, ErrCodeCircuitOpen},
		{"busy", Busy("worker", 4), KindTransport, ErrCodeBusy},
		{"resource", ResourceExhausted("domain 1", 10, 5), KindResource, ErrCodeResourceExhausted},
		{"invalid", InvalidInput("f", "r"), KindInvalid, ErrCodeInvalidInput},
		{"state", InvalidState("a", "b"), KindInternal, ErrCodeInvalidState},
		{"internal", Internal(nil), KindInternal, ErrCodeInternal},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err.Kind != tc.kind {
				t.Errorf("expected kind %s, got %s", tc.kind, tc.err.Kind)
			}
			if tc.err.Code != tc.code {
				t.Errorf("expected code %s, got %s", tc.code, tc.err.Code)
			}
		})
	}
}

func TestDataIntegrity_Details(t *testing.T) {
	err := DataIntegrity(7, "negative cell count")
	if err.Details["domain"] != 7 {
		t.Errorf("expected domain=7, got %v", err.Details["domain"])
	}
}

func TestKindOf_Wrapped(t *testing.T) {
	base := DataIntegrity(1, "x")
	wrapped := fmt.Errorf("stage: %w", base)
	if KindOf(wrapped) != KindFragment {
		t.Errorf("expected fragment kind through wrapping, got %s", KindOf(wrapped))
	}
	if !IsFragment(wrapped) {
		t.Error("expected IsFragment")
	}
	if KindOf(stderrors.New("plain")) != KindInternal {
		t.Error("plain errors should classify as internal")
	}
	if IsFragment(nil) {
		t.Error("nil must not be a fragment error")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(fmt.Errorf("w: %w", TransportFailure("a", nil))) {
		t.Error("expected retryable transport failure")
	}
	if !IsRetryable(Busy("worker", 1)) || IsRetryable(CircuitOpen("worker")) {
		t.Error("busy workers are retried, open circuits are not")
	}
	if IsRetryable(stderrors.New("plain")) {
		t.Error("plain errors are not retryable")
	}
}

func TestResponseRoundTrip(t *testing.T) {
	src := UnknownVariable("reader", "pressure")
	back := FromResponse(src.ToResponse(), src.HTTPStatus)
	if back.Kind != KindContract || back.Code != ErrCodeUnknownVariable {
		t.Errorf("unexpected rebuilt error %+v", back)
	}
	if back.Details["variable"] != "pressure" {
		t.Errorf("expected variable detail, got %v", back.Details)
	}
}
