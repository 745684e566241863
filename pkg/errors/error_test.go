package errors_test

import (
	"errors"
	"fmt"
	"testing"

	. "codejudge/pkg/errors"
)

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code       ErrorCode
		wantStatus int
	}{
		{Success, 200},
		{InvalidParams, 400},
		{ValidationFailed, 400},
		{LanguageNotSupported, 400},
		{ProblemNotFound, 404},
		{CodeTooLarge, 413},
		{TooManyRequests, 429},
		{JudgeQueueFull, 503},
		{JudgeWaitTimeout, 504},
		{JudgeSystemError, 500},
	}

	for _, tt := range tests {
		t.Run(tt.code.Message(), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.wantStatus {
				t.Errorf("HTTPStatus() = %v, want %v", got, tt.wantStatus)
			}
		})
	}
}

func TestGetCodeThroughWrapping(t *testing.T) {
	base := New(JudgeQueueFull)
	wrapped := fmt.Errorf("submit run: %w", base)

	if got := GetCode(wrapped); got != JudgeQueueFull {
		t.Fatalf("expected %d, got %d", JudgeQueueFull, got)
	}
	if !Is(wrapped, JudgeQueueFull) {
		t.Fatalf("expected Is to see the wrapped code")
	}
	if GetCode(errors.New("plain")) != InternalServerError {
		t.Fatalf("expected plain errors to map to internal error")
	}
	if GetCode(nil) != Success {
		t.Fatalf("expected nil to map to success")
	}
}

func TestWrapf(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrapf(cause, CacheError, "store run %s failed", "abc")

	if err.Message != "store run abc failed" {
		t.Fatalf("unexpected message: %s", err.Message)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable through Unwrap")
	}
	if Wrapf(nil, CacheError, "x") != nil {
		t.Fatalf("expected nil for nil cause")
	}
}

func TestWrapKeepsExistingError(t *testing.T) {
	orig := New(NotFound).WithMessage("run not found")
	err := Wrap(fmt.Errorf("poll: %w", orig), SubmissionNotFound)

	if err != orig {
		t.Fatalf("expected wrap to reuse the existing error")
	}
	if err.Code != SubmissionNotFound {
		t.Fatalf("expected code %d, got %d", SubmissionNotFound, err.Code)
	}
	if err.Error() != "run not found" {
		t.Fatalf("expected message to be kept, got %s", err.Error())
	}
}

func TestValidationError(t *testing.T) {
	err := ValidationError("language", "unsupported")
	if err.Code != ValidationFailed {
		t.Fatalf("expected ValidationFailed, got %d", err.Code)
	}
	if err.Details["field"] != "language" || err.Details["reason"] != "unsupported" {
		t.Fatalf("unexpected details: %v", err.Details)
	}
	if err.Stack == "" {
		t.Fatalf("expected stack to be captured")
	}
}
