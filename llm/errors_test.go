package llm

import (
	"errors"
	"testing"
	"time"
)

func TestIsRateLimitError(t *testing.T) {
	err := NewRateLimitError("rate limit exceeded", nil, nil)
	if !IsRateLimitError(err) {
		t.Error("Expected IsRateLimitError to return true for rate limit error")
	}

	regularErr := NewProviderError("some error", nil)
	if IsRateLimitError(regularErr) {
		t.Error("Expected IsRateLimitError to return false for non-rate-limit error")
	}
}

func TestIsRetryableError(t *testing.T) {
	if !IsRetryableError(NewRateLimitError("rate limit", nil, nil)) {
		t.Error("Expected rate limit error to be retryable")
	}
	if !IsRetryableError(NewUnavailableError("breaker open", nil)) {
		t.Error("Expected unavailable error to be retryable")
	}
	if IsRetryableError(NewProviderError("some error", nil)) {
		t.Error("Expected provider error to be non-retryable")
	}
	if IsRetryableError(errors.New("plain")) {
		t.Error("Expected plain error to be non-retryable")
	}
}

func TestExtractRetryAfter(t *testing.T) {
	retryAfter := 5 * time.Minute
	err := NewRateLimitError("rate limit", &retryAfter, nil)
	extracted := ExtractRetryAfter(err)
	if extracted == nil {
		t.Fatal("Expected non-nil retry after")
	}
	if *extracted != retryAfter {
		t.Errorf("Expected retry after %v, got %v", retryAfter, *extracted)
	}

	regularErr := NewProviderError("some error", nil)
	if ExtractRetryAfter(regularErr) != nil {
		t.Error("Expected nil retry after for non-rate-limit error")
	}
}

func TestErrorUnwrap(t *testing.T) {
	originalErr := errors.New("original error")
	wrappedErr := NewProviderError("wrapped", originalErr)
	if !errors.Is(wrappedErr, originalErr) {
		t.Error("Expected error to unwrap to original error")
	}
}

func TestErrorFromStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorType
	}{
		{429, ErrorTypeRateLimit},
		{408, ErrorTypeTimeout},
		{503, ErrorTypeUnavailable},
		{400, ErrorTypeInvalidRequest},
		{500, ErrorTypeProvider},
	}
	for _, tt := range tests {
		got := ErrorFromStatus(tt.status, "failed", nil)
		if got.Type != tt.want {
			t.Errorf("status %d: expected %s, got %s", tt.status, tt.want, got.Type)
		}
		if got.StatusCode != tt.status {
			t.Errorf("status %d: StatusCode not recorded", tt.status)
		}
	}
}
