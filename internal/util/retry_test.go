package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

const testBackoff = 10 * time.Millisecond

func TestRetryWithBackoff_SuccessFirstTry(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), 3, testBackoff, func(attempt int) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestRetryWithBackoff_SuccessAfterRetries(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), 3, testBackoff, func(attempt int) error {
		calls++
		if attempt < 2 {
			return errors.New("firestore unavailable")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls (2 failures + 1 success), got %d", calls)
	}
}

func TestRetryWithBackoff_AllAttemptsExhausted(t *testing.T) {
	sentinel := errors.New("persistent error")
	calls := 0
	err := RetryWithBackoff(context.Background(), 2, testBackoff, func(attempt int) error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Expected wrapped sentinel error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls (maxRetries+1), got %d", calls)
	}
}

func TestRetryWithBackoff_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := RetryWithBackoff(ctx, 3, time.Hour, func(attempt int) error {
		calls++
		return errors.New("should not retry after cancellation")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected only the first attempt to run, got %d calls", calls)
	}
}

func TestRetryWithBackoff_BackoffIncreases(t *testing.T) {
	start := time.Now()
	_ = RetryWithBackoff(context.Background(), 2, testBackoff, func(attempt int) error {
		return errors.New("fail")
	})
	// 10ms + 20ms
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("Expected at least 30ms of backoff, got %v", elapsed)
	}
}
