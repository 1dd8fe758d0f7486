package retry

import (
	"context"
	"testing"
	"time"

	soloErrors "github.com/mkrell/gosolo/pkg/errors"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.MaxAttempts != 3 {
		t.Errorf("Expected MaxAttempts = 3, got %d", config.MaxAttempts)
	}

	if config.BaseDelay != 100*time.Millisecond {
		t.Errorf("Expected BaseDelay = 100ms, got %v", config.BaseDelay)
	}

	if config.MaxDelay != 5*time.Second {
		t.Errorf("Expected MaxDelay = 5s, got %v", config.MaxDelay)
	}

	if !config.Jitter {
		t.Error("Expected Jitter = true")
	}
}

func TestDo_Success(t *testing.T) {
	ctx := context.Background()
	config := &Config{
		MaxAttempts: 3,
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    100 * time.Millisecond,
		Multiplier:  2.0,
		Jitter:      false,
	}

	callCount := 0
	fn := func() error {
		callCount++
		if callCount == 1 {
			return soloErrors.New(soloErrors.ErrorTypeNetwork, "test", "retryable error")
		}
		return nil // Success on second attempt
	}

	err := Do(ctx, config, fn)
	if err != nil {
		t.Errorf("Expected success, got error: %v", err)
	}

	if callCount != 2 {
		t.Errorf("Expected 2 calls, got %d", callCount)
	}
}

func TestDo_MaxAttemptsReached(t *testing.T) {
	ctx := context.Background()
	config := &Config{
		MaxAttempts: 2,
		BaseDelay:   1 * time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
		Multiplier:  2.0,
		Jitter:      false,
	}

	callCount := 0
	fn := func() error {
		callCount++
		return soloErrors.New(soloErrors.ErrorTypeNetwork, "test", "persistent error")
	}

	err := Do(ctx, config, fn)
	if err == nil {
		t.Error("Expected error after exhausting attempts")
	}

	if callCount != 2 {
		t.Errorf("Expected 2 calls, got %d", callCount)
	}
}

func TestDo_NonRetryableError(t *testing.T) {
	ctx := context.Background()

	callCount := 0
	fn := func() error {
		callCount++
		return soloErrors.New(soloErrors.ErrorTypeAuth, "authorize", "rejected")
	}

	err := Do(ctx, DefaultConfig(), fn)
	if err == nil {
		t.Error("Expected error")
	}

	if callCount != 1 {
		t.Errorf("Expected 1 call for non-retryable error, got %d", callCount)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	config := &Config{
		MaxAttempts: 5,
		BaseDelay:   50 * time.Millisecond,
		MaxDelay:    time.Second,
		Multiplier:  2.0,
		Jitter:      false,
	}

	fn := func() error {
		return soloErrors.New(soloErrors.ErrorTypeNetwork, "test", "retryable error")
	}

	err := Do(ctx, config, fn)
	if err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestDoWithResult(t *testing.T) {
	ctx := context.Background()
	config := &Config{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
		Multiplier:  2.0,
		Jitter:      false,
	}

	callCount := 0
	fn := func() (int, error) {
		callCount++
		if callCount < 3 {
			return 0, soloErrors.New(soloErrors.ErrorTypeNetwork, "test", "retryable error")
		}
		return 42, nil
	}

	result, err := DoWithResult(ctx, config, fn)
	if err != nil {
		t.Errorf("Expected success, got error: %v", err)
	}

	if result != 42 {
		t.Errorf("Expected result = 42, got %d", result)
	}
}

func TestCalculateDelay(t *testing.T) {
	config := &Config{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   time.Second,
		Multiplier: 2.0,
		Jitter:     false,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{5, time.Second}, // capped at MaxDelay
	}

	for _, tt := range tests {
		if got := config.calculateDelay(tt.attempt); got != tt.expected {
			t.Errorf("calculateDelay(%d) = %v, want %v", tt.attempt, got, tt.expected)
		}
	}
}
