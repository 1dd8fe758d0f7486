package circuit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(999), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.state.String(); got != tt.expected {
				t.Errorf("State.String() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestNew_NilConfig(t *testing.T) {
	breaker := New(nil)

	if breaker.config == nil {
		t.Error("Expected default config when nil is passed")
	}

	if breaker.GetState() != StateClosed {
		t.Error("Expected initial state to be Closed")
	}
}

func TestExecute_OpensAfterMaxFailures(t *testing.T) {
	breaker := New(&Config{
		MaxFailures:     2,
		SuccessRequired: 1,
		Timeout:         time.Minute,
		ResetTimeout:    time.Minute,
	})

	ctx := context.Background()
	failing := func() error { return errors.New("sink down") }

	for i := 0; i < 2; i++ {
		if err := breaker.Execute(ctx, failing); err == nil {
			t.Fatal("expected failure")
		}
	}

	if breaker.GetState() != StateOpen {
		t.Errorf("Expected open state after max failures, got %s", breaker.GetState())
	}

	// Calls are rejected without invoking the function while open
	called := false
	err := breaker.Execute(ctx, func() error {
		called = true
		return nil
	})
	if err == nil {
		t.Error("Expected rejection while open")
	}
	if called {
		t.Error("Function should not run while circuit is open")
	}
}

func TestExecute_RecoversThroughHalfOpen(t *testing.T) {
	breaker := New(&Config{
		MaxFailures:     1,
		SuccessRequired: 1,
		Timeout:         time.Millisecond,
		ResetTimeout:    time.Minute,
	})

	ctx := context.Background()

	if err := breaker.Execute(ctx, func() error { return errors.New("boom") }); err == nil {
		t.Fatal("expected failure")
	}
	if breaker.GetState() != StateOpen {
		t.Fatalf("Expected open, got %s", breaker.GetState())
	}

	time.Sleep(5 * time.Millisecond)

	if err := breaker.Execute(ctx, func() error { return nil }); err != nil {
		t.Fatalf("Expected half-open probe to succeed: %v", err)
	}

	if breaker.GetState() != StateClosed {
		t.Errorf("Expected closed after successful probe, got %s", breaker.GetState())
	}
}

func TestExecuteWithResult(t *testing.T) {
	breaker := New(nil)

	got, err := ExecuteWithResult(context.Background(), breaker, func() (string, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("Expected 'ok', got %q", got)
	}
}

func TestReset(t *testing.T) {
	breaker := New(&Config{
		MaxFailures:     1,
		SuccessRequired: 1,
		Timeout:         time.Minute,
		ResetTimeout:    time.Minute,
	})

	_ = breaker.Execute(context.Background(), func() error { return errors.New("boom") })
	if breaker.GetState() != StateOpen {
		t.Fatal("expected open state")
	}

	breaker.Reset()
	if breaker.GetState() != StateClosed {
		t.Error("Expected closed state after reset")
	}
}
