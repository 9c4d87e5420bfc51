package client

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fastPolicy keeps the per-class shape but shrinks backoffs for tests.
func fastPolicy(attempts int) RetryPolicy {
	return func(class ErrorClass) RetryConfig {
		rc := RetryConfigForErrorClass(class)
		rc.MaxAttempts = attempts
		rc.InitialBackoff = rc.InitialBackoff / 100
		rc.MaxBackoff = rc.MaxBackoff / 100
		return rc
	}
}

func serverErr() error {
	return &ProviderError{StatusCode: 503, ErrorClass: ErrorClassServer, Message: "unavailable"}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", config.MaxAttempts)
	}
	if config.InitialBackoff != 500*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 500ms", config.InitialBackoff)
	}
	if config.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want 2.0", config.BackoffMultiplier)
	}
}

func TestRetryConfigForErrorClass(t *testing.T) {
	tests := []struct {
		name               string
		errorClass         ErrorClass
		wantInitialBackoff time.Duration
		wantMaxBackoff     time.Duration
	}{
		{
			name:               "server error",
			errorClass:         ErrorClassServer,
			wantInitialBackoff: 500 * time.Millisecond,
			wantMaxBackoff:     4 * time.Second,
		},
		{
			name:               "rate limit",
			errorClass:         ErrorClassRateLimit,
			wantInitialBackoff: 2 * time.Second,
			wantMaxBackoff:     8 * time.Second,
		},
		{
			name:               "network error",
			errorClass:         ErrorClassNetwork,
			wantInitialBackoff: 1 * time.Second,
			wantMaxBackoff:     5 * time.Second,
		},
		{
			name:               "unknown class uses default",
			errorClass:         ErrorClassClient,
			wantInitialBackoff: 500 * time.Millisecond,
			wantMaxBackoff:     5 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := RetryConfigForErrorClass(tt.errorClass)
			if config.InitialBackoff != tt.wantInitialBackoff {
				t.Errorf("InitialBackoff = %v, want %v", config.InitialBackoff, tt.wantInitialBackoff)
			}
			if config.MaxBackoff != tt.wantMaxBackoff {
				t.Errorf("MaxBackoff = %v, want %v", config.MaxBackoff, tt.wantMaxBackoff)
			}
		})
	}
}

func TestRetryWithBackoff_Success(t *testing.T) {
	callCount := 0
	err := retryWithBackoff(context.Background(), fastPolicy(3), func() error {
		callCount++
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
}

func TestRetryWithBackoff_SuccessAfterRetry(t *testing.T) {
	callCount := 0
	err := retryWithBackoff(context.Background(), fastPolicy(3), func() error {
		callCount++
		if callCount < 3 {
			return serverErr()
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls, got %d", callCount)
	}
}

func TestRetryWithBackoff_MaxAttemptsExhausted(t *testing.T) {
	callCount := 0
	err := retryWithBackoff(context.Background(), fastPolicy(3), func() error {
		callCount++
		return serverErr()
	})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Errorf("exhausted error should wrap the last ProviderError, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls (MaxAttempts), got %d", callCount)
	}
}

func TestRetryWithBackoff_ClientErrorNoRetry(t *testing.T) {
	callCount := 0
	clientErr := &ProviderError{StatusCode: 400, ErrorClass: ErrorClassClient, Message: "bad request"}
	err := retryWithBackoff(context.Background(), fastPolicy(3), func() error {
		callCount++
		return clientErr
	})

	if callCount != 1 {
		t.Errorf("Expected 1 call (no retry for client errors), got %d", callCount)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Error("Should not return ErrRetryExhausted for client errors")
	}
	if !errors.Is(err, clientErr) {
		t.Errorf("Expected original error, got %v", err)
	}
}

func TestRetryWithBackoff_PlainErrorIsNetwork(t *testing.T) {
	callCount := 0
	err := retryWithBackoff(context.Background(), fastPolicy(2), func() error {
		callCount++
		return errors.New("connection reset")
	})

	if callCount != 2 {
		t.Errorf("Expected 2 calls, got %d", callCount)
	}
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := func(class ErrorClass) RetryConfig {
		return RetryConfig{MaxAttempts: 3, InitialBackoff: time.Second, MaxBackoff: time.Second, BackoffMultiplier: 2}
	}

	callCount := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := retryWithBackoff(ctx, policy, func() error {
		callCount++
		return serverErr()
	})

	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Expected ErrContextCancelled, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled in chain, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call before cancellation, got %d", callCount)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("cancellation not honoured during backoff: %v", time.Since(start))
	}
}

func TestRetryWithBackoff_ContextDoneBeforeRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	callCount := 0
	err := retryWithBackoff(ctx, fastPolicy(3), func() error {
		callCount++
		cancel()
		return serverErr()
	})

	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Expected ErrContextCancelled, got %v", err)
	}
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Errorf("error should keep the ProviderError, got %v", err)
	}
}

func TestRetryWithBackoff_ExponentialBackoff(t *testing.T) {
	policy := func(ErrorClass) RetryConfig {
		return RetryConfig{
			MaxAttempts:       4,
			InitialBackoff:    10 * time.Millisecond,
			MaxBackoff:        time.Second,
			BackoffMultiplier: 2.0,
		}
	}

	var calls []time.Time
	_ = retryWithBackoff(context.Background(), policy, func() error {
		calls = append(calls, time.Now())
		return serverErr()
	})

	if len(calls) != 4 {
		t.Fatalf("Expected 4 calls, got %d", len(calls))
	}
	// Jitter is ±20%, so 10ms/20ms/40ms are at least 8ms/16ms/32ms.
	minGaps := []time.Duration{8 * time.Millisecond, 16 * time.Millisecond, 32 * time.Millisecond}
	for i, want := range minGaps {
		if gap := calls[i+1].Sub(calls[i]); gap < want {
			t.Errorf("gap %d = %v, want >= %v", i, gap, want)
		}
	}
}

func TestRetryWithBackoff_ClassSwitchUsesNewSchedule(t *testing.T) {
	var seen []ErrorClass
	policy := func(class ErrorClass) RetryConfig {
		seen = append(seen, class)
		return RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiplier: 2}
	}

	callCount := 0
	_ = retryWithBackoff(context.Background(), policy, func() error {
		callCount++
		if callCount == 1 {
			return serverErr()
		}
		return &ProviderError{StatusCode: 429, ErrorClass: ErrorClassRateLimit}
	})

	if len(seen) < 2 || seen[0] != ErrorClassServer || seen[1] != ErrorClassRateLimit {
		t.Errorf("policy classes = %v, want [server rate_limit ...]", seen)
	}
}

func TestRetryWithBackoff_MaxBackoffCap(t *testing.T) {
	policy := func(ErrorClass) RetryConfig {
		return RetryConfig{
			MaxAttempts:       4,
			InitialBackoff:    5 * time.Millisecond,
			MaxBackoff:        10 * time.Millisecond,
			BackoffMultiplier: 10.0,
		}
	}

	var calls []time.Time
	_ = retryWithBackoff(context.Background(), policy, func() error {
		calls = append(calls, time.Now())
		return serverErr()
	})

	// Capped at 10ms (+20% jitter) plus scheduling slack.
	for i := 1; i < len(calls); i++ {
		if gap := calls[i].Sub(calls[i-1]); gap > 100*time.Millisecond {
			t.Errorf("gap %d = %v, want capped near 10ms", i, gap)
		}
	}
}
