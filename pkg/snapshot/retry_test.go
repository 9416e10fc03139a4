package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"
)

func alwaysSuccess(output string) bool { return output == "ok" }

func TestRetryWithBackoffSucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	output, err := retryWithBackoff(context.Background(), 3, time.Millisecond,
		func(attempt int) (string, error) { calls++; return "ok", nil },
		alwaysSuccess, isRetryableOutput)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output != "ok" {
		t.Fatalf("unexpected output: %q", output)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one attempt, got %d", calls)
	}
}

func TestRetryWithBackoffRetriesOnRetryableFailure(t *testing.T) {
	calls := 0
	output, err := retryWithBackoff(context.Background(), 3, time.Millisecond,
		func(attempt int) (string, error) {
			calls++
			if attempt < 3 {
				return "connection refused", nil
			}
			return "ok", nil
		},
		alwaysSuccess, isRetryableOutput)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output != "ok" {
		t.Fatalf("unexpected output: %q", output)
	}
	if calls != 3 {
		t.Fatalf("expected three attempts, got %d", calls)
	}
}

func TestRetryWithBackoffStopsEarlyOnNonRetryableFailure(t *testing.T) {
	calls := 0
	_, err := retryWithBackoff(context.Background(), 5, time.Millisecond,
		func(attempt int) (string, error) {
			calls++
			return "permission denied for user", nil
		},
		alwaysSuccess, isRetryableOutput)
	if err == nil {
		t.Fatal("expected an error when the output is never a success and never retryable")
	}
	if calls != 1 {
		t.Fatalf("expected to stop after the first non-retryable failure, got %d attempts", calls)
	}
}

func TestRetryWithBackoffExhaustsMaxAttempts(t *testing.T) {
	calls := 0
	_, err := retryWithBackoff(context.Background(), 2, time.Millisecond,
		func(attempt int) (string, error) {
			calls++
			return "timeout talking to registry", nil
		},
		alwaysSuccess, isRetryableOutput)
	if err == nil {
		t.Fatal("expected an error once max attempts are exhausted")
	}
	if calls != 2 {
		t.Fatalf("expected exactly maxAttempts calls, got %d", calls)
	}
}

func TestRetryWithBackoffPropagatesAttemptError(t *testing.T) {
	boom := errors.New("boom")
	_, err := retryWithBackoff(context.Background(), 1, time.Millisecond,
		func(attempt int) (string, error) { return "", boom },
		alwaysSuccess, isRetryableOutput)
	if !errors.Is(err, boom) {
		t.Fatalf("expected the underlying error to propagate, got %v", err)
	}
}

func TestRetryWithBackoffRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := retryWithBackoff(ctx, 3, time.Hour,
		func(attempt int) (string, error) {
			calls++
			return "connection reset", nil
		},
		alwaysSuccess, isRetryableOutput)
	if err == nil {
		t.Fatal("expected an error from a cancelled context")
	}
	if calls != 1 {
		t.Fatalf("expected one attempt before the cancellation check, got %d", calls)
	}
}

func TestIsRetryableOutput(t *testing.T) {
	cases := map[string]bool{
		"Login Succeeded":                 false,
		"connection reset by peer":        true,
		"unauthorized: access denied":     true,
		"TIMEOUT waiting for registry":    true,
		"permission denied for resource":  false,
		"network is unreachable":          true,
	}
	for output, want := range cases {
		if got := isRetryableOutput(output); got != want {
			t.Errorf("isRetryableOutput(%q) = %v, want %v", output, got, want)
		}
	}
}

func TestAlwaysRetryableIgnoresOutputContent(t *testing.T) {
	cases := []string{"", "ok", "syntax error in Dockerfile", "no space left on device", "connection reset"}
	for _, output := range cases {
		if !alwaysRetryable(output) {
			t.Errorf("alwaysRetryable(%q) = false, want true", output)
		}
	}
}

func TestRetryWithBackoffRetriesNonSubstringFailureWithAlwaysRetryable(t *testing.T) {
	calls := 0
	output, err := retryWithBackoff(context.Background(), 3, time.Millisecond,
		func(attempt int) (string, error) {
			calls++
			if attempt < 3 {
				return "no space left on device", nil
			}
			return "ok", nil
		},
		alwaysSuccess, alwaysRetryable)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output != "ok" {
		t.Fatalf("unexpected output: %q", output)
	}
	if calls != 3 {
		t.Fatalf("expected alwaysRetryable to keep retrying a non-substring-matching failure, got %d calls", calls)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello", 10); got != "hello" {
		t.Fatalf("short string should be unchanged, got %q", got)
	}
	if got := truncate("hello world", 5); got != "hello" {
		t.Fatalf("expected truncation to 5 chars, got %q", got)
	}
}
