package snapshot

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// retryableSubstrings classifies a failure as retryable by a small
// closed set of substrings found in the command's output, matching the
// classifier used by the docker_login step in the original pipeline.
var retryableSubstrings = []string{
	"error",
	"timeout",
	"connection",
	"network",
	"unauthorized",
	"authentication",
}

func isRetryableOutput(output string) bool {
	lower := strings.ToLower(output)
	for _, s := range retryableSubstrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// alwaysRetryable retries on every failure, regardless of output content.
// docker_login classifies failures by substring because some are outright
// rejections; docker build has no such distinction in the original
// pipeline (pod_manager.py:build_image retries unconditionally up to
// DOCKER_BUILD_MAX_RETRIES), so a Dockerfile syntax error, a full disk, or
// any other non-zero exit all get the same retry treatment as a daemon
// hiccup.
func alwaysRetryable(string) bool {
	return true
}

// retryWithBackoff runs attemptFn up to maxAttempts times with
// base*2^(attempt-1) backoff between attempts, stopping as soon as
// isSuccess reports true on the attempt's output. If an attempt returns
// no error but its output is neither a success nor retryable (per
// isRetryable), retries stop early; an attempt that returns an error is
// retried until maxAttempts without consulting isRetryable.
// Extracted as a single combinator per the retry-policy-reuse design
// note, replacing the inlined retry loops the original duplicates at
// each call site.
func retryWithBackoff(
	ctx context.Context,
	maxAttempts int,
	base time.Duration,
	attemptFn func(attempt int) (output string, err error),
	isSuccess func(output string) bool,
	isRetryable func(output string) bool,
) (string, error) {
	var lastOutput string
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		output, err := attemptFn(attempt)
		lastOutput = output

		if err == nil && isSuccess(output) {
			return output, nil
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("attempt %d did not succeed: %s", attempt, truncate(output, 500))
		}

		if attempt == maxAttempts {
			break
		}
		if err == nil && !isRetryable(output) {
			break
		}

		delay := base * time.Duration(1<<uint(attempt-1))
		select {
		case <-ctx.Done():
			return lastOutput, ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastOutput, lastErr
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
