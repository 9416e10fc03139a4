// Package apierrors defines the error taxonomy used across the container
// maker service and maps it onto gRPC status codes at the wire boundary.
package apierrors

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	apierrs "k8s.io/apimachinery/pkg/api/errors"
)

// RuntimeEnvironmentError signals that the process is not running in a
// context where it can obtain a Kubernetes client (no in-cluster config,
// no kubeconfig). Mirrors UnsupportedRuntimeEnvironment.
type RuntimeEnvironmentError struct {
	Msg string
}

func (e *RuntimeEnvironmentError) Error() string { return e.Msg }

func NewRuntimeEnvironmentError(format string, args ...any) error {
	return &RuntimeEnvironmentError{Msg: fmt.Sprintf(format, args...)}
}

// APIError wraps a failure returned by the Kubernetes API server.
type APIError struct {
	Msg string
	Err error
}

func (e *APIError) Error() string { return e.Msg }
func (e *APIError) Unwrap() error { return e.Err }

func NewAPIError(context string, err error) error {
	return &APIError{Msg: fmt.Sprintf("%s: %v", context, err), Err: err}
}

// TimeoutError signals a poll loop (readiness, termination) exceeded its
// deadline.
type TimeoutError struct {
	Msg string
}

func (e *TimeoutError) Error() string { return e.Msg }

func NewTimeoutError(format string, args ...any) error {
	return &TimeoutError{Msg: fmt.Sprintf(format, args...)}
}

// ValidationError signals a malformed request (missing field, unknown
// exposure level, inconsistent container spec).
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func NewValidationError(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ConfigError signals the service itself is misconfigured (no
// snapshotter wired in, missing registry credentials, unreadable
// certificate material).
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return e.Msg }

func NewConfigError(format string, args ...any) error {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// ToGRPCStatus maps an error from the taxonomy above (or a raw
// Kubernetes *apierrs.StatusError, or any other error) onto a gRPC
// status, following the per-exception-type mapping of the original
// service's RPC servicer.
func ToGRPCStatus(err error) error {
	if err == nil {
		return nil
	}

	var runtimeErr *RuntimeEnvironmentError
	var apiErr *APIError
	var timeoutErr *TimeoutError
	var validationErr *ValidationError
	var configErr *ConfigError
	var k8sStatusErr *apierrs.StatusError

	switch {
	case errors.As(err, &runtimeErr):
		return status.Error(codes.FailedPrecondition, runtimeErr.Msg)
	case errors.As(err, &configErr):
		return status.Error(codes.FailedPrecondition, configErr.Msg)
	case errors.As(err, &timeoutErr):
		return status.Error(codes.DeadlineExceeded, timeoutErr.Msg)
	case errors.As(err, &validationErr):
		return status.Error(codes.InvalidArgument, validationErr.Msg)
	case errors.As(err, &apiErr):
		return status.Error(codes.Internal, apiErr.Msg)
	case errors.As(err, &k8sStatusErr):
		return status.Error(codes.Internal, fmt.Sprintf("kubernetes api error: %v", k8sStatusErr))
	default:
		return status.Error(codes.Unknown, err.Error())
	}
}
