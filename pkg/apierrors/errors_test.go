package apierrors

import (
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	apierrs "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

func TestToGRPCStatusMapsEachTaxonomyMember(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"runtime environment", NewRuntimeEnvironmentError("no kubeconfig found"), codes.FailedPrecondition},
		{"config", NewConfigError("missing %s", "REPO_NAME"), codes.FailedPrecondition},
		{"timeout", NewTimeoutError("pod %q not ready", "web"), codes.DeadlineExceeded},
		{"validation", NewValidationError("unknown exposure level %d", 9), codes.InvalidArgument},
		{"api", NewAPIError("failed to create pod", errors.New("connection refused")), codes.Internal},
		{"kubernetes status error", apierrs.NewNotFound(schema.GroupResource{Group: "", Resource: "pods"}, "web"), codes.Internal},
		{"unknown", errors.New("something else entirely"), codes.Unknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st, ok := status.FromError(ToGRPCStatus(tc.err))
			if !ok {
				t.Fatalf("expected a gRPC status error, got %v", tc.err)
			}
			if st.Code() != tc.want {
				t.Fatalf("got code %v, want %v", st.Code(), tc.want)
			}
		})
	}
}

func TestToGRPCStatusNilIsNil(t *testing.T) {
	if ToGRPCStatus(nil) != nil {
		t.Fatal("expected a nil error to map to nil")
	}
}

func TestAPIErrorUnwrapsToUnderlyingCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := NewAPIError("failed to list pods", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected APIError to unwrap to its underlying cause")
	}
}
