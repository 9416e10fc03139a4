// Package health exposes liveness/readiness HTTP endpoints on a
// dedicated port. Adapted from the teacher's health checker: readiness
// now reflects Kubernetes API connectivity instead of MCP session state.
package health

import (
	"net/http"
	"sync/atomic"

	"github.com/containermaker/container-maker-server/pkg/k8sclient"
)

// HealthChecker manages server health state.
type HealthChecker struct {
	// ready is an atomic flag that indicates startup readiness.
	ready  atomic.Bool
	client *k8sclient.Client
}

// NewHealthChecker builds a checker bound to the shared Kubernetes
// client; readiness requires both startup completion and live API
// connectivity.
func NewHealthChecker(client *k8sclient.Client) *HealthChecker {
	hc := &HealthChecker{client: client}
	hc.ready.Store(false)
	return hc
}

// SetReady sets the startup readiness state.
func (hc *HealthChecker) SetReady(ready bool) {
	hc.ready.Store(ready)
}

// IsReady returns the current readiness state: startup completed AND
// the Kubernetes client can reach the API server.
func (hc *HealthChecker) IsReady() bool {
	return hc.ready.Load() && hc.client.Ready()
}

// LivenessHandler returns an HTTP handler for liveness checks.
// Liveness checks only verify that the server is responding.
func (hc *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
}

// ReadinessHandler returns an HTTP handler for readiness checks.
// Readiness checks verify that the server is ready to receive requests.
func (hc *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hc.IsReady() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("not ready"))
		}
	})
}

// AttachHealthEndpoints attaches health check endpoints to the given ServeMux.
func AttachHealthEndpoints(mux *http.ServeMux, checker *HealthChecker) {
	mux.Handle("/healthz", checker.LivenessHandler())
	mux.Handle("/readyz", checker.ReadinessHandler())
}
