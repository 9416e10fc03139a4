package health

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsReadyRequiresBothStartupAndClientConnectivity(t *testing.T) {
	hc := NewHealthChecker(nil)
	if hc.IsReady() {
		t.Fatal("expected not ready before SetReady and with no client")
	}

	hc.SetReady(true)
	if hc.IsReady() {
		t.Fatal("expected not ready when the kubernetes client is unreachable, even after SetReady(true)")
	}
}

func TestLivenessHandlerAlwaysReportsOK(t *testing.T) {
	hc := NewHealthChecker(nil)
	rec := httptest.NewRecorder()
	hc.LivenessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestReadinessHandlerReflectsReadyState(t *testing.T) {
	hc := NewHealthChecker(nil)
	rec := httptest.NewRecorder()
	hc.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("got status %d, want %d before readiness", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestAttachHealthEndpointsRegistersBothRoutes(t *testing.T) {
	mux := http.NewServeMux()
	AttachHealthEndpoints(mux, NewHealthChecker(nil))

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code == http.StatusNotFound {
			t.Fatalf("expected %s to be registered", path)
		}
	}
}
