package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegistryHandlerExposesMetrics(t *testing.T) {
	registry := NewRegistry()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	registry.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Body.Len() == 0 {
		t.Fatalf("expected metrics body")
	}
}

func TestRegistryRegistersCustomCollector(t *testing.T) {
	registry := NewRegistry(WithoutDefaultCollectors())
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "site_test_total", Help: "test"})
	registry.Register(counter)
	counter.Inc()

	families, err := registry.Gatherer().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 1 || families[0].GetName() != "site_test_total" {
		t.Fatalf("unexpected families: %v", families)
	}
}

func TestNilRegistryHandlerIsNotFound(t *testing.T) {
	var registry *Registry

	rr := httptest.NewRecorder()
	registry.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	registry.Register(nil)
}
