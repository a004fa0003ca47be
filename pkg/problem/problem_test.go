package problem

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteStatusUsesStatusTextAndPath(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/services/missing", nil)

	WriteStatus(rr, req, http.StatusNotFound, "service missing not found", "trace-1")

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Fatalf("unexpected content type %q", ct)
	}

	var body Response
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Title != "Not Found" || body.Instance != "/api/services/missing" || body.TraceID != "trace-1" {
		t.Fatalf("unexpected problem body: %+v", body)
	}
}
