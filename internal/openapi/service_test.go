package openapi

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestDocumentIsValidAndCached(t *testing.T) {
	svc := NewService(WithVersion("abc123"), WithBasePath("/devdirect-website"))

	first, err := svc.Document(context.Background())
	if err != nil {
		t.Fatalf("document: %v", err)
	}

	var doc struct {
		OpenAPI string `json:"openapi"`
		Info    struct {
			Version string `json:"version"`
		} `json:"info"`
		Servers []struct {
			URL string `json:"url"`
		} `json:"servers"`
		Paths map[string]json.RawMessage `json:"paths"`
	}
	if err := json.Unmarshal(first, &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Info.Version != "abc123" {
		t.Fatalf("expected version stamped, got %q", doc.Info.Version)
	}
	if len(doc.Servers) != 1 || doc.Servers[0].URL != "/devdirect-website" {
		t.Fatalf("unexpected servers: %+v", doc.Servers)
	}
	for _, path := range []string{"/api/services", "/api/services/{id}", "/api/selection", "/api/settings", "/api/media/validate"} {
		if _, ok := doc.Paths[path]; !ok {
			t.Fatalf("missing path %s", path)
		}
	}

	second, err := svc.Document(context.Background())
	if err != nil {
		t.Fatalf("second document: %v", err)
	}
	if &first[0] != &second[0] {
		t.Fatalf("expected cached document")
	}
}

func TestDocumentRejectsInvalidSource(t *testing.T) {
	svc := NewService(WithSource([]byte("openapi: 3.0.3\ninfo:\n  title: Broken\npaths: {}\n")))

	_, err := svc.Document(context.Background())
	if err == nil || !strings.Contains(err.Error(), "validate openapi document") {
		t.Fatalf("expected validation error, got %v", err)
	}
}
