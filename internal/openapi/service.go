package openapi

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var documentYAML []byte

// DocumentProvider exposes the OpenAPI document of the site API.
type DocumentProvider interface {
	Document(ctx context.Context) ([]byte, error)
}

// Service loads, validates and caches the embedded OpenAPI document.
type Service struct {
	version  string
	basePath string
	source   []byte

	mu    sync.Mutex
	cache []byte
}

// Option customises a Service.
type Option func(*Service)

// WithVersion stamps info.version with the build version.
func WithVersion(version string) Option {
	return func(s *Service) {
		s.version = strings.TrimSpace(version)
	}
}

// WithBasePath advertises the deployment base path as the server URL.
func WithBasePath(basePath string) Option {
	return func(s *Service) {
		s.basePath = strings.TrimSpace(basePath)
	}
}

// WithSource replaces the embedded document.
func WithSource(data []byte) Option {
	return func(s *Service) {
		if len(data) > 0 {
			s.source = data
		}
	}
}

// NewService constructs a Service with optional overrides.
func NewService(opts ...Option) *Service {
	s := &Service{source: documentYAML}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Document returns the validated document in JSON form.
func (s *Service) Document(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache != nil {
		return s.cache, nil
	}

	doc, err := s.buildDocument(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode openapi document: %w", err)
	}
	s.cache = raw
	return raw, nil
}

func (s *Service) buildDocument(ctx context.Context) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx

	doc, err := loader.LoadFromData(s.source)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}

	if s.version != "" {
		doc.Info.Version = s.version
	}
	if s.basePath != "" {
		doc.Servers = openapi3.Servers{&openapi3.Server{URL: s.basePath}}
	}

	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}
	return doc, nil
}
