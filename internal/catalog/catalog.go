// Package catalog holds the immutable list of services shown on the site.
//
// The catalog is decoded once from an embedded YAML document; nothing in the
// package adds, updates or removes services afterwards.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed services.yaml
var servicesYAML []byte

// Service describes one offering displayed on the site.
type Service struct {
	ID          string   `yaml:"id" json:"id"`
	Title       string   `yaml:"title" json:"title"`
	Summary     string   `yaml:"summary" json:"summary"`
	Description string   `yaml:"description" json:"description"`
	Icon        string   `yaml:"icon" json:"icon,omitempty"`
	Image       string   `yaml:"image" json:"image,omitempty"`
	Features    []string `yaml:"features" json:"features,omitempty"`
	Highlight   bool     `yaml:"highlight" json:"highlight"`
}

// Catalog is an ordered, read-only set of services keyed by id.
type Catalog struct {
	services []Service
	index    map[string]int
}

var (
	errEmptyID = errors.New("service id must not be empty")

	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the process-wide catalog built from the embedded document.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(servicesYAML)
		if err != nil {
			panic(fmt.Sprintf("embedded service catalog: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Parse decodes a YAML list of services into a catalog.
func Parse(data []byte) (*Catalog, error) {
	var services []Service
	if err := yaml.Unmarshal(data, &services); err != nil {
		return nil, fmt.Errorf("decode services: %w", err)
	}
	return New(services)
}

// New builds a catalog, rejecting empty or duplicate ids.
func New(services []Service) (*Catalog, error) {
	c := &Catalog{
		services: make([]Service, 0, len(services)),
		index:    make(map[string]int, len(services)),
	}

	var errs []error
	for i, svc := range services {
		svc.ID = strings.TrimSpace(svc.ID)
		if svc.ID == "" {
			errs = append(errs, fmt.Errorf("service %d: %w", i, errEmptyID))
			continue
		}
		if _, exists := c.index[svc.ID]; exists {
			errs = append(errs, fmt.Errorf("duplicate service id: %s", svc.ID))
			continue
		}
		svc.Features = append([]string(nil), svc.Features...)
		c.index[svc.ID] = len(c.services)
		c.services = append(c.services, svc)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return c, nil
}

// All returns the services in catalog order. The slice is a copy.
func (c *Catalog) All() []Service {
	if c == nil {
		return nil
	}
	out := make([]Service, len(c.services))
	for i, svc := range c.services {
		svc.Features = append([]string(nil), svc.Features...)
		out[i] = svc
	}
	return out
}

// Len reports the number of services.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.services)
}

// Lookup finds a service by id.
func (c *Catalog) Lookup(id string) (Service, bool) {
	if c == nil {
		return Service{}, false
	}
	i, ok := c.index[id]
	if !ok {
		return Service{}, false
	}
	svc := c.services[i]
	svc.Features = append([]string(nil), svc.Features...)
	return svc, true
}

// Highlighted returns the services flagged for the landing page.
func (c *Catalog) Highlighted() []Service {
	var out []Service
	for _, svc := range c.All() {
		if svc.Highlight {
			out = append(out, svc)
		}
	}
	return out
}
