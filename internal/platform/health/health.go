package health

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Dependency identifies an external host the site relies on.
type Dependency struct {
	Name       string
	BaseURL    string
	HealthPath string
}

// DependencyReport captures the outcome of probing a single dependency.
type DependencyReport struct {
	Name       string    `json:"name"`
	Healthy    bool      `json:"healthy"`
	StatusCode int       `json:"statusCode,omitempty"`
	Error      string    `json:"error,omitempty"`
	CheckedAt  time.Time `json:"checkedAt"`
}

// Report aggregates readiness across dependencies.
type Report struct {
	Status       string             `json:"status"`
	CheckedAt    time.Time          `json:"checkedAt"`
	Dependencies []DependencyReport `json:"dependencies"`
}

// Checker probes dependencies. A dependency counts as healthy when it answers
// with any non-5xx status: media storage rejects anonymous probes with 4xx
// while still being reachable.
type Checker struct {
	client       *http.Client
	dependencies []Dependency
	timeout      time.Duration
	userAgent    string
}

// NewChecker returns a checker for the given dependencies. Dependencies with
// an empty BaseURL are skipped.
func NewChecker(client *http.Client, deps []Dependency, timeout time.Duration) *Checker {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	configured := make([]Dependency, 0, len(deps))
	for _, d := range deps {
		if d.BaseURL != "" {
			configured = append(configured, d)
		}
	}

	return &Checker{
		client:       client,
		dependencies: configured,
		timeout:      timeout,
		userAgent:    "devdirect-website/readyz",
	}
}

// Readiness probes every dependency concurrently.
func (c *Checker) Readiness(ctx context.Context) Report {
	if len(c.dependencies) == 0 {
		return Report{Status: "ready", CheckedAt: time.Now().UTC()}
	}

	results := make([]DependencyReport, len(c.dependencies))
	var wg sync.WaitGroup
	for idx, dep := range c.dependencies {
		wg.Add(1)
		go func(i int, d Dependency) {
			defer wg.Done()
			results[i] = c.probe(ctx, d)
		}(idx, dep)
	}
	wg.Wait()

	report := Report{
		Status:       "ready",
		CheckedAt:    time.Now().UTC(),
		Dependencies: results,
	}
	for _, r := range results {
		if !r.Healthy {
			report.Status = "degraded"
			break
		}
	}
	return report
}

func (c *Checker) probe(ctx context.Context, dep Dependency) DependencyReport {
	report := DependencyReport{Name: dep.Name, CheckedAt: time.Now().UTC()}

	target, err := url.JoinPath(dep.BaseURL, dep.HealthPath)
	if err != nil {
		report.Error = fmt.Sprintf("failed to build dependency url: %v", err)
		return report
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		report.Error = fmt.Sprintf("failed to create request: %v", err)
		return report
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		if reqCtx.Err() != nil {
			report.Error = reqCtx.Err().Error()
		} else {
			report.Error = err.Error()
		}
		return report
	}
	defer resp.Body.Close()

	report.StatusCode = resp.StatusCode
	report.Healthy = resp.StatusCode < http.StatusInternalServerError
	if !report.Healthy {
		report.Error = fmt.Sprintf("dependency answered with status %d", resp.StatusCode)
	}
	return report
}
