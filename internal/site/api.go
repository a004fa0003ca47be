package site

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/theroutercompany/devdirect_website/internal/catalog"
	"github.com/theroutercompany/devdirect_website/internal/platform/health"
	"github.com/theroutercompany/devdirect_website/internal/selection"
	"github.com/theroutercompany/devdirect_website/pkg/problem"
)

type selectionResponse struct {
	Selected *catalog.Service `json:"selected"`
	Found    *bool            `json:"found,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	response := struct {
		Status    string  `json:"status"`
		Uptime    float64 `json:"uptime"`
		Timestamp string  `json:"timestamp"`
		Version   string  `json:"version,omitempty"`
	}{
		Status:    "ok",
		Uptime:    time.Since(s.bootTime).Seconds(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   s.cfg.Version,
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	report := health.Report{Status: "ready", CheckedAt: time.Now().UTC()}
	if s.healthChecker != nil {
		report = s.healthChecker.Readiness(r.Context())
	}

	statusCode := http.StatusOK
	if report.Status != "ready" {
		statusCode = http.StatusServiceUnavailable
	}

	response := struct {
		Status       string                    `json:"status"`
		CheckedAt    time.Time                 `json:"checkedAt"`
		Dependencies []health.DependencyReport `json:"dependencies"`
		RequestID    string                    `json:"requestId,omitempty"`
		TraceID      string                    `json:"traceId,omitempty"`
	}{
		Status:       report.Status,
		CheckedAt:    report.CheckedAt,
		Dependencies: report.Dependencies,
		RequestID:    requestIDFromContext(r.Context()),
		TraceID:      traceIDFromContext(r.Context()),
	}
	if response.Dependencies == nil {
		response.Dependencies = []health.DependencyReport{}
	}

	writeJSON(w, statusCode, response)
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	if s.openapiProvider == nil {
		problem.WriteStatus(w, r, http.StatusNotFound, "OpenAPI document unavailable", traceIDFromContext(r.Context()))
		return
	}

	doc, err := s.openapiProvider.Document(r.Context())
	if err != nil {
		s.logger.Errorw("failed to build openapi document", "error", err)
		problem.WriteStatus(w, r, http.StatusInternalServerError, "OpenAPI document could not be generated", traceIDFromContext(r.Context()))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

func (s *Server) handleListServices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Services []catalog.Service `json:"services"`
	}{Services: s.catalog.All()})
}

func (s *Server) handleGetService(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	svc, ok := s.catalog.Lookup(id)
	if !ok {
		problem.WriteStatus(w, r, http.StatusNotFound, "Unknown service "+id, traceIDFromContext(r.Context()))
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

func (s *Server) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	sel := s.visitorSelection(w, r)
	writeJSON(w, http.StatusOK, currentSelection(sel, nil))
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		problem.WriteStatus(w, r, status, "Request body must be a JSON object with an id", traceIDFromContext(r.Context()))
		return
	}
	id := strings.TrimSpace(body.ID)
	if id == "" {
		problem.WriteStatus(w, r, http.StatusBadRequest, "id is required", traceIDFromContext(r.Context()))
		return
	}

	sel := s.visitorSelection(w, r)
	found := sel.Select(id)
	if found {
		s.metrics.selection("select")
	} else {
		s.metrics.selection("miss")
	}
	writeJSON(w, http.StatusOK, currentSelection(sel, &found))
}

func (s *Server) handleResetSelection(w http.ResponseWriter, r *http.Request) {
	sel := s.visitorSelection(w, r)
	sel.Reset()
	s.metrics.selection("reset")
	writeJSON(w, http.StatusOK, currentSelection(sel, nil))
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.Load(r.Context()))
}

func (s *Server) handleValidateMedia(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	writeJSON(w, http.StatusOK, struct {
		URL   string `json:"url"`
		Valid bool   `json:"valid"`
	}{URL: raw, Valid: s.mediaValidator.Valid(raw)})
}

func currentSelection(sel *selection.Selection, found *bool) selectionResponse {
	resp := selectionResponse{Found: found}
	if svc, ok := sel.Current(); ok {
		resp.Selected = &svc
	}
	return resp
}
