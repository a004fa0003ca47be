// Package problem emits RFC 7807 responses carrying the request trace id.
package problem

import (
	"encoding/json"
	"net/http"
)

// Response represents an RFC 7807 problem document.
type Response struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	TraceID  string `json:"traceId,omitempty"`
}

// Write emits a problem+json response.
func Write(w http.ResponseWriter, status int, title, detail, traceID, instance string) {
	resp := Response{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
		TraceID:  traceID,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// WriteStatus emits a problem document titled with the standard status text
// and scoped to the request path.
func WriteStatus(w http.ResponseWriter, r *http.Request, status int, detail, traceID string) {
	instance := ""
	if r != nil && r.URL != nil {
		instance = r.URL.Path
	}
	Write(w, status, http.StatusText(status), detail, traceID, instance)
}
