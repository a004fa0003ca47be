package site

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/theroutercompany/devdirect_website/internal/selection"
)

const defaultSessionCookie = "devdirect_session"

// visitorSelection returns the selection owned by the caller's session,
// issuing a new session cookie when the request carries none or a malformed one.
func (s *Server) visitorSelection(w http.ResponseWriter, r *http.Request) *selection.Selection {
	name := s.cfg.Sessions.CookieName
	if name == "" {
		name = defaultSessionCookie
	}

	id := ""
	if cookie, err := r.Cookie(name); err == nil {
		if _, err := uuid.Parse(cookie.Value); err == nil {
			id = cookie.Value
		}
	}
	if id == "" {
		id = selection.NewSessionID()
	}

	// Refresh on every request so the cookie lifetime tracks the idle ttl.
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    id,
		Path:     "/",
		MaxAge:   int(s.cfg.Sessions.TTL.AsDuration().Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	return s.sessions.Get(id, s.now())
}
