package site

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"

	"github.com/theroutercompany/devdirect_website/internal/catalog"
	"github.com/theroutercompany/devdirect_website/internal/paths"
	"github.com/theroutercompany/devdirect_website/internal/settings"
	"github.com/theroutercompany/devdirect_website/pkg/problem"
)

//go:embed web/templates/*.html
var templateFS embed.FS

//go:embed web/static web/img
var assetFS embed.FS

var pageNames = []string{"home", "service", "contact", "not_found"}

type pageRenderer struct {
	pages map[string]*template.Template
}

type pageData struct {
	Title     string
	BasePath  string
	Company   settings.CompanySettings
	Services  []catalog.Service
	Featured  []catalog.Service
	Service   *catalog.Service
	Selected  *catalog.Service
	Path      string
	RequestID string
}

func newPageRenderer() (*pageRenderer, error) {
	funcs := template.FuncMap{
		"path":  paths.GetPath,
		"image": paths.GetImagePath,
	}

	r := &pageRenderer{pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		tmpl, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "web/templates/layout.html", "web/templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("page %s: %w", name, err)
		}
		r.pages[name] = tmpl
	}
	return r, nil
}

func (p *pageRenderer) render(w http.ResponseWriter, status int, name string, data pageData) error {
	tmpl, ok := p.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return err
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

func (s *Server) basePage(w http.ResponseWriter, r *http.Request, title string) pageData {
	data := pageData{
		Title:     title,
		BasePath:  s.cfg.HTTP.BasePath,
		Company:   s.settings.Load(r.Context()),
		Services:  s.catalog.All(),
		Path:      r.URL.Path,
		RequestID: requestIDFromContext(r.Context()),
	}
	if svc, ok := s.visitorSelection(w, r).Current(); ok {
		data.Selected = &svc
	}
	return data
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, status int, name string, data pageData) {
	if err := s.pages.render(w, status, name, data); err != nil {
		s.logger.Errorw("failed to render page", "page", name, "error", err)
		problem.WriteStatus(w, r, http.StatusInternalServerError, "Page could not be rendered", traceIDFromContext(r.Context()))
	}
}

func (s *Server) handleHomePage(w http.ResponseWriter, r *http.Request) {
	data := s.basePage(w, r, "Accueil")
	data.Featured = s.catalog.Highlighted()
	s.renderPage(w, r, http.StatusOK, "home", data)
}

func (s *Server) handleServicePage(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.catalog.Lookup(r.PathValue("id"))
	if !ok {
		s.handleNotFound(w, r)
		return
	}
	data := s.basePage(w, r, svc.Title)
	data.Service = &svc
	s.renderPage(w, r, http.StatusOK, "service", data)
}

func (s *Server) handleContactPage(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, http.StatusOK, "contact", s.basePage(w, r, "Contact"))
}

func (s *Server) handleSelectionForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		problem.WriteStatus(w, r, http.StatusBadRequest, "Malformed form body", traceIDFromContext(r.Context()))
		return
	}

	sel := s.visitorSelection(w, r)
	target := s.cfg.HTTP.BasePath + "/"
	switch r.PostForm.Get("action") {
	case "reset":
		sel.Reset()
		s.metrics.selection("reset")
	case "select", "":
		id := strings.TrimSpace(r.PostForm.Get("id"))
		if sel.Select(id) {
			s.metrics.selection("select")
			target = s.cfg.HTTP.BasePath + paths.GetPath("/services/"+id)
		} else {
			s.metrics.selection("miss")
		}
	default:
		problem.WriteStatus(w, r, http.StatusBadRequest, "Unknown selection action", traceIDFromContext(r.Context()))
		return
	}

	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") || r.Method != http.MethodGet {
		problem.WriteStatus(w, r, http.StatusNotFound, "No route matches "+r.URL.Path, traceIDFromContext(r.Context()))
		return
	}
	s.renderPage(w, r, http.StatusNotFound, "not_found", s.basePage(w, r, "Page introuvable"))
}

// assetHandler serves embedded CSS and images. Image paths carrying the
// deployment prefix resolve to the same files as their unprefixed form.
func assetHandler() http.Handler {
	root, err := fs.Sub(assetFS, "web")
	if err != nil {
		panic(fmt.Sprintf("embedded assets: %v", err))
	}
	files := http.FileServerFS(root)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rewritten := paths.GetImagePath(r.URL.Path); rewritten != r.URL.Path {
			r2 := r.Clone(r.Context())
			r2.URL.Path = rewritten
			r2.URL.RawPath = ""
			r = r2
		}
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=3600")
		files.ServeHTTP(w, r)
	})
}
