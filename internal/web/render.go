package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"sort"
	"time"

	"github.com/webguard-sec/webguard/internal/domain/user"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page names; each is rendered inside templates/base.html.
const (
	pageHome     = "home"
	pageScan     = "scan"
	pageResult   = "result"
	pageHistory  = "history"
	pageMyScans  = "my_scans"
	pageLogin    = "login"
	pageRegister = "register"
	pageError    = "error"
)

var pages = []string{pageHome, pageScan, pageResult, pageHistory, pageMyScans, pageLogin, pageRegister, pageError}

// view is the data every template receives.
type view struct {
	Title     string
	User      *user.User
	CSRFToken string
	Messages  []Flash
	Page      any
}

type headerLine struct {
	Name  string
	Value string
}

var templateFuncs = template.FuncMap{
	"gradeClass": func(score int) string {
		switch {
		case score >= 80:
			return "good"
		case score >= 60:
			return "fair"
		}
		return "poor"
	},
	"formatTime": func(t time.Time) string { return t.UTC().Format("Jan 2, 2006 15:04 UTC") },
	"sortedHeaders": func(headers map[string]string) []headerLine {
		lines := make([]headerLine, 0, len(headers))
		for name, value := range headers {
			lines = append(lines, headerLine{Name: name, Value: value})
		}
		sort.Slice(lines, func(i, j int) bool { return lines[i].Name < lines[j].Name })
		return lines
	},
}

func parseTemplates() (map[string]*template.Template, error) {
	templates := make(map[string]*template.Template, len(pages))
	for _, name := range pages {
		tmpl, err := template.New("base.html").Funcs(templateFuncs).
			ParseFS(templateFS, "templates/base.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		templates[name] = tmpl
	}
	return templates, nil
}

// render executes page into a buffer first so template failures still
// produce a clean 500.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, page, title string, data any) {
	tmpl, ok := s.templates[page]
	if !ok {
		s.requestLogger(r).Error("unknown template", zap.String("page", page))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	st := stateFrom(r)
	v := view{
		Title:     title,
		User:      st.user,
		CSRFToken: st.csrfToken,
		Messages:  st.flashes,
		Page:      data,
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", v); err != nil {
		s.requestLogger(r).Error("template_render_failed", zap.String("page", page), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	// Flashes are consumed only once the page is known to render
	s.takeFlashes(w, r)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		_, _ = buf.WriteTo(w)
	}
}

type errorPage struct {
	Status  int
	Heading string
	Detail  string
}

// renderError shows an error page. 5xx details only go to the log.
func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, err error) {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	if status >= 500 {
		s.requestLogger(r).Error("internal_server_error", zap.Error(err), zap.Int("status", status))
		detail = "Something went wrong on our side. Please try again later."
	}
	if status == http.StatusNotFound {
		detail = "The page you requested does not exist."
	}

	heading := http.StatusText(status)
	s.render(w, r, status, pageError, heading, errorPage{Status: status, Heading: heading, Detail: detail})
}
