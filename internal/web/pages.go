package web

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	authapp "github.com/webguard-sec/webguard/internal/application/auth"
	"github.com/webguard-sec/webguard/internal/domain/scan"
	"github.com/webguard-sec/webguard/internal/report"
	sharedErrors "github.com/webguard-sec/webguard/internal/shared/errors"
	"go.uber.org/zap"
)

const (
	msgEnterURL         = "Please enter a valid URL."
	msgScanError        = "Error scanning URL: %s"
	msgWelcomeBack      = "Welcome back, %s!"
	msgInvalidLogin     = "Invalid username or password."
	msgLoggedOut        = "You have been logged out."
	msgAccountCreated   = "Account created successfully! Welcome, %s!"
	msgCorrectErrors    = "Please correct the errors below."
	msgScanInternalFail = "the scan could not be saved"
)

type scanPage struct {
	URL string
}

type resultPage struct {
	Scan   *scan.Result
	Groups []scan.IssueGroup
}

type scansPage struct {
	Scans []*scan.Result
}

type loginPage struct {
	Username string
	Next     string
}

type registerPage struct {
	Username string
	Email    string
	Errors   map[string][]string
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethods(w, r, http.MethodGet) {
		return
	}
	s.render(w, r, http.StatusOK, pageHome, "Home", nil)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.renderError(w, r, http.StatusNotFound, nil)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	if r.Method != http.MethodPost {
		s.render(w, r, http.StatusOK, pageScan, "Scan", scanPage{})
		return
	}

	rawURL := strings.TrimSpace(r.PostFormValue("url"))
	if rawURL == "" {
		s.flash(r, LevelError, msgEnterURL)
		s.render(w, r, http.StatusOK, pageScan, "Scan", scanPage{})
		return
	}

	result, err := s.cfg.Scans.Submit(r.Context(), rawURL, currentUser(r))
	if err != nil {
		s.flash(r, LevelError, fmt.Sprintf(msgScanError, s.scanErrorText(r, err)))
		s.render(w, r, http.StatusOK, pageScan, "Scan", scanPage{URL: rawURL})
		return
	}

	s.redirect(w, r, fmt.Sprintf("/result/%d/", result.ID()))
}

// scanErrorText is safe to show: input and fetch problems are described,
// storage failures are not.
func (s *Server) scanErrorText(r *http.Request, err error) string {
	switch {
	case errors.Is(err, sharedErrors.ErrEmptyURL),
		errors.Is(err, sharedErrors.ErrInvalidURL),
		errors.Is(err, sharedErrors.ErrURLTooLong),
		errors.Is(err, sharedErrors.ErrFetchFailed):
		return err.Error()
	}
	s.requestLogger(r).Error("scan_submit_failed", zap.Error(err))
	return msgScanInternalFail
}

// loadResult resolves the {id} path value, answering 404 itself when the
// result does not exist.
func (s *Server) loadResult(w http.ResponseWriter, r *http.Request) (*scan.Result, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		s.fail(w, r, http.StatusNotFound, sharedErrors.ErrScanNotFound)
		return nil, false
	}

	result, err := s.cfg.Scans.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, sharedErrors.ErrScanNotFound) {
			s.fail(w, r, http.StatusNotFound, sharedErrors.ErrScanNotFound)
		} else {
			s.fail(w, r, http.StatusInternalServerError, err)
		}
		return nil, false
	}
	return result, true
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethods(w, r, http.MethodGet) {
		return
	}
	result, ok := s.loadResult(w, r)
	if !ok {
		return
	}
	s.render(w, r, http.StatusOK, pageResult, "Result for "+result.URL(), resultPage{
		Scan:   result,
		Groups: result.IssuesBySeverity(),
	})
}

func (s *Server) handleResultPDF(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethods(w, r, http.MethodGet) {
		return
	}
	result, ok := s.loadResult(w, r)
	if !ok {
		return
	}

	data, err := report.PDFBytes(result)
	if err != nil {
		s.renderError(w, r, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, report.FileName(result)))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(data)
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethods(w, r, http.MethodGet) {
		return
	}
	if currentUser(r) == nil {
		s.render(w, r, http.StatusOK, pageHistory, "History", scansPage{})
		return
	}

	results, err := s.cfg.Scans.Recent(r.Context(), s.cfg.HistoryLimit)
	if err != nil {
		s.renderError(w, r, http.StatusInternalServerError, err)
		return
	}
	s.render(w, r, http.StatusOK, pageHistory, "History", scansPage{Scans: results})
}

func (s *Server) handleMyScans(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethods(w, r, http.MethodGet) {
		return
	}
	u := currentUser(r)
	if u == nil {
		s.redirect(w, r, "/login/?next="+r.URL.Path)
		return
	}

	results, err := s.cfg.Scans.ForOwner(r.Context(), u.ID())
	if err != nil {
		s.renderError(w, r, http.StatusInternalServerError, err)
		return
	}
	s.render(w, r, http.StatusOK, pageMyScans, "My Scans", scansPage{Scans: results})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	if r.Method != http.MethodPost {
		s.render(w, r, http.StatusOK, pageLogin, "Log in", loginPage{Next: safeNext(r.URL.Query().Get("next"))})
		return
	}

	username := strings.TrimSpace(r.PostFormValue("username"))
	next := safeNext(r.PostFormValue("next"))

	u, sess, err := s.cfg.Auth.Login(r.Context(), username, r.PostFormValue("password"))
	if err != nil {
		if !errors.Is(err, sharedErrors.ErrInvalidCredentials) {
			s.renderError(w, r, http.StatusInternalServerError, err)
			return
		}
		s.flash(r, LevelError, msgInvalidLogin)
		s.render(w, r, http.StatusOK, pageLogin, "Log in", loginPage{Username: username, Next: next})
		return
	}

	s.login(w, r, u, sess)
	s.flash(r, LevelSuccess, fmt.Sprintf(msgWelcomeBack, u.Username()))
	if next == "" {
		next = "/"
	}
	s.redirect(w, r, next)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}

	st := stateFrom(r)
	if st.sessionToken != "" {
		if err := s.cfg.Auth.Logout(r.Context(), st.sessionToken); err != nil {
			s.requestLogger(r).Warn("logout failed", zap.Error(err))
		}
		s.clearSessionCookie(w)
	}
	st.user, st.sessionToken = nil, ""

	s.flash(r, LevelSuccess, msgLoggedOut)
	s.redirect(w, r, "/")
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	if r.Method != http.MethodPost {
		s.render(w, r, http.StatusOK, pageRegister, "Register", registerPage{})
		return
	}

	in := authapp.RegisterInput{
		Username:  strings.TrimSpace(r.PostFormValue("username")),
		Email:     strings.TrimSpace(r.PostFormValue("email")),
		Password1: r.PostFormValue("password1"),
		Password2: r.PostFormValue("password2"),
	}

	u, err := s.cfg.Auth.Register(r.Context(), in)
	if err != nil {
		fields := authapp.FieldErrors(err)
		if fields == nil {
			s.renderError(w, r, http.StatusInternalServerError, err)
			return
		}
		s.flash(r, LevelError, msgCorrectErrors)
		s.render(w, r, http.StatusOK, pageRegister, "Register", registerPage{
			Username: in.Username,
			Email:    in.Email,
			Errors:   fields,
		})
		return
	}

	sess, err := s.cfg.Auth.StartSession(r.Context(), u)
	if err != nil {
		s.renderError(w, r, http.StatusInternalServerError, err)
		return
	}
	s.login(w, r, u, sess)
	s.flash(r, LevelSuccess, fmt.Sprintf(msgAccountCreated, u.Username()))
	s.redirect(w, r, "/")
}

// safeNext keeps post-login redirects on this site.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return ""
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return ""
	}
	return next
}
