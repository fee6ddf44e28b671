package web

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/webguard-sec/webguard/internal/shared/security"
	"go.uber.org/zap"
)

const (
	csrfCookie     = "csrftoken"
	csrfFormField  = "csrf_token"
	csrfHeader     = "X-CSRFToken"
	csrfTokenBytes = 32 // hex encoded in the cookie
	csrfCookieAge  = 365 * 24 * 60 * 60
)

var (
	errCSRFToken  = errors.New("CSRF verification failed: token missing or incorrect")
	errCSRFOrigin = errors.New("CSRF verification failed: origin not trusted")
)

// withCSRF issues the csrftoken cookie and checks unsafe requests against it.
// The API authenticates with a header token and is exempt.
func (s *Server) withCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isAPI(r) {
			next.ServeHTTP(w, r)
			return
		}

		st := stateFrom(r)
		cookieToken := ""
		if c, err := r.Cookie(csrfCookie); err == nil && validCSRFToken(c.Value) {
			cookieToken = c.Value
		}

		if !safeMethod(r.Method) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

			if origin := r.Header.Get("Origin"); origin != "" && !s.originAllowed(r, origin) {
				s.requestLogger(r).Warn("csrf_origin_rejected", zap.String("origin", origin))
				s.renderError(w, r, http.StatusForbidden, errCSRFOrigin)
				return
			}

			submitted := r.Header.Get(csrfHeader)
			if submitted == "" {
				submitted = r.PostFormValue(csrfFormField)
			}
			if cookieToken == "" || subtle.ConstantTimeCompare([]byte(submitted), []byte(cookieToken)) != 1 {
				s.requestLogger(r).Warn("csrf_token_rejected", zap.Bool("cookie_present", cookieToken != ""))
				s.renderError(w, r, http.StatusForbidden, errCSRFToken)
				return
			}
		}

		if cookieToken == "" {
			cookieToken = security.RandomToken(csrfTokenBytes)
			http.SetCookie(w, &http.Cookie{
				Name:     csrfCookie,
				Value:    cookieToken,
				Path:     "/",
				MaxAge:   csrfCookieAge,
				HttpOnly: true,
				Secure:   s.cfg.SecureCookies,
				SameSite: http.SameSiteLaxMode,
			})
		}
		st.csrfToken = cookieToken

		next.ServeHTTP(w, r)
	})
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

func validCSRFToken(token string) bool {
	if len(token) != csrfTokenBytes*2 {
		return false
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		if !(c >= '0' && c <= '9') && !(c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

// originAllowed accepts the server's own host and configured trusted
// origins such as a tunnel URL.
func (s *Server) originAllowed(r *http.Request, origin string) bool {
	for _, trusted := range s.cfg.TrustedOrigins {
		if strings.EqualFold(strings.TrimRight(trusted, "/"), origin) {
			return true
		}
	}

	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}
