package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/webguard-sec/webguard/internal/domain/session"
	"github.com/webguard-sec/webguard/internal/domain/user"
	sharedErrors "github.com/webguard-sec/webguard/internal/shared/errors"
	"go.uber.org/zap"
)

const sessionCookie = "sessionid"

type stateKey struct{}

// requestState is what the session, flash and CSRF layers learn about a
// page request.
type requestState struct {
	user         *user.User
	sessionToken string
	csrfToken    string
	flashes      []Flash
	flashCookie  bool
}

func stateFrom(r *http.Request) *requestState {
	if st, ok := r.Context().Value(stateKey{}).(*requestState); ok {
		return st
	}
	return &requestState{}
}

// currentUser returns the logged in user or nil.
func currentUser(r *http.Request) *user.User {
	return stateFrom(r).user
}

func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isAPI(r) {
			next.ServeHTTP(w, r)
			return
		}

		st := &requestState{}
		if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
			u, err := s.cfg.Auth.Authenticate(r.Context(), c.Value)
			switch {
			case err == nil:
				st.user, st.sessionToken = u, c.Value
			case errors.Is(err, sharedErrors.ErrSessionNotFound), errors.Is(err, sharedErrors.ErrSessionExpired):
				s.clearSessionCookie(w)
			default:
				s.requestLogger(r).Error("session lookup failed", zap.Error(err))
			}
		}
		st.flashes, st.flashCookie = readFlashes(r)

		ctx := context.WithValue(r.Context(), stateKey{}, st)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// login binds sess to the response and the rest of this request.
func (s *Server) login(w http.ResponseWriter, r *http.Request, u *user.User, sess *session.Session) {
	st := stateFrom(r)
	if st.sessionToken != "" && st.sessionToken != sess.Token() {
		if err := s.cfg.Auth.Logout(r.Context(), st.sessionToken); err != nil {
			s.requestLogger(r).Warn("failed to end previous session", zap.Error(err))
		}
	}
	st.user, st.sessionToken = u, sess.Token()

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.Token(),
		Path:     "/",
		Expires:  sess.ExpiresAt(),
		MaxAge:   int(time.Until(sess.ExpiresAt()).Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}
