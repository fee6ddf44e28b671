package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	authapp "github.com/webguard-sec/webguard/internal/application/auth"
	"github.com/webguard-sec/webguard/internal/domain/scan"
	"github.com/webguard-sec/webguard/internal/domain/session"
	"github.com/webguard-sec/webguard/internal/domain/user"
	"github.com/webguard-sec/webguard/internal/web/middleware"
	"go.uber.org/zap"
)

const (
	apiPrefix    = "/api/"
	maxBodyBytes = 1 << 20 // forms and JSON bodies
)

type ScanService interface {
	Submit(ctx context.Context, rawURL string, owner *user.User) (*scan.Result, error)
	Get(ctx context.Context, id int64) (*scan.Result, error)
	Recent(ctx context.Context, limit int) ([]*scan.Result, error)
	ForOwner(ctx context.Context, ownerID int64) ([]*scan.Result, error)
}

type AuthService interface {
	Register(ctx context.Context, in authapp.RegisterInput) (*user.User, error)
	Login(ctx context.Context, username, password string) (*user.User, *session.Session, error)
	StartSession(ctx context.Context, u *user.User) (*session.Session, error)
	Logout(ctx context.Context, token string) error
	Authenticate(ctx context.Context, token string) (*user.User, error)
}

type HealthService interface {
	Ready(ctx context.Context) error
}

type Config struct {
	Scans          ScanService
	Auth           AuthService
	Health         HealthService
	AuthToken      string // Required in X-Auth-Token for /api/ routes when set
	Logger         *zap.Logger
	CORSOrigins    []string // Allowed CORS origins for /api/ (empty = allow all)
	TrustedOrigins []string // Extra origins accepted by the CSRF check
	RateLimit      int      // Requests per second per IP (0 = disabled)
	RateBurst      int      // Burst size for rate limiter
	SecureCookies  bool     // Mark cookies Secure and send HSTS
	HistoryLimit   int      // Scans on /history/ (0 = service default)
}

type Server struct {
	cfg       Config
	mux       *http.ServeMux
	handler   http.Handler
	limiters  *rateLimiterMap
	templates map[string]*template.Template
}

// NewServer parses the embedded templates and builds the middleware chain.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Scans == nil || cfg.Auth == nil {
		return nil, errors.New("web server requires scan and auth services")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	templates, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	srv := &Server{
		cfg:       cfg,
		mux:       http.NewServeMux(),
		limiters:  newRateLimiterMap(),
		templates: templates,
	}
	srv.routes()

	// RequestID -> SecurityHeaders -> Logging -> RateLimit -> Session -> CSRF -> Handler
	srv.handler = middleware.RequestID(
		middleware.SecurityHeaders(cfg.SecureCookies)(
			srv.withLogging(srv.withRateLimit(srv.withSession(srv.withCSRF(srv.mux)))),
		),
	)
	return srv, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close stops the rate limiter cleanup goroutine.
func (s *Server) Close() {
	s.limiters.stop()
}

func (s *Server) routes() {
	// Pages
	s.mux.HandleFunc("/{$}", s.handleHome)
	s.mux.HandleFunc("/scan/{$}", s.handleScan)
	s.mux.HandleFunc("/result/{id}/{$}", s.handleResult)
	s.mux.HandleFunc("/result/{id}/report.pdf", s.handleResultPDF)
	s.mux.HandleFunc("/history/{$}", s.handleHistory)
	s.mux.HandleFunc("/my-scans/{$}", s.handleMyScans)
	s.mux.HandleFunc("/login/{$}", s.handleLogin)
	s.mux.HandleFunc("/logout/{$}", s.handleLogout)
	s.mux.HandleFunc("/register/{$}", s.handleRegister)
	s.mux.HandleFunc("/", s.handleNotFound)

	// Version 1 API routes
	s.mux.Handle("/api/v1/health", s.api(s.handleHealth))
	s.mux.Handle("/api/v1/ready", s.api(s.handleReady))
	s.mux.Handle("/api/v1/scans", s.api(s.handleScans))
	s.mux.Handle("/api/v1/scans/{id}", s.api(s.handleScanByID))
	s.mux.Handle("/api/", s.api(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusNotFound, errors.New("not found"))
	}))
}

func (s *Server) api(h http.HandlerFunc) http.Handler {
	return s.withCORS(s.withAuth(h))
}

func isAPI(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, apiPrefix)
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowOrigin := "*"
		if len(s.cfg.CORSOrigins) > 0 {
			allowOrigin = ""
			for _, allowedOrigin := range s.cfg.CORSOrigins {
				if allowedOrigin == origin {
					allowOrigin = origin
					break
				}
			}
		}

		if allowOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Auth-Token, X-Request-ID")
			w.Header().Set("Access-Control-Max-Age", "3600")
			if allowOrigin != "*" {
				w.Header().Add("Vary", "Origin")
			}
		}

		// Preflight requests carry no token
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) withAuth(next http.Handler) http.Handler {
	if s.cfg.AuthToken == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Auth-Token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) != 1 {
			s.writeError(w, r, http.StatusUnauthorized, errors.New("unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)

		s.cfg.Logger.Info("http_request",
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Int("status", lrw.statusCode),
			zap.Duration("duration", time.Since(start)),
			zap.Int64("bytes", lrw.bytesWritten),
		)
	})
}

// loggingResponseWriter wraps http.ResponseWriter to capture status code and bytes written
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	n, err := lrw.ResponseWriter.Write(b)
	lrw.bytesWritten += int64(n)
	return n, err
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	// Sanitize error messages to prevent information disclosure
	msg := err.Error()

	if status >= 500 {
		s.requestLogger(r).Error("internal_server_error",
			zap.Error(err),
			zap.Int("status", status),
		)
		msg = "internal server error"
	}

	writeJSON(w, status, map[string]string{"error": msg})
}

// fail answers with JSON on API routes and an error page elsewhere.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	if isAPI(r) {
		s.writeError(w, r, status, err)
		return
	}
	s.renderError(w, r, status, err)
}

// requestLogger creates a logger with request context (request ID, method, path)
func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	return s.cfg.Logger.With(
		zap.String("request_id", middleware.GetRequestID(r.Context())),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	)
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	s.fail(w, r, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// allowMethods reports whether r uses one of methods, answering 405 when not.
// HEAD is accepted wherever GET is.
func (s *Server) allowMethods(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m || (m == http.MethodGet && r.Method == http.MethodHead) {
			return true
		}
	}
	s.methodNotAllowed(w, r, methods...)
	return false
}
