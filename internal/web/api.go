package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/webguard-sec/webguard/internal/domain/scan"
	sharedErrors "github.com/webguard-sec/webguard/internal/shared/errors"
)

// maxAPIListLimit bounds GET /api/v1/scans?limit=.
const maxAPIListLimit = 500

type ScanCreateRequest struct {
	URL string `json:"url"`
}

type IssueResponse struct {
	Severity       string `json:"severity"`
	Category       string `json:"category"`
	Message        string `json:"message"`
	Recommendation string `json:"recommendation"`
}

type ScanResponse struct {
	ID         int64             `json:"id"`
	URL        string            `json:"url"`
	FinalURL   string            `json:"final_url"`
	StatusCode int               `json:"status_code"`
	Score      int               `json:"score"`
	Grade      string            `json:"grade"`
	Title      string            `json:"title,omitempty"`
	Owner      string            `json:"owner,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	Issues     []IssueResponse   `json:"issues"`
	Headers    map[string]string `json:"headers,omitempty"`
}

type ScanListResponse struct {
	Scans []ScanResponse `json:"scans"`
	Count int            `json:"count"`
}

func toScanResponse(r *scan.Result, withHeaders bool) ScanResponse {
	resp := ScanResponse{
		ID:         r.ID(),
		URL:        r.URL(),
		FinalURL:   r.FinalURL(),
		StatusCode: r.StatusCode(),
		Score:      r.Score(),
		Grade:      r.Grade(),
		Title:      r.Title(),
		Owner:      r.OwnerName(),
		CreatedAt:  r.CreatedAt(),
		Issues:     make([]IssueResponse, 0, r.IssueCount()),
	}
	for _, issue := range r.Issues() {
		resp.Issues = append(resp.Issues, IssueResponse{
			Severity:       issue.Severity().String(),
			Category:       issue.Category(),
			Message:        issue.Message(),
			Recommendation: issue.Recommendation(),
		})
	}
	if withHeaders {
		resp.Headers = r.Headers()
	}
	return resp
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if s.cfg.Health != nil {
		if err := s.cfg.Health.Ready(r.Context()); err != nil {
			s.requestLogger(r).Warn("readiness check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleScans(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				s.writeError(w, r, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
				return
			}
			limit = min(n, maxAPIListLimit)
		}

		results, err := s.cfg.Scans.Recent(r.Context(), limit)
		if err != nil {
			s.writeError(w, r, http.StatusInternalServerError, err)
			return
		}

		resp := ScanListResponse{Scans: make([]ScanResponse, 0, len(results)), Count: len(results)}
		for _, result := range results {
			resp.Scans = append(resp.Scans, toScanResponse(result, false))
		}
		writeJSON(w, http.StatusOK, resp)

	case http.MethodPost:
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		defer r.Body.Close()

		var req ScanCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
			return
		}

		result, err := s.cfg.Scans.Submit(r.Context(), strings.TrimSpace(req.URL), nil)
		if err != nil {
			s.writeError(w, r, submitErrorStatus(err), err)
			return
		}
		w.Header().Set("Location", fmt.Sprintf("/api/v1/scans/%d", result.ID()))
		writeJSON(w, http.StatusCreated, toScanResponse(result, true))

	default:
		s.methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func submitErrorStatus(err error) int {
	switch {
	case errors.Is(err, sharedErrors.ErrEmptyURL),
		errors.Is(err, sharedErrors.ErrInvalidURL),
		errors.Is(err, sharedErrors.ErrURLTooLong):
		return http.StatusBadRequest
	case errors.Is(err, sharedErrors.ErrFetchFailed):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (s *Server) handleScanByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r, http.MethodGet)
		return
	}
	result, ok := s.loadResult(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toScanResponse(result, true))
}
