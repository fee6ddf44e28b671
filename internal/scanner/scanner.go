package scanner

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Report is the outcome of scanning one URL.
type Report struct {
	URL        string             `json:"url"`
	FinalURL   string             `json:"final_url"`
	StatusCode int                `json:"status_code"`
	Score      int                `json:"score"`
	Grade      string             `json:"grade"`
	Title      string             `json:"title,omitempty"`
	Findings   []Finding          `json:"issues"`
	Headers    map[string]string  `json:"headers"`
	Cookies    []CookieAttributes `json:"cookies,omitempty"`
	Duration   time.Duration      `json:"duration"`
}

// Scanner fetches a URL and grades the response.
type Scanner struct {
	Fetcher Fetcher
}

// New returns a Scanner using fetcher, or a default HTTPFetcher when nil.
func New(fetcher Fetcher) *Scanner {
	if fetcher == nil {
		fetcher = NewHTTPFetcher()
	}
	return &Scanner{Fetcher: fetcher}
}

// Scan fetches target once and evaluates the response. target is used as
// given; callers normalise user input with NormalizeURL first.
func (s *Scanner) Scan(ctx context.Context, target string) (*Report, error) {
	start := time.Now()

	resp, err := s.Fetcher.Fetch(ctx, target)
	if err != nil {
		return nil, err
	}

	report := Assess(resp)
	report.URL = target
	report.Duration = time.Since(start)
	return report, nil
}

// Assess evaluates an already fetched response.
func Assess(resp *Response) *Report {
	findings := Evaluate(resp)
	score := Aggregate(findings)

	return &Report{
		URL:        resp.RequestedURL,
		FinalURL:   resp.FinalURL,
		StatusCode: resp.StatusCode,
		Score:      score,
		Grade:      CalculateGrade(score),
		Title:      resp.Title,
		Findings:   findings,
		Headers:    FlattenHeaders(resp.Header),
		Cookies:    AnalyzeCookies(resp.SetCookies, resp.FinalURL, resp.receivedAt()),
	}
}

// FlattenHeaders joins multi-valued headers with ", ".
func FlattenHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for name, values := range headers {
		out[name] = strings.Join(values, ", ")
	}
	return out
}
