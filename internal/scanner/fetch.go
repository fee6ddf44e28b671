package scanner

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/webguard-sec/webguard/internal/shared/constants"
	sharedErrors "github.com/webguard-sec/webguard/internal/shared/errors"
	"golang.org/x/net/publicsuffix"
)

// Response is everything the checklist needs from a fetched page.
type Response struct {
	RequestedURL string      `json:"requested_url"`
	FinalURL     string      `json:"final_url"`
	StatusCode   int         `json:"status_code"`
	Header       http.Header `json:"header"`
	// SetCookies holds the raw Set-Cookie lines of the final response.
	SetCookies []string `json:"set_cookies,omitempty"`
	Title      string   `json:"title,omitempty"`
	// FetchedAt is when the final response arrived. Cookie expiry is
	// judged against it.
	FetchedAt time.Time `json:"fetched_at"`
}

func (r *Response) receivedAt() time.Time {
	if r.FetchedAt.IsZero() {
		return time.Now()
	}
	return r.FetchedAt
}

// Fetcher retrieves a single URL.
type Fetcher interface {
	Fetch(ctx context.Context, target string) (*Response, error)
}

// HTTPFetcher performs one GET per Fetch, following redirects.
type HTTPFetcher struct {
	Timeout      time.Duration
	UserAgent    string
	MaxRedirects int
	// Transport overrides the round tripper; nil uses a clone of
	// http.DefaultTransport.
	Transport http.RoundTripper
}

// NewHTTPFetcher returns a fetcher with WebGuard's defaults.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		Timeout:      constants.DefaultScanTimeout,
		UserAgent:    constants.DefaultUserAgent,
		MaxRedirects: constants.DefaultMaxRedirects,
	}
}

// Fetch performs the request. Any transport failure, redirect overflow or
// timeout is returned wrapped in ErrFetchFailed.
func (f *HTTPFetcher) Fetch(ctx context.Context, target string) (*Response, error) {
	client, err := f.client()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sharedErrors.ErrFetchFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sharedErrors.ErrFetchFailed, err)
	}
	userAgent := f.UserAgent
	if userAgent == "" {
		userAgent = constants.DefaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sharedErrors.ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	result := &Response{
		RequestedURL: target,
		FinalURL:     resp.Request.URL.String(),
		StatusCode:   resp.StatusCode,
		Header:       resp.Header.Clone(),
		SetCookies:   append([]string(nil), resp.Header.Values("Set-Cookie")...),
		FetchedAt:    time.Now(),
	}

	if isHTML(resp.Header.Get("Content-Type")) {
		result.Title = extractTitle(io.LimitReader(resp.Body, constants.TitleReadLimitBytes))
	}

	return result, nil
}

func (f *HTTPFetcher) client() (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}

	transport := f.Transport
	if transport == nil {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultScanTimeout
	}

	maxRedirects := f.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = constants.DefaultMaxRedirects
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		Jar:       jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("exceeded %d redirects", maxRedirects)
			}
			return nil
		},
	}, nil
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "html")
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}
