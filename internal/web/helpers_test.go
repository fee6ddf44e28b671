package web

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
	"github.com/webguard-sec/webguard/internal/application"
	authapp "github.com/webguard-sec/webguard/internal/application/auth"
	"github.com/webguard-sec/webguard/internal/scanner"
	sharedErrors "github.com/webguard-sec/webguard/internal/shared/errors"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubFetcher answers every fetch with a page missing CSP and setting one
// insecure cookie, unless fail is set.
type stubFetcher struct {
	mu   sync.Mutex
	fail bool
}

func (f *stubFetcher) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func (f *stubFetcher) Fetch(ctx context.Context, target string) (*scanner.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, sharedErrors.ErrFetchFailed
	}

	header := http.Header{}
	header.Set("Strict-Transport-Security", "max-age=31536000")
	header.Set("X-Frame-Options", "DENY")
	header.Set("X-Content-Type-Options", "nosniff")
	header.Set("Referrer-Policy", "no-referrer")
	header.Set("Permissions-Policy", "geolocation=()")
	header.Set("X-XSS-Protection", "0")

	return &scanner.Response{
		RequestedURL: target,
		FinalURL:     target,
		StatusCode:   http.StatusOK,
		Header:       header,
		Title:        "Example Domain",
	}, nil
}

type testEnv struct {
	server    *Server
	container *application.Container
	fetcher   *stubFetcher
}

func newTestEnv(t *testing.T, tweak func(*Config)) *testEnv {
	t.Helper()

	fetcher := &stubFetcher{}
	c, err := application.NewContainer(application.Config{
		DataDir:       t.TempDir(),
		StorageDriver: application.DriverJSON,
		Fetcher:       fetcher,
		Logger:        zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	cfg := Config{
		Scans:  c.ScanService,
		Auth:   c.AuthService,
		Health: c,
		Logger: zaptest.NewLogger(t),
	}
	if tweak != nil {
		tweak(&cfg)
	}

	srv, err := NewServer(cfg)
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	return &testEnv{server: srv, container: c, fetcher: fetcher}
}

func (e *testEnv) createUser(t *testing.T, username, password string) {
	t.Helper()
	_, err := e.container.AuthService.CreateUser(context.Background(), authapp.CreateUserInput{
		Username: username,
		Password: password,
	})
	require.NoError(t, err)
}

// browser drives the server through a real HTTP client with a cookie jar.
type browser struct {
	t      *testing.T
	ts     *httptest.Server
	client *http.Client
}

func (e *testEnv) browser(t *testing.T) *browser {
	t.Helper()
	ts := httptest.NewServer(e.server)
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	client := ts.Client()
	client.Jar = jar
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &browser{t: t, ts: ts, client: client}
}

func (b *browser) get(path string) *http.Response {
	b.t.Helper()
	resp, err := b.client.Get(b.ts.URL + path)
	require.NoError(b.t, err)
	b.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// csrf returns the token the server handed to this browser.
func (b *browser) csrf() string {
	b.t.Helper()
	u, err := url.Parse(b.ts.URL)
	require.NoError(b.t, err)
	for _, c := range b.client.Jar.Cookies(u) {
		if c.Name == csrfCookie {
			return c.Value
		}
	}
	b.get("/")
	for _, c := range b.client.Jar.Cookies(u) {
		if c.Name == csrfCookie {
			return c.Value
		}
	}
	b.t.Fatal("no csrf cookie issued")
	return ""
}

// post submits form with a valid CSRF token.
func (b *browser) post(path string, form url.Values) *http.Response {
	b.t.Helper()
	form.Set(csrfFormField, b.csrf())
	return b.postRaw(path, form, nil)
}

func (b *browser) postRaw(path string, form url.Values, header http.Header) *http.Response {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodPost, b.ts.URL+path, strings.NewReader(form.Encode()))
	require.NoError(b.t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for name, values := range header {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	resp, err := b.client.Do(req)
	require.NoError(b.t, err)
	b.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// follow loads the Location of a redirect.
func (b *browser) follow(resp *http.Response) *http.Response {
	b.t.Helper()
	require.Equal(b.t, http.StatusFound, resp.StatusCode)
	return b.get(resp.Header.Get("Location"))
}

func (b *browser) login(username, password string) {
	b.t.Helper()
	resp := b.post("/login/", url.Values{"username": {username}, "password": {password}})
	require.Equal(b.t, http.StatusFound, resp.StatusCode)
}

func parseDoc(t *testing.T, resp *http.Response) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	require.NoError(t, err)
	return doc
}

func messages(doc *goquery.Document) []string {
	var out []string
	doc.Find("ul.messages li").Each(func(_ int, s *goquery.Selection) {
		out = append(out, strings.TrimSpace(s.Text()))
	})
	return out
}
