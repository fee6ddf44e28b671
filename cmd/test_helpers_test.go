package cmd

import (
	"bytes"
	"context"
	"net/http"
	"path/filepath"
	"sync"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/webguard-sec/webguard/internal/scanner"
	sharedErrors "github.com/webguard-sec/webguard/internal/shared/errors"
)

// stubFetcher returns a page with every security header except CSP, which
// scores 85 (B) with a single high issue.
type stubFetcher struct {
	mu    sync.Mutex
	fail  bool
	calls int
}

func (f *stubFetcher) Fetch(ctx context.Context, target string) (*scanner.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
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

// cliEnv runs commands against a private data directory and config file.
type cliEnv struct {
	t          *testing.T
	dataDir    string
	configPath string
	fetcher    *stubFetcher
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()

	originalFetcher := scanFetcher
	originalNoColor := color.NoColor
	color.NoColor = true

	dir := t.TempDir()
	env := &cliEnv{
		t:          t,
		dataDir:    filepath.Join(dir, "data"),
		configPath: filepath.Join(dir, "webguard.yaml"),
		fetcher:    &stubFetcher{},
	}
	scanFetcher = env.fetcher

	t.Cleanup(func() {
		scanFetcher = originalFetcher
		color.NoColor = originalNoColor
		resetCLIState()
	})
	return env
}

// run executes the root command with args and returns everything written to
// stdout.
func (e *cliEnv) run(args ...string) (string, error) {
	e.t.Helper()
	resetCLIState()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", e.configPath, "--data-dir", e.dataDir}, args...))
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.ExecuteContext(context.Background())
	if globalAppContext != nil {
		_ = globalAppContext.Close()
	}
	return out.String(), err
}

func (e *cliEnv) mustRun(args ...string) string {
	e.t.Helper()
	out, err := e.run(args...)
	if err != nil {
		e.t.Fatalf("webguard %v failed: %v\n%s", args, err, out)
	}
	return out
}

// resetCLIState clears package globals and flag values that cobra keeps
// between executions.
func resetCLIState() {
	viper.Reset()
	cfgFile, dataDirFlag, debug = "", "", false
	globalAppContext = nil
	resetFlags(rootCmd)
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}
