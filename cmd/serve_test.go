package cmd

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newServeFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	flags.AddFlagSet(serveCmd.Flags())
	return flags
}

func TestApplyServeFlags(t *testing.T) {
	resetFlags(serveCmd)
	t.Cleanup(func() { resetFlags(serveCmd) })

	cfg := ServerConfig{
		Addr:            "127.0.0.1:8000",
		RateLimit:       10,
		TrustedOrigins:  []string{"https://config.example"},
		ShutdownTimeout: 30 * time.Second,
	}

	flags := newServeFlags()
	applyServeFlags(flags, &cfg)
	assert.Equal(t, "127.0.0.1:8000", cfg.Addr, "defaults must not override config")

	require.NoError(t, flags.Parse([]string{
		"--addr", ":9000",
		"--rate-limit", "0",
		"--secure-cookies",
		"--shutdown-timeout", "5s",
		"--trusted-origins", "https://flag.example",
	}))
	applyServeFlags(flags, &cfg)

	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, 0, cfg.RateLimit)
	assert.True(t, cfg.SecureCookies)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, []string{"https://config.example", "https://flag.example"}, cfg.TrustedOrigins)
}

type countingPurger struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *countingPurger) PurgeExpired(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return 2, p.err
}

func (p *countingPurger) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestSweepSessions(t *testing.T) {
	for _, purgeErr := range []error{nil, errors.New("database is locked")} {
		p := &countingPurger{err: purgeErr}
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan struct{})
		go func() {
			defer close(done)
			sweepSessions(ctx, p, 5*time.Millisecond, zaptest.NewLogger(t))
		}()

		require.Eventually(t, func() bool { return p.count() >= 2 }, time.Second, 5*time.Millisecond)
		cancel()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("sweeper did not stop after cancel")
		}
	}
}
