package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/webguard-sec/webguard/internal/application"
	"github.com/webguard-sec/webguard/internal/shared/constants"
	"github.com/webguard-sec/webguard/internal/web"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the WebGuard web interface and JSON API",
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		applyServeFlags(cmd.Flags(), &appCtx.Config.Server)
		srvCfg := appCtx.Config.Server

		services, err := appCtx.Services()
		if err != nil {
			return err
		}
		logger := appCtx.zapLogger()

		server, err := web.NewServer(webConfig(appCtx.Config, services, logger))
		if err != nil {
			return fmt.Errorf("failed to create web server: %w", err)
		}
		defer server.Close()

		httpServer := &http.Server{
			Addr:              srvCfg.Addr,
			Handler:           server,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			// scans block on a remote fetch before the response is written
			WriteTimeout: appCtx.Config.Scanner.Timeout + 30*time.Second,
			IdleTimeout:  120 * time.Second,
		}

		sweepCtx, stopSweeper := context.WithCancel(context.Background())
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			sweepSessions(sweepCtx, services.AuthService, constants.SessionSweepInterval, logger)
		}()
		defer func() {
			stopSweeper()
			wg.Wait()
		}()

		// Channel to listen for errors from the server
		serverErrors := make(chan error, 1)

		go func() {
			fmt.Printf("%s WebGuard listening on http://%s (data dir: %s, storage: %s)\n",
				colorInfo("→"), srvCfg.Addr, appCtx.DataDir, appCtx.Config.Storage.Driver)
			fmt.Printf("%s Press Ctrl+C to gracefully shutdown\n", colorInfo("→"))
			serverErrors <- httpServer.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
		case sig := <-shutdown:
			fmt.Printf("\n%s Received signal %v, initiating graceful shutdown...\n", colorInfo("→"), sig)

			ctx, cancel := context.WithTimeout(context.Background(), srvCfg.ShutdownTimeout)
			defer cancel()

			if err := httpServer.Shutdown(ctx); err != nil {
				// Force close if graceful shutdown fails
				if closeErr := httpServer.Close(); closeErr != nil {
					return fmt.Errorf("failed to gracefully shutdown server: %w (close error: %v)", err, closeErr)
				}
				return fmt.Errorf("failed to gracefully shutdown server: %w", err)
			}

			fmt.Printf("%s Server shutdown complete\n", colorSuccess("✓"))
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", defaultServerAddr, "Address for the web server (overrides server.addr)")
	serveCmd.Flags().String("auth-token", "", "Shared secret required on /api/ requests")
	serveCmd.Flags().Duration("shutdown-timeout", defaultShutdownTimeout, "Graceful shutdown timeout")
	serveCmd.Flags().StringSlice("cors-origins", []string{}, "Allowed CORS origins for the API (empty = allow all)")
	serveCmd.Flags().StringSlice("trusted-origins", []string{}, "Extra origins accepted on form posts")
	serveCmd.Flags().Int("rate-limit", defaultRateLimit, "Rate limit per IP (requests/second, 0 = disabled)")
	serveCmd.Flags().Int("rate-burst", defaultRateBurst, "Rate limit burst size")
	serveCmd.Flags().Bool("secure-cookies", false, "Mark cookies Secure and send HSTS (use behind HTTPS)")
	rootCmd.AddCommand(serveCmd)
}

// applyServeFlags lets explicitly set flags win over the config file.
func applyServeFlags(flags *pflag.FlagSet, cfg *ServerConfig) {
	applyStringFlag(flags, "addr", func(v string) { cfg.Addr = v })
	applyStringFlag(flags, "auth-token", func(v string) { cfg.AuthToken = v })
	applyIntFlag(flags, "rate-limit", func(v int) { cfg.RateLimit = v })
	applyIntFlag(flags, "rate-burst", func(v int) { cfg.RateBurst = v })
	applyBoolFlag(flags, "secure-cookies", func(v bool) { cfg.SecureCookies = v })

	if changedFlag(flags, "shutdown-timeout") != nil {
		if v, err := flags.GetDuration("shutdown-timeout"); err == nil {
			cfg.ShutdownTimeout = v
		}
	}
	if changedFlag(flags, "cors-origins") != nil {
		if v, err := flags.GetStringSlice("cors-origins"); err == nil {
			cfg.CORSOrigins = v
		}
	}
	if changedFlag(flags, "trusted-origins") != nil {
		if v, err := flags.GetStringSlice("trusted-origins"); err == nil {
			cfg.TrustedOrigins = append(cfg.TrustedOrigins, v...)
		}
	}
}

func webConfig(cfg *CLIConfig, services *application.Container, logger *zap.Logger) web.Config {
	return web.Config{
		Scans:          services.ScanService,
		Auth:           services.AuthService,
		Health:         services,
		AuthToken:      cfg.Server.AuthToken,
		Logger:         logger,
		CORSOrigins:    cfg.Server.CORSOrigins,
		TrustedOrigins: cfg.Server.TrustedOrigins,
		RateLimit:      cfg.Server.RateLimit,
		RateBurst:      cfg.Server.RateBurst,
		SecureCookies:  cfg.Server.SecureCookies,
		HistoryLimit:   cfg.History.Limit,
	}
}

type sessionPurger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// sweepSessions deletes expired sessions every interval until ctx ends.
func sweepSessions(ctx context.Context, p sessionPurger, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PurgeExpired(ctx)
			if err != nil {
				logger.Warn("session sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("expired sessions purged", zap.Int("count", n))
			}
		}
	}
}
