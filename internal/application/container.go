package application

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	authapp "github.com/webguard-sec/webguard/internal/application/auth"
	scanapp "github.com/webguard-sec/webguard/internal/application/scan"
	seedapp "github.com/webguard-sec/webguard/internal/application/seed"
	"github.com/webguard-sec/webguard/internal/domain/scan"
	"github.com/webguard-sec/webguard/internal/domain/session"
	"github.com/webguard-sec/webguard/internal/domain/user"
	"github.com/webguard-sec/webguard/internal/infrastructure/persistence/json"
	"github.com/webguard-sec/webguard/internal/infrastructure/persistence/sqlite"
	"github.com/webguard-sec/webguard/internal/scanner"
	"go.uber.org/zap"
)

// Storage drivers accepted in Config.StorageDriver.
const (
	DriverSQLite = "sqlite"
	DriverJSON   = "json"
)

// Config selects the storage back-end and tunes the services.
type Config struct {
	DataDir       string
	StorageDriver string
	SessionTTL    time.Duration
	HistoryLimit  int

	ScanTimeout  time.Duration
	UserAgent    string
	MaxRedirects int

	// Fetcher replaces the HTTP fetcher; tests use it to avoid the network.
	Fetcher scanner.Fetcher
	Logger  *zap.Logger
}

// Container holds all application services and repositories
// This is a simple dependency injection container
type Container struct {
	// Repositories
	ScanRepo    scan.Repository
	UserRepo    user.Repository
	SessionRepo session.Repository

	Scanner *scanner.Scanner

	// Services
	ScanService *scanapp.Service
	AuthService *authapp.Service
	SeedService *seedapp.Service

	ping  func(ctx context.Context) error
	close func() error
}

// NewContainer creates a new application service container
func NewContainer(cfg Config) (*Container, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data directory cannot be empty")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Container{}
	// Initialize repositories
	switch strings.ToLower(cfg.StorageDriver) {
	case "", DriverSQLite:
		db, err := sqlite.Open(filepath.Join(cfg.DataDir, sqlite.DatabaseFile))
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite storage: %w", err)
		}
		c.ScanRepo = sqlite.NewScanRepository(db)
		c.UserRepo = sqlite.NewUserRepository(db)
		c.SessionRepo = sqlite.NewSessionRepository(db)
		c.ping = db.Ping
		c.close = db.Close
	case DriverJSON:
		scans, err := json.NewScanRepository(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create scan repository: %w", err)
		}
		sessions, err := json.NewSessionRepository(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create session repository: %w", err)
		}
		users, err := json.NewUserRepository(cfg.DataDir, scans, sessions)
		if err != nil {
			return nil, fmt.Errorf("failed to create user repository: %w", err)
		}
		c.ScanRepo, c.UserRepo, c.SessionRepo = scans, users, sessions
		c.ping = func(context.Context) error {
			_, err := os.Stat(cfg.DataDir)
			return err
		}
		c.close = func() error { return nil }
	default:
		return nil, fmt.Errorf("unknown storage driver %q (want %s or %s)", cfg.StorageDriver, DriverSQLite, DriverJSON)
	}

	fetcher := cfg.Fetcher
	if fetcher == nil {
		httpFetcher := scanner.NewHTTPFetcher()
		if cfg.ScanTimeout > 0 {
			httpFetcher.Timeout = cfg.ScanTimeout
		}
		if cfg.UserAgent != "" {
			httpFetcher.UserAgent = cfg.UserAgent
		}
		if cfg.MaxRedirects > 0 {
			httpFetcher.MaxRedirects = cfg.MaxRedirects
		}
		fetcher = httpFetcher
	}
	c.Scanner = scanner.New(fetcher)

	// Initialize services
	c.ScanService = scanapp.NewService(c.ScanRepo, c.Scanner, logger.Named("scan"), cfg.HistoryLimit)
	c.AuthService = authapp.NewService(c.UserRepo, c.SessionRepo, cfg.SessionTTL, logger.Named("auth"))

	seedService, err := seedapp.NewService(c.UserRepo, c.ScanRepo, nil, logger.Named("seed"))
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to create seed service: %w", err)
	}
	c.SeedService = seedService

	return c, nil
}

// Ready reports whether the storage back-end is reachable.
func (c *Container) Ready(ctx context.Context) error {
	if c.ping == nil {
		return nil
	}
	return c.ping(ctx)
}

// Close releases the storage back-end.
func (c *Container) Close() error {
	if c.close == nil {
		return nil
	}
	return c.close()
}
