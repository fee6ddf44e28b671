package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/webguard-sec/webguard/internal/application"
	"github.com/webguard-sec/webguard/internal/scanner"
	"github.com/webguard-sec/webguard/internal/shared/constants"
	"go.uber.org/zap"
)

const (
	envPrefix      = "WEBGUARD"
	configFileName = ".webguard"
)

var (
	cfgFile     string
	dataDirFlag string
	debug       bool
)

// scanFetcher replaces the HTTP fetcher when set. Tests use it to avoid the
// network.
var scanFetcher scanner.Fetcher

// globalAppContext is the context of the running command. Commands reach it
// through getAppContext.
var globalAppContext *AppContext

// AppContext carries what every command needs once configuration is loaded.
type AppContext struct {
	Logger  *zap.SugaredLogger
	Config  *CLIConfig
	DataDir string

	// services is opened on first use so commands like version and
	// trust-origin never touch storage.
	services *application.Container
	zap      *zap.Logger
}

type appContextKey struct{}

var rootCmd = &cobra.Command{
	Use:   "webguard",
	Short: "Website security header scanner with a web UI",
	Long: `WebGuard fetches a URL, checks its HTTPS setup, security headers and
cookie flags, and scores the result from 0 to 100.

Run "webguard serve" for the web interface or "webguard scan <url>" for a
one-off scan in the terminal.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(); err != nil {
			return err
		}

		cfg, err := loadCLIConfig(viper.GetViper())
		if err != nil {
			return err
		}

		l, err := newLogger(debug)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}

		dataDir, err := resolveDataDir(cfg.DataDir)
		if err != nil {
			return err
		}

		appCtx := &AppContext{
			Logger:  l.Sugar(),
			Config:  cfg,
			DataDir: dataDir,
			zap:     l,
		}
		storeAppContext(cmd, appCtx)

		appCtx.Logger.Debugw("configuration loaded",
			"config_file", viper.ConfigFileUsed(),
			"data_dir", dataDir,
			"storage", cfg.Storage.Driver,
		)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		if appCtx == nil {
			return nil
		}
		return appCtx.Close()
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	err := rootCmd.Execute()
	if globalAppContext != nil {
		_ = globalAppContext.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, colorError("Error:"), err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.webguard.yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "directory holding the database (overrides data_dir)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable development logging")

	rootCmd.AddCommand(versionCmd)
}

// initConfig points viper at the config file and environment. A missing
// config file leaves the defaults in place.
func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(configFileName)
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()
	setDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// trust-origin creates the file named by --config
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	if dataDirFlag != "" {
		viper.Set(keyDataDir, dataDirFlag)
	}
	return nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// resolveDataDir picks the configured directory or the per-user default and
// makes sure it exists.
func resolveDataDir(configured string) (string, error) {
	if configured == "" {
		return getDataDir()
	}

	dir, err := filepath.Abs(configured)
	if err != nil {
		return "", fmt.Errorf("invalid data directory %q: %w", configured, err)
	}
	if err := os.MkdirAll(dir, constants.DefaultDirPerm); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dir, nil
}

func storeAppContext(cmd *cobra.Command, appCtx *AppContext) {
	globalAppContext = appCtx
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, appContextKey{}, appCtx))
}

func getAppContext(cmd *cobra.Command) *AppContext {
	if cmd != nil && cmd.Context() != nil {
		if appCtx, ok := cmd.Context().Value(appContextKey{}).(*AppContext); ok {
			return appCtx
		}
	}
	return globalAppContext
}

// Services opens the storage back-end and application services.
func (a *AppContext) Services() (*application.Container, error) {
	if a.services != nil {
		return a.services, nil
	}

	c, err := application.NewContainer(application.Config{
		DataDir:       a.DataDir,
		StorageDriver: a.Config.Storage.Driver,
		SessionTTL:    a.Config.Server.SessionTTL,
		HistoryLimit:  a.Config.History.Limit,
		ScanTimeout:   a.Config.Scanner.Timeout,
		UserAgent:     a.Config.Scanner.UserAgent,
		MaxRedirects:  a.Config.Scanner.MaxRedirects,
		Fetcher:       scanFetcher,
		Logger:        a.zapLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	a.services = c
	return c, nil
}

func (a *AppContext) zapLogger() *zap.Logger {
	if a.zap != nil {
		return a.zap
	}
	return zap.NewNop()
}

// Close releases storage and flushes the logger.
func (a *AppContext) Close() error {
	var err error
	if a.services != nil {
		err = a.services.Close()
		a.services = nil
	}
	if a.zap != nil {
		_ = a.zap.Sync()
	}
	return err
}
