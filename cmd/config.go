package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/webguard-sec/webguard/internal/application"
	"github.com/webguard-sec/webguard/internal/shared/constants"
)

// Configuration keys. Environment variables use the WEBGUARD_ prefix with
// dots replaced by underscores, e.g. WEBGUARD_SERVER_ADDR.
const (
	keyDataDir               = "data_dir"
	keyStorageDriver         = "storage.driver"
	keyServerAddr            = "server.addr"
	keyServerAuthToken       = "server.auth_token"
	keyServerCORSOrigins     = "server.cors_origins"
	keyServerTrustedOrigins  = "server.trusted_origins"
	keyServerRateLimit       = "server.rate_limit"
	keyServerRateBurst       = "server.rate_burst"
	keyServerSecureCookies   = "server.secure_cookies"
	keyServerSessionTTL      = "server.session_ttl"
	keyServerShutdownTimeout = "server.shutdown_timeout"
	keyScannerTimeout        = "scanner.timeout"
	keyScannerUserAgent      = "scanner.user_agent"
	keyScannerMaxRedirects   = "scanner.max_redirects"
	keyHistoryLimit          = "history.limit"
)

const (
	defaultServerAddr      = "127.0.0.1:8000"
	defaultRateLimit       = 10
	defaultRateBurst       = 20
	defaultShutdownTimeout = 30 * time.Second
)

var envKeyReplacer = strings.NewReplacer(".", "_")

// CLIConfig captures runtime configuration shared across commands.
type CLIConfig struct {
	DataDir string
	Storage StorageConfig
	Server  ServerConfig
	Scanner ScannerConfig
	History HistoryConfig
}

// StorageConfig selects the persistence back-end.
type StorageConfig struct {
	Driver string
}

// ServerConfig holds the web server settings used by serve.
type ServerConfig struct {
	Addr            string
	AuthToken       string
	CORSOrigins     []string
	TrustedOrigins  []string
	RateLimit       int
	RateBurst       int
	SecureCookies   bool
	SessionTTL      time.Duration
	ShutdownTimeout time.Duration
}

// ScannerConfig tunes outbound fetches.
type ScannerConfig struct {
	Timeout      time.Duration
	UserAgent    string
	MaxRedirects int
}

// HistoryConfig bounds the shared history page.
type HistoryConfig struct {
	Limit int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(keyDataDir, "")
	v.SetDefault(keyStorageDriver, application.DriverSQLite)
	v.SetDefault(keyServerAddr, defaultServerAddr)
	v.SetDefault(keyServerAuthToken, "")
	v.SetDefault(keyServerCORSOrigins, []string{})
	v.SetDefault(keyServerTrustedOrigins, []string{})
	v.SetDefault(keyServerRateLimit, defaultRateLimit)
	v.SetDefault(keyServerRateBurst, defaultRateBurst)
	v.SetDefault(keyServerSecureCookies, false)
	v.SetDefault(keyServerSessionTTL, constants.DefaultSessionTTL)
	v.SetDefault(keyServerShutdownTimeout, defaultShutdownTimeout)
	v.SetDefault(keyScannerTimeout, constants.DefaultScanTimeout)
	v.SetDefault(keyScannerUserAgent, constants.DefaultUserAgent)
	v.SetDefault(keyScannerMaxRedirects, constants.DefaultMaxRedirects)
	v.SetDefault(keyHistoryLimit, constants.DefaultHistoryLimit)
}

// loadCLIConfig reads every setting from v and rejects values the services
// cannot work with.
func loadCLIConfig(v *viper.Viper) (*CLIConfig, error) {
	cfg := &CLIConfig{
		DataDir: strings.TrimSpace(v.GetString(keyDataDir)),
		Storage: StorageConfig{
			Driver: strings.ToLower(strings.TrimSpace(v.GetString(keyStorageDriver))),
		},
		Server: ServerConfig{
			Addr:            v.GetString(keyServerAddr),
			AuthToken:       v.GetString(keyServerAuthToken),
			CORSOrigins:     v.GetStringSlice(keyServerCORSOrigins),
			TrustedOrigins:  v.GetStringSlice(keyServerTrustedOrigins),
			RateLimit:       v.GetInt(keyServerRateLimit),
			RateBurst:       v.GetInt(keyServerRateBurst),
			SecureCookies:   v.GetBool(keyServerSecureCookies),
			SessionTTL:      v.GetDuration(keyServerSessionTTL),
			ShutdownTimeout: v.GetDuration(keyServerShutdownTimeout),
		},
		Scanner: ScannerConfig{
			Timeout:      v.GetDuration(keyScannerTimeout),
			UserAgent:    v.GetString(keyScannerUserAgent),
			MaxRedirects: v.GetInt(keyScannerMaxRedirects),
		},
		History: HistoryConfig{
			Limit: v.GetInt(keyHistoryLimit),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *CLIConfig) validate() error {
	switch c.Storage.Driver {
	case application.DriverSQLite, application.DriverJSON:
	default:
		return &ConfigValueError{Key: keyStorageDriver, Value: c.Storage.Driver,
			Reason: fmt.Sprintf("want %s or %s", application.DriverSQLite, application.DriverJSON)}
	}
	if c.Server.RateLimit < 0 {
		return &ConfigValueError{Key: keyServerRateLimit, Value: fmt.Sprint(c.Server.RateLimit), Reason: "must not be negative"}
	}
	if c.Server.SessionTTL <= 0 {
		return &ConfigValueError{Key: keyServerSessionTTL, Value: c.Server.SessionTTL.String(), Reason: "must be positive"}
	}
	if c.Scanner.Timeout <= 0 {
		return &ConfigValueError{Key: keyScannerTimeout, Value: c.Scanner.Timeout.String(), Reason: "must be positive"}
	}
	if c.Scanner.MaxRedirects < 0 {
		return &ConfigValueError{Key: keyScannerMaxRedirects, Value: fmt.Sprint(c.Scanner.MaxRedirects), Reason: "must not be negative"}
	}
	if c.History.Limit < 0 {
		return &ConfigValueError{Key: keyHistoryLimit, Value: fmt.Sprint(c.History.Limit), Reason: "must not be negative"}
	}
	return nil
}

// Command flags override configuration only when the user set them
// explicitly; otherwise the config file or environment value stays.

func applyStringFlag(flags *pflag.FlagSet, name string, setter func(string)) {
	if flag := changedFlag(flags, name); flag != nil && setter != nil {
		setter(flag.Value.String())
	}
}

func applyIntFlag(flags *pflag.FlagSet, name string, setter func(int)) {
	if changedFlag(flags, name) == nil || setter == nil {
		return
	}
	if v, err := flags.GetInt(name); err == nil {
		setter(v)
	}
}

func applyBoolFlag(flags *pflag.FlagSet, name string, setter func(bool)) {
	if changedFlag(flags, name) == nil || setter == nil {
		return
	}
	if v, err := flags.GetBool(name); err == nil {
		setter(v)
	}
}

func changedFlag(flags *pflag.FlagSet, name string) *pflag.Flag {
	if flags == nil {
		return nil
	}
	flag := flags.Lookup(name)
	if flag == nil || !flag.Changed {
		return nil
	}
	return flag
}
