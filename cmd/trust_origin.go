package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/webguard-sec/webguard/internal/shared/constants"
)

var trustOriginCmd = &cobra.Command{
	Use:   "trust-origin <https-url>",
	Short: "Allow form posts from another HTTPS origin",
	Long: `Add an origin to server.trusted_origins in the config file so pages
served through a tunnel or proxy (for example ngrok) pass the CSRF origin
check. Adding an ngrok origin replaces any older ngrok origin.

Restart "webguard serve" for the change to take effect.`,
	Example: `  webguard trust-origin https://1234-56-78-910-111.ngrok-free.app`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		origin, err := normalizeOrigin(args[0])
		if err != nil {
			return err
		}

		path, err := configFilePath(viper.ConfigFileUsed())
		if err != nil {
			return err
		}

		added, err := writeTrustedOrigin(path, origin)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if !added {
			fmt.Fprintf(out, "%s Origin already trusted: %s\n", colorSuccess("✓"), origin)
			return nil
		}
		fmt.Fprintf(out, "%s Added trusted origin %s\n", colorSuccess("✓"), origin)
		fmt.Fprintf(out, "   Config: %s\n", path)
		fmt.Fprintf(out, "%s Restart webguard serve for the change to take effect\n", colorWarn("!"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(trustOriginCmd)
}

// normalizeOrigin reduces raw to scheme://host[:port]. Only https origins
// are accepted.
func normalizeOrigin(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &InvalidOriginError{}
	}
	if !strings.HasPrefix(strings.ToLower(raw), "https://") {
		return "", &InvalidOriginError{Origin: raw, Reason: "must start with https://"}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", &InvalidOriginError{Origin: raw, Reason: err.Error()}
	}
	switch {
	case u.Host == "" || u.Hostname() == "":
		return "", &InvalidOriginError{Origin: raw, Reason: "missing host"}
	case u.User != nil:
		return "", &InvalidOriginError{Origin: raw, Reason: "credentials are not allowed"}
	case (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.Fragment != "":
		return "", &InvalidOriginError{Origin: raw, Reason: "an origin has no path, query or fragment"}
	}
	return "https://" + strings.ToLower(u.Host), nil
}

// mergeTrustedOrigin returns origins with origin added. An ngrok origin
// replaces earlier ngrok origins since each tunnel gets a new hostname.
func mergeTrustedOrigin(origins []string, origin string) ([]string, bool) {
	for _, existing := range origins {
		if strings.EqualFold(strings.TrimSuffix(existing, "/"), origin) {
			return origins, false
		}
	}

	merged := make([]string, 0, len(origins)+1)
	for _, existing := range origins {
		if isNgrokOrigin(origin) && isNgrokOrigin(existing) {
			continue
		}
		merged = append(merged, existing)
	}
	return append(merged, origin), true
}

func isNgrokOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(u.Hostname()), "ngrok")
}

// writeTrustedOrigin updates the config file at path, creating it when
// missing. Other settings in the file are kept.
func writeTrustedOrigin(path, origin string) (bool, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json", ".toml":
	default:
		return false, fmt.Errorf("config file %s needs a .yaml, .yml, .json or .toml extension", path)
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("failed to read config: %w", err)
	}

	origins, added := mergeTrustedOrigin(v.GetStringSlice(keyServerTrustedOrigins), origin)
	if !added {
		return false, nil
	}
	v.Set(keyServerTrustedOrigins, origins)

	if err := os.MkdirAll(filepath.Dir(path), constants.DefaultDirPerm); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return false, fmt.Errorf("failed to write config: %w", err)
	}
	return true, nil
}
