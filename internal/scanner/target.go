package scanner

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/webguard-sec/webguard/internal/shared/constants"
	sharedErrors "github.com/webguard-sec/webguard/internal/shared/errors"
)

// NormalizeURL turns user input into the URL that will be fetched and stored.
// Input without an http:// or https:// prefix is assumed to be HTTPS:
//   - example.com            -> https://example.com
//   - http://example.com     -> http://example.com
//   - HTTPS://example.com/a  -> HTTPS://example.com/a
func NormalizeURL(raw string) (string, error) {
	target := strings.TrimSpace(raw)
	if target == "" {
		return "", sharedErrors.ErrEmptyURL
	}

	lower := strings.ToLower(target)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		target = "https://" + target
	}

	if len(target) > constants.MaxURLLength {
		return "", sharedErrors.ErrURLTooLong
	}

	parsed, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("%w: %v", sharedErrors.ErrInvalidURL, err)
	}
	if parsed.Hostname() == "" {
		return "", fmt.Errorf("%w: missing host in %q", sharedErrors.ErrInvalidURL, target)
	}

	return target, nil
}

// ExtractHost returns the bare hostname of a URL, or "" when it has none.
func ExtractHost(target string) string {
	parsed, err := url.Parse(target)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}
