package constants

import (
	"io/fs"
	"time"
)

const (
	// DefaultDirPerm is the default permission used when creating directories.
	DefaultDirPerm fs.FileMode = 0o755
	// DefaultFilePerm is the default permission used when creating files.
	DefaultFilePerm fs.FileMode = 0o644
	// PrivateFilePerm is used for files holding credentials or sessions.
	PrivateFilePerm fs.FileMode = 0o600
)

const (
	// DefaultUserAgent identifies scanner requests to the scanned site.
	DefaultUserAgent = "WebGuard Security Scanner/1.0"
	// DefaultScanTimeout bounds a whole fetch, redirects included.
	DefaultScanTimeout = 10 * time.Second
	// DefaultMaxRedirects matches the redirect budget of common HTTP clients.
	DefaultMaxRedirects = 30
	// TitleReadLimitBytes caps how much of a response body is parsed for <title>.
	TitleReadLimitBytes = 512 * 1024
	// MaxURLLength is the longest URL a scan result may store.
	MaxURLLength = 500
)

const (
	// DefaultHistoryLimit is the number of scans shown on the history page.
	DefaultHistoryLimit = 50
	// DefaultSessionTTL mirrors the two week login lifetime users expect.
	DefaultSessionTTL = 14 * 24 * time.Hour
	// SessionSweepInterval controls how often expired sessions are purged.
	SessionSweepInterval = time.Hour
)
