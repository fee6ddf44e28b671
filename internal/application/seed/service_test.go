package seed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webguard-sec/webguard/internal/infrastructure/persistence/sqlite"
	"github.com/webguard-sec/webguard/internal/scanner"
	sharedErrors "github.com/webguard-sec/webguard/internal/shared/errors"
	"github.com/webguard-sec/webguard/internal/shared/security"
	"go.uber.org/zap/zaptest"
)

func TestLoadFixture(t *testing.T) {
	fixture, err := LoadFixture()
	require.NoError(t, err)

	assert.Equal(t, "demo", fixture.User.Username)
	assert.Equal(t, "demo@webguard.com", fixture.User.Email)
	assert.False(t, fixture.User.Staff)
	require.Len(t, fixture.Scans, 3)

	want := []struct {
		url    string
		score  int
		issues int
	}{
		{url: "https://google.com", score: 85, issues: 2},
		{url: "http://example.com", score: 22, issues: 4},
		{url: "https://github.com", score: 92, issues: 1},
	}
	for i, w := range want {
		assert.Equal(t, w.url, fixture.Scans[i].URL)
		assert.Equal(t, w.score, fixture.Scans[i].Score)
		assert.Len(t, fixture.Scans[i].Issues, w.issues)
	}
	assert.Equal(t, "max-age=31536000; includeSubdomains", fixture.Scans[2].Headers["Strict-Transport-Security"])
	assert.Equal(t, "default-src 'self'", fixture.Scans[0].Headers["Content-Security-Policy"])
}

func TestParseFixture_Errors(t *testing.T) {
	_, err := ParseFixture([]byte("user: [unclosed"))
	assert.ErrorIs(t, err, sharedErrors.ErrDeserializationFailed)

	_, err = ParseFixture([]byte("scans: []"))
	assert.ErrorIs(t, err, sharedErrors.ErrMissingRequired)
}

func TestSeed_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(t.TempDir() + "/" + sqlite.DatabaseFile)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	users := sqlite.NewUserRepository(db)
	scans := sqlite.NewScanRepository(db)
	svc, err := NewService(users, scans, nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	summary, err := svc.Seed(ctx)
	require.NoError(t, err)
	assert.True(t, summary.UserCreated)
	assert.Len(t, summary.CreatedScans, 3)
	assert.Empty(t, summary.SkippedURLs)

	demo, err := users.FindByUsername(ctx, "demo")
	require.NoError(t, err)
	ok, err := security.VerifyPassword(demo.PasswordHash(), "demo123")
	require.NoError(t, err)
	assert.True(t, ok)

	owned, err := scans.FindByOwner(ctx, demo.ID())
	require.NoError(t, err)
	require.Len(t, owned, 3)

	byURL, err := scans.FindByURL(ctx, "http://example.com")
	require.NoError(t, err)
	require.Len(t, byURL, 1)
	example := byURL[0]
	assert.Equal(t, 22, example.Score())
	assert.Equal(t, "http://example.com/", example.FinalURL())
	assert.Equal(t, "Apache", example.Headers()["Server"])
	assert.Equal(t, 3, example.CountBySeverity(scanner.SeverityHigh))
	assert.Equal(t, 1, example.CountBySeverity(scanner.SeverityMedium))

	again, err := svc.Seed(ctx)
	require.NoError(t, err)
	assert.False(t, again.UserCreated)
	assert.Empty(t, again.CreatedScans)
	assert.Equal(t, []string{"https://google.com", "http://example.com", "https://github.com"}, again.SkippedURLs)

	all, err := scans.FindRecent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
