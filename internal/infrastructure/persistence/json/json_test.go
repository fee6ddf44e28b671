package json

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webguard-sec/webguard/internal/domain/scan"
	"github.com/webguard-sec/webguard/internal/domain/session"
	"github.com/webguard-sec/webguard/internal/domain/user"
	"github.com/webguard-sec/webguard/internal/scanner"
	sharedErrors "github.com/webguard-sec/webguard/internal/shared/errors"
)

type repos struct {
	scans    *ScanRepository
	users    *UserRepository
	sessions *SessionRepository
}

func newRepos(t *testing.T) (repos, string) {
	t.Helper()
	dir := t.TempDir()

	scans, err := NewScanRepository(dir)
	require.NoError(t, err)
	sessions, err := NewSessionRepository(dir)
	require.NoError(t, err)
	users, err := NewUserRepository(dir, scans, sessions)
	require.NoError(t, err)

	return repos{scans: scans, users: users, sessions: sessions}, dir
}

func mustResult(t *testing.T, url string, ownerID int64, createdAt time.Time, severities ...scanner.Severity) *scan.Result {
	t.Helper()
	result, err := scan.NewResult(url, ownerID, "")
	require.NoError(t, err)
	result.RecordResponse(url, 200, "", map[string]string{"Server": "test"})
	for _, sev := range severities {
		_, err := result.AddIssue(sev, "Category", "Message", "")
		require.NoError(t, err)
	}
	result.SetCreatedAt(createdAt)
	return result
}

func TestNewRepositories_CreateFiles(t *testing.T) {
	_, dir := newRepos(t)

	for _, name := range []string{ScansFile, UsersFile, SessionsFile} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.JSONEq(t, "[]", string(data), name)
	}

	info, err := os.Stat(filepath.Join(dir, UsersFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	_, err = NewScanRepository("")
	assert.Error(t, err)
}

func TestScanRepository(t *testing.T) {
	ctx := context.Background()
	r, _ := newRepos(t)
	base := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)

	first := mustResult(t, "https://example.com", 1, base, scanner.SeverityHigh, scanner.SeverityLow)
	second := mustResult(t, "https://github.com", 2, base.Add(time.Hour), scanner.SeverityMedium)
	third := mustResult(t, "https://example.com", 0, base.Add(2*time.Hour))
	for _, result := range []*scan.Result{first, second, third} {
		require.NoError(t, r.scans.Save(ctx, result))
	}

	assert.Equal(t, int64(1), first.ID())
	assert.Equal(t, int64(2), second.ID())
	assert.Equal(t, int64(3), third.ID())
	assert.Equal(t, int64(1), first.Issues()[0].ID())
	assert.Equal(t, int64(2), first.Issues()[1].ID())
	assert.Equal(t, int64(3), second.Issues()[0].ID())

	assert.ErrorIs(t, r.scans.Save(ctx, first), sharedErrors.ErrRepositoryOperation)

	loaded, err := r.scans.FindByID(ctx, first.ID())
	require.NoError(t, err)
	assert.Equal(t, first.URL(), loaded.URL())
	assert.Equal(t, map[string]string{"Server": "test"}, loaded.Headers())
	assert.True(t, base.Equal(loaded.CreatedAt()))
	require.Len(t, loaded.Issues(), 2)
	assert.Equal(t, scanner.SeverityHigh, loaded.Issues()[0].Severity())

	ids := func(results []*scan.Result) []int64 {
		out := []int64{}
		for _, result := range results {
			out = append(out, result.ID())
		}
		return out
	}

	recent, err := r.scans.FindRecent(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 2}, ids(recent))

	owned, err := r.scans.FindByOwner(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids(owned))

	anonymous, err := r.scans.FindByOwner(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, anonymous)

	byURL, err := r.scans.FindByURL(ctx, "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 1}, ids(byURL))

	bySeverity, err := r.scans.Search(ctx, scan.Filter{Severity: scanner.SeverityMedium})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids(bySeverity))

	require.NoError(t, r.scans.Delete(ctx, 2))
	assert.ErrorIs(t, r.scans.Delete(ctx, 2), sharedErrors.ErrScanNotFound)
	_, err = r.scans.FindByID(ctx, 2)
	assert.ErrorIs(t, err, sharedErrors.ErrScanNotFound)

	// ids are never reused while a higher one exists
	fourth := mustResult(t, "https://new.example", 0, base.Add(3*time.Hour))
	require.NoError(t, r.scans.Save(ctx, fourth))
	assert.Equal(t, int64(4), fourth.ID())
}

func TestScanRepository_DoesNotReuseDeletedIDs(t *testing.T) {
	ctx := context.Background()
	r, dir := newRepos(t)
	base := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)

	first := mustResult(t, "https://example.com", 0, base, scanner.SeverityHigh)
	newest := mustResult(t, "https://github.com", 0, base.Add(time.Hour), scanner.SeverityLow, scanner.SeverityLow)
	require.NoError(t, r.scans.Save(ctx, first))
	require.NoError(t, r.scans.Save(ctx, newest))
	require.NoError(t, r.scans.Delete(ctx, newest.ID()))

	// a fresh repository over the same directory still knows the mark
	reopened, err := NewScanRepository(dir)
	require.NoError(t, err)
	next := mustResult(t, "https://next.example", 0, base.Add(2*time.Hour), scanner.SeverityMedium)
	require.NoError(t, reopened.Save(ctx, next))

	assert.Equal(t, int64(3), next.ID())
	assert.Equal(t, int64(4), next.Issues()[0].ID())

	_, err = os.Stat(filepath.Join(dir, "scans.seq.json"))
	assert.NoError(t, err)
}

func TestScanRepository_SequenceBehindExistingIDs(t *testing.T) {
	ctx := context.Background()
	r, dir := newRepos(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ScansFile),
		[]byte(`[{"id": 7, "url": "https://old.example", "score": 50, "created_at": "", "issues": [{"id": 9, "severity": "low", "category": "C", "message": "M", "created_at": ""}]}]`), 0o644))

	result := mustResult(t, "https://example.com", 0, time.Now(), scanner.SeverityHigh)
	require.NoError(t, r.scans.Save(ctx, result))
	assert.Equal(t, int64(8), result.ID())
	assert.Equal(t, int64(10), result.Issues()[0].ID())
}

func TestUserRepository_DoesNotReuseDeletedIDs(t *testing.T) {
	ctx := context.Background()
	r, _ := newRepos(t)

	alice, err := user.NewUser("alice", "", "hash")
	require.NoError(t, err)
	bob, err := user.NewUser("bob", "", "hash")
	require.NoError(t, err)
	require.NoError(t, r.users.Save(ctx, alice))
	require.NoError(t, r.users.Save(ctx, bob))
	require.NoError(t, r.users.Delete(ctx, bob.ID()))

	carol, err := user.NewUser("carol", "", "hash")
	require.NoError(t, err)
	require.NoError(t, r.users.Save(ctx, carol))
	assert.Equal(t, int64(3), carol.ID())
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	r, _ := newRepos(t)

	alice, err := user.NewUser("alice", "alice@example.com", "hash")
	require.NoError(t, err)
	require.NoError(t, r.users.Save(ctx, alice))
	assert.Equal(t, int64(1), alice.ID())

	dup, _ := user.NewUser("alice", "", "hash")
	assert.ErrorIs(t, r.users.Save(ctx, dup), sharedErrors.ErrUserAlreadyExists)

	alice.RecordLogin(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, r.users.Save(ctx, alice))

	loaded, err := r.users.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID(), loaded.ID())
	assert.Equal(t, 2025, loaded.LastLogin().Year())

	_, err = r.users.FindByID(ctx, 42)
	assert.ErrorIs(t, err, sharedErrors.ErrUserNotFound)

	ghost := user.Reconstruct(42, "ghost", "", "hash", false, false, time.Now(), time.Time{})
	assert.ErrorIs(t, r.users.Save(ctx, ghost), sharedErrors.ErrUserNotFound)

	bob, _ := user.NewUser("bob", "", "hash")
	require.NoError(t, r.users.Save(ctx, bob))
	all, err := r.users.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "bob", all[1].Username())
}

func TestUserRepository_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	r, _ := newRepos(t)

	alice, _ := user.NewUser("alice", "", "hash")
	require.NoError(t, r.users.Save(ctx, alice))
	bob, _ := user.NewUser("bob", "", "hash")
	require.NoError(t, r.users.Save(ctx, bob))

	now := time.Now().UTC()
	aliceScan := mustResult(t, "https://a.example", alice.ID(), now)
	bobScan := mustResult(t, "https://b.example", bob.ID(), now)
	require.NoError(t, r.scans.Save(ctx, aliceScan))
	require.NoError(t, r.scans.Save(ctx, bobScan))

	aliceSession, _ := session.New(alice.ID(), time.Hour, now)
	bobSession, _ := session.New(bob.ID(), time.Hour, now)
	require.NoError(t, r.sessions.Save(ctx, aliceSession))
	require.NoError(t, r.sessions.Save(ctx, bobSession))

	require.NoError(t, r.users.Delete(ctx, alice.ID()))
	assert.ErrorIs(t, r.users.Delete(ctx, alice.ID()), sharedErrors.ErrUserNotFound)

	_, err := r.scans.FindByID(ctx, aliceScan.ID())
	assert.ErrorIs(t, err, sharedErrors.ErrScanNotFound)
	_, err = r.scans.FindByID(ctx, bobScan.ID())
	assert.NoError(t, err)

	_, err = r.sessions.Find(ctx, aliceSession.Token())
	assert.ErrorIs(t, err, sharedErrors.ErrSessionNotFound)
	_, err = r.sessions.Find(ctx, bobSession.Token())
	assert.NoError(t, err)
}

func TestSessionRepository(t *testing.T) {
	ctx := context.Background()
	r, dir := newRepos(t)
	now := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	live, _ := session.New(1, time.Hour, now)
	expired, _ := session.New(1, time.Minute, now.Add(-time.Hour))
	require.NoError(t, r.sessions.Save(ctx, live))
	require.NoError(t, r.sessions.Save(ctx, expired))
	require.NoError(t, r.sessions.Save(ctx, live))

	loaded, err := r.sessions.Find(ctx, live.Token())
	require.NoError(t, err)
	assert.True(t, live.ExpiresAt().Equal(loaded.ExpiresAt()))

	removed, err := r.sessions.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	require.NoError(t, r.sessions.Delete(ctx, live.Token()))
	require.NoError(t, r.sessions.Delete(ctx, "unknown"))
	_, err = r.sessions.Find(ctx, live.Token())
	assert.ErrorIs(t, err, sharedErrors.ErrSessionNotFound)

	info, err := os.Stat(filepath.Join(dir, SessionsFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestReadList_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ScansFile)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	repo, err := NewScanRepository(dir)
	require.NoError(t, err)

	_, err = repo.FindRecent(context.Background(), 0)
	assert.ErrorIs(t, err, sharedErrors.ErrDeserializationFailed)
}
