// Package seed loads the demo account and sample scan results.
package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/webguard-sec/webguard/internal/domain/scan"
	"github.com/webguard-sec/webguard/internal/domain/user"
	"github.com/webguard-sec/webguard/internal/scanner"
	sharedErrors "github.com/webguard-sec/webguard/internal/shared/errors"
	"github.com/webguard-sec/webguard/internal/shared/security"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed demo_data.yaml
var demoData []byte

// Fixture is the demo data set.
type Fixture struct {
	User  FixtureUser   `yaml:"user"`
	Scans []FixtureScan `yaml:"scans"`
}

type FixtureUser struct {
	Username  string `yaml:"username"`
	Email     string `yaml:"email"`
	Password  string `yaml:"password"`
	Staff     bool   `yaml:"staff"`
	Superuser bool   `yaml:"superuser"`
}

type FixtureScan struct {
	URL        string            `yaml:"url"`
	FinalURL   string            `yaml:"final_url"`
	StatusCode int               `yaml:"status_code"`
	Score      int               `yaml:"score"`
	Headers    map[string]string `yaml:"headers"`
	Issues     []FixtureIssue    `yaml:"issues"`
}

type FixtureIssue struct {
	Severity       string `yaml:"severity"`
	Category       string `yaml:"category"`
	Message        string `yaml:"message"`
	Recommendation string `yaml:"recommendation"`
}

// Summary reports what a Seed run changed.
type Summary struct {
	Username     string
	UserCreated  bool
	CreatedScans []*scan.Result
	SkippedURLs  []string
}

// LoadFixture parses the embedded demo data.
func LoadFixture() (*Fixture, error) {
	return ParseFixture(demoData)
}

// ParseFixture parses demo data in the embedded YAML layout.
func ParseFixture(data []byte) (*Fixture, error) {
	var fixture Fixture
	if err := yaml.Unmarshal(data, &fixture); err != nil {
		return nil, fmt.Errorf("%w: demo data: %v", sharedErrors.ErrDeserializationFailed, err)
	}
	if fixture.User.Username == "" || fixture.User.Password == "" {
		return nil, fmt.Errorf("%w: demo user", sharedErrors.ErrMissingRequired)
	}
	return &fixture, nil
}

// Service writes the demo fixture into the repositories
type Service struct {
	users   user.Repository
	scans   scan.Repository
	logger  *zap.Logger
	fixture *Fixture
}

// NewService creates a seed service for fixture; nil uses the embedded data.
func NewService(users user.Repository, scans scan.Repository, fixture *Fixture, logger *zap.Logger) (*Service, error) {
	if fixture == nil {
		loaded, err := LoadFixture()
		if err != nil {
			return nil, err
		}
		fixture = loaded
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{users: users, scans: scans, logger: logger, fixture: fixture}, nil
}

// Seed creates the demo user and scans. Running it again skips the user and
// every scan whose URL is already stored.
func (s *Service) Seed(ctx context.Context) (*Summary, error) {
	owner, created, err := s.ensureUser(ctx)
	if err != nil {
		return nil, err
	}

	summary := &Summary{Username: owner.Username(), UserCreated: created}

	for _, fs := range s.fixture.Scans {
		existing, err := s.scans.FindByURL(ctx, fs.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to check existing scans for %s: %w", fs.URL, err)
		}
		if len(existing) > 0 {
			s.logger.Info("demo scan already exists, skipping", zap.String("url", fs.URL))
			summary.SkippedURLs = append(summary.SkippedURLs, fs.URL)
			continue
		}

		result, err := buildResult(fs, owner)
		if err != nil {
			return nil, err
		}
		if err := s.scans.Save(ctx, result); err != nil {
			return nil, fmt.Errorf("failed to save demo scan %s: %w", fs.URL, err)
		}

		s.logger.Info("demo scan created", zap.String("url", fs.URL), zap.Int("score", fs.Score))
		summary.CreatedScans = append(summary.CreatedScans, result)
	}

	return summary, nil
}

// ensureUser stores the fixture password directly; fixture data is exempt
// from the sign-up password policy.
func (s *Service) ensureUser(ctx context.Context) (*user.User, bool, error) {
	fu := s.fixture.User

	existing, err := s.users.FindByUsername(ctx, fu.Username)
	if err == nil {
		s.logger.Info("demo user already exists", zap.String("username", fu.Username))
		return existing, false, nil
	}
	if !errors.Is(err, sharedErrors.ErrUserNotFound) {
		return nil, false, fmt.Errorf("failed to look up demo user: %w", err)
	}

	hash, err := security.HashPassword(fu.Password)
	if err != nil {
		return nil, false, fmt.Errorf("failed to hash demo password: %w", err)
	}
	u, err := user.NewUser(fu.Username, fu.Email, hash)
	if err != nil {
		return nil, false, err
	}
	if fu.Staff || fu.Superuser {
		u.GrantStaff(fu.Superuser)
	}
	if err := s.users.Save(ctx, u); err != nil {
		return nil, false, fmt.Errorf("failed to save demo user: %w", err)
	}

	s.logger.Info("demo user created", zap.String("username", u.Username()))
	return u, true, nil
}

func buildResult(fs FixtureScan, owner *user.User) (*scan.Result, error) {
	result, err := scan.NewResult(fs.URL, owner.ID(), owner.Username())
	if err != nil {
		return nil, fmt.Errorf("demo scan %s: %w", fs.URL, err)
	}
	result.RecordResponse(fs.FinalURL, fs.StatusCode, "", fs.Headers)
	if err := result.SetScore(fs.Score); err != nil {
		return nil, fmt.Errorf("demo scan %s: %w", fs.URL, err)
	}

	for _, fi := range fs.Issues {
		severity, ok := scanner.ParseSeverity(fi.Severity)
		if !ok {
			return nil, fmt.Errorf("demo scan %s: %w: %q", fs.URL, sharedErrors.ErrInvalidSeverity, fi.Severity)
		}
		if _, err := result.AddIssue(severity, fi.Category, fi.Message, fi.Recommendation); err != nil {
			return nil, fmt.Errorf("demo scan %s: %w", fs.URL, err)
		}
	}
	return result, nil
}
