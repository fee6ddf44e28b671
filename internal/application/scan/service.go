package scan

import (
	"context"
	"fmt"

	"github.com/webguard-sec/webguard/internal/domain/scan"
	"github.com/webguard-sec/webguard/internal/domain/user"
	"github.com/webguard-sec/webguard/internal/scanner"
	"github.com/webguard-sec/webguard/internal/shared/constants"
	"go.uber.org/zap"
)

// Scanner runs one scan; *scanner.Scanner satisfies it.
type Scanner interface {
	Scan(ctx context.Context, target string) (*scanner.Report, error)
}

// Service provides application-level scan operations
type Service struct {
	repo         scan.Repository
	scanner      Scanner
	logger       *zap.Logger
	historyLimit int
}

// NewService creates a new scan service
func NewService(repo scan.Repository, sc Scanner, logger *zap.Logger, historyLimit int) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if historyLimit <= 0 {
		historyLimit = constants.DefaultHistoryLimit
	}
	return &Service{
		repo:         repo,
		scanner:      sc,
		logger:       logger,
		historyLimit: historyLimit,
	}
}

// Preview scans rawURL without storing anything.
func (s *Service) Preview(ctx context.Context, rawURL string) (*scanner.Report, error) {
	target, err := scanner.NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	report, err := s.scanner.Scan(ctx, target)
	if err != nil {
		s.logger.Warn("scan failed", zap.String("url", target), zap.Error(err))
		return nil, err
	}
	return report, nil
}

// Submit scans rawURL and stores the result for owner, which may be nil for
// anonymous scans. Nothing is stored when the fetch fails.
func (s *Service) Submit(ctx context.Context, rawURL string, owner *user.User) (*scan.Result, error) {
	report, err := s.Preview(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	var ownerID int64
	var ownerName string
	if owner != nil {
		ownerID, ownerName = owner.ID(), owner.Username()
	}

	result, err := scan.FromReport(report, ownerID, ownerName)
	if err != nil {
		return nil, fmt.Errorf("failed to build scan result: %w", err)
	}

	if err := s.repo.Save(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to save scan result: %w", err)
	}

	s.logger.Info("scan stored",
		zap.Int64("scan_id", result.ID()),
		zap.String("url", result.URL()),
		zap.String("final_url", result.FinalURL()),
		zap.Int("score", result.Score()),
		zap.Int("issues", result.IssueCount()),
		zap.Int64("owner_id", ownerID),
		zap.Duration("duration", report.Duration),
	)
	return result, nil
}

// Get retrieves a stored result by id
func (s *Service) Get(ctx context.Context, id int64) (*scan.Result, error) {
	result, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get scan result: %w", err)
	}
	return result, nil
}

// Recent lists the latest results of every user; limit <= 0 uses the
// configured history limit.
func (s *Service) Recent(ctx context.Context, limit int) ([]*scan.Result, error) {
	if limit <= 0 {
		limit = s.historyLimit
	}
	results, err := s.repo.FindRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list scan results: %w", err)
	}
	return results, nil
}

// ForOwner lists every result of one user
func (s *Service) ForOwner(ctx context.Context, ownerID int64) ([]*scan.Result, error) {
	results, err := s.repo.FindByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list scan results: %w", err)
	}
	return results, nil
}

// Search lists results matching filter
func (s *Service) Search(ctx context.Context, filter scan.Filter) ([]*scan.Result, error) {
	results, err := s.repo.Search(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to search scan results: %w", err)
	}
	return results, nil
}

// Delete removes a stored result and its issues
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete scan result: %w", err)
	}
	s.logger.Info("scan deleted", zap.Int64("scan_id", id))
	return nil
}
