package json

import (
	"context"
	"fmt"
	"sync"

	"github.com/webguard-sec/webguard/internal/domain/scan"
	"github.com/webguard-sec/webguard/internal/scanner"
	"github.com/webguard-sec/webguard/internal/shared/constants"
	sharedErrors "github.com/webguard-sec/webguard/internal/shared/errors"
)

// ScansFile holds every scan result with its issues.
const ScansFile = "scans.json"

const (
	seqScanResults = "scan_results"
	seqIssues      = "issues"
)

// scanResultDTO is the data transfer object for JSON serialization
type scanResultDTO struct {
	ID         int64             `json:"id"`
	URL        string            `json:"url"`
	FinalURL   string            `json:"final_url,omitempty"`
	StatusCode int               `json:"status_code,omitempty"`
	Score      int               `json:"score"`
	Title      string            `json:"title,omitempty"`
	Headers    map[string]string `json:"raw_headers,omitempty"`
	OwnerID    int64             `json:"owner_id,omitempty"`
	OwnerName  string            `json:"owner_name,omitempty"`
	CreatedAt  string            `json:"created_at"`
	Issues     []issueDTO        `json:"issues"`
}

type issueDTO struct {
	ID             int64  `json:"id"`
	Severity       string `json:"severity"`
	Category       string `json:"category"`
	Message        string `json:"message"`
	Recommendation string `json:"recommendation,omitempty"`
	CreatedAt      string `json:"created_at"`
}

// ScanRepository implements the scan.Repository interface using JSON file storage
type ScanRepository struct {
	filePath string
	mu       sync.RWMutex
}

// NewScanRepository creates a new JSON-based scan repository
func NewScanRepository(dataDir string) (*ScanRepository, error) {
	filePath, err := prepareFile(dataDir, ScansFile, constants.DefaultFilePerm)
	if err != nil {
		return nil, err
	}
	return &ScanRepository{filePath: filePath}, nil
}

// Save stores a new result, assigning result and issue ids that were never used before
func (r *ScanRepository) Save(ctx context.Context, result *scan.Result) error {
	if result.IsPersisted() {
		return fmt.Errorf("%w: scan result %d is already stored", sharedErrors.ErrRepositoryOperation, result.ID())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	results, err := readList[scanResultDTO](r.filePath)
	if err != nil {
		return fmt.Errorf("failed to load scans: %w", err)
	}

	var maxResultID, maxIssueID int64
	for _, dto := range results {
		if dto.ID > maxResultID {
			maxResultID = dto.ID
		}
		for _, issue := range dto.Issues {
			if issue.ID > maxIssueID {
				maxIssueID = issue.ID
			}
		}
	}

	seq, err := readSequences(r.filePath)
	if err != nil {
		return fmt.Errorf("failed to load scan ids: %w", err)
	}

	issues := result.Issues()
	dto := r.toDTO(result)
	dto.ID = seq.next(seqScanResults, maxResultID)
	for i := range dto.Issues {
		dto.Issues[i].ID = seq.next(seqIssues, maxIssueID)
	}
	results = append(results, dto)

	if err := writeSequences(r.filePath, seq, constants.DefaultFilePerm); err != nil {
		return fmt.Errorf("failed to save scan ids: %w", err)
	}
	if err := writeList(r.filePath, results, constants.DefaultFilePerm); err != nil {
		return fmt.Errorf("failed to save scans: %w", err)
	}

	result.SetID(dto.ID)
	for i, issue := range issues {
		issue.SetID(dto.Issues[i].ID)
	}
	return nil
}

// FindByID retrieves a result with its issues
func (r *ScanRepository) FindByID(ctx context.Context, id int64) (*scan.Result, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results, err := readList[scanResultDTO](r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load scans: %w", err)
	}

	for _, dto := range results {
		if dto.ID == id {
			return r.fromDTO(dto)
		}
	}
	return nil, sharedErrors.ErrScanNotFound
}

// FindRecent retrieves the latest results; limit <= 0 returns all
func (r *ScanRepository) FindRecent(ctx context.Context, limit int) ([]*scan.Result, error) {
	return r.Search(ctx, scan.Filter{Limit: limit})
}

// FindByOwner retrieves every result owned by a user
func (r *ScanRepository) FindByOwner(ctx context.Context, ownerID int64) ([]*scan.Result, error) {
	if ownerID == 0 {
		return []*scan.Result{}, nil
	}
	return r.Search(ctx, scan.Filter{OwnerID: ownerID})
}

// FindByURL retrieves every result for an exact URL
func (r *ScanRepository) FindByURL(ctx context.Context, url string) ([]*scan.Result, error) {
	all, err := r.Search(ctx, scan.Filter{})
	if err != nil {
		return nil, err
	}
	matched := make([]*scan.Result, 0)
	for _, result := range all {
		if result.URL() == url {
			matched = append(matched, result)
		}
	}
	return matched, nil
}

// Search retrieves results matching filter, newest first
func (r *ScanRepository) Search(ctx context.Context, filter scan.Filter) ([]*scan.Result, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results, err := readList[scanResultDTO](r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load scans: %w", err)
	}

	matched := make([]*scan.Result, 0, len(results))
	for _, dto := range results {
		result, err := r.fromDTO(dto)
		if err != nil {
			return nil, fmt.Errorf("failed to convert scan %d: %w", dto.ID, err)
		}
		if filter.Matches(result) {
			matched = append(matched, result)
		}
	}

	scan.SortNewestFirst(matched)
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// Delete removes a result and its issues
func (r *ScanRepository) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	results, err := readList[scanResultDTO](r.filePath)
	if err != nil {
		return fmt.Errorf("failed to load scans: %w", err)
	}

	found := false
	for i, dto := range results {
		if dto.ID == id {
			results = append(results[:i], results[i+1:]...)
			found = true
			break
		}
	}

	if !found {
		return sharedErrors.ErrScanNotFound
	}

	if err := writeList(r.filePath, results, constants.DefaultFilePerm); err != nil {
		return fmt.Errorf("failed to save scans: %w", err)
	}
	return nil
}

// DeleteByOwner removes every result owned by ownerID and reports how many
func (r *ScanRepository) DeleteByOwner(ctx context.Context, ownerID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	results, err := readList[scanResultDTO](r.filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to load scans: %w", err)
	}

	kept := results[:0]
	for _, dto := range results {
		if dto.OwnerID != ownerID {
			kept = append(kept, dto)
		}
	}
	removed := len(results) - len(kept)
	if removed == 0 {
		return 0, nil
	}

	if err := writeList(r.filePath, kept, constants.DefaultFilePerm); err != nil {
		return 0, fmt.Errorf("failed to save scans: %w", err)
	}
	return removed, nil
}

// Helper methods

func (r *ScanRepository) toDTO(result *scan.Result) scanResultDTO {
	dto := scanResultDTO{
		ID:         result.ID(),
		URL:        result.URL(),
		FinalURL:   result.FinalURL(),
		StatusCode: result.StatusCode(),
		Score:      result.Score(),
		Title:      result.Title(),
		Headers:    result.Headers(),
		OwnerID:    result.OwnerID(),
		OwnerName:  result.OwnerName(),
		CreatedAt:  formatTime(result.CreatedAt()),
		Issues:     []issueDTO{},
	}

	for _, issue := range result.Issues() {
		dto.Issues = append(dto.Issues, issueDTO{
			ID:             issue.ID(),
			Severity:       string(issue.Severity()),
			Category:       issue.Category(),
			Message:        issue.Message(),
			Recommendation: issue.Recommendation(),
			CreatedAt:      formatTime(issue.CreatedAt()),
		})
	}
	return dto
}

func (r *ScanRepository) fromDTO(dto scanResultDTO) (*scan.Result, error) {
	createdAt, err := parseTime(dto.CreatedAt, "created at time")
	if err != nil {
		return nil, err
	}

	issues := make([]*scan.Issue, 0, len(dto.Issues))
	for _, issue := range dto.Issues {
		severity, ok := scanner.ParseSeverity(issue.Severity)
		if !ok {
			return nil, fmt.Errorf("%w: %q", sharedErrors.ErrInvalidSeverity, issue.Severity)
		}
		issueCreated, err := parseTime(issue.CreatedAt, "issue created at time")
		if err != nil {
			return nil, err
		}
		issues = append(issues, scan.ReconstructIssue(issue.ID, severity, issue.Category, issue.Message, issue.Recommendation, issueCreated))
	}

	return scan.Reconstruct(
		dto.ID,
		dto.URL,
		dto.FinalURL,
		dto.StatusCode,
		dto.Score,
		dto.Title,
		dto.Headers,
		dto.OwnerID,
		dto.OwnerName,
		createdAt,
		issues,
	), nil
}

var _ scan.Repository = (*ScanRepository)(nil)
