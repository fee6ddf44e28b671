package scan

import (
	"fmt"
	"slices"
	"time"

	"github.com/webguard-sec/webguard/internal/scanner"
	"github.com/webguard-sec/webguard/internal/shared/constants"
	sharedErrors "github.com/webguard-sec/webguard/internal/shared/errors"
)

// Result is a persisted scan of one URL together with its issues.
// It serves as an aggregate root in the DDD context
type Result struct {
	id         int64
	url        string
	finalURL   string
	statusCode int
	score      int
	title      string
	headers    map[string]string
	ownerID    int64
	ownerName  string
	createdAt  time.Time
	issues     []*Issue
}

// IssueGroup holds the issues of one severity.
type IssueGroup struct {
	Severity scanner.Severity
	Issues   []*Issue
}

// NewResult creates an empty result for url. ownerID is 0 for anonymous scans.
func NewResult(url string, ownerID int64, ownerName string) (*Result, error) {
	if url == "" {
		return nil, sharedErrors.ErrEmptyURL
	}
	if len(url) > constants.MaxURLLength {
		return nil, sharedErrors.ErrURLTooLong
	}
	if ownerID < 0 {
		return nil, fmt.Errorf("%w: owner id %d", sharedErrors.ErrValidation, ownerID)
	}

	return &Result{
		url:       url,
		headers:   map[string]string{},
		ownerID:   ownerID,
		ownerName: ownerName,
		createdAt: time.Now().UTC(),
	}, nil
}

// FromReport converts a scanner report into a result ready to be saved.
func FromReport(report *scanner.Report, ownerID int64, ownerName string) (*Result, error) {
	if report == nil {
		return nil, fmt.Errorf("%w: scan report", sharedErrors.ErrMissingRequired)
	}

	result, err := NewResult(report.URL, ownerID, ownerName)
	if err != nil {
		return nil, err
	}
	result.RecordResponse(report.FinalURL, report.StatusCode, report.Title, report.Headers)
	if err := result.SetScore(report.Score); err != nil {
		return nil, err
	}

	for _, finding := range report.Findings {
		if _, err := result.AddIssue(finding.Severity, finding.Category, finding.Message, finding.Recommendation); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Reconstruct creates a result from persisted data (for repository use)
func Reconstruct(id int64, url, finalURL string, statusCode, score int, title string, headers map[string]string, ownerID int64, ownerName string, createdAt time.Time, issues []*Issue) *Result {
	if headers == nil {
		headers = map[string]string{}
	}
	return &Result{
		id:         id,
		url:        url,
		finalURL:   finalURL,
		statusCode: statusCode,
		score:      score,
		title:      title,
		headers:    headers,
		ownerID:    ownerID,
		ownerName:  ownerName,
		createdAt:  createdAt,
		issues:     issues,
	}
}

// Business methods

// RecordResponse stores what the fetch returned.
func (r *Result) RecordResponse(finalURL string, statusCode int, title string, headers map[string]string) {
	r.finalURL = finalURL
	r.statusCode = statusCode
	r.title = title
	r.headers = make(map[string]string, len(headers))
	for k, v := range headers {
		r.headers[k] = v
	}
}

// SetScore stores the score, which must be within 0..100.
func (r *Result) SetScore(score int) error {
	if score < 0 || score > scanner.MaxScore {
		return fmt.Errorf("%w: score %d out of range", sharedErrors.ErrValidation, score)
	}
	r.score = score
	return nil
}

// AddIssue appends an issue; insertion order is preserved.
func (r *Result) AddIssue(severity scanner.Severity, category, message, recommendation string) (*Issue, error) {
	issue, err := NewIssue(severity, category, message, recommendation)
	if err != nil {
		return nil, err
	}
	issue.createdAt = r.createdAt
	r.issues = append(r.issues, issue)
	return issue, nil
}

// IssuesBySeverity groups issues high, medium, low. Within a group issues
// are newest first, later additions first on equal timestamps. Empty groups
// are kept so templates can render a fixed layout.
func (r *Result) IssuesBySeverity() []IssueGroup {
	groups := make([]IssueGroup, 0, len(scanner.Severities))
	for _, severity := range scanner.Severities {
		group := IssueGroup{Severity: severity}
		for i := len(r.issues) - 1; i >= 0; i-- {
			if r.issues[i].severity == severity {
				group.Issues = append(group.Issues, r.issues[i])
			}
		}
		slices.SortStableFunc(group.Issues, func(a, b *Issue) int {
			return b.createdAt.Compare(a.createdAt)
		})
		groups = append(groups, group)
	}
	return groups
}

// CountBySeverity returns the number of issues of the given severity.
func (r *Result) CountBySeverity(severity scanner.Severity) int {
	count := 0
	for _, issue := range r.issues {
		if issue.severity == severity {
			count++
		}
	}
	return count
}

// Grade converts the score to a letter grade.
func (r *Result) Grade() string {
	return scanner.CalculateGrade(r.score)
}

// HasOwner reports whether the scan was made by a logged-in user.
func (r *Result) HasOwner() bool {
	return r.ownerID > 0
}

// IsPersisted reports whether a repository has assigned an id.
func (r *Result) IsPersisted() bool {
	return r.id > 0
}

// SetID is called by repositories once the result has been stored.
func (r *Result) SetID(id int64) {
	r.id = id
}

// SetCreatedAt lets fixtures backdate a result before it is saved.
func (r *Result) SetCreatedAt(t time.Time) {
	r.createdAt = t
	for _, issue := range r.issues {
		issue.createdAt = t
	}
}

// Getters (exposing internal state)

func (r *Result) ID() int64 {
	return r.id
}

func (r *Result) URL() string {
	return r.url
}

func (r *Result) FinalURL() string {
	return r.finalURL
}

func (r *Result) StatusCode() int {
	return r.statusCode
}

func (r *Result) Score() int {
	return r.score
}

func (r *Result) Title() string {
	return r.title
}

func (r *Result) Headers() map[string]string {
	// Return a copy to prevent external modification
	headersCopy := make(map[string]string, len(r.headers))
	for k, v := range r.headers {
		headersCopy[k] = v
	}
	return headersCopy
}

func (r *Result) OwnerID() int64 {
	return r.ownerID
}

func (r *Result) OwnerName() string {
	return r.ownerName
}

func (r *Result) CreatedAt() time.Time {
	return r.createdAt
}

func (r *Result) Issues() []*Issue {
	issuesCopy := make([]*Issue, len(r.issues))
	copy(issuesCopy, r.issues)
	return issuesCopy
}

func (r *Result) IssueCount() int {
	return len(r.issues)
}
