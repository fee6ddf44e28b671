package scan

import (
	"fmt"
	"time"

	"github.com/webguard-sec/webguard/internal/scanner"
	sharedErrors "github.com/webguard-sec/webguard/internal/shared/errors"
)

// Issue is one security finding stored with a scan result.
type Issue struct {
	id             int64
	severity       scanner.Severity
	category       string
	message        string
	recommendation string
	createdAt      time.Time
}

// NewIssue creates an issue with a validated severity
func NewIssue(severity scanner.Severity, category, message, recommendation string) (*Issue, error) {
	if severity.Rank() == 0 {
		return nil, fmt.Errorf("%w: %q", sharedErrors.ErrInvalidSeverity, severity)
	}
	if category == "" {
		return nil, fmt.Errorf("%w: issue category", sharedErrors.ErrMissingRequired)
	}
	if message == "" {
		return nil, fmt.Errorf("%w: issue message", sharedErrors.ErrMissingRequired)
	}

	return &Issue{
		severity:       severity,
		category:       category,
		message:        message,
		recommendation: recommendation,
		createdAt:      time.Now().UTC(),
	}, nil
}

// ReconstructIssue creates an issue from persisted data (for repository use)
func ReconstructIssue(id int64, severity scanner.Severity, category, message, recommendation string, createdAt time.Time) *Issue {
	return &Issue{
		id:             id,
		severity:       severity,
		category:       category,
		message:        message,
		recommendation: recommendation,
		createdAt:      createdAt,
	}
}

// SetID is called by repositories once the issue has been stored.
func (i *Issue) SetID(id int64) {
	i.id = id
}

func (i *Issue) ID() int64 {
	return i.id
}

func (i *Issue) Severity() scanner.Severity {
	return i.severity
}

func (i *Issue) Category() string {
	return i.category
}

func (i *Issue) Message() string {
	return i.message
}

func (i *Issue) Recommendation() string {
	return i.recommendation
}

func (i *Issue) CreatedAt() time.Time {
	return i.createdAt
}
