package scan

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/webguard-sec/webguard/internal/scanner"
	sharedErrors "github.com/webguard-sec/webguard/internal/shared/errors"
)

func TestNewResult(t *testing.T) {
	result, err := NewResult("https://example.com", 0, "")
	if err != nil {
		t.Fatalf("NewResult returned error: %v", err)
	}
	if result.HasOwner() {
		t.Fatal("anonymous result should have no owner")
	}
	if result.IsPersisted() {
		t.Fatal("new result should not be persisted")
	}
	if result.CreatedAt().IsZero() {
		t.Fatal("expected creation time to be set")
	}

	if _, err := NewResult("", 0, ""); !errors.Is(err, sharedErrors.ErrEmptyURL) {
		t.Fatalf("expected ErrEmptyURL, got %v", err)
	}
	if _, err := NewResult("https://"+strings.Repeat("a", 500), 0, ""); !errors.Is(err, sharedErrors.ErrURLTooLong) {
		t.Fatalf("expected ErrURLTooLong, got %v", err)
	}
	if _, err := NewResult("https://example.com", -1, ""); !errors.Is(err, sharedErrors.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestFromReport(t *testing.T) {
	report := &scanner.Report{
		URL:        "http://example.com",
		FinalURL:   "http://example.com/",
		StatusCode: 200,
		Score:      57,
		Title:      "Example Domain",
		Headers:    map[string]string{"Server": "ECS"},
		Findings: []scanner.Finding{
			{Severity: scanner.SeverityHigh, Category: "HTTPS", Message: "Site is not using HTTPS encryption", Points: 20},
			{Severity: scanner.SeverityLow, Category: "X-XSS-Protection", Message: "Missing X-XSS-Protection header", Points: 3},
			{Severity: scanner.SeverityHigh, Category: "HSTS", Message: "Missing Strict-Transport-Security header", Points: 15},
		},
	}

	result, err := FromReport(report, 7, "alice")
	if err != nil {
		t.Fatalf("FromReport returned error: %v", err)
	}

	if result.URL() != "http://example.com" || result.FinalURL() != "http://example.com/" {
		t.Fatalf("unexpected URLs %q -> %q", result.URL(), result.FinalURL())
	}
	if result.Score() != 57 || result.Grade() != "E" {
		t.Fatalf("unexpected score %d grade %s", result.Score(), result.Grade())
	}
	if result.OwnerID() != 7 || result.OwnerName() != "alice" || !result.HasOwner() {
		t.Fatalf("unexpected owner %d/%q", result.OwnerID(), result.OwnerName())
	}
	if result.IssueCount() != 3 {
		t.Fatalf("expected 3 issues, got %d", result.IssueCount())
	}
	if result.Headers()["Server"] != "ECS" {
		t.Fatalf("headers not recorded: %v", result.Headers())
	}

	if _, err := FromReport(nil, 0, ""); !errors.Is(err, sharedErrors.ErrMissingRequired) {
		t.Fatalf("expected ErrMissingRequired for nil report, got %v", err)
	}
}

func TestIssuesBySeverity(t *testing.T) {
	result, _ := NewResult("https://example.com", 0, "")
	mustAdd := func(sev scanner.Severity, category string) {
		t.Helper()
		if _, err := result.AddIssue(sev, category, "msg "+category, ""); err != nil {
			t.Fatalf("AddIssue: %v", err)
		}
	}
	mustAdd(scanner.SeverityLow, "L1")
	mustAdd(scanner.SeverityHigh, "H1")
	mustAdd(scanner.SeverityMedium, "M1")
	mustAdd(scanner.SeverityHigh, "H2")

	groups := result.IssuesBySeverity()
	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(groups))
	}

	want := map[scanner.Severity][]string{
		scanner.SeverityHigh:   {"H2", "H1"},
		scanner.SeverityMedium: {"M1"},
		scanner.SeverityLow:    {"L1"},
	}
	order := []scanner.Severity{scanner.SeverityHigh, scanner.SeverityMedium, scanner.SeverityLow}
	for i, group := range groups {
		if group.Severity != order[i] {
			t.Fatalf("group %d has severity %s, want %s", i, group.Severity, order[i])
		}
		var got []string
		for _, issue := range group.Issues {
			got = append(got, issue.Category())
		}
		if strings.Join(got, ",") != strings.Join(want[group.Severity], ",") {
			t.Fatalf("group %s = %v, want %v", group.Severity, got, want[group.Severity])
		}
	}

	if result.CountBySeverity(scanner.SeverityHigh) != 2 {
		t.Fatalf("expected 2 high issues, got %d", result.CountBySeverity(scanner.SeverityHigh))
	}
}

func TestIssuesBySeverity_NewestFirst(t *testing.T) {
	base := time.Date(2025, time.January, 2, 10, 0, 0, 0, time.UTC)
	result := Reconstruct(1, "https://example.com", "https://example.com/", 200, 50, "",
		nil, 0, "", base, []*Issue{
			ReconstructIssue(1, scanner.SeverityMedium, "old", "", "", base),
			ReconstructIssue(2, scanner.SeverityMedium, "newest", "", "", base.Add(2*time.Second)),
			ReconstructIssue(3, scanner.SeverityMedium, "newer", "", "", base.Add(time.Second)),
			ReconstructIssue(4, scanner.SeverityMedium, "old-later-id", "", "", base),
		})

	var got []string
	for _, issue := range result.IssuesBySeverity()[1].Issues {
		got = append(got, issue.Category())
	}
	want := "newest,newer,old-later-id,old"
	if strings.Join(got, ",") != want {
		t.Fatalf("medium group = %v, want %s", got, want)
	}
}

func TestAddIssue_RejectsInvalidSeverity(t *testing.T) {
	result, _ := NewResult("https://example.com", 0, "")
	if _, err := result.AddIssue("critical", "X", "msg", ""); !errors.Is(err, sharedErrors.ErrInvalidSeverity) {
		t.Fatalf("expected ErrInvalidSeverity, got %v", err)
	}
	if _, err := result.AddIssue(scanner.SeverityLow, "", "msg", ""); !errors.Is(err, sharedErrors.ErrMissingRequired) {
		t.Fatalf("expected ErrMissingRequired, got %v", err)
	}
	if result.IssueCount() != 0 {
		t.Fatal("invalid issues must not be added")
	}
}

func TestSetScore(t *testing.T) {
	result, _ := NewResult("https://example.com", 0, "")
	for _, score := range []int{-1, 101} {
		if err := result.SetScore(score); !errors.Is(err, sharedErrors.ErrValidation) {
			t.Fatalf("SetScore(%d) expected ErrValidation, got %v", score, err)
		}
	}
	if err := result.SetScore(100); err != nil {
		t.Fatalf("SetScore(100) returned error: %v", err)
	}
}

func TestHeadersReturnsCopy(t *testing.T) {
	result, _ := NewResult("https://example.com", 0, "")
	result.RecordResponse("https://example.com/", 200, "", map[string]string{"A": "1"})

	headers := result.Headers()
	headers["A"] = "changed"
	if result.Headers()["A"] != "1" {
		t.Fatal("Headers must return a copy")
	}
}

func TestSortNewestFirst(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	results := []*Result{
		Reconstruct(1, "a", "", 0, 0, "", nil, 0, "", base, nil),
		Reconstruct(3, "c", "", 0, 0, "", nil, 0, "", base.Add(time.Hour), nil),
		Reconstruct(2, "b", "", 0, 0, "", nil, 0, "", base, nil),
	}

	SortNewestFirst(results)

	var ids []int64
	for _, r := range results {
		ids = append(ids, r.ID())
	}
	if ids[0] != 3 || ids[1] != 2 || ids[2] != 1 {
		t.Fatalf("unexpected order %v", ids)
	}
}

func TestFilterMatches(t *testing.T) {
	result, _ := NewResult("https://Example.com/login", 4, "bob")
	_, _ = result.AddIssue(scanner.SeverityMedium, "X-Frame-Options", "Missing X-Frame-Options header", "")

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{name: "empty filter", filter: Filter{}, want: true},
		{name: "url substring any case", filter: Filter{URLContains: "example.COM"}, want: true},
		{name: "url mismatch", filter: Filter{URLContains: "github"}, want: false},
		{name: "owner match", filter: Filter{OwnerID: 4}, want: true},
		{name: "owner mismatch", filter: Filter{OwnerID: 5}, want: false},
		{name: "severity present", filter: Filter{Severity: scanner.SeverityMedium}, want: true},
		{name: "severity absent", filter: Filter{Severity: scanner.SeverityHigh}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(result); got != tt.want {
				t.Fatalf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterMatches_FoldsASCIIOnly(t *testing.T) {
	result, _ := NewResult("https://Bücher.example/Äpfel", 0, "")

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{name: "ascii letters any case", filter: Filter{URLContains: "https://BüCHER"}, want: true},
		{name: "exact non-ascii", filter: Filter{URLContains: "Äpfel"}, want: true},
		{name: "non-ascii case differs", filter: Filter{URLContains: "äpfel"}, want: false},
		{name: "non-ascii upper", filter: Filter{URLContains: "BÜCHER"}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(result); got != tt.want {
				t.Fatalf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}
