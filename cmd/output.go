package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/webguard-sec/webguard/internal/domain/scan"
	"github.com/webguard-sec/webguard/internal/scanner"
)

const (
	jsonPrefix = ""
	jsonIndent = "  "
	timeLayout = "2006-01-02 15:04:05"
)

// scanRecord is the JSON form of a stored result.
type scanRecord struct {
	ID         int64             `json:"id"`
	URL        string            `json:"url"`
	FinalURL   string            `json:"final_url"`
	StatusCode int               `json:"status_code"`
	Score      int               `json:"score"`
	Grade      string            `json:"grade"`
	Title      string            `json:"title,omitempty"`
	Owner      string            `json:"owner,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	Issues     []issueRecord     `json:"issues"`
	Headers    map[string]string `json:"headers,omitempty"`
}

type issueRecord struct {
	Severity       scanner.Severity `json:"severity"`
	Category       string           `json:"category"`
	Message        string           `json:"message"`
	Recommendation string           `json:"recommendation"`
}

func toScanRecord(r *scan.Result, withHeaders bool) scanRecord {
	rec := scanRecord{
		ID:         r.ID(),
		URL:        r.URL(),
		FinalURL:   r.FinalURL(),
		StatusCode: r.StatusCode(),
		Score:      r.Score(),
		Grade:      r.Grade(),
		Title:      r.Title(),
		Owner:      r.OwnerName(),
		CreatedAt:  r.CreatedAt(),
		Issues:     make([]issueRecord, 0, r.IssueCount()),
	}
	for _, issue := range r.Issues() {
		rec.Issues = append(rec.Issues, issueRecord{
			Severity:       issue.Severity(),
			Category:       issue.Category(),
			Message:        issue.Message(),
			Recommendation: issue.Recommendation(),
		})
	}
	if withHeaders {
		rec.Headers = r.Headers()
	}
	return rec
}

func writeJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, jsonPrefix, jsonIndent)
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

// printReport writes an unsaved scan report for the terminal.
func printReport(w io.Writer, report *scanner.Report) {
	fmt.Fprintf(w, "%s %s\n", colorBold("URL:"), report.URL)
	if report.FinalURL != "" && report.FinalURL != report.URL {
		fmt.Fprintf(w, "%s %s\n", colorBold("Final URL:"), report.FinalURL)
	}
	fmt.Fprintf(w, "%s %d\n", colorBold("Status:"), report.StatusCode)
	if report.Title != "" {
		fmt.Fprintf(w, "%s %s\n", colorBold("Title:"), report.Title)
	}
	fmt.Fprintf(w, "%s %s\n", colorBold("Score:"), formatScoreWithColor(report.Score, report.Grade))

	printFindings(w, report.Findings)
}

func printResult(w io.Writer, r *scan.Result, withHeaders bool) {
	fmt.Fprintf(w, "%s %d\n", colorBold("ID:"), r.ID())
	fmt.Fprintf(w, "%s %s\n", colorBold("URL:"), r.URL())
	if r.FinalURL() != "" && r.FinalURL() != r.URL() {
		fmt.Fprintf(w, "%s %s\n", colorBold("Final URL:"), r.FinalURL())
	}
	fmt.Fprintf(w, "%s %d\n", colorBold("Status:"), r.StatusCode())
	if r.Title() != "" {
		fmt.Fprintf(w, "%s %s\n", colorBold("Title:"), r.Title())
	}
	fmt.Fprintf(w, "%s %s\n", colorBold("Owner:"), ownerLabel(r))
	fmt.Fprintf(w, "%s %s\n", colorBold("Scanned:"), r.CreatedAt().Local().Format(timeLayout))
	fmt.Fprintf(w, "%s %s\n", colorBold("Score:"), formatScoreWithColor(r.Score(), r.Grade()))

	findings := make([]scanner.Finding, 0, r.IssueCount())
	for _, issue := range r.Issues() {
		findings = append(findings, scanner.Finding{
			Severity:       issue.Severity(),
			Category:       issue.Category(),
			Message:        issue.Message(),
			Recommendation: issue.Recommendation(),
		})
	}
	printFindings(w, findings)

	if withHeaders {
		printHeaders(w, r.Headers())
	}
}

func printFindings(w io.Writer, findings []scanner.Finding) {
	if len(findings) == 0 {
		fmt.Fprintf(w, "\n%s No issues found\n", colorSuccess("✓"))
		return
	}

	fmt.Fprintf(w, "\n%s (%d)\n", colorBold("Issues"), len(findings))
	for _, severity := range scanner.Severities {
		for _, f := range findings {
			if f.Severity != severity {
				continue
			}
			fmt.Fprintf(w, "  [%s] %s: %s\n", formatSeverityWithColor(f.Severity), f.Category, f.Message)
			if f.Recommendation != "" {
				fmt.Fprintf(w, "         %s\n", colorInfo(f.Recommendation))
			}
		}
	}
}

func printHeaders(w io.Writer, headers map[string]string) {
	if len(headers) == 0 {
		return
	}
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(w, "\n%s\n", colorBold("Response headers"))
	for _, name := range names {
		fmt.Fprintf(w, "  %s: %s\n", name, headers[name])
	}
}

func printScanTable(w io.Writer, results []*scan.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tScanned\tScore\tIssues\tOwner\tURL")
	fmt.Fprintln(tw, "--\t-------\t-----\t------\t-----\t---")
	for _, r := range results {
		fmt.Fprintf(tw, "%d\t%s\t%d (%s)\t%d\t%s\t%s\n",
			r.ID(),
			r.CreatedAt().Local().Format(timeLayout),
			r.Score(), r.Grade(),
			r.IssueCount(),
			ownerLabel(r),
			r.URL(),
		)
	}
	return tw.Flush()
}

func ownerLabel(r *scan.Result) string {
	if !r.HasOwner() {
		return "Anonymous"
	}
	return r.OwnerName()
}
