// Package report renders stored scan results as PDF documents.
package report

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/webguard-sec/webguard/internal/domain/scan"
	"github.com/webguard-sec/webguard/internal/scanner"
	sharedErrors "github.com/webguard-sec/webguard/internal/shared/errors"
)

const timestampLayout = "2006-01-02 15:04:05 MST"

// severityColors are the fill colours of the severity banners.
var severityColors = map[scanner.Severity][3]int{
	scanner.SeverityHigh:   {220, 53, 69},
	scanner.SeverityMedium: {255, 193, 7},
	scanner.SeverityLow:    {23, 162, 184},
}

// WritePDF renders result to w.
func WritePDF(w io.Writer, result *scan.Result) error {
	if result == nil {
		return fmt.Errorf("%w: scan result", sharedErrors.ErrMissingRequired)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("WebGuard report #%d", result.ID()), true)
	pdf.SetCreator("WebGuard Security Scanner", true)
	pdf.SetCreationDate(result.CreatedAt())
	pdf.AddPage()

	tr := pdf.UnicodeTranslatorFromDescriptor("")

	// Title
	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, tr("Security Scan Report"), "", 1, "C", false, 0, "")
	pdf.Ln(3)

	// Metadata section
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, tr(fmt.Sprintf("URL: %s", result.URL())), "", 1, "", false, 0, "")
	if result.FinalURL() != "" && result.FinalURL() != result.URL() {
		pdf.CellFormat(0, 6, tr(fmt.Sprintf("Final URL: %s", result.FinalURL())), "", 1, "", false, 0, "")
	}
	pdf.CellFormat(0, 6, fmt.Sprintf("Status code: %d", result.StatusCode()), "", 1, "", false, 0, "")
	if result.Title() != "" {
		pdf.CellFormat(0, 6, tr(fmt.Sprintf("Page title: %s", result.Title())), "", 1, "", false, 0, "")
	}
	pdf.CellFormat(0, 6, fmt.Sprintf("Scanned: %s", result.CreatedAt().Format(timestampLayout)), "", 1, "", false, 0, "")
	if result.HasOwner() {
		pdf.CellFormat(0, 6, tr(fmt.Sprintf("Scanned by: %s", result.OwnerName())), "", 1, "", false, 0, "")
	}
	pdf.Ln(4)

	// Score section
	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 9, fmt.Sprintf("Score: %d/%d (Grade %s)", result.Score(), scanner.MaxScore, result.Grade()), "", 1, "", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("High: %d | Medium: %d | Low: %d",
		result.CountBySeverity(scanner.SeverityHigh),
		result.CountBySeverity(scanner.SeverityMedium),
		result.CountBySeverity(scanner.SeverityLow)), "", 1, "", false, 0, "")
	pdf.Ln(4)

	// Issues grouped by severity
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, "Issues", "", 1, "", false, 0, "")
	if result.IssueCount() == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.CellFormat(0, 6, "No security issues found.", "", 1, "", false, 0, "")
	}

	for _, group := range result.IssuesBySeverity() {
		if len(group.Issues) == 0 {
			continue
		}
		if pdf.GetY() > 250 {
			pdf.AddPage()
		}

		color := severityColors[group.Severity]
		pdf.SetFillColor(color[0], color[1], color[2])
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(0, 7, fmt.Sprintf("%s severity (%d)", group.Severity.Label(), len(group.Issues)), "", 1, "", true, 0, "")
		pdf.Ln(1)

		for _, issue := range group.Issues {
			if pdf.GetY() > 265 {
				pdf.AddPage()
			}
			pdf.SetFont("Arial", "B", 9)
			pdf.MultiCell(0, 5, tr(fmt.Sprintf("[%s] %s", issue.Category(), issue.Message())), "", "", false)
			if issue.Recommendation() != "" {
				pdf.SetFont("Arial", "", 9)
				pdf.MultiCell(0, 5, tr("Recommendation: "+issue.Recommendation()), "", "", false)
			}
			pdf.Ln(2)
		}
	}

	// Response headers
	headers := result.Headers()
	if len(headers) > 0 {
		if pdf.GetY() > 240 {
			pdf.AddPage()
		}
		pdf.Ln(2)
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(0, 8, "Response Headers", "", 1, "", false, 0, "")
		pdf.SetFont("Courier", "", 8)

		names := make([]string, 0, len(headers))
		for name := range headers {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			pdf.MultiCell(0, 4, tr(fmt.Sprintf("%s: %s", name, strings.TrimSpace(headers[name]))), "", "", false)
		}
	}

	return pdf.Output(w)
}

// PDFBytes renders result into memory.
func PDFBytes(result *scan.Result) ([]byte, error) {
	var buf bytes.Buffer
	if err := WritePDF(&buf, result); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FileName is the suggested download name for result's report.
func FileName(result *scan.Result) string {
	host := scanner.ExtractHost(result.URL())
	if host == "" {
		host = "scan"
	}
	host = strings.NewReplacer(":", "_", "/", "_").Replace(host)
	return fmt.Sprintf("webguard-%d-%s.pdf", result.ID(), host)
}
