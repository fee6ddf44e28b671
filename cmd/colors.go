package cmd

import (
	"strconv"

	"github.com/fatih/color"
	"github.com/webguard-sec/webguard/internal/scanner"
)

var (
	colorSuccess = color.New(color.FgGreen).SprintFunc()
	colorInfo    = color.New(color.FgCyan).SprintFunc()
	colorWarn    = color.New(color.FgYellow).SprintFunc()
	colorError   = color.New(color.FgRed).SprintFunc()
	colorBold    = color.New(color.Bold).SprintFunc()
)

func formatSeverityWithColor(s scanner.Severity) string {
	switch s {
	case scanner.SeverityHigh:
		return colorError(s.Label())
	case scanner.SeverityMedium:
		return colorWarn(s.Label())
	case scanner.SeverityLow:
		return colorInfo(s.Label())
	default:
		return s.Label()
	}
}

// formatScoreWithColor uses the same bands as the result page.
func formatScoreWithColor(score int, grade string) string {
	text := strconv.Itoa(score) + "/100 (" + grade + ")"
	switch {
	case score >= 80:
		return colorSuccess(text)
	case score >= 60:
		return colorWarn(text)
	default:
		return colorError(text)
	}
}
