package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/DaewiLF/MinerIA/internal/api"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

func printField(w io.Writer, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(w, "  %s %s\n", colorize(colorBold, label+":"), value)
}

// riskColor maps the backend's Spanish risk labels to a color.
func riskColor(level string) string {
	switch strings.ToLower(level) {
	case "alto", "crítico", "critico":
		return colorRed
	case "medio":
		return colorYellow
	case "bajo":
		return colorGreen
	default:
		return colorReset
	}
}

func printAnalysis(w io.Writer, d api.AnalysisDetail, imageURL string) {
	fmt.Fprintf(w, "%s\n", colorize(colorBold, fmt.Sprintf("Analysis %d", d.ID)))
	printField(w, "Date", d.Date)
	printField(w, "Zone", d.Zone)
	printField(w, "Category", d.Category)
	if d.RiskLevel != "" {
		printField(w, "Risk", colorize(riskColor(d.RiskLevel), d.RiskLevel))
	}
	printField(w, "Copper grade", d.CopperGrade)
	printField(w, "Status", d.Status)
	printField(w, "Image", imageURL)

	if d.AISummary != "" {
		fmt.Fprintf(w, "\n%s\n  %s\n", colorize(colorBold, "Summary"), d.AISummary)
	}
	if len(d.Recommendations) > 0 {
		fmt.Fprintf(w, "\n%s\n", colorize(colorBold, "Recommendations"))
		for _, r := range d.Recommendations {
			fmt.Fprintf(w, "  - %s\n", r)
		}
	}
}

func printHistory(w io.Writer, rows []api.AnalysisSummary) {
	fmt.Fprintf(w, "%-6s  %-16s  %-20s  %-24s  %-8s  %s\n", "ID", "DATE", "ZONE", "CATEGORY", "RISK", "CU")
	for _, r := range rows {
		fmt.Fprintf(w, "%-6d  %-16s  %-20s  %-24s  %s  %s\n",
			r.ID,
			truncate(r.Date, 16),
			truncate(r.Zone, 20),
			truncate(r.Category, 24),
			colorize(riskColor(r.RiskLevel), fmt.Sprintf("%-8s", truncate(r.RiskLevel, 8))),
			r.CopperGrade,
		)
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}
