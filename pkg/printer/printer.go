// Package printer renders the run summary for the terminal. The Markdown and
// JSON artifacts carry the full dataset; this is the operator-facing digest.
package printer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/jinchuntan/oci-iam-policy-drift-auditor/pkg/types"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// topFindingRows caps the console table; the artifacts carry everything.
const topFindingRows = 10

func PrintSummary(report *types.Report) {
	meta := report.Metadata
	summary := report.Summary

	fmt.Printf("\n%s IAM policy drift audit for tenancy %s (region %s, lookback %dh)\n",
		bold("→"), meta.TenancyOCID, meta.Region, meta.LookbackHours)
	fmt.Printf("  Compartments: %d scanned, %d skipped | Policies: %d | Statements: %d\n",
		summary.ScannedCompartmentCount, summary.SkippedCompartmentCount,
		summary.PoliciesScanned, summary.StatementCount)

	fmt.Print("  Severity: ")
	for i, severity := range types.Severities {
		if i > 0 {
			fmt.Print("  ")
		}
		fmt.Printf("%s %d", severityLabel(severity), summary.FindingsBySeverity[severity])
	}
	fmt.Println()

	if summary.RecentlyModifiedCount > 0 {
		fmt.Printf("  %s %d finding(s) touched by identity changes in the audit window\n",
			red("!"), summary.RecentlyModifiedCount)
	}
	if summary.SkippedCompartmentCount > 0 {
		fmt.Printf("  %s %d compartment(s) could not be read, see the report for reasons\n",
			yellow("!"), summary.SkippedCompartmentCount)
	}
	fmt.Println()

	printFindingsTable(report.Findings)
}

func printFindingsTable(findings []types.Finding) {
	if len(findings) == 0 {
		fmt.Println("No policy statements analyzed.")
		return
	}

	printFindingsSeparator()
	fmt.Printf("| %-8s | %-18s | %-24s | %-22s | %-6s | %-48s |\n",
		"SEVERITY", "COMPARTMENT", "POLICY", "SUBJECT", "RADIUS", "STATEMENT")
	printFindingsSeparator()

	for i, finding := range findings {
		if i == topFindingRows {
			break
		}
		fmt.Printf("| %s | %-18s | %-24s | %-22s | %-6s | %-48s |\n",
			severityCell(finding.Severity),
			truncateString(finding.Statement.CompartmentName, 18),
			truncateString(finding.Statement.PolicyName, 24),
			truncateString(findingSubject(finding), 22),
			radiusCell(finding),
			truncateString(finding.Statement.Raw, 48),
		)
	}
	printFindingsSeparator()

	if len(findings) > topFindingRows {
		fmt.Printf("… and %d more finding(s) in the report artifacts\n", len(findings)-topFindingRows)
	}
}

func printFindingsSeparator() {
	fmt.Printf("+%s+%s+%s+%s+%s+%s+\n",
		strings.Repeat("-", 10),
		strings.Repeat("-", 20),
		strings.Repeat("-", 26),
		strings.Repeat("-", 24),
		strings.Repeat("-", 8),
		strings.Repeat("-", 50))
}

// severityCell pads before coloring, escape codes would break the column
// width otherwise.
func severityCell(severity types.Severity) string {
	padded := fmt.Sprintf("%-8s", string(severity))
	switch severity {
	case types.SeverityCritical, types.SeverityHigh:
		return red(padded)
	case types.SeverityMedium:
		return yellow(padded)
	default:
		return green(padded)
	}
}

func severityLabel(severity types.Severity) string {
	switch severity {
	case types.SeverityCritical, types.SeverityHigh:
		return red(string(severity))
	case types.SeverityMedium:
		return yellow(string(severity))
	default:
		return green(string(severity))
	}
}

func findingSubject(finding types.Finding) string {
	if finding.Grant == nil {
		return "unparsed"
	}
	return finding.Grant.Subject()
}

func radiusCell(finding types.Finding) string {
	if finding.BlastRadius == nil {
		return "-"
	}
	return strconv.Itoa(*finding.BlastRadius)
}

func truncateString(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen-3] + "..."
	}
	return s
}
