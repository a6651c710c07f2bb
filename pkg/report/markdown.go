package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jinchuntan/oci-iam-policy-drift-auditor/pkg/types"
)

// maxTableRows caps the finding and event tables so the Markdown summary
// stays readable; the JSON artifact always carries the full set.
const maxTableRows = 50

func renderMarkdown(report *types.Report) string {
	var lines []string
	add := func(format string, args ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, args...))
	}

	meta := report.Metadata
	summary := report.Summary

	add("# OCI IAM Policy Drift Auditor Report")
	add("")
	add("- **Generated (UTC):** `%s`", meta.GeneratedAt.UTC().Format("2006-01-02T15:04:05Z"))
	add("- **Region:** `%s`", meta.Region)
	add("- **Tenancy:** `%s`", meta.TenancyOCID)
	add("- **Audit Lookback Hours:** `%d`", meta.LookbackHours)
	add("")

	add("## Summary")
	add("")
	add("| Metric | Value |")
	add("|---|---:|")
	add("| Scanned Compartments | %d |", summary.ScannedCompartmentCount)
	add("| Skipped Compartments | %d |", summary.SkippedCompartmentCount)
	add("| Policies Scanned | %d |", summary.PoliciesScanned)
	add("| Statements Analyzed | %d |", summary.StatementCount)
	add("| Recently Modified Findings | %d |", summary.RecentlyModifiedCount)
	add("| Identity Audit Events | %d |", summary.IdentityEventCount)
	add("| Policy Change Events | %d |", summary.PolicyChangeEventCount)
	add("| Tenancy Groups | %d |", summary.GroupCount)
	add("| Tenancy Dynamic Groups | %d |", summary.DynamicGroupCount)
	add("| Tenancy Users | %d |", summary.UserCount)
	add("| Users with MFA Enabled | %d |", summary.MFAEnabledUserCount)
	add("")

	add("## Risk Severity")
	add("")
	add("| Severity | Count |")
	add("|---|---:|")
	for _, severity := range types.Severities {
		add("| %s | %d |", severity, summary.FindingsBySeverity[severity])
	}
	add("")

	if len(summary.FindingsByCompartment) > 0 {
		add("## Findings by Compartment")
		add("")
		add("| Compartment | Findings |")
		add("|---|---:|")
		for _, entry := range summary.FindingsByCompartment {
			add("| %s | %d |", escapeCell(entry.CompartmentName), entry.Count)
		}
		add("")
	}

	if len(report.SkippedCompartments) > 0 {
		add("## Skipped Compartments")
		add("")
		add("| Compartment OCID | Reason |")
		add("|---|---|")
		for _, skipped := range report.SkippedCompartments {
			add("| `%s` | %s |", skipped.CompartmentID, escapeCell(skipped.Reason))
		}
		add("")
	}

	add("## Top Findings (Top %d)", maxTableRows)
	add("")
	add("| Severity | Compartment | Policy | Subject | Blast Radius | Changed | Statement |")
	add("|---|---|---|---|---:|---|---|")
	if len(report.Findings) == 0 {
		add("| - | - | - | - | - | - | No policy statements analyzed. |")
	}
	for i, finding := range report.Findings {
		if i == maxTableRows {
			break
		}
		add("| %s | %s | %s | %s | %s | %s | %s |",
			finding.Severity,
			escapeCell(finding.Statement.CompartmentName),
			escapeCell(finding.Statement.PolicyName),
			escapeCell(findingSubject(finding)),
			blastRadiusCell(finding),
			changedCell(finding),
			escapeCell(finding.Statement.Raw))
	}
	add("")

	add("## Recent Identity Change Events (Top %d)", maxTableRows)
	add("")
	add("| Event Time (UTC) | Principal | Event Type | Event Name | Resource |")
	add("|---|---|---|---|---|")
	if len(report.RecentChangeEvents) == 0 {
		add("| - | - | - | - | No identity change events in audit window. |")
	}
	for i, event := range report.RecentChangeEvents {
		if i == maxTableRows {
			break
		}
		add("| %s | %s | %s | %s | %s |",
			event.Time.UTC().Format("2006-01-02 15:04:05"),
			orDash(escapeCell(event.PrincipalName)),
			orDash(escapeCell(event.EventType)),
			orDash(escapeCell(event.EventName)),
			orDash(escapeCell(event.ResourceName)))
	}
	add("")

	add("## Full Data")
	add("")
	add("The complete dataset, including every finding and the audit events correlated to it, is in `%s` next to this file.",
		artifactName(meta.GeneratedAt, "json"))

	return strings.Join(lines, "\n") + "\n"
}

func findingSubject(finding types.Finding) string {
	if finding.Grant == nil {
		return "unparsed"
	}
	return finding.Grant.Subject()
}

func blastRadiusCell(finding types.Finding) string {
	if finding.BlastRadius == nil {
		return "-"
	}
	return strconv.Itoa(*finding.BlastRadius)
}

func changedCell(finding types.Finding) string {
	if finding.RecentlyModified {
		return "yes"
	}
	return "-"
}

// escapeCell keeps literal pipes in statements from breaking table rows.
func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
