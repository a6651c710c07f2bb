// Package analyzer evaluates one collected directory snapshot and produces
// the audit report: parse every statement, classify it, resolve its blast
// radius and correlate it with recent identity-change events.
package analyzer

import (
	"fmt"
	"sort"
	"time"

	"github.com/jinchuntan/oci-iam-policy-drift-auditor/pkg/parser"
	"github.com/jinchuntan/oci-iam-policy-drift-auditor/pkg/rules"
	"github.com/jinchuntan/oci-iam-policy-drift-auditor/pkg/types"
)

const (
	topCompartmentCount = 10
	maxReportedEvents   = 200
)

// Params configures one analysis run. All settings arrive here explicitly;
// the engine keeps no state between runs and reads no globals.
type Params struct {
	GeneratedAt   time.Time
	Region        string
	TenancyOCID   string
	LookbackHours int
}

// Analyze runs the full pipeline over an immutable snapshot. Compartments and
// policy statements are mandatory inputs; audit events are optional and an
// empty list just disables correlation. The returned report is ordered most
// severe first, ties broken by original statement order.
func Analyze(snapshot *types.DirectorySnapshot, events []types.AuditEvent, params Params) (*types.Report, error) {
	if err := validateSnapshot(snapshot); err != nil {
		return nil, err
	}

	recent := filterWindow(events, windowFor(params))
	resolver := NewRadiusResolver(SnapshotDirectory(snapshot))

	findings := make([]types.Finding, 0, len(snapshot.Statements))
	for _, stmt := range snapshot.Statements {
		findings = append(findings, buildFinding(stmt, resolver))
	}
	for i := range findings {
		correlateFinding(&findings[i], recent)
	}
	sortFindings(findings)

	return &types.Report{
		Metadata: types.ReportMetadata{
			ReportName:    types.ReportName,
			GeneratedAt:   params.GeneratedAt.UTC(),
			Region:        params.Region,
			TenancyOCID:   params.TenancyOCID,
			LookbackHours: params.LookbackHours,
		},
		Summary:             buildSummary(snapshot, findings, recent),
		SkippedCompartments: snapshot.SkippedCompartments,
		Findings:            findings,
		RecentChangeEvents:  recentChangeEvents(recent),
		GroupMembership:     groupMembership(snapshot.Groups),
	}, nil
}

// validateSnapshot rejects runs on partial mandatory data. Running against an
// empty compartment or policy list would report a clean tenancy when the
// collector actually failed.
func validateSnapshot(snapshot *types.DirectorySnapshot) error {
	if snapshot == nil {
		return fmt.Errorf("no snapshot collected: %w", types.ErrSnapshotMissing)
	}
	if len(snapshot.Compartments) == 0 {
		return fmt.Errorf("no compartments collected: %w", types.ErrSnapshotMissing)
	}
	if len(snapshot.Statements) == 0 {
		return fmt.Errorf("no policy statements collected: %w", types.ErrSnapshotMissing)
	}
	return nil
}

func buildFinding(stmt types.PolicyStatement, resolver *RadiusResolver) types.Finding {
	grant, err := parser.Parse(stmt.Raw)
	if err != nil {
		severity, rationale := rules.ClassifyUnparsed()
		finding := types.Finding{
			Statement: stmt,
			Unparsed:  true,
			Severity:  severity,
			Rationale: rationale,
		}
		if pe, ok := types.AsParseError(err); ok {
			finding.ParseErrorKind = string(pe.Kind)
		}
		return finding
	}

	severity, rationale := rules.Classify(grant)
	radius, note := resolver.Resolve(grant)
	return types.Finding{
		Statement:       stmt,
		Grant:           &grant,
		Severity:        severity,
		Rationale:       rationale,
		BlastRadius:     radius,
		BlastRadiusNote: note,
	}
}

// sortFindings orders most severe first. The stable sort preserves original
// statement order within a severity.
func sortFindings(findings []types.Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Severity.Rank() < findings[j].Severity.Rank()
	})
}

func buildSummary(snapshot *types.DirectorySnapshot, findings []types.Finding, events []types.AuditEvent) types.ReportSummary {
	bySeverity := make(map[types.Severity]int, len(types.Severities))
	for _, severity := range types.Severities {
		bySeverity[severity] = 0
	}

	byCompartment := make(map[string]int)
	recentlyModified := 0
	for _, finding := range findings {
		bySeverity[finding.Severity]++
		byCompartment[finding.Statement.CompartmentName]++
		if finding.RecentlyModified {
			recentlyModified++
		}
	}

	identityEvents := 0
	policyChanges := 0
	for _, event := range events {
		if event.IsIdentityChange() {
			identityEvents++
		}
		if event.Kind == types.EventPolicyChange {
			policyChanges++
		}
	}

	return types.ReportSummary{
		ScannedCompartmentCount: len(snapshot.Compartments),
		SkippedCompartmentCount: len(snapshot.SkippedCompartments),
		PoliciesScanned:         snapshot.PolicyCount,
		StatementCount:          len(snapshot.Statements),
		FindingsBySeverity:      bySeverity,
		FindingsByCompartment:   topCompartments(byCompartment),
		RecentlyModifiedCount:   recentlyModified,
		IdentityEventCount:      identityEvents,
		PolicyChangeEventCount:  policyChanges,
		GroupCount:              len(snapshot.Groups),
		DynamicGroupCount:       len(snapshot.DynamicGroups),
		UserCount:               snapshot.UserCount,
		MFAEnabledUserCount:     snapshot.MFAEnabledUserCount,
	}
}

// topCompartments ranks compartments by finding count, busiest first, capped
// at topCompartmentCount. Ties order alphabetically so the ranking is stable
// across runs.
func topCompartments(counts map[string]int) []types.CompartmentFindingCount {
	ranked := make([]types.CompartmentFindingCount, 0, len(counts))
	for name, count := range counts {
		ranked = append(ranked, types.CompartmentFindingCount{CompartmentName: name, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].CompartmentName < ranked[j].CompartmentName
	})
	if len(ranked) > topCompartmentCount {
		ranked = ranked[:topCompartmentCount]
	}
	return ranked
}

// recentChangeEvents lists the identity-change events for the report, newest
// first, capped at maxReportedEvents.
func recentChangeEvents(events []types.AuditEvent) []types.AuditEvent {
	changes := make([]types.AuditEvent, 0, len(events))
	for _, event := range events {
		if event.IsIdentityChange() {
			changes = append(changes, event)
		}
	}
	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i].Time.After(changes[j].Time)
	})
	if len(changes) > maxReportedEvents {
		changes = changes[:maxReportedEvents]
	}
	return changes
}

// groupMembership builds the per-group membership table, largest group first.
// Unresolved counts report as zero here; the raw nil is preserved on the
// group itself.
func groupMembership(groups []types.Group) []types.GroupMembershipSummary {
	summary := make([]types.GroupMembershipSummary, 0, len(groups))
	for _, group := range groups {
		count := 0
		if group.MemberCount != nil {
			count = *group.MemberCount
		}
		summary = append(summary, types.GroupMembershipSummary{
			GroupID:     group.ID,
			GroupName:   group.Name,
			MemberCount: count,
		})
	}
	sort.SliceStable(summary, func(i, j int) bool {
		return summary[i].MemberCount > summary[j].MemberCount
	})
	return summary
}
