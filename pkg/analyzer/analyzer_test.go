package analyzer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinchuntan/oci-iam-policy-drift-auditor/pkg/types"
)

func snapshotWithStatements(statements ...types.PolicyStatement) *types.DirectorySnapshot {
	return &types.DirectorySnapshot{
		Compartments: []types.Compartment{
			{ID: "ocid1.compartment.oc1..root", Name: "root"},
			{ID: "ocid1.compartment.oc1..fin", Name: "finance"},
			{ID: "ocid1.compartment.oc1..prod", Name: "prod"},
		},
		Statements: statements,
		Groups: []types.Group{
			{ID: "ocid1.group.oc1..aud", Name: "Auditors", MemberCount: intPtr(7)},
			{ID: "ocid1.group.oc1..adm", Name: "Administrators", MemberCount: intPtr(2)},
			{ID: "ocid1.group.oc1..ops", Name: "Ops", MemberCount: intPtr(11)},
		},
		DynamicGroups: []types.Group{
			{ID: "ocid1.dynamicgroup.oc1..fn", Name: "fn-agents"},
		},
		PolicyCount:          3,
		ActivePrincipalCount: 42,
		UserCount:            40,
		MFAEnabledUserCount:  31,
	}
}

func statement(policyID, policyName, compartmentName, raw string) types.PolicyStatement {
	return types.PolicyStatement{
		PolicyID:        policyID,
		PolicyName:      policyName,
		CompartmentID:   "ocid1.compartment.oc1.." + compartmentName,
		CompartmentName: compartmentName,
		Raw:             raw,
	}
}

func TestAnalyzeTenancyWideAnyUserGrant(t *testing.T) {
	snapshot := snapshotWithStatements(
		statement("ocid1.policy.oc1..p1", "legacy-open", "root", "Allow any-user to manage all-resources in tenancy"),
	)

	report, err := Analyze(snapshot, nil, testParams(24))
	require.NoError(t, err)
	require.Len(t, report.Findings, 1)

	finding := report.Findings[0]
	assert.Equal(t, types.SeverityCritical, finding.Severity)
	require.NotNil(t, finding.BlastRadius)
	assert.Equal(t, 42, *finding.BlastRadius, "any-user reaches every active principal")
}

func TestAnalyzeConditionedInspectGrant(t *testing.T) {
	snapshot := snapshotWithStatements(
		statement("ocid1.policy.oc1..p2", "finance-audit", "finance",
			"Allow group Auditors to inspect buckets in compartment finance where request.permission='OBJECT_INSPECT'"),
	)

	report, err := Analyze(snapshot, nil, testParams(24))
	require.NoError(t, err)
	require.Len(t, report.Findings, 1)

	finding := report.Findings[0]
	assert.Equal(t, types.SeverityLow, finding.Severity)
	require.NotNil(t, finding.BlastRadius)
	assert.Equal(t, 7, *finding.BlastRadius)
}

func TestAnalyzeUnresolvedGroupStillReports(t *testing.T) {
	snapshot := snapshotWithStatements(
		statement("ocid1.policy.oc1..p3", "stale-admins", "root", "Allow group LegacyAdmins to manage groups in tenancy"),
	)

	report, err := Analyze(snapshot, nil, testParams(24))
	require.NoError(t, err)
	require.Len(t, report.Findings, 1)

	finding := report.Findings[0]
	assert.Equal(t, types.SeverityHigh, finding.Severity, "severity is computed even when the group is gone")
	assert.Nil(t, finding.BlastRadius)
	assert.Contains(t, finding.BlastRadiusNote, "unresolved")
}

func TestAnalyzeMarksRecentlyModifiedFindings(t *testing.T) {
	snapshot := snapshotWithStatements(
		statement("ocid1.policy.oc1..hot", "identity-admin", "root", "Allow group Administrators to manage policies in tenancy"),
	)
	events := []types.AuditEvent{
		{
			EventID:    "evt-update",
			EventType:  "com.oraclecloud.identitycontrolplane.updatepolicy",
			EventName:  "UpdatePolicy",
			Kind:       types.EventPolicyChange,
			Time:       correlationNow.Add(-2 * time.Hour),
			ResourceID: "ocid1.policy.oc1..hot",
		},
	}

	report, err := Analyze(snapshot, events, testParams(12))
	require.NoError(t, err)
	require.Len(t, report.Findings, 1)

	finding := report.Findings[0]
	assert.Equal(t, types.SeverityHigh, finding.Severity)
	assert.True(t, finding.RecentlyModified)
	require.Len(t, finding.CorrelatedEvents, 1)
	assert.Equal(t, "evt-update", finding.CorrelatedEvents[0].EventID)
	assert.Equal(t, 1, report.Summary.RecentlyModifiedCount)
}

func TestAnalyzeIgnoresEventsOutsideLookback(t *testing.T) {
	snapshot := snapshotWithStatements(
		statement("ocid1.policy.oc1..hot", "identity-admin", "root", "Allow group Administrators to manage policies in tenancy"),
	)
	events := []types.AuditEvent{
		{
			EventID:    "evt-stale",
			Kind:       types.EventPolicyChange,
			Time:       correlationNow.Add(-25 * time.Hour),
			ResourceID: "ocid1.policy.oc1..hot",
		},
	}

	report, err := Analyze(snapshot, events, testParams(24))
	require.NoError(t, err)
	require.Len(t, report.Findings, 1)

	finding := report.Findings[0]
	assert.False(t, finding.RecentlyModified)
	assert.Empty(t, finding.CorrelatedEvents)
	assert.Zero(t, report.Summary.IdentityEventCount)
}

func TestAnalyzeOrdersFindingsBySeverityThenInputOrder(t *testing.T) {
	snapshot := snapshotWithStatements(
		statement("s1", "audit", "finance", "Allow group Auditors to inspect buckets in compartment finance"),
		statement("s2", "open", "root", "Allow any-user to manage all-resources in tenancy"),
		statement("s3", "ops", "prod", "Allow group Ops to manage instance-family in compartment prod"),
		statement("s4", "viewers", "root", "Allow group Auditors to read all-resources in tenancy"),
		statement("s5", "admin", "root", "Allow group Administrators to manage groups in tenancy"),
	)

	report, err := Analyze(snapshot, nil, testParams(24))
	require.NoError(t, err)
	require.Len(t, report.Findings, 5)

	var order []string
	for _, finding := range report.Findings {
		order = append(order, finding.Statement.PolicyID)
	}
	assert.Equal(t, []string{"s2", "s5", "s3", "s1", "s4"}, order)
}

func TestAnalyzeRecordsUnparsedStatements(t *testing.T) {
	snapshot := snapshotWithStatements(
		statement("s1", "cross-tenancy", "root", "Define tenancy Acceptor as ocid1.tenancy.oc1..other"),
		statement("s2", "open", "root", "Allow any-user to manage all-resources in tenancy"),
	)

	report, err := Analyze(snapshot, nil, testParams(24))
	require.NoError(t, err)
	require.Len(t, report.Findings, 2)

	// Unparsed statements sort as LOW, after the parsed critical one.
	finding := report.Findings[1]
	assert.True(t, finding.Unparsed)
	assert.Nil(t, finding.Grant)
	assert.Equal(t, types.SeverityLow, finding.Severity)
	assert.Equal(t, "could not classify", finding.Rationale)
	assert.Equal(t, string(types.ParseMalformedGrammar), finding.ParseErrorKind)
}

func TestAnalyzeRejectsMissingSnapshots(t *testing.T) {
	_, err := Analyze(nil, nil, testParams(24))
	assert.ErrorIs(t, err, types.ErrSnapshotMissing)

	_, err = Analyze(&types.DirectorySnapshot{}, nil, testParams(24))
	assert.ErrorIs(t, err, types.ErrSnapshotMissing)

	noPolicies := &types.DirectorySnapshot{
		Compartments: []types.Compartment{{ID: "c1", Name: "root"}},
	}
	_, err = Analyze(noPolicies, nil, testParams(24))
	assert.ErrorIs(t, err, types.ErrSnapshotMissing)
}

func TestAnalyzeSummaryCounts(t *testing.T) {
	snapshot := snapshotWithStatements(
		statement("s1", "open", "root", "Allow any-user to manage all-resources in tenancy"),
		statement("s2", "admin", "root", "Allow group Administrators to manage groups in tenancy"),
		statement("s3", "ops", "prod", "Allow group Ops to manage instance-family in compartment prod"),
		statement("s4", "audit", "finance", "Allow group Auditors to inspect buckets in compartment finance"),
	)
	snapshot.SkippedCompartments = []types.SkippedCompartment{
		{CompartmentID: "ocid1.compartment.oc1..denied", Reason: "listing policies: NotAuthorizedOrNotFound"},
	}
	events := []types.AuditEvent{
		{EventID: "e1", Kind: types.EventPolicyChange, Time: correlationNow.Add(-time.Hour), ResourceID: "none"},
		{EventID: "e2", Kind: types.EventMembershipChange, Time: correlationNow.Add(-2 * time.Hour), ResourceName: "Ops"},
		{EventID: "e3", Kind: types.EventOther, Time: correlationNow.Add(-time.Hour)},
	}

	report, err := Analyze(snapshot, events, testParams(24))
	require.NoError(t, err)

	summary := report.Summary
	assert.Equal(t, 3, summary.ScannedCompartmentCount)
	assert.Equal(t, 1, summary.SkippedCompartmentCount)
	assert.Equal(t, 3, summary.PoliciesScanned)
	assert.Equal(t, 4, summary.StatementCount)
	assert.Equal(t, map[types.Severity]int{
		types.SeverityCritical: 1,
		types.SeverityHigh:     1,
		types.SeverityMedium:   1,
		types.SeverityLow:      1,
	}, summary.FindingsBySeverity)
	assert.Equal(t, 2, summary.IdentityEventCount)
	assert.Equal(t, 1, summary.PolicyChangeEventCount)
	assert.Equal(t, 3, summary.GroupCount)
	assert.Equal(t, 1, summary.DynamicGroupCount)
	assert.Equal(t, 40, summary.UserCount)
	assert.Equal(t, 31, summary.MFAEnabledUserCount)

	require.NotEmpty(t, summary.FindingsByCompartment)
	assert.Equal(t, "root", summary.FindingsByCompartment[0].CompartmentName)
	assert.Equal(t, 2, summary.FindingsByCompartment[0].Count)

	// The Ops membership change marks the prod finding.
	assert.Equal(t, 1, summary.RecentlyModifiedCount)
}

func TestAnalyzeGroupMembershipTable(t *testing.T) {
	snapshot := snapshotWithStatements(
		statement("s1", "audit", "finance", "Allow group Auditors to inspect buckets in compartment finance"),
	)

	report, err := Analyze(snapshot, nil, testParams(24))
	require.NoError(t, err)

	require.Len(t, report.GroupMembership, 3)
	assert.Equal(t, "Ops", report.GroupMembership[0].GroupName)
	assert.Equal(t, 11, report.GroupMembership[0].MemberCount)
	assert.Equal(t, "Auditors", report.GroupMembership[1].GroupName)
	assert.Equal(t, "Administrators", report.GroupMembership[2].GroupName)
}

func TestAnalyzeRecentChangeEvents(t *testing.T) {
	snapshot := snapshotWithStatements(
		statement("s1", "audit", "finance", "Allow group Auditors to inspect buckets in compartment finance"),
	)
	events := []types.AuditEvent{
		{EventID: "older", Kind: types.EventGroupChange, Time: correlationNow.Add(-6 * time.Hour)},
		{EventID: "newest", Kind: types.EventPolicyChange, Time: correlationNow.Add(-time.Hour)},
		{EventID: "noise", Kind: types.EventOther, Time: correlationNow.Add(-time.Minute)},
	}

	report, err := Analyze(snapshot, events, testParams(24))
	require.NoError(t, err)

	require.Len(t, report.RecentChangeEvents, 2)
	assert.Equal(t, "newest", report.RecentChangeEvents[0].EventID)
	assert.Equal(t, "older", report.RecentChangeEvents[1].EventID)
}

func TestAnalyzeMetadata(t *testing.T) {
	snapshot := snapshotWithStatements(
		statement("s1", "audit", "finance", "Allow group Auditors to inspect buckets in compartment finance"),
	)

	report, err := Analyze(snapshot, nil, testParams(24))
	require.NoError(t, err)

	meta := report.Metadata
	assert.Equal(t, types.ReportName, meta.ReportName)
	assert.Equal(t, correlationNow, meta.GeneratedAt)
	assert.Equal(t, "us-ashburn-1", meta.Region)
	assert.Equal(t, "ocid1.tenancy.oc1..tt", meta.TenancyOCID)
	assert.Equal(t, 24, meta.LookbackHours)
}
