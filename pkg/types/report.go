package types

import "time"

// ReportName is the stable artifact base name shared by the JSON and Markdown
// writers and the Object Storage uploader.
const ReportName = "iam_policy_drift_audit"

// ReportMetadata describes the run that produced a report.
type ReportMetadata struct {
	ReportName    string    `json:"report_name"`
	GeneratedAt   time.Time `json:"generated_at_utc"`
	Region        string    `json:"region"`
	TenancyOCID   string    `json:"tenancy_ocid"`
	LookbackHours int       `json:"audit_lookback_hours"`
}

// CompartmentFindingCount is one entry of the findings-per-compartment ranking.
type CompartmentFindingCount struct {
	CompartmentName string `json:"compartment_name"`
	Count           int    `json:"count"`
}

// ReportSummary carries the aggregate counters of one run.
type ReportSummary struct {
	ScannedCompartmentCount int                       `json:"scanned_compartment_count"`
	SkippedCompartmentCount int                       `json:"skipped_compartment_count"`
	PoliciesScanned         int                       `json:"total_policies_scanned"`
	StatementCount          int                       `json:"statement_count"`
	FindingsBySeverity      map[Severity]int          `json:"finding_count_by_severity"`
	FindingsByCompartment   []CompartmentFindingCount `json:"finding_compartments_top"`
	RecentlyModifiedCount   int                       `json:"recently_modified_finding_count"`
	IdentityEventCount      int                       `json:"identity_audit_event_count"`
	PolicyChangeEventCount  int                       `json:"policy_change_event_count"`
	GroupCount              int                       `json:"tenancy_group_count"`
	DynamicGroupCount       int                       `json:"tenancy_dynamic_group_count"`
	UserCount               int                       `json:"tenancy_user_count"`
	MFAEnabledUserCount     int                       `json:"tenancy_user_mfa_enabled_count"`
}

// GroupMembershipSummary is one row of the per-group membership table,
// reported largest group first.
type GroupMembershipSummary struct {
	GroupID     string `json:"group_id"`
	GroupName   string `json:"group_name"`
	MemberCount int    `json:"member_count"`
}

// Report is the full output of one audit run. It is built once by the
// aggregator and handed read-only to the writers, printer and uploader.
type Report struct {
	Metadata            ReportMetadata           `json:"metadata"`
	Summary             ReportSummary            `json:"summary"`
	SkippedCompartments []SkippedCompartment     `json:"skipped_compartments"`
	Findings            []Finding                `json:"findings"`
	RecentChangeEvents  []AuditEvent             `json:"recent_policy_change_events"`
	GroupMembership     []GroupMembershipSummary `json:"group_membership_summary"`
}
