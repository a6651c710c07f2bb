package types

import (
	"fmt"
	"time"
)

// Severity is the normalized risk level assigned to a policy statement.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// Severities lists all levels from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityMedium:   2,
	SeverityLow:      3,
}

// Rank returns the sort rank of a severity; lower means more severe.
// Unknown severities rank after every known one.
func (s Severity) Rank() int {
	if rank, ok := severityRank[s]; ok {
		return rank
	}
	return len(severityRank)
}

// Verb is one of the four OCI policy verbs, ordered from least to most power.
type Verb string

const (
	VerbInspect Verb = "inspect"
	VerbRead    Verb = "read"
	VerbUse     Verb = "use"
	VerbManage  Verb = "manage"
)

// SubjectType identifies who a statement grants access to.
type SubjectType string

const (
	SubjectGroup        SubjectType = "group"
	SubjectDynamicGroup SubjectType = "dynamic-group"
	SubjectAnyUser      SubjectType = "any-user"
	SubjectService      SubjectType = "service"
)

// ScopeType identifies where a grant applies.
type ScopeType string

const (
	ScopeTenancy     ScopeType = "tenancy"
	ScopeCompartment ScopeType = "compartment"
)

// Grant is the structured permission expressed by one parsed policy statement.
type Grant struct {
	Verb         Verb        `json:"verb"`
	ResourceType string      `json:"resource_type"`
	SubjectType  SubjectType `json:"subject_type"`
	SubjectName  string      `json:"subject_name,omitempty"` // empty only for any-user
	Scope        ScopeType   `json:"scope"`
	ScopeName    string      `json:"scope_name,omitempty"` // compartment name/path, empty for tenancy
	Condition    string      `json:"condition,omitempty"`  // raw text after "where", not parsed further
}

// HasCondition reports whether the grant carries a where-clause.
func (g Grant) HasCondition() bool {
	return g.Condition != ""
}

// Subject renders the grant's principal, e.g. "group Administrators".
func (g Grant) Subject() string {
	if g.SubjectType == SubjectAnyUser {
		return string(SubjectAnyUser)
	}
	return fmt.Sprintf("%s %s", g.SubjectType, g.SubjectName)
}

func (g Grant) String() string {
	scope := string(ScopeTenancy)
	if g.Scope == ScopeCompartment {
		scope = fmt.Sprintf("compartment %s", g.ScopeName)
	}
	return fmt.Sprintf("%s %s for %s in %s", g.Verb, g.ResourceType, g.Subject(), scope)
}

// PolicyStatement is one raw statement together with the policy and
// compartment it was collected from. Immutable once collected.
type PolicyStatement struct {
	PolicyID        string `json:"policy_id"`
	PolicyName      string `json:"policy_name"`
	CompartmentID   string `json:"compartment_id"`
	CompartmentName string `json:"compartment_name"`
	Raw             string `json:"statement"`
}

// Compartment is the minimal compartment identity the auditor needs.
type Compartment struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Group is a directory group or dynamic group. MemberCount is nil until
// resolved; an unresolved count is distinct from a resolved count of zero
// (dynamic groups, for example, have no enumerable membership).
type Group struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MemberCount *int   `json:"member_count,omitempty"`
}

// SkippedCompartment records a compartment whose policies could not be read.
type SkippedCompartment struct {
	CompartmentID string `json:"compartment_id"`
	Reason        string `json:"reason"`
}

// DirectorySnapshot is the complete, time-bounded set of directory and policy
// data collected before evaluation begins. The engine never refreshes it.
type DirectorySnapshot struct {
	Compartments         []Compartment        `json:"compartments"`
	Statements           []PolicyStatement    `json:"statements"`
	Groups               []Group              `json:"groups"`
	DynamicGroups        []Group              `json:"dynamic_groups"`
	PolicyCount          int                  `json:"policy_count"`
	ActivePrincipalCount int                  `json:"active_principal_count"`
	UserCount            int                  `json:"user_count"`
	MFAEnabledUserCount  int                  `json:"mfa_enabled_user_count"`
	SkippedCompartments  []SkippedCompartment `json:"skipped_compartments,omitempty"`
}

// AuditEventKind buckets identity-change events for correlation.
type AuditEventKind string

const (
	EventPolicyChange       AuditEventKind = "policy-changed"
	EventGroupChange        AuditEventKind = "group-changed"
	EventMembershipChange   AuditEventKind = "group-membership-changed"
	EventDynamicGroupChange AuditEventKind = "dynamic-group-changed"
	EventOther              AuditEventKind = "other"
)

// AuditEvent is a normalized identity audit event. Immutable.
type AuditEvent struct {
	EventID       string         `json:"event_id"`
	EventType     string         `json:"event_type"`
	EventName     string         `json:"event_name"`
	Kind          AuditEventKind `json:"kind"`
	Time          time.Time      `json:"event_time_utc"`
	PrincipalName string         `json:"principal_name"`
	ResourceID    string         `json:"resource_id,omitempty"`
	ResourceName  string         `json:"resource_name,omitempty"`
	CompartmentID string         `json:"compartment_id,omitempty"`
}

// IsIdentityChange reports whether the event belongs to one of the
// policy/group/membership/dynamic-group change kinds the correlator cares about.
func (e AuditEvent) IsIdentityChange() bool {
	return e.Kind != EventOther
}

// Finding is the engine's verdict on one policy statement. Exactly one of
// Grant or Unparsed is set; findings are never mutated after the aggregator
// builds them.
type Finding struct {
	Statement        PolicyStatement `json:"statement"`
	Grant            *Grant          `json:"grant,omitempty"`
	Unparsed         bool            `json:"unparsed,omitempty"`
	ParseErrorKind   string          `json:"parse_error,omitempty"`
	Severity         Severity        `json:"severity"`
	Rationale        string          `json:"rationale"`
	BlastRadius      *int            `json:"blast_radius,omitempty"`
	BlastRadiusNote  string          `json:"blast_radius_note,omitempty"`
	RecentlyModified bool            `json:"recently_modified"`
	CorrelatedEvents []AuditEvent    `json:"correlated_events,omitempty"`
}

func (f Finding) String() string {
	subject := "unparsed statement"
	if f.Grant != nil {
		subject = f.Grant.String()
	}
	return fmt.Sprintf("[%s] %s: %s", f.Severity, subject, f.Rationale)
}
