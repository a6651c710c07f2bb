package analyzer

import (
	"sort"
	"time"

	"github.com/jinchuntan/oci-iam-policy-drift-auditor/pkg/types"
)

type eventWindow struct {
	from time.Time
	to   time.Time
}

func windowFor(params Params) eventWindow {
	to := params.GeneratedAt
	return eventWindow{
		from: to.Add(-time.Duration(params.LookbackHours) * time.Hour),
		to:   to,
	}
}

func (w eventWindow) contains(t time.Time) bool {
	return !t.Before(w.from) && !t.After(w.to)
}

// filterWindow drops events outside the lookback window. Events already
// filtered upstream pass through unchanged, so the correlator stays correct
// when the collector hands it a wider range than configured.
func filterWindow(events []types.AuditEvent, window eventWindow) []types.AuditEvent {
	recent := make([]types.AuditEvent, 0, len(events))
	for _, event := range events {
		if window.contains(event.Time) {
			recent = append(recent, event)
		}
	}
	return recent
}

// correlateFinding attaches every in-window event that touched the finding's
// policy or its referenced group, newest first, and flags the finding as
// recently modified when at least one matched. An empty event list leaves the
// finding untouched.
func correlateFinding(finding *types.Finding, events []types.AuditEvent) {
	var matched []types.AuditEvent
	for _, event := range events {
		if eventTouchesFinding(*finding, event) {
			matched = append(matched, event)
		}
	}
	if len(matched) == 0 {
		return
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Time.After(matched[j].Time)
	})
	finding.RecentlyModified = true
	finding.CorrelatedEvents = matched
}

// eventTouchesFinding reports whether the event modified the finding's owning
// policy, or defined/repopulated the group its grant references.
func eventTouchesFinding(finding types.Finding, event types.AuditEvent) bool {
	if event.ResourceID != "" && event.ResourceID == finding.Statement.PolicyID {
		return true
	}
	if event.Kind == types.EventPolicyChange && event.ResourceName != "" && event.ResourceName == finding.Statement.PolicyName {
		return true
	}

	if finding.Grant == nil || event.ResourceName == "" {
		return false
	}
	switch finding.Grant.SubjectType {
	case types.SubjectGroup:
		if event.Kind != types.EventGroupChange && event.Kind != types.EventMembershipChange {
			return false
		}
	case types.SubjectDynamicGroup:
		if event.Kind != types.EventDynamicGroupChange {
			return false
		}
	default:
		return false
	}
	return event.ResourceName == finding.Grant.SubjectName
}
