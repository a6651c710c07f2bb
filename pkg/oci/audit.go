package oci

import (
	"context"
	"strings"
	"time"

	"github.com/oracle/oci-go-sdk/v65/audit"
	"github.com/oracle/oci-go-sdk/v65/common"
	"go.uber.org/zap"

	"github.com/jinchuntan/oci-iam-policy-drift-auditor/pkg/types"
)

// AuditAPI is the slice of the Audit service the collector uses.
type AuditAPI interface {
	ListEvents(ctx context.Context, request audit.ListEventsRequest) (audit.ListEventsResponse, error)
}

// AuditCollector gathers identity-change events across the scoped
// compartments for the correlation window.
type AuditCollector struct {
	api AuditAPI
	log *zap.SugaredLogger
}

func NewAuditCollector(api AuditAPI, log *zap.SugaredLogger) *AuditCollector {
	return &AuditCollector{api: api, log: log}
}

// CollectEvents lists audit events per compartment within [start, end],
// deduplicated by event id across compartments. Audit events are optional
// input for the engine, so a compartment that cannot be read is logged and
// skipped rather than failing the run.
func (c *AuditCollector) CollectEvents(ctx context.Context, compartments []types.Compartment, start, end time.Time) []types.AuditEvent {
	c.log.Infof("collecting audit events from %s to %s for %d compartments",
		start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339), len(compartments))

	var events []types.AuditEvent
	seen := make(map[string]bool)

	for _, compartment := range compartments {
		raw, err := c.listEvents(ctx, compartment.ID, start, end)
		if err != nil {
			c.log.Warnf("listing audit events failed for %s: %v", compartment.Name, err)
			continue
		}
		for _, event := range raw {
			normalized := normalizeEvent(event)
			if normalized.EventID != "" && seen[normalized.EventID] {
				continue
			}
			if normalized.EventID != "" {
				seen[normalized.EventID] = true
			}
			events = append(events, normalized)
		}
	}
	return events
}

func (c *AuditCollector) listEvents(ctx context.Context, compartmentID string, start, end time.Time) ([]audit.AuditEvent, error) {
	var events []audit.AuditEvent
	var page *string
	for {
		resp, err := c.api.ListEvents(ctx, audit.ListEventsRequest{
			CompartmentId: common.String(compartmentID),
			StartTime:     &common.SDKTime{Time: start},
			EndTime:       &common.SDKTime{Time: end},
			Page:          page,
		})
		if err != nil {
			return nil, err
		}
		events = append(events, resp.Items...)
		if resp.OpcNextPage == nil {
			break
		}
		page = resp.OpcNextPage
	}
	return events, nil
}

// normalizeEvent flattens one SDK audit event into the auditor's model and
// classifies what kind of identity change it describes.
func normalizeEvent(event audit.AuditEvent) types.AuditEvent {
	normalized := types.AuditEvent{
		EventID:   deref(event.EventId),
		EventType: deref(event.EventType),
	}
	if event.EventTime != nil {
		normalized.Time = event.EventTime.Time.UTC()
	}
	if event.Data != nil {
		normalized.EventName = deref(event.Data.EventName)
		normalized.ResourceID = deref(event.Data.ResourceId)
		normalized.ResourceName = deref(event.Data.ResourceName)
		normalized.CompartmentID = deref(event.Data.CompartmentId)
		if event.Data.Identity != nil {
			normalized.PrincipalName = deref(event.Data.Identity.PrincipalName)
		}
	}
	if normalized.PrincipalName == "" {
		normalized.PrincipalName = "UNKNOWN_PRINCIPAL"
	}
	normalized.Kind = classifyEvent(normalized.EventType, normalized.EventName)
	return normalized
}

// classifyEvent buckets an event by the operation named in its type or name.
// Matching is on the alphanumeric characters only, event types arrive as
// dotted reverse-DNS strings like
// com.oraclecloud.identitycontrolplane.updatepolicy.
func classifyEvent(eventType, eventName string) types.AuditEventKind {
	candidate := alnum(eventType + " " + eventName)
	switch {
	case containsAny(candidate, "createpolicy", "updatepolicy", "deletepolicy"):
		return types.EventPolicyChange
	case containsAny(candidate, "addusertogroup", "removeuserfromgroup"):
		return types.EventMembershipChange
	case containsAny(candidate, "createdynamicgroup", "updatedynamicgroup", "deletedynamicgroup"):
		return types.EventDynamicGroupChange
	case containsAny(candidate, "creategroup", "updategroup", "deletegroup"):
		return types.EventGroupChange
	default:
		return types.EventOther
	}
}

func alnum(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func containsAny(s string, terms ...string) bool {
	for _, term := range terms {
		if strings.Contains(s, term) {
			return true
		}
	}
	return false
}
