// Package rules assigns a severity and rationale to parsed policy grants.
//
// Rules live in a single ordered list and are evaluated first-match-wins:
// a statement gets exactly one severity, and the list order is part of the
// engine's contract. Reordering rules changes observable severities.
package rules

import (
	"fmt"
	"strings"

	"github.com/jinchuntan/oci-iam-policy-drift-auditor/pkg/types"
)

// Rule pairs a predicate with the severity and rationale it assigns.
type Rule struct {
	Name      string
	Severity  types.Severity
	Matches   func(types.Grant) bool
	Rationale func(types.Grant) string
}

// Sensitive resource types whose manage grants can change the tenancy's
// security posture rather than just its workloads.
var sensitiveResourceTypes = map[string]string{
	"policies":           "IAM policies",
	"groups":             "IAM groups",
	"users":              "IAM users",
	"dynamic-groups":     "dynamic groups",
	"compartments":       "compartments",
	"identity-providers": "identity providers",
	"domains":            "identity domains",
	"identity-family":    "the identity family",
	"tag-namespaces":     "tag namespaces",
}

// Ordered is the rule list, most severe patterns first.
var Ordered = []Rule{
	{
		Name:     "tenancy-wide-manage-all",
		Severity: types.SeverityCritical,
		Matches: func(g types.Grant) bool {
			return g.Verb == types.VerbManage && g.ResourceType == "all-resources" && g.Scope == types.ScopeTenancy
		},
		Rationale: func(types.Grant) string {
			return "tenancy-wide manage-all grant"
		},
	},
	{
		Name:     "any-user-manage",
		Severity: types.SeverityCritical,
		Matches: func(g types.Grant) bool {
			return g.Verb == types.VerbManage && g.SubjectType == types.SubjectAnyUser
		},
		Rationale: func(types.Grant) string {
			return "unscoped principal with manage rights"
		},
	},
	{
		Name:     "sensitive-manage",
		Severity: types.SeverityHigh,
		Matches: func(g types.Grant) bool {
			return g.Verb == types.VerbManage && isSensitiveResourceType(g.ResourceType)
		},
		Rationale: func(g types.Grant) string {
			return fmt.Sprintf("manage rights on %s", sensitiveResourceTypes[strings.ToLower(g.ResourceType)])
		},
	},
	{
		Name:     "broad-unconditioned",
		Severity: types.SeverityMedium,
		Matches: func(g types.Grant) bool {
			if g.Verb != types.VerbUse && g.Verb != types.VerbManage {
				return false
			}
			return !g.HasCondition() && isBroadResourceType(g.ResourceType)
		},
		Rationale: func(g types.Grant) string {
			return fmt.Sprintf("broad unconditioned %s grant on %s", g.Verb, g.ResourceType)
		},
	},
	{
		Name:     "low-impact",
		Severity: types.SeverityLow,
		Matches: func(g types.Grant) bool {
			return g.Verb == types.VerbInspect || g.Verb == types.VerbRead || g.HasCondition()
		},
		Rationale: func(g types.Grant) string {
			if g.HasCondition() {
				return "grant restricted by a condition clause"
			}
			return "read-only grant"
		},
	},
	{
		Name:     "default",
		Severity: types.SeverityLow,
		Matches: func(types.Grant) bool {
			return true
		},
		Rationale: func(types.Grant) string {
			return "no elevated-risk pattern matched"
		},
	},
}

// Classify evaluates the grant against the ordered rule list and returns the
// first match. It is a pure function: identical grants always classify
// identically, and the terminal default rule guarantees a result.
func Classify(grant types.Grant) (types.Severity, string) {
	for _, rule := range Ordered {
		if rule.Matches(grant) {
			return rule.Severity, rule.Rationale(grant)
		}
	}
	// Unreachable: the default rule matches everything.
	return types.SeverityLow, "no elevated-risk pattern matched"
}

// ClassifyUnparsed is the fixed verdict for statements the parser rejected.
func ClassifyUnparsed() (types.Severity, string) {
	return types.SeverityLow, "could not classify"
}

func isSensitiveResourceType(resourceType string) bool {
	_, ok := sensitiveResourceTypes[strings.ToLower(resourceType)]
	return ok
}

// isBroadResourceType reports whether the type spans a whole service surface,
// either all-resources or one of the *-family aggregates such as
// object-family or instance-family.
func isBroadResourceType(resourceType string) bool {
	resourceType = strings.ToLower(resourceType)
	return resourceType == "all-resources" || strings.HasSuffix(resourceType, "-family")
}
