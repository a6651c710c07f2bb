// Package parser turns raw OCI IAM policy statements into structured grants.
//
// Only the constrained single-line allow grammar is supported:
//
//	Allow <subject> to <verb> <resource-type> [in tenancy | in compartment [id] <name>] [where <condition>]
//
// with <subject> one of "group <name>", "dynamic-group <name>", "any-user" or
// "service <name>". Keywords match case-insensitively, names keep their case.
// Anything else (define/endorse/admit statements, comma-separated subject
// lists) is reported as a typed ParseError and handled as an unparsed finding
// by the caller.
package parser

import (
	"strings"

	"github.com/jinchuntan/oci-iam-policy-drift-auditor/pkg/types"
)

var verbs = map[string]types.Verb{
	"inspect": types.VerbInspect,
	"read":    types.VerbRead,
	"use":     types.VerbUse,
	"manage":  types.VerbManage,
}

// Parse parses one raw policy statement. It has no side effects and is
// deterministic: the same input always yields the same grant or error.
func Parse(raw string) (types.Grant, error) {
	head, condition, hasWhere := splitCondition(raw)
	if hasWhere && condition == "" {
		return types.Grant{}, malformed(raw, "empty condition after 'where'")
	}

	tokens := strings.Fields(head)
	if len(tokens) == 0 {
		return types.Grant{}, malformed(raw, "empty statement")
	}
	if !strings.EqualFold(tokens[0], "allow") {
		return types.Grant{}, malformed(raw, "statement must begin with Allow")
	}
	tokens = tokens[1:]

	grant := types.Grant{Condition: condition}

	tokens, err := parseSubject(raw, tokens, &grant)
	if err != nil {
		return types.Grant{}, err
	}

	if len(tokens) == 0 || !strings.EqualFold(tokens[0], "to") {
		return types.Grant{}, malformed(raw, "expected 'to' after subject")
	}
	tokens = tokens[1:]

	if len(tokens) == 0 {
		return types.Grant{}, malformed(raw, "missing verb")
	}
	verb, ok := verbs[strings.ToLower(tokens[0])]
	if !ok {
		return types.Grant{}, &types.ParseError{
			Kind:      types.ParseUnsupportedVerb,
			Statement: raw,
			Reason:    "unsupported verb " + tokens[0],
		}
	}
	grant.Verb = verb
	tokens = tokens[1:]

	if len(tokens) == 0 {
		return types.Grant{}, malformed(raw, "missing resource type")
	}
	// Resource types are grammar keywords, normalized to lower case.
	grant.ResourceType = strings.ToLower(tokens[0])
	tokens = tokens[1:]

	tokens, err = parseScope(raw, tokens, &grant)
	if err != nil {
		return types.Grant{}, err
	}

	if len(tokens) > 0 {
		return types.Grant{}, malformed(raw, "unexpected trailing tokens after scope")
	}
	return grant, nil
}

// parseSubject consumes the subject clause and fills SubjectType/SubjectName.
func parseSubject(raw string, tokens []string, grant *types.Grant) ([]string, error) {
	if len(tokens) == 0 {
		return nil, &types.ParseError{
			Kind:      types.ParseMissingSubject,
			Statement: raw,
			Reason:    "missing subject",
		}
	}

	switch strings.ToLower(tokens[0]) {
	case "any-user":
		grant.SubjectType = types.SubjectAnyUser
		return tokens[1:], nil
	case "group":
		grant.SubjectType = types.SubjectGroup
	case "dynamic-group":
		grant.SubjectType = types.SubjectDynamicGroup
	case "service":
		grant.SubjectType = types.SubjectService
	default:
		return nil, malformed(raw, "unrecognized subject "+tokens[0])
	}

	if len(tokens) < 2 || strings.EqualFold(tokens[1], "to") {
		return nil, &types.ParseError{
			Kind:      types.ParseMissingSubject,
			Statement: raw,
			Reason:    "missing " + string(grant.SubjectType) + " name",
		}
	}
	name := tokens[1]
	// Comma-separated subject lists are outside the constrained grammar.
	if strings.Contains(name, ",") || (len(tokens) > 2 && tokens[2] == ",") {
		return nil, malformed(raw, "multiple subjects are not supported")
	}
	grant.SubjectName = name
	return tokens[2:], nil
}

// parseScope consumes the optional "in tenancy"/"in compartment" clause. A
// statement without one applies to the owning policy's compartment, which the
// grant records as a compartment scope with an empty name.
func parseScope(raw string, tokens []string, grant *types.Grant) ([]string, error) {
	if len(tokens) == 0 || !strings.EqualFold(tokens[0], "in") {
		grant.Scope = types.ScopeCompartment
		return tokens, nil
	}
	tokens = tokens[1:]

	if len(tokens) == 0 {
		return nil, malformed(raw, "expected tenancy or compartment after 'in'")
	}
	switch strings.ToLower(tokens[0]) {
	case "tenancy":
		grant.Scope = types.ScopeTenancy
		return tokens[1:], nil
	case "compartment":
		tokens = tokens[1:]
		if len(tokens) > 0 && strings.EqualFold(tokens[0], "id") {
			tokens = tokens[1:]
		}
		if len(tokens) == 0 {
			return nil, malformed(raw, "missing compartment name")
		}
		grant.Scope = types.ScopeCompartment
		grant.ScopeName = tokens[0]
		return tokens[1:], nil
	default:
		return nil, malformed(raw, "expected tenancy or compartment after 'in'")
	}
}

// splitCondition cuts the statement at its first standalone "where" keyword
// and returns the head plus the condition text, which is kept verbatim apart
// from whitespace normalization.
func splitCondition(raw string) (head, condition string, hasWhere bool) {
	tokens := strings.Fields(raw)
	for i, tok := range tokens {
		if strings.EqualFold(tok, "where") {
			return strings.Join(tokens[:i], " "), strings.Join(tokens[i+1:], " "), true
		}
	}
	return raw, "", false
}

func malformed(raw, reason string) *types.ParseError {
	return &types.ParseError{
		Kind:      types.ParseMalformedGrammar,
		Statement: raw,
		Reason:    reason,
	}
}
