package types

import (
	"errors"
	"fmt"
)

// ParseErrorKind classifies why a statement failed to parse.
type ParseErrorKind string

const (
	ParseUnsupportedVerb  ParseErrorKind = "UnsupportedVerb"
	ParseMalformedGrammar ParseErrorKind = "MalformedGrammar"
	ParseMissingSubject   ParseErrorKind = "MissingSubject"
)

// ParseError is returned when a raw statement does not match the constrained
// policy grammar. Parse failures are non-fatal: callers record the statement
// as an unparsed finding instead of aborting the run.
type ParseError struct {
	Kind      ParseErrorKind
	Statement string
	Reason    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s (%q)", e.Kind, e.Reason, e.Statement)
}

// AsParseError unwraps err into a *ParseError when it is one.
func AsParseError(err error) (*ParseError, bool) {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

var (
	// ErrGroupNotFound marks a grant whose referenced group is absent from the
	// directory snapshot. Mapped to a nil blast radius, never a hard failure.
	ErrGroupNotFound = errors.New("group not found in directory snapshot")

	// ErrSnapshotMissing aborts a run whose mandatory inputs (compartments,
	// policy statements) are absent. The engine never runs on partial data.
	ErrSnapshotMissing = errors.New("directory snapshot unavailable")
)
