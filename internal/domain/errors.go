package domain

import (
	"fmt"
	"strings"
)

// ValidationError marks a malformed inbound request (bad keyword).
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InsufficientDataError is the one fatal-but-expected orchestrator outcome:
// fewer than the required number of collectors produced data, even after any
// expansion. Reasons names every failed source so callers can explain why.
type InsufficientDataError struct {
	Succeeded int
	Required  int
	Reasons   []string
}

func (e *InsufficientDataError) Error() string {
	msg := fmt.Sprintf("insufficient data: only %d/5 collectors succeeded, minimum %d required", e.Succeeded, e.Required)
	if len(e.Reasons) > 0 {
		msg += ": " + strings.Join(e.Reasons, "; ")
	}
	return msg
}

// ClassifierErrorKind buckets classifier client failures.
type ClassifierErrorKind string

const (
	ClassifierRateLimited       ClassifierErrorKind = "rate_limited"
	ClassifierUnauthenticated   ClassifierErrorKind = "unauthenticated"
	ClassifierTimedOut          ClassifierErrorKind = "timed_out"
	ClassifierMalformedResponse ClassifierErrorKind = "malformed_response"
)

// ClassifierError wraps a failed classifier call with its failure class and
// the operation that produced it.
type ClassifierError struct {
	Op   string
	Kind ClassifierErrorKind
	Err  error
}

func (e *ClassifierError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("classifier %s (%s): %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("classifier %s (%s)", e.Op, e.Kind)
}

func (e *ClassifierError) Unwrap() error {
	return e.Err
}
