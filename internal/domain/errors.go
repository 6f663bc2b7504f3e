package domain

import (
	"fmt"
	"sort"
	"strings"
)

// ParseError means the document is not a balancer-manager page, or its
// structure does not match the layout expected for its version.
// No partial model is ever produced alongside a ParseError.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("balancer-manager parse error: %s: %v", e.Reason, e.Err)
	}
	return "balancer-manager parse error: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// UnsupportedVersionError is returned for unknown httpd families, or when a
// status cannot be changed on the detected version.
type UnsupportedVersionError struct {
	Version Version
	Status  StatusName // empty when the version itself is unsupported
}

func (e *UnsupportedVersionError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("status %q is not mutable on httpd %s", e.Status, e.Version)
	}
	return fmt.Sprintf("unsupported httpd version %s", e.Version)
}

// NotFoundError is returned for unknown cluster, route or lbset names.
type NotFoundError struct {
	Kind string // "cluster", "route" or "lbset"
	Name string

	// Suggestions lists close existing names, best first.
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("%s not found: %s", e.Kind, e.Name)
	if len(e.Suggestions) > 0 {
		msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(e.Suggestions, ", "))
	}
	return msg
}

// InvariantViolationError means an edit would leave a cluster without any
// eligible route. It is raised before any request is sent.
type InvariantViolationError struct {
	Cluster string
	Route   string
	Status  StatusName
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("setting %s on %s/%s would leave no eligible route in the cluster (use force to override)",
		e.Status, e.Cluster, e.Route)
}

// TransportError covers connection failures and non-2xx responses.
type TransportError struct {
	Method     string
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Mismatch is one field whose observed value differs from the requested one.
type Mismatch struct {
	Field     string
	Requested string
	Observed  string
}

// VerificationError means the page returned after an edit does not reflect
// the request: stale nonce, concurrent external change, or a silent rejection.
type VerificationError struct {
	Cluster    string
	Route      string
	Mismatches []Mismatch
}

func (e *VerificationError) Error() string {
	parts := make([]string, 0, len(e.Mismatches))
	for _, m := range e.Mismatches {
		parts = append(parts, fmt.Sprintf("%s: requested %s, observed %s", m.Field, m.Requested, m.Observed))
	}
	sort.Strings(parts)
	return fmt.Sprintf("edit of %s/%s not applied (%s)", e.Cluster, e.Route, strings.Join(parts, "; "))
}

// AggregateError collects the per-route failures of a fan-out edit.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d edit(s) failed: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// Unwrap lets errors.Is / errors.As inspect every collected failure.
func (e *AggregateError) Unwrap() []error { return e.Errors }
