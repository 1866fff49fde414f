// Package faults defines the error taxonomy shared by the call orchestrator.
// Every error that crosses a component boundary is either a plain wrapped error
// or a *Fault carrying a kind, source, and severity for routing and audit.
package faults

import (
	"errors"
	"fmt"
)

// Kind categorizes what went wrong.
type Kind string

const (
	KindNetwork       Kind = "network"
	KindValidation    Kind = "validation"
	KindBusinessLogic Kind = "business_logic"
	KindExternalAPI   Kind = "external_api"
)

// Source identifies which external collaborator the error originated from.
type Source string

const (
	SourceDialer        Source = "dialer"
	SourceCRM           Source = "crm"
	SourceSMS           Source = "sms"
	SourceDatabase      Source = "database"
	SourceVoicePlatform Source = "voice-platform"
)

// Severity indicates how serious a fault is.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Fault is a typed error with enough context to route, log, and audit it.
type Fault struct {
	Kind     Kind
	Source   Source
	Severity Severity
	Op       string
	Err      error

	// retryable is set explicitly; nil means "derive from kind".
	retryable *bool
}

// New creates a Fault wrapping err.
func New(kind Kind, source Source, op string, err error) *Fault {
	return &Fault{
		Kind:     kind,
		Source:   source,
		Severity: defaultSeverity(kind, source),
		Op:       op,
		Err:      err,
	}
}

// defaultSeverity applies the propagation policy: storage errors are always
// critical, validation problems are warnings, the rest are plain errors.
func defaultSeverity(kind Kind, source Source) Severity {
	if source == SourceDatabase {
		return SeverityCritical
	}
	if kind == KindValidation {
		return SeverityWarning
	}
	return SeverityError
}

// WithSeverity overrides the derived severity.
func (f *Fault) WithSeverity(s Severity) *Fault {
	f.Severity = s
	return f
}

// AsNonRetryable marks the fault so the retry executor fails fast.
func (f *Fault) AsNonRetryable() *Fault {
	v := false
	f.retryable = &v
	return f
}

// AsRetryable forces the fault to be treated as transient.
func (f *Fault) AsRetryable() *Fault {
	v := true
	f.retryable = &v
	return f
}

func (f *Fault) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s: %s fault from %s", f.Op, f.Kind, f.Source)
	}
	return fmt.Sprintf("%s: %v", f.Op, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// Retryable reports whether err may be retried by the executor.
//
// Policy: everything is retryable unless it is explicitly marked non-retryable
// or is a validation fault (the 4xx-equivalent class). Unknown plain errors
// default to retryable so transient network failures are absorbed.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var f *Fault
	if errors.As(err, &f) {
		if f.retryable != nil {
			return *f.retryable
		}
		return f.Kind != KindValidation
	}
	return true
}

// SeverityOf extracts the severity from err, defaulting to error.
func SeverityOf(err error) Severity {
	var f *Fault
	if errors.As(err, &f) {
		return f.Severity
	}
	return SeverityError
}

// KindOf extracts the kind from err, defaulting to external_api.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindExternalAPI
}
