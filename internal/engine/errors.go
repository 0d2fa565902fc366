// Package engine defines the typed error taxonomy shared by all pipeline
// stages. Every surfaced failure carries a stable code, a human-readable
// message and, where applicable, the stage that produced it.
package engine

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an engine failure.
type Kind string

const (
	KindBadInput            Kind = "BAD_INPUT"
	KindExternalUnavailable Kind = "EXTERNAL_UNAVAILABLE"
	KindDeadlineExceeded    Kind = "DEADLINE_EXCEEDED"
	KindLedgerRejected      Kind = "LEDGER_REJECTED"
	KindPersistenceFailed   Kind = "PERSISTENCE_FAILED"
	KindCancelled           Kind = "CANCELLED"
	KindInternal            Kind = "INTERNAL"
)

// Stage names used in errors and audit messages.
const (
	StageExtraction     = "extraction"
	StageNormalization  = "normalization"
	StageTranslation    = "translation"
	StageEntityExtract  = "entity_extraction"
	StageClassification = "classification"
	StageScoring        = "risk_scoring"
	StageFingerprint    = "fingerprint"
	StageLedger         = "ledger"
	StagePersistence    = "persistence"
)

// Error is a typed engine failure.
type Error struct {
	Kind    Kind
	Stage   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Kind, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Code returns the stable machine-readable code for this error.
func (e *Error) Code() string { return string(e.Kind) }

// New creates an engine error without an underlying cause.
func New(kind Kind, stage, message string) *Error {
	return &Error{Kind: kind, Stage: stage, Message: message}
}

// Wrap creates an engine error around an underlying cause. Context
// cancellation and deadline errors take their kind from the context state
// so callers never misreport a timeout as an external failure.
func Wrap(kind Kind, stage, message string, err error) *Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindDeadlineExceeded
	case errors.Is(err, context.Canceled):
		kind = KindCancelled
	}
	return &Error{Kind: kind, Stage: stage, Message: message, Err: err}
}

// KindOf extracts the kind from any error, defaulting to Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindDeadlineExceeded
	case errors.Is(err, context.Canceled):
		return KindCancelled
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
