package billing

import (
	"errors"
	"fmt"
)

// ErrNoTransition is returned when an invoice is already in the requested status.
// Callers treat it as a successful no-op.
var ErrNoTransition = errors.New("invoice already in requested status")

// TransitionError reports a transition the lifecycle does not allow
type TransitionError struct {
	From   InvoiceStatus
	To     InvoiceStatus
	Source Source
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invoice cannot move from %s to %s (source %s)", e.From, e.To, e.Source)
}

// IsTransitionError reports whether err is or wraps a *TransitionError
func IsTransitionError(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}

type edge struct {
	from InvoiceStatus
	to   InvoiceStatus
}

var allowed = map[edge][]Source{
	{InvoiceStatusDraft, InvoiceStatusOpen}: {SourceSend, SourceStripe},

	{InvoiceStatusOpen, InvoiceStatusPaid}:          {SourceAdmin, SourceStripe},
	{InvoiceStatusOpen, InvoiceStatusVoid}:          {SourceAdmin, SourceStripe},
	{InvoiceStatusOpen, InvoiceStatusUncollectible}: {SourceAdmin, SourceStripe},

	{InvoiceStatusUncollectible, InvoiceStatusPaid}: {SourceAdmin, SourceStripe},
	{InvoiceStatusUncollectible, InvoiceStatusVoid}: {SourceAdmin, SourceStripe},

	{InvoiceStatusDraft, InvoiceStatusPaid}:          {SourceAdmin},
	{InvoiceStatusDraft, InvoiceStatusVoid}:          {SourceAdmin},
	{InvoiceStatusDraft, InvoiceStatusUncollectible}: {SourceAdmin},
}

// CheckTransition validates moving an invoice from one status to another.
// It returns ErrNoTransition when from == to and a *TransitionError when the
// move is not allowed for source.
func CheckTransition(from, to InvoiceStatus, source Source) error {
	if !to.Valid() {
		return &TransitionError{From: from, To: to, Source: source}
	}
	if from == to {
		return ErrNoTransition
	}
	for _, s := range allowed[edge{from, to}] {
		if s == source {
			return nil
		}
	}
	return &TransitionError{From: from, To: to, Source: source}
}
