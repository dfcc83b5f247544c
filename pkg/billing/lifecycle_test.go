package billing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckTransition(t *testing.T) {
	tests := []struct {
		from    InvoiceStatus
		to      InvoiceStatus
		source  Source
		allowed bool
	}{
		{InvoiceStatusDraft, InvoiceStatusOpen, SourceSend, true},
		{InvoiceStatusDraft, InvoiceStatusOpen, SourceStripe, true},
		{InvoiceStatusDraft, InvoiceStatusOpen, SourceAdmin, false},

		{InvoiceStatusOpen, InvoiceStatusPaid, SourceAdmin, true},
		{InvoiceStatusOpen, InvoiceStatusPaid, SourceStripe, true},
		{InvoiceStatusOpen, InvoiceStatusPaid, SourceSend, false},
		{InvoiceStatusOpen, InvoiceStatusVoid, SourceAdmin, true},
		{InvoiceStatusOpen, InvoiceStatusUncollectible, SourceStripe, true},

		{InvoiceStatusUncollectible, InvoiceStatusPaid, SourceStripe, true},
		{InvoiceStatusUncollectible, InvoiceStatusVoid, SourceAdmin, true},
		{InvoiceStatusUncollectible, InvoiceStatusOpen, SourceStripe, false},

		{InvoiceStatusDraft, InvoiceStatusPaid, SourceAdmin, true},
		{InvoiceStatusDraft, InvoiceStatusVoid, SourceAdmin, true},
		{InvoiceStatusDraft, InvoiceStatusUncollectible, SourceAdmin, true},
		{InvoiceStatusDraft, InvoiceStatusPaid, SourceStripe, false},

		// terminal states and backward moves
		{InvoiceStatusPaid, InvoiceStatusOpen, SourceStripe, false},
		{InvoiceStatusPaid, InvoiceStatusVoid, SourceAdmin, false},
		{InvoiceStatusVoid, InvoiceStatusPaid, SourceStripe, false},
		{InvoiceStatusOpen, InvoiceStatusDraft, SourceAdmin, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to)+"/"+string(tt.source), func(t *testing.T) {
			err := CheckTransition(tt.from, tt.to, tt.source)
			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			var te *TransitionError
			assert.True(t, errors.As(err, &te), "expected TransitionError, got %v", err)
			assert.Equal(t, tt.from, te.From)
			assert.Equal(t, tt.to, te.To)
		})
	}
}

func TestCheckTransition_SameStatus(t *testing.T) {
	for _, status := range []InvoiceStatus{InvoiceStatusDraft, InvoiceStatusOpen, InvoiceStatusPaid, InvoiceStatusVoid} {
		assert.ErrorIs(t, CheckTransition(status, status, SourceStripe), ErrNoTransition)
	}
}

func TestCheckTransition_UnknownTarget(t *testing.T) {
	assert.True(t, IsTransitionError(CheckTransition(InvoiceStatusOpen, InvoiceStatus("refunded"), SourceAdmin)))
}

func TestInvoiceStatus(t *testing.T) {
	assert.True(t, InvoiceStatusPaid.IsTerminal())
	assert.True(t, InvoiceStatusVoid.IsTerminal())
	assert.False(t, InvoiceStatusUncollectible.IsTerminal())
	assert.False(t, InvoiceStatus("pending").Valid())
}

func TestListFilterNormalize(t *testing.T) {
	assert.Equal(t, ListFilter{Limit: 20}, ListFilter{}.Normalize())
	assert.Equal(t, ListFilter{Limit: 100}, ListFilter{Limit: 1000, Offset: -5}.Normalize())
	assert.Equal(t, ListFilter{Status: InvoiceStatusOpen, Limit: 5, Offset: 10},
		ListFilter{Status: InvoiceStatusOpen, Limit: 5, Offset: 10}.Normalize())
}
