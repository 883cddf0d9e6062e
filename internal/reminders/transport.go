package reminders

import (
	"context"
	"errors"
)

var (
	// ErrSendFailure marks a reminder the transport could not deliver. The milestone stays unsent.
	ErrSendFailure = errors.New("reminder send failed")
	// ErrMissingPhone is a send failure caused by a purchase without a contact number.
	ErrMissingPhone = errors.New("customer phone missing")
)

// SendResult is what the messaging provider returned for one delivered message.
type SendResult struct {
	MessageID string
}

// Transport delivers reminder text to a phone number.
type Transport interface {
	Configured() bool
	SendReminder(ctx context.Context, phone, message string) (SendResult, error)
}
