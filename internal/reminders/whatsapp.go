package reminders

import (
	"context"

	"github.com/angelmondragon/rechargecodes-backend/pkg/whatsapp"
)

type textSender interface {
	Configured() bool
	SendText(ctx context.Context, to, body string) (string, error)
}

// WhatsAppTransport adapts the WhatsApp client to the reminder transport.
type WhatsAppTransport struct {
	client textSender
}

var _ textSender = (*whatsapp.Client)(nil)

// NewWhatsAppTransport wraps client. A nil client yields an unconfigured transport.
func NewWhatsAppTransport(client textSender) *WhatsAppTransport {
	return &WhatsAppTransport{client: client}
}

func (t *WhatsAppTransport) Configured() bool {
	return t != nil && t.client != nil && t.client.Configured()
}

func (t *WhatsAppTransport) SendReminder(ctx context.Context, phone, message string) (SendResult, error) {
	id, err := t.client.SendText(ctx, phone, message)
	if err != nil {
		return SendResult{}, err
	}
	return SendResult{MessageID: id}, nil
}
