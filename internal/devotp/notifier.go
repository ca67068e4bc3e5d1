package devotp

import (
	"context"

	"identity-core/backend/internal/notify"
)

// Notifier captures every message into a Store, then hands it to the wrapped notifiers when set.
type Notifier struct {
	store Store
	email notify.EmailNotifier
	sms   notify.SMSNotifier
}

// NewNotifier returns a capturing notifier. email and sms may be nil, in which case capture alone
// counts as a successful send.
func NewNotifier(store Store, email notify.EmailNotifier, sms notify.SMSNotifier) *Notifier {
	return &Notifier{store: store, email: email, sms: sms}
}

func (n *Notifier) SendEmail(ctx context.Context, msg notify.Message) error {
	n.store.Put(ctx, Entry{To: msg.To, Channel: "email", Subject: msg.Subject, Text: msg.Text})
	if n.email == nil {
		return nil
	}
	return n.email.SendEmail(ctx, msg)
}

func (n *Notifier) SendSMS(ctx context.Context, phone, text string) notify.Result {
	n.store.Put(ctx, Entry{To: phone, Channel: "phone", Text: text})
	if n.sms == nil {
		return notify.Result{Success: true}
	}
	return n.sms.SendSMS(ctx, phone, text)
}
