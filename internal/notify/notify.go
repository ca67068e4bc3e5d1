// Package notify delivers verification codes and password-reset mail to account holders.
// Delivery providers sit behind EmailNotifier and SMSNotifier.
package notify

import (
	"context"
	"log/slog"
)

// Message is an outbound email.
type Message struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

// EmailNotifier sends an email. Implementations may block; callers bound ctx.
type EmailNotifier interface {
	SendEmail(ctx context.Context, msg Message) error
}

// Result is the outcome of an SMS send. Error carries the provider's reason when Success is false.
type Result struct {
	Success bool
	Error   string
}

// SMSNotifier sends a text message to phone.
type SMSNotifier interface {
	SendSMS(ctx context.Context, phone, text string) Result
}

// LogNotifier records that a message would have been sent. The body is never logged since it
// carries the code.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) SendEmail(ctx context.Context, msg Message) error {
	n.logger().InfoContext(ctx, "email not delivered: no email provider configured", "to", msg.To, "subject", msg.Subject)
	return nil
}

func (n LogNotifier) SendSMS(ctx context.Context, phone, text string) Result {
	n.logger().WarnContext(ctx, "sms not delivered: no sms provider configured", "phone", phone)
	return Result{Success: false, Error: "sms provider not configured"}
}

func (n LogNotifier) logger() *slog.Logger {
	if n.Logger == nil {
		return slog.Default()
	}
	return n.Logger
}
