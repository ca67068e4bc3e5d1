package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultTimeout bounds a single delivery attempt.
const DefaultTimeout = 5 * time.Second

// Dispatcher sends email in the background and SMS synchronously, both bounded by a timeout.
type Dispatcher struct {
	email   EmailNotifier
	sms     SMSNotifier
	timeout time.Duration
	log     *slog.Logger
	wg      sync.WaitGroup
}

// NewDispatcher returns a dispatcher. timeout <= 0 uses DefaultTimeout.
func NewDispatcher(email EmailNotifier, sms SMSNotifier, timeout time.Duration, log *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{email: email, sms: sms, timeout: timeout, log: log}
}

// SendEmailAsync sends msg in a goroutine so the caller is not blocked. The send uses a fresh
// context and is not aborted by request cancellation; failures are logged only.
func (d *Dispatcher) SendEmailAsync(msg Message) {
	if d.email == nil {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.email.SendEmail(ctx, msg); err != nil {
			d.log.Error("notify: email send failed", "to", msg.To, "subject", msg.Subject, "error", err)
		}
	}()
}

// SendSMS sends text to phone and waits for the outcome, up to the dispatcher timeout.
func (d *Dispatcher) SendSMS(ctx context.Context, phone, text string) Result {
	if d.sms == nil {
		return Result{Error: "sms provider not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan Result, 1)
	go func() { done <- d.sms.SendSMS(ctx, phone, text) }()
	select {
	case r := <-done:
		return r
	case <-ctx.Done():
		return Result{Error: "timed out"}
	}
}

// Drain waits for in-flight async sends, or until ctx is done.
func (d *Dispatcher) Drain(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
