package notify

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

type retryingEmail struct {
	next     EmailNotifier
	maxTries uint
	initial  time.Duration
}

// WithRetry wraps next so a failed send is retried with exponential backoff, up to retries extra
// attempts within the caller's context. retries <= 0 returns next unchanged.
func WithRetry(next EmailNotifier, retries int) EmailNotifier {
	if retries <= 0 {
		return next
	}
	return &retryingEmail{next: next, maxTries: uint(retries) + 1, initial: 200 * time.Millisecond}
}

func (r *retryingEmail) SendEmail(ctx context.Context, msg Message) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initial
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, r.next.SendEmail(ctx, msg)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(r.maxTries))
	return err
}
