package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"identity-core/backend/internal/platform/logging"
)

type recordingEmail struct {
	mu    sync.Mutex
	msgs  []Message
	fails int
	delay time.Duration
	ctxOK []bool
}

func (r *recordingEmail) SendEmail(ctx context.Context, msg Message) error {
	if r.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.delay):
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctxOK = append(r.ctxOK, ctx.Err() == nil)
	if r.fails > 0 {
		r.fails--
		return errors.New("smtp down")
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingEmail) sent() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.msgs...)
}

type funcSMS func(ctx context.Context, phone, text string) Result

func (f funcSMS) SendSMS(ctx context.Context, phone, text string) Result { return f(ctx, phone, text) }

func TestDispatcher_EmailDetachedFromRequest(t *testing.T) {
	rec := &recordingEmail{delay: 20 * time.Millisecond}
	d := NewDispatcher(rec, nil, time.Second, logging.Discard())

	d.SendEmailAsync(Message{To: "ann@example.com", Subject: "Verify OTP"})
	d.Drain(context.Background())

	got := rec.sent()
	if len(got) != 1 || got[0].To != "ann@example.com" {
		t.Fatalf("sent = %+v", got)
	}
}

func TestDispatcher_EmailFailureOnlyLogged(t *testing.T) {
	rec := &recordingEmail{fails: 1}
	d := NewDispatcher(rec, nil, time.Second, logging.Discard())
	d.SendEmailAsync(Message{To: "ann@example.com"})
	d.Drain(context.Background())
	if len(rec.sent()) != 0 {
		t.Error("failed send should not be recorded")
	}
}

func TestDispatcher_EmailBoundedByTimeout(t *testing.T) {
	rec := &recordingEmail{delay: time.Second}
	d := NewDispatcher(rec, nil, 20*time.Millisecond, logging.Discard())
	start := time.Now()
	d.SendEmailAsync(Message{To: "ann@example.com"})
	d.Drain(context.Background())
	if time.Since(start) > 500*time.Millisecond {
		t.Error("async send was not bounded by the dispatcher timeout")
	}
}

func TestDispatcher_SMS(t *testing.T) {
	d := NewDispatcher(nil, funcSMS(func(ctx context.Context, phone, text string) Result {
		if phone != "15550001" || text != "Your OTP is 123456" {
			return Result{Error: "unexpected args"}
		}
		return Result{Success: true}
	}), time.Second, logging.Discard())
	if r := d.SendSMS(context.Background(), "15550001", "Your OTP is 123456"); !r.Success {
		t.Fatalf("SendSMS = %+v", r)
	}
}

func TestDispatcher_SMSTimeout(t *testing.T) {
	d := NewDispatcher(nil, funcSMS(func(ctx context.Context, phone, text string) Result {
		time.Sleep(200 * time.Millisecond)
		return Result{Success: true}
	}), 20*time.Millisecond, logging.Discard())
	r := d.SendSMS(context.Background(), "15550001", "x")
	if r.Success || r.Error != "timed out" {
		t.Fatalf("SendSMS = %+v, want timeout", r)
	}
}

func TestDispatcher_NoProviders(t *testing.T) {
	d := NewDispatcher(nil, nil, 0, nil)
	d.SendEmailAsync(Message{To: "x"})
	if r := d.SendSMS(context.Background(), "1", "x"); r.Success {
		t.Error("SendSMS without provider should fail")
	}
}

func TestLogNotifier(t *testing.T) {
	n := LogNotifier{Logger: logging.Discard()}
	if err := n.SendEmail(context.Background(), Message{To: "a"}); err != nil {
		t.Errorf("SendEmail: %v", err)
	}
	if r := n.SendSMS(context.Background(), "1", "x"); r.Success || r.Error == "" {
		t.Errorf("SendSMS = %+v", r)
	}
}

func TestWithRetry(t *testing.T) {
	rec := &recordingEmail{fails: 2}
	n := WithRetry(rec, 3).(*retryingEmail)
	n.initial = time.Millisecond
	if err := n.SendEmail(context.Background(), Message{To: "ann@example.com"}); err != nil {
		t.Fatalf("SendEmail: %v", err)
	}
	if len(rec.sent()) != 1 || len(rec.ctxOK) != 3 {
		t.Errorf("attempts = %d, sent = %d", len(rec.ctxOK), len(rec.sent()))
	}

	rec = &recordingEmail{fails: 5}
	n = WithRetry(rec, 1).(*retryingEmail)
	n.initial = time.Millisecond
	if err := n.SendEmail(context.Background(), Message{To: "a"}); err == nil {
		t.Fatal("expected error after retries exhausted")
	}
	if len(rec.ctxOK) != 2 {
		t.Errorf("attempts = %d, want 2", len(rec.ctxOK))
	}

	if WithRetry(rec, 0) != EmailNotifier(rec) {
		t.Error("zero retries should return the notifier unchanged")
	}
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { f.closed = true; return nil }

func TestKafkaEmailNotifier(t *testing.T) {
	w := &fakeWriter{}
	n := &KafkaEmailNotifier{writer: w, topic: "t"}
	msg := Message{From: "noreply@example.com", To: "ann@example.com", Subject: "Verify OTP", Text: "Hello"}
	if err := n.SendEmail(context.Background(), msg); err != nil {
		t.Fatalf("SendEmail: %v", err)
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "ann@example.com" {
		t.Fatalf("written = %+v", w.msgs)
	}
	got, err := DecodeMessage(w.msgs[0].Value)
	if err != nil || got != msg {
		t.Errorf("DecodeMessage = %+v, %v", got, err)
	}
	_ = n.Close()
	if !w.closed {
		t.Error("Close should close the writer")
	}

	w.err = errors.New("broker down")
	if err := n.SendEmail(context.Background(), msg); err == nil {
		t.Error("writer error should propagate")
	}
}

func TestNewKafkaEmailNotifier_Validation(t *testing.T) {
	if _, err := NewKafkaEmailNotifier(nil, "t"); err == nil {
		t.Error("no brokers should fail")
	}
	n, err := NewKafkaEmailNotifier([]string{"localhost:9092"}, "t")
	if err != nil {
		t.Fatalf("NewKafkaEmailNotifier: %v", err)
	}
	_ = n.Close()
}

func TestDecodeMessage_Invalid(t *testing.T) {
	if _, err := DecodeMessage([]byte("{")); err == nil {
		t.Error("bad JSON should fail")
	}
	if _, err := DecodeMessage([]byte(`{"subject":"x"}`)); err == nil {
		t.Error("missing recipient should fail")
	}
}
