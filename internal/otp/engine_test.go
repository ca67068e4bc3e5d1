package otp

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"identity-core/backend/internal/otp/domain"
	"identity-core/backend/internal/otp/repository"
)

var (
	emailTarget = domain.Target{Channel: domain.ChannelEmail, To: "ann@example.com"}
	phoneTarget = domain.Target{Channel: domain.ChannelPhone, To: "15550001"}
)

type fixedCodes struct {
	codes []int
	i     int
}

func (f *fixedCodes) next() (int, error) {
	c := f.codes[f.i%len(f.codes)]
	f.i++
	return c, nil
}

func newTestEngine(policy ExpiryPolicy, codes ...int) (*Engine, *repository.MemoryRepository, *time.Time) {
	repo := repository.NewMemoryRepository()
	e := NewEngine(repo, policy)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }
	if len(codes) > 0 {
		e.gen = (&fixedCodes{codes: codes}).next
	}
	return e, repo, &now
}

func TestEngine_IssueAndVerify(t *testing.T) {
	ctx := context.Background()
	e, repo, _ := newTestEngine(ExpiryPolicy{}, 123456)

	code, err := e.Issue(ctx, "a1", emailTarget)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if code != 123456 {
		t.Fatalf("code = %d", code)
	}
	stored, _ := repo.Latest(ctx, "a1")
	if stored.CodeHash == strconv.Itoa(code) || stored.CodeHash != HashCode(code) {
		t.Fatal("stored record must hold the hash, not the plaintext")
	}
	if stored.ExpiresAt != nil {
		t.Error("zero TTL must produce a code without expiry")
	}

	res, err := e.Verify(ctx, "a1", " 123456 ")
	if err != nil || !res.Matched || res.Expired {
		t.Fatalf("Verify = %+v, %v", res, err)
	}
	res, _ = e.Verify(ctx, "a1", "111111")
	if res.Matched {
		t.Error("wrong code matched")
	}
	res, _ = e.Verify(ctx, "a1", "abcdef")
	if res.Matched {
		t.Error("non-numeric value matched")
	}
}

func TestEngine_VerifyWithoutCode(t *testing.T) {
	e, _, _ := newTestEngine(ExpiryPolicy{})
	if _, err := e.Verify(context.Background(), "a1", "123456"); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("err = %v, want ErrCodeNotFound", err)
	}
}

func TestEngine_NewestCodeWins(t *testing.T) {
	ctx := context.Background()
	e, repo, _ := newTestEngine(ExpiryPolicy{}, 111111, 222222)
	_, _ = e.Issue(ctx, "a1", emailTarget)
	_, _ = e.Issue(ctx, "a1", emailTarget)
	if repo.Count("a1") != 2 {
		t.Fatalf("Issue must not clear prior codes")
	}
	if res, _ := e.Verify(ctx, "a1", "111111"); res.Matched {
		t.Error("superseded code matched")
	}
	if res, _ := e.Verify(ctx, "a1", "222222"); !res.Matched {
		t.Error("newest code did not match")
	}
}

func TestEngine_Reissue(t *testing.T) {
	ctx := context.Background()
	e, repo, _ := newTestEngine(ExpiryPolicy{}, 111111, 222222)
	_, _ = e.Issue(ctx, "a1", emailTarget)
	code, err := e.Reissue(ctx, "a1", emailTarget)
	if err != nil || code != 222222 {
		t.Fatalf("Reissue = %d, %v", code, err)
	}
	if repo.Count("a1") != 1 {
		t.Errorf("Count = %d, want 1 after fresh issuance", repo.Count("a1"))
	}
}

func TestEngine_ExpiredMatchIsDeleted(t *testing.T) {
	ctx := context.Background()
	e, repo, now := newTestEngine(ExpiryPolicy{Phone: 10 * time.Minute}, 123456)
	_, _ = e.Issue(ctx, "a1", phoneTarget)
	stored, _ := repo.Latest(ctx, "a1")
	if stored.ExpiresAt == nil || !stored.ExpiresAt.Equal(now.Add(10*time.Minute)) {
		t.Fatalf("ExpiresAt = %v", stored.ExpiresAt)
	}

	*now = now.Add(11 * time.Minute)
	if res, _ := e.Verify(ctx, "a1", "000000"); res.Matched || res.Expired {
		t.Error("mismatch on expired code must report plain mismatch")
	}
	if repo.Count("a1") != 1 {
		t.Fatal("mismatch must not delete the code")
	}
	res, err := e.Verify(ctx, "a1", "123456")
	if err != nil || !res.Matched || !res.Expired {
		t.Fatalf("Verify = %+v, %v; want matched+expired", res, err)
	}
	if repo.Count("a1") != 0 {
		t.Error("expired match must delete the code")
	}
}

func TestEngine_EmailPolicyIndependentOfPhone(t *testing.T) {
	ctx := context.Background()
	e, repo, _ := newTestEngine(ExpiryPolicy{Email: 0, Phone: time.Minute}, 123456)
	_, _ = e.Issue(ctx, "a1", emailTarget)
	stored, _ := repo.Latest(ctx, "a1")
	if stored.ExpiresAt != nil {
		t.Error("email code should not expire under a zero email TTL")
	}
}

func TestEngine_VerifiedCodeNeverMatchesAgain(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(ExpiryPolicy{}, 123456)
	_, _ = e.Issue(ctx, "a1", emailTarget)
	if err := e.MarkVerified(ctx, "a1"); err != nil {
		t.Fatalf("MarkVerified: %v", err)
	}
	if res, _ := e.Verify(ctx, "a1", "123456"); res.Matched {
		t.Error("verified code matched a second time")
	}
	active, _ := e.Active(ctx, "a1")
	if active == nil || !active.Verified {
		t.Fatalf("Active = %+v, want verified record kept", active)
	}
}

func TestEngine_ConsumeIdempotent(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(ExpiryPolicy{})
	_, _ = e.Issue(ctx, "a1", emailTarget)
	if err := e.Consume(ctx, "a1"); err != nil {
		t.Fatal(err)
	}
	if err := e.Consume(ctx, "a1"); err != nil {
		t.Fatal(err)
	}
	if err := e.MarkVerified(ctx, "a1"); err != nil {
		t.Errorf("MarkVerified without code = %v", err)
	}
	if _, err := e.Verify(ctx, "a1", "123456"); !errors.Is(err, ErrCodeNotFound) {
		t.Errorf("Verify after consume err = %v", err)
	}
}

func TestEngine_IssueRecordsTarget(t *testing.T) {
	ctx := context.Background()
	e, repo, _ := newTestEngine(ExpiryPolicy{})

	_, _ = e.Issue(ctx, "a1", emailTarget)
	stored, _ := repo.Latest(ctx, "a1")
	if stored.Destination != "ann@example.com" || stored.Purpose != domain.PurposeVerify {
		t.Errorf("stored = %+v, want destination and default verify purpose", stored)
	}

	reset := domain.Target{Channel: domain.ChannelEmail, To: "ann@example.com", Purpose: domain.PurposeReset}
	_, _ = e.Reissue(ctx, "a1", reset)
	stored, _ = repo.Latest(ctx, "a1")
	if stored.Purpose != domain.PurposeReset || stored.Channel != domain.ChannelEmail {
		t.Errorf("stored = %+v, want reset purpose", stored)
	}
}
