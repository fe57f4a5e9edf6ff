package token

import (
	"errors"
	"testing"
	"time"
)

const (
	secret   = "test-secret"
	validFor = 10 * time.Second
	key      = "5:2025-10-10"
)

var t0 = time.Date(2025, time.October, 10, 9, 0, 0, 0, time.UTC)

func issueAt(t *testing.T, at time.Time) Issued {
	t.Helper()
	issued, err := NewIssuer(secret, validFor).WithClock(func() time.Time { return at }).Issue(key)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return issued
}

func TestIssueAndVerify(t *testing.T) {
	issued := issueAt(t, t0)
	if !issued.IssuedAt.Equal(t0) {
		t.Errorf("issued_at = %s, want %s", issued.IssuedAt, t0)
	}
	if !issued.ExpiresAt.Equal(t0.Add(validFor)) {
		t.Errorf("expires_at = %s, want %s", issued.ExpiresAt, t0.Add(validFor))
	}
	v := NewVerifier(secret, validFor)
	if err := v.Verify(issued.Token, key, t0.Add(2*time.Second)); err != nil {
		t.Fatalf("fresh token rejected: %v", err)
	}
}

func TestReissueBeforeExpiry(t *testing.T) {
	first := issueAt(t, t0)
	second := issueAt(t, t0.Add(3*time.Second))
	v := NewVerifier(secret, validFor)
	// Rotation: both tokens verify until their own windows lapse.
	if err := v.Verify(first.Token, key, t0.Add(5*time.Second)); err != nil {
		t.Errorf("first token: %v", err)
	}
	if err := v.Verify(second.Token, key, t0.Add(5*time.Second)); err != nil {
		t.Errorf("second token: %v", err)
	}
}

func TestVerifyTampered(t *testing.T) {
	issued := issueAt(t, t0)
	v := NewVerifier(secret, validFor)
	now := t0.Add(time.Second)
	// Flip one bit at a spread of positions across header, payload and
	// signature; every mutation must read as a forgery. The final character
	// is skipped: its low bits are base64 padding the decoder ignores.
	raw := []byte(issued.Token)
	for pos := 0; pos < len(raw)-1; pos += 7 {
		mutated := make([]byte, len(raw))
		copy(mutated, raw)
		mutated[pos] ^= 0x01
		err := v.Verify(string(mutated), key, now)
		if !errors.Is(err, ErrBadSignature) {
			t.Errorf("bit flip at %d: got %v, want ErrBadSignature", pos, err)
		}
	}
}

func TestVerifyForeignSecret(t *testing.T) {
	foreign, err := NewIssuer("other-secret", validFor).WithClock(func() time.Time { return t0 }).Issue(key)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	v := NewVerifier(secret, validFor)
	if err := v.Verify(foreign.Token, key, t0.Add(time.Second)); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("got %v, want ErrBadSignature", err)
	}
}

func TestVerifyGarbage(t *testing.T) {
	v := NewVerifier(secret, validFor)
	for _, tok := range []string{"", "not-a-token", "a.b.c"} {
		if err := v.Verify(tok, key, t0); !errors.Is(err, ErrBadSignature) {
			t.Errorf("Verify(%q): got %v, want ErrBadSignature", tok, err)
		}
	}
}

func TestVerifyExpiryBoundary(t *testing.T) {
	issued := issueAt(t, t0)
	v := NewVerifier(secret, validFor)
	if err := v.Verify(issued.Token, key, t0.Add(validFor-time.Second)); err != nil {
		t.Errorf("just inside the window: %v", err)
	}
	if err := v.Verify(issued.Token, key, t0.Add(validFor+time.Second)); !errors.Is(err, ErrExpired) {
		t.Errorf("just past the window: got %v, want ErrExpired", err)
	}
	if err := v.Verify(issued.Token, key, t0.Add(time.Hour)); !errors.Is(err, ErrExpired) {
		t.Errorf("long past the window: got %v, want ErrExpired", err)
	}
}

func TestVerifyMismatch(t *testing.T) {
	issued := issueAt(t, t0)
	v := NewVerifier(secret, validFor)
	// Signature and freshness both pass; only the occurrence differs.
	if err := v.Verify(issued.Token, "5:2025-10-11", t0.Add(time.Second)); !errors.Is(err, ErrMismatch) {
		t.Fatalf("got %v, want ErrMismatch", err)
	}
	if err := v.Verify(issued.Token, "6:2025-10-10", t0.Add(time.Second)); !errors.Is(err, ErrMismatch) {
		t.Fatalf("got %v, want ErrMismatch", err)
	}
}
