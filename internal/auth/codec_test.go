package auth

import (
	"errors"
	"testing"
	"time"
)

func newTestCodec(t *testing.T, clock func() time.Time) *Codec {
	t.Helper()
	codec, err := NewCodec(CodecConfig{
		SigningSecret: []byte("super-secret"),
		Issuer:        "petdonor-auth",
		Audience:      "petdonor-api",
		TokenTTL:      30 * time.Minute,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	return codec
}

func TestCodecRoundTripsSubject(t *testing.T) {
	codec := newTestCodec(t, nil)

	for _, userID := range []int64{1, 42, 9000000001} {
		access, err := codec.IssueAccessToken(userID)
		if err != nil {
			t.Fatalf("unexpected issue error: %v", err)
		}
		subject, err := codec.Verify(access)
		if err != nil {
			t.Fatalf("expected verification to succeed: %v", err)
		}
		if subject != userID {
			t.Fatalf("unexpected subject: got %d, want %d", subject, userID)
		}
	}
}

func TestCodecIssuesDistinctAccessAndRefreshTokens(t *testing.T) {
	codec := newTestCodec(t, nil)

	access, err := codec.IssueAccessToken(7)
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}
	refresh, err := codec.IssueRefreshToken(7)
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}
	if access == refresh {
		t.Fatalf("expected distinct token ids for access and refresh tokens")
	}
	if _, err := codec.Verify(refresh); err != nil {
		t.Fatalf("expected refresh token to verify: %v", err)
	}
}

func TestCodecRejectsTamperedToken(t *testing.T) {
	codec := newTestCodec(t, nil)

	token, err := codec.IssueAccessToken(7)
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	tampered := []byte(token)
	last := len(tampered) - 1
	if tampered[last] == 'A' {
		tampered[last] = 'B'
	} else {
		tampered[last] = 'A'
	}

	_, err = codec.Verify(string(tampered))
	if !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for tampered token, got %v", err)
	}
}

func TestCodecRejectsForeignSignature(t *testing.T) {
	codec := newTestCodec(t, nil)
	foreign, err := NewCodec(CodecConfig{
		SigningSecret: []byte("other-secret"),
		Issuer:        "petdonor-auth",
		Audience:      "petdonor-api",
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	token, err := foreign.IssueAccessToken(7)
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	_, err = codec.Verify(token)
	if !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for foreign signature, got %v", err)
	}
}

func TestCodecReportsExpiry(t *testing.T) {
	issuedAt := time.Unix(1_700_000_000, 0)
	clock := issuedAt
	codec := newTestCodec(t, func() time.Time { return clock })

	token, err := codec.IssueAccessToken(7)
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	clock = issuedAt.Add(31 * time.Minute)
	_, err = codec.Verify(token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestCodecRejectsMalformedToken(t *testing.T) {
	codec := newTestCodec(t, nil)

	_, err := codec.Verify("")
	if !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for empty token, got %v", err)
	}

	_, err = codec.Verify("not.a.token")
	if !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for garbage token, got %v", err)
	}
}

func TestNewCodecRequiresSigningSecret(t *testing.T) {
	_, err := NewCodec(CodecConfig{})
	if err == nil {
		t.Fatalf("expected constructor error for missing secret")
	}
}
