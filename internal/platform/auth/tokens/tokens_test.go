package tokens_test

import (
	"errors"
	"testing"
	"time"

	memclock "github.com/wingz-dispatch/ride-records-api/internal/adapters/memory/clock"
	"github.com/wingz-dispatch/ride-records-api/internal/platform/auth/tokens"
)

func newIssuer(clk *memclock.ManualClock) *tokens.Issuer {
	return tokens.NewIssuer(tokens.Config{
		Secret:     []byte("test-secret"),
		Issuer:     "test-iss",
		Audience:   "test-aud",
		AccessTTL:  5 * time.Minute,
		RefreshTTL: time.Hour,
		ClockSkew:  0,
	}, clk)
}

func TestIssuer_PairRoundTrip(t *testing.T) {
	t.Parallel()
	clk := memclock.NewManualClock(time.Unix(1700000000, 0))
	iss := newIssuer(clk)

	pair, err := iss.IssuePair("user-123")
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	sub, err := iss.Verify(pair.Access, tokens.TypeAccess)
	if err != nil || sub != "user-123" {
		t.Fatalf("Verify access: sub=%q err=%v", sub, err)
	}
	sub, err = iss.Verify(pair.Refresh, tokens.TypeRefresh)
	if err != nil || sub != "user-123" {
		t.Fatalf("Verify refresh: sub=%q err=%v", sub, err)
	}
}

func TestIssuer_RejectsWrongType(t *testing.T) {
	t.Parallel()
	iss := newIssuer(memclock.NewManualClock(time.Unix(1700000000, 0)))

	pair, err := iss.IssuePair("user-123")
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if _, err := iss.Verify(pair.Refresh, tokens.TypeAccess); !errors.Is(err, tokens.ErrInvalidToken) {
		t.Fatalf("refresh used as access: err=%v", err)
	}
	if _, err := iss.Verify(pair.Access, tokens.TypeRefresh); !errors.Is(err, tokens.ErrInvalidToken) {
		t.Fatalf("access used as refresh: err=%v", err)
	}
}

func TestIssuer_Expired(t *testing.T) {
	t.Parallel()
	clk := memclock.NewManualClock(time.Unix(1700000000, 0))
	iss := newIssuer(clk)

	access, err := iss.IssueAccess("user-123")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	clk.Advance(6 * time.Minute)
	if _, err := iss.Verify(access, tokens.TypeAccess); !errors.Is(err, tokens.ErrInvalidToken) {
		t.Fatalf("expected expiry failure, got %v", err)
	}
}

func TestIssuer_RejectsForeignSecretAndAudience(t *testing.T) {
	t.Parallel()
	clk := memclock.NewManualClock(time.Unix(1700000000, 0))
	iss := newIssuer(clk)

	other := tokens.NewIssuer(tokens.Config{Secret: []byte("other"), Issuer: "test-iss", Audience: "test-aud", AccessTTL: time.Minute}, clk)
	forged, _ := other.IssueAccess("user-123")
	if _, err := iss.Verify(forged, tokens.TypeAccess); !errors.Is(err, tokens.ErrInvalidToken) {
		t.Fatalf("foreign secret accepted: %v", err)
	}

	wrongAud := tokens.NewIssuer(tokens.Config{Secret: []byte("test-secret"), Issuer: "test-iss", Audience: "elsewhere", AccessTTL: time.Minute}, clk)
	tok, _ := wrongAud.IssueAccess("user-123")
	if _, err := iss.Verify(tok, tokens.TypeAccess); !errors.Is(err, tokens.ErrInvalidToken) {
		t.Fatalf("wrong audience accepted: %v", err)
	}

	if _, err := iss.Verify("not-a-jwt", tokens.TypeAccess); !errors.Is(err, tokens.ErrInvalidToken) {
		t.Fatalf("garbage accepted: %v", err)
	}
}
