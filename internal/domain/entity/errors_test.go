package entity

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsRetryableFollowsConstructor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"transport", NewTransportError(ProviderZerion, 0, errors.New("dial tcp: timeout")), true},
		{"rate limited", NewRateLimitedError(ProviderEtherscan, 200, "Max rate limit reached"), true},
		{"validation", NewValidationError(ProviderAlchemy, "bad address", nil), false},
		{"application", NewApplicationError(ProviderEtherscan, 200, "NOTOK"), false},
		{"wrapped transport", fmt.Errorf("fetch page: %w", NewTransportError(ProviderZerion, 502, errors.New("bad gateway"))), true},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Fatalf("%s: expected retryable=%v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestExhaustedIsTerminalApplicationError(t *testing.T) {
	t.Parallel()

	last := NewRateLimitedError(ProviderZerion, 429, "too many requests")
	err := Exhausted(last, 6)

	if IsRetryable(err) {
		t.Fatalf("exhausted error must not be retryable")
	}
	if KindOf(err) != KindApplication {
		t.Fatalf("expected application kind, got %s", KindOf(err))
	}
	if !errors.Is(err, last) {
		t.Fatalf("exhausted error should wrap the last cause")
	}
	var ue *UpstreamError
	if !errors.As(err, &ue) || ue.Provider != ProviderZerion || ue.StatusCode != 429 {
		t.Fatalf("unexpected exhausted error: %+v", ue)
	}
}

func TestKindOfSentinels(t *testing.T) {
	t.Parallel()

	if KindOf(fmt.Errorf("wallet %q: %w", "0x1", ErrInvalidAddress)) != KindValidation {
		t.Fatalf("invalid address should classify as validation")
	}
	if KindOf(errors.New("other")) != 0 {
		t.Fatalf("unclassified errors should have kind 0")
	}
}

func TestTransactionIdentityKey(t *testing.T) {
	t.Parallel()

	a := Transaction{Hash: "0xABC", ChainID: 1}
	b := Transaction{Hash: "0xabc", ChainID: 1}
	c := Transaction{Hash: "0xabc", ChainID: 10}
	if a.IdentityKey() != b.IdentityKey() {
		t.Fatalf("hash case must not affect identity")
	}
	if a.IdentityKey() == c.IdentityKey() {
		t.Fatalf("chain must be part of identity")
	}
	if _, ok := TransactionKey(Transaction{ChainID: 1}); ok {
		t.Fatalf("transaction without hash must not be keyable")
	}
}

func TestParsePositionKind(t *testing.T) {
	t.Parallel()

	if ParsePositionKind("staked") != PositionStaked {
		t.Fatalf("staked not recognised")
	}
	if ParsePositionKind("locked") != PositionUnknown {
		t.Fatalf("unrecognised kinds should map to unknown")
	}
}
