package blockchain

import "testing"

func TestIsValidPubkey(t *testing.T) {
	if !IsValidPubkey(WrappedSolMint) {
		t.Error("wrapped SOL mint should be a valid pubkey")
	}
	if IsValidPubkey("not-base58-0OIl") {
		t.Error("invalid base58 should be rejected")
	}
	if IsValidPubkey("abc") {
		t.Error("short decode should be rejected")
	}
}

func TestIsCandidateWallet(t *testing.T) {
	if IsCandidateWallet("short") {
		t.Error("short address should be rejected")
	}
	if IsCandidateWallet("ComputeBudget111111111111111111111111111111") {
		t.Error("placeholder-run address should be rejected")
	}
	// a real program id is a valid candidate shape
	if !IsCandidateWallet("JUP4Fb2cqiRUcaTHdrPC8h2gK4G8cCxfXk8XQf2Zx1i") {
		t.Error("valid pubkey should be accepted")
	}
}

func TestClassifyFailure(t *testing.T) {
	cases := []struct {
		msg  string
		want FailureKind
	}{
		{"http status 429: too many requests", FailureRateLimited},
		{"context deadline exceeded", FailureTimeout},
		{"dial tcp: connection refused", FailureNetwork},
		{"all 2 endpoints have open circuit breakers", FailureBreakerOpen},
		{"something else entirely", FailureOther},
	}
	for _, c := range cases {
		if got := ClassifyFailure(errString(c.msg)); got != c.want {
			t.Errorf("%q: expected %s, got %s", c.msg, c.want, got)
		}
	}
}

type errString string

func (e errString) Error() string { return string(e) }
