package utils

import (
	"errors"
	"testing"
	"time"
)

func TestInvoiceTokenRoundTrip(t *testing.T) {
	tok, err := NewInvoiceToken("s3cret", "b-1", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if tok.Exp.Before(time.Now()) {
		t.Fatalf("expiry in the past: %s", tok.Exp)
	}
	if err := VerifyInvoiceToken("s3cret", tok.Token, "b-1"); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestInvoiceTokenRejections(t *testing.T) {
	good, _ := NewInvoiceToken("s3cret", "b-1", time.Hour)
	expired, _ := NewInvoiceToken("s3cret", "b-1", -time.Minute)

	tests := []struct {
		name, secret, token, booking string
	}{
		{"other booking", "s3cret", good.Token, "b-2"},
		{"wrong secret", "other", good.Token, "b-1"},
		{"expired", "s3cret", expired.Token, "b-1"},
		{"empty", "s3cret", "", "b-1"},
		{"garbage", "s3cret", "not.a.jwt", "b-1"},
	}
	for _, tc := range tests {
		err := VerifyInvoiceToken(tc.secret, tc.token, tc.booking)
		if !errors.Is(err, ErrInvalidInvoiceToken) {
			t.Fatalf("%s: expected ErrInvalidInvoiceToken, got %v", tc.name, err)
		}
	}
}
