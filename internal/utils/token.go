// Package utils signs and verifies invoice download links.
package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// invoiceAudience scopes tokens to the invoice download endpoint so that a
// token minted for another purpose with the same secret is not accepted.
const invoiceAudience = "invoice"

// ErrInvalidInvoiceToken is returned for a token that is malformed,
// expired, signed with another key or bound to a different booking.
var ErrInvalidInvoiceToken = errors.New("invalid invoice token")

// InvoiceToken is a signed download token along with its expiry.
type InvoiceToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// NewInvoiceToken signs an HS256 JWT whose subject is the booking ID.  The
// token is handed to the customer as part of the invoice URL and is the
// only thing protecting the invoice, which carries their name and mobile
// number.
func NewInvoiceToken(secret, bookingID string, ttl time.Duration) (InvoiceToken, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwt.RegisteredClaims{
		Subject:   bookingID,
		Audience:  jwt.ClaimStrings{invoiceAudience},
		ExpiresAt: jwt.NewNumericDate(exp),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return InvoiceToken{}, err
	}
	return InvoiceToken{Token: signed, Exp: exp}, nil
}

// VerifyInvoiceToken checks the signature, expiry, audience and that the
// token was issued for bookingID.
func VerifyInvoiceToken(secret, token, bookingID string) error {
	if token == "" {
		return ErrInvalidInvoiceToken
	}
	_, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (interface{}, error) { return []byte(secret), nil },
		// Only accept HS256 so an attacker cannot downgrade to "none".
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(invoiceAudience),
		jwt.WithSubject(bookingID),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return errors.Join(ErrInvalidInvoiceToken, err)
	}
	return nil
}
