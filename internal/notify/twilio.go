package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/sixeradda/ground-booking/internal/model"
)

// Twilio sends SMS through the Twilio Messages API.  Customer messages go
// through the messaging service; messages to AdminPhone use the direct
// From number when one is configured.
type Twilio struct {
	AccountSID          string
	MessagingServiceSID string
	FromNumber          string
	AdminPhone          string

	api *twilio.RestClient
}

func NewTwilio(accountSID, authToken, serviceSID, from, adminPhone string) *Twilio {
	return NewTwilioWithHTTPClient(accountSID, authToken, serviceSID, from, adminPhone,
		&http.Client{Timeout: 10 * time.Second})
}

// NewTwilioWithHTTPClient is NewTwilio with the transport supplied by the
// caller.
func NewTwilioWithHTTPClient(accountSID, authToken, serviceSID, from, adminPhone string, hc *http.Client) *Twilio {
	c := &twilioclient.Client{
		Credentials: twilioclient.NewCredentials(accountSID, authToken),
		HTTPClient:  hc,
	}
	c.SetAccountSid(accountSID)
	return &Twilio{
		AccountSID:          accountSID,
		MessagingServiceSID: serviceSID,
		FromNumber:          from,
		AdminPhone:          adminPhone,
		api:                 twilio.NewRestClientWithParams(twilio.ClientParams{Client: c}),
	}
}

func (t *Twilio) Send(ctx context.Context, recipient string, tmpl Template, b model.Booking) error {
	if t.api == nil || t.AccountSID == "" {
		return errors.New("twilio credentials not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := Render(tmpl, b)
	if err != nil {
		return err
	}
	to := NormalizePhone(recipient)

	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	if (to == NormalizePhone(t.AdminPhone) && t.FromNumber != "") || t.MessagingServiceSID == "" {
		params.SetFrom(t.FromNumber)
	} else {
		params.SetMessagingServiceSid(t.MessagingServiceSID)
	}
	params.SetBody(body)

	if _, err := t.api.Api.CreateMessage(params); err != nil {
		var te *twilioclient.TwilioRestError
		if errors.As(err, &te) {
			return fmt.Errorf("twilio: %d %s (code %d)", te.Status, te.Message, te.Code)
		}
		return fmt.Errorf("twilio: %w", err)
	}
	return nil
}
