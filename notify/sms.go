package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Texter sends reminder texts through Twilio.
type Texter struct {
	client *twilio.RestClient
	from   string
}

// NewTexter builds the SMS channel. Returns nil when any credential is
// missing; callers treat a nil Texter as an absent channel.
func NewTexter(accountSID, authToken, from string) *Texter {
	if accountSID == "" || authToken == "" || from == "" {
		return nil
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &Texter{client: client, from: from}
}

// Send delivers one SMS and returns the provider's message SID. The Twilio
// client carries its own HTTP timeout; ctx is accepted for interface
// symmetry with the email channel.
func (t *Texter) Send(_ context.Context, to, body string) (string, error) {
	if t == nil {
		return "", &ChannelUnavailableError{Channel: "sms"}
	}
	params := &twilioapi.CreateMessageParams{}
	params.SetTo(NormalizePhone(to))
	params.SetFrom(t.from)
	params.SetBody(body)

	resp, err := t.client.Api.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("send sms to %s: %w", to, err)
	}
	if resp.Sid == nil {
		return "", nil
	}
	return *resp.Sid, nil
}

// NormalizePhone converts a free-form phone number to international dialing
// form: all non-digits are stripped, the country code 1 is prepended unless
// the digits already start with it, and the result gets a + prefix.
func NormalizePhone(raw string) string {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	s := digits.String()
	if !strings.HasPrefix(s, "1") {
		s = "1" + s
	}
	return "+" + s
}
