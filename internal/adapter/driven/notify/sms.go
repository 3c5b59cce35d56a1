package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/ericfisherdev/tokenkeeper/internal/domain/port/driven"
)

// maxSMSBody is Twilio's limit for a single message body.
const maxSMSBody = 1600

// messageCreator is the subset of the Twilio API used by SMS.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// Compile-time interface satisfaction check.
var _ driven.Notifier = (*SMS)(nil)

// SMS sends alert messages as text messages through Twilio.
type SMS struct {
	api  messageCreator
	from string
	to   []string
}

// NewSMS creates an SMS notifier for the given account. Every number in to
// receives each message.
func NewSMS(accountSID, authToken, from string, to []string) (*SMS, error) {
	if accountSID == "" || authToken == "" {
		return nil, errors.New("sms: account sid and auth token are required")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return newSMS(client.Api, from, to)
}

func newSMS(api messageCreator, from string, to []string) (*SMS, error) {
	if from == "" || len(to) == 0 {
		return nil, errors.New("sms: from and at least one recipient are required")
	}
	return &SMS{api: api, from: from, to: to}, nil
}

// Send texts message to every recipient. Like Multi, the message counts as
// delivered when at least one recipient was accepted by Twilio, so a retry
// does not re-text the recipients that already have it. Rejected recipients
// are logged.
func (s *SMS) Send(ctx context.Context, message string) error {
	body := smsBody(message)

	var (
		errs      []error
		delivered int
	)
	for _, to := range s.to {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		params := &twilioApi.CreateMessageParams{}
		params.SetTo(to)
		params.SetFrom(s.from)
		params.SetBody(body)

		resp, err := s.api.CreateMessage(params)
		if err != nil {
			errs = append(errs, fmt.Errorf("send to %s: %w", to, err))
			continue
		}
		delivered++

		sid := ""
		if resp != nil && resp.Sid != nil {
			sid = *resp.Sid
		}
		slog.Debug("sms accepted", "to", to, "sid", sid)
	}

	if delivered == 0 {
		return fmt.Errorf("%w: sms: %w", driven.ErrNotifierFailure, errors.Join(errs...))
	}
	if len(errs) > 0 {
		slog.Warn("sms not accepted for some recipients",
			"delivered", delivered,
			"failed", len(errs),
			"error", errors.Join(errs...),
		)
	}
	return nil
}

// smsBody strips markdown emphasis and truncates to a single message.
func smsBody(message string) string {
	body := strings.ReplaceAll(message, "**", "")
	if r := []rune(body); len(r) > maxSMSBody {
		body = string(r[:maxSMSBody-1]) + "…"
	}
	return body
}
