package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/iliyamo/furniture-storefront/internal/config"
	"github.com/iliyamo/furniture-storefront/internal/model"
)

// messageCreator is the part of the Twilio REST API used here.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// SMS sends codes as text messages through Twilio.
type SMS struct {
	api  messageCreator
	from string
}

// NewSMS returns nil when the Twilio credentials are incomplete.
func NewSMS(cfg config.SMSConfig) *SMS {
	if !cfg.Enabled() {
		return nil
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &SMS{api: client.Api, from: cfg.From}
}

// SendOTP texts a verification code to a phone number in E.164 form.
func (s *SMS) SendOTP(_ context.Context, to, code string, purpose model.OTPPurpose) error {
	if s == nil || s.api == nil {
		return ErrDisabled
	}
	what := "verification"
	switch purpose {
	case model.PurposeLogin:
		what = "sign-in"
	case model.PurposePasswordReset:
		what = "password reset"
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(s.from)
	params.SetTo(strings.TrimSpace(to))
	params.SetBody(fmt.Sprintf("Your %s code is %s. Do not share it with anyone.", what, code))

	if _, err := s.api.CreateMessage(params); err != nil {
		return fmt.Errorf("sms: create message: %w", err)
	}
	return nil
}
