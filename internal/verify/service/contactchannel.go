package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/verify/internal/verify/codes"
	"github.com/aussiebroadwan/verify/internal/verify/domain"
	"github.com/aussiebroadwan/verify/internal/verify/store"
)

var ErrChannelNotFound = errors.New("contact_channel_not_found")

type channelData struct {
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
}

type channelRequest struct{}

// ContactChannelService verifies that a user controls an address attached to
// their account, for channels added after sign-up rather than proven during
// it.
type ContactChannelService struct {
	Store       store.Store
	Mailer      Mailer
	ServiceName string
	CodeTTL     time.Duration

	flow *codes.Flow[channelData, emailMethod, channelRequest, string]
}

func NewContactChannelService(st store.Store, mailer Mailer, serviceName string, codeTTL time.Duration) *ContactChannelService {
	if codeTTL <= 0 {
		codeTTL = DefaultSignInCodeTTL
	}

	s := &ContactChannelService{
		Store:       st,
		Mailer:      mailer,
		ServiceName: serviceName,
		CodeTTL:     codeTTL,
	}

	s.flow = &codes.Flow[channelData, emailMethod, channelRequest, string]{
		Type:    domain.FlowContactVerification,
		Store:   st.VerificationCodes(),
		Send:    s.sendEmail,
		Handler: s.markVerified,
	}

	return s
}

// SendVerificationCode mails a verification code to one of the user's own
// channels.
func (s *ContactChannelService) SendVerificationCode(ctx context.Context, tenancy domain.Tenancy, userID, channelID string, callbackURL *string) (*SignInTicket, error) {
	ch, err := s.findChannel(ctx, tenancy, userID, channelID)
	if err != nil {
		return nil, err
	}

	if callbackURL != nil {
		if err := ValidateCallbackURL(tenancy, *callbackURL); err != nil {
			return nil, err
		}
	}

	created, err := s.flow.SendCode(ctx, codes.CreateCodeOptions[channelData, emailMethod]{
		Tenancy:     tenancy,
		Data:        channelData{UserID: userID, ChannelID: ch.ID},
		Method:      emailMethod{Email: ch.Value},
		ExpiresIn:   s.CodeTTL,
		CallbackURL: callbackURL,
	})
	if err != nil {
		return nil, err
	}

	return &SignInTicket{Nonce: created.Nonce, ExpiresAt: created.ExpiresAt}, nil
}

// VerifyChannel redeems a verification code and returns the now-verified
// channel id.
func (s *ContactChannelService) VerifyChannel(ctx context.Context, tenancy domain.Tenancy, code string) (string, error) {
	return s.flow.UseCode(ctx, tenancy, code, channelRequest{})
}

// CheckVerificationCode vets a code without consuming it.
func (s *ContactChannelService) CheckVerificationCode(ctx context.Context, tenancy domain.Tenancy, code string) error {
	_, err := s.flow.CheckCode(ctx, tenancy, code, channelRequest{})
	return err
}

func (s *ContactChannelService) findChannel(ctx context.Context, tenancy domain.Tenancy, userID, channelID string) (domain.ContactChannel, error) {
	channels, err := s.Store.ContactChannels().ListUserContactChannels(ctx, tenancy.ID, userID)
	if err != nil {
		return domain.ContactChannel{}, err
	}
	for _, ch := range channels {
		if ch.ID == channelID {
			return ch, nil
		}
	}
	return domain.ContactChannel{}, ErrChannelNotFound
}

func (s *ContactChannelService) sendEmail(ctx context.Context, created *codes.CreatedCode[channelData, emailMethod]) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Your verification code is: %s\n", created.OTP)
	if created.Link != nil {
		fmt.Fprintf(&b, "\nOr click the link below to verify this address:\n\n%s\n", created.Link)
	}
	fmt.Fprintf(&b, "\nThis code expires at %s.\n", created.ExpiresAt.Format(time.RFC1123))

	return s.Mailer.Send(ctx, Email{
		To:      created.Method.Email,
		Subject: fmt.Sprintf("Verify your email for %s", s.ServiceName),
		Body:    b.String(),
	})
}

func (s *ContactChannelService) markVerified(ctx context.Context, tenancy domain.Tenancy, _ emailMethod, data channelData, _ channelRequest) (string, error) {
	// Re-check the channel still exists; the account may have changed since
	// the code was mailed.
	if _, err := s.findChannel(ctx, tenancy, data.UserID, data.ChannelID); err != nil {
		return "", err
	}
	if err := s.Store.ContactChannels().MarkContactChannelVerified(ctx, tenancy.ID, data.ChannelID); err != nil {
		return "", err
	}
	return data.ChannelID, nil
}
