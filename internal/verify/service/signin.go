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
	"github.com/aussiebroadwan/verify/pkg/idx"
)

const DefaultSignInCodeTTL = 30 * time.Minute

// Email template variants. Legacy emails carry only the magic link; standard
// emails also show the short OTP for split-channel sign-in.
const (
	VariantStandard = "standard"
	VariantLegacy   = "legacy"
)

type signInData struct {
	Email string `json:"email"`
}

type emailMethod struct {
	Email   string `json:"email"`
	Variant string `json:"type,omitempty"`
}

func (m emailMethod) Validate() error {
	if m.Email == "" {
		return errors.New("email required")
	}
	if m.Variant != "" && m.Variant != VariantStandard && m.Variant != VariantLegacy {
		return fmt.Errorf("unknown email variant %q", m.Variant)
	}
	return nil
}

type signInRequest struct{}

// SignInTicket is handed back to the client that requested a sign-in code.
// The nonce is the client's half of the split code; combined with the OTP the
// user reads out of the email it reconstructs the full code.
type SignInTicket struct {
	Nonce     string    `json:"nonce"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SignInService runs the one-time-password sign-in flow: a code is mailed to
// an address, and redeeming it signs the owner of that address in, creating
// the account first when the tenancy allows sign-ups.
type SignInService struct {
	Store       store.Store
	Tokens      *TokenService
	MFA         *MFAService
	Mailer      Mailer
	ServiceName string // shown in email subjects
	CodeTTL     time.Duration

	flow *codes.Flow[signInData, emailMethod, signInRequest, *domain.SignInResponse]
}

func NewSignInService(st store.Store, tokens *TokenService, mfa *MFAService, mailer Mailer, serviceName string, codeTTL time.Duration) *SignInService {
	if codeTTL <= 0 {
		codeTTL = DefaultSignInCodeTTL
	}

	s := &SignInService{
		Store:       st,
		Tokens:      tokens,
		MFA:         mfa,
		Mailer:      mailer,
		ServiceName: serviceName,
		CodeTTL:     codeTTL,
	}

	s.flow = &codes.Flow[signInData, emailMethod, signInRequest, *domain.SignInResponse]{
		Type:    domain.FlowOneTimePassword,
		Store:   st.VerificationCodes(),
		Send:    s.sendEmail,
		Handler: s.handleSignIn,
	}

	return s
}

// SendSignInCode mails a sign-in code to the address and returns the nonce
// half to the requesting client. Unknown addresses are rejected up front when
// the tenancy has sign-ups disabled.
func (s *SignInService) SendSignInCode(ctx context.Context, tenancy domain.Tenancy, email, variant string, callbackURL *string) (*SignInTicket, error) {
	if !tenancy.Config.OTPSignInEnabled {
		return nil, ErrSignInDisabled
	}

	email = normalizeEmail(email)
	if email == "" {
		return nil, errors.New("email required")
	}

	_, err := s.Store.ContactChannels().GetAuthContactChannel(ctx, tenancy.ID, domain.ContactChannelEmail, email)
	if errors.Is(err, store.ErrNotFound) {
		if !tenancy.Config.SignUpEnabled {
			return nil, ErrUserNotFound
		}
	} else if err != nil {
		return nil, err
	}

	if callbackURL != nil {
		if err := ValidateCallbackURL(tenancy, *callbackURL); err != nil {
			return nil, err
		}
	}

	created, err := s.flow.SendCode(ctx, codes.CreateCodeOptions[signInData, emailMethod]{
		Tenancy:     tenancy,
		Data:        signInData{Email: email},
		Method:      emailMethod{Email: email, Variant: variant},
		ExpiresIn:   s.CodeTTL,
		CallbackURL: callbackURL,
	})
	if err != nil {
		return nil, err
	}

	return &SignInTicket{Nonce: created.Nonce, ExpiresAt: created.ExpiresAt}, nil
}

// SignInWithOTP redeems the split code: the nonce the client held onto plus
// the OTP the user typed from the email.
func (s *SignInService) SignInWithOTP(ctx context.Context, tenancy domain.Tenancy, nonce, otp string) (*domain.SignInResponse, error) {
	return s.flow.UseCode(ctx, tenancy, otp+nonce, signInRequest{})
}

// SignInWithCode redeems a full code, as carried by a magic link.
func (s *SignInService) SignInWithCode(ctx context.Context, tenancy domain.Tenancy, code string) (*domain.SignInResponse, error) {
	return s.flow.UseCode(ctx, tenancy, code, signInRequest{})
}

// CheckSignInCode reports whether a code is currently redeemable without
// consuming it, so a landing page can vet a magic link before committing.
func (s *SignInService) CheckSignInCode(ctx context.Context, tenancy domain.Tenancy, code string) error {
	_, err := s.flow.CheckCode(ctx, tenancy, code, signInRequest{})
	return err
}

func (s *SignInService) sendEmail(ctx context.Context, created *codes.CreatedCode[signInData, emailMethod]) error {
	subject := fmt.Sprintf("Sign in to %s", s.ServiceName)

	var b strings.Builder
	switch created.Method.Variant {
	case VariantLegacy:
		if created.Link == nil {
			return errors.New("legacy sign-in email requires a callback URL")
		}
		fmt.Fprintf(&b, "Click the link below to sign in to %s:\n\n%s\n", s.ServiceName, created.Link)
	default:
		fmt.Fprintf(&b, "Your sign-in code is: %s\n", created.OTP)
		if created.Link != nil {
			fmt.Fprintf(&b, "\nOr click the link below to sign in directly:\n\n%s\n", created.Link)
		}
	}
	fmt.Fprintf(&b, "\nThis code expires at %s. If you did not request it, ignore this email.\n",
		created.ExpiresAt.Format(time.RFC1123))

	return s.Mailer.Send(ctx, Email{
		To:      created.Method.Email,
		Subject: subject,
		Body:    b.String(),
	})
}

// handleSignIn runs once per code, after the atomic consume. Redeeming the
// code proves control of the email address, so the channel is marked verified
// even when a second factor still stands between the user and their tokens.
func (s *SignInService) handleSignIn(ctx context.Context, tenancy domain.Tenancy, _ emailMethod, data signInData, _ signInRequest) (*domain.SignInResponse, error) {
	var (
		userID    string
		isNewUser bool
	)

	ch, err := s.Store.ContactChannels().GetAuthContactChannel(ctx, tenancy.ID, domain.ContactChannelEmail, data.Email)
	switch {
	case err == nil:
		userID = ch.UserID
		if !ch.IsVerified {
			if err := s.Store.ContactChannels().MarkContactChannelVerified(ctx, tenancy.ID, ch.ID); err != nil {
				return nil, err
			}
		}

	case errors.Is(err, store.ErrNotFound):
		if !tenancy.Config.SignUpEnabled {
			return nil, ErrSignUpDisabled
		}
		userID, err = s.createUserForEmail(ctx, tenancy, data.Email)
		if err != nil {
			return nil, err
		}
		isNewUser = true

	default:
		return nil, err
	}

	u, err := s.Store.Users().GetUserByID(ctx, tenancy.ID, userID)
	if err != nil {
		return nil, err
	}
	if u.MFAEnabled() {
		mfaErr, err := s.MFA.NewMFARequiredError(ctx, tenancy, userID, isNewUser)
		if err != nil {
			return nil, err
		}
		return nil, mfaErr
	}

	tokens, err := s.Tokens.CreateAuthTokens(ctx, tenancy, userID)
	if err != nil {
		return nil, err
	}

	return &domain.SignInResponse{
		UserID:    userID,
		IsNewUser: isNewUser,
		Tokens:    tokens,
	}, nil
}

func (s *SignInService) createUserForEmail(ctx context.Context, tenancy domain.Tenancy, email string) (string, error) {
	now := time.Now().UTC()
	u := domain.User{
		ID:           idx.New().String(),
		TenancyID:    tenancy.ID,
		PrimaryEmail: email,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	ch := domain.ContactChannel{
		ID:          idx.New().String(),
		TenancyID:   tenancy.ID,
		UserID:      u.ID,
		Type:        domain.ContactChannelEmail,
		Value:       email,
		IsVerified:  true, // the code came from this address
		UsedForAuth: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().CreateUser(ctx, u); err != nil {
			return err
		}
		return tx.ContactChannels().CreateContactChannel(ctx, ch)
	})
	if err != nil {
		return "", err
	}
	return u.ID, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
