package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/aussiebroadwan/verify/internal/verify/codes"
	"github.com/aussiebroadwan/verify/internal/verify/domain"
	"github.com/aussiebroadwan/verify/internal/verify/store"
)

// DefaultMFAAttemptTTL bounds how long a sign-in may sit between the first
// factor succeeding and the TOTP arriving.
const DefaultMFAAttemptTTL = 5 * time.Minute

type mfaAttemptData struct {
	UserID    string `json:"user_id"`
	IsNewUser bool   `json:"is_new_user"`
}

// mfaAttemptMethod is empty: attempt codes are never delivered out of band,
// they ride back on the API response that demanded the second factor.
type mfaAttemptMethod struct{}

func (mfaAttemptMethod) Validate() error { return nil }

type mfaAttemptRequest struct {
	TOTP string
}

// MFAService bridges an interrupted sign-in to its completion. When a first
// factor succeeds for a user with an authenticator enrolled, the sign-in is
// parked behind a short-lived attempt code; redeeming that code with a valid
// TOTP finishes it.
type MFAService struct {
	Store      store.Store
	Tokens     *TokenService
	Issuer     string // TOTP issuer label shown in authenticator apps
	AttemptTTL time.Duration

	flow *codes.Flow[mfaAttemptData, mfaAttemptMethod, mfaAttemptRequest, *domain.SignInResponse]
}

func NewMFAService(st store.Store, tokens *TokenService, issuer string, attemptTTL time.Duration) *MFAService {
	if attemptTTL <= 0 {
		attemptTTL = DefaultMFAAttemptTTL
	}

	s := &MFAService{
		Store:      st,
		Tokens:     tokens,
		Issuer:     issuer,
		AttemptTTL: attemptTTL,
	}

	s.flow = &codes.Flow[mfaAttemptData, mfaAttemptMethod, mfaAttemptRequest, *domain.SignInResponse]{
		Type:     domain.FlowMFAAttempt,
		Store:    st.VerificationCodes(),
		Validate: s.validateAttempt,
		Handler:  s.completeAttempt,

		// A mistyped TOTP must not burn the attempt code, and the caller
		// needs to distinguish "wrong TOTP, try again" from "attempt gone".
		SurfaceValidateErrors: true,
	}

	return s
}

// NewMFARequiredError parks a succeeded first factor behind an attempt code.
func (s *MFAService) NewMFARequiredError(ctx context.Context, tenancy domain.Tenancy, userID string, isNewUser bool) (*MFARequiredError, error) {
	created, err := s.flow.CreateCode(ctx, codes.CreateCodeOptions[mfaAttemptData, mfaAttemptMethod]{
		Tenancy:   tenancy,
		Data:      mfaAttemptData{UserID: userID, IsNewUser: isNewUser},
		Method:    mfaAttemptMethod{},
		ExpiresIn: s.AttemptTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("create mfa attempt code: %w", err)
	}
	return &MFARequiredError{AttemptCode: created.Code}, nil
}

// SignInWithMFA redeems an attempt code together with a TOTP. A wrong TOTP
// returns ErrInvalidTOTPCode and leaves the attempt code redeemable; any
// other failure returns codes.ErrInvalidCode.
func (s *MFAService) SignInWithMFA(ctx context.Context, tenancy domain.Tenancy, attemptCode, totpCode string) (*domain.SignInResponse, error) {
	return s.flow.UseCode(ctx, tenancy, attemptCode, mfaAttemptRequest{TOTP: totpCode})
}

func (s *MFAService) validateAttempt(ctx context.Context, tenancy domain.Tenancy, _ mfaAttemptMethod, data mfaAttemptData, req mfaAttemptRequest) error {
	u, err := s.Store.Users().GetUserByID(ctx, tenancy.ID, data.UserID)
	if err != nil {
		return err
	}
	if !u.MFAEnabled() {
		return ErrMFANotEnrolled
	}
	if !totp.Validate(req.TOTP, *u.TOTPSecret) {
		return ErrInvalidTOTPCode
	}
	return nil
}

func (s *MFAService) completeAttempt(ctx context.Context, tenancy domain.Tenancy, _ mfaAttemptMethod, data mfaAttemptData, _ mfaAttemptRequest) (*domain.SignInResponse, error) {
	tokens, err := s.Tokens.CreateAuthTokens(ctx, tenancy, data.UserID)
	if err != nil {
		return nil, err
	}
	return &domain.SignInResponse{
		UserID:    data.UserID,
		IsNewUser: data.IsNewUser,
		Tokens:    tokens,
	}, nil
}

// EnrollTOTP generates a TOTP secret for the user. The secret is returned to
// the caller and NOT stored; ConfirmTOTPEnrollment activates it once the user
// proves their authenticator produces matching codes.
func (s *MFAService) EnrollTOTP(ctx context.Context, tenancy domain.Tenancy, userID string) (domain.MFAEnrollResponse, error) {
	u, err := s.Store.Users().GetUserByID(ctx, tenancy.ID, userID)
	if err != nil {
		return domain.MFAEnrollResponse{}, err
	}
	if u.MFAEnabled() {
		return domain.MFAEnrollResponse{}, ErrMFAAlreadyEnrolled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: u.PrimaryEmail,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return domain.MFAEnrollResponse{}, fmt.Errorf("generate TOTP key: %w", err)
	}

	return domain.MFAEnrollResponse{
		Secret:  key.Secret(),
		QRCode:  key.URL(),
		Issuer:  s.Issuer,
		Account: u.PrimaryEmail,
	}, nil
}

// ConfirmTOTPEnrollment activates a secret from EnrollTOTP after verifying a
// code generated from it.
func (s *MFAService) ConfirmTOTPEnrollment(ctx context.Context, tenancy domain.Tenancy, userID, secret, code string) error {
	u, err := s.Store.Users().GetUserByID(ctx, tenancy.ID, userID)
	if err != nil {
		return err
	}
	if u.MFAEnabled() {
		return ErrMFAAlreadyEnrolled
	}
	if !totp.Validate(code, secret) {
		return ErrInvalidTOTPCode
	}
	return s.Store.Users().UpdateTOTPSecret(ctx, tenancy.ID, userID, &secret)
}

// DisableTOTP removes the user's authenticator.
func (s *MFAService) DisableTOTP(ctx context.Context, tenancy domain.Tenancy, userID string) error {
	u, err := s.Store.Users().GetUserByID(ctx, tenancy.ID, userID)
	if err != nil {
		return err
	}
	if !u.MFAEnabled() {
		return ErrMFANotEnrolled
	}
	return s.Store.Users().UpdateTOTPSecret(ctx, tenancy.ID, userID, nil)
}

// IsMFARequired reports whether err is the MFA continuation signal.
func IsMFARequired(err error) (*MFARequiredError, bool) {
	var mfaErr *MFARequiredError
	if errors.As(err, &mfaErr) {
		return mfaErr, true
	}
	return nil, false
}
