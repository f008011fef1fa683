package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/verify/internal/verify/domain"
	"github.com/aussiebroadwan/verify/internal/verify/store"
	"github.com/aussiebroadwan/verify/pkg/cryptox"
)

const minPasswordLength = 8

var ErrPasswordAlreadySet = errors.New("password_already_set")

// UserService covers the password side of authentication. OTP-only accounts
// have no password until they set one.
type UserService struct {
	Store  store.Store
	Tokens *TokenService
	MFA    *MFAService
}

// SignInWithPassword authenticates an email/password pair. Users with an
// authenticator enrolled get an MFARequiredError instead of tokens.
func (s *UserService) SignInWithPassword(ctx context.Context, tenancy domain.Tenancy, email, password string) (*domain.SignInResponse, error) {
	ch, err := s.Store.ContactChannels().GetAuthContactChannel(ctx, tenancy.ID, domain.ContactChannelEmail, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	u, err := s.Store.Users().GetUserByID(ctx, tenancy.ID, ch.UserID)
	if err != nil {
		return nil, err
	}
	if u.PasswordHash == nil || *u.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := cryptox.VerifyPassword(password, *u.PasswordHash); err != nil {
		return nil, ErrInvalidCredentials
	}

	if u.MFAEnabled() {
		mfaErr, err := s.MFA.NewMFARequiredError(ctx, tenancy, u.ID, false)
		if err != nil {
			return nil, err
		}
		return nil, mfaErr
	}

	tokens, err := s.Tokens.CreateAuthTokens(ctx, tenancy, u.ID)
	if err != nil {
		return nil, err
	}

	return &domain.SignInResponse{UserID: u.ID, Tokens: tokens}, nil
}

// SetPassword gives a password to an account that has none yet. A new
// credential means every session issued before it is stale, so all refresh
// tokens are revoked in the same transaction.
func (s *UserService) SetPassword(ctx context.Context, tenancy domain.Tenancy, userID, password string) error {
	u, err := s.Store.Users().GetUserByID(ctx, tenancy.ID, userID)
	if err != nil {
		return err
	}
	if u.PasswordHash != nil && *u.PasswordHash != "" {
		return ErrPasswordAlreadySet
	}

	hash, err := hashValidPassword(password)
	if err != nil {
		return err
	}

	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().UpdatePasswordHash(ctx, tenancy.ID, userID, hash); err != nil {
			return err
		}
		return tx.RefreshTokens().RevokeAllUserRefreshTokens(ctx, tenancy.ID, userID)
	})
}

// UpdatePassword replaces the password after verifying the old one, and signs
// the user out everywhere else by revoking all refresh tokens in the same
// transaction.
func (s *UserService) UpdatePassword(ctx context.Context, tenancy domain.Tenancy, userID, oldPassword, newPassword string) error {
	u, err := s.Store.Users().GetUserByID(ctx, tenancy.ID, userID)
	if err != nil {
		return err
	}
	if u.PasswordHash == nil || *u.PasswordHash == "" {
		return ErrPasswordNotSet
	}
	if err := cryptox.VerifyPassword(oldPassword, *u.PasswordHash); err != nil {
		return ErrInvalidCredentials
	}

	hash, err := hashValidPassword(newPassword)
	if err != nil {
		return err
	}

	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().UpdatePasswordHash(ctx, tenancy.ID, userID, hash); err != nil {
			return err
		}
		return tx.RefreshTokens().RevokeAllUserRefreshTokens(ctx, tenancy.ID, userID)
	})
}

func hashValidPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}
	return cryptox.HashPassword(password)
}
