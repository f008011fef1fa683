package service

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/verify/internal/verify/domain"
	"github.com/aussiebroadwan/verify/internal/verify/store"
	"github.com/aussiebroadwan/verify/pkg/cryptox"
	"github.com/aussiebroadwan/verify/pkg/idx"
	"github.com/aussiebroadwan/verify/pkg/jwtx"
)

const (
	DefaultAccessTTL  = 10 * time.Minute
	DefaultRefreshTTL = 365 * 24 * time.Hour
)

// TokenService issues the access/refresh token pair every successful sign-in
// path converges on. Access tokens are signed JWTs; refresh tokens are opaque
// strings persisted by fingerprint.
type TokenService struct {
	Signer     jwtx.Signer
	Store      store.Store
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// CreateAuthTokens mints a fresh refresh token row and an access token bound
// to it.
func (s *TokenService) CreateAuthTokens(ctx context.Context, tenancy domain.Tenancy, userID string) (domain.TokenPair, error) {
	now := time.Now().UTC()

	refreshOpaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.TokenPair{}, err
	}

	rt := domain.RefreshToken{
		ID:        idx.New().String(),
		TenancyID: tenancy.ID,
		UserID:    userID,
		TokenHash: cryptox.FingerprintToken(refreshOpaque),
		ExpiresAt: now.Add(s.RefreshTTL),
		CreatedAt: now,
	}
	if err := s.Store.RefreshTokens().CreateRefreshToken(ctx, rt); err != nil {
		return domain.TokenPair{}, err
	}

	accessToken, err := s.signAccess(tenancy, userID, rt.ID, now)
	if err != nil {
		return domain.TokenPair{}, err
	}

	return domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshOpaque,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.AccessTTL.Seconds()),
	}, nil
}

// RefreshAccessToken mints a new access token against a still-usable refresh
// token. The refresh token is not rotated; the returned pair carries an empty
// RefreshToken and the client keeps using the one it has.
func (s *TokenService) RefreshAccessToken(ctx context.Context, tenancy domain.Tenancy, refreshOpaque string) (domain.TokenPair, error) {
	now := time.Now().UTC()

	rt, err := s.Store.RefreshTokens().GetRefreshTokenByHash(ctx, cryptox.FingerprintToken(refreshOpaque))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.TokenPair{}, ErrInvalidRefresh
		}
		return domain.TokenPair{}, err
	}

	if rt.TenancyID != tenancy.ID || !rt.IsUsable(now) {
		return domain.TokenPair{}, ErrInvalidRefresh
	}

	accessToken, err := s.signAccess(tenancy, rt.UserID, rt.ID, now)
	if err != nil {
		return domain.TokenPair{}, err
	}

	return domain.TokenPair{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.AccessTTL.Seconds()),
	}, nil
}

// RevokeRefreshToken revokes a single refresh token (by its opaque value).
func (s *TokenService) RevokeRefreshToken(ctx context.Context, refreshOpaque string) error {
	return s.Store.RefreshTokens().RevokeRefreshToken(ctx, cryptox.FingerprintToken(refreshOpaque))
}

// RevokeAllRefreshTokens signs the user out everywhere.
func (s *TokenService) RevokeAllRefreshTokens(ctx context.Context, tenancy domain.Tenancy, userID string) error {
	return s.Store.RefreshTokens().RevokeAllUserRefreshTokens(ctx, tenancy.ID, userID)
}

func (s *TokenService) signAccess(tenancy domain.Tenancy, userID, refreshTokenID string, now time.Time) (string, error) {
	claims := jwtx.NewAccessClaims(
		userID,
		tenancy.ProjectID, // audience
		tenancy.BranchID,
		refreshTokenID,
		s.Issuer,
		s.AccessTTL,
		now,
	)
	return s.Signer.Sign(claims)
}
