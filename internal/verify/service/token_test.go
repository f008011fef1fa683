package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/verify/internal/verify/domain"
	"github.com/aussiebroadwan/verify/internal/verify/store"
	"github.com/aussiebroadwan/verify/pkg/idx"
	"github.com/aussiebroadwan/verify/pkg/jwtx"
)

func seedEnvUser(t *testing.T, env *testEnv) domain.User {
	t.Helper()

	now := time.Now().UTC()
	u := domain.User{
		ID:           idx.New().String(),
		TenancyID:    env.tenancy.ID,
		PrimaryEmail: "frank@example.com",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, env.store.Users().CreateUser(context.Background(), u))

	ch := domain.ContactChannel{
		ID:          idx.New().String(),
		TenancyID:   env.tenancy.ID,
		UserID:      u.ID,
		Type:        domain.ContactChannelEmail,
		Value:       u.PrimaryEmail,
		IsVerified:  true,
		UsedForAuth: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, env.store.ContactChannels().CreateContactChannel(context.Background(), ch))
	return u
}

func TestCreateAuthTokens(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	u := seedEnvUser(t, env)

	pair, err := env.tokens.CreateAuthTokens(ctx, env.tenancy, u.ID)
	require.NoError(t, err)
	require.Equal(t, "Bearer", pair.TokenType)
	require.Equal(t, int64(DefaultAccessTTL.Seconds()), pair.ExpiresIn)
	require.NotEmpty(t, pair.RefreshToken)

	t.Run("access token claims are bound to the tenancy", func(t *testing.T) {
		verifier := jwtx.VerifierForSigner(env.tokens.Signer, env.tokens.Issuer, []string{env.tenancy.ProjectID})
		claims, err := verifier.Verify(pair.AccessToken)
		require.NoError(t, err)
		require.Equal(t, u.ID, claims.Subject)
		require.Equal(t, env.tenancy.BranchID, claims.BranchID)
		require.NotEmpty(t, claims.RefreshTokenID)
	})

	t.Run("refresh token row is persisted by fingerprint", func(t *testing.T) {
		_, err := env.store.RefreshTokens().GetRefreshTokenByHash(ctx, pair.RefreshToken)
		require.ErrorIs(t, err, store.ErrNotFound) // raw value is never stored
	})
}

func TestRefreshAccessToken(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	u := seedEnvUser(t, env)

	pair, err := env.tokens.CreateAuthTokens(ctx, env.tenancy, u.ID)
	require.NoError(t, err)

	t.Run("mints a fresh access token without rotating", func(t *testing.T) {
		refreshed, err := env.tokens.RefreshAccessToken(ctx, env.tenancy, pair.RefreshToken)
		require.NoError(t, err)
		require.NotEmpty(t, refreshed.AccessToken)
		require.Empty(t, refreshed.RefreshToken)
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := env.tokens.RefreshAccessToken(ctx, env.tenancy, "not-a-token")
		require.ErrorIs(t, err, ErrInvalidRefresh)
	})

	t.Run("rejects another tenancy's token", func(t *testing.T) {
		other := env.tenancy
		other.ID = idx.New().String()
		_, err := env.tokens.RefreshAccessToken(ctx, other, pair.RefreshToken)
		require.ErrorIs(t, err, ErrInvalidRefresh)
	})

	t.Run("rejects after revocation", func(t *testing.T) {
		require.NoError(t, env.tokens.RevokeRefreshToken(ctx, pair.RefreshToken))
		_, err := env.tokens.RefreshAccessToken(ctx, env.tenancy, pair.RefreshToken)
		require.ErrorIs(t, err, ErrInvalidRefresh)
	})
}

func TestPasswordLifecycle(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	u := seedEnvUser(t, env)

	t.Run("sign-in before a password exists fails", func(t *testing.T) {
		_, err := env.users.SignInWithPassword(ctx, env.tenancy, u.PrimaryEmail, "hunter22hunter22")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	// Sessions minted before the password exists, e.g. from OTP sign-ins.
	preSetPair, err := env.tokens.CreateAuthTokens(ctx, env.tenancy, u.ID)
	require.NoError(t, err)

	require.NoError(t, env.users.SetPassword(ctx, env.tenancy, u.ID, "hunter22hunter22"))

	t.Run("set revokes existing sessions", func(t *testing.T) {
		_, err := env.tokens.RefreshAccessToken(ctx, env.tenancy, preSetPair.RefreshToken)
		require.ErrorIs(t, err, ErrInvalidRefresh)
	})

	t.Run("set is one-shot", func(t *testing.T) {
		err := env.users.SetPassword(ctx, env.tenancy, u.ID, "another-password")
		require.ErrorIs(t, err, ErrPasswordAlreadySet)
	})

	t.Run("sign-in with the password", func(t *testing.T) {
		resp, err := env.users.SignInWithPassword(ctx, env.tenancy, u.PrimaryEmail, "hunter22hunter22")
		require.NoError(t, err)
		require.Equal(t, u.ID, resp.UserID)
		require.False(t, resp.IsNewUser)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := env.users.SignInWithPassword(ctx, env.tenancy, u.PrimaryEmail, "wrong-password")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("update revokes existing sessions", func(t *testing.T) {
		resp, err := env.users.SignInWithPassword(ctx, env.tenancy, u.PrimaryEmail, "hunter22hunter22")
		require.NoError(t, err)

		require.NoError(t, env.users.UpdatePassword(ctx, env.tenancy, u.ID, "hunter22hunter22", "correct-horse-battery"))

		_, err = env.tokens.RefreshAccessToken(ctx, env.tenancy, resp.Tokens.RefreshToken)
		require.ErrorIs(t, err, ErrInvalidRefresh)

		_, err = env.users.SignInWithPassword(ctx, env.tenancy, u.PrimaryEmail, "correct-horse-battery")
		require.NoError(t, err)
	})

	t.Run("short passwords are rejected", func(t *testing.T) {
		err := env.users.UpdatePassword(ctx, env.tenancy, u.ID, "correct-horse-battery", "short")
		require.Error(t, err)
	})
}
