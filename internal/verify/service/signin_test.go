package service

import (
	"context"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/verify/internal/verify/codes"
	"github.com/aussiebroadwan/verify/internal/verify/domain"
	"github.com/aussiebroadwan/verify/internal/verify/store"
	"github.com/aussiebroadwan/verify/internal/verify/store/drivers/sqlite"
	"github.com/aussiebroadwan/verify/pkg/idx"
	"github.com/aussiebroadwan/verify/pkg/jwtx"
)

type testEnv struct {
	store    store.Store
	tenancy  domain.Tenancy
	mailer   *LogMailer
	tokens   *TokenService
	mfa      *MFAService
	signIn   *SignInService
	users    *UserService
	channels *ContactChannelService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	tn := domain.Tenancy{
		ID:        idx.New().String(),
		ProjectID: "proj_test",
		BranchID:  "main",
		Config: domain.TenancyConfig{
			SignUpEnabled:    true,
			OTPSignInEnabled: true,
			AllowLocalhost:   true,
		},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.Tenancies().CreateTenancy(context.Background(), tn))

	signer, err := jwtx.NewEphemeralSigner("test")
	require.NoError(t, err)

	tokens := &TokenService{
		Signer:     signer,
		Store:      st,
		Issuer:     "https://verify.test",
		AccessTTL:  DefaultAccessTTL,
		RefreshTTL: DefaultRefreshTTL,
	}
	mailer := &LogMailer{}
	mfa := NewMFAService(st, tokens, "Verify", DefaultMFAAttemptTTL)

	return &testEnv{
		store:    st,
		tenancy:  tn,
		mailer:   mailer,
		tokens:   tokens,
		mfa:      mfa,
		signIn:   NewSignInService(st, tokens, mfa, mailer, "Verify", DefaultSignInCodeTTL),
		users:    &UserService{Store: st, Tokens: tokens, MFA: mfa},
		channels: NewContactChannelService(st, mailer, "Verify", DefaultSignInCodeTTL),
	}
}

// otpFromEmail pulls the six character display code out of a sent email.
func otpFromEmail(t *testing.T, body string) string {
	t.Helper()
	for line := range strings.Lines(body) {
		if rest, ok := strings.CutPrefix(line, "Your sign-in code is: "); ok {
			return strings.TrimSpace(rest)
		}
		if rest, ok := strings.CutPrefix(line, "Your verification code is: "); ok {
			return strings.TrimSpace(rest)
		}
	}
	t.Fatalf("no code line in email body:\n%s", body)
	return ""
}

// linkFromEmail pulls the magic link out of a sent email.
func linkFromEmail(t *testing.T, body string) *url.URL {
	t.Helper()
	for line := range strings.Lines(body) {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
			u, err := url.Parse(line)
			require.NoError(t, err)
			return u
		}
	}
	t.Fatalf("no link in email body:\n%s", body)
	return nil
}

func TestOTPSignInNewUser(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	ticket, err := env.signIn.SendSignInCode(ctx, env.tenancy, "Alice@Example.com", "", nil)
	require.NoError(t, err)
	require.Len(t, ticket.Nonce, 39)

	sent := env.mailer.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, "alice@example.com", sent[0].To)

	otp := otpFromEmail(t, sent[0].Body)
	require.Len(t, otp, 6)
	require.Equal(t, strings.ToUpper(otp), otp)

	resp, err := env.signIn.SignInWithOTP(ctx, env.tenancy, ticket.Nonce, otp)
	require.NoError(t, err)
	require.True(t, resp.IsNewUser)
	require.NotEmpty(t, resp.UserID)
	require.NotEmpty(t, resp.Tokens.AccessToken)
	require.NotEmpty(t, resp.Tokens.RefreshToken)

	t.Run("account was created with a verified auth channel", func(t *testing.T) {
		ch, err := env.store.ContactChannels().GetAuthContactChannel(ctx, env.tenancy.ID, domain.ContactChannelEmail, "alice@example.com")
		require.NoError(t, err)
		require.Equal(t, resp.UserID, ch.UserID)
		require.True(t, ch.IsVerified)
	})

	t.Run("code cannot be redeemed twice", func(t *testing.T) {
		_, err := env.signIn.SignInWithOTP(ctx, env.tenancy, ticket.Nonce, otp)
		require.ErrorIs(t, err, codes.ErrInvalidCode)
	})

	t.Run("second sign-in reuses the account", func(t *testing.T) {
		ticket, err := env.signIn.SendSignInCode(ctx, env.tenancy, "alice@example.com", "", nil)
		require.NoError(t, err)

		sent := env.mailer.Sent()
		otp := otpFromEmail(t, sent[len(sent)-1].Body)

		resp2, err := env.signIn.SignInWithOTP(ctx, env.tenancy, ticket.Nonce, otp)
		require.NoError(t, err)
		require.False(t, resp2.IsNewUser)
		require.Equal(t, resp.UserID, resp2.UserID)
	})
}

func TestMagicLinkSignIn(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	callback := "http://localhost:3000/handler/sign-in"
	ticket, err := env.signIn.SendSignInCode(ctx, env.tenancy, "bob@example.com", VariantLegacy, &callback)
	require.NoError(t, err)
	require.NotEmpty(t, ticket.Nonce)

	sent := env.mailer.Sent()
	require.Len(t, sent, 1)

	link := linkFromEmail(t, sent[0].Body)
	require.Equal(t, "localhost:3000", link.Host)
	require.Equal(t, "/handler/sign-in", link.Path)

	code := link.Query().Get("code")
	require.Len(t, code, 45)

	t.Run("check does not consume", func(t *testing.T) {
		require.NoError(t, env.signIn.CheckSignInCode(ctx, env.tenancy, code))
	})

	resp, err := env.signIn.SignInWithCode(ctx, env.tenancy, code)
	require.NoError(t, err)
	require.True(t, resp.IsNewUser)
}

func TestSendSignInCodeGates(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("otp sign-in disabled", func(t *testing.T) {
		tn := env.tenancy
		tn.Config.OTPSignInEnabled = false
		_, err := env.signIn.SendSignInCode(ctx, tn, "x@example.com", "", nil)
		require.ErrorIs(t, err, ErrSignInDisabled)
	})

	t.Run("unknown address with sign-ups disabled", func(t *testing.T) {
		tn := env.tenancy
		tn.Config.SignUpEnabled = false
		_, err := env.signIn.SendSignInCode(ctx, tn, "nobody@example.com", "", nil)
		require.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("untrusted callback URL", func(t *testing.T) {
		evil := "https://evil.example.com/phish"
		_, err := env.signIn.SendSignInCode(ctx, env.tenancy, "x@example.com", "", &evil)
		require.ErrorIs(t, err, ErrInvalidCallbackURL)
	})
}

func TestCodeIsTenancyScoped(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	other := domain.Tenancy{
		ID:        idx.New().String(),
		ProjectID: "proj_other",
		BranchID:  "main",
		Config:    env.tenancy.Config,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, env.store.Tenancies().CreateTenancy(ctx, other))

	ticket, err := env.signIn.SendSignInCode(ctx, env.tenancy, "carol@example.com", "", nil)
	require.NoError(t, err)

	otp := otpFromEmail(t, env.mailer.Sent()[0].Body)

	_, err = env.signIn.SignInWithOTP(ctx, other, ticket.Nonce, otp)
	require.ErrorIs(t, err, codes.ErrInvalidCode)
}

func TestMFAContinuation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	// First sign-in creates the account.
	ticket, err := env.signIn.SendSignInCode(ctx, env.tenancy, "dave@example.com", "", nil)
	require.NoError(t, err)
	resp, err := env.signIn.SignInWithOTP(ctx, env.tenancy, ticket.Nonce, otpFromEmail(t, env.mailer.Sent()[0].Body))
	require.NoError(t, err)

	// Enroll an authenticator.
	enroll, err := env.mfa.EnrollTOTP(ctx, env.tenancy, resp.UserID)
	require.NoError(t, err)
	require.NotEmpty(t, enroll.Secret)
	require.Contains(t, enroll.QRCode, "otpauth://")

	confirmCode, err := totp.GenerateCode(enroll.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, env.mfa.ConfirmTOTPEnrollment(ctx, env.tenancy, resp.UserID, enroll.Secret, confirmCode))

	// Next sign-in is interrupted by the second factor.
	ticket, err = env.signIn.SendSignInCode(ctx, env.tenancy, "dave@example.com", "", nil)
	require.NoError(t, err)
	sent := env.mailer.Sent()

	_, err = env.signIn.SignInWithOTP(ctx, env.tenancy, ticket.Nonce, otpFromEmail(t, sent[len(sent)-1].Body))
	mfaErr, ok := IsMFARequired(err)
	require.True(t, ok, "expected MFA continuation, got %v", err)
	require.Len(t, mfaErr.AttemptCode, 45)

	t.Run("wrong totp leaves the attempt redeemable", func(t *testing.T) {
		_, err := env.mfa.SignInWithMFA(ctx, env.tenancy, mfaErr.AttemptCode, "000000")
		require.ErrorIs(t, err, ErrInvalidTOTPCode)
	})

	t.Run("correct totp finishes the sign-in", func(t *testing.T) {
		code, err := totp.GenerateCode(enroll.Secret, time.Now())
		require.NoError(t, err)

		finished, err := env.mfa.SignInWithMFA(ctx, env.tenancy, mfaErr.AttemptCode, code)
		require.NoError(t, err)
		require.Equal(t, resp.UserID, finished.UserID)
		require.NotEmpty(t, finished.Tokens.AccessToken)
	})

	t.Run("attempt code is single use", func(t *testing.T) {
		code, err := totp.GenerateCode(enroll.Secret, time.Now())
		require.NoError(t, err)

		_, err = env.mfa.SignInWithMFA(ctx, env.tenancy, mfaErr.AttemptCode, code)
		require.ErrorIs(t, err, codes.ErrInvalidCode)
	})
}

func TestContactChannelVerification(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	// Sign in to create an account.
	ticket, err := env.signIn.SendSignInCode(ctx, env.tenancy, "erin@example.com", "", nil)
	require.NoError(t, err)
	resp, err := env.signIn.SignInWithOTP(ctx, env.tenancy, ticket.Nonce, otpFromEmail(t, env.mailer.Sent()[0].Body))
	require.NoError(t, err)

	// Attach a second, unverified address.
	now := time.Now().UTC()
	second := domain.ContactChannel{
		ID:        idx.New().String(),
		TenancyID: env.tenancy.ID,
		UserID:    resp.UserID,
		Type:      domain.ContactChannelEmail,
		Value:     "erin@work.example.com",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, env.store.ContactChannels().CreateContactChannel(ctx, second))

	ticket2, err := env.channels.SendVerificationCode(ctx, env.tenancy, resp.UserID, second.ID, nil)
	require.NoError(t, err)

	sent := env.mailer.Sent()
	last := sent[len(sent)-1]
	require.Equal(t, "erin@work.example.com", last.To)

	otp2 := otpFromEmail(t, last.Body)
	chID, err := env.channels.VerifyChannel(ctx, env.tenancy, otp2+ticket2.Nonce)
	require.NoError(t, err)
	require.Equal(t, second.ID, chID)

	channels, err := env.store.ContactChannels().ListUserContactChannels(ctx, env.tenancy.ID, resp.UserID)
	require.NoError(t, err)
	for _, ch := range channels {
		if ch.ID == second.ID {
			require.True(t, ch.IsVerified)
		}
	}
}
