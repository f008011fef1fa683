package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/verify/internal/verify/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite, postgres)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable, and to stop people from accidentally nesting transactions.
type Store interface {
	Tenancies() Tenancies
	Users() Users
	ContactChannels() ContactChannels
	VerificationCodes() VerificationCodes
	RefreshTokens() RefreshTokens

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources (optional for sqlite).
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Tenancies interface {
	// GetTenancy resolves the tenancy for an external (project, branch) pair.
	GetTenancy(ctx context.Context, projectID, branchID string) (domain.Tenancy, error)

	// GetTenancyByID fetches a tenancy by its internal id.
	GetTenancyByID(ctx context.Context, id string) (domain.Tenancy, error)

	// CreateTenancy inserts a new tenancy (id is provided via ULID).
	CreateTenancy(ctx context.Context, t domain.Tenancy) error

	// UpdateTenancyConfig replaces the stored config JSON.
	UpdateTenancyConfig(ctx context.Context, id string, cfg domain.TenancyConfig) error
}

type Users interface {
	// GetUserByID returns a user by id, scoped to a tenancy.
	GetUserByID(ctx context.Context, tenancyID, userID string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	CreateUser(ctx context.Context, u domain.User) error

	// UpdatePasswordHash sets the password_hash (argon2) and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, tenancyID, userID string, newHash string) error

	// UpdateTOTPSecret sets or clears the TOTP secret and bumps updated_at.
	UpdateTOTPSecret(ctx context.Context, tenancyID, userID string, secret *string) error

	// DeleteUser cascades to contact_channels and refresh_tokens (per schema).
	DeleteUser(ctx context.Context, tenancyID, userID string) error
}

type ContactChannels interface {
	// CreateContactChannel inserts a new channel for a user.
	CreateContactChannel(ctx context.Context, ch domain.ContactChannel) error

	// GetAuthContactChannel finds the channel usable for sign-in by value
	// (e.g., an email address), scoped to a tenancy.
	GetAuthContactChannel(ctx context.Context, tenancyID string, typ domain.ContactChannelType, value string) (domain.ContactChannel, error)

	// ListUserContactChannels returns all channels for a user.
	ListUserContactChannels(ctx context.Context, tenancyID, userID string) ([]domain.ContactChannel, error)

	// MarkContactChannelVerified flips is_verified and bumps updated_at.
	MarkContactChannelVerified(ctx context.Context, tenancyID, channelID string) error
}

type VerificationCodes interface {
	// InsertCode stores a freshly minted verification code record.
	InsertCode(ctx context.Context, c domain.VerificationCode) error

	// GetCodeByTypeAndHash fetches a code by flow type and fingerprint when
	// redeeming. Returns the record regardless of used/expired state so the
	// caller decides how to respond.
	GetCodeByTypeAndHash(ctx context.Context, flowType domain.FlowType, codeHash string) (domain.VerificationCode, error)

	// ConsumeCode marks a code used if and only if it is still unused.
	// Returns true when this call performed the consumption, false when the
	// code was already consumed by a concurrent redeemer.
	ConsumeCode(ctx context.Context, id string, usedAt time.Time) (bool, error)

	// DeleteExpiredCodes removes codes past their expiry (housekeeping).
	DeleteExpiredCodes(ctx context.Context) error
}

type RefreshTokens interface {
	// CreateRefreshToken stores a new refresh token record.
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error

	// GetRefreshTokenByHash returns the token by its fingerprint.
	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error)

	// RevokeRefreshToken flips revoked=1 for a single token.
	RevokeRefreshToken(ctx context.Context, hash string) error

	// RevokeAllUserRefreshTokens bulk revocation for a user (e.g., password change).
	RevokeAllUserRefreshTokens(ctx context.Context, tenancyID, userID string) error

	// DeleteExpiredRefreshTokens is optional housekeeping.
	DeleteExpiredRefreshTokens(ctx context.Context) error
}
