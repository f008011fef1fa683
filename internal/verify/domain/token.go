package domain

import "time"

// TokenPair is what successful authentication returns: the short-lived access
// token (JWT) and the opaque refresh token.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"` // typically "Bearer"
	ExpiresIn    int64  `json:"expires_in"`           // seconds until access token expiry
}

// RefreshToken models the stored refresh token record in the DB. The raw
// token is opaque to clients and only its fingerprint is persisted.
type RefreshToken struct {
	ID        string
	TenancyID string
	UserID    string
	TokenHash string // deterministic fingerprint (base64url SHA-256)
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// IsUsable reports whether the refresh token can still mint access tokens.
func (t *RefreshToken) IsUsable(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

// SignInResponse is the common result of every sign-in path (OTP redemption,
// password, MFA completion).
type SignInResponse struct {
	UserID    string    `json:"user_id"`
	IsNewUser bool      `json:"is_new_user"`
	Tokens    TokenPair `json:"tokens"`
}
