package domain

import "time"

// Tenancy is the isolation unit every code, user, and token belongs to. A
// tenancy is identified externally by (project id, branch id) and internally
// by a ULID.
type Tenancy struct {
	ID        string
	ProjectID string
	BranchID  string
	Config    TenancyConfig
	CreatedAt time.Time
}

// TenancyConfig holds the per-tenancy auth policy. Stored as JSON alongside
// the tenancy row.
type TenancyConfig struct {
	// SignUpEnabled controls whether a code redemption may create new users.
	SignUpEnabled bool `json:"sign_up_enabled"`

	// OTPSignInEnabled gates the one-time-password sign-in flow.
	OTPSignInEnabled bool `json:"otp_sign_in_enabled"`

	// Domains lists the trusted base URLs callback links may point at.
	Domains []string `json:"domains,omitempty"`

	// AllowLocalhost permits localhost callback URLs, for development.
	AllowLocalhost bool `json:"allow_localhost"`
}
