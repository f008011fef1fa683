package domain

import "time"

// FlowType identifies the kind of action a verification code authorizes.
// Codes are scoped by flow type: a code minted for one flow never redeems
// under another, even if the raw string were to collide.
type FlowType string

const (
	FlowOneTimePassword     FlowType = "one-time-password"
	FlowMFAAttempt          FlowType = "mfa-attempt"
	FlowContactVerification FlowType = "contact-channel-verification"
)

// VerificationCode models a stored verification code record. The raw code
// string is never persisted; only its fingerprint is.
type VerificationCode struct {
	ID          string
	CodeHash    string // deterministic fingerprint (base64url SHA-256)
	FlowType    FlowType
	TenancyID   string
	ProjectID   string
	BranchID    string
	Data        []byte // flow-specific payload, JSON
	Method      []byte // delivery method descriptor, JSON
	CallbackURL *string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	UsedAt      *time.Time
}

// IsExpired reports whether the code has passed its expiry.
func (c *VerificationCode) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// IsUsed reports whether the code has already been redeemed.
func (c *VerificationCode) IsUsed() bool {
	return c.UsedAt != nil
}
