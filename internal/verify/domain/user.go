package domain

import "time"

type User struct {
	ID           string
	TenancyID    string
	PrimaryEmail string
	DisplayName  string
	PasswordHash *string // argon2 encoded (nullable, OTP-only users have none)
	TOTPSecret   *string // base32 encoded (nullable)
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MFAEnabled reports whether the user has a TOTP authenticator enrolled.
func (u *User) MFAEnabled() bool {
	return u.TOTPSecret != nil && *u.TOTPSecret != ""
}

// ContactChannelType discriminates contact channel kinds. Only email is
// deliverable today; the type exists so SMS can slot in later.
type ContactChannelType string

const (
	ContactChannelEmail ContactChannelType = "email"
)

// ContactChannel is an address associated with a user. Channels marked
// UsedForAuth can receive sign-in codes; IsVerified flips once the user
// proves control of the address.
type ContactChannel struct {
	ID          string
	TenancyID   string
	UserID      string
	Type        ContactChannelType
	Value       string
	IsVerified  bool
	UsedForAuth bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
