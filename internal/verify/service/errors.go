package service

import "errors"

var (
	ErrSignInDisabled     = errors.New("otp_sign_in_disabled")
	ErrSignUpDisabled     = errors.New("sign_up_disabled")
	ErrUserNotFound       = errors.New("user_not_found")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInvalidRefresh     = errors.New("invalid_refresh_token")
	ErrInvalidTOTPCode    = errors.New("invalid_totp_code")
	ErrMFANotEnrolled     = errors.New("mfa_not_enrolled")
	ErrMFAAlreadyEnrolled = errors.New("mfa_already_enrolled")
	ErrPasswordNotSet     = errors.New("password_not_set")
)

// MFARequiredError interrupts a sign-in when the user has an authenticator
// enrolled. The attempt code is a short-lived verification code the client
// redeems together with a TOTP to finish the sign-in.
type MFARequiredError struct {
	AttemptCode string
}

func (e *MFARequiredError) Error() string {
	return "multi-factor authentication required"
}
