package domain

// MFAEnrollResponse carries a freshly generated TOTP secret back to the user.
// The secret is not active until the user confirms a code generated from it.
type MFAEnrollResponse struct {
	Secret  string `json:"secret"`   // Base32 encoded secret for TOTP
	QRCode  string `json:"qr_code"`  // otpauth:// URL for QR code generation
	Issuer  string `json:"issuer"`   // Issuer name (e.g., service name)
	Account string `json:"account"`  // Account name (e.g., user email)
}
