package codes

import "errors"

// ErrInvalidCode is the single error returned for every redemption failure
// mode: unknown code, wrong flow type, wrong tenancy, expired, or already
// used. Collapsing the cases means a caller probing codes learns nothing
// about which codes exist.
var ErrInvalidCode = errors.New("codes: code is invalid, expired, or already used")
