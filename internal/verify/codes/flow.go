// Package codes implements the verification code engine. A code gates an
// arbitrary account action: the engine mints and stores codes, and each flow
// supplies the delivery, validation, and redemption behaviour for its own
// payload types.
package codes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/verify/internal/verify/domain"
	"github.com/aussiebroadwan/verify/internal/verify/store"
	"github.com/aussiebroadwan/verify/pkg/cryptox"
	"github.com/aussiebroadwan/verify/pkg/idx"
)

const (
	// codeEntropyBits gives a 45-character code. The first otpLength
	// characters double as the short typed one-time password; the remainder
	// is the nonce half returned to the requesting client.
	codeEntropyBits = 225
	codeLength      = 45
	otpLength       = 6
)

// Payload is implemented by a flow's method descriptor so malformed delivery
// requests are rejected before a code is minted.
type Payload interface {
	Validate() error
}

// Flow binds a flow type to its payload types and callbacks.
//
// D is the flow's data payload (what the code carries, e.g. the target
// email), M its delivery method descriptor, Req the redemption request a
// client submits alongside the code, and Resp the redemption result.
//
// Validate runs before the code is consumed and MUST be side-effect free: a
// failing Validate leaves the code redeemable so the caller can retry (e.g. a
// mistyped TOTP during an MFA attempt). Handler runs exactly once, after the
// code has been atomically consumed.
type Flow[D any, M Payload, Req any, Resp any] struct {
	Type  domain.FlowType
	Store store.VerificationCodes

	// Send delivers the code out of band. Nil for flows that hand the code
	// back through the API response instead (e.g. MFA attempts).
	Send func(ctx context.Context, code *CreatedCode[D, M]) error

	// Validate vets the redemption request against the stored payload
	// without consuming the code. Optional.
	Validate func(ctx context.Context, tenancy domain.Tenancy, method M, data D, req Req) error

	// Handler performs the gated action once the code is consumed.
	Handler func(ctx context.Context, tenancy domain.Tenancy, method M, data D, req Req) (Resp, error)

	// SurfaceValidateErrors passes Validate errors through to the caller
	// verbatim. When false they collapse into ErrInvalidCode, which is the
	// right default for codes delivered over an untrusted channel.
	SurfaceValidateErrors bool
}

// CreateCodeOptions carries everything needed to mint a code.
type CreateCodeOptions[D any, M Payload] struct {
	Tenancy     domain.Tenancy
	Data        D
	Method      M
	ExpiresIn   time.Duration
	CallbackURL *string
}

// CreatedCode is a freshly minted code before delivery. Code is the only
// place the raw string exists; the store holds its fingerprint.
type CreatedCode[D any, M Payload] struct {
	ID        string
	Code      string
	OTP       string   // first characters of Code, upper-cased for display
	Nonce     string   // remainder of Code, returned to the requesting client
	Link      *url.URL // callback URL with the code attached, when one was given
	Tenancy   domain.Tenancy
	Data      D
	Method    M
	ExpiresAt time.Time
}

// CheckResult is the outcome of a non-consuming code check.
type CheckResult[D any, M Payload] struct {
	ID        string
	Data      D
	Method    M
	ExpiresAt time.Time
}

// CreateCode mints a code, persists its fingerprint, and returns the raw code
// with its OTP/nonce split and callback link.
func (f *Flow[D, M, Req, Resp]) CreateCode(ctx context.Context, opts CreateCodeOptions[D, M]) (*CreatedCode[D, M], error) {
	if err := opts.Method.Validate(); err != nil {
		return nil, fmt.Errorf("codes: invalid method: %w", err)
	}
	if opts.ExpiresIn <= 0 {
		return nil, fmt.Errorf("codes: expiry must be positive")
	}

	code, err := cryptox.GenerateCode(codeEntropyBits)
	if err != nil {
		return nil, fmt.Errorf("codes: generate: %w", err)
	}

	data, err := json.Marshal(opts.Data)
	if err != nil {
		return nil, fmt.Errorf("codes: marshal data: %w", err)
	}
	method, err := json.Marshal(opts.Method)
	if err != nil {
		return nil, fmt.Errorf("codes: marshal method: %w", err)
	}

	now := time.Now().UTC()
	rec := domain.VerificationCode{
		ID:          idx.New().String(),
		CodeHash:    cryptox.FingerprintToken(code),
		FlowType:    f.Type,
		TenancyID:   opts.Tenancy.ID,
		ProjectID:   opts.Tenancy.ProjectID,
		BranchID:    opts.Tenancy.BranchID,
		Data:        data,
		Method:      method,
		CallbackURL: opts.CallbackURL,
		CreatedAt:   now,
		ExpiresAt:   now.Add(opts.ExpiresIn),
	}
	if err := f.Store.InsertCode(ctx, rec); err != nil {
		return nil, fmt.Errorf("codes: insert: %w", err)
	}

	created := &CreatedCode[D, M]{
		ID:        rec.ID,
		Code:      code,
		OTP:       strings.ToUpper(code[:otpLength]),
		Nonce:     code[otpLength:],
		Tenancy:   opts.Tenancy,
		Data:      opts.Data,
		Method:    opts.Method,
		ExpiresAt: rec.ExpiresAt,
	}

	if opts.CallbackURL != nil {
		link, err := url.Parse(*opts.CallbackURL)
		if err != nil {
			return nil, fmt.Errorf("codes: parse callback url: %w", err)
		}
		q := link.Query()
		q.Set("code", code)
		link.RawQuery = q.Encode()
		created.Link = link
	}

	return created, nil
}

// SendCode mints a code and hands it to the flow's Send callback.
func (f *Flow[D, M, Req, Resp]) SendCode(ctx context.Context, opts CreateCodeOptions[D, M]) (*CreatedCode[D, M], error) {
	created, err := f.CreateCode(ctx, opts)
	if err != nil {
		return nil, err
	}
	if f.Send != nil {
		if err := f.Send(ctx, created); err != nil {
			return nil, fmt.Errorf("codes: send: %w", err)
		}
	}
	return created, nil
}

// CheckCode verifies a code is currently redeemable without consuming it. It
// runs the flow's Validate against req so a would-be redeemer learns the same
// outcome UseCode would give, minus the consume.
func (f *Flow[D, M, Req, Resp]) CheckCode(ctx context.Context, tenancy domain.Tenancy, code string, req Req) (*CheckResult[D, M], error) {
	rec, data, method, err := f.lookup(ctx, tenancy, code)
	if err != nil {
		return nil, err
	}

	if f.Validate != nil {
		if err := f.Validate(ctx, tenancy, method, data, req); err != nil {
			if f.SurfaceValidateErrors {
				return nil, err
			}
			return nil, ErrInvalidCode
		}
	}

	return &CheckResult[D, M]{
		ID:        rec.ID,
		Data:      data,
		Method:    method,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

// UseCode redeems a code: Validate (non-consuming), atomic consume, then
// Handler. Concurrent redeemers of the same code race on the consume step and
// all but one receive ErrInvalidCode.
func (f *Flow[D, M, Req, Resp]) UseCode(ctx context.Context, tenancy domain.Tenancy, code string, req Req) (Resp, error) {
	var zero Resp

	rec, data, method, err := f.lookup(ctx, tenancy, code)
	if err != nil {
		return zero, err
	}

	if f.Validate != nil {
		if err := f.Validate(ctx, tenancy, method, data, req); err != nil {
			if f.SurfaceValidateErrors {
				return zero, err
			}
			return zero, ErrInvalidCode
		}
	}

	consumed, err := f.Store.ConsumeCode(ctx, rec.ID, time.Now().UTC())
	if err != nil {
		return zero, fmt.Errorf("codes: consume: %w", err)
	}
	if !consumed {
		return zero, ErrInvalidCode
	}

	return f.Handler(ctx, tenancy, method, data, req)
}

// lookup resolves and vets a submitted code. Every failure mode maps to
// ErrInvalidCode.
func (f *Flow[D, M, Req, Resp]) lookup(ctx context.Context, tenancy domain.Tenancy, code string) (domain.VerificationCode, D, M, error) {
	var (
		data   D
		method M
	)

	code = cryptox.NormalizeCode(code)
	if len(code) != codeLength {
		return domain.VerificationCode{}, data, method, ErrInvalidCode
	}

	rec, err := f.Store.GetCodeByTypeAndHash(ctx, f.Type, cryptox.FingerprintToken(code))
	if err != nil {
		return domain.VerificationCode{}, data, method, ErrInvalidCode
	}

	if rec.TenancyID != tenancy.ID {
		return domain.VerificationCode{}, data, method, ErrInvalidCode
	}
	if rec.IsUsed() || rec.IsExpired(time.Now().UTC()) {
		return domain.VerificationCode{}, data, method, ErrInvalidCode
	}

	if err := json.Unmarshal(rec.Data, &data); err != nil {
		return domain.VerificationCode{}, data, method, fmt.Errorf("codes: unmarshal data: %w", err)
	}
	if err := json.Unmarshal(rec.Method, &method); err != nil {
		return domain.VerificationCode{}, data, method, fmt.Errorf("codes: unmarshal method: %w", err)
	}

	return rec, data, method, nil
}
