package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/verify/internal/verify/service"
	"github.com/aussiebroadwan/verify/internal/verify/store"
	"github.com/aussiebroadwan/verify/pkg/httpx"
	"github.com/aussiebroadwan/verify/pkg/jwtx"
	"github.com/aussiebroadwan/verify/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store                 store.Store
	TokenService          *service.TokenService
	SignInService         *service.SignInService
	MFAService            *service.MFAService
	UserService           *service.UserService
	ContactChannelService *service.ContactChannelService
}

func NewRouter(
	verifier jwtx.Verifier,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerOTP()
	r.registerMFA()
	r.registerPassword()
	r.registerSessions()
	r.registerContactChannels()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// tenant wraps a handler with tenancy resolution plus any extra middleware.
func (r *Router) tenant(h http.Handler, mws ...httpx.Middleware) http.Handler {
	all := append([]httpx.Middleware{TenancyMiddleware(r.store.Tenancies())}, mws...)
	return httpx.Chain(h, all...)
}

func (r *Router) registerOTP() {
	h := &OTPHandler{SignInService: r.SignInService}

	// Code delivery and redemption sit behind the strict profile; the rate
	// limit is what keeps the six character OTP honest.
	r.Mux.Handle("POST /v1/auth/otp/send-code",
		r.tenant(http.HandlerFunc(h.HandleSendCode),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/otp/sign-in",
		r.tenant(http.HandlerFunc(h.HandleSignIn),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/otp/check-code",
		r.tenant(http.HandlerFunc(h.HandleCheckCode),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerMFA() {
	h := &MFAHandler{MFAService: r.MFAService}

	r.Mux.Handle("POST /v1/auth/mfa/sign-in",
		r.tenant(http.HandlerFunc(h.HandleSignIn),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/mfa/enroll",
		r.tenant(http.HandlerFunc(h.HandleEnroll),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/mfa/confirm",
		r.tenant(http.HandlerFunc(h.HandleConfirm),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("DELETE /v1/auth/mfa",
		r.tenant(http.HandlerFunc(h.HandleDisable),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerPassword() {
	h := &PasswordHandler{UserService: r.UserService}

	r.Mux.Handle("POST /v1/auth/password/sign-in",
		r.tenant(http.HandlerFunc(h.HandleSignIn),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/password/set",
		r.tenant(http.HandlerFunc(h.HandleSet),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/password/update",
		r.tenant(http.HandlerFunc(h.HandleUpdate),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerSessions() {
	h := &SessionsHandler{TokenService: r.TokenService}

	r.Mux.Handle("POST /v1/auth/sessions/refresh",
		r.tenant(http.HandlerFunc(h.HandleRefresh),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("DELETE /v1/auth/sessions/current",
		r.tenant(http.HandlerFunc(h.HandleSignOut),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("DELETE /v1/auth/sessions",
		r.tenant(http.HandlerFunc(h.HandleSignOutAll),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerContactChannels() {
	h := &ContactChannelHandler{ChannelService: r.ContactChannelService}

	r.Mux.Handle("POST /v1/contact-channels/send-verification-code",
		r.tenant(http.HandlerFunc(h.HandleSendCode),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/contact-channels/verify",
		r.tenant(http.HandlerFunc(h.HandleVerify),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store))
}
