package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/aussiebroadwan/verify/internal/verify/domain"
	"github.com/aussiebroadwan/verify/internal/verify/store"
	"github.com/aussiebroadwan/verify/pkg/httpx"
)

// Tenancy selection headers. Every request runs in the context of exactly one
// tenancy; the branch defaults to "main" when the header is absent.
const (
	HeaderProjectID = "X-Project-Id"
	HeaderBranchID  = "X-Branch-Id"

	defaultBranchID = "main"
)

type tenancyCtxKey struct{}

// TenancyFromContext returns the tenancy resolved by TenancyMiddleware.
func TenancyFromContext(ctx context.Context) (domain.Tenancy, bool) {
	t, ok := ctx.Value(tenancyCtxKey{}).(domain.Tenancy)
	return t, ok
}

// TenancyMiddleware resolves the request's tenancy from the project/branch
// headers and rejects requests for unknown tenancies.
func TenancyMiddleware(tenancies store.Tenancies) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			projectID := r.Header.Get(HeaderProjectID)
			if projectID == "" {
				httpx.WriteError(w, http.StatusBadRequest, "missing_project", "the "+HeaderProjectID+" header is required")
				return
			}
			branchID := r.Header.Get(HeaderBranchID)
			if branchID == "" {
				branchID = defaultBranchID
			}

			tenancy, err := tenancies.GetTenancy(r.Context(), projectID, branchID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					httpx.WriteError(w, http.StatusNotFound, "unknown_project", "no such project or branch")
					return
				}
				httpx.WriteError(w, http.StatusInternalServerError, "server_error", "failed to resolve project")
				return
			}

			ctx := context.WithValue(r.Context(), tenancyCtxKey{}, tenancy)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// mustTenancy fetches the tenancy placed by TenancyMiddleware. Handlers are
// only ever registered behind it, so a miss is a wiring bug.
func mustTenancy(r *http.Request) domain.Tenancy {
	t, ok := TenancyFromContext(r.Context())
	if !ok {
		panic("handler registered without TenancyMiddleware")
	}
	return t
}
