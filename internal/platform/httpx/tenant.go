package httpx

import (
	"net/http"
	"time"

	"github.com/cimiento/cimiento/internal/shared"
)

// Tenant returns the tenant attached by the auth middleware.
func Tenant(r *http.Request) (shared.Tenant, error) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok || tenant.CompanyID <= 0 {
		return shared.Tenant{}, ErrUnauthorized
	}
	return tenant, nil
}

// QueryDate parses an optional YYYY-MM-DD query parameter.
func QueryDate(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, shared.Invalid(name, "expected YYYY-MM-DD")
	}
	return t, nil
}
