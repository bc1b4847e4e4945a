package shared

import "context"

// Tenant identifies the already-authenticated company and actor of a request.
// Core operations receive it explicitly; it is never read from request bodies.
type Tenant struct {
	CompanyID int64
	ActorID   int64
}

// Validate rejects an unresolved tenant.
func (t Tenant) Validate() error {
	if t.CompanyID <= 0 {
		return Invalid("company_id", "tenant not resolved")
	}
	return nil
}

type tenantContextKey struct{}

// ContextWithTenant stores the resolved tenant in context for HTTP handlers.
func ContextWithTenant(ctx context.Context, tenant Tenant) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tenant)
}

// TenantFromContext extracts the tenant placed by the auth middleware.
func TenantFromContext(ctx context.Context) (Tenant, bool) {
	tenant, ok := ctx.Value(tenantContextKey{}).(Tenant)
	return tenant, ok
}
