package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cimiento/cimiento/internal/platform/httpx"
	"github.com/cimiento/cimiento/internal/shared"
)

// Middleware resolves the bearer token into a tenant on the request context.
func Middleware(service *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			credential, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || credential == "" {
				httpx.RespondError(w, shared.ErrInvalidCredentials)
				return
			}
			tenant, err := service.Authenticate(r.Context(), credential)
			if err != nil {
				if !errors.Is(err, shared.ErrInvalidCredentials) {
					logger.Error("authenticate", slog.String("path", r.URL.Path), slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithTenant(r.Context(), tenant)))
		})
	}
}
