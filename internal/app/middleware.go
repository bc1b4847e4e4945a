package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/cimiento/cimiento/internal/observability"
	"github.com/cimiento/cimiento/internal/platform/httpx"
	"github.com/cimiento/cimiento/internal/shared"
)

// IdempotencyHeader carries the client-chosen key of a write request.
const IdempotencyHeader = "Idempotency-Key"

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
}

// MiddlewareStack installs the server-wide middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'",
		SSLRedirect:           cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:         cfg.Config == nil || !cfg.Config.IsProduction(),
	})

	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					cfg.Logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
	}
	if cfg.Config != nil && cfg.Config.RateLimitPerMinute > 0 {
		middlewares = append(middlewares, httprate.Limit(cfg.Config.RateLimitPerMinute, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, cfg.Metrics.Middleware)
	}
	return middlewares
}

// IdempotencyMiddleware claims the Idempotency-Key of write requests for the
// authenticated tenant. A replayed key is rejected with 409 Conflict. The
// claim is released only when the write certainly did not happen, see
// releasable. It must run after authentication.
func IdempotencyMiddleware(store *shared.IdempotencyStore, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyHeader)
			if store == nil || key == "" || !isWrite(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			tenant, err := httpx.Tenant(r)
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			module := moduleOf(r.URL.Path)
			if err := store.CheckAndInsert(r.Context(), tenant.CompanyID, module, key); err != nil {
				if !errors.Is(err, shared.ErrIdempotencyConflict) {
					logger.Error("idempotency claim", slog.String("module", module), slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			if r.Context().Err() == nil && releasable(ww.Status()) {
				if err := store.Delete(context.WithoutCancel(r.Context()), tenant.CompanyID, module, key); err != nil {
					logger.Warn("idempotency release", slog.String("module", module), slog.Any("error", err))
				}
			}
		})
	}
}

// releasable reports whether a response proves nothing was committed: a 4xx
// rejection, or 503 from a transaction that rolled back after exhausting its
// retries. Other 5xx and timeouts leave the outcome unknown, so the key stays
// claimed until its TTL.
func releasable(status int) bool {
	return (status >= http.StatusBadRequest && status < http.StatusInternalServerError) ||
		status == http.StatusServiceUnavailable
}

func isWrite(method string) bool {
	return method == http.MethodPost || method == http.MethodPatch || method == http.MethodPut || method == http.MethodDelete
}

// moduleOf returns the first path segment below /api/v1.
func moduleOf(path string) string {
	rest := strings.TrimPrefix(path, "/api/v1/")
	module, _, _ := strings.Cut(rest, "/")
	if module == "" {
		return "root"
	}
	return module
}
