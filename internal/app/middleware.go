package app

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/aegisfm/aegisfm/internal/observability"
	"github.com/aegisfm/aegisfm/internal/shared"
)

// Identity headers set by the upstream authentication gateway. The gateway
// terminates tokens; by the time a request reaches this service the identity
// is plain data.
const (
	HeaderCompanyID = "X-Company-ID"
	HeaderActorID   = "X-Actor-ID"
	HeaderDeviceID  = "X-Device-ID"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
}

// ActorContextMiddleware resolves the forwarded identity headers into a
// shared.ActorContext once per request.
func ActorContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := shared.ActorContext{Kind: shared.ActorKindUser}
		if v := r.Header.Get(HeaderCompanyID); v != "" {
			actor.CompanyID, _ = strconv.ParseInt(v, 10, 64)
		}
		if v := r.Header.Get(HeaderActorID); v != "" {
			actor.ActorID, _ = strconv.ParseInt(v, 10, 64)
		}
		if v := r.Header.Get(HeaderDeviceID); v != "" {
			actor.DeviceID, _ = strconv.ParseInt(v, 10, 64)
			if actor.DeviceID != 0 {
				actor.Kind = shared.ActorKindDevice
			}
		}
		ctx := shared.ContextWithActor(r.Context(), actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// MiddlewareStack installs the Aegis middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		FeaturePolicy:         "none",
		ContentSecurityPolicy: "default-src 'self'",
		SSLRedirect:           cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
	})

	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		ActorContextMiddleware,
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
		middleware.Compress(5),
		httprate.Limit(120, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, func(next http.Handler) http.Handler {
			return cfg.Metrics.Middleware(next)
		})
	}
	return middlewares
}
