package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"nftmarket/gateway/middleware"
)

// HealthFunc reports whether the daemon can serve requests.
type HealthFunc func(ctx context.Context) error

type Config struct {
	RPC           http.Handler
	Events        http.Handler
	Health        HealthFunc
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
	// RequiredScopes are demanded from bearer tokens on /rpc.
	RequiredScopes []string
}

// New mounts the marketd endpoints: /healthz, /rpc, /ws and /metrics.
func New(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.CORS))

	obs := cfg.Observability
	if obs == nil {
		obs = middleware.NewObservability(middleware.ObservabilityConfig{}, nil)
	}

	r.With(obs.Middleware("healthz")).Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.Health(ctx); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if cfg.RPC != nil {
		r.Group(func(sr chi.Router) {
			sr.Use(obs.Middleware("rpc"))
			if cfg.RateLimiter != nil {
				sr.Use(cfg.RateLimiter.Middleware("rpc"))
			}
			if cfg.Authenticator != nil {
				sr.Use(cfg.Authenticator.Middleware(cfg.RequiredScopes...))
			}
			sr.Handle("/rpc", cfg.RPC)
		})
	}

	if cfg.Events != nil {
		r.Group(func(sr chi.Router) {
			sr.Use(obs.Middleware("ws"))
			if cfg.RateLimiter != nil {
				sr.Use(cfg.RateLimiter.Middleware("ws"))
			}
			sr.Handle("/ws", cfg.Events)
		})
	}

	r.Handle("/metrics", obs.MetricsHandler())
	return r
}
