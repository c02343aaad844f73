package main

import (
	"log/slog"

	"identity-audit/internal/audit"
	"identity-audit/internal/auth"
	"identity-audit/internal/config"
	"identity-audit/internal/httpapi"
	"identity-audit/internal/ratelimit"
	"identity-audit/internal/security"
	"identity-audit/internal/session"
	"identity-audit/internal/store"
	"identity-audit/internal/user"
	"identity-audit/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// appDeps are the I/O-bound collaborators; everything else is built here.
type appDeps struct {
	cfg       config.Config
	log       *slog.Logger
	store     store.Store
	users     user.Repository
	audits    audit.Repository
	sink      audit.Sink
	rateRedis redis.Scripter // nil disables rate limiting
}

func newRouter(d appDeps) (*gin.Engine, error) {
	codec, err := auth.NewCodec(d.cfg.Auth)
	if err != nil {
		return nil, err
	}
	hasher := security.NewHasher(d.cfg.Auth.BcryptCost)

	sessions := session.NewManager(codec, d.store, d.users, hasher)
	userSvc := user.NewService(d.users, hasher, d.store, d.log, user.WithSessionRevoker(sessions))

	auditOpts := []audit.Option{audit.WithLogger(d.log), audit.WithTimeout(d.cfg.Auth.StoreTimeout)}
	if d.sink != nil {
		auditOpts = append(auditOpts, audit.WithSink(d.sink))
	}
	auditSvc := audit.NewService(d.audits, auditOpts...)

	interceptor := audit.NewInterceptor(auditSvc, codec)
	interceptor.Register("user", userSvc.Snapshot)

	r := gin.New()
	// Client IP keys the rate limiter; only listed proxies may set it via headers.
	if err := r.SetTrustedProxies(d.cfg.App.TrustedProxies); err != nil {
		return nil, err
	}
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(d.log))

	deps := routeDeps{
		handlers: httpapi.Handlers{
			Sessions: sessions,
			Users:    userSvc,
			Audits:   auditSvc,
		},
		audit:       interceptor,
		requireAuth: auth.RequireAccessToken(sessions),
	}
	if d.rateRedis != nil {
		deps.authLimiter = ratelimit.New(d.rateRedis, "auth", d.cfg.RateLimit.Max, d.cfg.RateLimit.Window, d.cfg.Auth.StoreTimeout).Middleware()
	}
	registerRoutes(r, deps)
	return r, nil
}
