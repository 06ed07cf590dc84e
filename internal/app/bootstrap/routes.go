// internal/app/bootstrap/routes.go
package bootstrap

import (
	"errors"
	"net/http"

	blobsfeature "github.com/dalemusser/stratadrive/internal/app/features/blobs"
	filesfeature "github.com/dalemusser/stratadrive/internal/app/features/files"
	healthfeature "github.com/dalemusser/stratadrive/internal/app/features/health"
	identityhooksfeature "github.com/dalemusser/stratadrive/internal/app/features/identityhooks"
	"github.com/dalemusser/stratadrive/internal/app/system/blob"
	"github.com/dalemusser/stratadrive/internal/app/system/metrics"
	"github.com/dalemusser/stratadrive/internal/app/system/ratelimit"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after Startup, so deps.Runtime is populated.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	if deps.Runtime == nil || deps.Runtime.Vault == nil {
		return nil, errors.New("build handler: runtime not started")
	}
	return newRouter(appCfg, deps.MongoClient, deps.Runtime, logger), nil
}

func newRouter(appCfg AppConfig, client *mongo.Client, rt *Runtime, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()

	// Operational endpoints
	var checks []healthfeature.Dependency
	if client != nil {
		checks = append(checks, healthfeature.Database(client))
	}
	if c, ok := rt.Blobs.(blob.Checker); ok {
		checks = append(checks, healthfeature.Storage(c.Check))
	}
	r.Mount("/health", healthfeature.Routes(healthfeature.NewHandler(appCfg.StorageType, logger, checks...)))
	r.Handle("/metrics", metrics.Handler(rt.Registry))

	// Signed-URL blob routes carry their own authorization in the query.
	if rt.Local != nil {
		blobsHandler := blobsfeature.NewHandler(rt.Local, appCfg.MaxUploadBytes, logger)
		r.Mount("/blobs", blobsfeature.Routes(blobsHandler))
	}

	// Provider webhooks are authenticated by signature, not bearer token.
	if appCfg.WebhookSecret != "" {
		hooks := identityhooksfeature.NewHandler(
			rt.Principals,
			appCfg.AuthIssuer,
			identityhooksfeature.DecodeSecret(appCfg.WebhookSecret),
			logger,
		)
		r.Mount("/webhooks", identityhooksfeature.Routes(hooks))
	} else {
		logger.Warn("webhook_secret not set; identity webhook disabled")
	}

	// JSON API. LoadIdentity attaches the bearer identity when present;
	// individual routes decide whether one is required.
	var limiter *ratelimit.Limiter
	if appCfg.RateLimitRequests > 0 {
		limiter = ratelimit.New(appCfg.RateLimitRequests, appCfg.RateLimitWindow)
	}
	filesHandler := filesfeature.NewHandler(rt.Vault, logger)
	r.Group(func(api chi.Router) {
		api.Use(rt.Verifier.LoadIdentity(logger))
		api.Use(ratelimit.PerCaller(limiter, appCfg.TrustProxyHeaders, logger))
		api.Mount("/orgs", filesfeature.OrgRoutes(filesHandler))
		api.Mount("/files", filesfeature.FileRoutes(filesHandler))
	})

	return r
}
