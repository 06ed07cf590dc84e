// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"strings"

	favouritestore "github.com/dalemusser/stratadrive/internal/app/store/favourites"
	filestore "github.com/dalemusser/stratadrive/internal/app/store/files"
	metricsstore "github.com/dalemusser/stratadrive/internal/app/store/metrics"
	principalstore "github.com/dalemusser/stratadrive/internal/app/store/principals"
	"github.com/dalemusser/stratadrive/internal/app/system/access"
	"github.com/dalemusser/stratadrive/internal/app/system/auth"
	"github.com/dalemusser/stratadrive/internal/app/system/blob"
	"github.com/dalemusser/stratadrive/internal/app/system/metrics"
	"github.com/dalemusser/stratadrive/internal/app/system/reaper"
	"github.com/dalemusser/stratadrive/internal/app/system/tasks"
	"github.com/dalemusser/stratadrive/internal/app/system/timeouts"
	"github.com/dalemusser/stratadrive/internal/app/system/workers"
	"github.com/dalemusser/stratadrive/internal/app/vault"
	"github.com/dalemusser/waffle/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Runtime is everything Startup builds that outlives the hook.
type Runtime struct {
	Principals *principalstore.Store
	Files      *filestore.Store
	Favourites *favouritestore.Store
	Vault      *vault.Service
	Verifier   *auth.Verifier

	Blobs blob.Store
	// Local is the same backend as Blobs when storage_type is "local",
	// nil otherwise. The blob routes are mounted only when it is set.
	Local *blob.Local

	Registry  *prometheus.Registry
	Reaper    *reaper.Reaper
	Scheduler *workers.Scheduler
}

// Startup builds the stores, services and blob backend, then starts the
// background scheduler. It runs after EnsureSchema and before BuildHandler.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if deps.Runtime == nil {
		return fmt.Errorf("startup: DBDeps.Runtime not initialised")
	}

	blobs, local, err := buildBlobStore(ctx, appCfg)
	if err != nil {
		logger.Error("blob store init failed", zap.String("storage_type", appCfg.StorageType), zap.Error(err))
		return err
	}

	rt, err := buildRuntime(deps.MongoDatabase, appCfg, blobs, logger)
	if err != nil {
		return err
	}
	rt.Local = local
	*deps.Runtime = *rt

	deps.Runtime.Scheduler.Start()
	logger.Info("startup complete",
		zap.String("storage_type", appCfg.StorageType),
		zap.Duration("reaper_interval", appCfg.ReaperInterval))
	return nil
}

// buildRuntime wires everything except the blob backend, which the caller
// provides. The scheduler is built but not started.
func buildRuntime(db *mongo.Database, appCfg AppConfig, blobs blob.Store, logger *zap.Logger) (*Runtime, error) {
	verifier, err := auth.NewVerifier(auth.VerifierConfig{
		Secret:   []byte(appCfg.AuthJWTSecret),
		Issuer:   appCfg.AuthIssuer,
		Audience: appCfg.AuthAudience,
		Leeway:   appCfg.AuthLeeway,
	})
	if err != nil {
		return nil, err
	}

	principals := principalstore.New(db)
	files := filestore.New(db)
	favs := favouritestore.New(db)
	resolver := access.NewResolver(principals, files)

	reg := metrics.NewRegistry()
	reg.MustRegister(metrics.NewInventory(func(ctx context.Context) map[string]int64 {
		return metricsstore.FetchCounts(ctx, db).ByKind()
	}, timeouts.Short()))
	rp := reaper.New(files, favs, blobs, logger, reaper.Config{
		Concurrency: appCfg.ReaperConcurrency,
		Metrics:     metrics.NewReaper(reg),
	})

	return &Runtime{
		Principals: principals,
		Files:      files,
		Favourites: favs,
		Vault:      vault.New(resolver, principals, files, favs, blobs, logger),
		Verifier:   verifier,
		Blobs:      blobs,
		Registry:   reg,
		Reaper:     rp,
		Scheduler:  workers.NewScheduler(logger, tasks.TrashReapJob(rp, logger, appCfg.ReaperInterval)),
	}, nil
}

func buildBlobStore(ctx context.Context, appCfg AppConfig) (blob.Store, *blob.Local, error) {
	switch appCfg.StorageType {
	case storageS3:
		s3, err := blob.NewS3(ctx, blob.S3Config{
			Region:          appCfg.StorageS3Region,
			Bucket:          appCfg.StorageS3Bucket,
			Prefix:          appCfg.StorageS3Prefix,
			Endpoint:        appCfg.StorageS3Endpoint,
			AccessKeyID:     appCfg.StorageS3AccessKeyID,
			SecretAccessKey: appCfg.StorageS3SecretAccessKey,
			MaxRetries:      appCfg.StorageS3MaxRetries,
			Expiry:          appCfg.PresignExpiry,
		})
		if err != nil {
			return nil, nil, err
		}
		return s3, nil, nil
	default:
		if err := os.MkdirAll(appCfg.StorageLocalPath, 0o750); err != nil {
			return nil, nil, fmt.Errorf("create storage dir: %w", err)
		}
		fs := afero.NewBasePathFs(afero.NewOsFs(), appCfg.StorageLocalPath)
		local := newLocalBlobs(fs, appCfg)
		return local, local, nil
	}
}

func newLocalBlobs(fs afero.Fs, appCfg AppConfig) *blob.Local {
	base := strings.TrimRight(appCfg.PublicBaseURL, "/") + "/blobs"
	return blob.NewLocal(fs, base, []byte(appCfg.BlobSigningKey), appCfg.PresignExpiry)
}
