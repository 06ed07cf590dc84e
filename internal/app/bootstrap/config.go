// internal/app/bootstrap/config.go
package bootstrap

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/dalemusser/stratadrive/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

const (
	storageLocal = "local"
	storageS3    = "s3"
)

// appConfigKeys defines the configuration keys for StrataDrive.
//   - Config files: mongo_uri, storage_type, etc.
//   - Environment variables: STRATADRIVE_MONGO_URI, STRATADRIVE_STORAGE_TYPE, etc.
//   - Command-line flags: --mongo_uri, --storage_type, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "strata_drive", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	// Identity
	{Name: "auth_jwt_secret", Default: "", Desc: "HS256 secret used to verify bearer tokens (required)"},
	{Name: "auth_issuer", Default: "", Desc: "Expected iss claim; also prefixes webhook token identifiers"},
	{Name: "auth_audience", Default: "", Desc: "Expected aud claim (blank skips the check)"},
	{Name: "auth_leeway", Default: "30s", Desc: "Clock skew allowed when checking exp/nbf"},
	{Name: "webhook_secret", Default: "", Desc: "Identity provider webhook signing secret (blank disables the webhook)"},

	// Blob storage
	{Name: "storage_type", Default: storageLocal, Desc: "Storage backend: 'local' or 's3'"},
	{Name: "storage_local_path", Default: "./uploads/blobs", Desc: "Local storage path for blobs"},
	{Name: "public_base_url", Default: "http://localhost:8080", Desc: "Public base URL used in local signed blob URLs"},
	{Name: "blob_signing_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "HMAC key for local signed blob URLs"},
	{Name: "presign_expiry", Default: "15m", Desc: "Lifetime of upload/download URLs"},
	{Name: "max_upload_bytes", Default: 100 << 20, Desc: "Largest blob accepted by the local backend"},

	// S3
	{Name: "storage_s3_region", Default: "", Desc: "AWS region for S3"},
	{Name: "storage_s3_bucket", Default: "", Desc: "S3 bucket name"},
	{Name: "storage_s3_prefix", Default: "blobs/", Desc: "S3 key prefix"},
	{Name: "storage_s3_endpoint", Default: "", Desc: "S3-compatible endpoint URL (blank for AWS)"},
	{Name: "storage_s3_access_key_id", Default: "", Desc: "Static access key (blank uses the default credential chain)"},
	{Name: "storage_s3_secret_access_key", Default: "", Desc: "Static secret key"},
	{Name: "storage_s3_max_retries", Default: 3, Desc: "Max attempts per S3 request"},

	// API rate limit
	{Name: "rate_limit_requests", Default: 300, Desc: "Requests per caller per window on the JSON API (0 disables)"},
	{Name: "rate_limit_window", Default: "1m", Desc: "Rate limit window"},
	{Name: "trust_proxy_headers", Default: false, Desc: "Key anonymous callers by X-Forwarded-For/X-Real-IP (only behind a proxy that sets them)"},

	// Reaper
	{Name: "reaper_interval", Default: "1m", Desc: "How often trashed files are permanently removed"},
	{Name: "reaper_concurrency", Default: 4, Desc: "Trash entries processed in parallel per sweep"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// Precedence is flags > env > files > defaults. Operation timeouts are
// read from TIMEOUT_* here so they apply from ConnectDB onwards.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "STRATADRIVE", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	if n := timeouts.ConfigureFromEnv(); n > 0 {
		logger.Info("operation timeouts overridden from env", zap.Int("count", n))
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		AuthJWTSecret: appValues.String("auth_jwt_secret"),
		AuthIssuer:    appValues.String("auth_issuer"),
		AuthAudience:  appValues.String("auth_audience"),
		AuthLeeway:    appValues.Duration("auth_leeway", 30*time.Second),
		WebhookSecret: appValues.String("webhook_secret"),

		StorageType:      appValues.String("storage_type"),
		StorageLocalPath: appValues.String("storage_local_path"),
		PublicBaseURL:    appValues.String("public_base_url"),
		BlobSigningKey:   appValues.String("blob_signing_key"),
		PresignExpiry:    appValues.Duration("presign_expiry", 15*time.Minute),
		MaxUploadBytes:   int64(appValues.Int("max_upload_bytes")),

		StorageS3Region:          appValues.String("storage_s3_region"),
		StorageS3Bucket:          appValues.String("storage_s3_bucket"),
		StorageS3Prefix:          appValues.String("storage_s3_prefix"),
		StorageS3Endpoint:        appValues.String("storage_s3_endpoint"),
		StorageS3AccessKeyID:     appValues.String("storage_s3_access_key_id"),
		StorageS3SecretAccessKey: appValues.String("storage_s3_secret_access_key"),
		StorageS3MaxRetries:      appValues.Int("storage_s3_max_retries"),

		RateLimitRequests: appValues.Int("rate_limit_requests"),
		RateLimitWindow:   appValues.Duration("rate_limit_window", time.Minute),
		TrustProxyHeaders: appValues.Bool("trust_proxy_headers"),

		ReaperInterval:    appValues.Duration("reaper_interval", time.Minute),
		ReaperConcurrency: appValues.Int("reaper_concurrency"),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// The Mongo URI is checked here to catch typos before connecting. The
// remaining checks depend on which storage backend is selected.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	return validateApp(appCfg)
}

func validateApp(c AppConfig) error {
	if c.AuthJWTSecret == "" {
		return errors.New("auth_jwt_secret is required")
	}
	if c.WebhookSecret != "" && c.AuthIssuer == "" {
		return errors.New("webhook_secret requires auth_issuer so webhook principals match token identities")
	}
	if c.ReaperInterval <= 0 {
		return fmt.Errorf("reaper_interval must be positive, got %s", c.ReaperInterval)
	}
	if c.RateLimitRequests > 0 && c.RateLimitWindow <= 0 {
		return fmt.Errorf("rate_limit_window must be positive, got %s", c.RateLimitWindow)
	}
	if c.PresignExpiry <= 0 {
		return fmt.Errorf("presign_expiry must be positive, got %s", c.PresignExpiry)
	}

	switch c.StorageType {
	case storageLocal:
		if c.StorageLocalPath == "" {
			return errors.New("storage_local_path is required for local storage")
		}
		if len(c.BlobSigningKey) < 32 {
			return errors.New("blob_signing_key must be at least 32 bytes")
		}
		u, err := url.Parse(c.PublicBaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("public_base_url must be an absolute URL, got %q", c.PublicBaseURL)
		}
		if c.MaxUploadBytes <= 0 {
			return errors.New("max_upload_bytes must be positive")
		}
	case storageS3:
		if c.StorageS3Region == "" || c.StorageS3Bucket == "" {
			return errors.New("storage_s3_region and storage_s3_bucket are required for s3 storage")
		}
		if (c.StorageS3AccessKeyID == "") != (c.StorageS3SecretAccessKey == "") {
			return errors.New("storage_s3_access_key_id and storage_s3_secret_access_key must be set together")
		}
	default:
		return fmt.Errorf("storage_type must be %q or %q, got %q", storageLocal, storageS3, c.StorageType)
	}
	return nil
}
