// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// Values come from STRATADRIVE_* environment variables, config files, or
// flags (see appConfigKeys). Framework settings such as ports, TLS and
// log level stay in WAFFLE's CoreConfig.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string
	MongoDatabase    string
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Bearer token verification. AuthIssuer must equal the provider's iss
	// claim because it forms the first half of every token identifier.
	AuthJWTSecret string
	AuthIssuer    string
	AuthAudience  string
	AuthLeeway    time.Duration

	// Identity provider webhook signing secret ("whsec_..." or raw).
	// Blank disables /webhooks/identity.
	WebhookSecret string

	// Blob storage
	StorageType      string // "local" or "s3"
	StorageLocalPath string // root directory for the local backend
	PublicBaseURL    string // externally reachable base URL, used for local signed URLs
	BlobSigningKey   string // HMAC key for local signed URLs
	PresignExpiry    time.Duration
	MaxUploadBytes   int64

	// S3 (only used if StorageType is "s3")
	StorageS3Region          string
	StorageS3Bucket          string
	StorageS3Prefix          string
	StorageS3Endpoint        string // S3-compatible endpoint (MinIO, LocalStack)
	StorageS3AccessKeyID     string
	StorageS3SecretAccessKey string
	StorageS3MaxRetries      int

	// Per-caller API rate limit. RateLimitRequests <= 0 disables it.
	RateLimitRequests int
	RateLimitWindow   time.Duration
	TrustProxyHeaders bool // client IP from proxy headers instead of RemoteAddr

	// Trash reaper
	ReaperInterval    time.Duration
	ReaperConcurrency int
}
