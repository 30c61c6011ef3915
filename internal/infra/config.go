package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	SequenceStrategyCounter = "counter"
	SequenceStrategyScan    = "scan"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	JWTSecret   string
	LogFile     string
	GeoIPDBPath string

	CORSAllowedOrigins []string
	RateLimitPerMin    int

	ReplicateAPIToken string
	ReplicateBaseURL  string
	ReplicateModel    string
	JobRequestTimeout time.Duration
	PollInterval      time.Duration
	PollTimeout       time.Duration
	PollMaxAttempts   int

	BlobBucketURL        string
	StorageBucket        string
	StoragePublicBaseURL string

	SequenceStrategy string

	KafkaBrokers []string
	KafkaTopic   string

	ReconcileInterval  time.Duration
	ReconcileDeadline  time.Duration
	ReconcileBatchSize int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               port,
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		LogFile:            os.Getenv("LOG_FILE"),
		GeoIPDBPath:        os.Getenv("GEOIP_DB_PATH"),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		ReplicateAPIToken:  strings.TrimSpace(os.Getenv("REPLICATE_API_TOKEN")),
		ReplicateBaseURL:   getEnv("REPLICATE_BASE_URL", "https://api.replicate.com/v1"),
		ReplicateModel:     getEnv("REPLICATE_MODEL", "google/nano-banana-pro"),
		JobRequestTimeout:  time.Second * time.Duration(getEnvInt("JOB_REQUEST_TIMEOUT_SECONDS", 60)),
		PollInterval:       time.Millisecond * time.Duration(getEnvInt("POLL_INTERVAL_MS", 2000)),
		PollTimeout:        time.Second * time.Duration(getEnvInt("POLL_TIMEOUT_SECONDS", 300)),
		PollMaxAttempts:    getEnvInt("POLL_MAX_ATTEMPTS", 0),
		BlobBucketURL:      strings.TrimSpace(os.Getenv("BLOB_BUCKET_URL")),
		StorageBucket:      getEnv("STORAGE_BUCKET", "character-images"),
		SequenceStrategy:   strings.ToLower(getEnv("SEQUENCE_STRATEGY", SequenceStrategyCounter)),
		KafkaBrokers:       getEnvList("KAFKA_BROKERS"),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "character-images"),
		ReconcileInterval:  time.Second * time.Duration(getEnvInt("RECONCILE_INTERVAL_SECONDS", 60)),
		ReconcileDeadline:  time.Minute * time.Duration(getEnvInt("RECONCILE_DEADLINE_MINUTES", 30)),
		ReconcileBatchSize: getEnvInt("RECONCILE_BATCH_SIZE", 100),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 360)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}
	cfg.StoragePublicBaseURL = strings.TrimRight(getEnv("STORAGE_PUBLIC_BASE_URL", "http://localhost:"+port+"/static/"+cfg.StorageBucket), "/")

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	// cmd/api and cmd/reconciler must share one bucket, so outside development
	// the bucket has to be named and cannot be process-local.
	switch {
	case cfg.BlobBucketURL == "" && cfg.IsDevelopment():
		cfg.BlobBucketURL = defaultDevBucketURL()
	case cfg.BlobBucketURL == "":
		return nil, fmt.Errorf("BLOB_BUCKET_URL is required")
	case strings.HasPrefix(cfg.BlobBucketURL, "mem://") && !cfg.IsDevelopment():
		return nil, fmt.Errorf("BLOB_BUCKET_URL mem:// is only allowed in development")
	}

	switch cfg.SequenceStrategy {
	case SequenceStrategyCounter, SequenceStrategyScan:
	default:
		return nil, fmt.Errorf("SEQUENCE_STRATEGY must be %q or %q", SequenceStrategyCounter, SequenceStrategyScan)
	}

	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL_MS must be positive")
	}

	return cfg, nil
}

// IsDevelopment reports whether verbose error details may be exposed.
func (c *Config) IsDevelopment() bool {
	return c != nil && c.AppEnv == "development"
}

// defaultDevBucketURL points at a directory under the system temp dir so local
// api and reconciler processes see the same files.
func defaultDevBucketURL() string {
	dir := filepath.ToSlash(filepath.Join(os.TempDir(), "character-images"))
	if !strings.HasPrefix(dir, "/") {
		dir = "/" + dir
	}
	return "file://" + dir + "?create_dir=true"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
