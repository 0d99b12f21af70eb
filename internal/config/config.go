package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds everything the sync pipeline needs, loaded once at startup
// and passed explicitly to each component.
type Config struct {
	// SP-API / LWA credentials
	RefreshToken string
	ClientID     string
	ClientSecret string
	LWAAppID     string
	AWSAccessKey string
	AWSSecretKey string
	RoleARN      string

	// Endpoint is the SP-API base URL (defaults to the NA production host).
	Endpoint string
	// LWAEndpoint is the Login with Amazon token URL.
	LWAEndpoint string

	// PostgreSQL connection parameters
	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string

	// ArchiveBucket, when set, enables archiving raw event pages to GCS.
	ArchiveBucket string

	// BigQueryProject/BigQueryDataset, when both set, enable mirroring newly
	// loaded transactions into BigQuery for analytics.
	BigQueryProject string
	BigQueryDataset string

	LogLevel       string
	SyncWindowDays int
}

// Load reads configuration from a .env file (if present) and the environment.
// Missing credentials are not validated here; they surface at first use.
func Load() Config {
	// A missing .env file just means we rely on the OS environment.
	_ = godotenv.Load()

	return Config{
		RefreshToken: os.Getenv("SP_API_REFRESH_TOKEN"),
		ClientID:     os.Getenv("SP_API_CLIENT_ID"),
		ClientSecret: os.Getenv("SP_API_CLIENT_SECRET"),
		LWAAppID:     os.Getenv("SP_API_LWA_APP_ID"),
		AWSAccessKey: os.Getenv("SP_API_AWS_ACCESS_KEY"),
		AWSSecretKey: os.Getenv("SP_API_AWS_SECRET_KEY"),
		RoleARN:      os.Getenv("SP_API_ROLE_ARN"),

		Endpoint:    getEnv("SP_API_ENDPOINT", "https://sellingpartnerapi-na.amazon.com"),
		LWAEndpoint: getEnv("SP_API_LWA_ENDPOINT", "https://api.amazon.com/auth/o2/token"),

		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBName:     getEnv("DB_NAME", "finance"),

		ArchiveBucket:   os.Getenv("ARCHIVE_BUCKET"),
		BigQueryProject: os.Getenv("BIGQUERY_PROJECT"),
		BigQueryDataset: getEnv("BIGQUERY_DATASET", "finance"),

		LogLevel:       getEnv("LOG_LEVEL", "info"),
		SyncWindowDays: getInt("SYNC_WINDOW_DAYS", 7),
	}
}

// DSN builds the PostgreSQL connection string from the DB_* parameters.
func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// MirrorEnabled reports whether the BigQuery analytics mirror is configured.
func (c Config) MirrorEnabled() bool {
	return c.BigQueryProject != "" && c.BigQueryDataset != ""
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
