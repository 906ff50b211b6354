// backend-go/internal/config/config.go
package config

import (
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel string
	Storage  StorageConfig
	Report   ReportConfig
	Mail     MailConfig
	Cache    CacheConfig
	History  HistoryConfig
	Server   ServerConfig
}

type StorageConfig struct {
	Driver          string
	Endpoint        string
	AccessKey       string
	SecretKey       string
	Region          string
	UseSSL          bool
	MaxAttempts     int
	Bucket          string
	CredentialsJSON string
	// LocalDir seeds the memory driver with the files below it.
	LocalDir string
}

type ReportConfig struct {
	Bucket          string
	Key             string
	WorkDir         string
	HTMLFilename    string
	Prefix          string
	SkipPrefix      string
	DateMarker      string
	MaxDepth        int
	Strategy        string
	AppendMode      string
	Segment         string
	XLSXEnabled     bool
	AttachmentMatch string
}

type MailConfig struct {
	Enabled      bool
	Host         string
	Port         int
	Username     string
	Password     string
	TLSPolicy    string
	From         string
	To           []string
	InlineReport bool
}

type CacheConfig struct {
	Enabled            bool
	RedisURL           string
	RedisHost          string
	RedisPort          string
	RedisPassword      string
	RedisDB            int
	SnapshotTTLSeconds int
}

type HistoryConfig struct {
	Enabled     bool
	DatabaseURL string
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

var (
	once     sync.Once
	instance *Config
)

// Load reads .env (if present) and the process environment once and returns
// the shared configuration.
func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		instance = FromViper(viper.GetViper())
	})

	return instance
}

// FromViper builds a Config from v after registering defaults and
// environment binding on it.
func FromViper(v *viper.Viper) *Config {
	setDefaults(v)

	// Read from environment variables
	v.AutomaticEnv()

	reportBucket := v.GetString("REPORT_BUCKET")
	if reportBucket == "" {
		reportBucket = v.GetString("STORAGE_BUCKET")
	}

	return &Config{
		LogLevel: v.GetString("LOG_LEVEL"),
		Storage: StorageConfig{
			Driver:          strings.ToLower(v.GetString("STORAGE_DRIVER")),
			Endpoint:        v.GetString("STORAGE_ENDPOINT"),
			AccessKey:       v.GetString("STORAGE_ACCESS_KEY"),
			SecretKey:       v.GetString("STORAGE_SECRET_KEY"),
			Region:          v.GetString("STORAGE_REGION"),
			UseSSL:          v.GetBool("STORAGE_USE_SSL"),
			MaxAttempts:     v.GetInt("STORAGE_MAX_ATTEMPTS"),
			Bucket:          v.GetString("STORAGE_BUCKET"),
			CredentialsJSON: v.GetString("GCS_CREDENTIALS_JSON"),
			LocalDir:        v.GetString("STORAGE_LOCAL_DIR"),
		},
		Report: ReportConfig{
			Bucket:          reportBucket,
			Key:             v.GetString("REPORT_KEY"),
			WorkDir:         v.GetString("REPORT_WORK_DIR"),
			HTMLFilename:    v.GetString("REPORT_HTML_FILENAME"),
			Prefix:          v.GetString("REPORT_PREFIX"),
			SkipPrefix:      v.GetString("REPORT_SKIP_PREFIX"),
			DateMarker:      v.GetString("REPORT_DATE_MARKER"),
			MaxDepth:        v.GetInt("REPORT_MAX_DEPTH"),
			Strategy:        strings.ToLower(v.GetString("REPORT_STRATEGY")),
			AppendMode:      strings.ToLower(v.GetString("REPORT_APPEND_MODE")),
			Segment:         v.GetString("REPORT_SEGMENT"),
			XLSXEnabled:     v.GetBool("REPORT_XLSX_ENABLED"),
			AttachmentMatch: v.GetString("REPORT_ATTACHMENT_MATCH"),
		},
		Mail: MailConfig{
			Enabled:      v.GetBool("MAIL_ENABLED"),
			Host:         v.GetString("SMTP_HOST"),
			Port:         v.GetInt("SMTP_PORT"),
			Username:     v.GetString("SMTP_USERNAME"),
			Password:     v.GetString("SMTP_PASSWORD"),
			TLSPolicy:    strings.ToLower(v.GetString("SMTP_TLS_POLICY")),
			From:         v.GetString("MAIL_FROM"),
			To:           splitList(v.GetStringSlice("MAIL_TO")),
			InlineReport: v.GetBool("MAIL_INLINE_REPORT"),
		},
		Cache: CacheConfig{
			Enabled:            v.GetBool("CACHE_ENABLED"),
			RedisURL:           v.GetString("REDIS_URL"),
			RedisHost:          v.GetString("REDIS_HOST"),
			RedisPort:          v.GetString("REDIS_PORT"),
			RedisPassword:      v.GetString("REDIS_PASSWORD"),
			RedisDB:            v.GetInt("REDIS_DB"),
			SnapshotTTLSeconds: v.GetInt("CACHE_SNAPSHOT_TTL_SECONDS"),
		},
		History: HistoryConfig{
			Enabled:     v.GetBool("HISTORY_ENABLED"),
			DatabaseURL: v.GetString("DATABASE_URL"),
		},
		Server: ServerConfig{
			Port:           v.GetString("SERVER_PORT"),
			Mode:           v.GetString("SERVER_MODE"),
			ReadTimeout:    v.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout:   v.GetInt("SERVER_WRITE_TIMEOUT"),
			AllowedOrigins: v.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
		},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("STORAGE_DRIVER", "s3")
	v.SetDefault("STORAGE_ENDPOINT", "")
	v.SetDefault("STORAGE_ACCESS_KEY", "")
	v.SetDefault("STORAGE_SECRET_KEY", "")
	v.SetDefault("STORAGE_REGION", "us-east-1")
	v.SetDefault("STORAGE_USE_SSL", true)
	v.SetDefault("STORAGE_MAX_ATTEMPTS", 3)
	v.SetDefault("STORAGE_BUCKET", "")
	v.SetDefault("GCS_CREDENTIALS_JSON", "")
	v.SetDefault("STORAGE_LOCAL_DIR", "")

	v.SetDefault("REPORT_BUCKET", "")
	v.SetDefault("REPORT_KEY", "space_consumption/output/html/s3_output.html")
	v.SetDefault("REPORT_WORK_DIR", "./data/report")
	v.SetDefault("REPORT_HTML_FILENAME", "s3_output.html")
	v.SetDefault("REPORT_PREFIX", "")
	v.SetDefault("REPORT_SKIP_PREFIX", "")
	v.SetDefault("REPORT_DATE_MARKER", "date")
	v.SetDefault("REPORT_MAX_DEPTH", 64)
	v.SetDefault("REPORT_STRATEGY", "relist")
	v.SetDefault("REPORT_APPEND_MODE", "splice")
	v.SetDefault("REPORT_SEGMENT", "S3_SIZE")
	v.SetDefault("REPORT_XLSX_ENABLED", true)
	v.SetDefault("REPORT_ATTACHMENT_MATCH", "space_usage")

	v.SetDefault("MAIL_ENABLED", false)
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 0)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_TLS_POLICY", "opportunistic")
	v.SetDefault("MAIL_FROM", "")
	v.SetDefault("MAIL_TO", []string{})
	v.SetDefault("MAIL_INLINE_REPORT", false)

	v.SetDefault("CACHE_ENABLED", false)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_HOST", "127.0.0.1")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_SNAPSHOT_TTL_SECONDS", 7*24*60*60)

	v.SetDefault("HISTORY_ENABLED", false)
	v.SetDefault("DATABASE_URL", "")

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_MODE", "release")
	v.SetDefault("SERVER_READ_TIMEOUT", 15)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 15)
	v.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})
}

// splitList accepts both repeated values and a single comma separated value,
// since env vars only ever carry the latter.
func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}
