package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Uploads  UploadsConfig
	Mail     MailConfig
	Reset    PasswordResetConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
	Issuer            string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// UploadsConfig controls assignment attachment and submission file handling.
type UploadsConfig struct {
	StorageDir            string
	MaxFileSizeBytes      int64
	AllowedFormats        []string
	MaxFilesPerSubmission int
	DownloadLinkSecret    string
	DownloadLinkTTL       time.Duration
}

// MailConfig configures outbound email delivery.
type MailConfig struct {
	SendgridKey   string
	FromName      string
	FromEmail     string
	WorkerCount   int
	WorkerRetries int
}

// PasswordResetConfig governs the forgot-password code flow.
type PasswordResetConfig struct {
	CodeTTL time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
		Issuer:            v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	maxUploadSize := v.GetInt64("UPLOADS_MAX_FILE_SIZE")
	if maxUploadSize <= 0 {
		maxUploadSize = 10 * 1024 * 1024
	}
	maxFiles := v.GetInt("UPLOADS_MAX_FILES_PER_SUBMISSION")
	if maxFiles <= 0 {
		maxFiles = 5
	}
	cfg.Uploads = UploadsConfig{
		StorageDir:            v.GetString("UPLOADS_STORAGE_DIR"),
		MaxFileSizeBytes:      maxUploadSize,
		AllowedFormats:        splitAndTrim(v.GetString("UPLOADS_ALLOWED_FORMATS")),
		MaxFilesPerSubmission: maxFiles,
		DownloadLinkSecret:    v.GetString("UPLOADS_DOWNLOAD_LINK_SECRET"),
		DownloadLinkTTL:       parseDuration(v.GetString("UPLOADS_DOWNLOAD_LINK_TTL"), 30*time.Minute),
	}

	cfg.Mail = MailConfig{
		SendgridKey:   v.GetString("SENDGRID_API_KEY"),
		FromName:      v.GetString("MAIL_FROM_NAME"),
		FromEmail:     v.GetString("MAIL_FROM_EMAIL"),
		WorkerCount:   v.GetInt("MAIL_WORKER_COUNT"),
		WorkerRetries: v.GetInt("MAIL_WORKER_RETRIES"),
	}

	cfg.Reset = PasswordResetConfig{
		CodeTTL: parseDuration(v.GetString("PASSWORD_RESET_CODE_TTL"), 10*time.Minute),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "classroom_api")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")
	v.SetDefault("JWT_ISSUER", "classroom-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("UPLOADS_STORAGE_DIR", "./uploads")
	v.SetDefault("UPLOADS_MAX_FILE_SIZE", 10*1024*1024)
	v.SetDefault("UPLOADS_ALLOWED_FORMATS", "pdf,doc,docx,txt")
	v.SetDefault("UPLOADS_MAX_FILES_PER_SUBMISSION", 5)
	v.SetDefault("UPLOADS_DOWNLOAD_LINK_SECRET", "dev_download_secret")
	v.SetDefault("UPLOADS_DOWNLOAD_LINK_TTL", "30m")

	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("MAIL_FROM_NAME", "Classroom")
	v.SetDefault("MAIL_FROM_EMAIL", "no-reply@classroom.local")
	v.SetDefault("MAIL_WORKER_COUNT", 1)
	v.SetDefault("MAIL_WORKER_RETRIES", 3)

	v.SetDefault("PASSWORD_RESET_CODE_TTL", "10m")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
