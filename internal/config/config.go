package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config holds all configuration values. Values are read from an optional
// YAML file named by CONFIG_FILE and then overridden by environment variables.
type Config struct {
	AppPort   string `yaml:"app_port"`
	LogFormat string `yaml:"log_format"`

	DBDriver   string `yaml:"db_driver"` // postgres or sqlite
	DBHost     string `yaml:"db_host"`
	DBPort     string `yaml:"db_port"`
	DBUser     string `yaml:"db_user"`
	DBPassword string `yaml:"db_password"`
	DBName     string `yaml:"db_name"`
	SQLitePath string `yaml:"sqlite_path"`

	BlobBackend    string `yaml:"blob_backend"` // minio or filesystem
	BlobDir        string `yaml:"blob_dir"`
	MinioEndpoint  string `yaml:"minio_endpoint"`
	MinioAccessKey string `yaml:"minio_access_key"`
	MinioSecretKey string `yaml:"minio_secret_key"`
	MinioBucket    string `yaml:"minio_bucket"`
	MinioSSL       bool   `yaml:"minio_ssl"`

	RedisHost string        `yaml:"redis_host"`
	RedisPort string        `yaml:"redis_port"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
	// Files larger than this are never cached.
	CacheMaxObjectBytes int64 `yaml:"cache_max_object_bytes"`
	MemoryCacheBytes    int64 `yaml:"memory_cache_bytes"`

	JWTSecret string        `yaml:"jwt_secret"`
	JWTIssuer string        `yaml:"jwt_issuer"`
	JWTTTL    time.Duration `yaml:"jwt_ttl"`

	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
	// Upper bound for a whole request body, archives included.
	MaxRequestBytes int64 `yaml:"max_request_bytes"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		AppPort:             "8080",
		LogFormat:           "json",
		DBDriver:            "postgres",
		DBPort:              "5432",
		SQLitePath:          "annotation.db",
		BlobBackend:         "minio",
		BlobDir:             "blobs",
		RedisPort:           "6379",
		CacheTTL:            10 * time.Minute,
		CacheMaxObjectBytes: 2 << 20,
		MemoryCacheBytes:    64 << 20,
		JWTIssuer:           "annotation-service",
		JWTTTL:              24 * time.Hour,
		MaxUploadBytes:      10 << 20,
		MaxRequestBytes:     100 << 20,
	}
}

// LoadConfig loads configuration from CONFIG_FILE (if set) and environment variables.
func LoadConfig() (*Config, error) {
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.AppPort, "APP_PORT")
	setString(&c.LogFormat, "LOG_FORMAT")
	setString(&c.DBDriver, "DB_DRIVER")
	setString(&c.DBHost, "DB_HOST")
	setString(&c.DBPort, "DB_PORT")
	setString(&c.DBUser, "DB_USER")
	setString(&c.DBPassword, "DB_PASSWORD")
	setString(&c.DBName, "DB_NAME")
	setString(&c.SQLitePath, "SQLITE_PATH")
	setString(&c.BlobBackend, "BLOB_BACKEND")
	setString(&c.BlobDir, "BLOB_DIR")
	setString(&c.MinioEndpoint, "MINIO_ENDPOINT")
	setString(&c.MinioAccessKey, "MINIO_ACCESS_KEY")
	setString(&c.MinioSecretKey, "MINIO_SECRET_KEY")
	setString(&c.MinioBucket, "MINIO_BUCKET")
	setString(&c.RedisHost, "REDIS_HOST")
	setString(&c.RedisPort, "REDIS_PORT")
	setString(&c.JWTSecret, "JWT_SECRET")
	setString(&c.JWTIssuer, "JWT_ISSUER")

	if sslEnv := os.Getenv("MINIO_SSL"); sslEnv != "" {
		val, err := strconv.ParseBool(sslEnv)
		if err != nil {
			return fmt.Errorf("invalid MINIO_SSL value: %v", err)
		}
		c.MinioSSL = val
	}
	for _, d := range []struct {
		dst *time.Duration
		env string
	}{{&c.CacheTTL, "CACHE_TTL"}, {&c.JWTTTL, "JWT_TTL"}} {
		if v := os.Getenv(d.env); v != "" {
			val, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s value: %v", d.env, err)
			}
			*d.dst = val
		}
	}
	for _, n := range []struct {
		dst *int64
		env string
	}{
		{&c.MaxUploadBytes, "MAX_UPLOAD_BYTES"},
		{&c.CacheMaxObjectBytes, "CACHE_MAX_OBJECT_BYTES"},
		{&c.MemoryCacheBytes, "MEMORY_CACHE_BYTES"},
		{&c.MaxRequestBytes, "MAX_REQUEST_BYTES"},
	} {
		if v := os.Getenv(n.env); v != "" {
			val, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid %s value: %v", n.env, err)
			}
			*n.dst = val
		}
	}
	return nil
}

// Validate checks that every backend has the settings it needs.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "postgres":
		if c.DBHost == "" || c.DBUser == "" || c.DBName == "" {
			return fmt.Errorf("database configuration is incomplete")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	switch c.BlobBackend {
	case "minio":
		if c.MinioEndpoint == "" || c.MinioAccessKey == "" || c.MinioSecretKey == "" || c.MinioBucket == "" {
			return fmt.Errorf("minio configuration is incomplete")
		}
	case "filesystem":
		if c.BlobDir == "" {
			return fmt.Errorf("blob directory is required")
		}
	default:
		return fmt.Errorf("unsupported BLOB_BACKEND %q", c.BlobBackend)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if c.MaxRequestBytes < c.MaxUploadBytes {
		return fmt.Errorf("MAX_REQUEST_BYTES must not be smaller than MAX_UPLOAD_BYTES")
	}
	return nil
}

// RedisEnabled reports whether a Redis server is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

// ConnectDatabase opens a GORM connection for the configured driver.
// Store errors are translated so that unique violations surface as
// gorm.ErrDuplicatedKey.
func ConnectDatabase(cfg *Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	}
	switch cfg.DBDriver {
	case "sqlite":
		return OpenSQLite(cfg.SQLitePath, gormCfg)
	default:
		dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName)
		return gorm.Open(postgres.Open(dsn), gormCfg)
	}
}

// OpenSQLite opens a SQLite database with foreign keys enforced.
func OpenSQLite(path string, gormCfg *gorm.Config) (*gorm.DB, error) {
	if gormCfg == nil {
		gormCfg = &gorm.Config{TranslateError: true, Logger: logger.Default.LogMode(logger.Silent)}
	}
	db, err := gorm.Open(sqlite.Open(path+"?_foreign_keys=on&_busy_timeout=5000"), gormCfg)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer; one connection avoids SQLITE_BUSY under load.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// NewLogger builds the process logger for the configured format.
func NewLogger(cfg *Config) *slog.Logger {
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, nil))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}
