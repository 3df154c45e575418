package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Port        string `validate:"required,numeric"`
	Environment string `validate:"required,oneof=dev test prod"`
	DatabaseURL string `validate:"required"`
	CORSOrigins string
	TablePrefix string
	// Auth: JWKSURL wins when both are set
	JWKSURL   string `validate:"omitempty,url"`
	JWTSecret string
	// Schema
	AutoMigrate bool
	// Logging
	LogDir      string
	LogMaxFiles int `validate:"gte=1"`
	// Tree listing
	TreeIncludeAncestors bool
	// Uploads
	MaxUploadBytes int64 `validate:"gt=0"`
	Blob           BlobConfig
	// Debug flags
	Debug bool
}

// BlobConfig selects and configures the blob store backing uploaded files.
// Type decides which of the other fields are relevant.
type BlobConfig struct {
	Type      string `validate:"required,oneof=local memory s3 minio"`
	LocalRoot string `validate:"required_if=Type local"`
	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `validate:"required_if=Type s3"`
	S3Region          string `validate:"required_if=Type s3"`
	S3Endpoint        string
	S3KeyPrefix       string
	S3AccessKeyID     string
	S3SecretAccessKey string
	// MinIO-specific fields (only used when Type == "minio")
	MinioEndpoint  string `validate:"required_if=Type minio"`
	MinioAccessKey string `validate:"required_if=Type minio"`
	MinioSecretKey string `validate:"required_if=Type minio"`
	MinioBucket    string `validate:"required_if=Type minio"`
	MinioUseSSL    bool
}

// validate is the singleton validator instance
var validate = validator.New()

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")

	return &Config{
		Port:                 getEnv("PORT", "8080"),
		Environment:          env,
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		CORSOrigins:          getEnv("CORS_ORIGINS", "http://localhost:3000"),
		TablePrefix:          getTablePrefix(env),
		JWKSURL:              getEnv("JWKS_URL", ""),
		JWTSecret:            getEnv("JWT_SECRET", ""),
		AutoMigrate:          getBool("AUTO_MIGRATE", env != "prod"),
		LogDir:               getEnv("LOG_DIR", ""),
		LogMaxFiles:          getInt("LOG_MAX_FILES", 10),
		TreeIncludeAncestors: getBool("TREE_INCLUDE_ANCESTORS", false),
		MaxUploadBytes:       int64(getInt("MAX_UPLOAD_BYTES", 50<<20)),
		Blob: BlobConfig{
			Type:              getEnv("BLOB_STORE", "local"),
			LocalRoot:         getEnv("BLOB_LOCAL_ROOT", "uploads"),
			S3Bucket:          getEnv("S3_BUCKET", ""),
			S3Region:          getEnv("S3_REGION", ""),
			S3Endpoint:        getEnv("S3_ENDPOINT", ""),
			S3KeyPrefix:       getEnv("S3_KEY_PREFIX", ""),
			S3AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			S3SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			MinioEndpoint:     getEnv("MINIO_ENDPOINT", ""),
			MinioAccessKey:    getEnv("MINIO_ACCESS_KEY", ""),
			MinioSecretKey:    getEnv("MINIO_SECRET_KEY", ""),
			MinioBucket:       getEnv("MINIO_BUCKET", ""),
			MinioUseSSL:       getBool("MINIO_USE_SSL", false),
		},
		// Debug flags - default to true in dev/test, false in production
		Debug: getBool("DEBUG", env != "prod"),
	}
}

// Validate checks the configuration against its struct tags.
// Only the first failing field is reported.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

// tablePrefixPattern keeps the prefix safe for interpolation into SQL
var tablePrefixPattern = regexp.MustCompile(`^[a-z0-9_]*$`)

// validateCustomRules performs validation that can't be expressed in tags.
func validateCustomRules(cfg *Config) error {
	if !tablePrefixPattern.MatchString(cfg.TablePrefix) {
		return fmt.Errorf("TablePrefix: %q may only contain lowercase letters, digits and underscores", cfg.TablePrefix)
	}
	if cfg.JWKSURL == "" && cfg.JWTSecret == "" {
		return errors.New("auth: one of JWKS_URL or JWT_SECRET must be set")
	}
	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok && len(validationErrs) > 0 {
		e := validationErrs[0]
		return &FieldError{Field: e.Namespace(), Tag: e.Tag()}
	}
	return err
}

// FieldError names the config field that failed validation
type FieldError struct {
	Field string
	Tag   string
}

func (e *FieldError) Error() string {
	return e.Field + ": validation failed on '" + e.Tag + "'"
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	// Allow manual override via TABLE_PREFIX env var
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	value := strings.ToLower(os.Getenv(key))
	switch value {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
