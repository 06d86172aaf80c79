package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// WithEnv applies environment variable overrides to the media host config using the provided prefix.
//
// Server:
//
//	PORT - Server port (default: "8090")
//	ENVIRONMENT - Runtime environment (default: "development")
//	MEDIA_PUBLIC_URL - Base of secure_url in responses
//
// Account:
//
//	MEDIA_CLOUD_NAME, MEDIA_API_KEY, MEDIA_API_SECRET - Emulated account (required)
//	SIGNATURE_HASH - "sha256" (default) or "sha1"
//	UPLOAD_TTL - How long a signed timestamp is accepted (default: "1h")
//	ADMIN_API_KEY - Enables the admin routes
//
// Database:
//
//	DATABASE_URL - "memory" (default) or "postgres://..."
//	DB_SCHEMA - Postgres schema (default: "media")
//	AUTO_MIGRATE - Create the asset table on start (default: true)
//
// Storage:
//
//	STORAGE_URL - One of:
//	              - "memory://" - In-memory storage (default)
//	              - "file:///path/to/data" - Filesystem storage
//	              - "s3://bucket/prefix?region=us-east-1&endpoint=http://localhost:9000&path_style=true"
func WithEnv(prefix string) Option {
	return func(c *ServerConfig) error {
		setString(prefix, "PORT", &c.Port)
		setString(prefix, "ENVIRONMENT", &c.Environment)
		setString(prefix, "MEDIA_PUBLIC_URL", &c.PublicURL)

		setString(prefix, "MEDIA_CLOUD_NAME", &c.CloudName)
		setString(prefix, "MEDIA_API_KEY", &c.APIKey)
		setString(prefix, "MEDIA_API_SECRET", &c.APISecret)
		setString(prefix, "SIGNATURE_HASH", &c.SignatureHash)
		setString(prefix, "ADMIN_API_KEY", &c.AdminAPIKey)

		if raw, ok := lookupEnv(prefix, "UPLOAD_TTL"); ok && raw != "" {
			ttl, err := time.ParseDuration(raw)
			if err != nil {
				return fmt.Errorf("invalid duration for %sUPLOAD_TTL: %w", prefix, err)
			}
			c.TTL = ttl
		}

		if err := applyDatabaseEnv(prefix, c); err != nil {
			return err
		}
		return applyStorageEnv(prefix, c)
	}
}

// applyDatabaseEnv applies database configuration from environment
func applyDatabaseEnv(prefix string, c *ServerConfig) error {
	setString(prefix, "DB_SCHEMA", &c.DBSchema)

	migrate, ok, err := parseBoolEnv(prefix, "AUTO_MIGRATE")
	if err != nil {
		return err
	}
	if ok {
		c.AutoMigrate = migrate
	}

	dbURL, hasURL := lookupEnv(prefix, "DATABASE_URL")
	if !hasURL || dbURL == "" || dbURL == "memory" {
		c.DatabaseType = "memory"
		c.DatabaseURL = ""
		return nil
	}

	if strings.HasPrefix(dbURL, "postgresql://") || strings.HasPrefix(dbURL, "postgres://") {
		c.DatabaseType = "postgres"
		c.DatabaseURL = dbURL
		return nil
	}
	return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory' or 'postgresql://...')", dbURL)
}

// applyStorageEnv applies storage configuration from environment
func applyStorageEnv(prefix string, c *ServerConfig) error {
	storageURL, hasURL := lookupEnv(prefix, "STORAGE_URL")
	if !hasURL || storageURL == "" || storageURL == "memory" || storageURL == "memory://" {
		c.Storage = StorageConfig{Type: "memory", Config: map[string]interface{}{}}
		return nil
	}

	u, err := url.Parse(storageURL)
	if err != nil {
		return fmt.Errorf("invalid STORAGE_URL: %w", err)
	}

	switch u.Scheme {
	case "file":
		path := u.Host + u.Path
		if path == "" {
			return fmt.Errorf("filesystem path cannot be empty in STORAGE_URL")
		}
		c.Storage = StorageConfig{Type: "fs", Config: map[string]interface{}{"base_dir": path}}
		return nil

	case "s3":
		if u.Host == "" {
			return fmt.Errorf("S3 bucket name cannot be empty in STORAGE_URL")
		}
		q := u.Query()
		cfg := map[string]interface{}{
			"bucket": u.Host,
			"prefix": strings.Trim(u.Path, "/"),
			"region": "us-east-1",
		}
		if v := q.Get("region"); v != "" {
			cfg["region"] = v
		}
		if v := q.Get("endpoint"); v != "" {
			cfg["endpoint"] = v
		}
		if v := q.Get("path_style"); v != "" {
			cfg["use_path_style"] = v
		}
		if v := q.Get("create_bucket"); v != "" {
			cfg["create_bucket_if_not_exist"] = v
		}

		// AWS credentials come from the standard variables
		if v, ok := os.LookupEnv("AWS_ACCESS_KEY_ID"); ok && v != "" {
			cfg["access_key_id"] = v
		}
		if v, ok := os.LookupEnv("AWS_SECRET_ACCESS_KEY"); ok && v != "" {
			cfg["secret_access_key"] = v
		}
		if v, ok := os.LookupEnv("AWS_REGION"); ok && v != "" && q.Get("region") == "" {
			cfg["region"] = v
		}

		c.Storage = StorageConfig{Type: "s3", Config: cfg}
		return nil
	}

	return fmt.Errorf("unsupported STORAGE_URL format: %s (use 'memory://', 'file://...', or 's3://...')", storageURL)
}

func lookupEnv(prefix, key string) (string, bool) {
	return os.LookupEnv(prefix + key)
}

func setString(prefix, key string, dst *string) {
	if v, ok := lookupEnv(prefix, key); ok && v != "" {
		*dst = v
	}
}

func parseBoolEnv(prefix, key string) (bool, bool, error) {
	raw, ok := lookupEnv(prefix, key)
	if !ok || raw == "" {
		return false, false, nil
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false, fmt.Errorf("invalid boolean for %s%s: %w", prefix, key, err)
	}
	return parsed, true, nil
}
