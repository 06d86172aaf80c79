package config

import (
	"fmt"
	"time"

	"github.com/tendant/signed-upload/pkg/signedupload/signing"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithAccount sets the emulated cloud account
func WithAccount(cloudName, apiKey, apiSecret string) Option {
	return func(c *ServerConfig) error {
		c.CloudName = cloudName
		c.APIKey = apiKey
		c.APISecret = apiSecret
		return nil
	}
}

// WithSignatureHash selects "sha256" or "sha1"
func WithSignatureHash(name string) Option {
	return func(c *ServerConfig) error {
		hash, err := signing.ParseHash(name)
		if err != nil {
			return err
		}
		c.SignatureHash = hash
		return nil
	}
}

// WithTTL sets how long a signed timestamp is accepted
func WithTTL(ttl time.Duration) Option {
	return func(c *ServerConfig) error {
		if ttl <= 0 {
			return fmt.Errorf("ttl must be positive, got %s", ttl)
		}
		c.TTL = ttl
		return nil
	}
}

// WithAdminAPIKey enables the admin routes behind key
func WithAdminAPIKey(key string) Option {
	return func(c *ServerConfig) error {
		c.AdminAPIKey = key
		return nil
	}
}

// WithDatabase configures the database backend
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		if dbType != "memory" && dbType != "postgres" {
			return fmt.Errorf("database type must be 'memory' or 'postgres', got: %s", dbType)
		}
		if dbType == "postgres" && url == "" {
			return fmt.Errorf("database URL is required for postgres")
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the database schema (for Postgres)
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithMemoryStorage keeps uploads in memory
func WithMemoryStorage() Option {
	return func(c *ServerConfig) error {
		c.Storage = StorageConfig{Type: "memory", Config: map[string]interface{}{}}
		return nil
	}
}

// WithFilesystemStorage stores uploads under baseDir
func WithFilesystemStorage(baseDir string) Option {
	return func(c *ServerConfig) error {
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}
		c.Storage = StorageConfig{Type: "fs", Config: map[string]interface{}{"base_dir": baseDir}}
		return nil
	}
}

// WithS3Storage stores uploads in an S3 bucket
func WithS3Storage(bucket, region string) Option {
	return func(c *ServerConfig) error {
		if bucket == "" {
			return fmt.Errorf("s3 bucket cannot be empty")
		}
		if region == "" {
			region = "us-east-1"
		}
		c.Storage = StorageConfig{Type: "s3", Config: map[string]interface{}{
			"bucket": bucket,
			"region": region,
		}}
		return nil
	}
}

// WithS3Endpoint points the S3 backend at an S3-compatible service (MinIO)
func WithS3Endpoint(endpoint string, pathStyle bool) Option {
	return func(c *ServerConfig) error {
		if c.Storage.Type != "s3" {
			return fmt.Errorf("s3 endpoint requires s3 storage")
		}
		c.Storage.Config["endpoint"] = endpoint
		c.Storage.Config["use_path_style"] = pathStyle
		return nil
	}
}
