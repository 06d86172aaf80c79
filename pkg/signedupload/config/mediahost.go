package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/signed-upload/pkg/signedupload"
	"github.com/tendant/signed-upload/pkg/signedupload/mediahost"
	fsblob "github.com/tendant/signed-upload/pkg/signedupload/mediahost/blob/fs"
	memoryblob "github.com/tendant/signed-upload/pkg/signedupload/mediahost/blob/memory"
	s3blob "github.com/tendant/signed-upload/pkg/signedupload/mediahost/blob/s3"
	repomemory "github.com/tendant/signed-upload/pkg/signedupload/mediahost/repo/memory"
	repopg "github.com/tendant/signed-upload/pkg/signedupload/mediahost/repo/postgres"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs the media host ServerConfig by applying the supplied options on top of defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:          "8090",
		Environment:   "development",
		PublicURL:     "http://localhost:8090",
		SignatureHash: "sha256",
		TTL:           signedupload.DefaultTTL,
		DatabaseType:  "memory",
		DBSchema:      "media",
		AutoMigrate:   true,
		Storage: StorageConfig{
			Type:   "memory",
			Config: map[string]interface{}{},
		},
	}
}

// ServerConfig configures the media host emulator
type ServerConfig struct {
	Port        string
	Environment string
	PublicURL   string

	// Account served by the emulator
	CloudName     string
	APIKey        string
	APISecret     string
	SignatureHash string
	TTL           time.Duration

	// AdminAPIKey protects the admin routes; empty disables them
	AdminAPIKey string

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"
	DBSchema     string
	AutoMigrate  bool

	Storage StorageConfig
}

// StorageConfig selects the blob backend
type StorageConfig struct {
	Type   string // "memory", "fs", "s3"
	Config map[string]interface{}
}

// Validate validates the media host configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.CloudName == "" || c.APIKey == "" || c.APISecret == "" {
		return errors.New("cloud name, api key and api secret are required")
	}
	if c.TTL <= 0 {
		return errors.New("ttl must be positive")
	}

	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}
	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}

	switch c.Storage.Type {
	case "memory", "fs", "s3":
	default:
		return fmt.Errorf("unsupported storage backend type: %s", c.Storage.Type)
	}
	return nil
}

// Account is the emulated cloud account
func (c *ServerConfig) Account() mediahost.Account {
	return mediahost.Account{
		CloudName: c.CloudName,
		APIKey:    c.APIKey,
		APISecret: c.APISecret,
		Hash:      c.SignatureHash,
	}
}

// BuildMediaHost creates the emulator and its stores. The returned func releases them.
func (c *ServerConfig) BuildMediaHost(ctx context.Context, logger *slog.Logger) (*mediahost.Server, func(), error) {
	repo, closeRepo, err := c.buildRepository(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build repository: %w", err)
	}

	blobs, err := c.buildBlobStore(ctx)
	if err != nil {
		closeRepo()
		return nil, nil, fmt.Errorf("failed to build storage backend %s: %w", c.Storage.Type, err)
	}

	opts := []mediahost.Option{
		mediahost.WithTTL(c.TTL),
		mediahost.WithPublicURL(c.PublicURL),
	}
	if logger != nil {
		opts = append(opts, mediahost.WithLogger(logger))
	}
	return mediahost.New(c.Account(), blobs, repo, opts...), closeRepo, nil
}

// buildRepository creates an AssetRepository based on the configuration
func (c *ServerConfig) buildRepository(ctx context.Context) (mediahost.AssetRepository, func(), error) {
	switch c.DatabaseType {
	case "memory":
		return repomemory.New(), func() {}, nil
	case "postgres":
		cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		schema := c.DBSchema
		if schema != "" {
			cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
				_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
				return err
			}
		}
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}

		repo := repopg.NewWithPool(pool)
		if c.AutoMigrate {
			if schema != "" {
				if _, err := pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{schema}.Sanitize()); err != nil {
					pool.Close()
					return nil, nil, fmt.Errorf("failed to create schema: %w", err)
				}
			}
			if err := repo.Migrate(ctx); err != nil {
				pool.Close()
				return nil, nil, err
			}
		}
		return repo, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// buildBlobStore creates a BlobStore based on the storage configuration
func (c *ServerConfig) buildBlobStore(ctx context.Context) (mediahost.BlobStore, error) {
	config := c.Storage.Config
	switch c.Storage.Type {
	case "memory":
		return memoryblob.New(), nil

	case "fs":
		return fsblob.New(fsblob.Config{
			BaseDir: getString(config, "base_dir", "./data/media"),
		})

	case "s3":
		return s3blob.New(ctx, s3blob.Config{
			Region:                 getString(config, "region", "us-east-1"),
			Bucket:                 getString(config, "bucket", ""),
			Prefix:                 getString(config, "prefix", ""),
			AccessKeyID:            getString(config, "access_key_id", ""),
			SecretAccessKey:        getString(config, "secret_access_key", ""),
			Endpoint:               getString(config, "endpoint", ""),
			UsePathStyle:           getBool(config, "use_path_style", false),
			EnableSSE:              getBool(config, "enable_sse", false),
			SSEAlgorithm:           getString(config, "sse_algorithm", "AES256"),
			SSEKMSKeyID:            getString(config, "sse_kms_key_id", ""),
			CreateBucketIfNotExist: getBool(config, "create_bucket_if_not_exist", false),
		})

	default:
		return nil, fmt.Errorf("unsupported storage backend type: %s", c.Storage.Type)
	}
}

func getString(config map[string]interface{}, key string, defaultValue string) string {
	if value, exists := config[key]; exists {
		if str, ok := value.(string); ok {
			return str
		}
	}
	return defaultValue
}

func getBool(config map[string]interface{}, key string, defaultValue bool) bool {
	if value, exists := config[key]; exists {
		if b, ok := value.(bool); ok {
			return b
		}
		if str, ok := value.(string); ok {
			if b, err := strconv.ParseBool(str); err == nil {
				return b
			}
		}
	}
	return defaultValue
}
