package config

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/tendant/signed-upload/pkg/signedupload/auth"
	"github.com/tendant/signed-upload/pkg/signedupload/issuance"
	"github.com/tendant/signed-upload/pkg/signedupload/keystore"
	"github.com/tendant/signed-upload/pkg/signedupload/signing"
)

// Auth modes
const (
	AuthModeJWT    = "jwt"
	AuthModeRemote = "remote"
)

// IssuerConfig is the environment of cmd/issuer. Missing media credentials are not a load
// error: the endpoint reports them per request as a configuration error.
type IssuerConfig struct {
	Host        string `env:"HOST" env-default:""`
	Port        string `env:"PORT" env-default:"8080"`
	Environment string `env:"ENVIRONMENT" env-default:"development"`
	LogLevel    string `env:"LOG_LEVEL" env-default:"info"`

	CloudName       string `env:"MEDIA_CLOUD_NAME"`
	APIKey          string `env:"MEDIA_API_KEY"`
	APISecret       string `env:"MEDIA_API_SECRET"`
	UploadPreset    string `env:"MEDIA_UPLOAD_PRESET"`
	FolderNamespace string `env:"UPLOAD_FOLDER_NAMESPACE" env-default:"scrubbed"`
	SignatureHash   string `env:"SIGNATURE_HASH" env-default:"sha256"`

	AuthMode    string        `env:"AUTH_MODE" env-default:"jwt"`
	JWTSecret   string        `env:"AUTH_JWT_SECRET"`
	AuthURL     string        `env:"AUTH_URL"`
	AnonKey     string        `env:"AUTH_ANON_KEY"`
	AuthTimeout time.Duration `env:"AUTH_TIMEOUT" env-default:"10s"`

	// AllowTestMode is "true"/"false"; empty means enabled only in development.
	AllowTestMode    string   `env:"ALLOW_TEST_MODE"`
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" env-separator:"," env-default:"*"`
	MetricsNamespace string   `env:"METRICS_NAMESPACE" env-default:"signed_upload"`
}

// LoadIssuerConfig reads IssuerConfig from the environment
func LoadIssuerConfig() (IssuerConfig, error) {
	var cfg IssuerConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to read issuer config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	cfg.SignatureHash, _ = signing.ParseHash(cfg.SignatureHash)
	return cfg, nil
}

// Validate checks the settings the process cannot start without
func (c IssuerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if _, err := signing.ParseHash(c.SignatureHash); err != nil {
		return fmt.Errorf("SIGNATURE_HASH: %w", err)
	}
	if _, err := c.TestModeAllowed(); err != nil {
		return err
	}

	switch c.AuthMode {
	case AuthModeJWT:
		if c.JWTSecret == "" {
			return errors.New("AUTH_JWT_SECRET is required when AUTH_MODE=jwt")
		}
	case AuthModeRemote:
		if c.AuthURL == "" {
			return errors.New("AUTH_URL is required when AUTH_MODE=remote")
		}
	default:
		return fmt.Errorf("AUTH_MODE must be %q or %q, got %q", AuthModeJWT, AuthModeRemote, c.AuthMode)
	}
	return nil
}

// Addr is the listen address
func (c IssuerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// IsDevelopment reports whether the issuer runs in a development environment
func (c IssuerConfig) IsDevelopment() bool {
	env := strings.ToLower(c.Environment)
	return env == "development" || env == "dev" || env == "local"
}

// TestModeAllowed resolves ALLOW_TEST_MODE against the environment
func (c IssuerConfig) TestModeAllowed() (bool, error) {
	if c.AllowTestMode == "" {
		return c.IsDevelopment(), nil
	}
	allowed, err := strconv.ParseBool(c.AllowTestMode)
	if err != nil {
		return false, fmt.Errorf("invalid boolean for ALLOW_TEST_MODE: %w", err)
	}
	return allowed, nil
}

// KeyStore builds the immutable signing key store
func (c IssuerConfig) KeyStore() *keystore.KeyStore {
	return keystore.New(c.CloudName, c.APIKey, c.APISecret,
		keystore.WithUploadPreset(c.UploadPreset),
		keystore.WithNamespace(c.FolderNamespace),
	)
}

// ServiceOptions are the issuance options implied by the config
func (c IssuerConfig) ServiceOptions() []issuance.Option {
	allowed, _ := c.TestModeAllowed()
	return []issuance.Option{
		issuance.WithHash(c.SignatureHash),
		issuance.WithTestMode(allowed),
	}
}

// Verifier builds the token verifier for AuthMode
func (c IssuerConfig) Verifier() (auth.Verifier, error) {
	switch c.AuthMode {
	case AuthModeJWT:
		return auth.NewJWTVerifier([]byte(c.JWTSecret)), nil
	case AuthModeRemote:
		return auth.NewRemoteVerifier(c.AuthURL, c.AnonKey, &http.Client{Timeout: c.AuthTimeout}), nil
	default:
		return nil, fmt.Errorf("unsupported auth mode: %s", c.AuthMode)
	}
}
