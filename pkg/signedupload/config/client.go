package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/tendant/signed-upload/pkg/signedupload/client"
	"github.com/tendant/signed-upload/pkg/signedupload/upload"
)

// ClientConfig is the environment of cmd/scrubctl
type ClientConfig struct {
	IssuerURL    string        `env:"SIGNED_UPLOAD_ISSUER_URL" env-default:"http://localhost:8080"`
	Transport    string        `env:"SIGNED_UPLOAD_TRANSPORT" env-default:"direct"`
	FunctionName string        `env:"SIGNED_UPLOAD_FUNCTION" env-default:"generate-upload-signature"`
	AnonKey      string        `env:"AUTH_ANON_KEY"`
	Token        string        `env:"SIGNED_UPLOAD_TOKEN"`
	MediaBaseURL string        `env:"MEDIA_UPLOAD_BASE_URL" env-default:"https://api.cloudinary.com/v1_1"`
	Timeout      time.Duration `env:"SIGNED_UPLOAD_TIMEOUT" env-default:"2m"`
}

// LoadClientConfig reads ClientConfig from the environment
func LoadClientConfig() (ClientConfig, error) {
	var cfg ClientConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to read client config: %w", err)
	}
	return cfg, nil
}

// Client returns the issuance client settings
func (c ClientConfig) Client() client.Config {
	return client.Config{
		Transport:    client.TransportKind(c.Transport),
		Endpoint:     c.IssuerURL,
		FunctionName: c.FunctionName,
		AnonKey:      c.AnonKey,
		Timeout:      c.Timeout,
	}
}

// ExecutorOptions configures the upload executor
func (c ClientConfig) ExecutorOptions() []upload.Option {
	return []upload.Option{upload.WithBaseURL(c.MediaBaseURL)}
}
