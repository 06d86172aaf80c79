// Package keystore holds the long-lived signing configuration of the issuance service.
package keystore

import (
	"errors"
	"log/slog"
	"strings"
)

// DefaultNamespace is the folder prefix under which every caller's uploads are scoped.
const DefaultNamespace = "scrubbed"

// KeyStore is immutable after New returns and is safe for concurrent reads.
type KeyStore struct {
	cloudName    string
	apiKey       string
	apiSecret    []byte
	uploadPreset string
	namespace    string
}

// Option configures optional KeyStore fields
type Option func(*KeyStore)

// WithUploadPreset sets the storage-side preset to include in every signed parameter set.
// Surrounding whitespace is trimmed before it is ever signed.
func WithUploadPreset(preset string) Option {
	return func(k *KeyStore) {
		k.uploadPreset = strings.TrimSpace(preset)
	}
}

// WithNamespace sets the folder prefix. Surrounding whitespace and slashes are trimmed.
func WithNamespace(namespace string) Option {
	return func(k *KeyStore) {
		k.namespace = strings.Trim(strings.TrimSpace(namespace), "/")
	}
}

// New builds a KeyStore. Missing values are allowed here so the service can report them as a
// configuration error per request instead of refusing to start.
func New(cloudName, apiKey, apiSecret string, opts ...Option) *KeyStore {
	k := &KeyStore{
		cloudName: strings.TrimSpace(cloudName),
		apiKey:    strings.TrimSpace(apiKey),
		apiSecret: []byte(apiSecret),
		namespace: DefaultNamespace,
	}
	for _, opt := range opts {
		opt(k)
	}
	if k.namespace == "" {
		k.namespace = DefaultNamespace
	}
	return k
}

func (k *KeyStore) CloudName() string    { return k.cloudName }
func (k *KeyStore) APIKey() string       { return k.apiKey }
func (k *KeyStore) UploadPreset() string { return k.uploadPreset }
func (k *KeyStore) Namespace() string    { return k.namespace }

// Secret returns a copy of the signing secret. Only the signer should call it.
func (k *KeyStore) Secret() []byte {
	out := make([]byte, len(k.apiSecret))
	copy(out, k.apiSecret)
	return out
}

// Presence reports which values are configured, never the values themselves.
type Presence struct {
	CloudName    bool `json:"cloudName"`
	APIKey       bool `json:"apiKey"`
	APISecret    bool `json:"apiSecret"`
	UploadPreset bool `json:"uploadPreset"`
}

// Complete reports whether every value needed for signing is present.
func (p Presence) Complete() bool {
	return p.CloudName && p.APIKey && p.APISecret
}

func (k *KeyStore) Presence() Presence {
	return Presence{
		CloudName:    k.cloudName != "",
		APIKey:       k.apiKey != "",
		APISecret:    len(k.apiSecret) > 0,
		UploadPreset: k.uploadPreset != "",
	}
}

// ErrIncomplete is returned by Validate when signing values are missing.
var ErrIncomplete = errors.New("keystore: cloud name, api key and api secret are required")

// Validate returns ErrIncomplete unless the store can sign.
func (k *KeyStore) Validate() error {
	if !k.Presence().Complete() {
		return ErrIncomplete
	}
	return nil
}

// String never includes the secret.
func (k *KeyStore) String() string {
	return "keystore(cloud=" + k.cloudName + ", namespace=" + k.namespace + ", secret=[redacted])"
}

// LogValue keeps the secret out of structured logs.
func (k *KeyStore) LogValue() slog.Value {
	p := k.Presence()
	return slog.GroupValue(
		slog.String("cloud_name", k.cloudName),
		slog.String("namespace", k.namespace),
		slog.Bool("api_key_set", p.APIKey),
		slog.Bool("api_secret_set", p.APISecret),
		slog.Bool("upload_preset_set", p.UploadPreset),
	)
}
