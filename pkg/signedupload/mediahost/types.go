// Package mediahost is a self-hosted stand-in for the third-party media storage API. It accepts
// the same signed multipart uploads, recomputes every signature with the account secret and
// enforces the timestamp TTL, so the protocol can be exercised end to end without the vendor.
package mediahost

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
)

// Lookup errors
var (
	// ErrAssetNotFound is returned when an asset id is unknown
	ErrAssetNotFound = errors.New("asset not found")

	// ErrObjectNotFound is returned by blob stores for unknown keys
	ErrObjectNotFound = errors.New("object not found")

	// ErrAssetExists is returned when the public id is already taken
	ErrAssetExists = errors.New("asset already exists")
)

// Asset is the record kept for every accepted upload.
type Asset struct {
	ID           uuid.UUID `json:"asset_id"`
	CloudName    string    `json:"cloud_name"`
	PublicID     string    `json:"public_id"`
	Folder       string    `json:"folder"`
	ResourceType string    `json:"resource_type"`
	Format       string    `json:"format"`
	ContentType  string    `json:"content_type"`
	Bytes        int64     `json:"bytes"`
	Version      int64     `json:"version"`
	ObjectKey    string    `json:"-"`
	OriginalName string    `json:"original_filename,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// AssetRepository persists asset records
type AssetRepository interface {
	CreateAsset(ctx context.Context, asset *Asset) error
	GetAsset(ctx context.Context, id uuid.UUID) (*Asset, error)
	ListAssets(ctx context.Context, cloudName, folder string) ([]*Asset, error)
	DeleteAsset(ctx context.Context, id uuid.UUID) error
}

// BlobStore holds uploaded file bytes
type BlobStore interface {
	Put(ctx context.Context, key string, reader io.Reader, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// Account is one cloud served by the emulator.
type Account struct {
	CloudName string
	APIKey    string
	APISecret string
	// Hash is the signature hash ("sha256" unless set).
	Hash string
}
