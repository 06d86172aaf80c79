package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/tendant/signed-upload/pkg/signedupload/mediahost"
)

// Repository is an in-memory implementation of mediahost.AssetRepository
type Repository struct {
	mu       sync.RWMutex
	assets   map[uuid.UUID]*mediahost.Asset
	byPublic map[string]uuid.UUID
}

// New creates an empty repository
func New() *Repository {
	return &Repository{
		assets:   make(map[uuid.UUID]*mediahost.Asset),
		byPublic: make(map[string]uuid.UUID),
	}
}

func publicKey(cloudName, publicID string) string {
	return cloudName + "\x00" + publicID
}

// CreateAsset stores a copy of asset. Public ids are unique per cloud.
func (r *Repository) CreateAsset(ctx context.Context, asset *mediahost.Asset) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := publicKey(asset.CloudName, asset.PublicID)
	if _, exists := r.byPublic[key]; exists {
		return mediahost.ErrAssetExists
	}

	cp := *asset
	r.assets[asset.ID] = &cp
	r.byPublic[key] = asset.ID
	return nil
}

// GetAsset returns a copy of the asset with id
func (r *Repository) GetAsset(ctx context.Context, id uuid.UUID) (*mediahost.Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	asset, exists := r.assets[id]
	if !exists {
		return nil, mediahost.ErrAssetNotFound
	}
	cp := *asset
	return &cp, nil
}

// ListAssets returns the assets of cloudName in folder, oldest first. An empty folder lists all.
func (r *Repository) ListAssets(ctx context.Context, cloudName, folder string) ([]*mediahost.Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*mediahost.Asset
	for _, asset := range r.assets {
		if asset.CloudName != cloudName {
			continue
		}
		if folder != "" && asset.Folder != folder && !strings.HasPrefix(asset.Folder, folder+"/") {
			continue
		}
		cp := *asset
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].PublicID < result[j].PublicID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// DeleteAsset removes the asset with id
func (r *Repository) DeleteAsset(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	asset, exists := r.assets[id]
	if !exists {
		return mediahost.ErrAssetNotFound
	}
	delete(r.byPublic, publicKey(asset.CloudName, asset.PublicID))
	delete(r.assets, id)
	return nil
}

var _ mediahost.AssetRepository = (*Repository)(nil)
