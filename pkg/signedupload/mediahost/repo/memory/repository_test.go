package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/signed-upload/pkg/signedupload/mediahost"
)

func newAsset(folder, publicID string, created time.Time) *mediahost.Asset {
	return &mediahost.Asset{
		ID:        uuid.New(),
		CloudName: "demo",
		PublicID:  publicID,
		Folder:    folder,
		CreatedAt: created,
	}
}

func TestRepository_CreateGetDelete(t *testing.T) {
	ctx := context.Background()
	repo := New()
	asset := newAsset("scrubbed/user-42", "scrubbed/user-42/a", time.Now())

	require.NoError(t, repo.CreateAsset(ctx, asset))

	got, err := repo.GetAsset(ctx, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, asset.PublicID, got.PublicID)

	// Returned values are copies
	got.PublicID = "changed"
	again, err := repo.GetAsset(ctx, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, "scrubbed/user-42/a", again.PublicID)

	require.NoError(t, repo.DeleteAsset(ctx, asset.ID))
	_, err = repo.GetAsset(ctx, asset.ID)
	assert.ErrorIs(t, err, mediahost.ErrAssetNotFound)
	assert.ErrorIs(t, repo.DeleteAsset(ctx, asset.ID), mediahost.ErrAssetNotFound)
}

func TestRepository_DuplicatePublicID(t *testing.T) {
	ctx := context.Background()
	repo := New()
	require.NoError(t, repo.CreateAsset(ctx, newAsset("f", "f/a", time.Now())))

	err := repo.CreateAsset(ctx, newAsset("f", "f/a", time.Now()))
	assert.ErrorIs(t, err, mediahost.ErrAssetExists)
}

func TestRepository_ListAssets(t *testing.T) {
	ctx := context.Background()
	repo := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.CreateAsset(ctx, newAsset("scrubbed/user-42", "scrubbed/user-42/b", base.Add(time.Minute))))
	require.NoError(t, repo.CreateAsset(ctx, newAsset("scrubbed/user-42", "scrubbed/user-42/a", base)))
	require.NoError(t, repo.CreateAsset(ctx, newAsset("scrubbed/user-7", "scrubbed/user-7/c", base)))
	require.NoError(t, repo.CreateAsset(ctx, newAsset("scrubbed/user-420", "scrubbed/user-420/d", base)))

	assets, err := repo.ListAssets(ctx, "demo", "scrubbed/user-42")
	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.Equal(t, "scrubbed/user-42/a", assets[0].PublicID)
	assert.Equal(t, "scrubbed/user-42/b", assets[1].PublicID)

	all, err := repo.ListAssets(ctx, "demo", "")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	nested, err := repo.ListAssets(ctx, "demo", "scrubbed")
	require.NoError(t, err)
	assert.Len(t, nested, 4)

	other, err := repo.ListAssets(ctx, "other-cloud", "")
	require.NoError(t, err)
	assert.Empty(t, other)
}
