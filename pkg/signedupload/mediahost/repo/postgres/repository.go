package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/signed-upload/pkg/signedupload/mediahost"
)

// Schema creates the asset table. It is safe to run repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS media_asset (
	id             UUID PRIMARY KEY,
	cloud_name     VARCHAR(255) NOT NULL,
	public_id      VARCHAR(512) NOT NULL,
	folder         VARCHAR(512) NOT NULL DEFAULT '',
	resource_type  VARCHAR(32)  NOT NULL,
	format         VARCHAR(32)  NOT NULL DEFAULT '',
	content_type   VARCHAR(255) NOT NULL,
	bytes          BIGINT       NOT NULL,
	version        BIGINT       NOT NULL,
	object_key     TEXT         NOT NULL,
	original_name  VARCHAR(255) NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ  NOT NULL DEFAULT now(),
	CONSTRAINT media_asset_public_id_key UNIQUE (cloud_name, public_id)
);
CREATE INDEX IF NOT EXISTS media_asset_folder_idx ON media_asset (cloud_name, folder);
`

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements mediahost.AssetRepository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// Migrate applies Schema
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return r.handlePostgresError("migrate", err)
	}
	return nil
}

func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return mediahost.ErrAssetExists
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return mediahost.ErrAssetNotFound
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

const assetColumns = `id, cloud_name, public_id, folder, resource_type, format,
	content_type, bytes, version, object_key, original_name, created_at`

func scanAsset(row pgx.Row) (*mediahost.Asset, error) {
	var a mediahost.Asset
	err := row.Scan(
		&a.ID, &a.CloudName, &a.PublicID, &a.Folder, &a.ResourceType, &a.Format,
		&a.ContentType, &a.Bytes, &a.Version, &a.ObjectKey, &a.OriginalName, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repository) CreateAsset(ctx context.Context, a *mediahost.Asset) error {
	query := `INSERT INTO media_asset (` + assetColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.Exec(ctx, query,
		a.ID, a.CloudName, a.PublicID, a.Folder, a.ResourceType, a.Format,
		a.ContentType, a.Bytes, a.Version, a.ObjectKey, a.OriginalName, a.CreatedAt)
	if err != nil {
		return r.handlePostgresError("create asset", err)
	}
	return nil
}

func (r *Repository) GetAsset(ctx context.Context, id uuid.UUID) (*mediahost.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM media_asset WHERE id = $1`

	a, err := scanAsset(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, r.handlePostgresError("get asset", err)
	}
	return a, nil
}

func (r *Repository) ListAssets(ctx context.Context, cloudName, folder string) ([]*mediahost.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM media_asset
		WHERE cloud_name = $1 AND ($2::text = '' OR folder = $2 OR folder LIKE $3)
		ORDER BY created_at, public_id`

	rows, err := r.db.Query(ctx, query, cloudName, folder, folder+"/%")
	if err != nil {
		return nil, r.handlePostgresError("list assets", err)
	}
	defer rows.Close()

	var assets []*mediahost.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, r.handlePostgresError("scan asset", err)
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list assets", err)
	}
	return assets, nil
}

func (r *Repository) DeleteAsset(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM media_asset WHERE id = $1`, id)
	if err != nil {
		return r.handlePostgresError("delete asset", err)
	}
	if tag.RowsAffected() == 0 {
		return mediahost.ErrAssetNotFound
	}
	return nil
}

var _ mediahost.AssetRepository = (*Repository)(nil)
