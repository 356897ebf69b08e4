package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-data/internal/domain"
)

// PostgresAssetsRepository 资产Repository实现
type PostgresAssetsRepository struct {
	db *sql.DB
}

// NewPostgresAssetsRepository 创建资产Repository
func NewPostgresAssetsRepository(db *sql.DB) *PostgresAssetsRepository {
	return &PostgresAssetsRepository{db: db}
}

// 确保实现了接口
var _ AssetsRepository = (*PostgresAssetsRepository)(nil)

const assetColumns = `
	asset_id::text,
	tenant_id::text,
	category,
	human_label,
	external_code,
	public_slug,
	state,
	COALESCE(occupant_id::text, '') AS occupant_id,
	version,
	created_at,
	updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// rowQueryer *sql.DB 和 *sql.Tx 都满足
type rowQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanAsset(row rowScanner) (*domain.Asset, error) {
	var a domain.Asset
	var state string
	if err := row.Scan(
		&a.AssetID,
		&a.TenantID,
		&a.Category,
		&a.HumanLabel,
		&a.ExternalCode,
		&a.PublicSlug,
		&state,
		&a.OccupantID,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.State = domain.AssetState(state)
	return &a, nil
}

func loadAsset(ctx context.Context, q rowQueryer, tenantID, assetID string) (*domain.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE tenant_id = $1 AND asset_id = $2`
	a, err := scanAsset(q.QueryRowContext(ctx, query, tenantID, assetID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, assetNotFound(assetID)
		}
		return nil, mapPGError("get asset", err)
	}
	return a, nil
}

func (r *PostgresAssetsRepository) CreateAsset(ctx context.Context, asset *domain.Asset) error {
	if asset == nil || asset.TenantID == "" {
		return fmt.Errorf("%w: tenant_id is required", domain.ErrInvalidArgument)
	}
	if asset.State == "" {
		asset.State = domain.AssetStateAvailable
	}
	if asset.State == domain.AssetStateOccupied || asset.OccupantID != "" {
		return fmt.Errorf("%w: new asset cannot be occupied", domain.ErrInvalidArgument)
	}

	query := `
		INSERT INTO assets (asset_id, tenant_id, category, human_label, external_code, public_slug, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING version, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		asset.AssetID,
		asset.TenantID,
		asset.Category,
		asset.HumanLabel,
		asset.ExternalCode,
		asset.PublicSlug,
		string(asset.State),
	).Scan(&asset.Version, &asset.CreatedAt, &asset.UpdatedAt)
	if err != nil {
		return mapPGError("create asset", err)
	}
	return nil
}

func (r *PostgresAssetsRepository) GetAsset(ctx context.Context, tenantID, assetID string) (*domain.Asset, error) {
	if tenantID == "" || assetID == "" {
		return nil, fmt.Errorf("%w: tenant_id and asset_id are required", domain.ErrInvalidArgument)
	}
	return loadAsset(ctx, r.db, tenantID, assetID)
}

func (r *PostgresAssetsRepository) GetAssetByExternalCode(ctx context.Context, tenantID, externalCode string) (*domain.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE tenant_id = $1 AND external_code = $2`
	a, err := scanAsset(r.db.QueryRowContext(ctx, query, tenantID, externalCode))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: asset with external_code %s", domain.ErrNotFound, externalCode)
		}
		return nil, mapPGError("get asset by external_code", err)
	}
	return a, nil
}

func (r *PostgresAssetsRepository) GetAssetByPublicSlug(ctx context.Context, publicSlug string) (*domain.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE public_slug = $1`
	a, err := scanAsset(r.db.QueryRowContext(ctx, query, publicSlug))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: asset with public_slug %s", domain.ErrNotFound, publicSlug)
		}
		return nil, mapPGError("get asset by public_slug", err)
	}
	return a, nil
}

func (r *PostgresAssetsRepository) ListAssets(ctx context.Context, tenantID string, filters AssetFilters, page, size int) ([]*domain.Asset, int, error) {
	page, size = normalizePage(page, size)

	where := []string{"tenant_id = $1"}
	args := []any{tenantID}
	argN := 2
	if filters.Category != "" {
		where = append(where, fmt.Sprintf("LOWER(category) = LOWER($%d)", argN))
		args = append(args, filters.Category)
		argN++
	}
	if filters.State != "" {
		where = append(where, fmt.Sprintf("state = $%d", argN))
		args = append(args, string(filters.State))
		argN++
	}
	if filters.LabelPrefix != "" {
		where = append(where, fmt.Sprintf("human_label LIKE $%d", argN))
		args = append(args, escapeLike(filters.LabelPrefix)+"%")
		argN++
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM assets WHERE `+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, mapPGError("count assets", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM assets WHERE %s ORDER BY human_label, asset_id LIMIT $%d OFFSET $%d`,
		assetColumns, whereClause, argN, argN+1)
	args = append(args, size, (page-1)*size)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, mapPGError("list assets", err)
	}
	defer rows.Close()

	items := make([]*domain.Asset, 0, size)
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, 0, mapPGError("scan asset", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapPGError("list assets", err)
	}
	return items, total, nil
}

func (r *PostgresAssetsRepository) ExternalCodeExists(ctx context.Context, externalCode string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM assets WHERE external_code = $1)`, externalCode).Scan(&exists)
	if err != nil {
		return false, mapPGError("check external_code", err)
	}
	return exists, nil
}

func (r *PostgresAssetsRepository) PublicSlugExists(ctx context.Context, publicSlug string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM assets WHERE public_slug = $1)`, publicSlug).Scan(&exists)
	if err != nil {
		return false, mapPGError("check public_slug", err)
	}
	return exists, nil
}

func (r *PostgresAssetsRepository) SetMaintenanceState(ctx context.Context, tenantID, assetID string, state domain.AssetState) (*domain.Asset, error) {
	query := `
		UPDATE assets
		SET state = $3, version = version + 1, updated_at = NOW()
		WHERE tenant_id = $1 AND asset_id = $2 AND occupant_id IS NULL
		RETURNING ` + assetColumns
	a, err := scanAsset(r.db.QueryRowContext(ctx, query, tenantID, assetID, string(state)))
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, mapPGError("set asset state", err)
	}
	// 0 行：不存在或被占用
	current, lerr := loadAsset(ctx, r.db, tenantID, assetID)
	if lerr != nil {
		return nil, lerr
	}
	return nil, fmt.Errorf("%w: asset %s is held by resident %s", domain.ErrAssetOccupied, assetID, current.OccupantID)
}

func (r *PostgresAssetsRepository) DeleteAsset(ctx context.Context, tenantID, assetID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM assets WHERE tenant_id = $1 AND asset_id = $2 AND occupant_id IS NULL`,
		tenantID, assetID,
	)
	if err != nil {
		return mapPGError("delete asset", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return mapPGError("delete asset", err)
	}
	if rowsAffected > 0 {
		return nil
	}
	current, err := loadAsset(ctx, r.db, tenantID, assetID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: asset %s is held by resident %s", domain.ErrAssetOccupied, assetID, current.OccupantID)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
