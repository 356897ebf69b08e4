package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-data/internal/domain"
)

// PostgresAllocationStore 分配事务（assets + residents 同一个数据库事务）
type PostgresAllocationStore struct {
	db *sql.DB
}

func NewPostgresAllocationStore(db *sql.DB) *PostgresAllocationStore {
	return &PostgresAllocationStore{db: db}
}

var _ AllocationStore = (*PostgresAllocationStore)(nil)

func (s *PostgresAllocationStore) WithTx(ctx context.Context, fn func(tx AllocationTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapPGError("begin allocation tx", err)
	}
	defer tx.Rollback()

	if err := fn(&postgresAllocationTx{tx: tx}); err != nil {
		return err
	}
	// 延迟唯一约束在这里检查，冲突映射为 ErrConflict
	if err := tx.Commit(); err != nil {
		return mapPGError("commit allocation tx", err)
	}
	return nil
}

type postgresAllocationTx struct {
	tx *sql.Tx
}

func (t *postgresAllocationTx) GetResident(ctx context.Context, tenantID, residentID string) (*domain.Resident, error) {
	return loadResident(ctx, t.tx, tenantID, residentID, true)
}

func (t *postgresAllocationTx) GetAsset(ctx context.Context, tenantID, assetID string) (*domain.Asset, error) {
	return loadAsset(ctx, t.tx, tenantID, assetID)
}

func (t *postgresAllocationTx) ReserveAsset(ctx context.Context, tenantID, assetID, occupantID string, expected domain.AssetState) (*domain.Asset, error) {
	if occupantID == "" {
		return nil, fmt.Errorf("%w: occupant_id is required", domain.ErrInvalidArgument)
	}
	query := `
		UPDATE assets
		SET state = 'occupied', occupant_id = $3, version = version + 1, updated_at = NOW()
		WHERE tenant_id = $1 AND asset_id = $2 AND state = $4 AND occupant_id IS NULL
		RETURNING ` + assetColumns
	a, err := scanAsset(t.tx.QueryRowContext(ctx, query, tenantID, assetID, occupantID, string(expected)))
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, mapPGError("reserve asset", err)
	}
	current, lerr := loadAsset(ctx, t.tx, tenantID, assetID)
	if lerr != nil {
		return nil, lerr
	}
	return nil, fmt.Errorf("%w: asset %s is %s", domain.ErrConflict, assetID, current.State)
}

func (t *postgresAllocationTx) ReleaseAsset(ctx context.Context, tenantID, assetID, occupantID string) (*domain.Asset, error) {
	var row *sql.Row
	if occupantID != "" {
		row = t.tx.QueryRowContext(ctx, `
			UPDATE assets
			SET state = 'available', occupant_id = NULL, version = version + 1, updated_at = NOW()
			WHERE tenant_id = $1 AND asset_id = $2 AND occupant_id = $3
			RETURNING `+assetColumns, tenantID, assetID, occupantID)
	} else {
		row = t.tx.QueryRowContext(ctx, `
			UPDATE assets
			SET state = 'available', occupant_id = NULL, version = version + 1, updated_at = NOW()
			WHERE tenant_id = $1 AND asset_id = $2 AND (occupant_id IS NOT NULL OR state = 'occupied')
			RETURNING `+assetColumns, tenantID, assetID)
	}
	a, err := scanAsset(row)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, mapPGError("release asset", err)
	}
	current, lerr := loadAsset(ctx, t.tx, tenantID, assetID)
	if lerr != nil {
		return nil, lerr
	}
	if !current.IsOccupied() && current.State != domain.AssetStateOccupied {
		return current, nil
	}
	return nil, fmt.Errorf("%w: asset %s is held by %s, not %s", domain.ErrConflict, assetID, current.OccupantID, occupantID)
}

func (t *postgresAllocationTx) BindResident(ctx context.Context, tenantID, residentID, expectedAssetID, newAssetID string) (*domain.Resident, error) {
	query := `
		UPDATE residents
		SET assigned_asset_id = NULLIF($4, '')::uuid, version = version + 1, updated_at = NOW()
		WHERE tenant_id = $1 AND resident_id = $2
		  AND assigned_asset_id IS NOT DISTINCT FROM NULLIF($3, '')::uuid
		RETURNING ` + residentColumns
	r, err := scanResident(t.tx.QueryRowContext(ctx, query, tenantID, residentID, expectedAssetID, newAssetID))
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, mapPGError("bind resident", err)
	}
	if _, lerr := loadResident(ctx, t.tx, tenantID, residentID, false); lerr != nil {
		return nil, lerr
	}
	return nil, fmt.Errorf("%w: resident %s binding changed", domain.ErrConflict, residentID)
}

func (t *postgresAllocationTx) SetResidentStatus(ctx context.Context, tenantID, residentID, status string) (*domain.Resident, error) {
	query := `
		UPDATE residents
		SET status = $3, version = version + 1, updated_at = NOW()
		WHERE tenant_id = $1 AND resident_id = $2
		RETURNING ` + residentColumns
	r, err := scanResident(t.tx.QueryRowContext(ctx, query, tenantID, residentID, status))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, residentNotFound(residentID)
		}
		return nil, mapPGError("set resident status", err)
	}
	return r, nil
}
