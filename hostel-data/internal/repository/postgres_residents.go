package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-data/internal/domain"
)

// PostgresResidentsRepository 住户Repository实现
type PostgresResidentsRepository struct {
	db *sql.DB
}

// NewPostgresResidentsRepository 创建住户Repository
func NewPostgresResidentsRepository(db *sql.DB) *PostgresResidentsRepository {
	return &PostgresResidentsRepository{db: db}
}

var _ ResidentsRepository = (*PostgresResidentsRepository)(nil)

const residentColumns = `
	resident_id::text,
	tenant_id::text,
	resident_code,
	nickname,
	status,
	COALESCE(assigned_asset_id::text, '') AS assigned_asset_id,
	version,
	created_at,
	updated_at`

func scanResident(row rowScanner) (*domain.Resident, error) {
	var r domain.Resident
	if err := row.Scan(
		&r.ResidentID,
		&r.TenantID,
		&r.ResidentCode,
		&r.Nickname,
		&r.Status,
		&r.AssignedAssetID,
		&r.Version,
		&r.CreatedAt,
		&r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &r, nil
}

func loadResident(ctx context.Context, q rowQueryer, tenantID, residentID string, forUpdate bool) (*domain.Resident, error) {
	query := `SELECT ` + residentColumns + ` FROM residents WHERE tenant_id = $1 AND resident_id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	r, err := scanResident(q.QueryRowContext(ctx, query, tenantID, residentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, residentNotFound(residentID)
		}
		return nil, mapPGError("get resident", err)
	}
	return r, nil
}

// CreateResident 登记住户（不带资产）
func (r *PostgresResidentsRepository) CreateResident(ctx context.Context, resident *domain.Resident) error {
	if resident == nil || resident.TenantID == "" || resident.ResidentCode == "" {
		return fmt.Errorf("%w: tenant_id and resident_code are required", domain.ErrInvalidArgument)
	}
	if resident.AssignedAssetID != "" {
		return fmt.Errorf("%w: resident is enrolled without an asset", domain.ErrInvalidArgument)
	}
	if resident.Status == "" {
		resident.Status = domain.ResidentStatusActive
	}

	query := `
		INSERT INTO residents (resident_id, tenant_id, resident_code, nickname, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING version, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		resident.ResidentID,
		resident.TenantID,
		resident.ResidentCode,
		resident.Nickname,
		resident.Status,
	).Scan(&resident.Version, &resident.CreatedAt, &resident.UpdatedAt)
	if err != nil {
		return mapPGError("create resident", err)
	}
	return nil
}

func (r *PostgresResidentsRepository) GetResident(ctx context.Context, tenantID, residentID string) (*domain.Resident, error) {
	if tenantID == "" || residentID == "" {
		return nil, fmt.Errorf("%w: tenant_id and resident_id are required", domain.ErrInvalidArgument)
	}
	return loadResident(ctx, r.db, tenantID, residentID, false)
}

func (r *PostgresResidentsRepository) GetResidentByCode(ctx context.Context, tenantID, residentCode string) (*domain.Resident, error) {
	query := `SELECT ` + residentColumns + ` FROM residents WHERE tenant_id = $1 AND resident_code = $2`
	res, err := scanResident(r.db.QueryRowContext(ctx, query, tenantID, residentCode))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: resident with code %s", domain.ErrNotFound, residentCode)
		}
		return nil, mapPGError("get resident by code", err)
	}
	return res, nil
}
