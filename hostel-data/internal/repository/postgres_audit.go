package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-data/internal/domain"
)

// PostgresAuditRepository allocation_audit 表（只追加）
type PostgresAuditRepository struct {
	db *sql.DB
}

func NewPostgresAuditRepository(db *sql.DB) *PostgresAuditRepository {
	return &PostgresAuditRepository{db: db}
}

var _ AuditRepository = (*PostgresAuditRepository)(nil)

// AppendAuditEntry 同一 change_id 只落一条，重试安全
func (r *PostgresAuditRepository) AppendAuditEntry(ctx context.Context, entry *domain.AuditEntry) error {
	if entry == nil || entry.ChangeID == "" {
		return fmt.Errorf("%w: change_id is required", domain.ErrInvalidArgument)
	}
	query := `
		INSERT INTO allocation_audit (
			entry_id, change_id, tenant_id, resident_id,
			previous_asset_id, new_asset_id, actor_id, reason,
			occurred_at, recorded_at
		) VALUES (
			$1, $2, $3, $4,
			NULLIF($5, '')::uuid, NULLIF($6, '')::uuid, $7, $8,
			$9, $10
		)
		ON CONFLICT (change_id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.EntryID,
		entry.ChangeID,
		entry.TenantID,
		entry.ResidentID,
		entry.PreviousAssetID,
		entry.NewAssetID,
		entry.ActorID,
		string(entry.Reason),
		entry.OccurredAt,
		entry.RecordedAt,
	)
	if err != nil {
		return mapPGError("append audit entry", err)
	}
	return nil
}
