package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements 建表语句（幂等）
// 唯一约束设为 DEFERRABLE INITIALLY DEFERRED：换床时先占新床再释放旧床，约束在 COMMIT 时统一检查
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS assets (
		asset_id      UUID PRIMARY KEY,
		tenant_id     UUID NOT NULL,
		category      VARCHAR(64) NOT NULL,
		human_label   VARCHAR(255) NOT NULL,
		external_code VARCHAR(64) NOT NULL UNIQUE,
		public_slug   VARCHAR(32) NOT NULL UNIQUE,
		state         VARCHAR(16) NOT NULL DEFAULT 'available'
			CHECK (state IN ('available', 'occupied', 'maintenance', 'damaged')),
		occupant_id   UUID,
		version       BIGINT NOT NULL DEFAULT 1,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT assets_occupant_matches_state CHECK ((state = 'occupied') = (occupant_id IS NOT NULL)),
		CONSTRAINT assets_occupant_unique UNIQUE (occupant_id) DEFERRABLE INITIALLY DEFERRED
	)`,
	`CREATE INDEX IF NOT EXISTS idx_assets_tenant_state ON assets (tenant_id, state)`,
	`CREATE TABLE IF NOT EXISTS residents (
		resident_id       UUID PRIMARY KEY,
		tenant_id         UUID NOT NULL,
		resident_code     VARCHAR(64) NOT NULL,
		nickname          VARCHAR(255) NOT NULL DEFAULT '',
		status            VARCHAR(16) NOT NULL DEFAULT 'active',
		assigned_asset_id UUID,
		version           BIGINT NOT NULL DEFAULT 1,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT residents_code_unique UNIQUE (tenant_id, resident_code),
		CONSTRAINT residents_asset_unique UNIQUE (assigned_asset_id) DEFERRABLE INITIALLY DEFERRED
	)`,
	`CREATE TABLE IF NOT EXISTS allocation_audit (
		entry_id          UUID PRIMARY KEY,
		change_id         UUID NOT NULL UNIQUE,
		tenant_id         UUID NOT NULL,
		resident_id       UUID NOT NULL,
		previous_asset_id UUID,
		new_asset_id      UUID,
		actor_id          VARCHAR(255) NOT NULL,
		reason            VARCHAR(16) NOT NULL,
		occurred_at       TIMESTAMPTZ NOT NULL,
		recorded_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_allocation_audit_resident ON allocation_audit (tenant_id, resident_id, occurred_at)`,
}

// EnsureSchema 启动时建表
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema (statement %d): %w", i+1, err)
		}
	}
	return nil
}
