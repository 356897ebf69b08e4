package domain

import "time"

const (
	ResidentStatusActive     = "active"
	ResidentStatusCheckedOut = "checked_out"
)

// Resident 住户领域模型（对应 residents 表）
type Resident struct {
	ResidentID      string    `db:"resident_id" json:"resident_id"`     // UUID, PRIMARY KEY
	TenantID        string    `db:"tenant_id" json:"tenant_id"`         // UUID, NOT NULL
	ResidentCode    string    `db:"resident_code" json:"resident_code"` // 对外展示的住户编号, UNIQUE(tenant_id, resident_code)
	Nickname        string    `db:"nickname" json:"nickname"`
	Status          string    `db:"status" json:"status"`                                 // active / checked_out
	AssignedAssetID string    `db:"assigned_asset_id" json:"assigned_asset_id,omitempty"` // nullable，仅由分配协调器修改
	Version         int64     `db:"version" json:"version"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// HasAsset 是否持有资产
func (r *Resident) HasAsset() bool {
	return r.AssignedAssetID != ""
}

// Clone 返回副本
func (r *Resident) Clone() *Resident {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}
