package domain

import (
	"fmt"
	"time"
)

// AssetState 资产状态
type AssetState string

const (
	AssetStateAvailable     AssetState = "available"
	AssetStateOccupied      AssetState = "occupied"
	AssetStateInMaintenance AssetState = "maintenance"
	AssetStateDamaged       AssetState = "damaged"
)

// Valid 是否为已知状态
func (s AssetState) Valid() bool {
	switch s {
	case AssetStateAvailable, AssetStateOccupied, AssetStateInMaintenance, AssetStateDamaged:
		return true
	}
	return false
}

// ParseAssetState 解析状态字符串
func ParseAssetState(s string) (AssetState, error) {
	state := AssetState(s)
	if !state.Valid() {
		return "", fmt.Errorf("%w: unknown asset state %q", ErrInvalidArgument, s)
	}
	return state, nil
}

// Asset 可分配资产领域模型（对应 assets 表），如床位、家具
// OccupantID 与 State 是同一事实的两个视图：State == occupied 当且仅当 OccupantID 非空
type Asset struct {
	AssetID      string     `db:"asset_id" json:"asset_id"`           // UUID, PRIMARY KEY
	TenantID     string     `db:"tenant_id" json:"tenant_id"`         // UUID, NOT NULL
	Category     string     `db:"category" json:"category"`           // bed / wardrobe / desk ...
	HumanLabel   string     `db:"human_label" json:"human_label"`     // 房间/楼层/位置描述
	ExternalCode string     `db:"external_code" json:"external_code"` // 扫码编号，全局唯一，创建后不可变
	PublicSlug   string     `db:"public_slug" json:"public_slug"`     // 公开标识，全局唯一，创建后不可变
	State        AssetState `db:"state" json:"state"`
	OccupantID   string     `db:"occupant_id" json:"occupant_id,omitempty"` // nullable（空字符串表示无人占用）
	Version      int64      `db:"version" json:"version"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// IsOccupied 是否被占用
func (a *Asset) IsOccupied() bool {
	return a.OccupantID != ""
}

// Consistent 校验 state 与 occupant 是否一致
func (a *Asset) Consistent() bool {
	return (a.State == AssetStateOccupied) == (a.OccupantID != "")
}

// Clone 返回副本
func (a *Asset) Clone() *Asset {
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}
