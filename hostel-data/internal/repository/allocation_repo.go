package repository

import (
	"context"

	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-data/internal/domain"
)

// AssetFilters 资产查询过滤器
type AssetFilters struct {
	Category    string            // 按 category 过滤
	LabelPrefix string            // human_label 前缀匹配（如 "Block A/2F"）
	State       domain.AssetState // 按 state 过滤，空表示不过滤
}

// AssetsRepository 资产Repository接口
// 注意：占用/释放不在这里，只能通过 AllocationTx 完成
type AssetsRepository interface {
	CreateAsset(ctx context.Context, asset *domain.Asset) error
	GetAsset(ctx context.Context, tenantID, assetID string) (*domain.Asset, error)
	GetAssetByExternalCode(ctx context.Context, tenantID, externalCode string) (*domain.Asset, error)
	GetAssetByPublicSlug(ctx context.Context, publicSlug string) (*domain.Asset, error)
	ListAssets(ctx context.Context, tenantID string, filters AssetFilters, page, size int) ([]*domain.Asset, int, error)

	// 唯一性检查（全局，不区分租户）
	ExternalCodeExists(ctx context.Context, externalCode string) (bool, error)
	PublicSlugExists(ctx context.Context, publicSlug string) (bool, error)

	// SetMaintenanceState 条件更新：仅当 occupant 为空时生效，否则 ErrAssetOccupied
	SetMaintenanceState(ctx context.Context, tenantID, assetID string, state domain.AssetState) (*domain.Asset, error)
	// DeleteAsset 条件删除：仅当 occupant 为空时生效，否则 ErrAssetOccupied
	DeleteAsset(ctx context.Context, tenantID, assetID string) error
}

// ResidentsRepository 住户Repository接口（住户目录）
// assigned_asset_id 只能通过 AllocationTx 修改
type ResidentsRepository interface {
	CreateResident(ctx context.Context, resident *domain.Resident) error
	GetResident(ctx context.Context, tenantID, residentID string) (*domain.Resident, error)
	GetResidentByCode(ctx context.Context, tenantID, residentCode string) (*domain.Resident, error)
}

// AllocationTx 跨 assets/residents 的分配事务
// 所有写操作都是条件更新（compare-and-set），期望值不匹配时返回 domain.ErrConflict
type AllocationTx interface {
	GetResident(ctx context.Context, tenantID, residentID string) (*domain.Resident, error)
	GetAsset(ctx context.Context, tenantID, assetID string) (*domain.Asset, error)

	// ReserveAsset 仅当资产当前状态等于 expected 且无人占用时，置为 occupied 并写入 occupant
	ReserveAsset(ctx context.Context, tenantID, assetID, occupantID string, expected domain.AssetState) (*domain.Asset, error)
	// ReleaseAsset 置为 available 并清空 occupant；已空闲时为幂等成功
	// occupantID 非空时要求当前 occupant 与之相同，否则 ErrConflict
	ReleaseAsset(ctx context.Context, tenantID, assetID, occupantID string) (*domain.Asset, error)

	// BindResident 仅当住户当前 assigned_asset_id 等于 expectedAssetID 时改为 newAssetID（空字符串表示 NULL）
	BindResident(ctx context.Context, tenantID, residentID, expectedAssetID, newAssetID string) (*domain.Resident, error)
	SetResidentStatus(ctx context.Context, tenantID, residentID, status string) (*domain.Resident, error)
}

// AllocationStore 分配事务入口
// fn 返回错误时整体回滚，不留下任何部分状态
type AllocationStore interface {
	WithTx(ctx context.Context, fn func(tx AllocationTx) error) error
}

// AuditRepository 审计追加接口（只追加，同一 change_id 重复写入视为成功）
type AuditRepository interface {
	AppendAuditEntry(ctx context.Context, entry *domain.AuditEntry) error
}
