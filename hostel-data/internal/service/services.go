package service

import (
	"context"

	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-data/internal/domain"
)

// AssetService 资产管理（Handler 依赖的接口）
type AssetService interface {
	CreateAsset(ctx context.Context, req CreateAssetRequest) (*domain.Asset, error)
	GetAsset(ctx context.Context, tenantID, assetID string) (*domain.Asset, error)
	GetByExternalCode(ctx context.Context, tenantID, externalCode string) (*domain.Asset, error)
	GetByPublicSlug(ctx context.Context, publicSlug string) (*domain.Asset, error)
	ListAvailable(ctx context.Context, req ListAvailableRequest) (*ListAssetsResponse, error)
	ListAssets(ctx context.Context, req ListAssetsRequest) (*ListAssetsResponse, error)
	ImportAssets(ctx context.Context, tenantID string, rows []CreateAssetRequest) (*ImportAssetsResult, error)
	SetMaintenanceState(ctx context.Context, tenantID, assetID string, state domain.AssetState) (*domain.Asset, error)
	DeleteAsset(ctx context.Context, tenantID, assetID string) error
}

// ResidentService 住户目录
type ResidentService interface {
	CreateResident(ctx context.Context, req CreateResidentRequest) (*domain.Resident, error)
	GetResident(ctx context.Context, tenantID, residentID string) (*domain.Resident, error)
	GetResidentByCode(ctx context.Context, tenantID, residentCode string) (*domain.Resident, error)
}

// AllocationService 分配操作
type AllocationService interface {
	Assign(ctx context.Context, req AllocationRequest) (*AllocationResult, error)
	Release(ctx context.Context, req AllocationRequest) (*AllocationResult, error)
	ReleaseAsset(ctx context.Context, req ReleaseAssetRequest) (*AllocationResult, error)
	Checkout(ctx context.Context, req AllocationRequest) (*AllocationResult, error)
	Swap(ctx context.Context, req SwapRequest) (*SwapResult, error)
}

var (
	_ AssetService      = (*AssetRegistry)(nil)
	_ ResidentService   = (*ResidentDirectory)(nil)
	_ AllocationService = (*AssignmentCoordinator)(nil)
)
