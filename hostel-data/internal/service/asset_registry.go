package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-data/internal/domain"
	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-data/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxIdentityAttempts 生成的 external_code/public_slug 撞库时的重试次数
const maxIdentityAttempts = 5

// AssetRegistry 资产登记：资产生命周期与状态迁移的唯一入口
// 占用/释放只能在分配事务内通过 tryReserve/release 完成（由 AssignmentCoordinator 调用）
type AssetRegistry struct {
	assets repository.AssetsRepository
	ids    IdentityGenerator
	logger *zap.Logger
}

// NewAssetRegistry 创建 AssetRegistry
func NewAssetRegistry(assets repository.AssetsRepository, ids IdentityGenerator, logger *zap.Logger) *AssetRegistry {
	if ids == nil {
		ids = NewIdentityGenerator()
	}
	return &AssetRegistry{assets: assets, ids: ids, logger: logger}
}

// ============================================
// Request/Response DTOs
// ============================================

// CreateAssetRequest 创建资产请求
type CreateAssetRequest struct {
	TenantID     string
	Category     string // bed / wardrobe / desk ...
	HumanLabel   string // 房间/楼层/位置
	ExternalCode string // 可选，为空时自动生成
}

// ListAvailableRequest 查询可分配资产
type ListAvailableRequest struct {
	TenantID    string
	Category    string
	LabelPrefix string
	Page        int
	Size        int
}

// ListAssetsResponse 资产列表
type ListAssetsResponse struct {
	Items []*domain.Asset
	Total int
}

// CreateAsset 新资产总是以 available 状态创建
func (r *AssetRegistry) CreateAsset(ctx context.Context, req CreateAssetRequest) (*domain.Asset, error) {
	req.Category = strings.TrimSpace(req.Category)
	req.HumanLabel = strings.TrimSpace(req.HumanLabel)
	req.ExternalCode = strings.TrimSpace(req.ExternalCode)
	if req.TenantID == "" || req.Category == "" || req.HumanLabel == "" {
		return nil, fmt.Errorf("%w: tenant_id, category and human_label are required", domain.ErrInvalidArgument)
	}

	if req.ExternalCode != "" {
		exists, err := r.assets.ExternalCodeExists(ctx, req.ExternalCode)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("%w: external_code %s already exists", domain.ErrConflict, req.ExternalCode)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= maxIdentityAttempts; attempt++ {
		code := req.ExternalCode
		if code == "" {
			var err error
			if code, err = r.uniqueExternalCode(ctx, req.Category); err != nil {
				return nil, err
			}
		}
		slug, err := r.uniquePublicSlug(ctx)
		if err != nil {
			return nil, err
		}

		asset := &domain.Asset{
			AssetID:      uuid.NewString(),
			TenantID:     req.TenantID,
			Category:     req.Category,
			HumanLabel:   req.HumanLabel,
			ExternalCode: code,
			PublicSlug:   slug,
			State:        domain.AssetStateAvailable,
		}
		err = r.assets.CreateAsset(ctx, asset)
		if err == nil {
			r.logger.Info("Asset created",
				zap.String("tenant_id", asset.TenantID),
				zap.String("asset_id", asset.AssetID),
				zap.String("external_code", asset.ExternalCode),
				zap.String("category", asset.Category),
			)
			return asset, nil
		}
		// 唯一索引兜底：检查与写入之间被并发占用
		if !errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		lastErr = err
		r.logger.Warn("Asset identity collided on insert, regenerating",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if req.ExternalCode != "" {
			// 调用方指定的 external_code 不重新生成，只重试 slug
			exists, cerr := r.assets.ExternalCodeExists(ctx, req.ExternalCode)
			if cerr != nil {
				return nil, cerr
			}
			if exists {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("create asset: identity collisions after %d attempts: %w", maxIdentityAttempts, lastErr)
}

func (r *AssetRegistry) uniqueExternalCode(ctx context.Context, category string) (string, error) {
	for attempt := 0; attempt < maxIdentityAttempts; attempt++ {
		code := r.ids.NewExternalCode(category)
		exists, err := r.assets.ExternalCodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("%w: could not generate a unique external_code", domain.ErrConflict)
}

func (r *AssetRegistry) uniquePublicSlug(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxIdentityAttempts; attempt++ {
		slug, err := r.ids.NewPublicSlug()
		if err != nil {
			return "", err
		}
		exists, err := r.assets.PublicSlugExists(ctx, slug)
		if err != nil {
			return "", err
		}
		if !exists {
			return slug, nil
		}
	}
	return "", fmt.Errorf("%w: could not generate a unique public_slug", domain.ErrConflict)
}

// GetAsset 按 id 查询
func (r *AssetRegistry) GetAsset(ctx context.Context, tenantID, assetID string) (*domain.Asset, error) {
	if tenantID == "" || assetID == "" {
		return nil, fmt.Errorf("%w: tenant_id and asset_id are required", domain.ErrInvalidArgument)
	}
	return r.assets.GetAsset(ctx, tenantID, assetID)
}

// GetByExternalCode 扫码查询
func (r *AssetRegistry) GetByExternalCode(ctx context.Context, tenantID, externalCode string) (*domain.Asset, error) {
	if tenantID == "" || externalCode == "" {
		return nil, fmt.Errorf("%w: tenant_id and external_code are required", domain.ErrInvalidArgument)
	}
	return r.assets.GetAssetByExternalCode(ctx, tenantID, externalCode)
}

// GetByPublicSlug 公开查询（不需要 tenant）
func (r *AssetRegistry) GetByPublicSlug(ctx context.Context, publicSlug string) (*domain.Asset, error) {
	if publicSlug == "" {
		return nil, fmt.Errorf("%w: public_slug is required", domain.ErrInvalidArgument)
	}
	return r.assets.GetAssetByPublicSlug(ctx, publicSlug)
}

// ListAvailable 只返回 available 的资产
func (r *AssetRegistry) ListAvailable(ctx context.Context, req ListAvailableRequest) (*ListAssetsResponse, error) {
	if req.TenantID == "" {
		return nil, fmt.Errorf("%w: tenant_id is required", domain.ErrInvalidArgument)
	}
	items, total, err := r.assets.ListAssets(ctx, req.TenantID, repository.AssetFilters{
		Category:    req.Category,
		LabelPrefix: req.LabelPrefix,
		State:       domain.AssetStateAvailable,
	}, req.Page, req.Size)
	if err != nil {
		return nil, err
	}
	return &ListAssetsResponse{Items: items, Total: total}, nil
}

// ListAssetsRequest 全量资产查询（导出用），State 为空表示全部状态
type ListAssetsRequest struct {
	TenantID    string
	Category    string
	LabelPrefix string
	State       domain.AssetState
	Page        int
	Size        int
}

// ListAssets 不限状态的资产列表
func (r *AssetRegistry) ListAssets(ctx context.Context, req ListAssetsRequest) (*ListAssetsResponse, error) {
	if req.TenantID == "" {
		return nil, fmt.Errorf("%w: tenant_id is required", domain.ErrInvalidArgument)
	}
	if req.State != "" && !req.State.Valid() {
		return nil, fmt.Errorf("%w: unknown asset state %q", domain.ErrInvalidArgument, req.State)
	}
	items, total, err := r.assets.ListAssets(ctx, req.TenantID, repository.AssetFilters{
		Category:    req.Category,
		LabelPrefix: req.LabelPrefix,
		State:       req.State,
	}, req.Page, req.Size)
	if err != nil {
		return nil, err
	}
	return &ListAssetsResponse{Items: items, Total: total}, nil
}

// ImportRowError 导入失败的行
type ImportRowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ImportAssetsResult 批量导入结果
type ImportAssetsResult struct {
	Total        int              `json:"total"`
	SuccessCount int              `json:"success_count"`
	Created      []*domain.Asset  `json:"created"`
	Errors       []ImportRowError `json:"errors"`
}

// ImportAssets 逐行创建，单行失败不影响其他行；Row 从 1 开始计数（不含表头）
func (r *AssetRegistry) ImportAssets(ctx context.Context, tenantID string, rows []CreateAssetRequest) (*ImportAssetsResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant_id is required", domain.ErrInvalidArgument)
	}
	result := &ImportAssetsResult{Total: len(rows), Created: []*domain.Asset{}, Errors: []ImportRowError{}}
	for i, row := range rows {
		row.TenantID = tenantID
		asset, err := r.CreateAsset(ctx, row)
		if err != nil {
			if errors.Is(err, domain.ErrStorage) {
				return nil, err
			}
			result.Errors = append(result.Errors, ImportRowError{Row: i + 1, Message: err.Error()})
			continue
		}
		result.Created = append(result.Created, asset)
	}
	result.SuccessCount = len(result.Created)
	r.logger.Info("Assets imported",
		zap.String("tenant_id", tenantID),
		zap.Int("total", result.Total),
		zap.Int("success_count", result.SuccessCount),
	)
	return result, nil
}

// SetMaintenanceState 维护状态变更：available / maintenance / damaged
// 资产被占用时返回 ErrAssetOccupied 且不修改任何字段
func (r *AssetRegistry) SetMaintenanceState(ctx context.Context, tenantID, assetID string, state domain.AssetState) (*domain.Asset, error) {
	if tenantID == "" || assetID == "" {
		return nil, fmt.Errorf("%w: tenant_id and asset_id are required", domain.ErrInvalidArgument)
	}
	if !state.Valid() || state == domain.AssetStateOccupied {
		return nil, fmt.Errorf("%w: state must be available, maintenance or damaged", domain.ErrInvalidArgument)
	}
	asset, err := r.assets.SetMaintenanceState(ctx, tenantID, assetID, state)
	if err != nil {
		return nil, err
	}
	r.logger.Info("Asset state changed",
		zap.String("tenant_id", tenantID),
		zap.String("asset_id", assetID),
		zap.String("state", string(state)),
	)
	return asset, nil
}

// DeleteAsset 只允许删除无人占用的资产
func (r *AssetRegistry) DeleteAsset(ctx context.Context, tenantID, assetID string) error {
	if tenantID == "" || assetID == "" {
		return fmt.Errorf("%w: tenant_id and asset_id are required", domain.ErrInvalidArgument)
	}
	if err := r.assets.DeleteAsset(ctx, tenantID, assetID); err != nil {
		return err
	}
	r.logger.Info("Asset deleted", zap.String("tenant_id", tenantID), zap.String("asset_id", assetID))
	return nil
}

// tryReserve 在分配事务内占用资产：仅当资产当前为 available 时成功，否则 ErrConflict
func (r *AssetRegistry) tryReserve(ctx context.Context, tx repository.AllocationTx, tenantID, assetID, occupantID string) (*domain.Asset, error) {
	return tx.ReserveAsset(ctx, tenantID, assetID, occupantID, domain.AssetStateAvailable)
}

// release 在分配事务内释放资产，已空闲时幂等
func (r *AssetRegistry) release(ctx context.Context, tx repository.AllocationTx, tenantID, assetID, occupantID string) (*domain.Asset, error) {
	return tx.ReleaseAsset(ctx, tenantID, assetID, occupantID)
}
