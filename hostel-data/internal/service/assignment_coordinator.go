package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-data/internal/domain"
	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-data/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ChangeDispatcher 接收已提交的分配变更（不得阻塞调用方）
type ChangeDispatcher interface {
	Dispatch(change domain.AllocationChange)
}

// AssignmentCoordinator 住户与资产绑定关系的唯一修改入口
// 每个操作在一个分配事务内完成：占用/释放资产 + 更新住户绑定，要么全部生效要么全部回滚
// 提交成功后才把变更交给 ChangeDispatcher
type AssignmentCoordinator struct {
	store      repository.AllocationStore
	registry   *AssetRegistry
	dispatcher ChangeDispatcher
	metrics    *Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewAssignmentCoordinator 创建 AssignmentCoordinator
func NewAssignmentCoordinator(store repository.AllocationStore, registry *AssetRegistry, dispatcher ChangeDispatcher, metrics *Metrics, logger *zap.Logger) *AssignmentCoordinator {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &AssignmentCoordinator{
		store:      store,
		registry:   registry,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// ============================================
// Request/Response DTOs
// ============================================

// AllocationRequest assign / release / checkout 请求
type AllocationRequest struct {
	TenantID   string
	ResidentID string
	AssetID    string // assign 必填；release / checkout 忽略
	ActorID    string // 操作人
}

// ReleaseAssetRequest 按资产释放
type ReleaseAssetRequest struct {
	TenantID string
	AssetID  string
	ActorID  string
}

// SwapRequest 交换两个住户的资产
type SwapRequest struct {
	TenantID    string
	ResidentAID string
	ResidentBID string
	ActorID     string
}

// AllocationResult 操作完成后的住户与资产
// Changed=false 表示幂等的空操作，不产生 AllocationChange
type AllocationResult struct {
	Resident      *domain.Resident `json:"resident"`
	Asset         *domain.Asset    `json:"asset,omitempty"`          // 当前持有的资产
	PreviousAsset *domain.Asset    `json:"previous_asset,omitempty"` // 被释放的资产
	Changed       bool             `json:"changed"`
}

// SwapResult 交换结果
type SwapResult struct {
	First  *AllocationResult `json:"first"`
	Second *AllocationResult `json:"second"`
}

// ============================================
// Operations
// ============================================

// Assign 把资产分配给住户；住户已持有其他资产时视为换床（move）
// 顺序：先占新资产，成功后再释放旧资产，整个过程在同一事务内
func (c *AssignmentCoordinator) Assign(ctx context.Context, req AllocationRequest) (*AllocationResult, error) {
	if req.TenantID == "" || req.ResidentID == "" || req.AssetID == "" {
		return nil, fmt.Errorf("%w: tenant_id, resident_id and asset_id are required", domain.ErrInvalidArgument)
	}

	var (
		result *AllocationResult
		change *domain.AllocationChange
	)
	err := c.store.WithTx(ctx, func(tx repository.AllocationTx) error {
		result, change = nil, nil

		resident, err := tx.GetResident(ctx, req.TenantID, req.ResidentID)
		if err != nil {
			return err
		}
		if resident.Status == domain.ResidentStatusCheckedOut {
			return fmt.Errorf("%w: resident %s has checked out", domain.ErrInvalidArgument, resident.ResidentID)
		}

		if resident.AssignedAssetID == req.AssetID {
			asset, err := tx.GetAsset(ctx, req.TenantID, req.AssetID)
			if err != nil {
				return err
			}
			result = &AllocationResult{Resident: resident, Asset: asset}
			return nil
		}

		reserved, err := c.registry.tryReserve(ctx, tx, req.TenantID, req.AssetID, resident.ResidentID)
		if err != nil {
			return err
		}

		reason := domain.ReasonAssign
		var previous *domain.Asset
		if resident.HasAsset() {
			reason = domain.ReasonMove
			if previous, err = c.registry.release(ctx, tx, req.TenantID, resident.AssignedAssetID, resident.ResidentID); err != nil {
				return err
			}
		}

		bound, err := tx.BindResident(ctx, req.TenantID, resident.ResidentID, resident.AssignedAssetID, reserved.AssetID)
		if err != nil {
			return err
		}

		result = &AllocationResult{Resident: bound, Asset: reserved, PreviousAsset: previous, Changed: true}
		change = c.newChange(req.TenantID, req.ActorID, reason, bound.ResidentID, previous, reserved)
		return nil
	})
	if err != nil {
		err = asUnavailable(err)
		c.fail("assign", req.TenantID, req.ResidentID, req.AssetID, err)
		return nil, err
	}

	c.metrics.observeOperation("assign", result.Changed, nil)
	c.commit(change)
	return result, nil
}

// Release 释放住户当前持有的资产；未持有时为幂等成功
func (c *AssignmentCoordinator) Release(ctx context.Context, req AllocationRequest) (*AllocationResult, error) {
	if req.TenantID == "" || req.ResidentID == "" {
		return nil, fmt.Errorf("%w: tenant_id and resident_id are required", domain.ErrInvalidArgument)
	}

	var (
		result *AllocationResult
		change *domain.AllocationChange
	)
	err := c.store.WithTx(ctx, func(tx repository.AllocationTx) error {
		result, change = nil, nil

		resident, err := tx.GetResident(ctx, req.TenantID, req.ResidentID)
		if err != nil {
			return err
		}
		result, change, err = c.releaseHeld(ctx, tx, req.TenantID, req.ActorID, resident, domain.ReasonRelease)
		return err
	})
	if err != nil {
		c.fail("release", req.TenantID, req.ResidentID, "", err)
		return nil, err
	}

	c.metrics.observeOperation("release", result.Changed, nil)
	c.commit(change)
	return result, nil
}

// ReleaseAsset 按资产释放（管理员收回床位），经由占用者走正常释放流程
func (c *AssignmentCoordinator) ReleaseAsset(ctx context.Context, req ReleaseAssetRequest) (*AllocationResult, error) {
	if req.TenantID == "" || req.AssetID == "" {
		return nil, fmt.Errorf("%w: tenant_id and asset_id are required", domain.ErrInvalidArgument)
	}

	var (
		result *AllocationResult
		change *domain.AllocationChange
	)
	err := c.store.WithTx(ctx, func(tx repository.AllocationTx) error {
		result, change = nil, nil

		asset, err := tx.GetAsset(ctx, req.TenantID, req.AssetID)
		if err != nil {
			return err
		}
		if !asset.IsOccupied() {
			result = &AllocationResult{Asset: asset}
			return nil
		}
		resident, err := tx.GetResident(ctx, req.TenantID, asset.OccupantID)
		if err != nil {
			return err
		}
		if resident.AssignedAssetID != asset.AssetID {
			return fmt.Errorf("%w: asset %s occupant %s is bound elsewhere", domain.ErrConflict, asset.AssetID, resident.ResidentID)
		}
		result, change, err = c.releaseHeld(ctx, tx, req.TenantID, req.ActorID, resident, domain.ReasonRelease)
		return err
	})
	if err != nil {
		c.fail("release_asset", req.TenantID, "", req.AssetID, err)
		return nil, err
	}

	c.metrics.observeOperation("release_asset", result.Changed, nil)
	c.commit(change)
	return result, nil
}

// Checkout 退宿：释放资产并把住户标记为 checked_out（同一事务）
func (c *AssignmentCoordinator) Checkout(ctx context.Context, req AllocationRequest) (*AllocationResult, error) {
	if req.TenantID == "" || req.ResidentID == "" {
		return nil, fmt.Errorf("%w: tenant_id and resident_id are required", domain.ErrInvalidArgument)
	}

	var (
		result *AllocationResult
		change *domain.AllocationChange
	)
	err := c.store.WithTx(ctx, func(tx repository.AllocationTx) error {
		result, change = nil, nil

		resident, err := tx.GetResident(ctx, req.TenantID, req.ResidentID)
		if err != nil {
			return err
		}
		if result, change, err = c.releaseHeld(ctx, tx, req.TenantID, req.ActorID, resident, domain.ReasonCheckout); err != nil {
			return err
		}
		if resident.Status == domain.ResidentStatusCheckedOut {
			return nil
		}
		updated, err := tx.SetResidentStatus(ctx, req.TenantID, resident.ResidentID, domain.ResidentStatusCheckedOut)
		if err != nil {
			return err
		}
		result.Resident = updated
		result.Changed = true
		return nil
	})
	if err != nil {
		c.fail("checkout", req.TenantID, req.ResidentID, "", err)
		return nil, err
	}

	c.metrics.observeOperation("checkout", result.Changed, nil)
	c.commit(change)
	return result, nil
}

// Swap 交换两个住户的资产（任意一方可以为空）
// 事务内顺序：A 解绑并释放 X，B 解绑并释放 Y，A 占用 Y，B 占用 X；任一步失败整体回滚
func (c *AssignmentCoordinator) Swap(ctx context.Context, req SwapRequest) (*SwapResult, error) {
	if req.TenantID == "" || req.ResidentAID == "" || req.ResidentBID == "" {
		return nil, fmt.Errorf("%w: tenant_id and both resident ids are required", domain.ErrInvalidArgument)
	}
	if req.ResidentAID == req.ResidentBID {
		return nil, fmt.Errorf("%w: cannot swap a resident with itself", domain.ErrInvalidArgument)
	}

	var (
		result  *SwapResult
		changes []*domain.AllocationChange
	)
	err := c.store.WithTx(ctx, func(tx repository.AllocationTx) error {
		result, changes = nil, nil

		a, b, err := lockResidentPair(ctx, tx, req.TenantID, req.ResidentAID, req.ResidentBID)
		if err != nil {
			return err
		}
		if a.Status == domain.ResidentStatusCheckedOut || b.Status == domain.ResidentStatusCheckedOut {
			return fmt.Errorf("%w: checked-out residents cannot swap", domain.ErrInvalidArgument)
		}

		x, y := a.AssignedAssetID, b.AssignedAssetID
		if x == "" && y == "" {
			result = &SwapResult{First: &AllocationResult{Resident: a}, Second: &AllocationResult{Resident: b}}
			return nil
		}

		var assetX, assetY *domain.Asset
		boundA, boundB := a, b
		if x != "" {
			if boundA, err = tx.BindResident(ctx, req.TenantID, a.ResidentID, x, ""); err != nil {
				return err
			}
			if assetX, err = c.registry.release(ctx, tx, req.TenantID, x, a.ResidentID); err != nil {
				return err
			}
		}
		if y != "" {
			if boundB, err = tx.BindResident(ctx, req.TenantID, b.ResidentID, y, ""); err != nil {
				return err
			}
			if assetY, err = c.registry.release(ctx, tx, req.TenantID, y, b.ResidentID); err != nil {
				return err
			}
		}

		var heldA, heldB *domain.Asset
		if y != "" {
			if heldA, err = c.registry.tryReserve(ctx, tx, req.TenantID, y, a.ResidentID); err != nil {
				return err
			}
			if boundA, err = tx.BindResident(ctx, req.TenantID, a.ResidentID, "", y); err != nil {
				return err
			}
		}
		if x != "" {
			if heldB, err = c.registry.tryReserve(ctx, tx, req.TenantID, x, b.ResidentID); err != nil {
				return err
			}
			if boundB, err = tx.BindResident(ctx, req.TenantID, b.ResidentID, "", x); err != nil {
				return err
			}
		}

		result = &SwapResult{
			First:  &AllocationResult{Resident: boundA, Asset: heldA, PreviousAsset: assetX, Changed: true},
			Second: &AllocationResult{Resident: boundB, Asset: heldB, PreviousAsset: assetY, Changed: true},
		}
		changes = []*domain.AllocationChange{
			c.newChange(req.TenantID, req.ActorID, domain.ReasonSwap, a.ResidentID, assetX, heldA),
			c.newChange(req.TenantID, req.ActorID, domain.ReasonSwap, b.ResidentID, assetY, heldB),
		}
		return nil
	})
	if err != nil {
		err = asUnavailable(err)
		c.fail("swap", req.TenantID, req.ResidentAID, req.ResidentBID, err)
		return nil, err
	}

	c.metrics.observeOperation("swap", len(changes) > 0, nil)
	for _, change := range changes {
		c.commit(change)
	}
	return result, nil
}

// lockResidentPair 按 resident_id 升序读取（加锁）两个住户，返回顺序与参数一致
// 相反顺序的并发 swap 因此不会互相等待
func lockResidentPair(ctx context.Context, tx repository.AllocationTx, tenantID, aID, bID string) (*domain.Resident, *domain.Resident, error) {
	firstID, secondID := aID, bID
	if secondID < firstID {
		firstID, secondID = secondID, firstID
	}
	first, err := tx.GetResident(ctx, tenantID, firstID)
	if err != nil {
		return nil, nil, err
	}
	second, err := tx.GetResident(ctx, tenantID, secondID)
	if err != nil {
		return nil, nil, err
	}
	if firstID == aID {
		return first, second, nil
	}
	return second, first, nil
}

// releaseHeld 事务内释放住户持有的资产；未持有时返回 Changed=false
func (c *AssignmentCoordinator) releaseHeld(ctx context.Context, tx repository.AllocationTx, tenantID, actorID string, resident *domain.Resident, reason domain.ChangeReason) (*AllocationResult, *domain.AllocationChange, error) {
	if !resident.HasAsset() {
		return &AllocationResult{Resident: resident}, nil, nil
	}
	released, err := c.registry.release(ctx, tx, tenantID, resident.AssignedAssetID, resident.ResidentID)
	if err != nil {
		return nil, nil, err
	}
	bound, err := tx.BindResident(ctx, tenantID, resident.ResidentID, resident.AssignedAssetID, "")
	if err != nil {
		return nil, nil, err
	}
	change := c.newChange(tenantID, actorID, reason, bound.ResidentID, released, nil)
	return &AllocationResult{Resident: bound, PreviousAsset: released, Changed: true}, change, nil
}

func (c *AssignmentCoordinator) newChange(tenantID, actorID string, reason domain.ChangeReason, residentID string, previous, next *domain.Asset) *domain.AllocationChange {
	change := &domain.AllocationChange{
		ChangeID:   uuid.NewString(),
		TenantID:   tenantID,
		Timestamp:  c.now().UTC(),
		ResidentID: residentID,
		ActorID:    actorID,
		Reason:     reason,
	}
	if previous != nil {
		change.PreviousAssetID = previous.AssetID
		change.PreviousAssetLabel = previous.HumanLabel
	}
	if next != nil {
		change.NewAssetID = next.AssetID
		change.NewAssetLabel = next.HumanLabel
	}
	return change
}

// commit 事务提交后调用，把变更交给分发器
func (c *AssignmentCoordinator) commit(change *domain.AllocationChange) {
	if change == nil {
		return
	}
	c.logger.Info("Allocation changed",
		zap.String("change_id", change.ChangeID),
		zap.String("tenant_id", change.TenantID),
		zap.String("resident_id", change.ResidentID),
		zap.String("previous_asset_id", change.PreviousAssetID),
		zap.String("new_asset_id", change.NewAssetID),
		zap.String("actor_id", change.ActorID),
		zap.String("reason", string(change.Reason)),
	)
	if c.dispatcher != nil {
		c.dispatcher.Dispatch(*change)
	}
}

func (c *AssignmentCoordinator) fail(operation, tenantID, residentID, assetID string, err error) {
	c.metrics.observeOperation(operation, false, err)
	fields := []zap.Field{
		zap.String("operation", operation),
		zap.String("tenant_id", tenantID),
		zap.String("resident_id", residentID),
		zap.String("asset_id", assetID),
		zap.Error(err),
	}
	if errors.Is(err, domain.ErrStorage) {
		c.logger.Error("Allocation failed", fields...)
		return
	}
	c.logger.Info("Allocation rejected", fields...)
}

// asUnavailable 抢占失败（ErrConflict）对调用方统一表现为 ErrAssetUnavailable
func asUnavailable(err error) error {
	if errors.Is(err, domain.ErrConflict) && !errors.Is(err, domain.ErrAssetUnavailable) {
		return fmt.Errorf("%w: %w", domain.ErrAssetUnavailable, err)
	}
	return err
}
