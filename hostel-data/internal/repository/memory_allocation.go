package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-data/internal/domain"

	"github.com/google/uuid"
)

// MemoryAllocationStore: 用于 DB 未就绪时的联测，以及 service 层单元测试
// - 按 tenant_id 隔离
// - 事务采用乐观并发：读取时记录 version，提交时校验，任何被并发修改的记录都会导致 ErrConflict
// - 提交时校验唯一约束（一个资产最多一个住户、一个住户最多一个资产），等价于数据库的延迟唯一约束
type MemoryAllocationStore struct {
	mu        sync.RWMutex
	assets    map[string]*domain.Asset    // assetID -> Asset
	residents map[string]*domain.Resident // residentID -> Resident
	now       func() time.Time
}

func NewMemoryAllocationStore() *MemoryAllocationStore {
	return &MemoryAllocationStore{
		assets:    map[string]*domain.Asset{},
		residents: map[string]*domain.Resident{},
		now:       time.Now,
	}
}

var (
	_ AssetsRepository    = (*MemoryAllocationStore)(nil)
	_ ResidentsRepository = (*MemoryAllocationStore)(nil)
	_ AllocationStore     = (*MemoryAllocationStore)(nil)
)

// ---- assets ----

func (s *MemoryAllocationStore) CreateAsset(_ context.Context, asset *domain.Asset) error {
	if asset == nil || asset.TenantID == "" {
		return fmt.Errorf("%w: tenant_id is required", domain.ErrInvalidArgument)
	}
	if asset.ExternalCode == "" || asset.PublicSlug == "" {
		return fmt.Errorf("%w: external_code and public_slug are required", domain.ErrInvalidArgument)
	}
	if asset.State == "" {
		asset.State = domain.AssetStateAvailable
	}
	if asset.State == domain.AssetStateOccupied || asset.OccupantID != "" {
		return fmt.Errorf("%w: new asset cannot be occupied", domain.ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.assets {
		if a.ExternalCode == asset.ExternalCode {
			return fmt.Errorf("%w: external_code %s already exists", domain.ErrConflict, asset.ExternalCode)
		}
		if a.PublicSlug == asset.PublicSlug {
			return fmt.Errorf("%w: public_slug %s already exists", domain.ErrConflict, asset.PublicSlug)
		}
	}
	if asset.AssetID == "" {
		asset.AssetID = uuid.NewString()
	}
	if _, ok := s.assets[asset.AssetID]; ok {
		return fmt.Errorf("%w: asset %s already exists", domain.ErrConflict, asset.AssetID)
	}
	now := s.now()
	asset.Version = 1
	asset.CreatedAt = now
	asset.UpdatedAt = now
	s.assets[asset.AssetID] = asset.Clone()
	return nil
}

func (s *MemoryAllocationStore) GetAsset(_ context.Context, tenantID, assetID string) (*domain.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assets[assetID]
	if !ok || a.TenantID != tenantID {
		return nil, assetNotFound(assetID)
	}
	return a.Clone(), nil
}

func (s *MemoryAllocationStore) GetAssetByExternalCode(_ context.Context, tenantID, externalCode string) (*domain.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.assets {
		if a.TenantID == tenantID && a.ExternalCode == externalCode {
			return a.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: asset with external_code %s", domain.ErrNotFound, externalCode)
}

func (s *MemoryAllocationStore) GetAssetByPublicSlug(_ context.Context, publicSlug string) (*domain.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.assets {
		if a.PublicSlug == publicSlug {
			return a.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: asset with public_slug %s", domain.ErrNotFound, publicSlug)
}

func (s *MemoryAllocationStore) ListAssets(_ context.Context, tenantID string, filters AssetFilters, page, size int) ([]*domain.Asset, int, error) {
	page, size = normalizePage(page, size)

	s.mu.RLock()
	matched := make([]*domain.Asset, 0)
	for _, a := range s.assets {
		if a.TenantID != tenantID {
			continue
		}
		if filters.Category != "" && !strings.EqualFold(a.Category, filters.Category) {
			continue
		}
		if filters.State != "" && a.State != filters.State {
			continue
		}
		if filters.LabelPrefix != "" && !strings.HasPrefix(a.HumanLabel, filters.LabelPrefix) {
			continue
		}
		matched = append(matched, a.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].HumanLabel != matched[j].HumanLabel {
			return matched[i].HumanLabel < matched[j].HumanLabel
		}
		return matched[i].AssetID < matched[j].AssetID
	})

	total := len(matched)
	start := (page - 1) * size
	if start >= total {
		return []*domain.Asset{}, total, nil
	}
	end := start + size
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (s *MemoryAllocationStore) ExternalCodeExists(_ context.Context, externalCode string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.assets {
		if a.ExternalCode == externalCode {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryAllocationStore) PublicSlugExists(_ context.Context, publicSlug string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.assets {
		if a.PublicSlug == publicSlug {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryAllocationStore) SetMaintenanceState(_ context.Context, tenantID, assetID string, state domain.AssetState) (*domain.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assets[assetID]
	if !ok || a.TenantID != tenantID {
		return nil, assetNotFound(assetID)
	}
	if a.IsOccupied() || a.State == domain.AssetStateOccupied {
		return nil, fmt.Errorf("%w: asset %s is held by resident %s", domain.ErrAssetOccupied, assetID, a.OccupantID)
	}
	cp := a.Clone()
	cp.State = state
	cp.Version++
	cp.UpdatedAt = s.now()
	s.assets[assetID] = cp
	return cp.Clone(), nil
}

func (s *MemoryAllocationStore) DeleteAsset(_ context.Context, tenantID, assetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assets[assetID]
	if !ok || a.TenantID != tenantID {
		return assetNotFound(assetID)
	}
	if a.IsOccupied() {
		return fmt.Errorf("%w: asset %s is held by resident %s", domain.ErrAssetOccupied, assetID, a.OccupantID)
	}
	delete(s.assets, assetID)
	return nil
}

// ---- residents ----

func (s *MemoryAllocationStore) CreateResident(_ context.Context, resident *domain.Resident) error {
	if resident == nil || resident.TenantID == "" || resident.ResidentCode == "" {
		return fmt.Errorf("%w: tenant_id and resident_code are required", domain.ErrInvalidArgument)
	}
	if resident.AssignedAssetID != "" {
		return fmt.Errorf("%w: resident is enrolled without an asset", domain.ErrInvalidArgument)
	}
	if resident.Status == "" {
		resident.Status = domain.ResidentStatusActive
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.residents {
		if r.TenantID == resident.TenantID && r.ResidentCode == resident.ResidentCode {
			return fmt.Errorf("%w: resident_code %s already exists", domain.ErrConflict, resident.ResidentCode)
		}
	}
	if resident.ResidentID == "" {
		resident.ResidentID = uuid.NewString()
	}
	if _, ok := s.residents[resident.ResidentID]; ok {
		return fmt.Errorf("%w: resident %s already exists", domain.ErrConflict, resident.ResidentID)
	}
	now := s.now()
	resident.Version = 1
	resident.CreatedAt = now
	resident.UpdatedAt = now
	s.residents[resident.ResidentID] = resident.Clone()
	return nil
}

func (s *MemoryAllocationStore) GetResident(_ context.Context, tenantID, residentID string) (*domain.Resident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.residents[residentID]
	if !ok || r.TenantID != tenantID {
		return nil, residentNotFound(residentID)
	}
	return r.Clone(), nil
}

func (s *MemoryAllocationStore) GetResidentByCode(_ context.Context, tenantID, residentCode string) (*domain.Resident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.residents {
		if r.TenantID == tenantID && r.ResidentCode == residentCode {
			return r.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: resident with code %s", domain.ErrNotFound, residentCode)
}

// Snapshot 返回全部资产与住户副本（一致性检查用）
func (s *MemoryAllocationStore) Snapshot() ([]*domain.Asset, []*domain.Resident) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	assets := make([]*domain.Asset, 0, len(s.assets))
	for _, a := range s.assets {
		assets = append(assets, a.Clone())
	}
	residents := make([]*domain.Resident, 0, len(s.residents))
	for _, r := range s.residents {
		residents = append(residents, r.Clone())
	}
	return assets, residents
}

// ---- transactions ----

func (s *MemoryAllocationStore) WithTx(ctx context.Context, fn func(tx AllocationTx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	tx := &memoryTx{
		store:            s,
		assets:           map[string]*domain.Asset{},
		residents:        map[string]*domain.Resident{},
		assetVersions:    map[string]int64{},
		residentVersions: map[string]int64{},
		dirtyAssets:      map[string]struct{}{},
		dirtyResidents:   map[string]struct{}{},
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

// memoryTx 事务工作区：读取的记录被拷贝进来，写操作只修改副本，提交时统一校验并落盘
type memoryTx struct {
	store *MemoryAllocationStore

	assets    map[string]*domain.Asset
	residents map[string]*domain.Resident

	assetVersions    map[string]int64
	residentVersions map[string]int64

	dirtyAssets    map[string]struct{}
	dirtyResidents map[string]struct{}
}

func (tx *memoryTx) asset(tenantID, assetID string) (*domain.Asset, error) {
	if a, ok := tx.assets[assetID]; ok {
		if a.TenantID != tenantID {
			return nil, assetNotFound(assetID)
		}
		return a, nil
	}
	tx.store.mu.RLock()
	stored, ok := tx.store.assets[assetID]
	var cp *domain.Asset
	if ok {
		cp = stored.Clone()
	}
	tx.store.mu.RUnlock()
	if !ok || cp.TenantID != tenantID {
		return nil, assetNotFound(assetID)
	}
	tx.assets[assetID] = cp
	tx.assetVersions[assetID] = cp.Version
	return cp, nil
}

func (tx *memoryTx) resident(tenantID, residentID string) (*domain.Resident, error) {
	if r, ok := tx.residents[residentID]; ok {
		if r.TenantID != tenantID {
			return nil, residentNotFound(residentID)
		}
		return r, nil
	}
	tx.store.mu.RLock()
	stored, ok := tx.store.residents[residentID]
	var cp *domain.Resident
	if ok {
		cp = stored.Clone()
	}
	tx.store.mu.RUnlock()
	if !ok || cp.TenantID != tenantID {
		return nil, residentNotFound(residentID)
	}
	tx.residents[residentID] = cp
	tx.residentVersions[residentID] = cp.Version
	return cp, nil
}

func (tx *memoryTx) GetResident(_ context.Context, tenantID, residentID string) (*domain.Resident, error) {
	r, err := tx.resident(tenantID, residentID)
	if err != nil {
		return nil, err
	}
	return r.Clone(), nil
}

func (tx *memoryTx) GetAsset(_ context.Context, tenantID, assetID string) (*domain.Asset, error) {
	a, err := tx.asset(tenantID, assetID)
	if err != nil {
		return nil, err
	}
	return a.Clone(), nil
}

func (tx *memoryTx) ReserveAsset(_ context.Context, tenantID, assetID, occupantID string, expected domain.AssetState) (*domain.Asset, error) {
	if occupantID == "" {
		return nil, fmt.Errorf("%w: occupant_id is required", domain.ErrInvalidArgument)
	}
	a, err := tx.asset(tenantID, assetID)
	if err != nil {
		return nil, err
	}
	if a.State != expected || a.IsOccupied() {
		return nil, fmt.Errorf("%w: asset %s is %s", domain.ErrConflict, assetID, a.State)
	}
	a.State = domain.AssetStateOccupied
	a.OccupantID = occupantID
	tx.dirtyAssets[assetID] = struct{}{}
	return a.Clone(), nil
}

func (tx *memoryTx) ReleaseAsset(_ context.Context, tenantID, assetID, occupantID string) (*domain.Asset, error) {
	a, err := tx.asset(tenantID, assetID)
	if err != nil {
		return nil, err
	}
	if !a.IsOccupied() && a.State != domain.AssetStateOccupied {
		return a.Clone(), nil
	}
	if occupantID != "" && a.OccupantID != occupantID {
		return nil, fmt.Errorf("%w: asset %s is held by %s, not %s", domain.ErrConflict, assetID, a.OccupantID, occupantID)
	}
	a.State = domain.AssetStateAvailable
	a.OccupantID = ""
	tx.dirtyAssets[assetID] = struct{}{}
	return a.Clone(), nil
}

func (tx *memoryTx) BindResident(_ context.Context, tenantID, residentID, expectedAssetID, newAssetID string) (*domain.Resident, error) {
	r, err := tx.resident(tenantID, residentID)
	if err != nil {
		return nil, err
	}
	if r.AssignedAssetID != expectedAssetID {
		return nil, fmt.Errorf("%w: resident %s binding changed", domain.ErrConflict, residentID)
	}
	r.AssignedAssetID = newAssetID
	tx.dirtyResidents[residentID] = struct{}{}
	return r.Clone(), nil
}

func (tx *memoryTx) SetResidentStatus(_ context.Context, tenantID, residentID, status string) (*domain.Resident, error) {
	r, err := tx.resident(tenantID, residentID)
	if err != nil {
		return nil, err
	}
	r.Status = status
	tx.dirtyResidents[residentID] = struct{}{}
	return r.Clone(), nil
}

func (tx *memoryTx) commit() error {
	if len(tx.dirtyAssets) == 0 && len(tx.dirtyResidents) == 0 {
		return nil
	}

	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	// 1. 读集合校验
	for id, v := range tx.assetVersions {
		cur, ok := s.assets[id]
		if !ok || cur.Version != v {
			return fmt.Errorf("%w: asset %s modified concurrently", domain.ErrConflict, id)
		}
	}
	for id, v := range tx.residentVersions {
		cur, ok := s.residents[id]
		if !ok || cur.Version != v {
			return fmt.Errorf("%w: resident %s modified concurrently", domain.ErrConflict, id)
		}
	}

	// 2. 约束校验
	for id := range tx.dirtyAssets {
		if !tx.assets[id].Consistent() {
			return fmt.Errorf("%w: asset %s state/occupant mismatch", domain.ErrConflict, id)
		}
	}
	if err := tx.checkConstraints(); err != nil {
		return err
	}

	// 3. 落盘
	now := s.now()
	for id := range tx.dirtyAssets {
		cp := tx.assets[id].Clone()
		cp.Version = tx.assetVersions[id] + 1
		cp.UpdatedAt = now
		s.assets[id] = cp
	}
	for id := range tx.dirtyResidents {
		cp := tx.residents[id].Clone()
		cp.Version = tx.residentVersions[id] + 1
		cp.UpdatedAt = now
		s.residents[id] = cp
	}
	return nil
}

// checkConstraints 在持有写锁时调用
// 唯一性：一个资产最多一个住户，一个住户最多一个资产
// 镜像：asset.occupant == R 当且仅当 R.assigned_asset == asset
func (tx *memoryTx) checkConstraints() error {
	s := tx.store
	effAsset := func(id string) *domain.Asset {
		if _, dirty := tx.dirtyAssets[id]; dirty {
			return tx.assets[id]
		}
		return s.assets[id]
	}
	effResident := func(id string) *domain.Resident {
		if _, dirty := tx.dirtyResidents[id]; dirty {
			return tx.residents[id]
		}
		return s.residents[id]
	}

	holders := map[string]string{} // assetID -> residentID
	for id := range s.residents {
		r := effResident(id)
		if r.AssignedAssetID == "" {
			continue
		}
		if other, dup := holders[r.AssignedAssetID]; dup {
			return fmt.Errorf("%w: asset %s bound to residents %s and %s", domain.ErrConflict, r.AssignedAssetID, other, id)
		}
		holders[r.AssignedAssetID] = id
	}

	occupants := map[string]string{} // residentID -> assetID
	for id := range s.assets {
		a := effAsset(id)
		if a.OccupantID == "" {
			continue
		}
		if other, dup := occupants[a.OccupantID]; dup {
			return fmt.Errorf("%w: resident %s occupies assets %s and %s", domain.ErrConflict, a.OccupantID, other, id)
		}
		occupants[a.OccupantID] = id
	}

	for id := range tx.dirtyAssets {
		if holders[id] != tx.assets[id].OccupantID {
			return fmt.Errorf("%w: asset %s occupant does not match resident binding", domain.ErrConflict, id)
		}
	}
	for id := range tx.dirtyResidents {
		assigned := tx.residents[id].AssignedAssetID
		if assigned == "" {
			if held, ok := occupants[id]; ok {
				return fmt.Errorf("%w: resident %s still occupies asset %s", domain.ErrConflict, id, held)
			}
			continue
		}
		a := effAsset(assigned)
		if a == nil || a.OccupantID != id {
			return fmt.Errorf("%w: resident %s binding does not match asset %s", domain.ErrConflict, id, assigned)
		}
	}
	return nil
}

// ---- helpers ----

func assetNotFound(assetID string) error {
	return fmt.Errorf("%w: asset %s", domain.ErrNotFound, assetID)
}

func residentNotFound(residentID string) error {
	return fmt.Errorf("%w: resident %s", domain.ErrNotFound, residentID)
}

func normalizePage(page, size int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 200 {
		size = 200
	}
	return page, size
}
