package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-data/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMemoryStore(t *testing.T) *MemoryAllocationStore {
	t.Helper()
	ctx := context.Background()
	s := NewMemoryAllocationStore()
	for _, a := range []*domain.Asset{
		{AssetID: "a-1", TenantID: "t-1", Category: "bed", HumanLabel: "Block A/201-1", ExternalCode: "BED-1", PublicSlug: "slug1"},
		{AssetID: "a-2", TenantID: "t-1", Category: "bed", HumanLabel: "Block A/201-2", ExternalCode: "BED-2", PublicSlug: "slug2"},
		{AssetID: "a-3", TenantID: "t-2", Category: "bed", HumanLabel: "Block B/101-1", ExternalCode: "BED-3", PublicSlug: "slug3"},
	} {
		require.NoError(t, s.CreateAsset(ctx, a))
	}
	for _, r := range []*domain.Resident{
		{ResidentID: "r-1", TenantID: "t-1", ResidentCode: "HM-001"},
		{ResidentID: "r-2", TenantID: "t-1", ResidentCode: "HM-002"},
	} {
		require.NoError(t, s.CreateResident(ctx, r))
	}
	return s
}

func assignInTx(ctx context.Context, tx AllocationTx, residentID, assetID string) error {
	if _, err := tx.ReserveAsset(ctx, "t-1", assetID, residentID, domain.AssetStateAvailable); err != nil {
		return err
	}
	_, err := tx.BindResident(ctx, "t-1", residentID, "", assetID)
	return err
}

func TestMemoryStore_CommitAppliesBothSides(t *testing.T) {
	ctx := context.Background()
	s := seedMemoryStore(t)

	require.NoError(t, s.WithTx(ctx, func(tx AllocationTx) error {
		return assignInTx(ctx, tx, "r-1", "a-1")
	}))

	a, err := s.GetAsset(ctx, "t-1", "a-1")
	require.NoError(t, err)
	r, err := s.GetResident(ctx, "t-1", "r-1")
	require.NoError(t, err)

	assert.Equal(t, domain.AssetStateOccupied, a.State)
	assert.Equal(t, "r-1", a.OccupantID)
	assert.Equal(t, int64(2), a.Version)
	assert.Equal(t, "a-1", r.AssignedAssetID)
}

func TestMemoryStore_ErrorRollsBackEverything(t *testing.T) {
	ctx := context.Background()
	s := seedMemoryStore(t)
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx AllocationTx) error {
		if err := assignInTx(ctx, tx, "r-1", "a-1"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	a, _ := s.GetAsset(ctx, "t-1", "a-1")
	r, _ := s.GetResident(ctx, "t-1", "r-1")
	assert.Equal(t, domain.AssetStateAvailable, a.State)
	assert.Empty(t, a.OccupantID)
	assert.Empty(t, r.AssignedAssetID)
}

func TestMemoryStore_ConcurrentCommitConflicts(t *testing.T) {
	ctx := context.Background()
	s := seedMemoryStore(t)

	// 第一个事务读取后被第二个事务抢先提交
	err := s.WithTx(ctx, func(tx AllocationTx) error {
		if _, err := tx.GetAsset(ctx, "t-1", "a-1"); err != nil {
			return err
		}
		require.NoError(t, s.WithTx(ctx, func(inner AllocationTx) error {
			return assignInTx(ctx, inner, "r-2", "a-1")
		}))
		return assignInTx(ctx, tx, "r-1", "a-1")
	})
	assert.True(t, errors.Is(err, domain.ErrConflict))

	a, _ := s.GetAsset(ctx, "t-1", "a-1")
	assert.Equal(t, "r-2", a.OccupantID)
	r1, _ := s.GetResident(ctx, "t-1", "r-1")
	assert.Empty(t, r1.AssignedAssetID)
}

func TestMemoryStore_StaleReadDetectedAtCommit(t *testing.T) {
	ctx := context.Background()
	s := seedMemoryStore(t)

	err := s.WithTx(ctx, func(tx AllocationTx) error {
		if err := assignInTx(ctx, tx, "r-1", "a-1"); err != nil {
			return err
		}
		// 并发修改 r-1 的状态
		require.NoError(t, s.WithTx(ctx, func(inner AllocationTx) error {
			_, err := inner.SetResidentStatus(ctx, "t-1", "r-1", domain.ResidentStatusCheckedOut)
			return err
		}))
		return nil
	})
	assert.True(t, errors.Is(err, domain.ErrConflict))

	a, _ := s.GetAsset(ctx, "t-1", "a-1")
	assert.Equal(t, domain.AssetStateAvailable, a.State)
}

func TestMemoryStore_UniqueBindingCheckedAtCommit(t *testing.T) {
	ctx := context.Background()
	s := seedMemoryStore(t)

	err := s.WithTx(ctx, func(tx AllocationTx) error {
		if _, err := tx.BindResident(ctx, "t-1", "r-1", "", "a-1"); err != nil {
			return err
		}
		_, err := tx.BindResident(ctx, "t-1", "r-2", "", "a-1")
		return err
	})
	assert.True(t, errors.Is(err, domain.ErrConflict))
}

func TestMemoryStore_OccupiedWithoutOccupantRejected(t *testing.T) {
	ctx := context.Background()
	s := seedMemoryStore(t)

	err := s.WithTx(ctx, func(tx AllocationTx) error {
		_, err := tx.ReserveAsset(ctx, "t-1", "a-1", "r-1", domain.AssetStateAvailable)
		return err
	})
	assert.True(t, errors.Is(err, domain.ErrConflict), "occupied asset must be mirrored by its resident")
}

func TestMemoryStore_ReleaseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := seedMemoryStore(t)

	require.NoError(t, s.WithTx(ctx, func(tx AllocationTx) error {
		a, err := tx.ReleaseAsset(ctx, "t-1", "a-1", "r-1")
		if err != nil {
			return err
		}
		assert.Equal(t, domain.AssetStateAvailable, a.State)
		return nil
	}))

	a, _ := s.GetAsset(ctx, "t-1", "a-1")
	assert.Equal(t, int64(1), a.Version)
}

func TestMemoryStore_TenantIsolation(t *testing.T) {
	ctx := context.Background()
	s := seedMemoryStore(t)

	_, err := s.GetAsset(ctx, "t-1", "a-3")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	err = s.WithTx(ctx, func(tx AllocationTx) error {
		_, err := tx.ReserveAsset(ctx, "t-1", "a-3", "r-1", domain.AssetStateAvailable)
		return err
	})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestMemoryStore_MaintenanceAndDeleteGuardedByOccupant(t *testing.T) {
	ctx := context.Background()
	s := seedMemoryStore(t)
	require.NoError(t, s.WithTx(ctx, func(tx AllocationTx) error {
		return assignInTx(ctx, tx, "r-1", "a-1")
	}))

	_, err := s.SetMaintenanceState(ctx, "t-1", "a-1", domain.AssetStateDamaged)
	assert.True(t, errors.Is(err, domain.ErrAssetOccupied))
	assert.True(t, errors.Is(s.DeleteAsset(ctx, "t-1", "a-1"), domain.ErrAssetOccupied))

	a, err := s.SetMaintenanceState(ctx, "t-1", "a-2", domain.AssetStateInMaintenance)
	require.NoError(t, err)
	assert.Equal(t, domain.AssetStateInMaintenance, a.State)
	assert.NoError(t, s.DeleteAsset(ctx, "t-1", "a-2"))
}

func TestMemoryStore_CreateRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	s := seedMemoryStore(t)

	err := s.CreateAsset(ctx, &domain.Asset{TenantID: "t-1", Category: "bed", ExternalCode: "BED-1", PublicSlug: "fresh"})
	assert.True(t, errors.Is(err, domain.ErrConflict))

	err = s.CreateResident(ctx, &domain.Resident{TenantID: "t-1", ResidentCode: "HM-001"})
	assert.True(t, errors.Is(err, domain.ErrConflict))

	// 不同租户可以复用住户编号
	assert.NoError(t, s.CreateResident(ctx, &domain.Resident{TenantID: "t-2", ResidentCode: "HM-001"}))
}

func TestMemoryStore_ListAssets(t *testing.T) {
	ctx := context.Background()
	s := seedMemoryStore(t)

	items, total, err := s.ListAssets(ctx, "t-1", AssetFilters{LabelPrefix: "Block A"}, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, items, 1)
	assert.Equal(t, "a-1", items[0].AssetID)

	items, _, err = s.ListAssets(ctx, "t-1", AssetFilters{}, 3, 1)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestMemoryAuditRepository_DedupesByChangeID(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAuditRepository()

	entry := &domain.AuditEntry{EntryID: "e-1", ChangeID: "c-1", Reason: domain.ReasonAssign}
	require.NoError(t, repo.AppendAuditEntry(ctx, entry))
	require.NoError(t, repo.AppendAuditEntry(ctx, &domain.AuditEntry{EntryID: "e-2", ChangeID: "c-1"}))

	entries := repo.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "e-1", entries[0].EntryID)
}
