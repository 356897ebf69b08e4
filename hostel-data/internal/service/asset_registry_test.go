package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-data/internal/domain"
	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-data/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scriptedIdentity 按顺序返回预设的标识，用完后回退到随机生成
type scriptedIdentity struct {
	mu    sync.Mutex
	codes []string
	slugs []string
}

func (s *scriptedIdentity) NewExternalCode(category string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.codes) == 0 {
		return NewIdentityGenerator().NewExternalCode(category)
	}
	c := s.codes[0]
	s.codes = s.codes[1:]
	return c
}

func (s *scriptedIdentity) NewPublicSlug() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.slugs) == 0 {
		return NewIdentityGenerator().NewPublicSlug()
	}
	v := s.slugs[0]
	s.slugs = s.slugs[1:]
	return v, nil
}

func TestCreateAsset_GeneratesIdentities(t *testing.T) {
	store := repository.NewMemoryAllocationStore()
	registry := NewAssetRegistry(store, nil, zap.NewNop())

	a, err := registry.CreateAsset(context.Background(), CreateAssetRequest{
		TenantID: testTenant, Category: "bed", HumanLabel: "Block A/201-1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.AssetStateAvailable, a.State)
	assert.True(t, strings.HasPrefix(a.ExternalCode, "BED-"))
	assert.Len(t, a.PublicSlug, publicSlugLength)

	bySlug, err := registry.GetByPublicSlug(context.Background(), a.PublicSlug)
	require.NoError(t, err)
	assert.Equal(t, a.AssetID, bySlug.AssetID)

	byCode, err := registry.GetByExternalCode(context.Background(), testTenant, a.ExternalCode)
	require.NoError(t, err)
	assert.Equal(t, a.AssetID, byCode.AssetID)
}

func TestCreateAsset_RegeneratesOnCollision(t *testing.T) {
	store := repository.NewMemoryAllocationStore()
	ids := &scriptedIdentity{
		codes: []string{"BED-0001", "BED-0001", "BED-0002"},
		slugs: []string{"aaaaaaaaaaaa", "aaaaaaaaaaaa", "bbbbbbbbbbbb"},
	}
	registry := NewAssetRegistry(store, ids, zap.NewNop())
	ctx := context.Background()

	first, err := registry.CreateAsset(ctx, CreateAssetRequest{TenantID: testTenant, Category: "bed", HumanLabel: "201-1"})
	require.NoError(t, err)
	assert.Equal(t, "BED-0001", first.ExternalCode)
	assert.Equal(t, "aaaaaaaaaaaa", first.PublicSlug)

	second, err := registry.CreateAsset(ctx, CreateAssetRequest{TenantID: testTenant, Category: "bed", HumanLabel: "201-2"})
	require.NoError(t, err)
	assert.Equal(t, "BED-0002", second.ExternalCode)
	assert.Equal(t, "bbbbbbbbbbbb", second.PublicSlug)
}

func TestCreateAsset_GivesUpAfterRepeatedCollisions(t *testing.T) {
	store := repository.NewMemoryAllocationStore()
	ids := &scriptedIdentity{slugs: []string{"aaaaaaaaaaaa", "aaaaaaaaaaaa", "aaaaaaaaaaaa", "aaaaaaaaaaaa", "aaaaaaaaaaaa", "aaaaaaaaaaaa"}}
	registry := NewAssetRegistry(store, ids, zap.NewNop())
	ctx := context.Background()

	_, err := registry.CreateAsset(ctx, CreateAssetRequest{TenantID: testTenant, Category: "bed", HumanLabel: "201-1"})
	require.NoError(t, err)

	_, err = registry.CreateAsset(ctx, CreateAssetRequest{TenantID: testTenant, Category: "bed", HumanLabel: "201-2"})
	assert.True(t, errors.Is(err, domain.ErrConflict))
}

func TestCreateAsset_ExplicitCodeMustBeUnique(t *testing.T) {
	store := repository.NewMemoryAllocationStore()
	registry := NewAssetRegistry(store, nil, zap.NewNop())
	ctx := context.Background()

	a, err := registry.CreateAsset(ctx, CreateAssetRequest{TenantID: testTenant, Category: "desk", HumanLabel: "Study hall", ExternalCode: "DESK-77"})
	require.NoError(t, err)
	assert.Equal(t, "DESK-77", a.ExternalCode)

	_, err = registry.CreateAsset(ctx, CreateAssetRequest{TenantID: testTenant, Category: "desk", HumanLabel: "Study hall 2", ExternalCode: "DESK-77"})
	assert.True(t, errors.Is(err, domain.ErrConflict))
}

func TestCreateAsset_Validation(t *testing.T) {
	registry := NewAssetRegistry(repository.NewMemoryAllocationStore(), nil, zap.NewNop())
	_, err := registry.CreateAsset(context.Background(), CreateAssetRequest{TenantID: testTenant, Category: "bed"})
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}

func TestSetMaintenanceState_Transitions(t *testing.T) {
	env := newAllocationEnv(t)
	b1 := env.bed(t, "Block A/201-1")
	ctx := context.Background()

	_, err := env.registry.SetMaintenanceState(ctx, testTenant, b1, domain.AssetStateOccupied)
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))

	a, err := env.registry.SetMaintenanceState(ctx, testTenant, b1, domain.AssetStateDamaged)
	require.NoError(t, err)
	assert.Equal(t, domain.AssetStateDamaged, a.State)

	a, err = env.registry.SetMaintenanceState(ctx, testTenant, b1, domain.AssetStateAvailable)
	require.NoError(t, err)
	assert.Equal(t, domain.AssetStateAvailable, a.State)

	_, err = env.registry.SetMaintenanceState(ctx, testTenant, "missing", domain.AssetStateDamaged)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestListAvailable_ExcludesHeldAndBrokenBeds(t *testing.T) {
	env := newAllocationEnv(t)
	b1 := env.bed(t, "Block A/201-1")
	b2 := env.bed(t, "Block A/201-2")
	b3 := env.bed(t, "Block A/201-3")
	_, err := env.registry.CreateAsset(context.Background(), CreateAssetRequest{TenantID: testTenant, Category: "wardrobe", HumanLabel: "Block A/201-W"})
	require.NoError(t, err)
	r1 := env.resident(t, "HM-001")
	_, err = env.assign(r1, b1)
	require.NoError(t, err)
	_, err = env.registry.SetMaintenanceState(context.Background(), testTenant, b2, domain.AssetStateDamaged)
	require.NoError(t, err)

	res, err := env.registry.ListAvailable(context.Background(), ListAvailableRequest{TenantID: testTenant, Category: "bed"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	require.Len(t, res.Items, 1)
	assert.Equal(t, b3, res.Items[0].AssetID)
}

func TestDeleteAsset_GuardedByOccupant(t *testing.T) {
	env := newAllocationEnv(t)
	b1 := env.bed(t, "Block A/201-1")
	r1 := env.resident(t, "HM-001")
	_, err := env.assign(r1, b1)
	require.NoError(t, err)

	err = env.registry.DeleteAsset(context.Background(), testTenant, b1)
	assert.True(t, errors.Is(err, domain.ErrAssetOccupied))

	_, err = env.release(r1)
	require.NoError(t, err)
	require.NoError(t, env.registry.DeleteAsset(context.Background(), testTenant, b1))
	_, err = env.registry.GetAsset(context.Background(), testTenant, b1)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestIdentityGenerator(t *testing.T) {
	ids := NewIdentityGenerator()

	code := ids.NewExternalCode("Study desk")
	assert.True(t, strings.HasPrefix(code, "STUD-"), code)
	assert.True(t, strings.HasPrefix(ids.NewExternalCode("  "), "AST-"))

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		slug, err := ids.NewPublicSlug()
		require.NoError(t, err)
		assert.Len(t, slug, publicSlugLength)
		for _, r := range slug {
			assert.True(t, strings.ContainsRune(slugAlphabet, r), "unexpected %q in %s", r, slug)
		}
		assert.False(t, seen[slug])
		seen[slug] = true
	}
}

func TestResidentDirectory(t *testing.T) {
	dir := NewResidentDirectory(repository.NewMemoryAllocationStore(), zap.NewNop())
	ctx := context.Background()

	r, err := dir.CreateResident(ctx, CreateResidentRequest{TenantID: testTenant, ResidentCode: " HM-001 ", Nickname: "Asha"})
	require.NoError(t, err)
	assert.Equal(t, "HM-001", r.ResidentCode)
	assert.Equal(t, domain.ResidentStatusActive, r.Status)
	assert.False(t, r.HasAsset())

	byCode, err := dir.GetResidentByCode(ctx, testTenant, "HM-001")
	require.NoError(t, err)
	assert.Equal(t, r.ResidentID, byCode.ResidentID)

	_, err = dir.CreateResident(ctx, CreateResidentRequest{TenantID: testTenant, ResidentCode: "HM-001"})
	assert.True(t, errors.Is(err, domain.ErrConflict))

	_, err = dir.GetResident(ctx, testTenant, "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestImportAssets_CollectsRowErrors(t *testing.T) {
	store := repository.NewMemoryAllocationStore()
	registry := NewAssetRegistry(store, nil, zap.NewNop())
	ctx := context.Background()

	result, err := registry.ImportAssets(ctx, testTenant, []CreateAssetRequest{
		{Category: "bed", HumanLabel: "Room 1 / Bed 1", ExternalCode: "BED-1"},
		{Category: "bed", HumanLabel: ""},
		{Category: "bed", HumanLabel: "Room 1 / Bed 2", ExternalCode: "BED-1"},
		{Category: "desk", HumanLabel: "Room 1 / Desk"},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, result.Total)
	assert.Equal(t, 2, result.SuccessCount)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, 2, result.Errors[0].Row)
	assert.Equal(t, 3, result.Errors[1].Row)

	all, err := registry.ListAssets(ctx, ListAssetsRequest{TenantID: testTenant, Page: 1, Size: 50})
	require.NoError(t, err)
	assert.Equal(t, 2, all.Total)

	_, err = registry.ImportAssets(ctx, "", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestListAssets_StateFilter(t *testing.T) {
	store := repository.NewMemoryAllocationStore()
	registry := NewAssetRegistry(store, nil, zap.NewNop())
	ctx := context.Background()

	a, err := registry.CreateAsset(ctx, CreateAssetRequest{TenantID: testTenant, Category: "bed", HumanLabel: "Bed A"})
	require.NoError(t, err)
	_, err = registry.CreateAsset(ctx, CreateAssetRequest{TenantID: testTenant, Category: "bed", HumanLabel: "Bed B"})
	require.NoError(t, err)
	_, err = registry.SetMaintenanceState(ctx, testTenant, a.AssetID, domain.AssetStateDamaged)
	require.NoError(t, err)

	damaged, err := registry.ListAssets(ctx, ListAssetsRequest{TenantID: testTenant, State: domain.AssetStateDamaged})
	require.NoError(t, err)
	require.Equal(t, 1, damaged.Total)
	assert.Equal(t, a.AssetID, damaged.Items[0].AssetID)

	_, err = registry.ListAssets(ctx, ListAssetsRequest{TenantID: testTenant, State: "broken"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
