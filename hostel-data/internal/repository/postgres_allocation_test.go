package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-data/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	assetCols    = []string{"asset_id", "tenant_id", "category", "human_label", "external_code", "public_slug", "state", "occupant_id", "version", "created_at", "updated_at"}
	residentCols = []string{"resident_id", "tenant_id", "resident_code", "nickname", "status", "assigned_asset_id", "version", "created_at", "updated_at"}
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock
}

func assetRow(state domain.AssetState, occupant string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(assetCols).
		AddRow("a-1", "t-1", "bed", "Block A/2F/201-1", "BED-0001", "k7m2p9q4x8rt", string(state), occupant, 3, now, now)
}

func TestPostgresAllocation_ReserveAsset_Success(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE assets`).
		WithArgs("t-1", "a-1", "r-1", "available").
		WillReturnRows(assetRow(domain.AssetStateOccupied, "r-1"))
	mock.ExpectCommit()

	store := NewPostgresAllocationStore(db)
	var got *domain.Asset
	err := store.WithTx(context.Background(), func(tx AllocationTx) error {
		var err error
		got, err = tx.ReserveAsset(context.Background(), "t-1", "a-1", "r-1", domain.AssetStateAvailable)
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, domain.AssetStateOccupied, got.State)
	assert.Equal(t, "r-1", got.OccupantID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAllocation_ReserveAsset_NotAvailableRollsBack(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE assets`).
		WithArgs("t-1", "a-1", "r-1", "available").
		WillReturnRows(sqlmock.NewRows(assetCols))
	mock.ExpectQuery(`SELECT`).
		WithArgs("t-1", "a-1").
		WillReturnRows(assetRow(domain.AssetStateInMaintenance, ""))
	mock.ExpectRollback()

	store := NewPostgresAllocationStore(db)
	err := store.WithTx(context.Background(), func(tx AllocationTx) error {
		_, err := tx.ReserveAsset(context.Background(), "t-1", "a-1", "r-1", domain.AssetStateAvailable)
		return err
	})

	assert.True(t, errors.Is(err, domain.ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAllocation_ReserveAsset_Missing(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE assets`).WillReturnRows(sqlmock.NewRows(assetCols))
	mock.ExpectQuery(`SELECT`).WillReturnRows(sqlmock.NewRows(assetCols))
	mock.ExpectRollback()

	store := NewPostgresAllocationStore(db)
	err := store.WithTx(context.Background(), func(tx AllocationTx) error {
		_, err := tx.ReserveAsset(context.Background(), "t-1", "a-404", "r-1", domain.AssetStateAvailable)
		return err
	})

	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAllocation_ReleaseAsset_AlreadyFreeIsNoop(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE assets`).
		WithArgs("t-1", "a-1", "r-1").
		WillReturnRows(sqlmock.NewRows(assetCols))
	mock.ExpectQuery(`SELECT`).
		WithArgs("t-1", "a-1").
		WillReturnRows(assetRow(domain.AssetStateAvailable, ""))
	mock.ExpectCommit()

	store := NewPostgresAllocationStore(db)
	err := store.WithTx(context.Background(), func(tx AllocationTx) error {
		a, err := tx.ReleaseAsset(context.Background(), "t-1", "a-1", "r-1")
		if err != nil {
			return err
		}
		assert.Equal(t, domain.AssetStateAvailable, a.State)
		return nil
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAllocation_ReleaseAsset_HeldBySomeoneElse(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE assets`).WillReturnRows(sqlmock.NewRows(assetCols))
	mock.ExpectQuery(`SELECT`).WillReturnRows(assetRow(domain.AssetStateOccupied, "r-2"))
	mock.ExpectRollback()

	store := NewPostgresAllocationStore(db)
	err := store.WithTx(context.Background(), func(tx AllocationTx) error {
		_, err := tx.ReleaseAsset(context.Background(), "t-1", "a-1", "r-1")
		return err
	})

	assert.True(t, errors.Is(err, domain.ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAllocation_BindResident_StaleExpectation(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE residents`).
		WithArgs("t-1", "r-1", "", "a-1").
		WillReturnRows(sqlmock.NewRows(residentCols))
	mock.ExpectQuery(`SELECT`).
		WithArgs("t-1", "r-1").
		WillReturnRows(sqlmock.NewRows(residentCols).
			AddRow("r-1", "t-1", "HM-001", "Asha", "active", "a-9", 4, now, now))
	mock.ExpectRollback()

	store := NewPostgresAllocationStore(db)
	err := store.WithTx(context.Background(), func(tx AllocationTx) error {
		_, err := tx.BindResident(context.Background(), "t-1", "r-1", "", "a-1")
		return err
	})

	assert.True(t, errors.Is(err, domain.ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAllocation_CommitUniqueViolationIsConflict(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE residents`).
		WillReturnRows(sqlmock.NewRows(residentCols).
			AddRow("r-1", "t-1", "HM-001", "Asha", "active", "a-1", 2, now, now))
	mock.ExpectCommit().WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	store := NewPostgresAllocationStore(db)
	err := store.WithTx(context.Background(), func(tx AllocationTx) error {
		_, err := tx.BindResident(context.Background(), "t-1", "r-1", "", "a-1")
		return err
	})

	assert.True(t, errors.Is(err, domain.ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAllocation_BeginFailureIsStorageError(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	store := NewPostgresAllocationStore(db)
	called := false
	err := store.WithTx(context.Background(), func(tx AllocationTx) error {
		called = true
		return nil
	})

	assert.True(t, errors.Is(err, domain.ErrStorage))
	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAudit_AppendIsIdempotentInsert(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	at := time.Now()
	mock.ExpectExec(`INSERT INTO allocation_audit`).
		WithArgs("e-1", "c-1", "t-1", "r-1", "", "a-1", "warden-7", "assign", at, at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewPostgresAuditRepository(db)
	err := repo.AppendAuditEntry(context.Background(), &domain.AuditEntry{
		EntryID:    "e-1",
		ChangeID:   "c-1",
		TenantID:   "t-1",
		ResidentID: "r-1",
		NewAssetID: "a-1",
		ActorID:    "warden-7",
		Reason:     domain.ReasonAssign,
		OccurredAt: at,
		RecordedAt: at,
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAssets_SetMaintenanceState_Occupied(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`UPDATE assets`).
		WithArgs("t-1", "a-1", "maintenance").
		WillReturnRows(sqlmock.NewRows(assetCols))
	mock.ExpectQuery(`SELECT`).
		WithArgs("t-1", "a-1").
		WillReturnRows(assetRow(domain.AssetStateOccupied, "r-1"))

	repo := NewPostgresAssetsRepository(db)
	_, err := repo.SetMaintenanceState(context.Background(), "t-1", "a-1", domain.AssetStateInMaintenance)

	assert.True(t, errors.Is(err, domain.ErrAssetOccupied))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAssets_DeleteAsset_Missing(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM assets`).
		WithArgs("t-1", "a-404").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT`).
		WithArgs("t-1", "a-404").
		WillReturnRows(sqlmock.NewRows(assetCols))

	repo := NewPostgresAssetsRepository(db)
	err := repo.DeleteAsset(context.Background(), "t-1", "a-404")

	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAssets_ListAssets_Filters(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs("t-1", "bed", "available").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`ORDER BY human_label`).
		WithArgs("t-1", "bed", "available", 20, 0).
		WillReturnRows(assetRow(domain.AssetStateAvailable, ""))

	repo := NewPostgresAssetsRepository(db)
	items, total, err := repo.ListAssets(context.Background(), "t-1",
		AssetFilters{Category: "bed", State: domain.AssetStateAvailable}, 0, 0)

	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "BED-0001", items[0].ExternalCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAssets_GetAsset_StorageError(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).WillReturnError(errors.New("connection reset by peer"))

	repo := NewPostgresAssetsRepository(db)
	_, err := repo.GetAsset(context.Background(), "t-1", "a-1")

	assert.True(t, errors.Is(err, domain.ErrStorage))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresResidents_CreateResident_DuplicateCode(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO residents`).
		WithArgs("r-1", "t-1", "HM-001", "Asha", "active").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key"})

	repo := NewPostgresResidentsRepository(db)
	err := repo.CreateResident(context.Background(), &domain.Resident{
		ResidentID:   "r-1",
		TenantID:     "t-1",
		ResidentCode: "HM-001",
		Nickname:     "Asha",
	})

	assert.True(t, errors.Is(err, domain.ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	for range schemaStatements {
		mock.ExpectExec(`CREATE`).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, EnsureSchema(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMapPGError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unique", &pq.Error{Code: "23505"}, domain.ErrConflict},
		{"check", &pq.Error{Code: "23514"}, domain.ErrConflict},
		{"serialization", &pq.Error{Code: "40001"}, domain.ErrConflict},
		{"deadlock", &pq.Error{Code: "40P01"}, domain.ErrConflict},
		{"bad uuid", &pq.Error{Code: "22P02"}, domain.ErrInvalidArgument},
		{"other pq", &pq.Error{Code: "53300"}, domain.ErrStorage},
		{"plain", errors.New("broken pipe"), domain.ErrStorage},
		{"already domain", domain.ErrNotFound, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.Is(mapPGError("op", tt.err), tt.want))
		})
	}
	assert.NoError(t, mapPGError("op", nil))
}
