package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-data/internal/repository"
	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-data/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testTenant = "00000000-0000-0000-0000-0000000000aa"

type envelope struct {
	Code    int             `json:"code"`
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	logger := zap.NewNop()
	store := repository.NewMemoryAllocationStore()
	reg := prometheus.NewRegistry()
	registry := service.NewAssetRegistry(store, nil, logger)
	directory := service.NewResidentDirectory(store, logger)
	coordinator := service.NewAssignmentCoordinator(store, registry, nil, service.NewMetrics(reg), logger)

	router := NewRouter(logger)
	router.RegisterAssetRoutes(NewAssetsHandler(registry, coordinator, logger))
	router.RegisterResidentRoutes(NewResidentsHandler(directory, coordinator, logger))
	router.RegisterOpsRoutes(reg)
	return router
}

func doRequest(t *testing.T, router http.Handler, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-Tenant-Id", testTenant)
	req.Header.Set("X-User-Id", "warden-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func createBed(t *testing.T, router http.Handler, label string) map[string]any {
	t.Helper()
	_, env := doRequest(t, router, http.MethodPost, "/admin/api/v1/assets", map[string]any{
		"category":    "bed",
		"human_label": label,
	})
	require.Equal(t, ResultSuccess, env.Code, env.Message)
	var asset map[string]any
	require.NoError(t, json.Unmarshal(env.Result, &asset))
	return asset
}

func createResident(t *testing.T, router http.Handler, code string) map[string]any {
	t.Helper()
	_, env := doRequest(t, router, http.MethodPost, "/admin/api/v1/residents", map[string]any{
		"resident_code": code,
		"nickname":      "Resident " + code,
	})
	require.Equal(t, ResultSuccess, env.Code, env.Message)
	var resident map[string]any
	require.NoError(t, json.Unmarshal(env.Result, &resident))
	return resident
}

func TestAssets_CreateAndLookup(t *testing.T) {
	router := newTestRouter(t)
	bed := createBed(t, router, "Block A / Room 101 / Bed 1")

	assert.Equal(t, "available", bed["state"])
	assert.NotEmpty(t, bed["external_code"])
	assert.NotEmpty(t, bed["public_slug"])

	_, env := doRequest(t, router, http.MethodGet, "/admin/api/v1/assets/"+bed["asset_id"].(string), nil)
	assert.Equal(t, ResultSuccess, env.Code)

	_, env = doRequest(t, router, http.MethodGet, "/admin/api/v1/assets/by-code/"+bed["external_code"].(string), nil)
	assert.Equal(t, ResultSuccess, env.Code)

	_, env = doRequest(t, router, http.MethodGet, "/public/api/v1/assets/"+bed["public_slug"].(string), nil)
	require.Equal(t, ResultSuccess, env.Code)
	var public map[string]any
	require.NoError(t, json.Unmarshal(env.Result, &public))
	assert.Equal(t, "Block A / Room 101 / Bed 1", public["human_label"])
	assert.NotContains(t, public, "occupant_id")
	assert.NotContains(t, public, "asset_id")
}

func TestAssets_MissingTenant(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/admin/api/v1/assets", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, ResultInvalidArgument, env.Code)
}

func TestAssets_TenantFromQuery(t *testing.T) {
	router := newTestRouter(t)
	createBed(t, router, "Room 1")

	req := httptest.NewRequest(http.MethodGet, "/admin/api/v1/assets?tenant_id="+testTenant, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, ResultSuccess, env.Code)
	var list struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Result, &list))
	assert.Equal(t, 1, list.Total)
}

func TestAllocation_AssignConflictAndRelease(t *testing.T) {
	router := newTestRouter(t)
	bed := createBed(t, router, "Room 2 / Bed 1")
	alice := createResident(t, router, "R-001")
	bob := createResident(t, router, "R-002")
	bedID := bed["asset_id"].(string)

	_, env := doRequest(t, router, http.MethodPost, "/admin/api/v1/residents/"+alice["resident_id"].(string)+"/assign",
		map[string]any{"asset_id": bedID})
	require.Equal(t, ResultSuccess, env.Code, env.Message)

	_, env = doRequest(t, router, http.MethodPost, "/admin/api/v1/residents/"+bob["resident_id"].(string)+"/assign",
		map[string]any{"asset_id": bedID})
	assert.Equal(t, ResultAssetUnavailable, env.Code)

	// 已占用的资产不出现在可分配列表中
	_, env = doRequest(t, router, http.MethodGet, "/admin/api/v1/assets?category=bed", nil)
	var list struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Result, &list))
	assert.Equal(t, 0, list.Total)

	_, env = doRequest(t, router, http.MethodDelete, "/admin/api/v1/assets/"+bedID, nil)
	assert.Equal(t, ResultAssetOccupied, env.Code)

	_, env = doRequest(t, router, http.MethodPost, "/admin/api/v1/assets/"+bedID+"/release", nil)
	require.Equal(t, ResultSuccess, env.Code, env.Message)

	_, env = doRequest(t, router, http.MethodGet, "/admin/api/v1/residents/"+alice["resident_id"].(string), nil)
	var resident map[string]any
	require.NoError(t, json.Unmarshal(env.Result, &resident))
	assert.NotContains(t, resident, "assigned_asset_id")
}

func TestAllocation_SwapAndCheckout(t *testing.T) {
	router := newTestRouter(t)
	bedX := createBed(t, router, "Room 3 / Bed X")
	bedY := createBed(t, router, "Room 3 / Bed Y")
	a := createResident(t, router, "R-101")
	b := createResident(t, router, "R-102")
	aID, bID := a["resident_id"].(string), b["resident_id"].(string)

	_, env := doRequest(t, router, http.MethodPost, "/admin/api/v1/residents/"+aID+"/assign", map[string]any{"asset_id": bedX["asset_id"]})
	require.Equal(t, ResultSuccess, env.Code)
	_, env = doRequest(t, router, http.MethodPost, "/admin/api/v1/residents/"+bID+"/assign", map[string]any{"asset_id": bedY["asset_id"]})
	require.Equal(t, ResultSuccess, env.Code)

	_, env = doRequest(t, router, http.MethodPost, "/admin/api/v1/residents/"+aID+"/swap", map[string]any{"other_resident_id": bID})
	require.Equal(t, ResultSuccess, env.Code, env.Message)

	_, env = doRequest(t, router, http.MethodGet, "/admin/api/v1/residents/"+aID, nil)
	var resident map[string]any
	require.NoError(t, json.Unmarshal(env.Result, &resident))
	assert.Equal(t, bedY["asset_id"], resident["assigned_asset_id"])

	_, env = doRequest(t, router, http.MethodPost, "/admin/api/v1/residents/"+aID+"/checkout", nil)
	require.Equal(t, ResultSuccess, env.Code, env.Message)

	_, env = doRequest(t, router, http.MethodPost, "/admin/api/v1/residents/"+aID+"/assign", map[string]any{"asset_id": bedY["asset_id"]})
	assert.Equal(t, ResultInvalidArgument, env.Code)
}

func TestAssets_SetState(t *testing.T) {
	router := newTestRouter(t)
	bed := createBed(t, router, "Room 4")
	path := "/admin/api/v1/assets/" + bed["asset_id"].(string) + "/state"

	_, env := doRequest(t, router, http.MethodPut, path, map[string]any{"state": "maintenance"})
	require.Equal(t, ResultSuccess, env.Code, env.Message)

	_, env = doRequest(t, router, http.MethodPut, path, map[string]any{"state": "broken"})
	assert.Equal(t, ResultInvalidArgument, env.Code)
}

func TestResidents_ByCode(t *testing.T) {
	router := newTestRouter(t)
	createResident(t, router, "R-777")

	_, env := doRequest(t, router, http.MethodGet, "/admin/api/v1/residents?resident_code=R-777", nil)
	assert.Equal(t, ResultSuccess, env.Code)

	_, env = doRequest(t, router, http.MethodGet, "/admin/api/v1/residents?resident_code=R-404", nil)
	assert.Equal(t, ResultNotFound, env.Code)

	_, env = doRequest(t, router, http.MethodPost, "/admin/api/v1/residents", map[string]any{"resident_code": "R-777"})
	assert.Equal(t, ResultConflict, env.Code)
}

func TestRouter_UnknownRoutesAndMethods(t *testing.T) {
	router := newTestRouter(t)

	rec, _ := doRequest(t, router, http.MethodPatch, "/admin/api/v1/assets", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec, _ = doRequest(t, router, http.MethodGet, "/admin/api/v1/assets/a/b/c", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = doRequest(t, router, http.MethodPost, "/admin/api/v1/residents/r1/teleport", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_OpsEndpoints(t *testing.T) {
	router := newTestRouter(t)
	createBed(t, router, "Room 5")
	resident := createResident(t, router, "R-900")
	doRequest(t, router, http.MethodPost, "/admin/api/v1/residents/"+resident["resident_id"].(string)+"/release", nil)

	_, env := doRequest(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, ResultSuccess, env.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hostel_allocation_operations_total")
}
