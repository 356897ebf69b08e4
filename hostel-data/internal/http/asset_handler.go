package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-data/internal/domain"
	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-data/internal/service"
	"go.uber.org/zap"
)

const (
	adminAssetsPath  = "/admin/api/v1/assets"
	publicAssetsPath = "/public/api/v1/assets"

	exportPageSize = 200
)

// AssetsHandler 资产管理 API
type AssetsHandler struct {
	assets      service.AssetService
	allocations service.AllocationService
	logger      *zap.Logger
}

func NewAssetsHandler(assets service.AssetService, allocations service.AllocationService, logger *zap.Logger) *AssetsHandler {
	return &AssetsHandler{assets: assets, allocations: allocations, logger: logger}
}

func (h *AssetsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, adminAssetsPath)
	switch {
	case len(parts) == 0:
		switch r.Method {
		case http.MethodGet:
			h.ListAvailable(w, r)
		case http.MethodPost:
			h.CreateAsset(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case len(parts) == 2 && parts[0] == "by-code":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.GetByExternalCode(w, r, parts[1])
	case len(parts) == 1 && parts[0] == "import-template":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.GetImportTemplate(w, r)
	case len(parts) == 1 && parts[0] == "export":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.ExportAssets(w, r)
	case len(parts) == 1 && parts[0] == "import":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.ImportAssets(w, r)
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			h.GetAsset(w, r, parts[0])
		case http.MethodDelete:
			h.DeleteAsset(w, r, parts[0])
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case len(parts) == 2 && parts[1] == "state":
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.SetState(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "release":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.ReleaseAsset(w, r, parts[0])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// ServePublic 按公开标识查询（无需租户）
func (h *AssetsHandler) ServePublic(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, publicAssetsPath)
	if len(parts) != 1 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	asset, err := h.assets.GetByPublicSlug(r.Context(), parts[0])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(publicAsset(asset)))
}

func (h *AssetsHandler) CreateAsset(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantIDFromReq(w, r)
	if !ok {
		return
	}
	var payload struct {
		Category     string `json:"category"`
		HumanLabel   string `json:"human_label"`
		ExternalCode string `json:"external_code"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &payload); err != nil {
		writeJSON(w, http.StatusOK, FailCode(ResultInvalidArgument, "invalid body"))
		return
	}
	asset, err := h.assets.CreateAsset(r.Context(), service.CreateAssetRequest{
		TenantID:     tenantID,
		Category:     payload.Category,
		HumanLabel:   payload.HumanLabel,
		ExternalCode: payload.ExternalCode,
	})
	if err != nil {
		h.logger.Error("CreateAsset failed", zap.String("tenant_id", tenantID), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(asset))
}

func (h *AssetsHandler) ListAvailable(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantIDFromReq(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	resp, err := h.assets.ListAvailable(r.Context(), service.ListAvailableRequest{
		TenantID:    tenantID,
		Category:    strings.TrimSpace(q.Get("category")),
		LabelPrefix: strings.TrimSpace(q.Get("label_prefix")),
		Page:        parseInt(q.Get("page"), 1),
		Size:        parseInt(q.Get("size"), 20),
	})
	if err != nil {
		h.logger.Error("ListAvailable failed", zap.String("tenant_id", tenantID), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"items": resp.Items,
		"total": resp.Total,
	}))
}

func (h *AssetsHandler) GetAsset(w http.ResponseWriter, r *http.Request, assetID string) {
	tenantID, ok := tenantIDFromReq(w, r)
	if !ok {
		return
	}
	asset, err := h.assets.GetAsset(r.Context(), tenantID, assetID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(asset))
}

func (h *AssetsHandler) GetByExternalCode(w http.ResponseWriter, r *http.Request, code string) {
	tenantID, ok := tenantIDFromReq(w, r)
	if !ok {
		return
	}
	asset, err := h.assets.GetByExternalCode(r.Context(), tenantID, code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(asset))
}

func (h *AssetsHandler) DeleteAsset(w http.ResponseWriter, r *http.Request, assetID string) {
	tenantID, ok := tenantIDFromReq(w, r)
	if !ok {
		return
	}
	if err := h.assets.DeleteAsset(r.Context(), tenantID, assetID); err != nil {
		h.logger.Error("DeleteAsset failed", zap.String("tenant_id", tenantID), zap.String("asset_id", assetID), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"success": true}))
}

func (h *AssetsHandler) SetState(w http.ResponseWriter, r *http.Request, assetID string) {
	tenantID, ok := tenantIDFromReq(w, r)
	if !ok {
		return
	}
	var payload struct {
		State string `json:"state"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &payload); err != nil {
		writeJSON(w, http.StatusOK, FailCode(ResultInvalidArgument, "invalid body"))
		return
	}
	state, err := domain.ParseAssetState(strings.TrimSpace(payload.State))
	if err != nil {
		writeError(w, err)
		return
	}
	asset, err := h.assets.SetMaintenanceState(r.Context(), tenantID, assetID, state)
	if err != nil {
		h.logger.Error("SetMaintenanceState failed", zap.String("tenant_id", tenantID), zap.String("asset_id", assetID), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(asset))
}

func (h *AssetsHandler) ReleaseAsset(w http.ResponseWriter, r *http.Request, assetID string) {
	tenantID, ok := tenantIDFromReq(w, r)
	if !ok {
		return
	}
	result, err := h.allocations.ReleaseAsset(r.Context(), service.ReleaseAssetRequest{
		TenantID: tenantID,
		AssetID:  assetID,
		ActorID:  actorIDFromReq(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(result))
}

// GetImportTemplate 获取导入模板
func (h *AssetsHandler) GetImportTemplate(w http.ResponseWriter, r *http.Request) {
	data, err := GenerateAssetImportTemplate()
	if err != nil {
		h.logger.Error("GenerateAssetImportTemplate failed", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail(fmt.Sprintf("failed to generate template: %v", err)))
		return
	}
	writeXLSX(w, "asset-import-template.xlsx", data)
}

// ExportAssets 导出资产（所有状态，可按 state/category 过滤）
func (h *AssetsHandler) ExportAssets(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantIDFromReq(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	req := service.ListAssetsRequest{
		TenantID:    tenantID,
		Category:    strings.TrimSpace(q.Get("category")),
		LabelPrefix: strings.TrimSpace(q.Get("label_prefix")),
		State:       domain.AssetState(strings.TrimSpace(q.Get("state"))),
		Size:        exportPageSize,
	}
	var assets []*domain.Asset
	for page := 1; ; page++ {
		req.Page = page
		resp, err := h.assets.ListAssets(r.Context(), req)
		if err != nil {
			h.logger.Error("ListAssets failed for export", zap.String("tenant_id", tenantID), zap.Error(err))
			writeError(w, err)
			return
		}
		assets = append(assets, resp.Items...)
		if len(resp.Items) < exportPageSize || len(assets) >= resp.Total {
			break
		}
	}

	data, err := GenerateAssetExport(assets)
	if err != nil {
		h.logger.Error("GenerateAssetExport failed", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail(fmt.Sprintf("failed to generate export: %v", err)))
		return
	}
	writeXLSX(w, "asset-export.xlsx", data)
}

// ImportAssets 导入资产（multipart，字段名 file）
func (h *AssetsHandler) ImportAssets(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantIDFromReq(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeJSON(w, http.StatusOK, FailCode(ResultInvalidArgument, "failed to parse form"))
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusOK, FailCode(ResultInvalidArgument, "file not found in request"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusOK, FailCode(ResultInvalidArgument, "failed to read file"))
		return
	}
	rows, err := ParseAssetImport(data)
	if err != nil {
		writeJSON(w, http.StatusOK, FailCode(ResultInvalidArgument, err.Error()))
		return
	}

	result, err := h.assets.ImportAssets(r.Context(), tenantID, rows)
	if err != nil {
		h.logger.Error("ImportAssets failed", zap.String("tenant_id", tenantID), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(result))
}

func writeXLSX(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// publicAsset 公开接口不暴露占用人
func publicAsset(a *domain.Asset) map[string]any {
	return map[string]any{
		"public_slug": a.PublicSlug,
		"category":    a.Category,
		"human_label": a.HumanLabel,
		"state":       a.State,
	}
}
