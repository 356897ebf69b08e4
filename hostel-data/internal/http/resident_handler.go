package httpapi

import (
	"net/http"
	"strings"

	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-data/internal/service"
	"go.uber.org/zap"
)

const adminResidentsPath = "/admin/api/v1/residents"

// ResidentsHandler 住户 + 分配 API
type ResidentsHandler struct {
	residents   service.ResidentService
	allocations service.AllocationService
	logger      *zap.Logger
}

func NewResidentsHandler(residents service.ResidentService, allocations service.AllocationService, logger *zap.Logger) *ResidentsHandler {
	return &ResidentsHandler{residents: residents, allocations: allocations, logger: logger}
}

func (h *ResidentsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, adminResidentsPath)
	switch {
	case len(parts) == 0:
		switch r.Method {
		case http.MethodGet:
			h.GetResidentByCode(w, r)
		case http.MethodPost:
			h.CreateResident(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.GetResident(w, r, parts[0])
	case len(parts) == 2:
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		switch parts[1] {
		case "assign":
			h.Assign(w, r, parts[0])
		case "release":
			h.Release(w, r, parts[0])
		case "checkout":
			h.Checkout(w, r, parts[0])
		case "swap":
			h.Swap(w, r, parts[0])
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *ResidentsHandler) CreateResident(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantIDFromReq(w, r)
	if !ok {
		return
	}
	var payload struct {
		ResidentCode string `json:"resident_code"`
		Nickname     string `json:"nickname"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &payload); err != nil {
		writeJSON(w, http.StatusOK, FailCode(ResultInvalidArgument, "invalid body"))
		return
	}
	resident, err := h.residents.CreateResident(r.Context(), service.CreateResidentRequest{
		TenantID:     tenantID,
		ResidentCode: payload.ResidentCode,
		Nickname:     payload.Nickname,
	})
	if err != nil {
		h.logger.Error("CreateResident failed", zap.String("tenant_id", tenantID), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resident))
}

// GetResidentByCode GET /residents?resident_code=
func (h *ResidentsHandler) GetResidentByCode(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantIDFromReq(w, r)
	if !ok {
		return
	}
	code := strings.TrimSpace(r.URL.Query().Get("resident_code"))
	if code == "" {
		writeJSON(w, http.StatusOK, FailCode(ResultInvalidArgument, "resident_code is required"))
		return
	}
	resident, err := h.residents.GetResidentByCode(r.Context(), tenantID, code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resident))
}

func (h *ResidentsHandler) GetResident(w http.ResponseWriter, r *http.Request, residentID string) {
	tenantID, ok := tenantIDFromReq(w, r)
	if !ok {
		return
	}
	resident, err := h.residents.GetResident(r.Context(), tenantID, residentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resident))
}

func (h *ResidentsHandler) Assign(w http.ResponseWriter, r *http.Request, residentID string) {
	tenantID, ok := tenantIDFromReq(w, r)
	if !ok {
		return
	}
	var payload struct {
		AssetID string `json:"asset_id"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &payload); err != nil {
		writeJSON(w, http.StatusOK, FailCode(ResultInvalidArgument, "invalid body"))
		return
	}
	result, err := h.allocations.Assign(r.Context(), service.AllocationRequest{
		TenantID:   tenantID,
		ResidentID: residentID,
		AssetID:    strings.TrimSpace(payload.AssetID),
		ActorID:    actorIDFromReq(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(result))
}

func (h *ResidentsHandler) Release(w http.ResponseWriter, r *http.Request, residentID string) {
	tenantID, ok := tenantIDFromReq(w, r)
	if !ok {
		return
	}
	result, err := h.allocations.Release(r.Context(), service.AllocationRequest{
		TenantID:   tenantID,
		ResidentID: residentID,
		ActorID:    actorIDFromReq(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(result))
}

func (h *ResidentsHandler) Checkout(w http.ResponseWriter, r *http.Request, residentID string) {
	tenantID, ok := tenantIDFromReq(w, r)
	if !ok {
		return
	}
	result, err := h.allocations.Checkout(r.Context(), service.AllocationRequest{
		TenantID:   tenantID,
		ResidentID: residentID,
		ActorID:    actorIDFromReq(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(result))
}

func (h *ResidentsHandler) Swap(w http.ResponseWriter, r *http.Request, residentID string) {
	tenantID, ok := tenantIDFromReq(w, r)
	if !ok {
		return
	}
	var payload struct {
		OtherResidentID string `json:"other_resident_id"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &payload); err != nil {
		writeJSON(w, http.StatusOK, FailCode(ResultInvalidArgument, "invalid body"))
		return
	}
	result, err := h.allocations.Swap(r.Context(), service.SwapRequest{
		TenantID:    tenantID,
		ResidentAID: residentID,
		ResidentBID: strings.TrimSpace(payload.OtherResidentID),
		ActorID:     actorIDFromReq(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(result))
}
