package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-data/internal/domain"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func readBodyJSON(r *http.Request, maxBytes int64, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

// tenantIDFromReq tenant_id 查询参数优先，其次 X-Tenant-Id
func tenantIDFromReq(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenantID := strings.TrimSpace(r.URL.Query().Get("tenant_id"))
	if tenantID == "" || tenantID == "null" {
		tenantID = strings.TrimSpace(r.Header.Get("X-Tenant-Id"))
	}
	if tenantID == "" || tenantID == "null" {
		writeJSON(w, http.StatusOK, FailCode(ResultInvalidArgument, "tenant_id is required"))
		return "", false
	}
	return tenantID, true
}

func actorIDFromReq(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-Id"))
}

// errorCode 领域错误 -> 响应码
func errorCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return ResultInvalidArgument
	case errors.Is(err, domain.ErrNotFound):
		return ResultNotFound
	case errors.Is(err, domain.ErrAssetUnavailable):
		return ResultAssetUnavailable
	case errors.Is(err, domain.ErrAssetOccupied):
		return ResultAssetOccupied
	case errors.Is(err, domain.ErrConflict):
		return ResultConflict
	case errors.Is(err, domain.ErrStorage):
		return ResultStorage
	default:
		return ResultError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusOK, FailCode(errorCode(err), err.Error()))
}

// splitPath 去掉前缀后按 / 切分
func splitPath(path, prefix string) []string {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}
