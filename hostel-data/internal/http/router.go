package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// HandleHandler 支持 http.Handler 接口（用于 promhttp 等）
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterAssetRoutes 资产管理 + 公开查询
func (r *Router) RegisterAssetRoutes(h *AssetsHandler) {
	r.Handle("/admin/api/v1/assets", h.ServeHTTP)
	r.Handle("/admin/api/v1/assets/", h.ServeHTTP)
	r.Handle("/public/api/v1/assets/", h.ServePublic)
}

// RegisterResidentRoutes 住户 + 分配操作
func (r *Router) RegisterResidentRoutes(h *ResidentsHandler) {
	r.Handle("/admin/api/v1/residents", h.ServeHTTP)
	r.Handle("/admin/api/v1/residents/", h.ServeHTTP)
}

// RegisterOpsRoutes /healthz + /metrics
func (r *Router) RegisterOpsRoutes(gatherer prometheus.Gatherer) {
	r.Handle("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, Ok(map[string]any{"status": "ok"}))
	})
	r.HandleHandler("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
