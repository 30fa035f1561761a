package handlers

import (
	"net/http"
	"os"
	"runtime"

	"go.uber.org/zap"

	"github.com/trustdiner/trustdiner-api/pkg/config"
)

// PingResponse contains service status and version information.
type PingResponse struct {
	Status          string `json:"status"`
	Version         string `json:"version"`
	Service         string `json:"service"`
	GoVersion       string `json:"go_version"`
	Hostname        string `json:"hostname"`
	Environment     string `json:"environment"`
	CacheBackend    string `json:"cache_backend"`
	GoogleAvailable bool   `json:"google_available"`
}

// HealthHandler handles health check, ping and metrics endpoints.
type HealthHandler struct {
	cfg             *config.Config
	cacheBackend    string
	googleAvailable bool
	metrics         http.Handler
	logger          *zap.Logger
}

// NewHealthHandler creates a HealthHandler. metricsHandler may be nil, in
// which case /metrics is not registered.
func NewHealthHandler(cfg *config.Config, cacheBackend string, googleAvailable bool, metricsHandler http.Handler, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		cfg:             cfg,
		cacheBackend:    cacheBackend,
		googleAvailable: googleAvailable,
		metrics:         metricsHandler,
		logger:          logger,
	}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}
}

// Health handles GET /health requests for load balancer probes.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ping handles GET /ping requests.
// Returns detailed service information including version and environment.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:          "ok",
		Version:         h.cfg.Version,
		Service:         "trustdiner-api",
		GoVersion:       runtime.Version(),
		Hostname:        hostname,
		Environment:     h.cfg.Env,
		CacheBackend:    h.cacheBackend,
		GoogleAvailable: h.googleAvailable,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
