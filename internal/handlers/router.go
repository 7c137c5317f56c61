package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/middleware"
	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/observability"
	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/services"
)

// RouterConfig holds everything the HTTP surface is built from
type RouterConfig struct {
	Gateway *services.OfflineGateway
	Queue   *services.OfflineQueue
	Engine  *services.SyncEngine
	Hub     *services.WebSocketHub
	// Manual is set only in manual connectivity mode
	Manual *services.ConnectivityMonitor

	APIKey         string
	APIKeyHeader   string
	AllowedOrigins []string

	// Optional
	HTTPMetrics    *observability.HTTPMetrics
	MetricsHandler http.Handler
}

// NewRouter builds the chi router for the data, sync and docs endpoints
func NewRouter(cfg RouterConfig) http.Handler {
	tableHandler := NewTableHandler(cfg.Gateway)
	syncHandler := NewSyncHandler(cfg.Engine, cfg.Queue, cfg.Manual)
	wsHandler := NewWebSocketHandler(cfg.Hub, cfg.Engine, cfg.AllowedOrigins)
	healthHandler := NewHealthHandler(cfg.Engine)

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(observability.TracingMiddleware())
	if cfg.HTTPMetrics != nil {
		r.Use(observability.MetricsMiddleware(cfg.HTTPMetrics))
	}
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", cfg.APIKeyHeader},
		AllowCredentials: true,
	}).Handler)
	r.Use(middleware.APIKeyAuth(cfg.APIKey, cfg.APIKeyHeader))

	r.Get("/health", healthHandler.HealthCheck)
	r.Get("/api/health", healthHandler.HealthCheck)
	r.Get("/api/version", VersionHandler)

	r.Route("/api/tables/{table}", func(r chi.Router) {
		r.Get("/", tableHandler.Select)
		r.Post("/", tableHandler.Insert)
		r.Patch("/", tableHandler.Update)
		r.Delete("/", tableHandler.Delete)
	})

	r.Route("/api/sync", func(r chi.Router) {
		r.Get("/status", syncHandler.GetStatus)
		r.Get("/queue", syncHandler.GetQueue)
		r.Post("/force", syncHandler.ForceSync)
		r.Put("/connectivity", syncHandler.SetConnectivity)
	})

	r.Get("/ws/sync", wsHandler.HandleConnection)

	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	r.Get("/swagger/doc.json", OpenAPIDoc)
	r.Get("/swagger/*", SwaggerUI())

	return r
}
