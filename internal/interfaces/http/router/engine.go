package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/erp/ingest/internal/infrastructure/logger"
	"github.com/erp/ingest/internal/interfaces/http/handler"
	"github.com/erp/ingest/internal/interfaces/http/middleware"
)

// EngineConfig configures the gin engine and its global middleware
type EngineConfig struct {
	Logger         *zap.Logger
	ServiceName    string
	TracingEnabled bool
	Profiling      bool
	CORS           middleware.CORSConfig
	TrustedProxies []string
}

// NewEngine creates a gin engine with recovery, tracing, profiling labels,
// request logging and CORS installed in that order
func NewEngine(cfg EngineConfig) (*gin.Engine, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}
	engine.Use(
		logger.Recovery(log),
		middleware.Tracing(middleware.TracingConfig{ServiceName: cfg.ServiceName, Enabled: cfg.TracingEnabled}),
		middleware.Profiling(middleware.ProfilingConfig{Enabled: cfg.Profiling, SkipPaths: []string{"/health"}}),
		logger.GinMiddleware(log),
		middleware.CORSWithConfig(cfg.CORS),
	)
	return engine, nil
}

// ImportRoutes builds the /imports group. Uploads are capped at maxUpload bytes.
func ImportRoutes(imports *handler.ImportHandler, events *handler.ImportEventsHandler, maxUpload int64) *DomainGroup {
	dg := NewDomainGroup("imports", "/imports").Use(middleware.SpanEnricher())
	dg.POST("", middleware.BodyLimit(maxUpload), imports.Upload)
	dg.GET("", imports.List)
	dg.GET("/:id", imports.Get)
	dg.GET("/:id/preview", imports.Preview)
	dg.PUT("/:id/mappings", imports.UpdateMappings)
	dg.POST("/:id/recovery", imports.AnalyzeErrors)
	dg.POST("/:id/recovery/:recoveryId/apply", imports.ApplyFixes)
	dg.POST("/:id/process", imports.Process)
	dg.POST("/:id/cancel", imports.Cancel)
	dg.GET("/:id/events", events.Stream)
	return dg
}

// SchemaRoutes builds the /schemas group
func SchemaRoutes(imports *handler.ImportHandler) *DomainGroup {
	return NewDomainGroup("schemas", "/schemas").GET("", imports.ListSchemas)
}

// RegisterHealth mounts the health endpoint outside the versioned API
func RegisterHealth(engine *gin.Engine, system *handler.SystemHandler) {
	engine.GET("/health", system.Health)
}
