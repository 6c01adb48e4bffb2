package router

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	ingestapp "github.com/erp/ingest/internal/application/ingest"
	"github.com/erp/ingest/internal/application/mapping"
	"github.com/erp/ingest/internal/domain/ingest"
	"github.com/erp/ingest/internal/infrastructure/config"
	"github.com/erp/ingest/internal/infrastructure/event"
	"github.com/erp/ingest/internal/infrastructure/extract"
	"github.com/erp/ingest/internal/infrastructure/persistence"
	"github.com/erp/ingest/internal/interfaces/http/dto"
	"github.com/erp/ingest/internal/interfaces/http/handler"
	"github.com/erp/ingest/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine, WithAPIVersion("v2"))

	group := NewDomainGroup("test", "/test")
	group.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	group.PUT("/item", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	routes := r.Register(group).Setup()

	assert.Equal(t, "test", group.Name())
	assert.Equal(t, 2, group.Size())
	assert.Equal(t, "/api/v2", r.BasePath())
	require.Len(t, routes, 2)
	assert.Equal(t, "/api/v2/test/item", routes[0].Path)
	assert.Equal(t, http.MethodPut, routes[0].Method)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v2/test/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/api/v2/test/item", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestDomainGroup_RequiresHandler(t *testing.T) {
	assert.Panics(t, func() { NewDomainGroup("test", "/test").GET("/nothing") })
}

func TestDomainGroupMiddleware(t *testing.T) {
	engine := gin.New()
	var order []string
	group := NewDomainGroup("test", "/test").Use(func(c *gin.Context) {
		order = append(order, "middleware")
		c.Next()
	})
	group.POST("", func(c *gin.Context) {
		order = append(order, "handler")
		c.Status(http.StatusCreated)
	})
	NewRouter(engine).Register(group).Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/test", nil))
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, []string{"middleware", "handler"}, order)
}

type apiFixture struct {
	engine *gin.Engine
	store  *persistence.GormRecordStore
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	db, err := persistence.NewDatabase(&config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, persistence.AutoMigrate(db.DB))

	store := persistence.NewGormRecordStore(db.DB)
	sessions := persistence.NewMemorySessionRepository()
	broker := event.NewProgressBroker(logger)
	orch := ingestapp.NewOrchestrator(store, sessions, broker, ingestapp.OrchestratorConfig{BatchSize: 2, MaxConcurrency: 1}, logger)
	svc := ingestapp.NewService(ingestapp.ServiceDeps{
		Extractor:    extract.NewExtractor(extract.WithMaxFileSize(1 << 20)),
		Engines:      []*mapping.Engine{mapping.NewEngine(ingest.DefaultProductSchema(), nil)},
		Sessions:     sessions,
		Orchestrator: orch,
		Sink:         broker,
		RecoveryTTL:  time.Minute,
		Logger:       logger,
	}, ingestapp.ServiceConfig{WorkspaceTTL: time.Minute})
	t.Cleanup(svc.Close)

	engine, err := NewEngine(EngineConfig{Logger: logger, CORS: middleware.DefaultCORSConfig()})
	require.NoError(t, err)
	imports := handler.NewImportHandler(svc, handler.WithMaxUploadSize(1<<20))
	events := handler.NewImportEventsHandler(svc, broker, time.Hour)
	NewRouter(engine).
		Register(ImportRoutes(imports, events, 1<<20)).
		Register(SchemaRoutes(imports)).
		Setup()
	RegisterHealth(engine, handler.NewSystemHandler("test", map[string]handler.HealthCheck{
		"database": func(context.Context) error { return db.Ping() },
	}))

	return &apiFixture{engine: engine, store: store}
}

func (f *apiFixture) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, dto.Response) {
	t.Helper()
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	var resp dto.Response
	if w.Header().Get("Content-Type") != "text/event-stream" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w, resp
}

func TestImportAPI_EndToEnd(t *testing.T) {
	f := newAPIFixture(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("entity_type", "product"))
	part, err := mw.CreateFormFile("file", "catalog.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("SKU,Product Name,Unit Price,Qty\nMUG-001,Blue mug,12.50,5\nMUG-002,Red mug,13.00,3\nCUP-003,Cup,4.25,10\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w, resp := f.do(t, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	session := resp.Data.(map[string]any)["session"].(map[string]any)
	id := session["id"].(string)
	assert.Equal(t, "previewing", session["status"])

	w, resp = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/imports/"+id+"/preview?limit=2", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data.(map[string]any)["records"], 2)

	w, resp = f.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/imports/"+id+"/process?mode=sync", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "completed", resp.Data.(map[string]any)["status"])

	n, err := f.store.Count(context.Background(), "product")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	w, _ = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/imports/"+id+"/events", nil))
	assert.Contains(t, w.Body.String(), "event:completed")

	w, _ = f.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/imports/"+id+"/process", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "completed sessions cannot be reprocessed")

	w, resp = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/imports?status=completed", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, resp.Meta.Total)

	w, _ = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/schemas", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp = f.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
}

func TestImportAPI_Errors(t *testing.T) {
	f := newAPIFixture(t)

	w, resp := f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/imports/does-not-exist", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, dto.ErrCodeNotFound, resp.Error.Code)
	assert.NotEmpty(t, resp.Error.RequestID)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports", bytes.NewReader(nil))
	req.ContentLength = 3 << 20
	w, resp = f.do(t, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, dto.ErrCodePayloadTooLarge, resp.Error.Code)

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/imports", nil)
	req.Header.Set("Origin", "https://elsewhere.example.com")
	w = httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
