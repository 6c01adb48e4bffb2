package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	ingestapp "github.com/erp/ingest/internal/application/ingest"
	"github.com/erp/ingest/internal/domain/ingest"
	"github.com/erp/ingest/internal/infrastructure/logger"
	"github.com/erp/ingest/internal/interfaces/http/dto"
)

// ImportService is the pipeline surface used by the HTTP handlers
type ImportService interface {
	EntityTypes() []string
	Schema(entityType string) (*ingest.TargetSchema, bool)
	Upload(ctx context.Context, req ingestapp.UploadRequest) (*ingestapp.UploadResult, error)
	ListSessions(ctx context.Context, filter ingest.SessionFilter) ([]*ingest.ImportSession, error)
	Session(ctx context.Context, id string) (*ingest.ImportSession, error)
	Preview(ctx context.Context, id string, limit int) (*ingestapp.Preview, error)
	OverrideMappings(ctx context.Context, id string, overrides []ingestapp.MappingOverride) (*ingestapp.UploadResult, error)
	AnalyzeErrors(ctx context.Context, id string) (*ingestapp.RecoveryAnalysis, error)
	ApplyFixes(ctx context.Context, id, recoveryID string, keys []ingestapp.FixKey) (*ingestapp.ApplyResult, error)
	Process(ctx context.Context, id string) (*ingest.ImportSession, error)
	StartProcessing(ctx context.Context, id string) (*ingest.ImportSession, error)
	Cancel(ctx context.Context, id string) (*ingest.ImportSession, error)
}

// ImportHandler serves the import session endpoints
type ImportHandler struct {
	BaseHandler
	service       ImportService
	maxUploadSize int64
}

// ImportHandlerOption configures an ImportHandler
type ImportHandlerOption func(*ImportHandler)

// WithMaxUploadSize caps the size of uploaded files
func WithMaxUploadSize(n int64) ImportHandlerOption {
	return func(h *ImportHandler) {
		if n > 0 {
			h.maxUploadSize = n
		}
	}
}

// NewImportHandler creates an ImportHandler
func NewImportHandler(service ImportService, opts ...ImportHandlerOption) *ImportHandler {
	h := &ImportHandler{service: service, maxUploadSize: 50 << 20}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ListSchemas godoc
// @Summary      List target schemas
// @Tags         imports
// @Produce      json
// @Success      200 {object} dto.Response
// @Router       /schemas [get]
func (h *ImportHandler) ListSchemas(c *gin.Context) {
	types := h.service.EntityTypes()
	schemas := make([]*ingest.TargetSchema, 0, len(types))
	for _, t := range types {
		if s, ok := h.service.Schema(t); ok {
			schemas = append(schemas, s)
		}
	}
	h.SuccessList(c, schemas, len(schemas), 0)
}

// Upload godoc
// @Summary      Upload a file for import
// @Description  Archives the file, detects its format, proposes field mappings and validates the mapped records
// @Tags         imports
// @Accept       multipart/form-data
// @Produce      json
// @Param        file formData file true "CSV, TSV, JSON or XLSX file"
// @Param        entity_type formData string false "Target entity type" default(product)
// @Success      201 {object} dto.Response
// @Failure      400 {object} dto.Response
// @Failure      413 {object} dto.Response
// @Failure      422 {object} dto.Response
// @Router       /imports [post]
func (h *ImportHandler) Upload(c *gin.Context) {
	var form dto.UploadForm
	if err := c.ShouldBind(&form); err != nil {
		h.BindingError(c, err)
		return
	}
	if form.EntityType == "" {
		form.EntityType = ingest.DefaultEntityType
	}

	fh, err := c.FormFile("file")
	if err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeValidationRequired, "A file must be uploaded in the 'file' field")
		return
	}
	if fh.Size > h.maxUploadSize {
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodePayloadTooLarge,
			fmt.Sprintf("File is %d bytes, the limit is %d", fh.Size, h.maxUploadSize))
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.BadRequest(c, "Uploaded file could not be read")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, h.maxUploadSize+1))
	if err != nil {
		h.BadRequest(c, "Uploaded file could not be read")
		return
	}

	result, err := h.service.Upload(c.Request.Context(), ingestapp.UploadRequest{
		FileName:    fh.Filename,
		EntityType:  form.EntityType,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		if result != nil {
			// The session exists and failed; return it with the error.
			code := dto.ErrCodeUnparseableFile
			c.JSON(dto.GetHTTPStatus(code), dto.Response{
				Success: false,
				Data:    result,
				Error:   &dto.ErrorInfo{Code: code, Message: err.Error(), RequestID: getRequestID(c)},
			})
			return
		}
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// List godoc
// @Summary      List import sessions
// @Tags         imports
// @Produce      json
// @Param        status query string false "Session status"
// @Param        entity_type query string false "Entity type"
// @Param        limit query int false "Maximum sessions" default(50)
// @Success      200 {object} dto.Response
// @Router       /imports [get]
func (h *ImportHandler) List(c *gin.Context) {
	var q dto.ListSessionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindingError(c, err)
		return
	}
	if q.Limit == 0 {
		q.Limit = 50
	}
	sessions, err := h.service.ListSessions(c.Request.Context(), q.SessionFilter())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessList(c, sessions, len(sessions), q.Limit)
}

// Get godoc
// @Summary      Get an import session
// @Tags         imports
// @Produce      json
// @Param        id path string true "Session ID"
// @Success      200 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Router       /imports/{id} [get]
func (h *ImportHandler) Get(c *gin.Context) {
	session, err := h.service.Session(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, session)
}

// Preview godoc
// @Summary      Preview mapped records
// @Tags         imports
// @Produce      json
// @Param        id path string true "Session ID"
// @Param        limit query int false "Rows to return" default(20)
// @Success      200 {object} dto.Response
// @Router       /imports/{id}/preview [get]
func (h *ImportHandler) Preview(c *gin.Context) {
	var q dto.PreviewQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindingError(c, err)
		return
	}
	preview, err := h.service.Preview(c.Request.Context(), c.Param("id"), q.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, preview)
}

// UpdateMappings godoc
// @Summary      Override field mappings
// @Tags         imports
// @Accept       json
// @Produce      json
// @Param        id path string true "Session ID"
// @Param        request body dto.MappingOverrideRequest true "Overrides"
// @Success      200 {object} dto.Response
// @Failure      422 {object} dto.Response
// @Router       /imports/{id}/mappings [put]
func (h *ImportHandler) UpdateMappings(c *gin.Context) {
	var req dto.MappingOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}
	result, err := h.service.OverrideMappings(c.Request.Context(), c.Param("id"), req.Overrides)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// AnalyzeErrors godoc
// @Summary      Propose fixes for validation errors
// @Tags         imports
// @Produce      json
// @Param        id path string true "Session ID"
// @Success      200 {object} dto.Response
// @Router       /imports/{id}/recovery [post]
func (h *ImportHandler) AnalyzeErrors(c *gin.Context) {
	analysis, err := h.service.AnalyzeErrors(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, analysis)
}

// ApplyFixes godoc
// @Summary      Apply proposed fixes
// @Description  Applies the named fixes, or every auto-eligible fix when none are named
// @Tags         imports
// @Accept       json
// @Produce      json
// @Param        id path string true "Session ID"
// @Param        recoveryId path string true "Recovery session ID"
// @Param        request body dto.ApplyFixesRequest false "Fixes to apply"
// @Success      200 {object} dto.Response
// @Router       /imports/{id}/recovery/{recoveryId}/apply [post]
func (h *ImportHandler) ApplyFixes(c *gin.Context) {
	var req dto.ApplyFixesRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BindingError(c, err)
			return
		}
	}
	result, err := h.service.ApplyFixes(c.Request.Context(), c.Param("id"), c.Param("recoveryId"), req.Keys())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Process godoc
// @Summary      Start processing
// @Description  Inserts the valid records in batches. Runs in the background unless mode=sync.
// @Tags         imports
// @Produce      json
// @Param        id path string true "Session ID"
// @Param        mode query string false "sync or async" default(async)
// @Success      200 {object} dto.Response
// @Success      202 {object} dto.Response{data=dto.ProcessAcceptedResponse}
// @Failure      409 {object} dto.Response
// @Router       /imports/{id}/process [post]
func (h *ImportHandler) Process(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	if c.Query("mode") == "sync" {
		session, err := h.service.Process(ctx, id)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		h.Success(c, session)
		return
	}

	session, err := h.service.StartProcessing(ctx, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	logger.L(ctx).Info("Import processing started", zap.Int("records", session.TotalRecords))
	h.Accepted(c, dto.ProcessAcceptedResponse{
		SessionID: session.ID,
		Status:    ingest.StatusProcessing,
		EventsURL: strings.TrimSuffix(c.Request.URL.Path, "/process") + "/events",
	})
}

// Cancel godoc
// @Summary      Cancel an import
// @Tags         imports
// @Produce      json
// @Param        id path string true "Session ID"
// @Success      200 {object} dto.Response
// @Failure      422 {object} dto.Response
// @Router       /imports/{id}/cancel [post]
func (h *ImportHandler) Cancel(c *gin.Context) {
	session, err := h.service.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, session)
}
