package ingestapp

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"github.com/erp/ingest/internal/application/mapping"
	"github.com/erp/ingest/internal/domain/ingest"
	"github.com/erp/ingest/internal/domain/shared"
	"github.com/erp/ingest/internal/infrastructure/extract"
)

const (
	// DefaultPreviewLimit is the number of rows returned by Preview
	DefaultPreviewLimit = 20
	maxPreviewLimit     = 500
	maxLoggedRecordErrs = 100
)

// UploadRequest carries one uploaded file
type UploadRequest struct {
	FileName    string
	EntityType  string
	ContentType string
	Data        []byte
}

// UploadResult is the state of a session after analysis
type UploadResult struct {
	Session    *ingest.ImportSession    `json:"session"`
	Parse      *extract.ParseResult     `json:"parse"`
	Mapping    *ingest.MappingResult    `json:"mapping,omitempty"`
	Validation *ingest.ValidationReport `json:"validation,omitempty"`
}

// Preview shows the first records as they will be inserted
type Preview struct {
	Session    *ingest.ImportSession    `json:"session"`
	Columns    []string                 `json:"columns"`
	Records    []ingest.Record          `json:"records"`
	Mapping    *ingest.MappingResult    `json:"mapping"`
	Validation *ingest.ValidationReport `json:"validation"`
}

// Workspace is the in-memory working state of one session
type Workspace struct {
	mu       sync.Mutex
	Columns  []string
	Rows     []map[string]any
	Parse    *extract.ParseResult
	Mapping  *ingest.MappingResult
	Accepted ingest.MappingSet
	// Records are mapped but not yet normalized
	Records []ingest.Record
	Report  *ingest.ValidationReport
}

// ServiceConfig holds pipeline settings
type ServiceConfig struct {
	SampleSize   int
	PreviewLimit int
	WorkspaceTTL time.Duration
}

// Service runs the ingestion pipeline for import sessions
type Service struct {
	extractor    *extract.Extractor
	engines      map[string]*mapping.Engine
	validators   map[string]*Validator
	recovery     map[string]*RecoveryEngine
	sessions     ingest.SessionRepository
	archive      ingest.RawArchive
	orchestrator *Orchestrator
	sink         ingest.ProgressSink
	workspaces   *TTLStore[*Workspace]
	fixes        *TTLStore[*RecoverySession]
	cfg          ServiceConfig
	logger       *zap.Logger
	wg           sync.WaitGroup
}

// ServiceDeps are the collaborators of Service
type ServiceDeps struct {
	Extractor    *extract.Extractor
	Engines      []*mapping.Engine
	Sessions     ingest.SessionRepository
	Archive      ingest.RawArchive
	Orchestrator *Orchestrator
	Sink         ingest.ProgressSink
	RecoveryTTL  time.Duration
	Logger       *zap.Logger
}

// NewService creates a Service. One mapping engine is registered per entity type.
func NewService(deps ServiceDeps, cfg ServiceConfig) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PreviewLimit <= 0 {
		cfg.PreviewLimit = DefaultPreviewLimit
	}
	s := &Service{
		extractor:    deps.Extractor,
		engines:      make(map[string]*mapping.Engine),
		validators:   make(map[string]*Validator),
		recovery:     make(map[string]*RecoveryEngine),
		sessions:     deps.Sessions,
		archive:      deps.Archive,
		orchestrator: deps.Orchestrator,
		sink:         deps.Sink,
		workspaces:   NewTTLStore[*Workspace](cfg.WorkspaceTTL),
		fixes:        NewTTLStore[*RecoverySession](deps.RecoveryTTL),
		cfg:          cfg,
		logger:       logger,
	}
	for _, e := range deps.Engines {
		entity := e.Schema().EntityType
		v := NewValidator(e.Schema())
		s.engines[entity] = e
		s.validators[entity] = v
		s.recovery[entity] = NewRecoveryEngine(v, s.fixes, logger, nil)
	}
	return s
}

// Close stops background work and waits for async imports to finish
func (s *Service) Close() {
	s.wg.Wait()
	s.workspaces.Stop()
	s.fixes.Stop()
}

// EntityTypes lists the registered entity types
func (s *Service) EntityTypes() []string {
	out := make([]string, 0, len(s.engines))
	for k := range s.engines {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Schema returns the target schema of an entity type
func (s *Service) Schema(entityType string) (*ingest.TargetSchema, bool) {
	e, ok := s.engines[entityType]
	if !ok {
		return nil, false
	}
	return e.Schema(), true
}

// Upload archives the file, extracts rows, proposes mappings and validates
// the mapped records. The session ends in previewing, or failed when the
// file cannot be read.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	engine, ok := s.engines[req.EntityType]
	if !ok {
		return nil, shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Unknown entity type %q", req.EntityType))
	}
	if int64(len(req.Data)) > s.extractor.MaxFileSize() {
		return nil, shared.NewDomainError("PAYLOAD_TOO_LARGE",
			fmt.Sprintf("File is %d bytes, the limit is %d", len(req.Data), s.extractor.MaxFileSize()))
	}

	session, err := ingest.NewImportSession(req.EntityType, ingest.SourceFile{
		Name: filepath.Base(req.FileName),
		Size: int64(len(req.Data)),
	})
	if err != nil {
		return nil, err
	}
	log := s.logger.With(zap.String("session_id", session.ID), zap.String("file", session.Source.Name))

	if s.archive != nil {
		key := fmt.Sprintf("imports/%s/%s", session.ID, session.Source.Name)
		stored, err := s.archive.Put(ctx, key, contentTypeOf(req), req.Data)
		if err != nil {
			log.Warn("Failed to archive upload", zap.Error(err))
			session.LogError(ingest.SessionError{Level: ingest.ErrorLevelFile, Message: "raw file could not be archived: " + err.Error()})
		} else {
			session.Source.ArchiveKey = stored
		}
	}

	if err := session.TransitionTo(ingest.StatusAnalyzing); err != nil {
		return nil, err
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	parsed := s.extractor.Extract(req.Data, req.FileName)
	session.Source.DetectedType = parsed.StrategyName
	session.Source.Encoding = parsed.Metadata.Encoding
	result := &UploadResult{Session: session, Parse: parsed}
	if !parsed.Success {
		msg := "file could not be parsed"
		if len(parsed.Metadata.Issues) > 0 {
			msg += ": " + strings.Join(parsed.Metadata.Issues, "; ")
		}
		if err := session.Fail(ingest.ErrorLevelFile, msg); err != nil {
			return nil, err
		}
		if err := s.sessions.Save(ctx, session); err != nil {
			return nil, fmt.Errorf("save session: %w", err)
		}
		log.Warn("Upload rejected", zap.Strings("issues", parsed.Metadata.Issues))
		return result, shared.NewDomainError("UNPARSEABLE_FILE", msg)
	}

	if err := session.TransitionTo(ingest.StatusMapping); err != nil {
		return nil, err
	}
	fields := mapping.ProfileFields(parsed.Rows, parsed.Columns, s.cfg.SampleSize)
	session.SourceFields = fields
	mapped, err := engine.GenerateMappings(ctx, fields)
	if err != nil {
		return nil, s.failAnalysis(ctx, session, ingest.ErrorLevelMapping, err)
	}
	session.Mappings = mapped.Mappings
	if len(mapped.Mappings) == 0 {
		session.LogError(ingest.SessionError{Level: ingest.ErrorLevelMapping, Message: shared.ErrNoMappings.Message})
	}
	for _, d := range mapped.Degraded {
		session.LogError(ingest.SessionError{Level: ingest.ErrorLevelMapping, Message: "mapping degraded: " + d})
	}

	ws := &Workspace{
		Columns:  parsed.Columns,
		Rows:     parsed.Rows,
		Parse:    parsed,
		Mapping:  mapped,
		Accepted: ingest.MappingSet(mapped.Mappings),
	}
	s.remap(ws, req.EntityType)

	if err := session.TransitionTo(ingest.StatusPreviewing); err != nil {
		return nil, err
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	s.workspaces.Save(session.ID, ws)

	result.Mapping = mapped
	result.Validation = ws.Report
	log.Info("Upload analyzed",
		zap.String("strategy", parsed.StrategyName),
		zap.Int("records", parsed.Metadata.TotalRecords),
		zap.Int("mapped_fields", len(mapped.Mappings)),
		zap.Int("invalid_records", ws.Report.InvalidCount),
	)
	return result, nil
}

func contentTypeOf(req UploadRequest) string {
	if req.ContentType != "" {
		return req.ContentType
	}
	if ct := mime.TypeByExtension(filepath.Ext(req.FileName)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func (s *Service) failAnalysis(ctx context.Context, session *ingest.ImportSession, level ingest.ErrorLevel, cause error) error {
	if err := session.Fail(level, cause.Error()); err == nil {
		if serr := s.sessions.Save(ctx, session); serr != nil {
			s.logger.Error("Failed to save session", zap.String("session_id", session.ID), zap.Error(serr))
		}
	}
	return cause
}

// remap applies the accepted mappings to the rows and validates the result.
// Callers hold ws.mu or own ws exclusively.
func (s *Service) remap(ws *Workspace, entityType string) {
	v := s.validators[entityType]
	ws.Records = make([]ingest.Record, len(ws.Rows))
	for i, row := range ws.Rows {
		rec := ws.Accepted.Apply(row)
		deriveFields(v.Schema(), rec)
		ws.Records[i] = rec
	}
	ws.Report = v.Validate(ws.Records)
}

// deriveFields fills blank derived fields, e.g. a slug from the name
func deriveFields(schema *ingest.TargetSchema, rec ingest.Record) {
	for _, f := range schema.Fields {
		if f.DeriveFrom == "" || !rec.IsBlank(f.Name) || rec.IsBlank(f.DeriveFrom) {
			continue
		}
		rec[f.Name] = slug.Make(rec.String(f.DeriveFrom))
	}
}

// withDerived adds projection entries for derived fields whose source
// field is mapped, so projected records keep e.g. the generated slug
func withDerived(accepted ingest.MappingSet, schema *ingest.TargetSchema) ingest.MappingSet {
	out := append(ingest.MappingSet(nil), accepted...)
	mapped := make(map[string]string, len(accepted))
	for _, m := range accepted {
		mapped[m.TargetField] = m.SourceField
	}
	for _, f := range schema.Fields {
		if f.DeriveFrom == "" {
			continue
		}
		if _, done := mapped[f.Name]; done {
			continue
		}
		src, ok := mapped[f.DeriveFrom]
		if !ok {
			continue
		}
		out = append(out, ingest.FieldMapping{
			SourceField: src,
			TargetField: f.Name,
			Confidence:  100,
			Strategy:    ingest.StrategyDerived,
			Reasoning:   "derived from " + f.DeriveFrom,
		})
	}
	return out
}

// Session returns one session
func (s *Service) Session(ctx context.Context, id string) (*ingest.ImportSession, error) {
	return s.sessions.FindByID(ctx, id)
}

// ListSessions lists sessions, newest first
func (s *Service) ListSessions(ctx context.Context, filter ingest.SessionFilter) ([]*ingest.ImportSession, error) {
	return s.sessions.List(ctx, filter)
}

func (s *Service) workspace(id string) (*Workspace, error) {
	ws, ok := s.workspaces.Get(id)
	if !ok {
		return nil, shared.NewDomainError("NOT_FOUND", fmt.Sprintf("Working data for session %s is not available", id))
	}
	return ws, nil
}

// Preview returns the first limit normalized records with the mapping and validation summary
func (s *Service) Preview(ctx context.Context, id string, limit int) (*Preview, error) {
	session, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ws, err := s.workspace(id)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.cfg.PreviewLimit
	}
	if limit > maxPreviewLimit {
		limit = maxPreviewLimit
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()
	n := min(limit, len(ws.Report.Records))
	projection := withDerived(ws.Accepted, s.validators[session.EntityType].Schema())
	records := make([]ingest.Record, n)
	for i := 0; i < n; i++ {
		records[i] = projection.Project(ws.Report.Records[i])
	}
	return &Preview{
		Session:    session,
		Columns:    ws.Columns,
		Records:    records,
		Mapping:    ws.Mapping,
		Validation: ws.Report,
	}, nil
}

// MappingOverride sets or clears the target of one source column
type MappingOverride struct {
	SourceField string `json:"sourceField" binding:"required"`
	// TargetField empty removes the mapping of SourceField
	TargetField string `json:"targetField"`
}

// OverrideMappings applies manual mapping decisions and re-validates
func (s *Service) OverrideMappings(ctx context.Context, id string, overrides []MappingOverride) (*UploadResult, error) {
	session, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status != ingest.StatusPreviewing {
		return nil, shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Mappings can only be changed while previewing, session is %s", session.Status))
	}
	ws, err := s.workspace(id)
	if err != nil {
		return nil, err
	}
	engine := s.engines[session.EntityType]

	ws.mu.Lock()
	defer ws.mu.Unlock()

	columns := make(map[string]bool, len(ws.Columns))
	for _, c := range ws.Columns {
		columns[c] = true
	}
	accepted := append(ingest.MappingSet(nil), ws.Accepted...)
	var manual []ingest.FieldMapping
	for _, o := range overrides {
		if !columns[o.SourceField] {
			return nil, shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Unknown source column %q", o.SourceField))
		}
		if o.TargetField != "" {
			if _, ok := engine.Schema().Field(o.TargetField); !ok {
				return nil, shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Unknown target field %q", o.TargetField))
			}
		}
		kept := accepted[:0]
		for _, m := range accepted {
			if m.SourceField == o.SourceField || (o.TargetField != "" && m.TargetField == o.TargetField) {
				continue
			}
			kept = append(kept, m)
		}
		accepted = kept
		if o.TargetField == "" {
			continue
		}
		m := ingest.FieldMapping{
			SourceField: o.SourceField,
			TargetField: o.TargetField,
			Confidence:  100,
			Strategy:    ingest.StrategyManual,
			Reasoning:   "set manually",
		}
		accepted = append(accepted, m)
		manual = append(manual, m)
	}
	ingest.SortMappings(accepted)

	ws.Accepted = accepted
	ws.Mapping = rebuildMappingResult(ws.Mapping, accepted, ws.Columns)
	s.remap(ws, session.EntityType)
	engine.Remember(ctx, manual)

	session.Mappings = accepted
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return &UploadResult{Session: session, Parse: ws.Parse, Mapping: ws.Mapping, Validation: ws.Report}, nil
}

// rebuildMappingResult recomputes the summary after manual changes
func rebuildMappingResult(prev *ingest.MappingResult, accepted ingest.MappingSet, columns []string) *ingest.MappingResult {
	out := &ingest.MappingResult{
		Mappings:       []ingest.FieldMapping(accepted),
		LowConfidence:  []ingest.FieldMapping{},
		Unmapped:       []string{},
		StrategiesUsed: []string{},
	}
	if prev != nil {
		out.Degraded = prev.Degraded
	}
	mapped := make(map[string]bool)
	strategies := make(map[string]bool)
	total := 0.0
	for _, m := range accepted {
		mapped[m.SourceField] = true
		total += m.Confidence
		if !strategies[m.Strategy] {
			strategies[m.Strategy] = true
			out.StrategiesUsed = append(out.StrategiesUsed, m.Strategy)
		}
	}
	if len(accepted) > 0 {
		out.Confidence = total / float64(len(accepted))
	}
	if prev != nil {
		for _, low := range prev.LowConfidence {
			if !mapped[low.SourceField] {
				out.LowConfidence = append(out.LowConfidence, low)
				mapped[low.SourceField] = true
			}
		}
	}
	for _, c := range columns {
		if !mapped[c] {
			out.Unmapped = append(out.Unmapped, c)
		}
	}
	return out
}

// AnalyzeErrors proposes fixes for the current validation errors
func (s *Service) AnalyzeErrors(ctx context.Context, id string) (*RecoveryAnalysis, error) {
	session, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status != ingest.StatusPreviewing {
		return nil, shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Errors can only be analyzed while previewing, session is %s", session.Status))
	}
	ws, err := s.workspace(id)
	if err != nil {
		return nil, err
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()
	records := make(map[int]ingest.Record)
	for idx := range ws.Report.InvalidIndexes() {
		records[idx] = ws.Records[idx]
	}
	return s.recovery[session.EntityType].AnalyzeErrors(id, ws.Report.Errors, records), nil
}

// ApplyFixes applies fixes from a recovery session to the working records.
// With nil keys only auto-eligible fixes are applied.
func (s *Service) ApplyFixes(ctx context.Context, id, recoveryID string, keys []FixKey) (*ApplyResult, error) {
	if !strings.HasPrefix(recoveryID, id+":recovery:") {
		return nil, shared.NewDomainError("INVALID_INPUT", "Recovery session does not belong to this import")
	}
	session, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status != ingest.StatusPreviewing {
		return nil, shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Fixes can only be applied while previewing, session is %s", session.Status))
	}
	ws, err := s.workspace(id)
	if err != nil {
		return nil, err
	}

	result, err := s.recovery[session.EntityType].ApplyAutoFixes(recoveryID, keys)
	if err != nil {
		return nil, err
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()
	for idx, rec := range result.UpdatedRecords {
		if idx >= 0 && idx < len(ws.Records) {
			ws.Records[idx] = rec
		}
	}
	ws.Report = s.validators[session.EntityType].Validate(ws.Records)
	s.logger.Info("Fixes applied to session",
		zap.String("session_id", id),
		zap.Int("applied", result.AppliedFixes),
		zap.Int("invalid_records", ws.Report.InvalidCount),
	)
	return result, nil
}

// Process inserts the valid records synchronously. Invalid records are
// skipped and reported in the session error log.
func (s *Service) Process(ctx context.Context, id string) (*ingest.ImportSession, error) {
	if err := s.orchestrator.Reserve(id); err != nil {
		return nil, err
	}
	defer s.orchestrator.Release(id)
	return s.process(ctx, id)
}

// StartProcessing validates that the session can run and processes it in
// the background. Progress is reported through the progress sink.
func (s *Service) StartProcessing(ctx context.Context, id string) (*ingest.ImportSession, error) {
	session, err := s.prepare(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.orchestrator.Reserve(id); err != nil {
		return nil, err
	}
	bg := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.orchestrator.Release(id)
		if _, err := s.process(bg, id); err != nil {
			s.logger.Error("Background import failed", zap.String("session_id", id), zap.Error(err))
		}
	}()
	return session, nil
}

func (s *Service) prepare(ctx context.Context, id string) (*ingest.ImportSession, error) {
	session, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status == ingest.StatusProcessing {
		return nil, shared.ErrSessionBusy
	}
	if session.Status != ingest.StatusPreviewing {
		return nil, shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Only previewed sessions can be processed, session is %s", session.Status))
	}
	if len(session.Mappings) == 0 {
		return nil, shared.ErrNoMappings
	}
	return session, nil
}

func (s *Service) process(ctx context.Context, id string) (*ingest.ImportSession, error) {
	session, err := s.prepare(ctx, id)
	if err != nil {
		return nil, err
	}
	ws, err := s.workspace(id)
	if err != nil {
		return nil, err
	}

	ws.mu.Lock()
	report := s.validators[session.EntityType].Validate(ws.Records)
	ws.Report = report
	projection := withDerived(ws.Accepted, s.validators[session.EntityType].Schema())
	ws.mu.Unlock()

	invalid := report.InvalidIndexes()
	valid := make([]ingest.Record, 0, len(report.Records)-len(invalid))
	for i, rec := range report.Records {
		if !invalid[i] {
			valid = append(valid, rec)
		}
	}
	session.SkippedRecords = len(invalid)
	logged := 0
	for _, e := range report.Errors {
		if !e.IsError() {
			continue
		}
		if logged == maxLoggedRecordErrs {
			session.LogError(ingest.SessionError{
				Level:   ingest.ErrorLevelRecord,
				Message: fmt.Sprintf("%d more record errors not shown", countErrors(report.Errors)-logged),
			})
			break
		}
		idx := e.RecordIndex
		session.LogError(ingest.SessionError{Level: ingest.ErrorLevelRecord, RecordIndex: &idx, Field: e.Field, Message: e.Message})
		logged++
	}
	// A concurrent writer may have moved the session on since prepare
	current, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != ingest.StatusPreviewing {
		return nil, shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Only previewed sessions can be processed, session is %s", current.Status))
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	if err := s.orchestrator.ProcessBulkImport(ctx, id, valid, projection, session.EntityType); err != nil {
		if errors.Is(err, shared.ErrSessionBusy) {
			return nil, err
		}
		s.logger.Error("Import processing failed", zap.String("session_id", id), zap.Error(err))
	}
	return s.sessions.FindByID(context.WithoutCancel(ctx), id)
}

func countErrors(errs []ingest.ValidationError) int {
	n := 0
	for _, e := range errs {
		if e.IsError() {
			n++
		}
	}
	return n
}

// Cancel stops a running import between batches, or abandons a session
// that has not started processing
func (s *Service) Cancel(ctx context.Context, id string) (*ingest.ImportSession, error) {
	if s.orchestrator.Cancel(id) {
		return s.sessions.FindByID(ctx, id)
	}
	// Hold the session so an import cannot start while it is abandoned
	if err := s.orchestrator.Reserve(id); err != nil {
		if s.orchestrator.Cancel(id) {
			return s.sessions.FindByID(ctx, id)
		}
		return nil, err
	}
	defer s.orchestrator.Release(id)

	session, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.IsTerminal() || session.Status == ingest.StatusProcessing {
		return nil, shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Session in state %s cannot be cancelled", session.Status))
	}
	if err := session.Fail(ingest.ErrorLevelSession, "import cancelled by request"); err != nil {
		return nil, err
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	s.workspaces.Delete(id)
	if s.sink != nil {
		s.sink.Publish(ingest.NewProgressEvent(ingest.EventCancelled, id))
	}
	return session, nil
}
