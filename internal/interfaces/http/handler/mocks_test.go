package handler

import (
	"context"

	"github.com/stretchr/testify/mock"

	ingestapp "github.com/erp/ingest/internal/application/ingest"
	"github.com/erp/ingest/internal/domain/ingest"
)

type mockImportService struct {
	mock.Mock
}

func (m *mockImportService) EntityTypes() []string {
	return m.Called().Get(0).([]string)
}

func (m *mockImportService) Schema(entityType string) (*ingest.TargetSchema, bool) {
	args := m.Called(entityType)
	s, _ := args.Get(0).(*ingest.TargetSchema)
	return s, args.Bool(1)
}

func (m *mockImportService) Upload(ctx context.Context, req ingestapp.UploadRequest) (*ingestapp.UploadResult, error) {
	args := m.Called(ctx, req)
	r, _ := args.Get(0).(*ingestapp.UploadResult)
	return r, args.Error(1)
}

func (m *mockImportService) ListSessions(ctx context.Context, filter ingest.SessionFilter) ([]*ingest.ImportSession, error) {
	args := m.Called(ctx, filter)
	r, _ := args.Get(0).([]*ingest.ImportSession)
	return r, args.Error(1)
}

func (m *mockImportService) Session(ctx context.Context, id string) (*ingest.ImportSession, error) {
	args := m.Called(ctx, id)
	r, _ := args.Get(0).(*ingest.ImportSession)
	return r, args.Error(1)
}

func (m *mockImportService) Preview(ctx context.Context, id string, limit int) (*ingestapp.Preview, error) {
	args := m.Called(ctx, id, limit)
	r, _ := args.Get(0).(*ingestapp.Preview)
	return r, args.Error(1)
}

func (m *mockImportService) OverrideMappings(ctx context.Context, id string, overrides []ingestapp.MappingOverride) (*ingestapp.UploadResult, error) {
	args := m.Called(ctx, id, overrides)
	r, _ := args.Get(0).(*ingestapp.UploadResult)
	return r, args.Error(1)
}

func (m *mockImportService) AnalyzeErrors(ctx context.Context, id string) (*ingestapp.RecoveryAnalysis, error) {
	args := m.Called(ctx, id)
	r, _ := args.Get(0).(*ingestapp.RecoveryAnalysis)
	return r, args.Error(1)
}

func (m *mockImportService) ApplyFixes(ctx context.Context, id, recoveryID string, keys []ingestapp.FixKey) (*ingestapp.ApplyResult, error) {
	args := m.Called(ctx, id, recoveryID, keys)
	r, _ := args.Get(0).(*ingestapp.ApplyResult)
	return r, args.Error(1)
}

func (m *mockImportService) Process(ctx context.Context, id string) (*ingest.ImportSession, error) {
	args := m.Called(ctx, id)
	r, _ := args.Get(0).(*ingest.ImportSession)
	return r, args.Error(1)
}

func (m *mockImportService) StartProcessing(ctx context.Context, id string) (*ingest.ImportSession, error) {
	args := m.Called(ctx, id)
	r, _ := args.Get(0).(*ingest.ImportSession)
	return r, args.Error(1)
}

func (m *mockImportService) Cancel(ctx context.Context, id string) (*ingest.ImportSession, error) {
	args := m.Called(ctx, id)
	r, _ := args.Get(0).(*ingest.ImportSession)
	return r, args.Error(1)
}

var _ ImportService = (*mockImportService)(nil)
