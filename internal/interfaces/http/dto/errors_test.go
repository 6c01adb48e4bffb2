package dto

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ingestapp "github.com/erp/ingest/internal/application/ingest"
)

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{ErrCodeUnknown, http.StatusInternalServerError},
		{ErrCodeInternal, http.StatusInternalServerError},
		{ErrCodeValidation, http.StatusBadRequest},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeSessionBusy, http.StatusConflict},
		{ErrCodeInvalidState, http.StatusUnprocessableEntity},
		{ErrCodeUnparseableFile, http.StatusUnprocessableEntity},
		{ErrCodeNoMappings, http.StatusUnprocessableEntity},
		{ErrCodeInvalidInput, http.StatusBadRequest},
		{ErrCodePayloadTooLarge, http.StatusRequestEntityTooLarge},
		{ErrCodeDependencyFailed, http.StatusBadGateway},
		{ErrCodeRateLimited, http.StatusTooManyRequests},
		// Unknown code should return 500
		{"UNKNOWN_CODE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetHTTPStatus(tt.code))
		})
	}
}

func TestNormalizeErrorCode(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"NOT_FOUND", ErrCodeNotFound},
		{"INVALID_INPUT", ErrCodeInvalidInput},
		{"INVALID_STATE", ErrCodeInvalidState},
		{"UNPARSEABLE_FILE", ErrCodeUnparseableFile},
		{"NO_MAPPINGS", ErrCodeNoMappings},
		{"SESSION_BUSY", ErrCodeSessionBusy},
		{"PAYLOAD_TOO_LARGE", ErrCodePayloadTooLarge},
		{"DEPENDENCY_FAILED", ErrCodeDependencyFailed},
		{ErrCodeNotFound, ErrCodeNotFound},
		{"CUSTOM_ERROR", "CUSTOM_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeErrorCode(tt.input))
		})
	}
}

func TestEveryDomainCodeHasStatus(t *testing.T) {
	for domainCode, apiCode := range DomainErrorCodeMapping {
		_, ok := ErrorCodeHTTPStatus[apiCode]
		assert.True(t, ok, "%s maps to %s without a status", domainCode, apiCode)
	}
}

func TestResponses(t *testing.T) {
	body, err := json.Marshal(NewErrorResponseWithRequestID(ErrCodeNotFound, "missing", "req-1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"error":{"code":"ERR_NOT_FOUND","message":"missing","request_id":"req-1"}}`, string(body))

	body, err = json.Marshal(NewListResponse([]string{"a"}, 1, 20))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"data":["a"],"meta":{"total":1,"limit":20}}`, string(body))

	resp := NewValidationErrorResponse("bad", "", []ValidationDetail{{Field: "limit", Message: "must be at most 500"}})
	assert.Equal(t, ErrCodeValidation, resp.Error.Code)
	assert.Len(t, resp.Error.Details, 1)
}

func TestApplyFixesRequest_Keys(t *testing.T) {
	assert.Nil(t, ApplyFixesRequest{}.Keys())

	zero, three := 0, 3
	req := ApplyFixesRequest{Fixes: []FixKeyRequest{{RecordIndex: &zero, Field: "price"}, {RecordIndex: &three, Field: "sku"}}}
	assert.Equal(t, []ingestapp.FixKey{{RecordIndex: 0, Field: "price"}, {RecordIndex: 3, Field: "sku"}}, req.Keys())
}

func TestListSessionsQuery_SessionFilter(t *testing.T) {
	f := ListSessionsQuery{Status: "completed", EntityType: "product", Limit: 5}.SessionFilter()
	assert.Equal(t, "completed", string(f.Status))
	assert.Equal(t, "product", f.EntityType)
	assert.Equal(t, 5, f.Limit)
}
