// Package llm implements ingest.MappingOracle on top of an OpenAI-compatible
// chat completions API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/erp/ingest/internal/domain/ingest"
)

// Oracle errors
var (
	ErrOracleUnavailable   = errors.New("llm: oracle unavailable")
	ErrOracleRequestFailed = errors.New("llm: oracle request failed")
	ErrOracleBadResponse   = errors.New("llm: malformed oracle response")
)

const (
	maxResponseSize  = 2 * 1024 * 1024
	defaultMaxTokens = 1024
	completionsPath  = "/chat/completions"
)

const systemPrompt = `You map spreadsheet columns onto the fields of a product catalog.
Answer with a JSON object {"mappings":[{"sourceField":"","targetField":"","confidence":0,"reasoning":""}]}.
Use only the given source and target names. Confidence is 0-100. Omit columns you cannot place.`

// Oracle calls the chat completions endpoint
type Oracle struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	validate   *validator.Validate
	logger     *zap.Logger
}

// OracleOption configures an Oracle
type OracleOption func(*Oracle)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(c *http.Client) OracleOption {
	return func(o *Oracle) { o.httpClient = c }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) OracleOption {
	return func(o *Oracle) { o.logger = l }
}

// NewOracle creates an Oracle
func NewOracle(cfg Config, opts ...OracleOption) (*Oracle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}
	o := &Oracle{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		validate:   validator.New(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// SuggestMappings implements ingest.MappingOracle
func (o *Oracle) SuggestMappings(ctx context.Context, req ingest.OracleRequest) (*ingest.OracleResponse, error) {
	if len(req.SourceFields) == 0 {
		return &ingest.OracleResponse{}, nil
	}
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}

	prompt, err := buildPrompt(req)
	if err != nil {
		return nil, err
	}
	body := chatRequest{
		Model: o.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:      o.maxTokens(req.MaxCostUSD),
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	started := time.Now()
	resp, err := o.call(ctx, body)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrOracleBadResponse)
	}

	var env suggestionEnvelope
	content := stripFence(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOracleBadResponse, err)
	}

	out := &ingest.OracleResponse{
		TokensUsed: resp.Usage.TotalTokens,
		CostUSD:    float64(resp.Usage.TotalTokens) / 1000 * o.config.PricePer1KTokens,
	}
	for _, s := range env.Mappings {
		if err := o.validate.Struct(s); err != nil {
			o.logger.Debug("Dropping invalid oracle suggestion", zap.String("source", s.SourceField), zap.Error(err))
			continue
		}
		out.Mappings = append(out.Mappings, ingest.OracleSuggestion{
			SourceField: s.SourceField,
			TargetField: s.TargetField,
			Confidence:  s.Confidence,
			Reasoning:   s.Reasoning,
		})
	}
	o.logger.Info("Oracle suggested mappings",
		zap.Int("fields", len(req.SourceFields)),
		zap.Int("suggestions", len(out.Mappings)),
		zap.Int("tokens", out.TokensUsed),
		zap.Float64("cost_usd", out.CostUSD),
		zap.Duration("elapsed", time.Since(started)),
	)
	return out, nil
}

// maxTokens caps the completion so its cost stays under the budget
func (o *Oracle) maxTokens(budgetUSD float64) int {
	if budgetUSD <= 0 || o.config.PricePer1KTokens <= 0 {
		return defaultMaxTokens
	}
	n := int(budgetUSD / o.config.PricePer1KTokens * 1000)
	if n < 1 {
		n = 1
	}
	if n > defaultMaxTokens {
		n = defaultMaxTokens
	}
	return n
}

func (o *Oracle) call(ctx context.Context, body chatRequest) (*chatResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("llm: failed to marshal request: %w", err)
	}
	url := strings.TrimRight(o.config.BaseURL, "/") + completionsPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("llm: failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.config.APIKey)

	httpResp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("llm: failed to read response: %w", err)
	}

	switch {
	case httpResp.StatusCode == http.StatusTooManyRequests || httpResp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: HTTP %d", ErrOracleUnavailable, httpResp.StatusCode)
	case httpResp.StatusCode >= 400:
		var apiErr apiError
		_ = json.Unmarshal(data, &apiErr)
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrOracleRequestFailed, httpResp.StatusCode, apiErr.Error.Message)
	}

	var resp chatResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOracleBadResponse, err)
	}
	return &resp, nil
}

func buildPrompt(req ingest.OracleRequest) (string, error) {
	doc := map[string]any{
		"sourceFields": req.SourceFields,
		"targetFields": req.TargetFields,
		"sampleRows":   req.SampleRows,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("llm: failed to marshal prompt: %w", err)
	}
	return string(data), nil
}

// stripFence removes a markdown code fence some models wrap JSON in
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

var _ ingest.MappingOracle = (*Oracle)(nil)
