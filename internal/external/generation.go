package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"listwright/internal/types"
)

// anthropicAPIBase is the default Anthropic API base URL.
// Overridable in tests via AnthropicClientConfig.BaseURL.
const anthropicAPIBase = "https://api.anthropic.com"

// anthropicVersion is the API version header value required on every request.
const anthropicVersion = "2023-06-01"

// maxGenerationTokens caps the model output; listings run 150-280 words, so
// 1024 tokens leaves comfortable headroom.
const maxGenerationTokens = 1024

// AnthropicClientConfig holds the configuration for creating an AnthropicClient.
type AnthropicClientConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
	BaseURL string // Override for testing; defaults to anthropicAPIBase
	Logger  *slog.Logger
}

// AnthropicClient implements GenerationService against the Anthropic Messages
// API. The collaborator is treated as opaque: a structured property record
// goes in, prose comes out. Every call carries an explicit deadline; a
// timeout is indistinguishable from any other collaborator failure to the
// gate, so no credit is ever consumed for one.
type AnthropicClient struct {
	base    *BaseClient
	apiKey  string
	model   string
	timeout time.Duration
	baseURL string
	logger  *slog.Logger
}

// Compile-time assertion that AnthropicClient satisfies GenerationService.
var _ GenerationService = (*AnthropicClient)(nil)

// NewAnthropicClient creates a new AnthropicClient.
func NewAnthropicClient(httpClient *http.Client, cfg AnthropicClientConfig) *AnthropicClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = anthropicAPIBase
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(
		httpClient,
		"anthropic",
		// Generation calls are expensive; retry once rather than the default
		// twice so a struggling upstream doesn't triple user-facing latency.
		RetryPolicy{MaxRetries: 1, MinWait: time.Second, MaxWait: 5 * time.Second},
		"Listwright/1.0",
	)

	return &AnthropicClient{
		base:    base,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		timeout: timeout,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// GenerateListing sends the property record to the Messages API and returns
// the generated description.
func (c *AnthropicClient) GenerateListing(ctx context.Context, req types.ListingRequest) (*types.Listing, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body := anthropicMessagesRequest{
		Model:     c.model,
		MaxTokens: maxGenerationTokens,
		Messages: []anthropicMessage{
			{Role: "user", Content: buildPrompt(req)},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode generation request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build generation request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.base.Do(httpReq)
	if err != nil {
		return nil, c.wrapGenerationError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.WarnContext(ctx, "generation upstream returned non-200",
			"status", resp.StatusCode,
			"body", string(raw),
		)
		return nil, types.NewAppError(
			types.ErrCodeUpstreamGeneration,
			fmt.Sprintf("generation upstream returned %d", resp.StatusCode),
			nil,
		)
	}

	var decoded anthropicMessagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamGeneration, "failed to decode generation response", err)
	}
	if len(decoded.Content) == 0 || decoded.Content[0].Text == "" {
		return nil, types.NewAppError(types.ErrCodeUpstreamGeneration, "generation response contained no text", nil)
	}

	text := decoded.Content[0].Text
	return &types.Listing{
		Text:        text,
		WordCount:   len(strings.Fields(text)),
		Model:       decoded.Model,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// wrapGenerationError folds transport-level failures (including context
// deadline exceeded) into the generation error code the gate keys on.
func (c *AnthropicClient) wrapGenerationError(err error) error {
	return types.NewAppError(types.ErrCodeUpstreamGeneration, "generation request failed", err)
}

// buildPrompt renders the property record into the instruction sent to the
// model. The exact wording carries no contract; the structured fields do.
func buildPrompt(req types.ListingRequest) string {
	var b strings.Builder
	b.WriteString("You are an expert real estate copywriter. Write a compelling, professional MLS listing description for the following property. Keep it between 150 and 280 words, lead with an attention-grabbing opening, focus on lifestyle benefits, and end with a call to action.\n\nProperty details:\n")

	fmt.Fprintf(&b, "- Type: %s\n", req.PropertyType)
	fmt.Fprintf(&b, "- Address: %s\n", req.Address)
	fmt.Fprintf(&b, "- Price: $%d\n", req.Price)
	fmt.Fprintf(&b, "- Bedrooms: %d\n", req.Bedrooms)
	fmt.Fprintf(&b, "- Bathrooms: %d\n", req.Bathrooms)
	fmt.Fprintf(&b, "- Square footage: %d sq ft\n", req.Sqft)
	if req.YearBuilt != 0 {
		fmt.Fprintf(&b, "- Year built: %d\n", req.YearBuilt)
	}
	if req.LotSize != "" {
		fmt.Fprintf(&b, "- Lot size: %s\n", req.LotSize)
	}
	if req.Features != "" {
		fmt.Fprintf(&b, "- Key features: %s\n", req.Features)
	}
	if req.Neighborhood != "" {
		fmt.Fprintf(&b, "- Neighborhood: %s\n", req.Neighborhood)
	}
	if req.SchoolDistrict != "" {
		fmt.Fprintf(&b, "- School district: %s\n", req.SchoolDistrict)
	}

	return b.String()
}

// ---------------------------------------------------------------------------
// Anthropic wire types
// ---------------------------------------------------------------------------

type anthropicMessagesRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicMessagesResponse struct {
	Model   string                  `json:"model"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
