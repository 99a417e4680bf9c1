package external

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"listwright/internal/types"
)

func sampleListingRequest() types.ListingRequest {
	return types.ListingRequest{
		PropertyType: "single_family",
		Address:      "12 Elm Street",
		Price:        450000,
		Bedrooms:     3,
		Bathrooms:    2,
		Sqft:         1850,
		Features:     "renovated kitchen, fenced yard",
	}
}

func TestGenerateListing_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "sk-test" {
			t.Errorf("api key header = %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got == "" {
			t.Error("anthropic-version header missing")
		}

		var req anthropicMessagesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Model != "claude-sonnet-4-20250514" {
			t.Errorf("model = %q", req.Model)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Fatalf("unexpected messages %+v", req.Messages)
		}

		json.NewEncoder(w).Encode(anthropicMessagesResponse{
			Model: req.Model,
			Content: []anthropicContentBlock{
				{Type: "text", Text: "Welcome home to 12 Elm Street."},
			},
		})
	}))
	defer srv.Close()

	client := NewAnthropicClient(srv.Client(), AnthropicClientConfig{
		APIKey:  "sk-test",
		Model:   "claude-sonnet-4-20250514",
		BaseURL: srv.URL,
	})

	listing, err := client.GenerateListing(context.Background(), sampleListingRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if listing.Text != "Welcome home to 12 Elm Street." {
		t.Errorf("text = %q", listing.Text)
	}
	if listing.WordCount != 6 {
		t.Errorf("word count = %d, want 6", listing.WordCount)
	}
	if listing.Model != "claude-sonnet-4-20250514" {
		t.Errorf("model = %q", listing.Model)
	}
	if listing.GeneratedAt.IsZero() {
		t.Error("generated_at must be stamped")
	}
}

func TestGenerateListing_PromptCarriesOptionalFields(t *testing.T) {
	var prompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req anthropicMessagesRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) == 1 {
			prompt = req.Messages[0].Content
		}
		json.NewEncoder(w).Encode(anthropicMessagesResponse{
			Content: []anthropicContentBlock{{Type: "text", Text: "ok"}},
		})
	}))
	defer srv.Close()

	client := NewAnthropicClient(srv.Client(), AnthropicClientConfig{
		APIKey:  "sk-test",
		Model:   "claude-sonnet-4-20250514",
		BaseURL: srv.URL,
	})

	req := sampleListingRequest()
	req.Neighborhood = "Maplewood"
	req.YearBuilt = 1998
	if _, err := client.GenerateListing(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{"12 Elm Street", "Maplewood", "1998", "renovated kitchen"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestGenerateListing_Non200MapsToGenerationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad model"}}`))
	}))
	defer srv.Close()

	client := NewAnthropicClient(srv.Client(), AnthropicClientConfig{
		APIKey:  "sk-test",
		Model:   "not-a-model",
		BaseURL: srv.URL,
	})

	_, err := client.GenerateListing(context.Background(), sampleListingRequest())
	if err == nil {
		t.Fatal("expected error")
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeUpstreamGeneration {
		t.Errorf("code = %q, want %q", appErr.Code, types.ErrCodeUpstreamGeneration)
	}
}

func TestGenerateListing_EmptyContentRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(anthropicMessagesResponse{Content: nil})
	}))
	defer srv.Close()

	client := NewAnthropicClient(srv.Client(), AnthropicClientConfig{
		APIKey:  "sk-test",
		Model:   "claude-sonnet-4-20250514",
		BaseURL: srv.URL,
	})

	_, err := client.GenerateListing(context.Background(), sampleListingRequest())
	if err == nil {
		t.Fatal("an empty content array must not produce a listing")
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeUpstreamGeneration {
		t.Errorf("expected %q, got %v", types.ErrCodeUpstreamGeneration, err)
	}
}

func TestGenerateListing_HonorsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Stall past the client deadline, but return once the client hangs
		// up so the server can shut down cleanly.
		select {
		case <-r.Context().Done():
		case <-time.After(500 * time.Millisecond):
		}
	}))
	defer srv.Close()

	client := NewAnthropicClient(srv.Client(), AnthropicClientConfig{
		APIKey:  "sk-test",
		Model:   "claude-sonnet-4-20250514",
		BaseURL: srv.URL,
		Timeout: 50 * time.Millisecond,
	})

	start := time.Now()
	_, err := client.GenerateListing(context.Background(), sampleListingRequest())
	if err == nil {
		t.Fatal("expected a deadline error")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("call took %v, deadline was not honored", elapsed)
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeUpstreamGeneration {
		t.Errorf("expected %q, got %v", types.ErrCodeUpstreamGeneration, err)
	}
}
