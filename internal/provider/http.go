package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPConfig configures the HTTP provider. All values are injected; nothing
// is read from the environment here.
type HTTPConfig struct {
	Endpoint string
	APIKey   string
	Models   ModelCatalog
	Timeout  time.Duration // Per-request timeout (default 120s)
}

// HTTPProvider speaks a minimal JSON POST protocol with a hosted generation
// endpoint. It maps tier hints to concrete model names via the injected
// catalog.
type HTTPProvider struct {
	cfg    HTTPConfig
	client *http.Client
}

// NewHTTPProvider creates an HTTP provider. httpClient may be nil.
func NewHTTPProvider(cfg HTTPConfig, httpClient *http.Client) *HTTPProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPProvider{cfg: cfg, client: httpClient}
}

type generateRequest struct {
	Model  string `json:"model"`
	System string `json:"system,omitempty"`
	Prompt string `json:"prompt"`
	JSON   bool   `json:"json,omitempty"`
}

type generateResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// Generate implements Provider.
func (p *HTTPProvider) Generate(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(generateRequest{
		Model:  p.cfg.Models.Resolve(req.Tier),
		System: req.System,
		Prompt: req.Prompt,
		JSON:   req.Schema != nil,
	})
	if err != nil {
		return Response{}, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		return Response{}, &ProviderError{Message: "request failed", Err: err}
	}
	defer httpResp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(httpResp.Body, 32<<20))
	if err != nil {
		return Response{}, &ProviderError{StatusCode: httpResp.StatusCode, Message: "reading response", Err: err}
	}

	if httpResp.StatusCode == http.StatusTooManyRequests {
		return Response{}, &RateLimitedError{StatusCode: httpResp.StatusCode, Message: string(payload)}
	}
	if httpResp.StatusCode != http.StatusOK {
		return Response{}, &ProviderError{StatusCode: httpResp.StatusCode, Message: string(payload)}
	}

	var decoded generateResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return Response{}, &ProviderError{StatusCode: httpResp.StatusCode, Message: "malformed response envelope", Err: err}
	}
	if decoded.Error != "" {
		if IsRateLimited(fmt.Errorf("%s", decoded.Error)) {
			return Response{}, &RateLimitedError{Message: decoded.Error}
		}
		return Response{}, &ProviderError{Message: decoded.Error}
	}

	return Response{Text: decoded.Text}, nil
}
