package anthropic

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

	"github.com/google/uuid"

	"github.com/funddocs/funds-tracker/internal/common"
	"github.com/funddocs/funds-tracker/internal/inference"
)

const apiVersion = "2023-06-01"

// Provider implements inference.Generator against the Anthropic messages API.
type Provider struct {
	cfg    common.InferenceConfig
	client *http.Client
	log    *slog.Logger
}

func NewProvider(cfg common.InferenceConfig, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		log:    logger,
	}
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) Generate(ctx context.Context, systemPrompt string, messages []inference.Message, cfg inference.SamplingConfig) (string, error) {
	rid := uuid.New().String()
	start := time.Now()

	msgs := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, map[string]any{"role": m.Role, "content": m.Content})
	}

	body := map[string]any{
		"model":       p.cfg.Model,
		"max_tokens":  cfg.MaxOutputTokens,
		"temperature": cfg.Temperature,
		"top_p":       cfg.TopP,
		"messages":    msgs,
	}
	if systemPrompt != "" {
		body["system"] = systemPrompt
	}

	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/v1/messages"
	raw, err := p.post(ctx, endpoint, body, rid)
	if err != nil {
		p.log.Error("inference.generate.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", err
	}

	var resp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode anthropic response: %w", err)
	}

	// First text segment only; tool-use or thinking blocks are skipped.
	for _, c := range resp.Content {
		if c.Type == "text" {
			p.log.Info("inference.generate.ok",
				"req_id", rid,
				"model", p.cfg.Model,
				"output_bytes", len(c.Text),
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return c.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in anthropic response")
}

// post sends a JSON request and returns the raw response body, logging
// request/response metadata the same way for every call.
func (p *Provider) post(ctx context.Context, url string, body any, rid string) ([]byte, error) {
	bs, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.cfg.APIKey)
	req.Header.Set("anthropic-version", apiVersion)

	p.log.Info("inference.http.request",
		"req_id", rid,
		"url", url,
		"content_length", len(bs),
	)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			p.log.Warn("inference.http.response_body_close_error", "req_id", rid, "error", err)
		}
	}()

	raw, _ := io.ReadAll(resp.Body)

	p.log.Info("inference.http.response",
		"req_id", rid,
		"status", resp.StatusCode,
		"bytes", len(raw),
	)

	if resp.StatusCode/100 != 2 {
		return raw, fmt.Errorf("non-2xx status: %d", resp.StatusCode)
	}
	return raw, nil
}

var _ inference.Generator = (*Provider)(nil)
