package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/FranksOps/tubebrief/internal/acquire"
	"github.com/FranksOps/tubebrief/internal/metrics"
	"github.com/FranksOps/tubebrief/pkg/proxy"
	"google.golang.org/genai"
)

// DefaultGeminiModel is used when Config.Model is empty.
const DefaultGeminiModel = "gemini-2.0-flash"

const geminiInstruction = `You receive a JSON array of YouTube videos returned for a search keyword.
Summarize what the results say about the topic. Reply with a single JSON object:
{"summary": string, "highlights": [{"title": string, "url": string, "why": string}], "themes": [string]}`

// GeminiClient summarizes records with a Gemini model through the genai SDK.
type GeminiClient struct {
	client  *genai.Client
	model   string
	proxies *proxy.Pool
	logger  *slog.Logger
}

var _ Summarizer = (*GeminiClient)(nil)

// NewGeminiClient creates a Gemini API client bound to cfg.APIKey.
func NewGeminiClient(ctx context.Context, cfg Config, logger *slog.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("summarize: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if logger == nil {
		logger = slog.Default()
	}

	hc, err := newHTTPClient(cfg)
	if err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  hc.Client,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("summarize: create genai client: %w", err)
	}

	return &GeminiClient{client: client, model: cfg.Model, proxies: cfg.Proxies, logger: logger}, nil
}

// Summarize makes one GenerateContent call and requires a JSON reply.
func (g *GeminiClient) Summarize(ctx context.Context, records acquire.RecordSet) (Result, error) {
	payload, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("%w: encode records: %w", ErrSummarizationFailed, err)
	}

	ctx, via, err := route(ctx, g.proxies)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		genai.Text(string(payload)),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(geminiInstruction, genai.RoleUser),
			ResponseMIMEType:  "application/json",
		},
	)
	reportRoute(ctx, g.proxies, via, err)
	if err != nil {
		metrics.SummarizerResponses.WithLabelValues(ProviderGemini, "error").Inc()
		return nil, fmt.Errorf("%w: gemini: %w", ErrSummarizationFailed, err)
	}
	metrics.SummarizerResponses.WithLabelValues(ProviderGemini, "2xx").Inc()

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, fmt.Errorf("%w: gemini returned no content", ErrSummarizationFailed)
	}

	var raw json.RawMessage
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("%w: gemini reply is not valid JSON: %w", ErrSummarizationFailed, err)
	}

	g.logger.Debug("gemini responded", "model", g.model, "bytes", len(text))
	return Result(raw), nil
}
