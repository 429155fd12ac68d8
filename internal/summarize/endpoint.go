package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/FranksOps/tubebrief/internal/acquire"
	"github.com/FranksOps/tubebrief/internal/metrics"
	"github.com/FranksOps/tubebrief/internal/waf"
	"github.com/FranksOps/tubebrief/pkg/httpclient"
	"github.com/FranksOps/tubebrief/pkg/proxy"
)

// HTTPClient posts records and the credential to a fixed endpoint.
type HTTPClient struct {
	endpoint  string
	apiKey    string
	projectID string
	region    string
	client    *httpclient.Client
	proxies   *proxy.Pool
	detectors []waf.Detector
	logger    *slog.Logger
}

var _ Summarizer = (*HTTPClient)(nil)

type endpointRequest struct {
	Data      acquire.RecordSet `json:"data"`
	APIKey    string            `json:"apiKey"`
	ProjectID string            `json:"projectId,omitempty"`
	Region    string            `json:"region,omitempty"`
}

// NewHTTPClient validates the endpoint and credential up front; a missing key
// is a configuration error, never a per-call one.
func NewHTTPClient(cfg Config, logger *slog.Logger) (*HTTPClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("summarize: api key is required")
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("summarize: invalid endpoint %q", cfg.Endpoint)
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := newHTTPClient(cfg)
	if err != nil {
		return nil, err
	}

	return &HTTPClient{
		endpoint:  u.String(),
		apiKey:    cfg.APIKey,
		projectID: cfg.ProjectID,
		region:    cfg.Region,
		client:    client,
		proxies:   cfg.Proxies,
		detectors: waf.DefaultDetectors(),
		logger:    logger,
	}, nil
}

// Summarize issues exactly one POST. Transport errors, non-2xx replies and
// non-JSON bodies all match ErrSummarizationFailed.
func (c *HTTPClient) Summarize(ctx context.Context, records acquire.RecordSet) (Result, error) {
	ctx, via, err := route(ctx, c.proxies)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.PostJSON(ctx, c.endpoint, endpointRequest{
		Data:      records,
		APIKey:    c.apiKey,
		ProjectID: c.projectID,
		Region:    c.region,
	})
	reportRoute(ctx, c.proxies, via, err)
	if err != nil {
		metrics.SummarizerResponses.WithLabelValues(ProviderEndpoint, "error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrSummarizationFailed, err)
	}
	defer resp.Body.Close()

	metrics.SummarizerResponses.WithLabelValues(ProviderEndpoint, strconv.Itoa(resp.StatusCode/100)+"xx").Inc()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrSummarizationFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		blockedBy := waf.Detect(&waf.Reply{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, c.detectors)
		if blockedBy != "" {
			attrs := []any{"status", resp.StatusCode, "vendor", blockedBy}
			if via != nil {
				attrs = append(attrs, "proxy", via.Redacted())
			}
			c.logger.Warn("summarizer request was challenged", attrs...)
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: excerpt(body, 512), BlockedBy: blockedBy}
	}

	var raw json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: response is not valid JSON: %w", ErrSummarizationFailed, err)
	}

	c.logger.Debug("summarizer responded", "status", resp.StatusCode, "bytes", len(body))
	return Result(raw), nil
}
