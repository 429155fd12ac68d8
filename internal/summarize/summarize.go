// Package summarize sends acquired records to the remote AI service.
package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/FranksOps/tubebrief/internal/acquire"
	"github.com/FranksOps/tubebrief/internal/fingerprint"
	"github.com/FranksOps/tubebrief/pkg/httpclient"
	"github.com/FranksOps/tubebrief/pkg/proxy"
	"github.com/FranksOps/tubebrief/pkg/useragent"
)

// ErrSummarizationFailed matches every failed summarization attempt.
var ErrSummarizationFailed = errors.New("summarization failed")

const (
	ProviderEndpoint = "endpoint"
	ProviderGemini   = "gemini"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 16 << 20

// Summarizer turns a record set into the service's JSON reply.
type Summarizer interface {
	Summarize(ctx context.Context, records acquire.RecordSet) (Result, error)
}

// Result is the remote service's JSON body, passed through untouched.
type Result json.RawMessage

// MarshalJSON emits the result unchanged.
func (r Result) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

// StatusError reports a non-2xx reply.
type StatusError struct {
	StatusCode int
	Body       string // trimmed excerpt
	// BlockedBy names the bot-protection vendor when the reply was a
	// challenge page rather than the service's own error.
	BlockedBy string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("summarizer returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	if e.BlockedBy != "" {
		return msg + " (blocked by " + e.BlockedBy + ")"
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *StatusError) Is(target error) bool { return target == ErrSummarizationFailed }

// Config selects and configures the provider.
type Config struct {
	Provider  string
	Endpoint  string
	APIKey    string
	ProjectID string
	Region    string
	// Model and BaseURL apply to the gemini provider only.
	Model   string
	BaseURL string
	Timeout time.Duration
	// TLSProfile picks the ClientHello presented to the service. Browser
	// profiles also send a matching browser User-Agent.
	TLSProfile fingerprint.Profile
	// Proxies, when non-empty, routes each call through the next healthy
	// proxy. Requires the go TLS profile.
	Proxies *proxy.Pool
}

// New builds the configured Summarizer.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Summarizer, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderEndpoint:
		return NewHTTPClient(cfg, logger)
	case ProviderGemini:
		return NewGeminiClient(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("summarize: unknown provider %q", cfg.Provider)
	}
}

func newHTTPClient(cfg Config) (*httpclient.Client, error) {
	opts := fingerprint.Options{Profile: cfg.TLSProfile}
	if cfg.Proxies.Len() > 0 {
		opts.Proxy = proxy.FromRequest
	}
	transport, err := fingerprint.Transport(opts)
	if err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}

	hcfg := httpclient.Config{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}
	if cfg.TLSProfile != "" && cfg.TLSProfile != fingerprint.ProfileGo {
		hcfg.UserAgents = useragent.NewPool(useragent.ForFamily(string(cfg.TLSProfile)))
	}
	return httpclient.New(hcfg)
}

// route picks the proxy for one call. The returned URL is nil when no pool
// is configured.
func route(ctx context.Context, pool *proxy.Pool) (context.Context, *url.URL, error) {
	if pool.Len() == 0 {
		return ctx, nil, nil
	}
	u, err := pool.Next()
	if err != nil {
		return ctx, nil, fmt.Errorf("%w: %w", ErrSummarizationFailed, err)
	}
	return proxy.WithURL(ctx, u), u, nil
}

// reportRoute feeds connection-level failures back into the proxy pool.
// HTTP status errors say nothing about the proxy's health, and neither does
// the caller giving up: those calls are not reported at all.
func reportRoute(ctx context.Context, pool *proxy.Pool, u *url.URL, err error) {
	if u == nil {
		return
	}
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return
	}
	var netErr net.Error
	if err != nil && !errors.As(err, &netErr) {
		err = nil
	}
	_ = pool.Report(u, err)
}

func excerpt(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
