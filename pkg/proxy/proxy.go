// Package proxy rotates outbound requests across a set of egress proxies
// and sidelines proxies that keep failing.
package proxy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNoHealthyProxy is returned by Next when every proxy is cooling down.
	ErrNoHealthyProxy = errors.New("proxy: no healthy proxy available")
	// ErrUnknownProxy is returned by Report for a URL the pool never handed out.
	ErrUnknownProxy = errors.New("proxy: not in pool")
)

type endpoint struct {
	url           *url.URL
	failures      int
	successes     int
	disabledUntil time.Time
}

// Config defines settings for the Pool.
type Config struct {
	// MaxFailures consecutive-ish failures sideline a proxy. Default 3.
	MaxFailures int
	// Cooldown is how long a sidelined proxy is skipped. Default 5m.
	Cooldown time.Duration
}

// Pool hands out proxies round-robin. It is safe for concurrent use.
type Pool struct {
	mu          sync.Mutex
	endpoints   []*endpoint
	next        int
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time
}

// NewPool creates an empty pool.
func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Pool{
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		now:         time.Now,
	}
}

// Add parses raw proxy URLs. A missing scheme means http.
func (p *Pool) Add(rawURLs ...string) error {
	parsed := make([]*endpoint, 0, len(rawURLs))
	for _, raw := range rawURLs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("proxy: parse %q: %w", raw, err)
		}
		switch u.Scheme {
		case "http", "https", "socks5":
		default:
			return fmt.Errorf("proxy: unsupported scheme %q", u.Scheme)
		}
		if u.Host == "" {
			return fmt.Errorf("proxy: missing host in %q", raw)
		}
		parsed = append(parsed, &endpoint{url: u})
	}

	p.mu.Lock()
	p.endpoints = append(p.endpoints, parsed...)
	p.mu.Unlock()
	return nil
}

// LoadFile adds one proxy URL per line. Blank lines and lines starting with
// '#' are ignored.
func (p *Pool) LoadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("proxy: %w", err)
	}
	defer file.Close()

	var urls []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("proxy: read %s: %w", path, err)
	}

	return p.Add(urls...)
}

// Len is the number of configured proxies, healthy or not.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}

// Next returns the next proxy that is not cooling down.
func (p *Pool) Next() (*url.URL, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for range p.endpoints {
		ep := p.endpoints[p.next]
		p.next = (p.next + 1) % len(p.endpoints)

		if now.Before(ep.disabledUntil) {
			continue
		}
		if !ep.disabledUntil.IsZero() {
			// Back from cooldown with a clean slate.
			ep.disabledUntil = time.Time{}
			ep.failures = 0
		}
		return ep.url, nil
	}
	return nil, ErrNoHealthyProxy
}

// Report records the outcome of a request sent through u. A nil err counts
// as a success and forgives one earlier failure.
func (p *Pool) Report(u *url.URL, err error) error {
	if u == nil {
		return errors.New("proxy: nil URL")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	target := u.String()
	for _, ep := range p.endpoints {
		if ep.url.String() != target {
			continue
		}
		if err == nil {
			ep.successes++
			if ep.failures > 0 {
				ep.failures--
			}
			return nil
		}
		ep.failures++
		if ep.failures >= p.maxFailures {
			ep.disabledUntil = p.now().Add(p.cooldown)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownProxy, target)
}

type contextKey struct{}

// WithURL routes requests made with ctx through u.
func WithURL(ctx context.Context, u *url.URL) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

// FromRequest is an http.Transport Proxy func that honours WithURL and
// connects directly otherwise.
func FromRequest(req *http.Request) (*url.URL, error) {
	if u, ok := req.Context().Value(contextKey{}).(*url.URL); ok {
		return u, nil
	}
	return nil, nil
}
