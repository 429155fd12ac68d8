// Package waf recognizes bot-protection challenge pages, so a blocked call
// to the summarization gateway can be told apart from a service failure.
package waf

import (
	"bytes"
	"net/http"
	"strings"
)

// Reply is the part of an HTTP response the detectors inspect.
type Reply struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Detector returns the vendor that produced r, or "".
type Detector func(r *Reply) string

// DefaultDetectors covers the common CDN and bot-management vendors.
func DefaultDetectors() []Detector {
	return []Detector{
		cloudflare,
		akamai,
		dataDome,
		perimeterX,
	}
}

// Detect runs detectors in order and returns the first vendor found. Only
// 403, 429 and 503 replies are considered.
func Detect(r *Reply, detectors []Detector) string {
	if r == nil {
		return ""
	}
	switch r.StatusCode {
	case http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable:
	default:
		return ""
	}
	for _, d := range detectors {
		if vendor := d(r); vendor != "" {
			return vendor
		}
	}
	return ""
}

func server(r *Reply) string {
	return strings.ToLower(r.Header.Get("Server"))
}

func bodyHas(r *Reply, needles ...string) bool {
	for _, n := range needles {
		if bytes.Contains(r.Body, []byte(n)) {
			return true
		}
	}
	return false
}

func cloudflare(r *Reply) string {
	if strings.Contains(server(r), "cloudflare") || r.Header.Get("Cf-Mitigated") != "" {
		return "Cloudflare"
	}
	if bodyHas(r, "cf-browser-verification", "cf-turnstile", "Attention Required! | Cloudflare") {
		return "Cloudflare"
	}
	return ""
}

func akamai(r *Reply) string {
	if r.StatusCode != http.StatusForbidden {
		return ""
	}
	if strings.Contains(server(r), "akamai") {
		return "Akamai"
	}
	// Generic Akamai block page
	if bodyHas(r, "Reference #") && bodyHas(r, "Access Denied") {
		return "Akamai"
	}
	return ""
}

func dataDome(r *Reply) string {
	if strings.Contains(server(r), "datadome") || r.Header.Get("X-DataDome") != "" || r.Header.Get("X-DataDome-Response") != "" {
		return "DataDome"
	}
	if bodyHas(r, "geo.captcha-delivery.com") {
		return "DataDome"
	}
	return ""
}

func perimeterX(r *Reply) string {
	if r.Header.Get("X-Px-Captcha") != "" {
		return "PerimeterX"
	}
	if bodyHas(r, "client.perimeterx.net", "px-captcha", "_pxBlock") {
		return "PerimeterX"
	}
	return ""
}
