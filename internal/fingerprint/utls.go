// Package fingerprint builds the outbound transport used to reach the
// summarization endpoint, optionally presenting a browser TLS ClientHello.
package fingerprint

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	utls "github.com/refraction-networking/utls"
)

// Profile represents a recognized TLS fingerprint profile.
type Profile string

const (
	ProfileChrome  Profile = "chrome"
	ProfileFirefox Profile = "firefox"
	ProfileSafari  Profile = "safari"
	ProfileGo      Profile = "go"     // standard go TLS
	ProfileRandom  Profile = "random" // randomized uTLS profile
)

// Options tune the transport.
type Options struct {
	Profile Profile
	// RootCAs overrides the system pool, e.g. for a private summarization gateway.
	RootCAs *x509.CertPool
	// Proxy overrides the environment proxy. Only ProfileGo supports it:
	// after a CONNECT the transport would finish TLS with crypto/tls and
	// silently drop the profile.
	Proxy func(*http.Request) (*url.URL, error)
}

// ParseProfile maps a configuration string onto a Profile. Empty means ProfileGo.
func ParseProfile(s string) (Profile, error) {
	p := Profile(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return ProfileGo, nil
	}
	if _, err := helloFor(p); err != nil && p != ProfileGo {
		return "", err
	}
	return p, nil
}

func helloFor(p Profile) (utls.ClientHelloID, error) {
	switch p {
	case ProfileChrome:
		return utls.HelloChrome_Auto, nil
	case ProfileFirefox:
		return utls.HelloFirefox_Auto, nil
	case ProfileSafari:
		return utls.HelloIOS_Auto, nil
	case ProfileRandom:
		return utls.HelloRandomizedALPN, nil
	default:
		return utls.ClientHelloID{}, fmt.Errorf("fingerprint: unknown profile %q", p)
	}
}

// Transport returns an http.RoundTripper configured with the requested TLS
// profile. ProfileGo (or an empty profile) yields a plain cloned
// http.Transport; any other profile performs the handshake with utls.UClient.
func Transport(opts Options) (http.RoundTripper, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if opts.Proxy != nil {
		transport.Proxy = opts.Proxy
	}

	if opts.Profile == "" || opts.Profile == ProfileGo {
		if opts.RootCAs != nil {
			transport.TLSClientConfig = &tls.Config{RootCAs: opts.RootCAs}
		}
		return transport, nil
	}

	clientHelloID, err := helloFor(opts.Profile)
	if err != nil {
		return nil, err
	}
	if opts.Proxy != nil {
		return nil, fmt.Errorf("fingerprint: profile %q cannot be used with a proxy", opts.Profile)
	}

	// uTLS connections are not *tls.Conn, so the transport only speaks
	// HTTP/1.1 over them. The ClientHello must not offer h2 either.
	transport.ForceAttemptHTTP2 = false

	dial := transport.DialContext
	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		tcpConn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}

		spec, err := http1Spec(clientHelloID)
		if err != nil {
			_ = tcpConn.Close()
			return nil, err
		}
		uConn := utls.UClient(tcpConn, &utls.Config{
			ServerName: host,
			RootCAs:    opts.RootCAs,
		}, utls.HelloCustom)
		if err := uConn.ApplyPreset(&spec); err != nil {
			_ = tcpConn.Close()
			return nil, fmt.Errorf("fingerprint: apply %s: %w", opts.Profile, err)
		}
		if err := uConn.HandshakeContext(ctx); err != nil {
			_ = tcpConn.Close()
			return nil, fmt.Errorf("fingerprint: utls handshake failed: %w", err)
		}

		return uConn, nil
	}

	return transport, nil
}

// http1Spec expands id into a ClientHelloSpec whose ALPN offers only
// http/1.1. Specs hold per-connection extension state, so build one per dial.
func http1Spec(id utls.ClientHelloID) (utls.ClientHelloSpec, error) {
	spec, err := utls.UTLSIdToSpec(id)
	if err != nil {
		return utls.ClientHelloSpec{}, fmt.Errorf("fingerprint: %w", err)
	}
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*utls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
		}
	}
	return spec, nil
}
