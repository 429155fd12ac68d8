// Package useragent supplies browser User-Agent strings that agree with the
// TLS ClientHello a request presents.
package useragent

import (
	"crypto/rand"
	"math/big"
	"strings"
	"sync/atomic"
)

// Browser families, named like the TLS fingerprint profiles.
const (
	FamilyChrome  = "chrome"
	FamilyFirefox = "firefox"
	FamilySafari  = "safari"
)

var families = map[string][]string{
	FamilyChrome: {
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
	},
	FamilyFirefox: {
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:133.0) Gecko/20100101 Firefox/133.0",
	},
	FamilySafari: {
		"Mozilla/5.0 (iPhone; CPU iPhone OS 18_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.1 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.1 Safari/605.1.15",
	},
}

// ForFamily returns a copy of the User-Agents for a browser family. Any other
// name, such as "random", yields every known User-Agent.
func ForFamily(family string) []string {
	if uas, ok := families[strings.ToLower(family)]; ok {
		return append([]string(nil), uas...)
	}
	var all []string
	for _, f := range []string{FamilyChrome, FamilyFirefox, FamilySafari} {
		all = append(all, families[f]...)
	}
	return all
}

// Pool hands out User-Agents round-robin or at random. It is safe for
// concurrent use.
type Pool struct {
	uas     []string
	counter atomic.Uint64
}

// NewPool copies uas into a new Pool.
func NewPool(uas []string) *Pool {
	return &Pool{uas: append([]string(nil), uas...)}
}

// Len is the number of User-Agents in the pool.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.uas)
}

// Next returns the following User-Agent in round-robin order, or "" for an
// empty pool.
func (p *Pool) Next() string {
	if p.Len() == 0 {
		return ""
	}
	idx := p.counter.Add(1) - 1
	return p.uas[idx%uint64(len(p.uas))]
}

// Random returns a User-Agent chosen with crypto/rand.
func (p *Pool) Random() string {
	if p.Len() == 0 {
		return ""
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(p.uas))))
	if err != nil {
		return p.Next()
	}
	return p.uas[n.Int64()]
}
