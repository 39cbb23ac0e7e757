package security

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// DefaultTrustedProxies are the networks allowed to set forwarding headers.
var DefaultTrustedProxies = []string{
	"127.0.0.0/8",    // localhost
	"::1/128",        // localhost
	"10.0.0.0/8",     // private networks
	"172.16.0.0/12",  // private networks
	"192.168.0.0/16", // private networks
}

// IPResolver extracts the client address, trusting X-Forwarded-For and
// X-Real-IP only when the direct peer is a trusted proxy.
type IPResolver struct {
	trusted []*net.IPNet
}

func NewIPResolver(cidrs []string) (*IPResolver, error) {
	r := &IPResolver{}
	for _, c := range cidrs {
		_, network, err := net.ParseCIDR(c)
		if err != nil {
			return nil, fmt.Errorf("parse trusted proxy CIDR %s: %w", c, err)
		}
		r.trusted = append(r.trusted, network)
	}
	return r, nil
}

// MustIPResolver panics on a bad CIDR; for package-level defaults.
func MustIPResolver(cidrs []string) *IPResolver {
	r, err := NewIPResolver(cidrs)
	if err != nil {
		panic(err)
	}
	return r
}

func (p *IPResolver) isTrusted(ip net.IP) bool {
	for _, network := range p.trusted {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func (p *IPResolver) ClientIP(r *http.Request) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}

	parsed := net.ParseIP(directIP)
	if parsed == nil || !p.isTrusted(parsed) {
		return directIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" && net.ParseIP(xri) != nil {
		return xri
	}

	return directIP
}

// HeadersConfig holds the headers set on every API response.
type HeadersConfig struct {
	HSTSMaxAge     int
	ReferrerPolicy string
}

func DefaultHeadersConfig() HeadersConfig {
	return HeadersConfig{
		HSTSMaxAge:     31536000, // 1 year
		ReferrerPolicy: "no-referrer",
	}
}

// Headers applies the JSON API hardening headers.
func Headers(config HeadersConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Referrer-Policy", config.ReferrerPolicy)
			h.Set("Cross-Origin-Resource-Policy", "same-origin")
			h.Set("Cache-Control", "no-store")

			// HSTS header (only for HTTPS)
			if r.TLS != nil && config.HSTSMaxAge > 0 {
				h.Set("Strict-Transport-Security", fmt.Sprintf("max-age=%d; includeSubDomains", config.HSTSMaxAge))
			}

			next.ServeHTTP(w, r)
		})
	}
}
