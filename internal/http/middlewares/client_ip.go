package middlewares

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP resuelve la IP del cliente. X-Forwarded-For solo se lee cuando el peer
// es un proxy de confianza, y se recorre de derecha a izquierda saltando proxies
// de confianza. Un *ClientIP nil usa siempre RemoteAddr.
type ClientIP struct {
	trusted []netip.Prefix
}

// NewClientIP acepta CIDRs ("10.0.0.0/8") o IPs sueltas. Sin proxies devuelve nil.
func NewClientIP(trustedProxies []string) (*ClientIP, error) {
	var c ClientIP
	for _, s := range trustedProxies {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if p, err := netip.ParsePrefix(s); err == nil {
			c.trusted = append(c.trusted, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: not an IP or CIDR", s)
		}
		a = a.Unmap()
		c.trusted = append(c.trusted, netip.PrefixFrom(a, a.BitLen()))
	}
	if len(c.trusted) == 0 {
		return nil, nil
	}
	return &c, nil
}

func (c *ClientIP) isTrusted(s string) bool {
	a, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	a = a.Unmap()
	for _, p := range c.trusted {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// Resolve devuelve la IP a usar para rate limit y logs.
func (c *ClientIP) Resolve(r *http.Request) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	if c == nil || !c.isTrusted(peer) {
		return peer
	}
	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !c.isTrusted(hop) {
			return hop
		}
	}
	return peer
}
