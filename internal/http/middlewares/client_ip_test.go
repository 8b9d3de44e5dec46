package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func reqFrom(remote string, xff ...string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/auth/github", nil)
	r.RemoteAddr = remote
	for _, v := range xff {
		r.Header.Add("X-Forwarded-For", v)
	}
	return r
}

func TestClientIP_IgnoresForwardedWithoutTrustedProxies(t *testing.T) {
	ips, err := NewClientIP(nil)
	require.NoError(t, err)
	require.Nil(t, ips)

	require.Equal(t, "203.0.113.7", ips.Resolve(reqFrom("203.0.113.7:5555", "1.2.3.4")))
	require.Equal(t, "203.0.113.7", ips.Resolve(reqFrom("203.0.113.7:5555", "5.6.7.8")))
}

func TestClientIP_TrustedProxyChain(t *testing.T) {
	ips, err := NewClientIP([]string{"10.0.0.0/8", "192.0.2.1"})
	require.NoError(t, err)

	// el cliente no controla el hop que agregó el proxy
	require.Equal(t, "198.51.100.9", ips.Resolve(reqFrom("10.1.2.3:443", "1.2.3.4, 198.51.100.9")))
	require.Equal(t, "198.51.100.9", ips.Resolve(reqFrom("10.1.2.3:443", "spoofed", "198.51.100.9, 192.0.2.1")))
	// todo el camino es de confianza: queda el peer
	require.Equal(t, "10.1.2.3", ips.Resolve(reqFrom("10.1.2.3:443", "10.9.9.9")))
	require.Equal(t, "10.1.2.3", ips.Resolve(reqFrom("10.1.2.3:443")))
	// peer no confiable: el header no cuenta
	require.Equal(t, "203.0.113.7", ips.Resolve(reqFrom("203.0.113.7:5555", "1.2.3.4")))
}

func TestNewClientIP_RejectsGarbage(t *testing.T) {
	_, err := NewClientIP([]string{"10.0.0.0/8", "not-an-ip"})
	require.Error(t, err)
}
