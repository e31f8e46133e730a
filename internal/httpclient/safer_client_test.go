package httpclient

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/PTX/errors"
)

func TestValidateURL(t *testing.T) {
	client := NewSaferClient(5 * time.Second)

	tests := []struct {
		name    string
		url     string
		blocked bool
	}{
		{"https", "https://example.com/data.jsonl", false},
		{"http", "http://example.com", false},
		{"file scheme", "file:///etc/passwd", true},
		{"ftp scheme", "ftp://example.com/x", true},
		{"localhost", "http://localhost:8080/", true},
		{"subdomain of localhost", "http://api.localhost/", true},
		{"loopback ip", "http://127.0.0.1/", true},
		{"rfc1918", "http://192.168.1.10/", true},
		{"metadata service", "http://169.254.169.254/latest/meta-data", true},
		{"ipv6 loopback", "http://[::1]/", true},
		{"userinfo", "http://example.com@localhost/", true},
		{"missing host", "http:///path", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.ValidateURL(tt.url)
			if tt.blocked {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrBlocked))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAllowPrivate(t *testing.T) {
	client := NewSaferClientWithOptions(time.Second, Options{AllowPrivate: true})
	_, err := client.ValidateURL("http://localhost:11434/v1/chat/completions")
	assert.NoError(t, err)
}

func TestIsPrivateIP(t *testing.T) {
	private := []string{"10.1.2.3", "172.16.0.1", "192.168.0.1", "127.0.0.1", "0.0.0.0",
		"224.0.0.1", "240.0.0.1", "::1", "fe80::1", "fd00::1", "2001:db8::1", "::ffff:10.0.0.1"}
	public := []string{"8.8.8.8", "1.1.1.1", "2606:4700:4700::1111"}

	for _, s := range private {
		assert.True(t, isPrivateIP(netip.MustParseAddr(s)), s)
	}
	for _, s := range public {
		assert.False(t, isPrivateIP(netip.MustParseAddr(s)), s)
	}
}

func TestRedirectToPrivateBlocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://127.0.0.1:1/secret", http.StatusFound)
	}))
	defer srv.Close()

	client := NewSaferClient(time.Second)
	// Plain transport so the first hop can reach the loopback test server;
	// the redirect policy still applies.
	client.Transport = http.DefaultTransport
	_, err := client.Client.Get(srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redirect blocked")
}

func TestMaxRedirects(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL+"/again", http.StatusFound)
	}))
	defer srv.Close()

	client := NewSaferClientWithOptions(time.Second, Options{MaxRedirects: 2, AllowPrivate: true})
	_, err := client.Get(srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stopped after 2 redirects")
}

func TestWrapClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	resp, err := WrapClient(srv.Client()).Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
