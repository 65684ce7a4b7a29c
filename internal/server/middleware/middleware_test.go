package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "remote addr host",
			remoteAddr: "203.0.113.7:41234",
			want:       "203.0.113.7",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "203.0.113.7",
			want:       "203.0.113.7",
		},
		{
			name:       "x-forwarded-for wins",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.4, 10.0.0.1"},
			want:       "198.51.100.4",
		},
		{
			name:       "x-real-ip fallback",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Real-IP": "198.51.100.9"},
			want:       "198.51.100.9",
		},
		{
			name:       "empty x-forwarded-for ignored",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": " "},
			want:       "10.0.0.1",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tc.remoteAddr
			for k, v := range tc.headers {
				r.Header.Set(k, v)
			}
			require.Equal(t, tc.want, extractClientIP(r))
		})
	}
}

func TestExtractToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	require.Empty(t, extractToken(r))

	r.Header.Set("Authorization", "Bearer abc123")
	require.Equal(t, "abc123", extractToken(r))

	r.Header.Del("Authorization")
	r.Header.Set("X-API-Key", " key-456 ")
	require.Equal(t, "key-456", extractToken(r))

	// Bearer scheme is case-insensitive.
	r.Header.Set("Authorization", "bearer xyz")
	require.Equal(t, "xyz", extractToken(r))
}
