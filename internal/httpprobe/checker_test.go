package httpprobe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAliveStatus(t *testing.T) {
	for _, code := range []int{200, 201, 202, 204, 206, 301, 302, 303, 307, 308, 401, 403, 405, 429} {
		assert.True(t, IsAliveStatus(code), "code %d", code)
	}
	for _, code := range []int{0, 100, 400, 404, 410, 500, 502, 503} {
		assert.False(t, IsAliveStatus(code), "code %d", code)
	}
}

func TestCheckURL(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    int
		alive   bool
	}{
		{
			name:    "head ok",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) },
			want:    200,
			alive:   true,
		},
		{
			name: "head rejected, get ok",
			handler: func(w http.ResponseWriter, r *http.Request) {
				if r.Method == http.MethodHead {
					w.WriteHeader(http.StatusNotFound)
					return
				}
				w.WriteHeader(http.StatusOK)
			},
			want:  200,
			alive: true,
		},
		{
			name: "redirect not followed",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, "http://elsewhere.invalid/", http.StatusFound)
			},
			want:  302,
			alive: true,
		},
		{
			name:    "forbidden still proves presence",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusForbidden) },
			want:    403,
			alive:   true,
		},
		{
			name:    "server error",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) },
			want:    500,
			alive:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := NewChecker(Config{Timeout: time.Second})
			code, err := c.CheckURL(context.Background(), srv.URL)
			require.NoError(t, err)
			assert.Equal(t, tt.want, code)
			assert.Equal(t, tt.alive, IsAliveStatus(code))
		})
	}
}

func TestCheckURLTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewChecker(Config{Timeout: 50 * time.Millisecond})
	code, err := c.CheckURL(context.Background(), srv.URL)
	assert.Error(t, err)
	assert.Equal(t, 0, code)
}

func TestCheckBothSchemes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	host := strings.TrimPrefix(srv.URL, "http://")
	res := NewChecker(Config{Timeout: time.Second}).Check(context.Background(), host)

	assert.True(t, res.HTTP)
	assert.Equal(t, 200, res.HTTPStatus)
	// a plain HTTP listener cannot complete a TLS handshake
	assert.False(t, res.HTTPS)
	assert.Error(t, res.HTTPSErr)
}

func TestCheckUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	host := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	res := NewChecker(Config{Timeout: 200 * time.Millisecond}).Check(context.Background(), host)
	assert.False(t, res.HTTP)
	assert.False(t, res.HTTPS)
	assert.Error(t, res.HTTPErr)
}
