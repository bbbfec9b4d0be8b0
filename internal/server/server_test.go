package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hakim/bughunter/internal/metrics"
	"github.com/hakim/bughunter/internal/models"
	"github.com/hakim/bughunter/internal/pipeline"
	"github.com/hakim/bughunter/internal/resolver"
	"github.com/hakim/bughunter/internal/storage"
)

type stubResolver map[string]bool

func (r stubResolver) Resolve(_ context.Context, host string) (resolver.Answer, error) {
	if r[host] {
		return resolver.Answer{Host: host, Addresses: []string{"192.0.2.7"}}, nil
	}
	return resolver.Answer{Host: host}, resolver.ErrNotFound
}

type stubLookup struct{}

func (stubLookup) Lookup(_ context.Context, domain string) *resolver.LookupReport {
	return &resolver.LookupReport{
		Domain: domain,
		Results: []resolver.RecordSet{
			{Type: "A", Records: []string{"192.0.2.7"}},
		},
	}
}

func newTestServer(t *testing.T) (*Server, storage.SessionStore) {
	t.Helper()

	store := storage.NewMemoryStore(0)
	t.Cleanup(func() { store.Close() })

	m := metrics.New()
	runner := pipeline.NewRunner(pipeline.RunnerConfig{
		Words: []string{"www", "admin", "nonexistent123"},
		Resolver: stubResolver{
			"www.example.test":   true,
			"admin.example.test": true,
		},
		Store:   store,
		Metrics: m,
		Scope:   &pipeline.ScopeConfig{AllowedDomains: []string{"example.test"}},
	})

	srv := New(Config{AllowedOrigins: []string{"*"}}, Deps{
		Runner:  runner,
		Store:   store,
		Lookup:  stubLookup{},
		Metrics: m,
	})
	return srv, store
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestStreamEmitsHitsAndCompletion(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/subdomain-stream?domain=example.test", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/event-stream")

	body := rec.Body.String()
	assert.Contains(t, body, "event:status")
	assert.Contains(t, body, "Detecting wildcard DNS...")
	assert.Equal(t, 2, strings.Count(body, "event:subdomain"))
	assert.Contains(t, body, "admin.example.test")
	assert.Contains(t, body, `"riskLevel":"high"`)
	assert.Contains(t, body, "event:complete")
	assert.Contains(t, body, "Scan complete! Found 2 subdomains")
	assert.NotContains(t, body, "event:error")

	// complete is the last event
	assert.Greater(t, strings.LastIndex(body, "event:complete"), strings.LastIndex(body, "event:subdomain"))
}

func TestStreamPostBody(t *testing.T) {
	srv, _ := newTestServer(t)

	payload := `{"domain":"https://example.test/","verifyHttp":false,"concurrency":2}`
	req := httptest.NewRequest(http.MethodPost, "/api/subdomain-stream", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	rec := serve(srv, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Scan complete! Found 2 subdomains")
}

func TestStreamRejectsBadInput(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name   string
		url    string
		status int
	}{
		{"missing domain", "/api/subdomain-stream", http.StatusBadRequest},
		{"invalid domain", "/api/subdomain-stream?domain=not_a_domain", http.StatusBadRequest},
		{"out of scope", "/api/subdomain-stream?domain=other.test", http.StatusForbidden},
		{"unknown preset", "/api/subdomain-stream?domain=example.test&preset=nope", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(srv, httptest.NewRequest(http.MethodGet, tt.url, nil))
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestSessionRoutes(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/subdomain-stream?domain=example.test", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/api/sessions?domain=example.test", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Sessions []models.ScanSession `json:"sessions"`
		Count    int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	id := list.Sessions[0].ID
	assert.Equal(t, models.StatusCompleted, list.Sessions[0].Status)
	assert.Equal(t, 2, list.Sessions[0].TotalFound)

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/api/sessions/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(srv, httptest.NewRequest(http.MethodDelete, "/api/sessions/"+id, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/api/sessions/"+id, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(srv, httptest.NewRequest(http.MethodDelete, "/api/sessions/"+id, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDNSLookupRoute(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/dns-lookup", bytes.NewBufferString(`{"domain":"example.test"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(srv, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var report resolver.LookupReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "example.test", report.Domain)
	require.Len(t, report.Results, 1)

	req = httptest.NewRequest(http.MethodPost, "/api/dns-lookup", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec = serve(srv, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	serve(srv, httptest.NewRequest(http.MethodGet, "/api/subdomain-stream?domain=example.test", nil))

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bughunter_sessions_total")
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/subdomain-stream", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := serve(srv, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestWebSocketStream(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/subdomain-stream?domain=example.test"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var types []string
	hits := 0
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected read error: %v", err)
			break
		}
		types = append(types, msg.Type)
		if msg.Type == string(models.EventSubdomain) {
			hits++
		}
	}

	assert.Equal(t, 2, hits)
	require.NotEmpty(t, types)
	assert.Equal(t, string(models.EventStatus), types[0])
	assert.Equal(t, string(models.EventComplete), types[len(types)-1])
}

func TestWebSocketRejectsBeforeUpgrade(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/subdomain-stream?domain=other.test"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
