package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hakim/bughunter/internal/discovery"
	"github.com/hakim/bughunter/internal/httpprobe"
	"github.com/hakim/bughunter/internal/metrics"
	"github.com/hakim/bughunter/internal/models"
	"github.com/hakim/bughunter/internal/resolver"
	"github.com/hakim/bughunter/internal/storage"
)

// stubResolver answers for the hosts in live, or for everything in
// wildcard mode
type stubResolver struct {
	live     map[string]bool
	wildcard bool
}

func (r *stubResolver) Resolve(_ context.Context, host string) (resolver.Answer, error) {
	if r.wildcard || r.live[host] {
		return resolver.Answer{Host: host, Addresses: []string{"192.0.2.10"}}, nil
	}
	return resolver.Answer{Host: host}, resolver.ErrNotFound
}

type stubHTTP struct {
	https map[string]bool
}

func (h *stubHTTP) Check(_ context.Context, host string) httpprobe.Result {
	return httpprobe.Result{Host: host, HTTPS: h.https[host]}
}

type stubCT struct {
	names []string
	err   error
}

func (c *stubCT) Fetch(context.Context, string) ([]string, error) {
	return c.names, c.err
}

type recorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recorder) Emit(e models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) ofType(t models.EventType) []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) statuses() []string {
	var out []string
	for _, e := range r.ofType(models.EventStatus) {
		out = append(out, e.Data.(models.StatusPayload).Message)
	}
	return out
}

func (r *recorder) hits() map[string]models.ClassifiedHit {
	out := make(map[string]models.ClassifiedHit)
	for _, e := range r.ofType(models.EventSubdomain) {
		hit := e.Data.(models.ClassifiedHit)
		out[hit.Subdomain] = hit
	}
	return out
}

var scenarioWords = []string{"www", "admin", "nonexistent123"}

func TestRunCleanDomain(t *testing.T) {
	store := storage.NewMemoryStore(0)
	defer store.Close()

	runner := NewRunner(RunnerConfig{
		Words: scenarioWords,
		Resolver: &stubResolver{live: map[string]bool{
			"www.example.test":   true,
			"admin.example.test": true,
		}},
		Store:       store,
		Metrics:     metrics.New(),
		Concurrency: 4,
	})

	rec := &recorder{}
	session, err := runner.Run(context.Background(), runner.DefaultRequest("example.test"), rec)
	require.NoError(t, err)

	hits := rec.hits()
	require.Len(t, hits, 2)
	assert.Equal(t, models.RiskLow, hits["www.example.test"].RiskLevel)
	assert.Equal(t, models.RiskHigh, hits["admin.example.test"].RiskLevel)
	assert.Equal(t, models.SourceWordlist, hits["admin.example.test"].Source)

	complete := rec.ofType(models.EventComplete)
	require.Len(t, complete, 1)
	payload := complete[0].Data.(models.CompletePayload)
	assert.Equal(t, 2, payload.Total)
	assert.Equal(t, "Scan complete! Found 2 subdomains", payload.Message)
	assert.Equal(t, 3, payload.Checked)
	assert.False(t, payload.Wildcard)
	assert.Empty(t, rec.ofType(models.EventError))

	// the terminal event is last
	assert.Equal(t, models.EventComplete, rec.events[len(rec.events)-1].Type)
	assert.Equal(t, "Detecting wildcard DNS...", rec.statuses()[0])
	assert.Contains(t, rec.statuses(), "Loaded 3 subdomains")

	assert.Equal(t, models.StatusCompleted, session.Status)
	stored, err := store.Get(session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	assert.Len(t, stored.LiveResults, 2)
}

func TestRunHTTPRequestedWithoutChecker(t *testing.T) {
	runner := NewRunner(RunnerConfig{
		Words: scenarioWords,
		Resolver: &stubResolver{live: map[string]bool{
			"www.example.test": true,
		}},
	})

	req := runner.DefaultRequest("example.test")
	assert.False(t, req.VerifyHTTP)
	req.VerifyHTTP = true
	req.UseCT = true

	rec := &recorder{}
	session, err := runner.Run(context.Background(), req, rec)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, session.Status)
	assert.Contains(t, rec.statuses(), "HTTP verification is not available, checking DNS only")
	assert.Contains(t, rec.statuses(), "Certificate transparency is disabled, using the wordlist only")
	assert.Len(t, rec.hits(), 1)
}

func TestDefaultRequestDNSOnly(t *testing.T) {
	checker := &stubHTTP{}

	req := NewRunner(RunnerConfig{HTTP: checker}).DefaultRequest("example.test")
	assert.True(t, req.VerifyHTTP)

	req = NewRunner(RunnerConfig{HTTP: checker, DNSOnly: true}).DefaultRequest("example.test")
	assert.False(t, req.VerifyHTTP)

	preset, err := GetPreset("standard")
	require.NoError(t, err)
	preset.Apply(&req)
	assert.True(t, req.VerifyHTTP)
}

func TestRunWildcardDomainNeedsHTTP(t *testing.T) {
	runner := NewRunner(RunnerConfig{
		Words:    scenarioWords,
		Resolver: &stubResolver{wildcard: true},
		HTTP:     &stubHTTP{https: map[string]bool{"admin.example.test": true}},
	})

	rec := &recorder{}
	session, err := runner.Run(context.Background(), runner.DefaultRequest("example.test"), rec)
	require.NoError(t, err)

	hits := rec.hits()
	require.Len(t, hits, 1)
	assert.True(t, hits["admin.example.test"].HTTPS)

	payload := rec.ofType(models.EventComplete)[0].Data.(models.CompletePayload)
	assert.Equal(t, 1, payload.Total)
	assert.True(t, payload.Wildcard)
	assert.True(t, session.WildcardDetected)
}

func TestRunCTFailureIsNotFatal(t *testing.T) {
	runner := NewRunner(RunnerConfig{
		Words:    scenarioWords,
		CT:       &stubCT{err: context.DeadlineExceeded},
		Resolver: &stubResolver{live: map[string]bool{"www.example.test": true}},
	})

	req := runner.DefaultRequest("example.test")
	require.True(t, req.UseCT)

	rec := &recorder{}
	_, err := runner.Run(context.Background(), req, rec)
	require.NoError(t, err)

	assert.Empty(t, rec.ofType(models.EventError))
	require.Len(t, rec.ofType(models.EventComplete), 1)
	assert.Contains(t, rec.statuses(), "Certificate transparency lookup failed, continuing with wordlist only")
	assert.Len(t, rec.hits(), 1)
}

func TestRunCTNamesMergeWithWordlist(t *testing.T) {
	runner := NewRunner(RunnerConfig{
		Words: []string{"www", "admin"},
		CT:    &stubCT{names: []string{"admin.example.test", "legacy.example.test", "*.example.test"}},
		// CT-only name does not resolve but still qualifies
		Resolver: &stubResolver{live: map[string]bool{"admin.example.test": true}},
	})

	rec := &recorder{}
	_, err := runner.Run(context.Background(), runner.DefaultRequest("example.test"), rec)
	require.NoError(t, err)

	hits := rec.hits()
	require.Len(t, hits, 2)
	assert.Equal(t, models.SourceBoth, hits["admin.example.test"].Source)
	assert.Equal(t, models.SourceCertificateTransparency, hits["legacy.example.test"].Source)
	assert.Contains(t, rec.statuses(), "Found 2 names in certificate transparency logs")
}

func TestRunProgressEvents(t *testing.T) {
	words := make([]string, 10)
	for i := range words {
		words[i] = string(rune('a'+i)) + "host"
	}
	runner := NewRunner(RunnerConfig{
		Words:         words,
		Resolver:      &stubResolver{live: map[string]bool{}},
		ProgressEvery: 5,
	})

	rec := &recorder{}
	_, err := runner.Run(context.Background(), runner.DefaultRequest("example.test"), rec)
	require.NoError(t, err)
	assert.Contains(t, rec.statuses(), "Checked 5/10... Found 0 live")
}

func TestRunEmptyWordlistFails(t *testing.T) {
	store := storage.NewMemoryStore(0)
	defer store.Close()

	runner := NewRunner(RunnerConfig{
		Resolver: &stubResolver{},
		Store:    store,
	})

	rec := &recorder{}
	session, err := runner.Run(context.Background(), runner.DefaultRequest("example.test"), rec)
	require.Error(t, err)
	assert.ErrorIs(t, err, discovery.ErrEmptyWordlist)

	errs := rec.ofType(models.EventError)
	require.Len(t, errs, 1)
	assert.Empty(t, rec.ofType(models.EventComplete))
	assert.Equal(t, models.StatusFailed, session.Status)

	stored, err := store.Get(session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)
}

func TestRunRejectsInvalidDomain(t *testing.T) {
	runner := NewRunner(RunnerConfig{Words: scenarioWords, Resolver: &stubResolver{}})

	rec := &recorder{}
	session, err := runner.Run(context.Background(), runner.DefaultRequest("not a domain"), rec)
	require.Error(t, err)
	assert.Nil(t, session)

	var vErr *discovery.ValidationError
	assert.True(t, errors.As(err, &vErr))
	require.Len(t, rec.events, 1)
	assert.Equal(t, models.EventError, rec.events[0].Type)
}

func TestRunClientGoneCancels(t *testing.T) {
	words := make([]string, 200)
	for i := range words {
		words[i] = "host" + strings.Repeat("x", i%5) + string(rune('a'+i%26)) + string(rune('a'+i/26))
	}

	runner := NewRunner(RunnerConfig{
		Words: words,
		// every word resolves, the random wildcard probe does not
		Resolver: resolverFunc(func(ctx context.Context, host string) (resolver.Answer, error) {
			if strings.HasPrefix(host, "host") {
				return resolver.Answer{Host: host, Addresses: []string{"192.0.2.1"}}, nil
			}
			return resolver.Answer{Host: host}, resolver.ErrNotFound
		}),
		Concurrency: 1,
	})

	var sent atomic.Int32
	gone := EmitterFunc(func(e models.Event) error {
		// let the first few events through, then drop the connection
		if sent.Add(1) > 6 {
			return errors.New("broken pipe")
		}
		return nil
	})

	session, err := runner.Run(context.Background(), runner.DefaultRequest("example.test"), gone)
	assert.ErrorIs(t, err, ErrClientGone)
	assert.Equal(t, models.StatusFailed, session.Status)
	assert.Less(t, session.Summary.Checked, len(words))
}

func TestRunContextCancelled(t *testing.T) {
	runner := NewRunner(RunnerConfig{Words: scenarioWords, Resolver: &stubResolver{}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &recorder{}
	session, err := runner.Run(ctx, runner.DefaultRequest("example.test"), rec)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.StatusFailed, session.Status)
	require.Len(t, rec.ofType(models.EventError), 1)
}

func TestValidateScope(t *testing.T) {
	runner := NewRunner(RunnerConfig{
		Scope: &ScopeConfig{AllowedDomains: []string{"example.test", "*.corp.test"}},
	})

	got, err := runner.Validate("HTTPS://Example.Test/")
	require.NoError(t, err)
	assert.Equal(t, "example.test", got)

	_, err = runner.Validate("eng.corp.test")
	assert.NoError(t, err)

	_, err = runner.Validate("other.test")
	assert.ErrorIs(t, err, ErrOutOfScope)

	_, err = runner.Validate("bad domain")
	var vErr *discovery.ValidationError
	assert.True(t, errors.As(err, &vErr))
}

func TestDomainMatches(t *testing.T) {
	tests := []struct {
		target, pattern string
		want            bool
	}{
		{"example.com", "example.com", true},
		{"EXAMPLE.com.", "example.com", true},
		{"www.example.com", "example.com", false},
		{"www.example.com", "*.example.com", true},
		{"a.b.example.com", "*.example.com", true},
		{"example.com", "*.example.com", false},
		{"badexample.com", "*.example.com", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, domainMatches(tt.target, tt.pattern), "%s vs %s", tt.target, tt.pattern)
	}

	var nilScope *ScopeConfig
	assert.NoError(t, nilScope.ValidateTarget("anything.test"))
}

func TestPresets(t *testing.T) {
	assert.Equal(t, []string{"quick", "standard", "thorough"}, PresetNames())

	quick, err := GetPreset("quick")
	require.NoError(t, err)

	req := Request{Domain: "example.test", VerifyHTTP: true, UseCT: true, Concurrency: 20}
	quick.Apply(&req)
	assert.False(t, req.VerifyHTTP)
	assert.False(t, req.UseCT)
	assert.Equal(t, 50, req.Concurrency)
	assert.Equal(t, "example.test", req.Domain)

	_, err = GetPreset("nope")
	assert.Error(t, err)

	presets := BuiltinPresets()
	delete(presets, "quick")
	_, err = GetPreset("quick")
	assert.NoError(t, err)
}

func TestNotifierRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	var got completionPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	session := models.NewSession("example.test")
	session.LiveResults = append(session.LiveResults, models.ClassifiedHit{
		Subdomain: "admin.example.test", RiskLevel: models.RiskHigh, Source: models.SourceWordlist,
	})
	session.TotalFound = 1
	session.Finish(models.StatusCompleted, "")

	n := &Notifier{WebhookURL: srv.URL}
	require.NoError(t, n.SendCompletion(context.Background(), session))
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "example.test", got.Domain)
	assert.Equal(t, []string{"admin.example.test"}, got.HighRisk)
	assert.Equal(t, "completed", got.Status)
}

func TestNotifierDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	n := &Notifier{WebhookURL: srv.URL, Client: &http.Client{Timeout: time.Second}}
	err := n.SendCompletion(context.Background(), models.NewSession("example.test"))
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var empty *Notifier
	assert.NoError(t, empty.SendCompletion(context.Background(), models.NewSession("example.test")))
}

type resolverFunc func(ctx context.Context, host string) (resolver.Answer, error)

func (f resolverFunc) Resolve(ctx context.Context, host string) (resolver.Answer, error) {
	return f(ctx, host)
}
