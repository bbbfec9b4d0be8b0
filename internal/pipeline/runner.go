// Package pipeline drives one discovery session from validation to the final
// event: wildcard check, candidate generation, bounded probing, aggregation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hakim/bughunter/internal/aggregate"
	"github.com/hakim/bughunter/internal/discovery"
	"github.com/hakim/bughunter/internal/metrics"
	"github.com/hakim/bughunter/internal/models"
	"github.com/hakim/bughunter/internal/probe"
	"github.com/hakim/bughunter/internal/resolver"
	"github.com/hakim/bughunter/internal/storage"
	"github.com/hakim/bughunter/internal/telemetry"
)

// ErrClientGone means the streaming client went away. The session is
// cancelled and nothing more is sent.
var ErrClientGone = errors.New("client disconnected")

// Emitter delivers session events to a client. An error means the client
// can no longer be reached.
type Emitter interface {
	Emit(event models.Event) error
}

// EmitterFunc adapts a function to the Emitter interface
type EmitterFunc func(event models.Event) error

// Emit calls f(event)
func (f EmitterFunc) Emit(event models.Event) error {
	return f(event)
}

// RunnerConfig wires the collaborators of a Runner. Store, Metrics and
// Notifier are optional.
type RunnerConfig struct {
	Words    []string
	CT       discovery.CTFetcher
	Resolver resolver.Resolver
	// HTTP is used when a request asks for web verification
	HTTP probe.HTTPChecker
	// DNSOnly leaves web verification off in DefaultRequest; requests can
	// still turn it on
	DNSOnly bool

	Store    storage.SessionStore
	Metrics  *metrics.Metrics
	Notifier *Notifier
	Scope    *ScopeConfig

	Concurrency   int
	RateLimit     float64
	DNSRetries    int
	StrictCT      bool
	MaxCandidates int
	// ProgressEvery emits a progress status after this many checked
	// candidates; zero disables progress events
	ProgressEvery int

	Logger *slog.Logger
}

// Request describes one scan
type Request struct {
	Domain      string
	VerifyHTTP  bool
	UseCT       bool
	Concurrency int
	DNSRetries  int
	// OnProgress, when set, is called after every checked candidate from
	// the goroutine running the session
	OnProgress func(checked, total int)
}

// Runner executes scan sessions. One Runner serves many concurrent sessions;
// all per-session state lives inside Run.
type Runner struct {
	cfg    RunnerConfig
	logger *slog.Logger
}

// NewRunner creates a Runner
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner{cfg: cfg, logger: cfg.Logger}
}

// DefaultRequest returns a request for domain using the runner defaults
func (r *Runner) DefaultRequest(domain string) Request {
	return Request{
		Domain:      domain,
		VerifyHTTP:  r.cfg.HTTP != nil && !r.cfg.DNSOnly,
		UseCT:       r.cfg.CT != nil,
		Concurrency: r.cfg.Concurrency,
		DNSRetries:  r.cfg.DNSRetries,
	}
}

// Validate normalizes domain and checks syntax and scope. Errors are either
// a *discovery.ValidationError or wrap ErrOutOfScope.
func (r *Runner) Validate(domain string) (string, error) {
	domain, err := discovery.ValidateDomain(domain)
	if err != nil {
		return "", err
	}
	if err := r.cfg.Scope.ValidateTarget(domain); err != nil {
		return "", err
	}
	return domain, nil
}

// session carries the mutable state of one Run
type session struct {
	*Runner
	data    *models.ScanSession
	emitter Emitter
	cancel  context.CancelFunc
	gone    bool
	started time.Time
}

// emit sends event unless the client is already gone. The first delivery
// failure cancels the session.
func (s *session) emit(event models.Event) {
	if s.gone {
		return
	}
	if err := s.emitter.Emit(event); err != nil {
		s.gone = true
		s.logger.Info("client went away, cancelling scan", "domain", s.data.Domain, "session", s.data.ID, "error", err)
		s.cancel()
	}
}

func (s *session) status(format string, args ...any) {
	s.emit(models.StatusEvent(fmt.Sprintf(format, args...)))
}

func (s *session) save() {
	if s.cfg.Store == nil {
		return
	}
	if err := s.cfg.Store.Put(s.data.Snapshot()); err != nil {
		s.logger.Warn("could not persist session", "session", s.data.ID, "error", err)
	}
}

// Run executes req and streams events to emitter. It always ends with one
// terminal event (complete or error) unless the client disconnected, in
// which case ErrClientGone is returned. The final session snapshot is
// returned in every case where a session was created.
func (r *Runner) Run(ctx context.Context, req Request, emitter Emitter) (*models.ScanSession, error) {
	domain, err := r.Validate(req.Domain)
	if err != nil {
		_ = emitter.Emit(models.ErrorEvent(err.Error()))
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ctx, span := telemetry.Tracer().Start(ctx, "scan", trace.WithAttributes(
		attribute.String("domain", domain),
		attribute.Bool("verify_http", req.VerifyHTTP),
		attribute.Bool("use_ct", req.UseCT),
	))
	defer span.End()

	s := &session{
		Runner:  r,
		data:    models.NewSession(domain),
		emitter: emitter,
		cancel:  cancel,
		started: time.Now(),
	}
	span.SetAttributes(attribute.String("session.id", s.data.ID))
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.SessionStarted()
	}
	s.save()

	err = s.run(ctx, req)
	s.finish(ctx, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.Int("hits", s.data.TotalFound))

	return s.data.Snapshot(), err
}

// run performs the initializing and running phases
func (s *session) run(ctx context.Context, req Request) error {
	domain := s.data.Domain

	// Step 1: wildcard detection
	s.status("Detecting wildcard DNS...")
	wctx, wspan := telemetry.Tracer().Start(ctx, "wildcard")
	wildcard, err := discovery.NewWildcardDetector(s.cfg.Resolver, s.logger).Detect(wctx, domain)
	wspan.SetAttributes(attribute.Bool("detected", wildcard.Detected))
	wspan.End()
	if err != nil {
		// Undecidable: treat as no wildcard, plain DNS results are trusted
		s.logger.Warn("wildcard detection failed", "domain", domain, "error", err)
	}
	s.data.WildcardDetected = wildcard.Detected
	s.data.WildcardAddrs = wildcard.Addresses
	if wildcard.Detected {
		s.status("Wildcard DNS detected, results need HTTP or certificate confirmation")
	}
	if ctx.Err() != nil {
		return s.cancelled(ctx)
	}

	if req.VerifyHTTP && s.cfg.HTTP == nil {
		s.logger.Warn("http verification requested but not configured", "domain", domain)
		s.status("HTTP verification is not available, checking DNS only")
	}
	if req.UseCT && s.cfg.CT == nil {
		s.status("Certificate transparency is disabled, using the wordlist only")
	}

	// Step 2: candidate generation
	gen := discovery.NewGenerator(discovery.GeneratorConfig{
		Words:         s.cfg.Words,
		CT:            s.ctFetcher(req),
		MaxCandidates: s.cfg.MaxCandidates,
		Logger:        s.logger,
	})
	if req.UseCT && s.cfg.CT != nil {
		s.status("Searching certificate transparency logs...")
	}
	gctx, gspan := telemetry.Tracer().Start(ctx, "generate")
	set, err := gen.Generate(gctx, domain)
	if err != nil {
		gspan.RecordError(err)
		gspan.End()
		return fmt.Errorf("candidate generation: %w", err)
	}
	gspan.SetAttributes(attribute.Int("candidates", len(set.Candidates)))
	gspan.End()

	if set.CTFailed {
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.CTFailure()
		}
		s.status("Certificate transparency lookup failed, continuing with wordlist only")
	} else if len(set.CTNames) > 0 {
		s.status("Found %d names in certificate transparency logs", len(set.CTNames))
	}
	s.status("Loaded %d subdomains", len(set.Candidates))
	if ctx.Err() != nil {
		return s.cancelled(ctx)
	}

	// Step 3: probing
	s.data.Candidates = set.Candidates
	s.data.Status = models.StatusRunning
	s.save()

	agg := aggregate.New(aggregate.Config{
		Domain:           domain,
		WildcardDetected: wildcard.Detected,
		CTNames:          set.CTNames,
		WordlistNames:    set.WordlistNames,
		StrictCT:         s.cfg.StrictCT,
	})
	agg.SetCandidates(len(set.Candidates))

	prober := probe.NewProber(s.verifyFunc(req), probe.ProberConfig{
		Concurrency: req.Concurrency,
		RateLimit:   s.cfg.RateLimit,
		Logger:      s.logger,
	})
	s.status("Checking %d candidates with concurrency %d...", len(set.Candidates), prober.Concurrency())

	pctx, pspan := telemetry.Tracer().Start(ctx, "probe", trace.WithAttributes(
		attribute.Int("concurrency", prober.Concurrency()),
	))
	defer pspan.End()

	results := make(chan models.ProbeResult)
	runErr := make(chan error, 1)
	go func() {
		runErr <- prober.Run(pctx, set.Candidates, results)
	}()

	total := len(set.Candidates)
	for res := range results {
		hit, ok := agg.Add(res)
		if ok {
			s.data.LiveResults = append(s.data.LiveResults, hit)
			s.data.TotalFound = agg.Total()
			if s.cfg.Metrics != nil {
				s.cfg.Metrics.Hit(hit)
			}
			s.emit(models.HitEvent(hit))
		}

		summary := agg.Summary()
		if req.OnProgress != nil {
			req.OnProgress(summary.Checked, total)
		}
		if every := s.cfg.ProgressEvery; every > 0 && summary.Checked%every == 0 && summary.Checked < total {
			s.status("Checked %d/%d... Found %d live", summary.Checked, total, summary.TotalFound)
		}
	}
	s.data.Summary = agg.Summary()
	s.data.TotalFound = agg.Total()

	if err := <-runErr; err != nil {
		if probe.IsResourceExhausted(err) {
			pspan.RecordError(err)
			return fmt.Errorf("scan aborted after %d of %d candidates: %w", s.data.Summary.Checked, total, err)
		}
		return s.cancelled(ctx)
	}
	if s.gone {
		return ErrClientGone
	}
	return nil
}

// cancelled maps a dead context to the error Run reports
func (s *session) cancelled(ctx context.Context) error {
	if s.gone {
		return ErrClientGone
	}
	return fmt.Errorf("scan cancelled: %w", context.Cause(ctx))
}

// finish moves the session to its terminal state and emits the final event
func (s *session) finish(ctx context.Context, err error) {
	status := models.StatusCompleted
	msg := ""
	if err != nil {
		status = models.StatusFailed
		msg = err.Error()
	}
	if !s.data.Finish(status, msg) {
		return
	}

	switch {
	case err == nil:
		s.emit(models.CompleteEvent(models.CompletePayload{
			Total:     s.data.TotalFound,
			Message:   fmt.Sprintf("Scan complete! Found %d subdomains", s.data.TotalFound),
			SessionID: s.data.ID,
			Checked:   s.data.Summary.Checked,
			Sources:   s.data.Summary.Sources,
			Wildcard:  s.data.WildcardDetected,
		}))
	case errors.Is(err, ErrClientGone):
		// nobody left to tell
	default:
		s.emit(models.ErrorEvent(msg))
	}

	elapsed := time.Since(s.started)
	s.logger.Info("scan finished",
		"domain", s.data.Domain,
		"session", s.data.ID,
		"status", status,
		"found", s.data.TotalFound,
		"checked", s.data.Summary.Checked,
		"elapsed", elapsed.Round(time.Millisecond),
	)

	s.save()
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.SessionFinished(status, elapsed)
	}

	if s.cfg.Notifier != nil {
		// the session context may be dead already; delivery gets its own
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := s.cfg.Notifier.SendCompletion(nctx, s.data.Snapshot()); err != nil {
			s.logger.Warn("completion notification failed", "session", s.data.ID, "error", err)
		}
	}
}

func (s *session) ctFetcher(req Request) discovery.CTFetcher {
	if !req.UseCT {
		return nil
	}
	return s.cfg.CT
}

// verifyFunc builds the per-candidate check for req
func (s *session) verifyFunc(req Request) probe.VerifyFunc {
	var checker probe.HTTPChecker
	if req.VerifyHTTP {
		checker = s.cfg.HTTP
	}
	v := probe.NewVerifier(probe.VerifierConfig{
		Resolver: s.cfg.Resolver,
		HTTP:     checker,
		Retries:  req.DNSRetries,
		Logger:   s.logger,
	})
	if s.cfg.Metrics != nil {
		return s.cfg.Metrics.Instrument(v.Verify)
	}
	return v.Verify
}
