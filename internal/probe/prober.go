package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"

	"github.com/hakim/bughunter/internal/models"
)

const (
	DefaultConcurrency = 20
	MaxConcurrency     = 50
)

// ClampConcurrency maps n into 1..MaxConcurrency; zero selects the default
func ClampConcurrency(n int) int {
	switch {
	case n == 0:
		return DefaultConcurrency
	case n < 1:
		return 1
	case n > MaxConcurrency:
		return MaxConcurrency
	}
	return n
}

// VerifyFunc verifies one candidate. A non-nil error aborts the batch only
// when it wraps ErrResourceExhausted.
type VerifyFunc func(ctx context.Context, c models.Candidate) (models.ProbeResult, error)

// ProberConfig contains configuration for a Prober
type ProberConfig struct {
	Concurrency int
	// RateLimit caps probe launches per second; zero disables limiting
	RateLimit float64
	Logger    *slog.Logger
}

// Prober runs a VerifyFunc over a candidate list with at most Concurrency
// probes in flight
type Prober struct {
	verify      VerifyFunc
	concurrency int
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// NewProber creates a Prober
func NewProber(verify VerifyFunc, cfg ProberConfig) *Prober {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	p := &Prober{
		verify:      verify,
		concurrency: ClampConcurrency(cfg.Concurrency),
		logger:      cfg.Logger,
	}
	if cfg.RateLimit > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), p.concurrency)
	}
	return p
}

// Concurrency returns the effective concurrency ceiling
func (p *Prober) Concurrency() int {
	return p.concurrency
}

// Run probes every candidate and sends each result on out in completion
// order. out is closed before Run returns.
//
// Cancelling ctx stops new launches; probes already running finish and
// their results are dropped if nobody is reading. A resource exhaustion
// error stops new launches too, but results of in-flight probes are still
// delivered. Run returns the exhaustion error, ctx's error, or nil.
func (p *Prober) Run(ctx context.Context, candidates []models.Candidate, out chan<- models.ProbeResult) error {
	defer close(out)

	// schedCtx gates launches only; in-flight probes keep ctx
	schedCtx, stop := context.WithCancel(ctx)
	defer stop()

	var (
		fatalOnce sync.Once
		fatal     error
	)

	workers := pool.New().WithMaxGoroutines(p.concurrency)

	for _, c := range candidates {
		if schedCtx.Err() != nil {
			break
		}
		if p.limiter != nil {
			if err := p.limiter.Wait(schedCtx); err != nil {
				break
			}
		}
		workers.Go(func() {
			// Go returns once a worker accepted the task, which may be after a stop
			if schedCtx.Err() != nil {
				return
			}

			res, err := p.safeVerify(ctx, c)
			if err != nil {
				if errors.Is(err, ErrResourceExhausted) {
					fatalOnce.Do(func() {
						fatal = err
						p.logger.Error("aborting probe batch", "error", err)
						stop()
					})
					return
				}
				p.logger.Debug("probe failed", "candidate", c.Name, "error", err)
				res = models.ProbeResult{Candidate: c}
			}

			select {
			case out <- res:
			case <-ctx.Done():
			}
		})
	}

	workers.Wait()

	if fatal != nil {
		return fatal
	}
	return ctx.Err()
}

// safeVerify turns a panicking probe into a failed one
func (p *Prober) safeVerify(ctx context.Context, c models.Candidate) (res models.ProbeResult, err error) {
	var catcher panics.Catcher
	catcher.Try(func() {
		res, err = p.verify(ctx, c)
	})
	if r := catcher.Recovered(); r != nil {
		return models.ProbeResult{Candidate: c}, fmt.Errorf("probe %s panicked: %v", c.Name, r.Value)
	}
	return res, err
}
