// Package httpprobe checks whether a web server answers on a hostname
package httpprobe

import (
	"context"
	"crypto/tls"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sourcegraph/conc"
)

// DefaultUserAgent is sent with every probe request
const DefaultUserAgent = "Mozilla/5.0 (compatible; BugHunter-Pro/1.0)"

// aliveCodes are the status codes that prove a server exists and is
// addressable, even when it denies or redirects the request
var aliveCodes = map[int]bool{
	200: true, 201: true, 202: true, 204: true, 206: true,
	301: true, 302: true, 303: true, 307: true, 308: true,
	401: true, 403: true, 405: true, 429: true,
}

// IsAliveStatus reports whether code proves a live server
func IsAliveStatus(code int) bool {
	return aliveCodes[code]
}

// Result is the outcome of checking both schemes on one host
type Result struct {
	Host        string `json:"host"`
	HTTP        bool   `json:"http"`
	HTTPS       bool   `json:"https"`
	HTTPStatus  int    `json:"http_status,omitempty"`
	HTTPSStatus int    `json:"https_status,omitempty"`
	// Transport errors are kept for the caller to inspect; they never make
	// Check fail.
	HTTPErr  error `json:"-"`
	HTTPSErr error `json:"-"`
}

// Config holds checker configuration
type Config struct {
	// Timeout bounds each URL check, HEAD and GET fallback included
	Timeout   time.Duration
	UserAgent string
	// InsecureTLS accepts any certificate
	InsecureTLS bool
	Logger      *slog.Logger
}

// Checker issues HEAD (falling back to GET) requests and maps the status
// code to a liveness flag. Redirects are not followed: a 3xx already proves
// presence.
type Checker struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
	logger    *slog.Logger
}

// NewChecker creates a Checker from cfg
func NewChecker(cfg Config) *Checker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 4 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout: cfg.Timeout,
		}).DialContext,
		TLSHandshakeTimeout:   cfg.Timeout,
		ResponseHeaderTimeout: cfg.Timeout,
		// each host is contacted once; idle connections would only hold sockets
		DisableKeepAlives: true,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureTLS, //nolint:gosec // opt-in for self-signed targets
		},
	}

	return &Checker{
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
		logger:    cfg.Logger,
	}
}

// Check probes https://host and http://host in parallel
func (c *Checker) Check(ctx context.Context, host string) Result {
	res := Result{Host: host}

	var wg conc.WaitGroup
	wg.Go(func() {
		res.HTTPSStatus, res.HTTPSErr = c.CheckURL(ctx, "https://"+host)
		res.HTTPS = IsAliveStatus(res.HTTPSStatus)
	})
	wg.Go(func() {
		res.HTTPStatus, res.HTTPErr = c.CheckURL(ctx, "http://"+host)
		res.HTTP = IsAliveStatus(res.HTTPStatus)
	})
	wg.Wait()

	return res
}

// CheckURL returns the status code of the first request that answered.
// HEAD is tried first; GET is used when HEAD fails or returns a status that
// does not prove liveness.
func (c *Checker) CheckURL(ctx context.Context, url string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	code, err := c.do(ctx, http.MethodHead, url)
	if err == nil && IsAliveStatus(code) {
		return code, nil
	}
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	getCode, getErr := c.do(ctx, http.MethodGet, url)
	if getErr != nil {
		if err == nil {
			// HEAD answered with a non-alive status; report that
			return code, nil
		}
		c.logger.Debug("http probe failed", "url", url, "error", getErr)
		return 0, getErr
	}
	return getCode, nil
}

func (c *Checker) do(ctx context.Context, method, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return resp.StatusCode, nil
}
