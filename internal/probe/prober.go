package probe

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrEndpointUnreachable is logged when every candidate failed its probe.
var ErrEndpointUnreachable = errors.New("no endpoint candidate reachable")

// Candidate is one endpoint and the outcome of its most recent probe.
type Candidate struct {
	URL       string
	Priority  int
	LastProbe error
	Probed    bool
}

// ProbeFunc checks a single endpoint once.
type ProbeFunc func(ctx context.Context, endpoint string) error

// Prober walks an ordered candidate list and picks the first live endpoint.
type Prober struct {
	probe   ProbeFunc
	timeout time.Duration
	logger  *zap.Logger
}

// NewProber creates a prober using HTTP for URL candidates and a TCP dial for
// bare host:port candidates.
func NewProber(logger *zap.Logger, timeout time.Duration) *Prober {
	client := &http.Client{Timeout: timeout}
	return NewProberWithFunc(logger, timeout, func(ctx context.Context, endpoint string) error {
		if hasScheme(endpoint) {
			return probeHTTP(ctx, client, endpoint)
		}
		return probeTCP(ctx, endpoint)
	})
}

// NewProberWithFunc creates a prober with a custom probe.
func NewProberWithFunc(logger *zap.Logger, timeout time.Duration, fn ProbeFunc) *Prober {
	return &Prober{
		probe:   fn,
		timeout: timeout,
		logger:  logger.With(zap.String("component", "Prober")),
	}
}

// Select probes candidates in order, stopping at the first success. If none
// respond it returns the first candidate and false; callers treat that as best
// effort.
func (p *Prober) Select(ctx context.Context, endpoints []string) (string, bool) {
	if len(endpoints) == 0 {
		return "", false
	}
	candidates := make([]Candidate, len(endpoints))
	for i, e := range endpoints {
		candidates[i] = Candidate{URL: e, Priority: i}
	}
	if c, ok := p.SelectCandidate(ctx, candidates); ok {
		return c.URL, true
	}
	return candidates[0].URL, false
}

// SelectCandidate is Select over Candidates, recording each probe result in
// place.
func (p *Prober) SelectCandidate(ctx context.Context, candidates []Candidate) (Candidate, bool) {
	for i := range candidates {
		c := &candidates[i]
		p.logger.Debug("Probing endpoint", zap.String("endpoint", c.URL), zap.Int("priority", c.Priority))

		probeCtx := ctx
		var cancel context.CancelFunc
		if p.timeout > 0 {
			probeCtx, cancel = context.WithTimeout(ctx, p.timeout)
		}
		c.LastProbe = p.probe(probeCtx, c.URL)
		c.Probed = true
		if cancel != nil {
			cancel()
		}

		if c.LastProbe == nil {
			p.logger.Info("Found working endpoint", zap.String("endpoint", c.URL))
			return *c, true
		}
		p.logger.Warn("Endpoint probe failed", zap.String("endpoint", c.URL), zap.Error(c.LastProbe))
		if ctx.Err() != nil {
			break
		}
	}

	if len(candidates) > 0 {
		p.logger.Warn("All endpoint probes failed, continuing with default endpoint in degraded mode",
			zap.String("endpoint", candidates[0].URL),
			zap.Int("candidates", len(candidates)),
			zap.Error(ErrEndpointUnreachable))
	}
	return Candidate{}, false
}

func hasScheme(endpoint string) bool {
	return strings.Contains(endpoint, "://")
}

// probeHTTP accepts any response that is not a server error.
func probeHTTP(ctx context.Context, client *http.Client, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Wrap(err, "creating probe request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrap(err, "probe request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return errors.Errorf("server error: status %d", resp.StatusCode)
	}
	return nil
}

func probeTCP(ctx context.Context, endpoint string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return errors.Wrap(err, "dial failed")
	}
	return conn.Close()
}

// DialTarget converts a candidate into a gRPC target and reports whether the
// connection must use TLS. https URLs default to port 443.
func DialTarget(endpoint string) (target string, secure bool, err error) {
	if !hasScheme(endpoint) {
		return endpoint, false, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, errors.Wrapf(err, "parsing endpoint %s", endpoint)
	}
	if u.Hostname() == "" {
		return "", false, errors.Errorf("endpoint %s has no host", endpoint)
	}
	host := u.Host
	secure = u.Scheme == "https"
	if u.Port() == "" {
		if secure {
			host = net.JoinHostPort(u.Hostname(), "443")
		} else {
			host = net.JoinHostPort(u.Hostname(), "80")
		}
	}
	return host, secure, nil
}
