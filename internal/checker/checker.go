package checker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/August26/proxyprobe/internal/model"
	"github.com/August26/proxyprobe/internal/retry"
)

// Probe is one validation attempt against one proxy. Implementations must
// report every failure through the returned outcome.
type Probe interface {
	Probe(ctx context.Context, ep model.ProxyEndpoint, target *url.URL, timeout time.Duration) model.ProbeOutcome
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func(ctx context.Context, ep model.ProxyEndpoint, target *url.URL, timeout time.Duration) model.ProbeOutcome

func (f ProbeFunc) Probe(ctx context.Context, ep model.ProxyEndpoint, target *url.URL, timeout time.Duration) model.ProbeOutcome {
	return f(ctx, ep, target, timeout)
}

// Coordinator runs a probe for every endpoint and joins the outcomes into a
// single report.
type Coordinator struct {
	Prober Probe
	Target *url.URL

	// Retry controls repeated attempts per endpoint. The zero value means a
	// single attempt. HTTP errors are never retried.
	Retry retry.Policy

	// OnOutcome, if set, is called once per outcome in arrival order, from
	// the collecting goroutine only.
	OnOutcome func(model.ProbeOutcome)

	Logger *slog.Logger
}

// httpStatusError marks a received-but-unsuccessful response as permanent.
type httpStatusError struct{ code int }

func (e *httpStatusError) Error() string { return fmt.Sprintf("http status %d", e.code) }

var errProbeTimeout = errors.New("probe timed out")

// CheckAll probes every endpoint concurrently and waits for all of them.
//
// concurrency caps how many probes are in flight; zero or negative launches
// them all at once. A probe's slot is released as soon as its outcome is
// recorded. One failing, slow or panicking probe never affects another.
//
// report.All holds exactly one outcome per endpoint and, like
// report.Working, is in completion order rather than input order.
func (c *Coordinator) CheckAll(ctx context.Context, endpoints []model.ProxyEndpoint, timeout time.Duration, concurrency int) model.ProbeReport {
	report := model.ProbeReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Working:   make([]model.ProxyEndpoint, 0),
		All:       make([]model.ProbeOutcome, 0, len(endpoints)),
	}
	if c.Target != nil {
		report.Target = c.Target.String()
	}

	log := c.logger().With(slog.String("run_id", report.RunID))
	log.Info("batch started",
		slog.Int("proxies", len(endpoints)),
		slog.Duration("timeout", timeout),
		slog.Int("concurrency", concurrency),
		slog.String("target", report.Target),
	)

	resultsCh := make(chan model.ProbeOutcome, len(endpoints))
	wg := &sync.WaitGroup{}

	var sem chan struct{}
	if concurrency > 0 {
		sem = make(chan struct{}, concurrency)
	}

	for _, ep := range endpoints {
		ep := ep
		wg.Add(1)
		go func() {
			defer wg.Done()

			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}

			resultsCh <- c.checkOneWithRetries(ctx, ep, timeout)
		}()
	}

	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	for o := range resultsCh {
		report.All = append(report.All, o)
		if o.Working() {
			report.Working = append(report.Working, o.Endpoint)
		}

		log.Debug("proxy checked",
			slog.String("endpoint", o.Endpoint.String()),
			slog.String("status", o.Status.String()),
			slog.String("detail", o.Detail()),
			slog.Int("attempts", o.Attempts),
		)
		if c.OnOutcome != nil {
			c.OnOutcome(o)
		}
	}

	report.Duration = time.Since(report.StartedAt)
	log.Info("batch finished",
		slog.Duration("took", report.Duration),
		slog.Int("working", len(report.Working)),
		slog.Int("total", len(report.All)),
	)
	return report
}

// checkOneWithRetries runs the probe under the retry policy and returns the
// last attempt's outcome.
func (c *Coordinator) checkOneWithRetries(ctx context.Context, ep model.ProxyEndpoint, timeout time.Duration) model.ProbeOutcome {
	policy := c.Retry
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	policy.Permanent = append([]retry.Predicate{retry.As[*httpStatusError]()}, policy.Permanent...)

	var last model.ProbeOutcome
	attempts, _ := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		last = c.checkOneProxyOnce(ctx, ep, timeout)
		return outcomeErr(last)
	})
	last.Attempts = attempts
	return last
}

// checkOneProxyOnce shields the batch from a probe that panics.
func (c *Coordinator) checkOneProxyOnce(ctx context.Context, ep model.ProxyEndpoint, timeout time.Duration) (out model.ProbeOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = model.ProbeOutcome{
				Status:  model.StatusNetworkError,
				Message: fmt.Sprintf("probe panic: %v", r),
			}
		}
		out.Endpoint = ep
		out = normalizeOutcome(out)
	}()

	return c.Prober.Probe(ctx, ep, c.Target, timeout)
}

// normalizeOutcome rejects outcomes a Probe left incomplete. Working
// requires the IP the echo service saw.
func normalizeOutcome(o model.ProbeOutcome) model.ProbeOutcome {
	switch {
	case o.Status == model.StatusUnknown:
		return model.ProbeOutcome{Endpoint: o.Endpoint, Status: model.StatusNetworkError, Message: "probe returned no status"}
	case o.Status == model.StatusWorking && o.ObservedIP == "":
		return model.ProbeOutcome{Endpoint: o.Endpoint, Status: model.StatusNetworkError, Message: "working outcome without observed ip"}
	}
	return o
}

func outcomeErr(o model.ProbeOutcome) error {
	switch o.Status {
	case model.StatusWorking:
		return nil
	case model.StatusHTTPError:
		return &httpStatusError{code: o.HTTPCode}
	case model.StatusTimeout:
		return errProbeTimeout
	default:
		return errors.New(o.Message)
	}
}

func (c *Coordinator) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
