package checker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strings"
	"time"

	"github.com/August26/proxyprobe/internal/model"
)

// DefaultTarget echoes the caller's address as {"origin": "<ip>"}.
const DefaultTarget = "https://httpbin.org/ip"

const (
	userAgent   = "proxyprobe/1.0"
	maxEchoBody = 64 << 10
)

// errInvalidBody is reported when a 200 response carries no usable origin.
var errInvalidBody = errors.New("invalid response body")

// echoResponse matches the fields we care about from httpbin-style echo
// endpoints. Headers is only present on endpoints such as /get and its shape
// varies between services, so it is decoded separately by echoHeaders.
type echoResponse struct {
	Origin  string          `json:"origin"`
	Headers json.RawMessage `json:"headers"`
}

// echoHeaders flattens a reported header object into one string per header.
// List values are joined with ", ". It returns nil when nothing usable was
// reported.
func echoHeaders(raw json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil
	}

	out := make(map[string]string, len(obj))
	for k, v := range obj {
		switch v := v.(type) {
		case string:
			out[k] = v
		case []any:
			parts := make([]string, 0, len(v))
			for _, e := range v {
				parts = append(parts, fmt.Sprint(e))
			}
			out[k] = strings.Join(parts, ", ")
		case nil:
			out[k] = ""
		default:
			out[k] = fmt.Sprint(v)
		}
	}
	return out
}

// Prober executes exactly one validation attempt per call. It never returns
// an error: every failure mode is folded into the returned outcome.
type Prober struct {
	// Forward is used for http and https proxies, Tunnel for socks4 and socks5.
	Forward TransportFunc
	Tunnel  TransportFunc

	// Resolver, when set, annotates working outcomes with geo data.
	Resolver model.IPResolver

	// RealIP is our unproxied address, used for anonymity classification.
	RealIP string
}

func NewProber(opts TransportOptions) *Prober {
	return &Prober{
		Forward: opts.Forward,
		Tunnel:  opts.Tunnel,
	}
}

// Probe requests target through ep and classifies the result. Timing starts
// right before the connection attempt and stops once the body is fully read.
func (p *Prober) Probe(ctx context.Context, ep model.ProxyEndpoint, target *url.URL, timeout time.Duration) model.ProbeOutcome {
	out := model.ProbeOutcome{Endpoint: ep, Attempts: 1}

	var build TransportFunc
	switch ep.Scheme {
	case model.SchemeHTTP, model.SchemeHTTPS:
		build = p.Forward
	case model.SchemeSOCKS4, model.SchemeSOCKS5:
		build = p.Tunnel
	}
	if build == nil {
		return networkError(out, fmt.Sprintf("no transport for scheme %q", ep.Scheme))
	}

	rt, err := build(ep)
	if err != nil {
		return networkError(out, "build transport: "+err.Error())
	}
	if ci, ok := rt.(interface{ CloseIdleConnections() }); ok {
		defer ci.CloseIdleConnections()
	}

	client := &http.Client{
		Transport: rt,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var connectAt, firstByteAt time.Time
	trace := &httptrace.ClientTrace{
		GotConn: func(httptrace.GotConnInfo) {
			connectAt = time.Now()
		},
		GotFirstResponseByte: func() {
			firstByteAt = time.Now()
		},
	}

	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), http.MethodGet, target.String(), nil)
	if err != nil {
		return networkError(out, err.Error())
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return classifyError(ctx, out, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		out.Status = model.StatusHTTPError
		out.HTTPCode = resp.StatusCode
		return out
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxEchoBody))
	elapsed := time.Since(start)
	if err != nil {
		return classifyError(ctx, out, err)
	}
	if elapsed > timeout {
		out.Status = model.StatusTimeout
		return out
	}

	var echo echoResponse
	if err := json.Unmarshal(body, &echo); err != nil {
		return networkError(out, errInvalidBody.Error())
	}
	ip := firstIPToken(echo.Origin)
	if ip == "" {
		return networkError(out, errInvalidBody.Error())
	}

	out.Status = model.StatusWorking
	out.Latency = elapsed
	out.ObservedIP = ip
	if !connectAt.IsZero() {
		out.ConnectLatency = connectAt.Sub(start)
	}
	if !firstByteAt.IsZero() {
		out.FirstByteLatency = firstByteAt.Sub(start)
	}
	out.Anonymity = DetermineAnonymity(AnonymityInput{
		Origin:          echo.Origin,
		RealIP:          p.RealIP,
		HeadersObserved: echoHeaders(echo.Headers),
	})

	if p.Resolver != nil {
		if info, err := p.Resolver.Lookup(ip); err == nil {
			out.Geo = info
		}
	}

	return out
}

func networkError(out model.ProbeOutcome, msg string) model.ProbeOutcome {
	out.Status = model.StatusNetworkError
	out.Message = msg
	return out
}

// classifyError maps a transport or body-read failure to Timeout or
// NetworkError.
func classifyError(ctx context.Context, out model.ProbeOutcome, err error) model.ProbeOutcome {
	if errors.Is(ctx.Err(), context.Canceled) {
		return networkError(out, context.Canceled.Error())
	}
	if isTimeoutErr(ctx, err) {
		out.Status = model.StatusTimeout
		return out
	}
	return networkError(out, causeMessage(err))
}

func isTimeoutErr(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// causeMessage strips the "Get <url>:" prefix http.Client adds.
func causeMessage(err error) string {
	var ue *url.Error
	if errors.As(err, &ue) && ue.Err != nil {
		return ue.Err.Error()
	}
	return err.Error()
}

// DirectOrigin asks target for our own address without any proxy.
func DirectOrigin(ctx context.Context, target *url.URL, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tr := &http.Transport{
		DialContext:       (&net.Dialer{}).DialContext,
		DisableKeepAlives: true,
	}
	defer tr.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := (&http.Client{Transport: tr}).Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("direct request: unexpected status %s", resp.Status)
	}

	var echo echoResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxEchoBody)).Decode(&echo); err != nil {
		return "", fmt.Errorf("direct request: %w", err)
	}
	ip := firstIPToken(echo.Origin)
	if ip == "" {
		return "", fmt.Errorf("direct request: %w", errInvalidBody)
	}
	return ip, nil
}
