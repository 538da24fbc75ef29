package model

import (
	"fmt"
	"time"
)

// Status classifies the outcome of one probe. The zero value is
// StatusUnknown so an outcome nobody filled in never counts as working.
type Status int

const (
	StatusUnknown Status = iota
	StatusWorking
	StatusHTTPError
	StatusNetworkError
	StatusTimeout
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusWorking:
		return "working"
	case StatusHTTPError:
		return "http_error"
	case StatusNetworkError:
		return "network_error"
	case StatusTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Anonymity levels reported for working proxies.
const (
	AnonymityUnknown     = "unknown"
	AnonymityTransparent = "transparent"
	AnonymityAnonymous   = "anonymous"
	AnonymityElite       = "elite"
)

// ProbeOutcome is the result for a single proxy after one coordinator run.
//
// Latency, ObservedIP, the phase timings, Anonymity and Geo are only set when
// Status is StatusWorking. HTTPCode is only set for StatusHTTPError and
// Message only for StatusNetworkError.
type ProbeOutcome struct {
	Endpoint ProxyEndpoint
	Status   Status
	HTTPCode int
	Message  string

	Latency          time.Duration // probe start to full body read
	ConnectLatency   time.Duration // probe start to connection obtained
	FirstByteLatency time.Duration // probe start to first response byte
	ObservedIP       string        // first IP the echo service saw
	Anonymity        string
	Geo              GeoInfo

	Attempts int
}

// Working reports whether the proxy relayed the probe successfully.
func (o ProbeOutcome) Working() bool { return o.Status == StatusWorking }

// Detail is a short human-readable description of the status.
func (o ProbeOutcome) Detail() string {
	switch o.Status {
	case StatusWorking:
		return fmt.Sprintf("ok %dms via %s", o.Latency.Milliseconds(), o.ObservedIP)
	case StatusHTTPError:
		return fmt.Sprintf("http %d", o.HTTPCode)
	case StatusNetworkError:
		return o.Message
	case StatusTimeout:
		return "timeout"
	}
	return o.Status.String()
}

// ProbeReport is the coordinator's output. Working and All are in arrival
// order, which differs between runs; callers must not rely on input order.
type ProbeReport struct {
	RunID     string
	Target    string
	StartedAt time.Time
	Duration  time.Duration
	Working   []ProxyEndpoint
	All       []ProbeOutcome
}

// BatchStats aggregates summary analytics for an entire run.
type BatchStats struct {
	TotalProxies          int     `json:"total_proxies"`
	UniqueProxies         int     `json:"unique_proxies"`
	WorkingProxies        int     `json:"working_proxies"`
	HTTPErrors            int     `json:"http_errors"`
	NetworkErrors         int     `json:"network_errors"`
	Timeouts              int     `json:"timeouts"`
	AvgLatencyMs          float64 `json:"avg_latency_ms"`
	SuccessRatePct        float64 `json:"success_rate_pct"`
	TotalProcessingTimeMs int64   `json:"total_processing_time_ms"`
}
