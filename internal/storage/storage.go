package storage

import (
	"context"
	"errors"
	"time"

	"github.com/August26/proxyprobe/internal/model"
)

// ErrNotFound is returned when a requested run does not exist
var ErrNotFound = errors.New("not found")

// RunSummary is a stored run without its outcomes
type RunSummary struct {
	ID         string
	Target     string
	StartedAt  time.Time
	DurationMs int64
	Total      int
	Working    int
}

// StoredOutcome is one persisted probe outcome
type StoredOutcome struct {
	RunID     string
	Proxy     string
	Scheme    string
	Status    string
	HTTPCode  int
	Error     string
	LatencyMs int64
	IP        string
	Anonymity string
	Geo       model.GeoInfo
	Attempts  int
}

// ReportStore persists coordinator reports
type ReportStore interface {
	SaveReport(ctx context.Context, report model.ProbeReport) error
	GetRun(ctx context.Context, id string) (*RunSummary, error)
	ListOutcomes(ctx context.Context, runID string) ([]StoredOutcome, error)
	Close() error
}
