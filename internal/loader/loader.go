package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skypro1111/studentmarks-service/internal/client"
	"github.com/skypro1111/studentmarks-service/internal/metrics"
	"github.com/skypro1111/studentmarks-service/internal/protocol"
	"github.com/skypro1111/studentmarks-service/internal/store"
)

// Fetcher performs one mark-list exchange
type Fetcher interface {
	Fetch() ([]protocol.StudentRecord, error)
}

// Loader pulls the mark list from the source and publishes it to the store.
// A failed fetch leaves the store untouched so the API keeps serving the
// previous (or empty) record set.
type Loader struct {
	fetcher  Fetcher
	store    *store.Store
	metrics  *metrics.Metrics
	logger   *slog.Logger
	interval time.Duration

	// Serializes loads so refreshes from the API and the ticker do not interleave
	loadMu sync.Mutex

	mu          sync.RWMutex
	lastAttempt time.Time
	lastSuccess time.Time
	lastError   error
	loads       uint64
	failures    uint64
}

// Status describes the outcome of recent loads
type Status struct {
	LastAttempt time.Time `json:"last_attempt"`
	LastSuccess time.Time `json:"last_success"`
	LastError   string    `json:"last_error,omitempty"`
	Loads       uint64    `json:"loads"`
	Failures    uint64    `json:"failures"`
	Records     int       `json:"records"`
}

// New creates a loader. An interval of zero disables periodic refresh.
func New(fetcher Fetcher, st *store.Store, m *metrics.Metrics, logger *slog.Logger, interval time.Duration) *Loader {
	return &Loader{
		fetcher:  fetcher,
		store:    st,
		metrics:  m,
		logger:   logger,
		interval: interval,
	}
}

// Load performs one fetch and replaces the store contents on success.
// The error is returned for callers that want to report it; it is already logged.
func (l *Loader) Load() error {
	l.loadMu.Lock()
	defer l.loadMu.Unlock()

	start := time.Now()
	records, err := l.fetcher.Fetch()
	duration := time.Since(start)

	l.mu.Lock()
	l.lastAttempt = start
	l.loads++
	if err != nil {
		l.failures++
	} else {
		l.lastSuccess = start
	}
	l.lastError = err
	l.mu.Unlock()

	if err != nil {
		l.metrics.RecordFetch(resultLabel(err), duration.Seconds(), 0, float64(start.Unix()))
		l.logger.Error("Failed to fetch mark list, keeping current records",
			slog.String("error", err.Error()),
			slog.Duration("duration", duration),
			slog.Int("current_records", l.store.Len()),
		)
		return fmt.Errorf("fetch mark list: %w", err)
	}

	l.store.Replace(records)
	l.metrics.RecordFetch(metrics.ResultSuccess, duration.Seconds(), len(records), float64(start.Unix()))
	l.metrics.SetStoredRecords(l.store.Len())

	l.logger.Info("Mark list loaded",
		slog.Int("records", len(records)),
		slog.Duration("duration", duration),
	)

	return nil
}

// Run reloads the mark list every interval until ctx is cancelled.
// It returns immediately when periodic refresh is disabled.
func (l *Loader) Run(ctx context.Context) {
	if l.interval <= 0 {
		return
	}

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.logger.Info("Periodic refresh started", slog.Duration("interval", l.interval))

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Periodic refresh stopped")
			return
		case <-ticker.C:
			l.Load()
		}
	}
}

// Status returns a summary of recent loads
func (l *Loader) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()

	status := Status{
		LastAttempt: l.lastAttempt,
		LastSuccess: l.lastSuccess,
		Loads:       l.loads,
		Failures:    l.failures,
		Records:     l.store.Len(),
	}
	if l.lastError != nil {
		status.LastError = l.lastError.Error()
	}
	return status
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, client.ErrTimeout):
		return metrics.ResultTimeout
	case errors.Is(err, protocol.ErrMalformedResponse):
		return metrics.ResultMalformed
	default:
		return metrics.ResultTransport
	}
}
