// Package aggregate maintains the denormalized reporting tables. Each
// refresh recomputes a bounded month window from the ledger and swaps the
// affected partitions atomically, so readers always see a complete
// generation.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/domain"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/logger"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/metrics"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/store"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/store/schema"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/verify"
)

// Config holds configuration for the aggregate maintainer
type Config struct {
	Interval   time.Duration // time between scheduled refreshes
	CycleCap   int           // resubmission cycles itemized per claim
	MonthsBack int           // month partitions recomputed per refresh
	SampleSize int           // claims spot-checked after each refresh
}

// Maintainer owns the aggregate tables. Nothing else writes them.
type Maintainer struct {
	config   Config
	store    store.Store
	verifier *verify.Verifier
	entropy  *ulid.MonotonicEntropy

	refreshing atomic.Bool
	running    atomic.Bool
	triggerCh  chan struct{}
	stopChan   chan struct{}
	stoppedCh  chan struct{}
}

// NewMaintainer creates an aggregate maintainer
func NewMaintainer(config Config, st store.Store, verifier *verify.Verifier) *Maintainer {
	if config.MonthsBack < 1 {
		config.MonthsBack = 1
	}
	return &Maintainer{
		config:    config,
		store:     st,
		verifier:  verifier,
		entropy:   ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		triggerCh: make(chan struct{}, 1),
		stopChan:  make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Name returns the maintainer's name for logging
func (m *Maintainer) Name() string {
	return "aggregate-maintainer"
}

// Start runs the refresh loop. Blocks until the context is canceled or
// Stop is called.
func (m *Maintainer) Start(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return fmt.Errorf("maintainer already running")
	}
	defer func() {
		m.running.Store(false)
		close(m.stoppedCh)
	}()

	logger.InfoCtx(ctx, "Starting aggregate maintainer",
		zap.Duration("interval", m.config.Interval),
		zap.Int("cycle_cap", m.config.CycleCap),
		zap.Int("months_back", m.config.MonthsBack))

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.InfoCtx(ctx, "Aggregate maintainer stopping due to context cancellation")
			return nil
		case <-m.stopChan:
			logger.InfoCtx(ctx, "Aggregate maintainer stop requested")
			return nil
		case <-ticker.C:
			m.runRefresh(ctx)
		case <-m.triggerCh:
			m.runRefresh(ctx)
		}
	}
}

// Stop gracefully stops the maintainer
func (m *Maintainer) Stop(ctx context.Context) error {
	if !m.running.CompareAndSwap(true, false) {
		return nil
	}

	close(m.stopChan)

	select {
	case <-m.stoppedCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Trigger requests an immediate refresh. Returns ErrRefreshInFlight when
// one is already running; the caller is expected to surface that rather
// than queue a second run.
func (m *Maintainer) Trigger() error {
	if m.refreshing.Load() {
		return domain.ErrRefreshInFlight
	}
	select {
	case m.triggerCh <- struct{}{}:
		return nil
	default:
		return domain.ErrRefreshInFlight
	}
}

func (m *Maintainer) runRefresh(ctx context.Context) {
	if err := m.Refresh(ctx); err != nil {
		// Another process winning the refresh lock is routine on a
		// scheduled tick, not an error
		if errors.Is(err, domain.ErrRefreshInFlight) {
			logger.InfoCtx(ctx, "Skipping refresh, another process holds the lock")
			return
		}
		if ctx.Err() == nil {
			logger.ErrorCtx(ctx, err)
		}
	}
}

// Refresh recomputes and republishes every aggregate target for the
// configured month window. Single-flight across processes: a concurrent
// call, local or from another maintainer sharing the database, returns
// ErrRefreshInFlight. Cancellation is honored between targets; an already
// published target stays published.
func (m *Maintainer) Refresh(ctx context.Context) error {
	if !m.refreshing.CompareAndSwap(false, true) {
		return domain.ErrRefreshInFlight
	}
	defer m.refreshing.Store(false)

	release, ok, err := m.store.AcquireRefreshLock(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire refresh lock: %w", err)
	}
	if !ok {
		return domain.ErrRefreshInFlight
	}
	defer release()

	months := monthWindow(time.Now().UTC(), m.config.MonthsBack)
	partition := months[0]
	if len(months) > 1 {
		partition = months[0] + ".." + months[len(months)-1]
	}

	logger.InfoCtx(ctx, "Starting aggregate refresh",
		zap.Strings("months", months))

	src, err := m.loadSource(ctx, months)
	if err != nil {
		return fmt.Errorf("failed to load aggregate source: %w", err)
	}

	refreshID := ulid.MustNew(ulid.Timestamp(time.Now()), m.entropy).String()

	claimRows := buildClaimSummaries(src, refreshID, m.config.CycleCap)

	targets := []struct {
		name    string
		publish func() (int, error)
	}{
		{
			name: schema.ClaimFinancialSummary{}.TableName(),
			publish: func() (int, error) {
				return len(claimRows), m.store.ReplaceClaimFinancialSummaries(ctx, months, claimRows)
			},
		},
		{
			name: schema.PayerMonthSummary{}.TableName(),
			publish: func() (int, error) {
				rows := buildPayerSummaries(claimRows, refreshID)
				return len(rows), m.store.ReplacePayerMonthSummaries(ctx, months, rows)
			},
		},
		{
			name: schema.ClinicianDenialSummary{}.TableName(),
			publish: func() (int, error) {
				rows := buildClinicianSummaries(src, refreshID)
				return len(rows), m.store.ReplaceClinicianDenialSummaries(ctx, months, rows)
			},
		},
	}

	for _, target := range targets {
		// Cancellation between targets leaves prior targets published and
		// the remainder stale but internally consistent
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.refreshTarget(ctx, target.name, partition, target.publish); err != nil {
			return err
		}
	}

	report, err := m.verifier.VerifyRefresh(ctx, m.config.SampleSize)
	if err != nil {
		return fmt.Errorf("refresh verification errored: %w", err)
	}
	if !report.Passed() {
		logger.WarnCtx(ctx, "Refresh verification failed",
			zap.Any("checks", report.Checks))
		return fmt.Errorf("refresh %s: %w", refreshID, domain.ErrVerificationFailed)
	}

	logger.InfoCtx(ctx, "Aggregate refresh complete",
		zap.String("refresh_id", refreshID),
		zap.Int("claims", len(claimRows)))
	return nil
}

// refreshTarget publishes one aggregate target and records its refresh run
// artifact
func (m *Maintainer) refreshTarget(ctx context.Context, name, partition string, publish func() (int, error)) error {
	run := &schema.RefreshRun{
		ID:        ulid.MustNew(ulid.Timestamp(time.Now()), m.entropy).String(),
		Target:    name,
		Partition: partition,
		Status:    schema.RefreshStatusRunning,
		StartedAt: time.Now(),
	}
	if err := m.store.CreateRefreshRun(ctx, run); err != nil {
		return err
	}

	started := time.Now()
	rowCount, err := publish()
	metrics.RefreshDuration.WithLabelValues(name).Observe(time.Since(started).Seconds())

	if err != nil {
		metrics.RefreshRuns.WithLabelValues(name, "failed").Inc()
		detail := err.Error()
		if finishErr := m.store.FinishRefreshRun(ctx, run.ID, schema.RefreshStatusFailed, 0, &detail); finishErr != nil {
			logger.ErrorCtx(ctx, finishErr, zap.String("refresh_run", run.ID))
		}
		return fmt.Errorf("failed to publish %s: %w", name, err)
	}

	metrics.RefreshRuns.WithLabelValues(name, "succeeded").Inc()
	if err := m.store.FinishRefreshRun(ctx, run.ID, schema.RefreshStatusSucceeded, rowCount, nil); err != nil {
		return err
	}

	logger.InfoCtx(ctx, "Published aggregate target",
		zap.String("target", name),
		zap.String("partition", partition),
		zap.Int("rows", rowCount))
	return nil
}

// loadSource bulk-loads everything the builders need for the window
func (m *Maintainer) loadSource(ctx context.Context, months []string) (*sourceData, error) {
	headers, err := m.store.GetClaimHeadersForMonths(ctx, months)
	if err != nil {
		return nil, err
	}

	claimKeyIDs := make([]int64, 0, len(headers))
	for _, h := range headers {
		claimKeyIDs = append(claimKeyIDs, h.ClaimKeyID)
	}

	events, err := m.store.GetLedgerEventsForClaims(ctx, claimKeyIDs)
	if err != nil {
		return nil, err
	}
	eventsByClaim := make(map[int64][]store.LedgerEvent)
	for _, ev := range events {
		eventsByClaim[ev.ClaimKeyID] = append(eventsByClaim[ev.ClaimKeyID], ev)
	}

	lines, err := m.store.GetRemittanceLinesForClaims(ctx, claimKeyIDs)
	if err != nil {
		return nil, err
	}
	linesByClaim := make(map[int64][]store.RemittanceLineRow)
	for _, line := range lines {
		linesByClaim[line.ClaimKeyID] = append(linesByClaim[line.ClaimKeyID], line)
	}

	activityCounts, err := m.store.GetActivityCountsForClaims(ctx, claimKeyIDs)
	if err != nil {
		return nil, err
	}

	return &sourceData{
		headers:        headers,
		events:         eventsByClaim,
		lines:          linesByClaim,
		activityCounts: activityCounts,
	}, nil
}

// monthWindow returns the last n month partitions ending at now, oldest
// first
func monthWindow(now time.Time, n int) []string {
	months := make([]string, 0, n)
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(n - 1), 0)
	for i := 0; i < n; i++ {
		months = append(months, first.AddDate(0, i, 0).Format("2006-01"))
	}
	return months
}
