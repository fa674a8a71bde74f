package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/cam3ron2/devboard/internal/report"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultMemoryTTL is the memory-tier freshness window.
	DefaultMemoryTTL = 5 * time.Minute
	// DefaultSnapshotTTL is the snapshot-tier freshness window.
	DefaultSnapshotTTL = time.Hour
)

// Source recomputes reports on cache misses. The merger is stateless with
// respect to caching and always recomputes when invoked.
type Source interface {
	AggregateStats(ctx context.Context, period report.Period, anchor time.Time) (*report.AggregatedReport, error)
	AggregateRepo(ctx context.Context, fullName string, period report.Period, anchor time.Time) (*report.AggregatedReport, error)
}

// Config configures the cache manager TTLs and clock.
type Config struct {
	MemoryTTL   time.Duration
	SnapshotTTL time.Duration
	Now         func() time.Time
}

// Manager owns both cache tiers and wraps the source behind them. At most one
// computation per key is in flight; concurrent requesters share the result.
type Manager struct {
	source    Source
	memory    *MemoryCache
	snapshots SnapshotStore
	ttl       time.Duration
	now       func() time.Time
	logger    *zap.Logger
	flight    singleflight.Group

	// Observe, when set, receives (tier, outcome) pairs for cache metrics.
	Observe func(tier, outcome string)
}

// NewManager creates the cache manager over a snapshot store and source.
func NewManager(source Source, snapshots SnapshotStore, logger *zap.Logger, cfg Config) *Manager {
	if cfg.MemoryTTL <= 0 {
		cfg.MemoryTTL = DefaultMemoryTTL
	}
	if cfg.SnapshotTTL <= 0 {
		cfg.SnapshotTTL = DefaultSnapshotTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		source:    source,
		memory:    NewMemoryCache(cfg.MemoryTTL, cfg.Now),
		snapshots: snapshots,
		ttl:       cfg.SnapshotTTL,
		now:       cfg.Now,
		logger:    logger,
	}
}

// Get returns the report for key, consulting memory then snapshots before
// recomputing. forceRefresh skips both tiers and writes through.
func (m *Manager) Get(ctx context.Context, key Key, forceRefresh bool) (*report.AggregatedReport, error) {
	if !forceRefresh {
		if rep, ok := m.memory.Get(key); ok {
			m.observe("memory", "hit")
			return rep, nil
		}
		m.observe("memory", "miss")
	}

	// Forced recomputations get their own flight key so they can never be
	// handed a snapshot-served result from a concurrent non-forced lookup.
	flightKey := key.String()
	if forceRefresh {
		flightKey += "|refresh"
	}
	value, err, _ := m.flight.Do(flightKey, func() (any, error) {
		if !forceRefresh {
			if rep, ok := m.loadFreshSnapshot(ctx, key); ok {
				m.observe("snapshot", "hit")
				m.memory.Put(key, rep)
				return rep, nil
			}
			m.observe("snapshot", "miss")
		}
		rep, err := m.compute(ctx, key)
		if err != nil {
			return nil, err
		}
		m.memory.Put(key, rep)
		if err := m.snapshots.Save(ctx, key, rep); err != nil {
			m.logger.Warn("snapshot write failed", zap.String("key", key.String()), zap.Error(err))
		}
		return rep, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*report.AggregatedReport), nil
}

// CachedOnly returns the report for key from the cache tiers without ever
// invoking the source.
func (m *Manager) CachedOnly(ctx context.Context, key Key) (*report.AggregatedReport, bool) {
	if rep, ok := m.memory.Get(key); ok {
		return rep, true
	}
	if rep, ok := m.loadFreshSnapshot(ctx, key); ok {
		m.memory.Put(key, rep)
		return rep, true
	}
	return nil, false
}

// ClearMemory evicts the memory tier and reports how many entries dropped.
func (m *Manager) ClearMemory() int {
	return m.memory.Clear()
}

// ClearAll evicts the memory tier and deletes every persisted snapshot.
func (m *Manager) ClearAll(ctx context.Context) (memoryEvicted, snapshotsRemoved int, err error) {
	memoryEvicted = m.memory.Clear()
	snapshotsRemoved, err = m.snapshots.Clear(ctx)
	return memoryEvicted, snapshotsRemoved, err
}

// PeriodOutcome is one period's startup reconciliation result.
type PeriodOutcome struct {
	Period    report.Period
	Refreshed bool
	Err       error
}

// ReconcileStartup regenerates stale or missing "today" snapshots for every
// period. Regenerations run concurrently and one period's failure never
// aborts the others.
func (m *Manager) ReconcileStartup(ctx context.Context) []PeriodOutcome {
	periods := report.Periods()
	outcomes := make([]PeriodOutcome, len(periods))

	done := make(chan struct{})
	for i, period := range periods {
		go func() {
			defer func() { done <- struct{}{} }()
			key := MultiKey(period, m.now())
			outcomes[i].Period = period
			if _, ok := m.loadFreshSnapshot(ctx, key); ok {
				return
			}
			if _, err := m.Get(ctx, key, true); err != nil {
				outcomes[i].Err = err
				return
			}
			outcomes[i].Refreshed = true
		}()
	}
	for range periods {
		<-done
	}
	return outcomes
}

// AuthorDetail resolves one author's stats per period, preferring cached
// reports and computing only the periods that are not cached.
func (m *Manager) AuthorDetail(ctx context.Context, handle string, anchor time.Time) (map[report.Period]report.AuthorStats, bool, error) {
	if anchor.IsZero() {
		anchor = m.now()
	}

	detail := make(map[report.Period]report.AuthorStats, len(report.Periods()))
	found := false
	for _, period := range report.Periods() {
		key := MultiKey(period, anchor)
		rep, ok := m.CachedOnly(ctx, key)
		if !ok {
			var err error
			rep, err = m.Get(ctx, key, false)
			if err != nil {
				return nil, false, fmt.Errorf("resolve %s report: %w", period, err)
			}
		}
		stats, present := rep.Aggregated[handle]
		if !present {
			stats = report.AuthorStats{Identity: handle}
		} else {
			found = true
		}
		detail[period] = stats
	}
	return detail, found, nil
}

func (m *Manager) loadFreshSnapshot(ctx context.Context, key Key) (*report.AggregatedReport, bool) {
	rep, ok, err := m.snapshots.Load(ctx, key)
	if err != nil {
		m.logger.Warn("snapshot read failed", zap.String("key", key.String()), zap.Error(err))
		return nil, false
	}
	if !ok || rep == nil {
		return nil, false
	}
	// Staleness comes from the generation timestamp embedded at write time,
	// so copied files or storage clock skew cannot fake freshness.
	if m.now().Sub(rep.GeneratedAt) >= m.ttl {
		return nil, false
	}
	return rep, true
}

func (m *Manager) compute(ctx context.Context, key Key) (*report.AggregatedReport, error) {
	anchor, err := time.Parse(report.DateFormat, key.Date)
	if err != nil {
		return nil, fmt.Errorf("parse cache key date: %w", err)
	}
	if key.Scope == ScopeSingle {
		return m.source.AggregateRepo(ctx, key.Repo, key.Period, anchor)
	}
	return m.source.AggregateStats(ctx, key.Period, anchor)
}

func (m *Manager) observe(tier, outcome string) {
	if m.Observe != nil {
		m.Observe(tier, outcome)
	}
}
