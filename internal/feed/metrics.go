package feed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Shared across engines: sessions come and go, collectors must not be
// registered per instance.
var (
	mEventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_events_consumed_total", Help: "Change-feed events consumed.",
	}, []string{"op"})
	mInsertsMerged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_inserts_merged_total", Help: "Insert events merged into a store.",
	})
	mDuplicatesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_duplicate_inserts_total", Help: "Insert events dropped because the id was already present.",
	})
	mResolveFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_resolve_failures_total", Help: "Insert events dropped because the joined-record fetch failed.",
	})
	mUpdatesIgnored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_updates_ignored_total", Help: "Update events for ids outside the loaded window.",
	})
	mEventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_events_dropped_total", Help: "Events dropped because a session buffer was full.",
	})
	mBulkLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_bulk_loads_total", Help: "Bulk loads by result.",
	}, []string{"result"})
	mWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_read_state_write_failures_total", Help: "Read-state persistence failures (local state kept).",
	})
	mAlertFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_alert_failures_total", Help: "Alert side-effect failures.",
	})
	mActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feed_active_sessions", Help: "Currently registered feed sessions.",
	})
)
