package storage

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"
)

// AutoVacuum drives a background goroutine that vacuums every table
// when the number of RecordWrite calls (one per committed transaction)
// since the last sweep crosses a watermark. Grounded on tinySQL's job Scheduler
// (internal/storage/scheduler.go), which already wraps
// github.com/robfig/cron/v3 for background work; repurposed here for
// the single concern spec §9 leaves to the implementer ("a background
// thread driven by version-count watermarks is acceptable").
type AutoVacuum struct {
	catalog   *Catalog
	txns      *TransactionManager
	threshold int64

	mu       sync.Mutex
	written  atomic.Int64
	cronImpl *cron.Cron
	entryID  cron.EntryID
}

// NewAutoVacuum returns an AutoVacuum whose watermark check runs on
// every RecordWrite call; a threshold <= 0 becomes 1000. No cron
// schedule runs until StartSchedule is called.
func NewAutoVacuum(catalog *Catalog, txns *TransactionManager, threshold int64) *AutoVacuum {
	if threshold <= 0 {
		threshold = 1000
	}
	return &AutoVacuum{
		catalog:   catalog,
		txns:      txns,
		threshold: threshold,
		cronImpl:  cron.New(),
	}
}

// RecordWrite is called by the executor once per committed transaction,
// implicit or explicit (spec §9: "auto-VACUUM trigger... after auto-commit"). Once the
// running total crosses the threshold, it runs a sweep synchronously on
// the caller's goroutine and resets the counter — simple and sufficient
// for the embeddable, single-process target this engine has.
func (av *AutoVacuum) RecordWrite() {
	if av.written.Add(1) >= av.threshold {
		av.written.Store(0)
		av.Sweep()
	}
}

// Sweep vacuums every table using the transaction manager's current
// watermark.
func (av *AutoVacuum) Sweep() map[string]VacuumStats {
	watermark := av.txns.VacuumWatermark()
	out := make(map[string]VacuumStats)
	for name, t := range av.catalog.AllTables() {
		out[name] = t.Vacuum(watermark, av.catalog.CLog)
	}
	return out
}

// StartSchedule additionally runs a sweep on the given cron spec (e.g.
// "@every 1m"), independent of the write-count watermark.
func (av *AutoVacuum) StartSchedule(spec string) error {
	av.mu.Lock()
	defer av.mu.Unlock()
	id, err := av.cronImpl.AddFunc(spec, func() {
		stats := av.Sweep()
		total := 0
		for _, s := range stats {
			total += s.VersionsRemoved
		}
		if total > 0 {
			log.Printf("autovacuum: removed %d versions across %d tables", total, len(stats))
		}
	})
	if err != nil {
		return err
	}
	av.entryID = id
	av.cronImpl.Start()
	return nil
}

func (av *AutoVacuum) Stop() {
	av.mu.Lock()
	defer av.mu.Unlock()
	if av.cronImpl != nil {
		av.cronImpl.Stop()
	}
}
