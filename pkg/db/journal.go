package db

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

const (
	journalLogPrefix        = "db:journal"
	defaultJournalQueueSize = 256
	defaultDrainTimeout     = 5 * time.Second
)

// Store is the part of Repository the journal writes to.
type Store interface {
	InsertStatusEvent(ctx context.Context, params InsertStatusEventParams) (*StatusEventRow, error)
	InsertLifecycle(ctx context.Context, params InsertLifecycleParams) error
}

type journalRecord struct {
	status    *InsertStatusEventParams
	lifecycle *InsertLifecycleParams
}

// Journal queues records from dispatch-path listeners and writes them to the
// store from Run, so listeners never wait on the database. When the queue is
// full records are dropped and counted.
type Journal struct {
	store        Store
	queue        chan journalRecord
	drainTimeout time.Duration
	written      atomic.Uint64
	dropped      atomic.Uint64
	failed       atomic.Uint64
}

// NewJournal creates a Journal. queueSize <= 0 uses the default.
func NewJournal(store Store, queueSize int) *Journal {
	if queueSize <= 0 {
		queueSize = defaultJournalQueueSize
	}
	return &Journal{store: store, queue: make(chan journalRecord, queueSize), drainTimeout: defaultDrainTimeout}
}

// RecordStatus queues a status event.
func (j *Journal) RecordStatus(params InsertStatusEventParams) bool {
	return j.enqueue(journalRecord{status: &params})
}

// RecordLifecycle queues a registration or release.
func (j *Journal) RecordLifecycle(params InsertLifecycleParams) bool {
	return j.enqueue(journalRecord{lifecycle: &params})
}

func (j *Journal) enqueue(rec journalRecord) bool {
	select {
	case j.queue <- rec:
		return true
	default:
		if j.dropped.Add(1) == 1 {
			slog.Warn(fmt.Sprintf("%s - queue full, dropping records", journalLogPrefix))
		}
		return false
	}
}

// Run writes queued records until ctx is done, then drains what is already
// queued within a bounded shutdown window.
func (j *Journal) Run(ctx context.Context) error {
	slog.Info(fmt.Sprintf("%s - Journal writer started", journalLogPrefix))
	for {
		select {
		case rec := <-j.queue:
			j.write(ctx, rec)
		case <-ctx.Done():
			j.drain()
			slog.Info(fmt.Sprintf("%s - Journal writer stopped (written=%d dropped=%d failed=%d)",
				journalLogPrefix, j.written.Load(), j.dropped.Load(), j.failed.Load()))
			return nil
		}
	}
}

// drain writes the queued records until the queue is empty or the drain
// timeout expires. Records still queued at the deadline count as dropped.
func (j *Journal) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), j.drainTimeout)
	defer cancel()
	for {
		if ctx.Err() != nil {
			if n := len(j.queue); n > 0 {
				j.dropped.Add(uint64(n))
				slog.Warn(fmt.Sprintf("%s - drain timed out, dropping %d queued records", journalLogPrefix, n))
			}
			return
		}
		select {
		case rec := <-j.queue:
			j.write(ctx, rec)
		default:
			return
		}
	}
}

func (j *Journal) write(ctx context.Context, rec journalRecord) {
	var err error
	switch {
	case rec.status != nil:
		_, err = j.store.InsertStatusEvent(ctx, *rec.status)
	case rec.lifecycle != nil:
		err = j.store.InsertLifecycle(ctx, *rec.lifecycle)
	}
	if err != nil {
		j.failed.Add(1)
		slog.Error(fmt.Sprintf("%s - write failed: %v", journalLogPrefix, err))
		return
	}
	j.written.Add(1)
}

// Stats reports written, dropped and failed record counts.
func (j *Journal) Stats() (written, dropped, failed uint64) {
	return j.written.Load(), j.dropped.Load(), j.failed.Load()
}
