// Package schedule runs the cron-driven housekeeping the core needs: on a
// configurable schedule the current profile baselines are flushed to the
// persistence boundary.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/Fayeq-qamar/velvet-app-sub002/internal/feature"
)

// Snapshotter provides the current baseline records. Satisfied by
// feature.Profile.
type Snapshotter interface {
	Snapshot() []feature.BaselineRecord
}

// Flusher persists a batch of baseline records. Satisfied by store.Store.
type Flusher interface {
	Flush(ctx context.Context, records []feature.BaselineRecord) error
}

// Scheduler manages cron-based baseline flushes.
type Scheduler struct {
	cron    *cron.Cron
	profile Snapshotter
	sink    Flusher
}

// New creates a scheduler. Cron expressions use the standard 5-field format
// (e.g. "0 * * * *" for hourly on the hour).
func New(profile Snapshotter, sink Flusher) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		profile: profile,
		sink:    sink,
	}
}

// RegisterBaselineFlush schedules baseline persistence at the given cron spec.
func (s *Scheduler) RegisterBaselineFlush(spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		records := s.profile.Snapshot()
		if err := s.sink.Flush(ctx, records); err != nil {
			log.Error().Err(err).Msg("baseline_flush_failed")
			return
		}
		log.Debug().Int("records", len(records)).Msg("baseline_flush_complete")
	})
	if err != nil {
		return fmt.Errorf("registering baseline flush cron %q: %w", spec, err)
	}
	return nil
}

// Start begins executing registered cron jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for running jobs to complete.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Entries returns the number of registered cron entries (for testing).
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
