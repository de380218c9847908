// internal/project/autosave.go
package project

import (
	"context"
	"sync"
	"time"

	"project-desk/internal/common/logger"
	"project-desk/internal/common/metrics"
)

// SchedulerState is the autosave cycle position.
type SchedulerState int

const (
	StateIdle SchedulerState = iota
	StateArmed
	StateSaving
)

func (s SchedulerState) String() string {
	switch s {
	case StateArmed:
		return "armed"
	case StateSaving:
		return "saving"
	default:
		return "idle"
	}
}

const (
	DefaultQuietPeriod = 2 * time.Second
	DefaultSaveTimeout = 15 * time.Second
)

// SaveFunc snapshots the record and sends it. It is only ever called with
// the writer lane held.
type SaveFunc func(ctx context.Context) error

// SavedFunc runs after a successful save with the edit generation the
// snapshot covered.
type SavedFunc func(gen uint64)

// Scheduler debounces edits into full-record saves. At most one save runs
// at a time; manual saves queue behind automatic ones and vice versa.
type Scheduler struct {
	quiet       time.Duration
	saveTimeout time.Duration
	save        SaveFunc
	onSaved     SavedFunc
	logger      logger.Logger

	// lane serializes every payload write for the record.
	lane sync.Mutex

	mu        sync.Mutex
	timer     *time.Timer
	armSeq    uint64
	gen       uint64
	savedGen  uint64
	saving    bool
	stopped   bool
	lastSaved time.Time
}

func NewScheduler(quiet, saveTimeout time.Duration, save SaveFunc, onSaved SavedFunc, log logger.Logger) *Scheduler {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	if saveTimeout <= 0 {
		saveTimeout = DefaultSaveTimeout
	}
	if onSaved == nil {
		onSaved = func(uint64) {}
	}
	return &Scheduler{
		quiet:       quiet,
		saveTimeout: saveTimeout,
		save:        save,
		onSaved:     onSaved,
		logger:      logger.ForComponent(log, "autosave"),
	}
}

// Notify records an edit and restarts the quiet period. Edits made while a
// save is in flight arm a new cycle once it settles.
func (s *Scheduler) Notify() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.gen++
	if s.saving {
		return
	}
	s.armLocked()
}

func (s *Scheduler) armLocked() {
	if s.timer != nil {
		s.timer.Stop()
	} else {
		metrics.AutosavePending.Inc()
	}
	s.armSeq++
	seq := s.armSeq
	s.timer = time.AfterFunc(s.quiet, func() { s.fire(seq) })
}

func (s *Scheduler) disarmLocked() {
	if s.timer == nil {
		return
	}
	s.timer.Stop()
	s.timer = nil
	metrics.AutosavePending.Dec()
}

func (s *Scheduler) fire(seq uint64) {
	s.mu.Lock()
	// A timer re-armed after it already fired leaves a stale callback behind.
	if s.timer == nil || s.stopped || seq != s.armSeq {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	metrics.AutosavePending.Dec()
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.saveTimeout)
	defer cancel()

	if err := s.run(ctx, metrics.TriggerAuto); err != nil {
		s.logger.Warn("Autosave failed", map[string]interface{}{"error": err})
	}
}

// SaveNow cancels any pending cycle and saves synchronously, returning the
// failure to the caller.
func (s *Scheduler) SaveNow(ctx context.Context) error {
	s.mu.Lock()
	s.disarmLocked()
	s.mu.Unlock()

	return s.run(ctx, metrics.TriggerManual)
}

func (s *Scheduler) run(ctx context.Context, trigger string) error {
	s.lane.Lock()
	defer s.lane.Unlock()

	s.mu.Lock()
	if trigger == metrics.TriggerAuto && s.gen == s.savedGen {
		s.mu.Unlock()
		metrics.ProjectSaves.WithLabelValues(trigger, metrics.ResultSkipped).Inc()
		s.logger.Debug("Autosave skipped, nothing new", nil)
		return nil
	}
	startGen := s.gen
	s.saving = true
	s.mu.Unlock()

	start := time.Now()
	err := s.save(ctx)
	metrics.ProjectSaveDuration.WithLabelValues(trigger).Observe(time.Since(start).Seconds())

	s.mu.Lock()
	s.saving = false
	if err == nil {
		if startGen > s.savedGen {
			s.savedGen = startGen
		}
		s.lastSaved = time.Now()
	}
	if s.gen > startGen && !s.stopped {
		s.armLocked()
	}
	s.mu.Unlock()

	if err != nil {
		metrics.ProjectSaves.WithLabelValues(trigger, metrics.ResultFailure).Inc()
		return err
	}
	metrics.ProjectSaves.WithLabelValues(trigger, metrics.ResultSuccess).Inc()
	s.logger.Debug("Project saved", map[string]interface{}{
		"trigger":  trigger,
		"duration": time.Since(start).String(),
	})
	s.onSaved(startGen)
	return nil
}

// Exclusive runs fn inside the writer lane, after any in-flight save.
func (s *Scheduler) Exclusive(fn func() error) error {
	s.lane.Lock()
	defer s.lane.Unlock()
	return fn()
}

// Generation is the number of edits seen so far.
func (s *Scheduler) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

func (s *Scheduler) State() SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.saving:
		return StateSaving
	case s.timer != nil:
		return StateArmed
	default:
		return StateIdle
	}
}

// LastSaved is the time of the last successful save, zero if none.
func (s *Scheduler) LastSaved() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSaved
}

// Stop cancels the armed timer. A save already in flight is left to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.disarmLocked()
}
