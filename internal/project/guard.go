// internal/project/guard.go
package project

import (
	"context"
	"sync"

	"project-desk/internal/common/errors"
	"project-desk/internal/common/logger"
	"project-desk/internal/common/metrics"
	"project-desk/internal/files"
	"project-desk/internal/models"
)

// GuardState is the position of the status transition guard.
type GuardState int

const (
	GuardNormal GuardState = iota
	GuardAwaitingConfirmation
)

func (s GuardState) String() string {
	if s == GuardAwaitingConfirmation {
		return "awaiting_confirmation"
	}
	return "normal"
}

// PendingTransition is a guarded status change waiting for the checklist.
type PendingTransition struct {
	Target             string
	ChecklistConfirmed bool
}

// Guard gates the move to completed behind an output artifact check and an
// explicit checklist confirmation. Every other status applies directly.
type Guard struct {
	store   *Store
	counter files.Counter
	logger  logger.Logger

	mu      sync.Mutex
	pending *PendingTransition
}

func NewGuard(store *Store, counter files.Counter, log logger.Logger) *Guard {
	return &Guard{
		store:   store,
		counter: counter,
		logger:  logger.ForComponent(log, "guard"),
	}
}

// Request asks for a status change. It reports whether the change now waits
// for confirmation.
func (g *Guard) Request(ctx context.Context, target string) (bool, error) {
	if !models.IsValidStatus(target) {
		metrics.StatusTransitions.WithLabelValues("invalid", metrics.ResultRejected).Inc()
		return false, errors.NewValidationError(string(FieldStatus), "unknown status "+target)
	}

	if target != models.StatusCompleted {
		if err := g.store.SetField(FieldStatus, target); err != nil {
			return false, err
		}
		g.mu.Lock()
		g.pending = nil
		g.mu.Unlock()
		metrics.StatusTransitions.WithLabelValues(target, metrics.ResultSuccess).Inc()
		return false, nil
	}

	if g.store.Get(FieldStatus) == models.StatusCompleted {
		return false, nil
	}

	projectID := g.store.ID()
	count, err := g.counter.CountOutputs(ctx, projectID)
	if err != nil {
		metrics.StatusTransitions.WithLabelValues(target, metrics.ResultFailure).Inc()
		return false, errors.NewFetchFailedError("output files", err)
	}
	if count == 0 {
		metrics.StatusTransitions.WithLabelValues(target, metrics.ResultRejected).Inc()
		g.logger.Info("Completion blocked, no output files", map[string]interface{}{"projectId": projectID})
		return false, errors.NewPreconditionFailedError("at least one output file is required before completing the project")
	}

	g.mu.Lock()
	g.pending = &PendingTransition{Target: target}
	g.mu.Unlock()

	g.logger.Debug("Completion awaiting confirmation", map[string]interface{}{
		"projectId": projectID,
		"outputs":   count,
	})
	return true, nil
}

// SetChecklistConfirmed flips the checklist toggle of the pending transition.
func (g *Guard) SetChecklistConfirmed(confirmed bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return errors.NewPreconditionFailedError("no status change is awaiting confirmation")
	}
	g.pending.ChecklistConfirmed = confirmed
	return nil
}

// Confirm applies the pending transition together with the QC hand-off.
// Persisting it is the caller's job. Observers run without the guard lock.
func (g *Guard) Confirm() error {
	g.mu.Lock()
	if g.pending == nil {
		g.mu.Unlock()
		return errors.NewPreconditionFailedError("no status change is awaiting confirmation")
	}
	if !g.pending.ChecklistConfirmed {
		g.mu.Unlock()
		return errors.NewValidationError("checklist", "the completion checklist must be confirmed")
	}
	pending := *g.pending
	g.pending = nil
	g.mu.Unlock()

	if err := g.store.SetFields(map[Field]string{
		FieldStatus:   pending.Target,
		FieldQCStatus: models.QCStatusPending,
	}); err != nil {
		g.mu.Lock()
		if g.pending == nil {
			g.pending = &pending
		}
		g.mu.Unlock()
		return err
	}
	metrics.StatusTransitions.WithLabelValues(pending.Target, metrics.ResultSuccess).Inc()
	return nil
}

// Cancel drops the pending transition, if any.
func (g *Guard) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pending = nil
}

func (g *Guard) State() GuardState {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending != nil {
		return GuardAwaitingConfirmation
	}
	return GuardNormal
}

// Pending returns a copy of the pending transition.
func (g *Guard) Pending() (PendingTransition, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return PendingTransition{}, false
	}
	return *g.pending, true
}
