// internal/project/session.go
package project

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"project-desk/internal/backend"
	"project-desk/internal/common/errors"
	"project-desk/internal/common/logger"
	"project-desk/internal/files"
	"project-desk/internal/models"
	"project-desk/internal/notify"
)

// API is the slice of the backend the session talks to.
type API interface {
	GetProject(ctx context.Context, id string) (*models.Project, error)
	PatchProject(ctx context.Context, id string, fields map[string]interface{}) error
	GetCustomer(ctx context.Context, id string) (*models.Customer, error)
}

// Dependencies are the collaborators of a session. Drafts and Notifier may
// be nil; a nil Files falls back to the API when it can count outputs.
type Dependencies struct {
	API      API
	Files    files.Counter
	Drafts   DraftStore
	Notifier notify.Notifier
	Logger   logger.Logger
}

type Options struct {
	QuietPeriod time.Duration
	SaveTimeout time.Duration
}

// Session is one open project record wired to the backend, the draft
// overlay, the autosave scheduler, the status guard and the notes editor.
// It is safe for concurrent use.
type Session struct {
	id       string
	api      API
	drafts   DraftStore
	notifier notify.Notifier
	logger   logger.Logger
	timeout  time.Duration

	store     *Store
	scheduler *Scheduler
	guard     *Guard
	notes     *NotesEditor
	customer  *models.Customer

	// draftMu orders draft writes against the post-save discard.
	draftMu     sync.Mutex
	unsubscribe func()
	closeOnce   sync.Once
}

// Open loads a project, merges any pending draft and starts observing edits.
func Open(ctx context.Context, id string, deps Dependencies, opts Options) (*Session, error) {
	log := logger.ForComponent(deps.Logger, "session").WithFields(map[string]interface{}{"projectId": id})

	if err := ValidateProjectID(id); err != nil {
		return nil, err
	}

	record, err := deps.API.GetProject(ctx, id)
	if err != nil {
		if backend.IsNotFound(err) {
			return nil, errors.NewNotFoundError("project", id)
		}
		return nil, errors.NewFetchFailedError("project", err)
	}

	s := &Session{
		id:       id,
		api:      deps.API,
		drafts:   deps.Drafts,
		notifier: deps.Notifier,
		logger:   log,
		timeout:  opts.SaveTimeout,
		store:    NewStore(),
	}
	if s.drafts == nil {
		s.drafts = noopDrafts{}
	}
	if s.notifier == nil {
		s.notifier = notify.NoopNotifier{}
	}
	if s.timeout <= 0 {
		s.timeout = DefaultSaveTimeout
	}

	if record.CustomerID != "" {
		customer, err := deps.API.GetCustomer(ctx, record.CustomerID)
		if err != nil {
			log.Warn("Customer lookup failed", map[string]interface{}{
				"customerId": record.CustomerID,
				"error":      err,
			})
		} else {
			s.customer = customer
		}
	}

	if err := s.store.Populate(record); err != nil {
		log.Warn("Discarding malformed note collections", map[string]interface{}{"error": err})
	}

	s.scheduler = NewScheduler(opts.QuietPeriod, s.timeout, s.persistAll, s.afterSave, deps.Logger)
	counter := deps.Files
	if counter == nil {
		if c, ok := deps.API.(files.Counter); ok {
			counter = c
		} else {
			counter = noFiles{}
		}
	}
	s.guard = NewGuard(s.store, counter, deps.Logger)
	s.notes = NewNotesEditor(s.store, s.scheduler.Exclusive, s.persistPayload, deps.Logger)

	// A draft that restored something stays until a save confirms it.
	draft := s.drafts.Read(ctx, id)
	applied := s.store.ApplyDraft(draft)
	if len(draft) > 0 && len(applied) == 0 {
		s.drafts.Clear(ctx, id)
	}

	s.unsubscribe = s.store.Subscribe(s.onChange)

	if len(applied) > 0 {
		log.Info("Restored unsaved edits", map[string]interface{}{"fields": len(applied)})
		s.scheduler.Notify()
	}
	log.Debug("Project opened", nil)
	return s, nil
}

func (s *Session) onChange(c Change) {
	if c.Field == "" {
		return
	}
	s.draftMu.Lock()
	defer s.draftMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	s.drafts.Write(ctx, s.id, c.Field, s.store.Get(c.Field))
	s.scheduler.Notify()
}

func (s *Session) afterSave(gen uint64) {
	s.draftMu.Lock()
	defer s.draftMu.Unlock()

	if s.scheduler.Generation() != gen {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	s.drafts.Clear(ctx, s.id)
}

func (s *Session) persistAll(ctx context.Context) error {
	body, err := s.store.PatchBody()
	if err != nil {
		return errors.NewSaveFailedError("project", err)
	}
	if err := s.api.PatchProject(ctx, s.id, body); err != nil {
		return errors.NewSaveFailedError("project", err)
	}
	if payload, ok := body["payload"].(models.Payload); ok {
		s.store.CommitPayload(payload)
	}
	return nil
}

func (s *Session) persistPayload(ctx context.Context, payload models.Payload) error {
	return s.api.PatchProject(ctx, s.id, map[string]interface{}{"payload": payload})
}

func (s *Session) ID() string { return s.id }

// Record returns the project as loaded from the backend.
func (s *Session) Record() models.Project { return s.store.Record() }

// Customer is nil when the lookup failed or the project has none.
func (s *Session) Customer() *models.Customer { return s.customer }

func (s *Session) Field(f Field) string { return s.store.Get(f) }

func (s *Session) Fields() map[Field]string { return s.store.Snapshot() }

func (s *Session) Notes(list models.NoteList) []models.Note { return s.store.Notes(list) }

// Subscribe registers an observer for slot and note list changes.
func (s *Session) Subscribe(obs Observer) func() { return s.store.Subscribe(obs) }

// SetField edits one field. Status changes go through the guard and
// qc_status is reserved for the completion flow.
func (s *Session) SetField(ctx context.Context, name, value string) error {
	f, err := ParseField(name)
	if err != nil {
		return err
	}
	switch f {
	case FieldStatus:
		_, err := s.RequestStatus(ctx, value)
		return err
	case FieldQCStatus:
		return errors.NewValidationError(name, "qc_status is set by the completion flow")
	}
	return s.store.SetField(f, value)
}

// RequestStatus asks for a status change and reports whether it now waits
// for checklist confirmation.
func (s *Session) RequestStatus(ctx context.Context, target string) (bool, error) {
	return s.guard.Request(ctx, target)
}

func (s *Session) SetChecklistConfirmed(confirmed bool) error {
	return s.guard.SetChecklistConfirmed(confirmed)
}

// ConfirmStatus applies the pending completion and saves immediately. A
// failed save is returned and the fields keep their new values.
func (s *Session) ConfirmStatus(ctx context.Context) error {
	if err := s.guard.Confirm(); err != nil {
		return err
	}
	if err := s.scheduler.SaveNow(ctx); err != nil {
		return err
	}

	event := notify.CompletedEvent{
		Event:       notify.EventProjectCompleted,
		ProjectID:   s.id,
		QCStatus:    s.store.Get(FieldQCStatus),
		CompletedAt: time.Now().UTC(),
	}
	if err := s.notifier.ProjectCompleted(ctx, event); err != nil {
		s.logger.Warn("Completion event not published", map[string]interface{}{"error": err})
	}
	s.logger.Info("Project completed", map[string]interface{}{"qcStatus": event.QCStatus})
	return nil
}

func (s *Session) CancelStatus() { s.guard.Cancel() }

// StatusState exposes the guard position and any pending transition.
func (s *Session) StatusState() (GuardState, PendingTransition) {
	p, _ := s.guard.Pending()
	return s.guard.State(), p
}

func (s *Session) AddNote(ctx context.Context, list models.NoteList, text string) (models.Note, error) {
	return s.notes.Add(ctx, list, text)
}

func (s *Session) RemoveNote(ctx context.Context, list models.NoteList, id string) error {
	return s.notes.Remove(ctx, list, id)
}

// Save persists every field now.
func (s *Session) Save(ctx context.Context) error {
	return s.scheduler.SaveNow(ctx)
}

// LastSaved is the time of the last confirmed full save.
func (s *Session) LastSaved() time.Time { return s.scheduler.LastSaved() }

// AutosaveState reports the scheduler position.
func (s *Session) AutosaveState() SchedulerState { return s.scheduler.State() }

// Close stops observing edits and cancels any armed autosave. A save already
// in flight still completes.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		s.scheduler.Stop()
		s.logger.Debug("Project closed", nil)
	})
}

// noFiles stands in when no output listing is wired; completion then fails
// with FETCH_FAILED.
type noFiles struct{}

func (noFiles) CountOutputs(context.Context, string) (int, error) {
	return 0, stderrors.New("no output file listing configured")
}

type noopDrafts struct{}

func (noopDrafts) Read(context.Context, string) map[string]string { return map[string]string{} }
func (noopDrafts) Write(context.Context, string, Field, string)   {}
func (noopDrafts) Clear(context.Context, string)                  {}
