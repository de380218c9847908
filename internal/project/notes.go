// internal/project/notes.go
package project

import (
	"context"
	"strings"
	"sync"
	"time"

	"project-desk/internal/common/errors"
	"project-desk/internal/common/logger"
	"project-desk/internal/common/metrics"
	"project-desk/internal/models"

	"github.com/google/uuid"
)

// Lane runs fn with exclusive write access to the record's payload.
type Lane func(fn func() error) error

// PayloadWriter replaces the record's payload on the backend.
type PayloadWriter func(ctx context.Context, payload models.Payload) error

// NotesEditor edits the note lists under payload.crm_notes. Every change is
// shown immediately, persisted on its own and rolled back if the write fails.
// Operations on one list run one at a time.
type NotesEditor struct {
	store   *Store
	lane    Lane
	persist PayloadWriter
	logger  logger.Logger

	now   func() time.Time
	newID func() string

	listMu map[models.NoteList]*sync.Mutex
}

func NewNotesEditor(store *Store, lane Lane, persist PayloadWriter, log logger.Logger) *NotesEditor {
	listMu := make(map[models.NoteList]*sync.Mutex, len(models.NoteLists))
	for _, l := range models.NoteLists {
		listMu[l] = &sync.Mutex{}
	}
	return &NotesEditor{
		store:   store,
		lane:    lane,
		persist: persist,
		logger:  logger.ForComponent(log, "notes"),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
		listMu:  listMu,
	}
}

func (e *NotesEditor) lock(list models.NoteList) (func(), error) {
	mu, ok := e.listMu[list]
	if !ok {
		return nil, errors.NewValidationError("list", "unknown note list "+string(list))
	}
	mu.Lock()
	return mu.Unlock, nil
}

// Add prepends a note to list and persists it.
func (e *NotesEditor) Add(ctx context.Context, list models.NoteList, text string) (models.Note, error) {
	if strings.TrimSpace(text) == "" {
		metrics.NoteOperations.WithLabelValues(string(list), "add", metrics.ResultRejected).Inc()
		return models.Note{}, errors.NewValidationError("text", "note text must not be empty")
	}
	unlock, err := e.lock(list)
	if err != nil {
		return models.Note{}, err
	}
	defer unlock()

	note := models.Note{
		ID:        e.newID(),
		Text:      text,
		CreatedAt: e.now(),
	}

	e.store.UpdateNotes(list, func(cur []models.Note) []models.Note {
		return append([]models.Note{note}, cur...)
	})
	err = e.lane(func() error {
		if err := e.write(ctx, list); err != nil {
			e.store.UpdateNotes(list, func(cur []models.Note) []models.Note {
				return withoutNote(cur, note.ID)
			})
			return err
		}
		return nil
	})
	if err != nil {
		metrics.NoteOperations.WithLabelValues(string(list), "add", metrics.ResultFailure).Inc()
		e.logger.Warn("Note add rolled back", map[string]interface{}{
			"projectId": e.store.ID(),
			"list":      string(list),
			"error":     err,
		})
		return models.Note{}, errors.NewSaveFailedError("note", err)
	}

	metrics.NoteOperations.WithLabelValues(string(list), "add", metrics.ResultSuccess).Inc()
	return note, nil
}

// Remove deletes a note by id and persists the list.
func (e *NotesEditor) Remove(ctx context.Context, list models.NoteList, id string) error {
	unlock, err := e.lock(list)
	if err != nil {
		return err
	}
	defer unlock()

	if !containsNote(e.store.Notes(list), id) {
		metrics.NoteOperations.WithLabelValues(string(list), "remove", metrics.ResultRejected).Inc()
		return errors.NewNotFoundError("note", id)
	}

	var snapshot []models.Note
	e.store.UpdateNotes(list, func(cur []models.Note) []models.Note {
		snapshot = cur
		return withoutNote(cur, id)
	})
	err = e.lane(func() error {
		if err := e.write(ctx, list); err != nil {
			e.store.UpdateNotes(list, func([]models.Note) []models.Note { return snapshot })
			return err
		}
		return nil
	})
	if err != nil {
		metrics.NoteOperations.WithLabelValues(string(list), "remove", metrics.ResultFailure).Inc()
		e.logger.Warn("Note remove rolled back", map[string]interface{}{
			"projectId": e.store.ID(),
			"list":      string(list),
			"noteId":    id,
			"error":     err,
		})
		return errors.NewSaveFailedError("note", err)
	}

	metrics.NoteOperations.WithLabelValues(string(list), "remove", metrics.ResultSuccess).Inc()
	return nil
}

// write persists list and commits the payload once the backend accepted it.
func (e *NotesEditor) write(ctx context.Context, list models.NoteList) error {
	payload, err := e.store.NotesPayload(list)
	if err != nil {
		return err
	}
	if err := e.persist(ctx, payload); err != nil {
		return err
	}
	e.store.CommitPayload(payload)
	return nil
}

func containsNote(notes []models.Note, id string) bool {
	for _, n := range notes {
		if n.ID == id {
			return true
		}
	}
	return false
}

func withoutNote(notes []models.Note, id string) []models.Note {
	out := make([]models.Note, 0, len(notes))
	for _, n := range notes {
		if n.ID != id {
			out = append(out, n)
		}
	}
	return out
}
