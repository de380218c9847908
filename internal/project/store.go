// internal/project/store.go
package project

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"project-desk/internal/common/errors"
	"project-desk/internal/models"
)

// Change describes one slot update. Exactly one of Field or NoteList is set.
type Change struct {
	Field    Field
	Value    string
	NoteList models.NoteList
}

// Observer receives changes after the store lock is released.
type Observer func(Change)

// Store holds the open record: one slot per editable field, the note lists
// and the payload as last confirmed by the backend.
type Store struct {
	mu     sync.RWMutex
	record models.Project
	slots  map[Field]string
	// payload is the committed server payload. crm_notes in it only changes
	// through a successful note write.
	payload   models.Payload
	notes     map[models.NoteList][]models.Note
	saved     map[models.NoteList][]models.Note
	observers map[int]Observer
	nextObs   int
}

func NewStore() *Store {
	return &Store{
		slots:     make(map[Field]string, len(Fields)),
		payload:   models.Payload{},
		notes:     map[models.NoteList][]models.Note{},
		saved:     map[models.NoteList][]models.Note{},
		observers: map[int]Observer{},
	}
}

// Populate replaces every slot with server data. Observers are not notified.
// A malformed note collection leaves both lists empty and is reported; its
// raw value stays in the payload until a note list is written.
func (s *Store) Populate(p *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record = *p
	s.payload = p.Payload.Clone()
	if s.payload == nil {
		s.payload = models.Payload{}
	}

	credits := ""
	if p.Credits != nil {
		credits = strconv.FormatFloat(*p.Credits, 'f', -1, 64)
	}

	s.slots = map[Field]string{
		FieldStatus:          p.Status,
		FieldCredits:         credits,
		FieldContent:         p.Content,
		FieldOutputText:      payloadString(s.payload, models.PayloadKeyOutputText),
		FieldCustomerNotes:   p.CustomerNotes,
		FieldInternalNotes:   p.InternalNotes,
		FieldDeadline:        p.Deadline,
		FieldAdditionalEmail: p.AdditionalEmail,
		FieldProjectStreet:   p.ProjectStreet,
		FieldProjectZip:      p.ProjectZip,
		FieldProjectCity:     p.ProjectCity,
		FieldProjectCountry:  p.ProjectCountry,
		FieldQCStatus:        p.QCStatus,
	}

	nc, err := models.DecodeNoteCollections(s.payload)
	if err != nil {
		nc, _ = models.DecodeNoteCollections(nil)
	}
	s.notes = map[models.NoteList][]models.Note{
		models.NoteListCustomer: nc.Customer,
		models.NoteListInternal: nc.Internal,
	}
	s.saved = map[models.NoteList][]models.Note{
		models.NoteListCustomer: append([]models.Note(nil), nc.Customer...),
		models.NoteListInternal: append([]models.Note(nil), nc.Internal...),
	}
	return err
}

func payloadString(p models.Payload, key string) string {
	raw, ok := p[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// ApplyDraft overlays draft values onto the slots without notifying
// observers. Unknown fields and values that fail validation are skipped.
// It returns the fields whose value actually changed.
func (s *Store) ApplyDraft(draft map[string]string) []Field {
	s.mu.Lock()
	defer s.mu.Unlock()

	var applied []Field
	for _, f := range Fields {
		v, ok := draft[string(f)]
		if !ok || f == FieldQCStatus {
			continue
		}
		if validateValue(f, v) != nil || s.slots[f] == v {
			continue
		}
		s.slots[f] = v
		applied = append(applied, f)
	}
	return applied
}

func (s *Store) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record.ID
}

// Record returns the record as loaded, including read-only fields.
func (s *Store) Record() models.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record
}

func (s *Store) Get(f Field) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slots[f]
}

// Snapshot copies every slot.
func (s *Store) Snapshot() map[Field]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Field]string, len(s.slots))
	for k, v := range s.slots {
		out[k] = v
	}
	return out
}

// SetField validates and stores one slot. Writing the current value is a
// no-op and notifies nobody.
func (s *Store) SetField(f Field, value string) error {
	return s.SetFields(map[Field]string{f: value})
}

// SetFields applies several slots under a single lock. Either every value
// is stored or none is.
func (s *Store) SetFields(values map[Field]string) error {
	for _, f := range Fields {
		if v, ok := values[f]; ok {
			if err := validateValue(f, v); err != nil {
				return err
			}
		}
	}
	for f := range values {
		if !knownFields[f] {
			return errors.NewValidationError(string(f), "unknown field")
		}
	}

	s.mu.Lock()
	var changes []Change
	for _, f := range Fields {
		v, ok := values[f]
		if !ok || s.slots[f] == v {
			continue
		}
		s.slots[f] = v
		changes = append(changes, Change{Field: f, Value: v})
	}
	observers := s.observerList()
	s.mu.Unlock()

	for _, c := range changes {
		for _, obs := range observers {
			obs(c)
		}
	}
	return nil
}

// Notes returns a copy of one note list, newest first.
func (s *Store) Notes(list models.NoteList) []models.Note {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Note(nil), s.notes[list]...)
}

// UpdateNotes replaces one list with fn's result and notifies observers.
func (s *Store) UpdateNotes(list models.NoteList, fn func([]models.Note) []models.Note) {
	s.mu.Lock()
	current := append([]models.Note(nil), s.notes[list]...)
	next := fn(current)
	if next == nil {
		next = []models.Note{}
	}
	s.notes[list] = next
	observers := s.observerList()
	s.mu.Unlock()

	for _, obs := range observers {
		obs(Change{NoteList: list})
	}
}

// CurrentPayload merges output_text into the committed payload. Keys the
// editor does not own, crm_notes included, are returned unchanged.
func (s *Store) CurrentPayload() (models.Payload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentPayloadLocked()
}

func (s *Store) currentPayloadLocked() (models.Payload, error) {
	out := s.payload.Clone()

	text := s.slots[FieldOutputText]
	if _, had := out[models.PayloadKeyOutputText]; had || text != "" {
		raw, err := json.Marshal(text)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", models.PayloadKeyOutputText, err)
		}
		out[models.PayloadKeyOutputText] = raw
	}
	return out, nil
}

// NotesPayload returns the committed payload with crm_notes rebuilt from the
// current contents of list and the committed contents of every other list.
func (s *Store) NotesPayload(list models.NoteList) (models.Payload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.payload.Clone()
	nc := models.NoteCollections{
		Customer: s.saved[models.NoteListCustomer],
		Internal: s.saved[models.NoteListInternal],
	}
	switch list {
	case models.NoteListCustomer:
		nc.Customer = s.notes[list]
	case models.NoteListInternal:
		nc.Internal = s.notes[list]
	}
	if nc.Customer == nil {
		nc.Customer = []models.Note{}
	}
	if nc.Internal == nil {
		nc.Internal = []models.Note{}
	}
	raw, err := json.Marshal(nc)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", models.PayloadKeyNotes, err)
	}
	out[models.PayloadKeyNotes] = raw
	return out, nil
}

// CommitPayload records p as the payload the backend now holds.
func (s *Store) CommitPayload(p models.Payload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.payload = p.Clone()
	if _, ok := p[models.PayloadKeyNotes]; !ok {
		return
	}
	if nc, err := models.DecodeNoteCollections(p); err == nil {
		s.saved = map[models.NoteList][]models.Note{
			models.NoteListCustomer: nc.Customer,
			models.NoteListInternal: nc.Internal,
		}
	}
}

// PatchBody snapshots every tracked field plus the merged payload into one
// PATCH request body.
func (s *Store) PatchBody() (map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payload, err := s.currentPayloadLocked()
	if err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"payload": payload,
	}
	for _, f := range Fields {
		v := s.slots[f]
		switch f {
		case FieldOutputText:
			// lives inside payload
		case FieldCredits:
			if v == "" {
				body[string(f)] = nil
				continue
			}
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("encode credits: %w", err)
			}
			body[string(f)] = n
		case FieldDeadline:
			if v == "" {
				body[string(f)] = nil
				continue
			}
			body[string(f)] = v
		case FieldQCStatus:
			if v != "" {
				body[string(f)] = v
			}
		default:
			body[string(f)] = v
		}
	}
	return body, nil
}

// Subscribe registers obs and returns a function that removes it.
func (s *Store) Subscribe(obs Observer) func() {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = obs
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

func (s *Store) observerList() []Observer {
	ids := make([]int, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]Observer, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.observers[id])
	}
	return out
}
