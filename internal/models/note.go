package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// NoteList identifies one of the two note collections on a project.
type NoteList string

const (
	NoteListCustomer NoteList = "customer"
	NoteListInternal NoteList = "internal"
)

// NoteLists lists every collection in a stable order.
var NoteLists = []NoteList{NoteListCustomer, NoteListInternal}

// ParseNoteList maps user input to a NoteList.
func ParseNoteList(s string) (NoteList, error) {
	switch NoteList(s) {
	case NoteListCustomer, NoteListInternal:
		return NoteList(s), nil
	}
	return "", fmt.Errorf("unknown note list %q", s)
}

type Note struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// NoteCollections is the value stored under payload["crm_notes"].
type NoteCollections struct {
	Customer []Note `json:"customer"`
	Internal []Note `json:"internal"`
}

// DecodeNoteCollections reads the notes key from a payload. A missing or
// null key yields empty lists.
func DecodeNoteCollections(p Payload) (NoteCollections, error) {
	var nc NoteCollections
	raw, ok := p[PayloadKeyNotes]
	if ok && len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &nc); err != nil {
			return NoteCollections{}, fmt.Errorf("decode %s: %w", PayloadKeyNotes, err)
		}
	}
	if nc.Customer == nil {
		nc.Customer = []Note{}
	}
	if nc.Internal == nil {
		nc.Internal = []Note{}
	}
	return nc, nil
}

// List returns the collection for l.
func (nc NoteCollections) List(l NoteList) []Note {
	if l == NoteListCustomer {
		return nc.Customer
	}
	return nc.Internal
}
