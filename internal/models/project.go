package models

import (
	"encoding/json"
	"time"
)

// Project statuses.
const (
	StatusLead       = "lead"
	StatusNew        = "new"
	StatusInProgress = "in_progress"
	StatusOnHold     = "on_hold"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// QC review statuses.
const (
	QCStatusNone     = ""
	QCStatusPending  = "pending"
	QCStatusApproved = "approved"
	QCStatusRejected = "rejected"
)

var projectStatuses = map[string]bool{
	StatusLead:       true,
	StatusNew:        true,
	StatusInProgress: true,
	StatusOnHold:     true,
	StatusCompleted:  true,
	StatusCancelled:  true,
}

var qcStatuses = map[string]bool{
	QCStatusNone:     true,
	QCStatusPending:  true,
	QCStatusApproved: true,
	QCStatusRejected: true,
}

func IsValidStatus(s string) bool   { return projectStatuses[s] }
func IsValidQCStatus(s string) bool { return qcStatuses[s] }

// Payload keys owned by the project editor. Every other key belongs to some
// other producer and is passed through untouched.
const (
	PayloadKeyOutputText = "output_text"
	PayloadKeyNotes      = "crm_notes"
)

// Payload is the open-ended JSON column of a project. Values stay raw so
// unknown keys round-trip byte for byte.
type Payload map[string]json.RawMessage

// Clone returns a shallow copy; raw values are never mutated in place.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Project is the record returned by GET /projects/{id}.
type Project struct {
	ID              string     `json:"id"`
	CustomerID      string     `json:"customer_id,omitempty"`
	Status          string     `json:"status"`
	QCStatus        string     `json:"qc_status,omitempty"`
	Credits         *float64   `json:"credits"`
	Content         string     `json:"content"`
	Payload         Payload    `json:"payload"`
	CustomerNotes   string     `json:"customer_notes"`
	InternalNotes   string     `json:"internal_notes"`
	Deadline        string     `json:"deadline"`
	AdditionalEmail string     `json:"additional_email"`
	ProjectStreet   string     `json:"project_street"`
	ProjectZip      string     `json:"project_zip"`
	ProjectCity     string     `json:"project_city"`
	ProjectCountry  string     `json:"project_country"`
	ProductCode     string     `json:"product_code,omitempty"`
	CreatedAt       *time.Time `json:"created_at,omitempty"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
}
