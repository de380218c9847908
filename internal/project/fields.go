// internal/project/fields.go
package project

import (
	"math"
	"strconv"
	"strings"

	"project-desk/internal/common/errors"
	"project-desk/internal/common/validation"
	"project-desk/internal/models"

	"github.com/google/uuid"
)

// Field names one editable slot of the open record.
type Field string

const (
	FieldStatus          Field = "status"
	FieldCredits         Field = "credits"
	FieldContent         Field = "content"
	FieldOutputText      Field = "output_text"
	FieldCustomerNotes   Field = "customer_notes"
	FieldInternalNotes   Field = "internal_notes"
	FieldDeadline        Field = "deadline"
	FieldAdditionalEmail Field = "additional_email"
	FieldProjectStreet   Field = "project_street"
	FieldProjectZip      Field = "project_zip"
	FieldProjectCity     Field = "project_city"
	FieldProjectCountry  Field = "project_country"
	FieldQCStatus        Field = "qc_status"
)

// Fields lists every tracked slot in display order.
var Fields = []Field{
	FieldStatus,
	FieldCredits,
	FieldContent,
	FieldOutputText,
	FieldCustomerNotes,
	FieldInternalNotes,
	FieldDeadline,
	FieldAdditionalEmail,
	FieldProjectStreet,
	FieldProjectZip,
	FieldProjectCity,
	FieldProjectCountry,
	FieldQCStatus,
}

var knownFields = func() map[Field]bool {
	m := make(map[Field]bool, len(Fields))
	for _, f := range Fields {
		m[f] = true
	}
	return m
}()

// ParseField maps a field name to a Field.
func ParseField(name string) (Field, error) {
	f := Field(strings.TrimSpace(name))
	if !knownFields[f] {
		return "", errors.NewValidationError(name, "unknown field")
	}
	return f, nil
}

// validateValue checks a slot value before it is stored. Empty values clear
// optional fields.
func validateValue(f Field, value string) error {
	switch f {
	case FieldStatus:
		if !models.IsValidStatus(value) {
			return errors.NewValidationError(string(f), "unknown status "+strconv.Quote(value))
		}
	case FieldQCStatus:
		if !models.IsValidQCStatus(value) {
			return errors.NewValidationError(string(f), "unknown qc status "+strconv.Quote(value))
		}
	case FieldCredits:
		if value == "" {
			return nil
		}
		n, err := strconv.ParseFloat(value, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return errors.NewValidationError(string(f), "credits must be a finite number")
		}
	case FieldDeadline:
		if value != "" && !validation.ValidateDate(value) {
			return errors.NewValidationError(string(f), "deadline must be a date in YYYY-MM-DD format")
		}
	case FieldAdditionalEmail:
		if value != "" && !validation.ValidateEmail(value) {
			return errors.NewValidationError(string(f), "invalid email address")
		}
	default:
		if !knownFields[f] {
			return errors.NewValidationError(string(f), "unknown field")
		}
	}
	return nil
}

// ValidateProjectID rejects ids that cannot name a backend record.
func ValidateProjectID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.NewNotFoundError("project", id)
	}
	return nil
}
