package order

import (
	"time"

	"github.com/google/uuid"
)

// Order maps to the medication_order table. CreatedAt is assigned by the
// service from a monotonic clock, never by storage.
type Order struct {
	ID         uuid.UUID `db:"id" json:"id"`
	PatientID  uuid.UUID `db:"patient_id" json:"patient_id"`
	ProviderID uuid.UUID `db:"provider_id" json:"provider_id"`
	Medication string    `db:"medication" json:"medication"`
	Notes      *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ExportRow is one order joined with its patient and provider.
type ExportRow struct {
	OrderID             uuid.UUID
	OrderDate           time.Time
	PatientMRN          string
	PatientFirstName    string
	PatientLastName     string
	PatientDOB          time.Time
	PatientSex          string
	ProviderNPI         string
	ProviderName        string
	Medication          string
	PrimaryDiagnosis    string
	AdditionalDiagnoses []string
	MedicationHistory   []string
}
