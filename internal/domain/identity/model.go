package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Provider maps to the provider table. NPI is unique.
type Provider struct {
	ID        uuid.UUID `db:"id" json:"id"`
	NPI       string    `db:"npi" json:"npi"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Patient maps to the patient table. MRN is unique and a patient is never
// updated once registered.
type Patient struct {
	ID                  uuid.UUID `db:"id" json:"id"`
	MRN                 string    `db:"mrn" json:"mrn"`
	FirstName           string    `db:"first_name" json:"first_name"`
	LastName            string    `db:"last_name" json:"last_name"`
	DOB                 time.Time `db:"dob" json:"dob"`
	Sex                 string    `db:"sex" json:"sex"`
	Weight              *float64  `db:"weight" json:"weight,omitempty"`
	PrimaryDiagnosis    string    `db:"primary_diagnosis" json:"primary_diagnosis"`
	AdditionalDiagnoses []string  `db:"additional_diagnoses" json:"additional_diagnoses"`
	Allergies           *string   `db:"allergies" json:"allergies,omitempty"`
	MedicationHistory   []string  `db:"medication_history" json:"medication_history"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
}

// DateLayout is the wire and storage form of a date of birth.
const DateLayout = "2006-01-02"

// FullName is "First Last".
func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

// DOBString renders the date of birth as YYYY-MM-DD.
func (p *Patient) DOBString() string {
	return p.DOB.Format(DateLayout)
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func equalFold(a, b string) bool {
	return strings.EqualFold(a, b)
}
