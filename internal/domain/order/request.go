package order

import (
	"strings"

	"github.com/careplan/intake/internal/domain/identity"
	"github.com/careplan/intake/internal/platform/apperror"
)

// OrderInput is the order block of a submit request.
type OrderInput struct {
	Medication string  `json:"medication"`
	Notes      *string `json:"notes"`
}

// SubmitRequest is the body of POST /submit.
type SubmitRequest struct {
	Provider identity.ProviderInput `json:"provider"`
	Patient  identity.PatientInput  `json:"patient"`
	Order    OrderInput             `json:"order"`
}

// Submission is a validated SubmitRequest. None of its records are saved.
type Submission struct {
	Provider *identity.Provider
	Patient  *identity.Patient
	Order    *Order
}

// Validate checks all three blocks and reports every failing field under a
// dotted key such as "patient.mrn".
func (r *SubmitRequest) Validate() (*Submission, error) {
	errs := apperror.FieldErrors{}

	errs.Merge("provider", r.Provider.Validate())
	patient, patientErrs := r.Patient.Validate()
	errs.Merge("patient", patientErrs)

	orderErrs := apperror.FieldErrors{}
	r.Order.Medication = strings.TrimSpace(r.Order.Medication)
	if r.Order.Medication == "" {
		orderErrs.Add("medication", "This field is required.")
	}
	errs.Merge("order", orderErrs)

	if err := errs.Err(); err != nil {
		return nil, err
	}

	o := &Order{Medication: r.Order.Medication}
	if r.Order.Notes != nil {
		if n := strings.TrimSpace(*r.Order.Notes); n != "" {
			o.Notes = &n
		}
	}
	return &Submission{
		Provider: r.Provider.Provider(),
		Patient:  patient,
		Order:    o,
	}, nil
}
