package identity

import (
	"regexp"
	"strings"
	"time"

	"github.com/careplan/intake/internal/platform/apperror"
)

const (
	msgRequired    = "This field is required."
	msgNPIFormat   = "NPI must be exactly 10 digits"
	msgMRNFormat   = "MRN must be exactly 6 digits"
	msgDateFormat  = "Enter a valid date (YYYY-MM-DD)."
	msgWeightRange = "Weight must be a positive number."
)

var (
	npiPattern = regexp.MustCompile(`^\d{10}$`)
	mrnPattern = regexp.MustCompile(`^\d{6}$`)
)

// ProviderInput is the provider block of a validate or submit request.
type ProviderInput struct {
	NPI  string `json:"npi"`
	Name string `json:"name"`
}

// Validate normalizes the input in place and returns any field errors.
func (in *ProviderInput) Validate() apperror.FieldErrors {
	errs := apperror.FieldErrors{}
	in.NPI = strings.TrimSpace(in.NPI)
	in.Name = strings.TrimSpace(in.Name)

	switch {
	case in.NPI == "":
		errs.Add("npi", msgRequired)
	case !npiPattern.MatchString(in.NPI):
		errs.Add("npi", msgNPIFormat)
	}
	if in.Name == "" {
		errs.Add("name", msgRequired)
	}
	return errs
}

// Provider converts validated input into an unsaved Provider.
func (in *ProviderInput) Provider() *Provider {
	return &Provider{NPI: in.NPI, Name: in.Name}
}

// PatientCredentials are the identity fields checked by patient validation.
type PatientCredentials struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	MRN       string `json:"mrn"`
	DOB       string `json:"dob"`
	Sex       string `json:"sex"`
}

// Validate normalizes the credentials in place and returns the parsed date of
// birth along with any field errors.
func (in *PatientCredentials) Validate() (time.Time, apperror.FieldErrors) {
	errs := apperror.FieldErrors{}
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.MRN = strings.TrimSpace(in.MRN)
	in.DOB = strings.TrimSpace(in.DOB)
	in.Sex = strings.TrimSpace(in.Sex)

	if in.FirstName == "" {
		errs.Add("firstName", msgRequired)
	}
	if in.LastName == "" {
		errs.Add("lastName", msgRequired)
	}
	switch {
	case in.MRN == "":
		errs.Add("mrn", msgRequired)
	case !mrnPattern.MatchString(in.MRN):
		errs.Add("mrn", msgMRNFormat)
	}

	var dob time.Time
	if in.DOB == "" {
		errs.Add("dob", msgRequired)
	} else if d, err := time.Parse(DateLayout, in.DOB); err != nil {
		errs.Add("dob", msgDateFormat)
	} else {
		dob = d
	}

	if in.Sex == "" {
		errs.Add("sex", msgRequired)
	}
	return dob, errs
}

// Patient converts validated credentials into a patient carrying only the
// identity fields.
func (in *PatientCredentials) Patient(dob time.Time) *Patient {
	return &Patient{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		MRN:       in.MRN,
		DOB:       dob,
		Sex:       in.Sex,
	}
}

// PatientInput is the full patient block of a submit request.
type PatientInput struct {
	PatientCredentials
	Weight              *float64 `json:"weight"`
	PrimaryDiagnosis    string   `json:"primaryDiagnosis"`
	AdditionalDiagnoses []string `json:"additionalDiagnoses"`
	Allergies           *string  `json:"allergies"`
	MedicationHistory   []string `json:"medicationHistory"`
}

// Validate checks every field and, when all pass, returns the unsaved patient.
func (in *PatientInput) Validate() (*Patient, apperror.FieldErrors) {
	dob, errs := in.PatientCredentials.Validate()

	in.PrimaryDiagnosis = strings.TrimSpace(in.PrimaryDiagnosis)
	if in.PrimaryDiagnosis == "" {
		errs.Add("primaryDiagnosis", msgRequired)
	}
	if in.Weight != nil && *in.Weight <= 0 {
		errs.Add("weight", msgWeightRange)
	}
	if len(errs) > 0 {
		return nil, errs
	}

	p := in.PatientCredentials.Patient(dob)
	p.Weight = in.Weight
	p.PrimaryDiagnosis = in.PrimaryDiagnosis
	p.AdditionalDiagnoses = cleanList(in.AdditionalDiagnoses)
	p.MedicationHistory = cleanList(in.MedicationHistory)
	if in.Allergies != nil {
		if a := strings.TrimSpace(*in.Allergies); a != "" {
			p.Allergies = &a
		}
	}
	return p, nil
}

// cleanList trims entries and drops blanks. The result is never nil.
func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
