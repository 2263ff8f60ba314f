package identity

import (
	"testing"
)

func TestProviderInput_Validate(t *testing.T) {
	tests := []struct {
		name   string
		in     ProviderInput
		fields map[string]string
	}{
		{name: "valid", in: ProviderInput{NPI: "1234567890", Name: " Dr. Smith "}},
		{name: "short npi", in: ProviderInput{NPI: "12345", Name: "Dr. Smith"}, fields: map[string]string{"npi": msgNPIFormat}},
		{name: "letters in npi", in: ProviderInput{NPI: "12345abcde", Name: "Dr. Smith"}, fields: map[string]string{"npi": msgNPIFormat}},
		{name: "missing both", in: ProviderInput{}, fields: map[string]string{"npi": msgRequired, "name": msgRequired}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.in.Validate()
			if len(errs) != len(tt.fields) {
				t.Fatalf("expected %d field errors, got %v", len(tt.fields), errs)
			}
			for field, msg := range tt.fields {
				if got := errs[field]; len(got) != 1 || got[0] != msg {
					t.Errorf("field %s: expected %q, got %v", field, msg, got)
				}
			}
		})
	}
}

func TestProviderInput_ValidateTrims(t *testing.T) {
	in := ProviderInput{NPI: " 1234567890 ", Name: "  Dr. Smith "}
	if errs := in.Validate(); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	p := in.Provider()
	if p.NPI != "1234567890" || p.Name != "Dr. Smith" {
		t.Errorf("expected trimmed values, got %+v", p)
	}
}

func TestPatientCredentials_Validate(t *testing.T) {
	valid := PatientCredentials{FirstName: "Jane", LastName: "Doe", MRN: "123456", DOB: "1990-06-15", Sex: "Female"}

	tests := []struct {
		name   string
		mutate func(c *PatientCredentials)
		field  string
		msg    string
	}{
		{name: "mrn too long", mutate: func(c *PatientCredentials) { c.MRN = "1234567" }, field: "mrn", msg: msgMRNFormat},
		{name: "mrn missing", mutate: func(c *PatientCredentials) { c.MRN = "" }, field: "mrn", msg: msgRequired},
		{name: "bad dob", mutate: func(c *PatientCredentials) { c.DOB = "06/15/1990" }, field: "dob", msg: msgDateFormat},
		{name: "impossible dob", mutate: func(c *PatientCredentials) { c.DOB = "1990-02-30" }, field: "dob", msg: msgDateFormat},
		{name: "blank first name", mutate: func(c *PatientCredentials) { c.FirstName = "   " }, field: "firstName", msg: msgRequired},
		{name: "missing sex", mutate: func(c *PatientCredentials) { c.Sex = "" }, field: "sex", msg: msgRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			_, errs := c.Validate()
			if len(errs) != 1 {
				t.Fatalf("expected exactly one field error, got %v", errs)
			}
			if got := errs[tt.field]; len(got) != 1 || got[0] != tt.msg {
				t.Errorf("expected %s: %q, got %v", tt.field, tt.msg, errs)
			}
		})
	}

	c := valid
	dob, errs := c.Validate()
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if dob.Format(DateLayout) != "1990-06-15" {
		t.Errorf("expected parsed dob, got %v", dob)
	}
}

func TestPatientInput_Validate(t *testing.T) {
	weight := 72.5
	allergies := "  "
	in := PatientInput{
		PatientCredentials:  PatientCredentials{FirstName: "Jane", LastName: "Doe", MRN: "123456", DOB: "1990-06-15", Sex: "Female"},
		Weight:              &weight,
		PrimaryDiagnosis:    "G70.00",
		AdditionalDiagnoses: []string{"I10", " ", "K21.9 "},
		Allergies:           &allergies,
	}

	p, errs := in.Validate()
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(p.AdditionalDiagnoses) != 2 || p.AdditionalDiagnoses[1] != "K21.9" {
		t.Errorf("expected cleaned diagnoses, got %v", p.AdditionalDiagnoses)
	}
	if p.MedicationHistory == nil {
		t.Error("expected non-nil medication history")
	}
	if p.Allergies != nil {
		t.Errorf("expected blank allergies to be dropped, got %q", *p.Allergies)
	}
	if p.Weight == nil || *p.Weight != 72.5 {
		t.Errorf("expected weight 72.5, got %v", p.Weight)
	}
}

func TestPatientInput_ValidateErrors(t *testing.T) {
	weight := -3.0
	in := PatientInput{
		PatientCredentials: PatientCredentials{FirstName: "Jane", LastName: "Doe", MRN: "12", DOB: "1990-06-15", Sex: "Female"},
		Weight:             &weight,
	}

	p, errs := in.Validate()
	if p != nil {
		t.Error("expected no patient on validation failure")
	}
	for _, field := range []string{"mrn", "weight", "primaryDiagnosis"} {
		if _, ok := errs[field]; !ok {
			t.Errorf("expected error for %s, got %v", field, errs)
		}
	}
}
