package careplan

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/careplan/intake/internal/domain/identity"
	"github.com/careplan/intake/internal/domain/order"
	"github.com/careplan/intake/internal/platform/generation"
)

const (
	displayDateLayout = "01/02/2006"
	displayTimeLayout = "15:04"

	notProvided    = "Not provided"
	noneDocumented = "None documented"
	noNotes        = "None"
)

// Age is the number of whole years between dob and today, comparing
// calendar dates only.
func Age(dob, today time.Time) int {
	ty, tm, td := today.Date()
	by, bm, bd := dob.Date()
	age := ty - by
	if tm < bm || (tm == bm && td < bd) {
		age--
	}
	return age
}

// BuildRequest derives the header fields and the full prompt for patient and
// o as of now. It does no I/O.
func BuildRequest(patient *identity.Patient, o *order.Order, now time.Time) generation.Request {
	header := generation.Header{
		Age:            Age(patient.DOB, now),
		FormattedDOB:   patient.DOB.Format(displayDateLayout),
		GenerationDate: now.Format(displayDateLayout),
		GenerationTime: now.Format(displayTimeLayout),
	}
	return generation.Request{
		Header:      header,
		PatientName: patient.FullName(),
		Medication:  o.Medication,
		Prompt:      buildPrompt(header, patient, o),
	}
}

func buildPrompt(h generation.Header, p *identity.Patient, o *order.Order) string {
	var b strings.Builder
	b.WriteString("You are an expert clinical pharmacist. Generate a comprehensive Pharmacist Care Plan based on the following patient data.\n\n")
	b.WriteString("IMPORTANT: Start the care plan with this exact header format:\n")
	b.WriteString(generation.FormatHeader(h))

	b.WriteString("\nPATIENT DEMOGRAPHICS:\n")
	fmt.Fprintf(&b, "Name: %s\n", p.FullName())
	fmt.Fprintf(&b, "MRN: %s\n", p.MRN)
	fmt.Fprintf(&b, "DOB: %s\n", p.DOBString())
	fmt.Fprintf(&b, "Sex: %s\n", p.Sex)
	fmt.Fprintf(&b, "Weight: %s kg\n", weightText(p.Weight))
	fmt.Fprintf(&b, "Allergies: %s\n", orDefault(p.Allergies, noneDocumented))
	fmt.Fprintf(&b, "Primary Diagnosis: %s\n", p.PrimaryDiagnosis)
	fmt.Fprintf(&b, "Additional Diagnoses: %s\n", joinOrDefault(p.AdditionalDiagnoses))
	fmt.Fprintf(&b, "Current Home Medications: %s\n", joinOrDefault(p.MedicationHistory))

	b.WriteString("\nCURRENT ORDER:\n")
	fmt.Fprintf(&b, "Medication: %s\n", o.Medication)
	fmt.Fprintf(&b, "Notes: %s\n", orDefault(o.Notes, noNotes))

	b.WriteString("\n")
	b.WriteString(sectionInstructions)
	fmt.Fprintf(&b, "\n\nBe clinically accurate, specific to %s, consider all patient factors provided, and maintain a professional tone. Use bullet points for clarity within each section.", o.Medication)
	return b.String()
}

func weightText(w *float64) string {
	if w == nil {
		return notProvided
	}
	return strconv.FormatFloat(*w, 'f', -1, 64)
}

func orDefault(s *string, def string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return def
	}
	return *s
}

func joinOrDefault(list []string) string {
	if len(list) == 0 {
		return noneDocumented
	}
	return strings.Join(list, ", ")
}

const sectionInstructions = `CRITICAL: You MUST use this EXACT structure with these EXACT headers. Do not skip any section:

Problem list / Drug therapy problems (DTPs)
[List all relevant DTPs including:
- Need for efficacy (why this medication is indicated)
- Safety concerns (infusion reactions, organ toxicity, adverse events)
- Drug-drug interactions with current medications
- Contraindications based on allergies
- Patient-specific risk factors]

Goals (SMART)
[Provide specific, measurable goals:
- Primary: [Clinical efficacy goal with timeline]
- Safety goal: [Specific adverse event prevention targets]
- Process: [Completion and monitoring documentation goals]]

Pharmacist interventions / plan
[Organize by these subheaders as relevant to the medication:]

Dosing & Administration
[Calculate weight-based dosing if applicable. If weight not provided, recommend obtaining it. Specify total dose, daily dose, duration. Include lot/product documentation requirements.]

Premedication
[Based on allergies and medication type, recommend specific premedications with doses and timing]

Infusion rates & titration
[If applicable: starting rate, escalation protocol, max rate, what to do if reactions occur]

Hydration & renal protection
[Pre-hydration requirements, monitoring, product selection considerations for renal safety]

Thrombosis risk mitigation
[If applicable: risk assessment, prophylaxis recommendations, patient education]

Concomitant medications
[How to manage timing of current medications during treatment. Address drug-drug interactions identified in DTP section]

Monitoring during infusion
[Vital signs frequency, respiratory monitoring, documentation requirements]

Adverse event management
[Protocol for mild, moderate, and severe reactions with specific interventions]

Documentation & communication
[EMR documentation, team communication requirements]

Monitoring plan & lab schedule
[Specific labs/tests with timing:]
- Before treatment: [labs, vitals, baselines]
- During treatment: [monitoring frequency]
- After treatment: [follow-up labs, timing]
- Clinical follow-up: [timeline and purpose]`
