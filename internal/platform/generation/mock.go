package generation

import (
	"context"
	"fmt"
	"strings"
)

// MockGenerator renders a fixed placeholder plan. It never touches the
// network and its output depends only on the request.
type MockGenerator struct{}

func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

func (*MockGenerator) Name() string { return "mock" }

func (*MockGenerator) Generate(_ context.Context, req Request) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "MOCK CARE PLAN for %s\n\n", req.PatientName)
	writeHeader(&b, req.Header)
	b.WriteString(`
Problem list / Drug therapy problems (DTPs)
- Sample problem 1
- Sample problem 2

Goals (SMART)
- Primary: Sample goal
- Safety: Sample safety goal
- Process: Sample process goal

Pharmacist interventions / plan
Dosing & Administration
- Sample dosing recommendation

Monitoring plan & lab schedule
- Sample monitoring plan
`)
	return b.String(), nil
}

// writeHeader writes the four header lines shared by the prompt and the mock
// document.
func writeHeader(b *strings.Builder, h Header) {
	fmt.Fprintf(b, "Age: %d years\n", h.Age)
	fmt.Fprintf(b, "DOB: %s\n", h.FormattedDOB)
	fmt.Fprintf(b, "Generation Date: %s\n", h.GenerationDate)
	fmt.Fprintf(b, "Generation Time: %s\n", h.GenerationTime)
}

// FormatHeader renders h exactly as it appears at the top of a care plan.
func FormatHeader(h Header) string {
	var b strings.Builder
	writeHeader(&b, h)
	return b.String()
}
