package identity

import (
	"context"
	"fmt"
)

// Matcher looks up stored identities by key and by name. It never writes.
type Matcher struct {
	providers ProviderRepository
	patients  PatientRepository
}

func NewMatcher(providers ProviderRepository, patients PatientRepository) *Matcher {
	return &Matcher{providers: providers, patients: patients}
}

// MatchProvider returns the provider holding npi and the provider whose name
// equals name ignoring case. Either may be nil.
func (m *Matcher) MatchProvider(ctx context.Context, npi, name string) (byNPI, byName *Provider, err error) {
	if byName, err = m.providers.GetByNameCI(ctx, name); err != nil {
		return nil, nil, fmt.Errorf("match provider by name: %w", err)
	}
	if byNPI, err = m.providers.GetByNPI(ctx, npi); err != nil {
		return nil, nil, fmt.Errorf("match provider by npi: %w", err)
	}
	return byNPI, byName, nil
}

// MatchPatient returns the patient registered under first and last name
// (case-insensitive) and the patient holding mrn. Either may be nil.
func (m *Matcher) MatchPatient(ctx context.Context, firstName, lastName, mrn string) (byName, byMRN *Patient, err error) {
	if byName, err = m.patients.GetByNameCI(ctx, firstName, lastName); err != nil {
		return nil, nil, fmt.Errorf("match patient by name: %w", err)
	}
	if byMRN, err = m.patients.GetByMRN(ctx, mrn); err != nil {
		return nil, nil, fmt.Errorf("match patient by mrn: %w", err)
	}
	return byName, byMRN, nil
}
