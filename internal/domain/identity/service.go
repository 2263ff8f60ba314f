package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careplan/intake/internal/platform/apperror"
	"github.com/careplan/intake/internal/platform/db"
	"github.com/careplan/intake/internal/platform/metrics"
)

// Service reconciles submitted provider and patient identities against the
// stored records. Callers that need several steps to be atomic run them
// inside one db.Transactor transaction.
type Service struct {
	providers ProviderRepository
	patients  PatientRepository
	matcher   *Matcher
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

func NewService(providers ProviderRepository, patients PatientRepository, logger zerolog.Logger) *Service {
	return &Service{
		providers: providers,
		patients:  patients,
		matcher:   NewMatcher(providers, patients),
		logger:    logger.With().Str("component", "identity").Logger(),
	}
}

// SetMetrics enables conflict counters. A nil value disables them.
func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// -- Provider --

// ValidateProvider reports whether p could be submitted without a conflict.
func (s *Service) ValidateProvider(ctx context.Context, p *Provider) error {
	_, err := s.resolveProvider(ctx, p)
	return err
}

// ReconcileProvider returns the stored provider matching p, creating it when
// none exists.
func (s *Service) ReconcileProvider(ctx context.Context, p *Provider) (*Provider, error) {
	d, err := s.resolveProvider(ctx, p)
	if err != nil {
		return nil, err
	}
	if d.Outcome == AcceptExisting {
		return d.Existing, nil
	}

	if err := s.providers.Create(ctx, p); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return nil, s.conflict(apperror.Conflict(ReasonProviderExists, MsgProviderExists), "npi", p.NPI)
		}
		return nil, fmt.Errorf("create provider: %w", err)
	}
	s.logger.Info().Str("provider_id", p.ID.String()).Msg("provider registered")
	return p, nil
}

func (s *Service) resolveProvider(ctx context.Context, p *Provider) (Decision[Provider], error) {
	byNPI, byName, err := s.matcher.MatchProvider(ctx, p.NPI, p.Name)
	if err != nil {
		return Decision[Provider]{}, err
	}
	d := ResolveProvider(p.NPI, p.Name, byNPI, byName)
	if d.Outcome == Reject {
		return d, s.conflict(d.Conflict, "npi", p.NPI)
	}
	return d, nil
}

// -- Patient --

// ValidatePatient checks candidate's identity fields. A consistent existing
// registration is accepted.
func (s *Service) ValidatePatient(ctx context.Context, candidate *Patient) error {
	_, err := s.resolvePatient(ctx, candidate, ModeValidate)
	return err
}

// RegisterPatient creates p. Any existing record with the same MRN, or a
// name match with inconsistent details, is a conflict.
func (s *Service) RegisterPatient(ctx context.Context, p *Patient) error {
	if _, err := s.resolvePatient(ctx, p, ModeCreate); err != nil {
		return err
	}
	if err := s.patients.Create(ctx, p); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return s.conflict(apperror.Conflict(ReasonPatientExists, MsgPatientExists), "mrn", p.MRN)
		}
		return fmt.Errorf("create patient: %w", err)
	}
	s.logger.Info().Str("patient_id", p.ID.String()).Msg("patient registered")
	return nil
}

func (s *Service) resolvePatient(ctx context.Context, candidate *Patient, mode Mode) (Decision[Patient], error) {
	byName, byMRN, err := s.matcher.MatchPatient(ctx, candidate.FirstName, candidate.LastName, candidate.MRN)
	if err != nil {
		return Decision[Patient]{}, err
	}
	d := ResolvePatient(candidate, byName, byMRN, mode)
	if d.Outcome == Reject {
		return d, s.conflict(d.Conflict, "mrn", candidate.MRN)
	}
	return d, nil
}

func (s *Service) conflict(ce *apperror.ConflictError, keyField, key string) error {
	s.logger.Info().
		Str("reason", ce.Reason).
		Str(keyField, key).
		Msg("identity conflict")
	s.metrics.ObserveConflict(ce.Reason)
	return ce
}

// -- Lookups --

func (s *Service) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	return s.providers.GetByID(ctx, id)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}
