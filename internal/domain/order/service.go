package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careplan/intake/internal/domain/identity"
	"github.com/careplan/intake/internal/platform/apperror"
	"github.com/careplan/intake/internal/platform/clock"
	"github.com/careplan/intake/internal/platform/db"
	"github.com/careplan/intake/internal/platform/events"
	"github.com/careplan/intake/internal/platform/metrics"
)

// ReasonConcurrentSubmission marks a submission aborted by a concurrent
// transaction rather than by a matching record.
const (
	ReasonConcurrentSubmission = "concurrent_submission"
	MsgResubmit                = "Another submission was processed at the same time. Please resubmit the order."
)

// SubmitResult is what a successful submission reports back.
type SubmitResult struct {
	Order    *Order
	Warnings []string
}

type Service struct {
	tx        db.Transactor
	identity  *identity.Service
	orders    Repository
	detector  *DuplicateDetector
	clock     clock.Clock
	publisher events.Publisher
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

func NewService(
	tx db.Transactor,
	identitySvc *identity.Service,
	orders Repository,
	detector *DuplicateDetector,
	clk clock.Clock,
	publisher events.Publisher,
	logger zerolog.Logger,
) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{
		tx:        tx,
		identity:  identitySvc,
		orders:    orders,
		detector:  detector,
		clock:     clk,
		publisher: publisher,
		logger:    logger.With().Str("component", "order").Logger(),
	}
}

// SetMetrics enables submission counters. A nil value disables them.
func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Submit validates req, then reconciles the provider, registers the patient
// and records the order inside one transaction. A duplicate order only adds
// a warning.
func (s *Service) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResult, error) {
	sub, err := req.Validate()
	if err != nil {
		s.logger.Warn().Err(err).Msg("submission failed validation")
		s.metrics.ObserveSubmission(metrics.OutcomeInvalid)
		return nil, err
	}

	var result *SubmitResult
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.submit(ctx, sub)
		return err
	})
	if err != nil {
		switch {
		case db.IsSerialization(err):
			// Aborted by a concurrent transaction; no record is known to clash.
			s.logger.Warn().Err(err).Msg("submission lost a serialization race")
			err = apperror.Conflict(ReasonConcurrentSubmission, MsgResubmit)
			s.metrics.ObserveConflict(ReasonConcurrentSubmission)
		case errors.Is(err, db.ErrDuplicate):
			// A concurrent submission for the same MRN surfaces at commit.
			err = apperror.Conflict(identity.ReasonPatientExists, identity.MsgPatientExists)
			s.metrics.ObserveConflict(identity.ReasonPatientExists)
		}
		if apperror.IsConflict(err) {
			s.metrics.ObserveSubmission(metrics.OutcomeRejected)
		}
		return nil, err
	}

	s.metrics.ObserveSubmission(metrics.OutcomeAccepted)
	s.logger.Info().
		Str("order_id", result.Order.ID.String()).
		Str("patient_id", result.Order.PatientID.String()).
		Int("warnings", len(result.Warnings)).
		Msg("order submitted")
	s.publish(ctx, result)
	return result, nil
}

func (s *Service) submit(ctx context.Context, sub *Submission) (*SubmitResult, error) {
	provider, err := s.identity.ReconcileProvider(ctx, sub.Provider)
	if err != nil {
		return nil, err
	}
	if err := s.identity.RegisterPatient(ctx, sub.Patient); err != nil {
		return nil, err
	}

	result := &SubmitResult{Warnings: []string{}}
	warning, err := s.detector.Check(ctx, sub.Patient.ID, sub.Order.Medication)
	if err != nil {
		return nil, err
	}
	if warning != "" {
		result.Warnings = append(result.Warnings, warning)
		s.metrics.ObserveDuplicateWarning()
	}

	o := sub.Order
	o.PatientID = sub.Patient.ID
	o.ProviderID = provider.ID
	o.CreatedAt = s.clock.Now()
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	result.Order = o
	return result, nil
}

func (s *Service) publish(ctx context.Context, result *SubmitResult) {
	o := result.Order
	err := s.publisher.Publish(ctx, events.Event{
		Type: events.TypeOrderSubmitted,
		Payload: events.OrderSubmitted{
			OrderID:          o.ID,
			PatientID:        o.PatientID,
			ProviderID:       o.ProviderID,
			Medication:       o.Medication,
			DuplicateWarning: len(result.Warnings) > 0,
		},
		OccurredAt: o.CreatedAt,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("order_id", o.ID.String()).Msg("publish order event")
	}
}

// GetOrder returns the order or nil when it does not exist.
func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.orders.GetByID(ctx, id)
}

// Export returns every order with its patient and provider, newest first.
func (s *Service) Export(ctx context.Context) ([]*ExportRow, error) {
	rows, err := s.orders.ListForExport(ctx)
	if err != nil {
		return nil, fmt.Errorf("export orders: %w", err)
	}
	return rows, nil
}
