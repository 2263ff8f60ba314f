package careplan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careplan/intake/internal/domain/identity"
	"github.com/careplan/intake/internal/domain/order"
	"github.com/careplan/intake/internal/platform/apperror"
	"github.com/careplan/intake/internal/platform/blobstore"
	"github.com/careplan/intake/internal/platform/clock"
	"github.com/careplan/intake/internal/platform/events"
	"github.com/careplan/intake/internal/platform/generation"
	"github.com/careplan/intake/internal/platform/metrics"
)

const (
	msgOrderNotFound    = "Order not found"
	msgCarePlanNotFound = "Care plan not found"
)

// OrderLookup is satisfied by *order.Service.
type OrderLookup interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*order.Order, error)
}

// PatientLookup is satisfied by *identity.Service.
type PatientLookup interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*identity.Patient, error)
}

type Service struct {
	plans     Repository
	orders    OrderLookup
	patients  PatientLookup
	generator generation.Generator
	clock     clock.Clock
	archive   blobstore.BlobStore
	publisher events.Publisher
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

func NewService(plans Repository, orders OrderLookup, patients PatientLookup, gen generation.Generator, clk clock.Clock, logger zerolog.Logger) *Service {
	return &Service{
		plans:     plans,
		orders:    orders,
		patients:  patients,
		generator: gen,
		clock:     clk,
		publisher: events.NopPublisher{},
		logger:    logger.With().Str("component", "careplan").Logger(),
	}
}

// SetArchive enables copying every generated plan into store.
func (s *Service) SetArchive(store blobstore.BlobStore) {
	s.archive = store
}

func (s *Service) SetPublisher(p events.Publisher) {
	if p == nil {
		p = events.NopPublisher{}
	}
	s.publisher = p
}

func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// GenerateForOrder produces and stores a care plan for the order. The call
// blocks until the generator returns; a generator failure stores nothing.
func (s *Service) GenerateForOrder(ctx context.Context, orderID uuid.UUID) (*CarePlan, error) {
	o, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if o == nil {
		return nil, apperror.NotFound(msgOrderNotFound)
	}
	patient, err := s.patients.GetPatient(ctx, o.PatientID)
	if err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}
	if patient == nil {
		return nil, fmt.Errorf("order %s references missing patient %s", o.ID, o.PatientID)
	}

	now := s.clock.Now()
	req := BuildRequest(patient, o, now)

	backend := s.generator.Name()
	start := time.Now()
	content, err := s.generator.Generate(ctx, req)
	if err != nil {
		s.metrics.ObserveGeneration(backend, metrics.OutcomeFailure, time.Since(start))
		var ge *apperror.GenerationError
		if !errors.As(err, &ge) {
			err = &apperror.GenerationError{Backend: backend, Cause: err}
		}
		s.logger.Error().Err(err).Str("order_id", o.ID.String()).Msg("care plan generation failed")
		return nil, err
	}
	s.metrics.ObserveGeneration(backend, metrics.OutcomeSuccess, time.Since(start))

	cp := &CarePlan{
		PatientID: patient.ID,
		OrderID:   o.ID,
		Content:   content,
		CreatedAt: now.UTC(),
	}
	if err := s.plans.Create(ctx, cp); err != nil {
		return nil, fmt.Errorf("store care plan: %w", err)
	}
	s.logger.Info().
		Str("care_plan_id", cp.ID.String()).
		Str("order_id", o.ID.String()).
		Str("backend", backend).
		Msg("care plan generated")

	key := s.archivePlan(ctx, patient, cp)
	s.publish(ctx, cp, backend, key)
	return cp, nil
}

// archivePlan copies the plan to the archive and returns its key, or "" when
// archiving is disabled or failed. Failures are logged only.
func (s *Service) archivePlan(ctx context.Context, patient *identity.Patient, cp *CarePlan) string {
	if s.archive == nil {
		return ""
	}
	meta := blobstore.BlobMetadata{
		Key:         blobstore.CarePlanKey(patient.MRN, cp.ID.String()),
		ContentType: "text/plain",
		PatientID:   patient.ID.String(),
		Category:    blobstore.CategoryCarePlan,
		Tags:        map[string]string{"order-id": cp.OrderID.String()},
	}
	stored, err := s.archive.Upload(ctx, meta, strings.NewReader(cp.Content))
	if err != nil {
		s.logger.Warn().Err(err).Str("care_plan_id", cp.ID.String()).Msg("archive care plan")
		return ""
	}
	return stored.Key
}

func (s *Service) publish(ctx context.Context, cp *CarePlan, backend, archiveKey string) {
	err := s.publisher.Publish(ctx, events.Event{
		Type: events.TypeCarePlanGenerated,
		Payload: events.CarePlanGenerated{
			CarePlanID: cp.ID,
			OrderID:    cp.OrderID,
			PatientID:  cp.PatientID,
			Backend:    backend,
			ArchiveKey: archiveKey,
		},
		OccurredAt: cp.CreatedAt,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("care_plan_id", cp.ID.String()).Msg("publish care plan event")
	}
}

// GetCarePlan returns the stored plan or a NotFoundError.
func (s *Service) GetCarePlan(ctx context.Context, id uuid.UUID) (*CarePlan, error) {
	cp, err := s.plans.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, apperror.NotFound(msgCarePlanNotFound)
	}
	return cp, nil
}

// ListForOrder returns the plans generated for an order, newest first.
func (s *Service) ListForOrder(ctx context.Context, orderID uuid.UUID) ([]*CarePlan, error) {
	return s.plans.ListByOrder(ctx, orderID)
}

// OpenDocument streams the archived copy of a plan. The caller closes the
// reader.
func (s *Service) OpenDocument(ctx context.Context, id uuid.UUID) (io.ReadCloser, *blobstore.BlobMetadata, error) {
	if s.archive == nil {
		return nil, nil, apperror.NotFound("Care plan archive is not enabled")
	}
	cp, err := s.GetCarePlan(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	patient, err := s.patients.GetPatient(ctx, cp.PatientID)
	if err != nil {
		return nil, nil, fmt.Errorf("load patient: %w", err)
	}
	if patient == nil {
		return nil, nil, apperror.NotFound(msgCarePlanNotFound)
	}

	rc, meta, err := s.archive.Download(ctx, blobstore.CarePlanKey(patient.MRN, cp.ID.String()))
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		return nil, nil, apperror.NotFound("Archived care plan not found")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("download care plan: %w", err)
	}
	return rc, meta, nil
}
