package careplan

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
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
)

// -- Mocks --

type mockRepo struct {
	plans map[uuid.UUID]*CarePlan
}

func newMockRepo() *mockRepo {
	return &mockRepo{plans: make(map[uuid.UUID]*CarePlan)}
}

func (m *mockRepo) Create(_ context.Context, cp *CarePlan) error {
	cp.ID = uuid.New()
	m.plans[cp.ID] = cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*CarePlan, error) {
	return m.plans[id], nil
}

func (m *mockRepo) ListByOrder(_ context.Context, orderID uuid.UUID) ([]*CarePlan, error) {
	var out []*CarePlan
	for _, cp := range m.plans {
		if cp.OrderID == orderID {
			out = append(out, cp)
		}
	}
	return out, nil
}

type mockLookups struct {
	orders   map[uuid.UUID]*order.Order
	patients map[uuid.UUID]*identity.Patient
}

func (m *mockLookups) GetOrder(_ context.Context, id uuid.UUID) (*order.Order, error) {
	return m.orders[id], nil
}

func (m *mockLookups) GetPatient(_ context.Context, id uuid.UUID) (*identity.Patient, error) {
	return m.patients[id], nil
}

type failingGenerator struct{}

func (failingGenerator) Name() string { return "gemini" }

func (failingGenerator) Generate(context.Context, generation.Request) (string, error) {
	return "", errors.New("upstream 503")
}

type recordingPublisher struct {
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.Event) error {
	p.events = append(p.events, evt)
	return nil
}

type fixture struct {
	svc     *Service
	repo    *mockRepo
	lookups *mockLookups
	order   *order.Order
	patient *identity.Patient
}

func newFixture(gen generation.Generator) *fixture {
	patient := &identity.Patient{
		ID:               uuid.New(),
		MRN:              "123456",
		FirstName:        "Jane",
		LastName:         "Doe",
		DOB:              time.Date(1990, 6, 15, 0, 0, 0, 0, time.UTC),
		Sex:              "Female",
		PrimaryDiagnosis: "G70.00",
	}
	o := &order.Order{ID: uuid.New(), PatientID: patient.ID, ProviderID: uuid.New(), Medication: "IVIG"}
	lookups := &mockLookups{
		orders:   map[uuid.UUID]*order.Order{o.ID: o},
		patients: map[uuid.UUID]*identity.Patient{patient.ID: patient},
	}
	repo := newMockRepo()
	now := time.Date(2024, 6, 15, 9, 5, 0, 0, time.UTC)
	svc := NewService(repo, lookups, lookups, gen, clock.Func(func() time.Time { return now }), zerolog.Nop())
	return &fixture{svc: svc, repo: repo, lookups: lookups, order: o, patient: patient}
}

func TestService_GenerateForOrder_Mock(t *testing.T) {
	f := newFixture(generation.NewMockGenerator())

	cp, err := f.svc.GenerateForOrder(context.Background(), f.order.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(cp.Content, "MOCK CARE PLAN for Jane Doe\n\nAge: 34 years\nDOB: 06/15/1990\nGeneration Date: 06/15/2024\nGeneration Time: 09:05\n") {
		t.Errorf("unexpected content:\n%s", cp.Content)
	}
	if cp.OrderID != f.order.ID || cp.PatientID != f.patient.ID {
		t.Errorf("unexpected links %+v", cp)
	}
	if len(f.repo.plans) != 1 {
		t.Errorf("expected 1 stored plan, got %d", len(f.repo.plans))
	}
}

func TestService_GenerateForOrder_NotFound(t *testing.T) {
	f := newFixture(generation.NewMockGenerator())

	_, err := f.svc.GenerateForOrder(context.Background(), uuid.New())
	var nf *apperror.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if nf.Message != "Order not found" {
		t.Errorf("unexpected message %q", nf.Message)
	}
}

func TestService_GenerateForOrder_BackendFailure(t *testing.T) {
	f := newFixture(failingGenerator{})
	pub := &recordingPublisher{}
	f.svc.SetPublisher(pub)

	_, err := f.svc.GenerateForOrder(context.Background(), f.order.ID)
	var ge *apperror.GenerationError
	if !errors.As(err, &ge) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	if ge.Backend != "gemini" {
		t.Errorf("expected backend gemini, got %s", ge.Backend)
	}
	if len(f.repo.plans) != 0 {
		t.Error("expected nothing stored on failure")
	}
	if len(pub.events) != 0 {
		t.Error("expected no event on failure")
	}
}

func TestService_GenerateForOrder_ArchivesAndPublishes(t *testing.T) {
	f := newFixture(generation.NewMockGenerator())
	store := blobstore.NewInMemoryBlobStore()
	pub := &recordingPublisher{}
	f.svc.SetArchive(store)
	f.svc.SetPublisher(pub)
	ctx := context.Background()

	cp, err := f.svc.GenerateForOrder(ctx, f.order.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 archived blob, got %d", store.Len())
	}

	if len(pub.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(pub.events))
	}
	payload, ok := pub.events[0].Payload.(events.CarePlanGenerated)
	if !ok {
		t.Fatalf("unexpected payload %T", pub.events[0].Payload)
	}
	if payload.ArchiveKey != blobstore.CarePlanKey("123456", cp.ID.String()) || payload.Backend != "mock" {
		t.Errorf("unexpected payload %+v", payload)
	}

	rc, meta, err := f.svc.OpenDocument(ctx, cp.ID)
	if err != nil {
		t.Fatalf("OpenDocument() error: %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != cp.Content {
		t.Error("expected archived copy to equal stored content")
	}
	if meta.Category != blobstore.CategoryCarePlan {
		t.Errorf("unexpected category %s", meta.Category)
	}
}

func TestService_OpenDocument_ArchiveDisabled(t *testing.T) {
	f := newFixture(generation.NewMockGenerator())
	cp, _ := f.svc.GenerateForOrder(context.Background(), f.order.ID)

	_, _, err := f.svc.OpenDocument(context.Background(), cp.ID)
	var nf *apperror.NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestService_GetCarePlan(t *testing.T) {
	f := newFixture(generation.NewMockGenerator())
	cp, _ := f.svc.GenerateForOrder(context.Background(), f.order.ID)

	got, err := f.svc.GetCarePlan(context.Background(), cp.ID)
	if err != nil || got.ID != cp.ID {
		t.Errorf("expected plan %s, got %v (%v)", cp.ID, got, err)
	}
	if _, err := f.svc.GetCarePlan(context.Background(), uuid.New()); err == nil {
		t.Error("expected error for unknown plan")
	}

	plans, _ := f.svc.ListForOrder(context.Background(), f.order.ID)
	if len(plans) != 1 {
		t.Errorf("expected 1 plan for order, got %d", len(plans))
	}
}
