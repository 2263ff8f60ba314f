package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/careplan/intake/internal/domain/identity"
	"github.com/careplan/intake/internal/platform/apperror"
	"github.com/careplan/intake/internal/platform/clock"
	"github.com/careplan/intake/internal/platform/db"
	"github.com/careplan/intake/internal/platform/events"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

type testEnv struct {
	sqlDB     *sql.DB
	svc       *Service
	orders    Repository
	publisher *capturePublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	sqlDB, err := db.OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite() error: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	idSvc := identity.NewService(identity.NewProviderRepoSQLite(sqlDB), identity.NewPatientRepoSQLite(sqlDB), zerolog.Nop())
	orders := NewRepoSQLite(sqlDB)
	clk := clock.NewMonotonic(nil)
	pub := &capturePublisher{}
	svc := NewService(db.NewSQLTransactor(sqlDB), idSvc, orders, NewDuplicateDetector(orders, clk, 0), clk, pub, zerolog.Nop())
	return &testEnv{sqlDB: sqlDB, svc: svc, orders: orders, publisher: pub}
}

func (e *testEnv) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	if err := e.sqlDB.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func validRequest() *SubmitRequest {
	notes := "Pre-medicate with acetaminophen"
	weight := 68.0
	return &SubmitRequest{
		Provider: identity.ProviderInput{NPI: "1234567890", Name: "Dr. Smith"},
		Patient: identity.PatientInput{
			PatientCredentials: identity.PatientCredentials{
				FirstName: "Jane", LastName: "Doe", MRN: "123456", DOB: "1990-06-15", Sex: "Female",
			},
			Weight:              &weight,
			PrimaryDiagnosis:    "G70.00",
			AdditionalDiagnoses: []string{"I10"},
			MedicationHistory:   []string{"Pyridostigmine 60mg"},
		},
		Order: OrderInput{Medication: "IVIG", Notes: &notes},
	}
}

func TestService_Submit(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.svc.Submit(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", res.Warnings)
	}
	if res.Order.CreatedAt.IsZero() {
		t.Error("expected created_at to be assigned")
	}

	stored, err := env.svc.GetOrder(context.Background(), res.Order.ID)
	if err != nil || stored == nil {
		t.Fatalf("expected stored order, got %v (%v)", stored, err)
	}
	if stored.Notes == nil || *stored.Notes != "Pre-medicate with acetaminophen" {
		t.Errorf("unexpected notes %v", stored.Notes)
	}

	if len(env.publisher.events) != 1 || env.publisher.events[0].Type != events.TypeOrderSubmitted {
		t.Errorf("expected one order.submitted event, got %+v", env.publisher.events)
	}
}

func TestService_Submit_ReusesProvider(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.svc.Submit(ctx, validRequest()); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second := validRequest()
	second.Provider.Name = "DR. SMITH"
	second.Patient.MRN = "654321"
	second.Patient.FirstName = "John"
	if _, err := env.svc.Submit(ctx, second); err != nil {
		t.Fatalf("second submit: %v", err)
	}

	if n := env.count(t, "provider"); n != 1 {
		t.Errorf("expected 1 provider, got %d", n)
	}
	if n := env.count(t, "medication_order"); n != 2 {
		t.Errorf("expected 2 orders, got %d", n)
	}
}

func TestService_Submit_ExistingPatientBlocked(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.svc.Submit(ctx, validRequest()); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	_, err := env.svc.Submit(ctx, validRequest())
	var ce *apperror.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if ce.Message != identity.MsgPatientExists {
		t.Errorf("unexpected message %q", ce.Message)
	}
	if n := env.count(t, "medication_order"); n != 1 {
		t.Errorf("expected 1 order, got %d", n)
	}
	if len(env.publisher.events) != 1 {
		t.Errorf("expected no event for rejected submission, got %d", len(env.publisher.events))
	}
}

func TestService_Submit_RollsBackProvider(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.svc.Submit(ctx, validRequest()); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	// New provider, but the patient already exists: nothing may be written.
	req := validRequest()
	req.Provider = identity.ProviderInput{NPI: "9999999999", Name: "Dr. Jones"}
	if _, err := env.svc.Submit(ctx, req); !apperror.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if n := env.count(t, "provider"); n != 1 {
		t.Errorf("expected provider insert to be rolled back, got %d providers", n)
	}
}

func TestService_Submit_ProviderConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.svc.Submit(ctx, validRequest()); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	req := validRequest()
	req.Provider.NPI = "1111111111"
	req.Patient.MRN = "222222"
	req.Patient.FirstName = "Other"
	_, err := env.svc.Submit(ctx, req)
	var ce *apperror.ConflictError
	if !errors.As(err, &ce) || ce.Reason != identity.ReasonProviderNPIMismatch {
		t.Fatalf("expected provider npi conflict, got %v", err)
	}
	if n := env.count(t, "patient"); n != 1 {
		t.Errorf("expected no new patient, got %d", n)
	}
}

func TestService_Submit_ValidationErrors(t *testing.T) {
	env := newTestEnv(t)

	req := validRequest()
	req.Provider.NPI = "12"
	req.Patient.MRN = "abc"
	req.Order.Medication = "  "

	_, err := env.svc.Submit(context.Background(), req)
	var ve *apperror.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, key := range []string{"provider.npi", "patient.mrn", "order.medication"} {
		if _, ok := ve.Fields[key]; !ok {
			t.Errorf("expected field error %s, got %v", key, ve.Fields)
		}
	}
	if n := env.count(t, "provider"); n != 0 {
		t.Errorf("expected nothing written, got %d providers", n)
	}
}

func TestService_Submit_PublishFailureIgnored(t *testing.T) {
	env := newTestEnv(t)
	env.publisher.err = errors.New("redis down")

	if _, err := env.svc.Submit(context.Background(), validRequest()); err != nil {
		t.Fatalf("expected publish failure to be ignored, got %v", err)
	}
}

func TestService_Export_NewestFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, _ := env.svc.Submit(ctx, validRequest())
	req := validRequest()
	req.Patient.MRN = "654321"
	req.Patient.FirstName = "John"
	second, _ := env.svc.Submit(ctx, req)

	rows, err := env.svc.Export(ctx)
	if err != nil {
		t.Fatalf("Export() error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].OrderID != second.Order.ID || rows[1].OrderID != first.Order.ID {
		t.Error("expected newest order first")
	}
	if rows[1].ProviderNPI != "1234567890" || rows[1].MedicationHistory[0] != "Pyridostigmine 60mg" {
		t.Errorf("unexpected joined row %+v", rows[1])
	}
	if !rows[0].OrderDate.After(rows[1].OrderDate.Add(-time.Nanosecond)) {
		t.Error("expected non-decreasing order dates")
	}
}

// abortingTx runs the work in a real transaction, then fails it with err so
// the writes roll back, as a lost commit would.
type abortingTx struct {
	inner db.Transactor
	err   error
}

func (a *abortingTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return a.inner.WithinTx(ctx, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return err
		}
		return a.err
	})
}

func TestService_Submit_ConcurrentAbort(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantReason string
		wantMsg    string
	}{
		{
			name:       "serialization failure at commit",
			err:        db.MapError(fmt.Errorf("commit transaction: %w", &pgconn.PgError{Code: "40001"})),
			wantReason: ReasonConcurrentSubmission,
			wantMsg:    MsgResubmit,
		},
		{
			name:       "serialization failure on a read",
			err:        fmt.Errorf("provider lookup: %w", &pgconn.PgError{Code: "40001"}),
			wantReason: ReasonConcurrentSubmission,
			wantMsg:    MsgResubmit,
		},
		{
			name:       "unique violation at commit",
			err:        db.MapError(fmt.Errorf("commit transaction: %w", &pgconn.PgError{Code: "23505"})),
			wantReason: identity.ReasonPatientExists,
			wantMsg:    identity.MsgPatientExists,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			idSvc := identity.NewService(identity.NewProviderRepoSQLite(env.sqlDB), identity.NewPatientRepoSQLite(env.sqlDB), zerolog.Nop())
			clk := clock.NewMonotonic(nil)
			tx := &abortingTx{inner: db.NewSQLTransactor(env.sqlDB), err: tt.err}
			svc := NewService(tx, idSvc, env.orders, NewDuplicateDetector(env.orders, clk, 0), clk, env.publisher, zerolog.Nop())

			_, err := svc.Submit(context.Background(), validRequest())
			var ce *apperror.ConflictError
			if !errors.As(err, &ce) {
				t.Fatalf("expected ConflictError, got %v", err)
			}
			if ce.Reason != tt.wantReason || ce.Message != tt.wantMsg {
				t.Errorf("got (%s, %q), want (%s, %q)", ce.Reason, ce.Message, tt.wantReason, tt.wantMsg)
			}
			if n := env.count(t, "patient"); n != 0 {
				t.Errorf("expected the aborted submission to leave no patient, got %d", n)
			}
			if len(env.publisher.events) != 0 {
				t.Error("expected no event for an aborted submission")
			}
		})
	}
}
