package order

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/careplan/intake/internal/platform/clock"
)

// -- Mock Order Repository --

type mockOrderRepo struct {
	orders  []*Order
	findErr error
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	m.orders = append(m.orders, o)
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*Order, error) {
	for _, o := range m.orders {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, nil
}

func (m *mockOrderRepo) FindRecent(_ context.Context, patientID uuid.UUID, medication string, since time.Time) (*Order, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	var newest *Order
	for _, o := range m.orders {
		if o.PatientID != patientID || !strings.EqualFold(o.Medication, medication) || o.CreatedAt.Before(since) {
			continue
		}
		if newest == nil || o.CreatedAt.After(newest.CreatedAt) {
			newest = o
		}
	}
	return newest, nil
}

func (m *mockOrderRepo) ListForExport(_ context.Context) ([]*ExportRow, error) {
	return nil, nil
}

func TestDuplicateDetector_FindRecentOrder(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	patient := uuid.New()
	other := uuid.New()

	tests := []struct {
		name       string
		patientID  uuid.UUID
		medication string
		createdAt  time.Time
		want       bool
	}{
		{name: "same medication an hour ago", patientID: patient, medication: "IVIG", createdAt: now.Add(-time.Hour), want: true},
		{name: "case-insensitive medication", patientID: patient, medication: "ivig", createdAt: now.Add(-time.Hour), want: true},
		{name: "exactly at window edge", patientID: patient, medication: "IVIG", createdAt: now.Add(-24 * time.Hour), want: true},
		{name: "just outside window", patientID: patient, medication: "IVIG", createdAt: now.Add(-24*time.Hour - time.Microsecond), want: false},
		{name: "different medication", patientID: patient, medication: "Rituximab", createdAt: now.Add(-time.Hour), want: false},
		{name: "different patient", patientID: other, medication: "IVIG", createdAt: now.Add(-time.Hour), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockOrderRepo{}
			repo.Create(context.Background(), &Order{PatientID: tt.patientID, Medication: tt.medication, CreatedAt: tt.createdAt})
			d := NewDuplicateDetector(repo, clock.Func(func() time.Time { return now }), 0)

			o, err := d.FindRecentOrder(context.Background(), patient, "IVIG", DefaultDuplicateWindow)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if (o != nil) != tt.want {
				t.Errorf("expected found=%v, got %v", tt.want, o)
			}
		})
	}
}

func TestDuplicateDetector_Check(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	patient := uuid.New()
	repo := &mockOrderRepo{}
	repo.Create(context.Background(), &Order{PatientID: patient, Medication: "IVIG", CreatedAt: now.Add(-2 * time.Hour)})

	d := NewDuplicateDetector(repo, clock.Func(func() time.Time { return now }), time.Hour)
	if d.Window() != time.Hour {
		t.Errorf("expected 1h window, got %v", d.Window())
	}

	warning, err := d.Check(context.Background(), patient, "IVIG")
	if err != nil || warning != "" {
		t.Errorf("expected no warning outside a 1h window, got %q (%v)", warning, err)
	}

	d = NewDuplicateDetector(repo, clock.Func(func() time.Time { return now }), 0)
	warning, _ = d.Check(context.Background(), patient, "ivig")
	want := "Duplicate order detected: ivig was ordered recently for this patient."
	if warning != want {
		t.Errorf("expected %q, got %q", want, warning)
	}
}

func TestDuplicateDetector_Error(t *testing.T) {
	repo := &mockOrderRepo{findErr: errors.New("timeout")}
	d := NewDuplicateDetector(repo, clock.NewMonotonic(nil), 0)

	if _, err := d.Check(context.Background(), uuid.New(), "IVIG"); err == nil {
		t.Error("expected error")
	}
}
