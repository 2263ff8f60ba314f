package order

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository persists orders. GetByID and FindRecent return (nil, nil) when
// nothing matches.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	// FindRecent returns the newest order for patientID whose medication
	// equals medication ignoring case and whose created_at is at or after since.
	FindRecent(ctx context.Context, patientID uuid.UUID, medication string, since time.Time) (*Order, error)
	// ListForExport returns every order joined with patient and provider,
	// newest first.
	ListForExport(ctx context.Context) ([]*ExportRow, error)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

const orderCols = `id, patient_id, provider_id, medication, notes, created_at`

const exportQuery = `
	SELECT o.id, o.created_at, p.mrn, p.first_name, p.last_name, p.dob, p.sex,
		pr.npi, pr.name, o.medication, p.primary_diagnosis, p.additional_diagnoses, p.medication_history
	FROM medication_order o
	JOIN patient p ON p.id = o.patient_id
	JOIN provider pr ON pr.id = o.provider_id
	ORDER BY o.created_at DESC, o.id DESC`
