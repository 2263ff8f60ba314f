package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careplan/intake/internal/platform/db"
)

type orderRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &orderRepoPG{pool: pool}
}

func (r *orderRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *orderRepoPG) Create(ctx context.Context, o *Order) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO medication_order (id, patient_id, provider_id, medication, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		o.ID, o.PatientID, o.ProviderID, o.Medication, o.Notes, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("order create: %w", db.MapError(err))
	}
	return nil
}

func (r *orderRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	return r.getOne(ctx, `SELECT `+orderCols+` FROM medication_order WHERE id = $1`, id)
}

func (r *orderRepoPG) FindRecent(ctx context.Context, patientID uuid.UUID, medication string, since time.Time) (*Order, error) {
	return r.getOne(ctx, `SELECT `+orderCols+` FROM medication_order
		WHERE patient_id = $1 AND lower(medication) = lower($2) AND created_at >= $3
		ORDER BY created_at DESC LIMIT 1`, patientID, medication, since)
}

func (r *orderRepoPG) getOne(ctx context.Context, sql string, args ...interface{}) (*Order, error) {
	o, err := scanOrder(r.conn(ctx).QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("order lookup: %w", err)
	}
	return o, nil
}

func (r *orderRepoPG) ListForExport(ctx context.Context) ([]*ExportRow, error) {
	rows, err := r.conn(ctx).Query(ctx, exportQuery)
	if err != nil {
		return nil, fmt.Errorf("order export: %w", err)
	}
	defer rows.Close()

	var out []*ExportRow
	for rows.Next() {
		var e ExportRow
		if err := rows.Scan(
			&e.OrderID, &e.OrderDate, &e.PatientMRN, &e.PatientFirstName, &e.PatientLastName, &e.PatientDOB, &e.PatientSex,
			&e.ProviderNPI, &e.ProviderName, &e.Medication, &e.PrimaryDiagnosis, &e.AdditionalDiagnoses, &e.MedicationHistory,
		); err != nil {
			return nil, fmt.Errorf("order export scan: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	if err := row.Scan(&o.ID, &o.PatientID, &o.ProviderID, &o.Medication, &o.Notes, &o.CreatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}
