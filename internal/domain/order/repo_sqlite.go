package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/careplan/intake/internal/platform/db"
)

type orderRepoSQLite struct {
	db *sql.DB
}

func NewRepoSQLite(sqlDB *sql.DB) Repository {
	return &orderRepoSQLite{db: sqlDB}
}

func (r *orderRepoSQLite) Create(ctx context.Context, o *Order) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	_, err := db.SQLConn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO medication_order (id, patient_id, provider_id, medication, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		o.ID.String(), o.PatientID.String(), o.ProviderID.String(), o.Medication, o.Notes, db.FormatSQLiteTime(o.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("order create: %w", db.MapError(err))
	}
	return nil
}

func (r *orderRepoSQLite) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	return r.getOne(ctx, `SELECT `+orderCols+` FROM medication_order WHERE id = ?`, id.String())
}

func (r *orderRepoSQLite) FindRecent(ctx context.Context, patientID uuid.UUID, medication string, since time.Time) (*Order, error) {
	return r.getOne(ctx, `SELECT `+orderCols+` FROM medication_order
		WHERE patient_id = ? AND lower(medication) = lower(?) AND created_at >= ?
		ORDER BY created_at DESC LIMIT 1`, patientID.String(), medication, db.FormatSQLiteTime(since))
}

func (r *orderRepoSQLite) getOne(ctx context.Context, query string, args ...interface{}) (*Order, error) {
	var (
		o                         Order
		id, patientID, providerID string
		createdAt                 string
		notes                     sql.NullString
	)
	err := db.SQLConn(ctx, r.db).QueryRowContext(ctx, query, args...).
		Scan(&id, &patientID, &providerID, &o.Medication, &notes, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("order lookup: %w", err)
	}

	if o.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("order lookup: %w", err)
	}
	if o.PatientID, err = uuid.Parse(patientID); err != nil {
		return nil, fmt.Errorf("order lookup: %w", err)
	}
	if o.ProviderID, err = uuid.Parse(providerID); err != nil {
		return nil, fmt.Errorf("order lookup: %w", err)
	}
	if o.CreatedAt, err = db.ParseSQLiteTime(createdAt); err != nil {
		return nil, fmt.Errorf("order lookup: %w", err)
	}
	if notes.Valid {
		n := notes.String
		o.Notes = &n
	}
	return &o, nil
}

func (r *orderRepoSQLite) ListForExport(ctx context.Context) ([]*ExportRow, error) {
	rows, err := db.SQLConn(ctx, r.db).QueryContext(ctx, exportQuery)
	if err != nil {
		return nil, fmt.Errorf("order export: %w", err)
	}
	defer rows.Close()

	var out []*ExportRow
	for rows.Next() {
		var (
			e                   ExportRow
			id, created, dob    string
			additional, history string
		)
		if err := rows.Scan(
			&id, &created, &e.PatientMRN, &e.PatientFirstName, &e.PatientLastName, &dob, &e.PatientSex,
			&e.ProviderNPI, &e.ProviderName, &e.Medication, &e.PrimaryDiagnosis, &additional, &history,
		); err != nil {
			return nil, fmt.Errorf("order export scan: %w", err)
		}
		if e.OrderID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("order export: %w", err)
		}
		if e.OrderDate, err = db.ParseSQLiteTime(created); err != nil {
			return nil, fmt.Errorf("order export: %w", err)
		}
		if e.PatientDOB, err = time.Parse(db.SQLiteDateLayout, dob); err != nil {
			return nil, fmt.Errorf("order export: %w", err)
		}
		if e.AdditionalDiagnoses, err = db.DecodeList(additional); err != nil {
			return nil, fmt.Errorf("order export: %w", err)
		}
		if e.MedicationHistory, err = db.DecodeList(history); err != nil {
			return nil, fmt.Errorf("order export: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
