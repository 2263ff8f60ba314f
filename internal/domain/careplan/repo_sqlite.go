package careplan

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/careplan/intake/internal/platform/db"
)

type carePlanRepoSQLite struct {
	db *sql.DB
}

func NewRepoSQLite(sqlDB *sql.DB) Repository {
	return &carePlanRepoSQLite{db: sqlDB}
}

func (r *carePlanRepoSQLite) Create(ctx context.Context, cp *CarePlan) error {
	cp.ID = uuid.New()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	_, err := db.SQLConn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO care_plan (id, patient_id, order_id, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		cp.ID.String(), cp.PatientID.String(), cp.OrderID.String(), cp.Content, db.FormatSQLiteTime(cp.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("care plan create: %w", db.MapError(err))
	}
	return nil
}

func (r *carePlanRepoSQLite) GetByID(ctx context.Context, id uuid.UUID) (*CarePlan, error) {
	cp, err := scanCarePlanSQLite(db.SQLConn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+carePlanCols+` FROM care_plan WHERE id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("care plan lookup: %w", err)
	}
	return cp, nil
}

func (r *carePlanRepoSQLite) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*CarePlan, error) {
	rows, err := db.SQLConn(ctx, r.db).QueryContext(ctx, `SELECT `+carePlanCols+` FROM care_plan
		WHERE order_id = ? ORDER BY created_at DESC`, orderID.String())
	if err != nil {
		return nil, fmt.Errorf("care plan list: %w", err)
	}
	defer rows.Close()

	var out []*CarePlan
	for rows.Next() {
		cp, err := scanCarePlanSQLite(rows)
		if err != nil {
			return nil, fmt.Errorf("care plan list: %w", err)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCarePlanSQLite(row rowScanner) (*CarePlan, error) {
	var (
		cp                     CarePlan
		id, patientID, orderID string
		createdAt              string
	)
	if err := row.Scan(&id, &patientID, &orderID, &cp.Content, &createdAt); err != nil {
		return nil, err
	}

	var err error
	if cp.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if cp.PatientID, err = uuid.Parse(patientID); err != nil {
		return nil, err
	}
	if cp.OrderID, err = uuid.Parse(orderID); err != nil {
		return nil, err
	}
	if cp.CreatedAt, err = db.ParseSQLiteTime(createdAt); err != nil {
		return nil, err
	}
	return &cp, nil
}
