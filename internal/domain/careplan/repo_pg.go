package careplan

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

type carePlanRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &carePlanRepoPG{pool: pool}
}

func (r *carePlanRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *carePlanRepoPG) Create(ctx context.Context, cp *CarePlan) error {
	cp.ID = uuid.New()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO care_plan (id, patient_id, order_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		cp.ID, cp.PatientID, cp.OrderID, cp.Content, cp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("care plan create: %w", db.MapError(err))
	}
	return nil
}

func (r *carePlanRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*CarePlan, error) {
	cp, err := scanCarePlan(r.conn(ctx).QueryRow(ctx, `SELECT `+carePlanCols+` FROM care_plan WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("care plan lookup: %w", err)
	}
	return cp, nil
}

func (r *carePlanRepoPG) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*CarePlan, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+carePlanCols+` FROM care_plan
		WHERE order_id = $1 ORDER BY created_at DESC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("care plan list: %w", err)
	}
	defer rows.Close()

	var out []*CarePlan
	for rows.Next() {
		cp, err := scanCarePlan(rows)
		if err != nil {
			return nil, fmt.Errorf("care plan list: %w", err)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

func scanCarePlan(row pgx.Row) (*CarePlan, error) {
	var cp CarePlan
	if err := row.Scan(&cp.ID, &cp.PatientID, &cp.OrderID, &cp.Content, &cp.CreatedAt); err != nil {
		return nil, err
	}
	return &cp, nil
}
