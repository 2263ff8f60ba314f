package identity

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

// -- Provider Repository --

type providerRepoPG struct {
	pool *pgxpool.Pool
}

func NewProviderRepo(pool *pgxpool.Pool) ProviderRepository {
	return &providerRepoPG{pool: pool}
}

func (r *providerRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const providerCols = `id, npi, name, created_at`

func (r *providerRepoPG) Create(ctx context.Context, p *Provider) error {
	p.ID = uuid.New()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO provider (id, npi, name, created_at) VALUES ($1, $2, $3, $4)`,
		p.ID, p.NPI, p.Name, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("provider create: %w", db.MapError(err))
	}
	return nil
}

func (r *providerRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	return r.getOne(ctx, `SELECT `+providerCols+` FROM provider WHERE id = $1`, id)
}

func (r *providerRepoPG) GetByNPI(ctx context.Context, npi string) (*Provider, error) {
	return r.getOne(ctx, `SELECT `+providerCols+` FROM provider WHERE npi = $1`, npi)
}

func (r *providerRepoPG) GetByNameCI(ctx context.Context, name string) (*Provider, error) {
	return r.getOne(ctx, `SELECT `+providerCols+` FROM provider WHERE lower(name) = lower($1)
		ORDER BY created_at, id LIMIT 1`, name)
}

func (r *providerRepoPG) getOne(ctx context.Context, sql string, arg interface{}) (*Provider, error) {
	p, err := scanProvider(r.conn(ctx).QueryRow(ctx, sql, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("provider lookup: %w", err)
	}
	return p, nil
}

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	if err := row.Scan(&p.ID, &p.NPI, &p.Name, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// -- Patient Repository --

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewPatientRepo(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const patientCols = `id, mrn, first_name, last_name, dob, sex, weight,
	primary_diagnosis, additional_diagnoses, allergies, medication_history, created_at`

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.AdditionalDiagnoses = nonNil(p.AdditionalDiagnoses)
	p.MedicationHistory = nonNil(p.MedicationHistory)

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient (
			id, mrn, first_name, last_name, dob, sex, weight,
			primary_diagnosis, additional_diagnoses, allergies, medication_history, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		p.ID, p.MRN, p.FirstName, p.LastName, p.DOB, p.Sex, p.Weight,
		p.PrimaryDiagnosis, p.AdditionalDiagnoses, p.Allergies, p.MedicationHistory, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("patient create: %w", db.MapError(err))
	}
	return nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.getOne(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id)
}

func (r *patientRepoPG) GetByMRN(ctx context.Context, mrn string) (*Patient, error) {
	return r.getOne(ctx, `SELECT `+patientCols+` FROM patient WHERE mrn = $1`, mrn)
}

func (r *patientRepoPG) GetByNameCI(ctx context.Context, firstName, lastName string) (*Patient, error) {
	return r.getOne(ctx, `SELECT `+patientCols+` FROM patient
		WHERE lower(first_name) = lower($1) AND lower(last_name) = lower($2)
		ORDER BY created_at, id LIMIT 1`, firstName, lastName)
}

func (r *patientRepoPG) getOne(ctx context.Context, sql string, args ...interface{}) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("patient lookup: %w", err)
	}
	return p, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID, &p.MRN, &p.FirstName, &p.LastName, &p.DOB, &p.Sex, &p.Weight,
		&p.PrimaryDiagnosis, &p.AdditionalDiagnoses, &p.Allergies, &p.MedicationHistory, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.AdditionalDiagnoses = nonNil(p.AdditionalDiagnoses)
	p.MedicationHistory = nonNil(p.MedicationHistory)
	return &p, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
