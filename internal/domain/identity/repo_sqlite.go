package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/careplan/intake/internal/platform/db"
)

// -- Provider Repository (SQLite) --

type providerRepoSQLite struct {
	db *sql.DB
}

func NewProviderRepoSQLite(sqlDB *sql.DB) ProviderRepository {
	return &providerRepoSQLite{db: sqlDB}
}

func (r *providerRepoSQLite) Create(ctx context.Context, p *Provider) error {
	p.ID = uuid.New()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := db.SQLConn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO provider (id, npi, name, created_at) VALUES (?, ?, ?, ?)`,
		p.ID.String(), p.NPI, p.Name, db.FormatSQLiteTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("provider create: %w", db.MapError(err))
	}
	return nil
}

func (r *providerRepoSQLite) GetByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	return r.getOne(ctx, `SELECT `+providerCols+` FROM provider WHERE id = ?`, id.String())
}

func (r *providerRepoSQLite) GetByNPI(ctx context.Context, npi string) (*Provider, error) {
	return r.getOne(ctx, `SELECT `+providerCols+` FROM provider WHERE npi = ?`, npi)
}

func (r *providerRepoSQLite) GetByNameCI(ctx context.Context, name string) (*Provider, error) {
	return r.getOne(ctx, `SELECT `+providerCols+` FROM provider WHERE lower(name) = lower(?)
		ORDER BY created_at, id LIMIT 1`, name)
}

func (r *providerRepoSQLite) getOne(ctx context.Context, query string, arg interface{}) (*Provider, error) {
	var (
		p         Provider
		id        string
		createdAt string
	)
	err := db.SQLConn(ctx, r.db).QueryRowContext(ctx, query, arg).Scan(&id, &p.NPI, &p.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("provider lookup: %w", err)
	}
	if p.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("provider lookup: %w", err)
	}
	if p.CreatedAt, err = db.ParseSQLiteTime(createdAt); err != nil {
		return nil, fmt.Errorf("provider lookup: %w", err)
	}
	return &p, nil
}

// -- Patient Repository (SQLite) --

type patientRepoSQLite struct {
	db *sql.DB
}

func NewPatientRepoSQLite(sqlDB *sql.DB) PatientRepository {
	return &patientRepoSQLite{db: sqlDB}
}

func (r *patientRepoSQLite) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.AdditionalDiagnoses = nonNil(p.AdditionalDiagnoses)
	p.MedicationHistory = nonNil(p.MedicationHistory)

	additional, err := db.EncodeList(p.AdditionalDiagnoses)
	if err != nil {
		return fmt.Errorf("patient create: %w", err)
	}
	history, err := db.EncodeList(p.MedicationHistory)
	if err != nil {
		return fmt.Errorf("patient create: %w", err)
	}

	_, err = db.SQLConn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO patient (
			id, mrn, first_name, last_name, dob, sex, weight,
			primary_diagnosis, additional_diagnoses, allergies, medication_history, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID.String(), p.MRN, p.FirstName, p.LastName, p.DOB.Format(db.SQLiteDateLayout), p.Sex, p.Weight,
		p.PrimaryDiagnosis, additional, p.Allergies, history, db.FormatSQLiteTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("patient create: %w", db.MapError(err))
	}
	return nil
}

func (r *patientRepoSQLite) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.getOne(ctx, `SELECT `+patientCols+` FROM patient WHERE id = ?`, id.String())
}

func (r *patientRepoSQLite) GetByMRN(ctx context.Context, mrn string) (*Patient, error) {
	return r.getOne(ctx, `SELECT `+patientCols+` FROM patient WHERE mrn = ?`, mrn)
}

func (r *patientRepoSQLite) GetByNameCI(ctx context.Context, firstName, lastName string) (*Patient, error) {
	return r.getOne(ctx, `SELECT `+patientCols+` FROM patient
		WHERE lower(first_name) = lower(?) AND lower(last_name) = lower(?)
		ORDER BY created_at, id LIMIT 1`, firstName, lastName)
}

func (r *patientRepoSQLite) getOne(ctx context.Context, query string, args ...interface{}) (*Patient, error) {
	p, err := scanPatientSQLite(db.SQLConn(ctx, r.db).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("patient lookup: %w", err)
	}
	return p, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanPatientSQLite decodes a row selected with the patient column list.
func scanPatientSQLite(row rowScanner) (*Patient, error) {
	var (
		p          Patient
		id         string
		dob        string
		additional string
		history    string
		createdAt  string
		weight     sql.NullFloat64
		allergies  sql.NullString
	)
	err := row.Scan(
		&id, &p.MRN, &p.FirstName, &p.LastName, &dob, &p.Sex, &weight,
		&p.PrimaryDiagnosis, &additional, &allergies, &history, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	if p.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if p.DOB, err = time.Parse(db.SQLiteDateLayout, dob); err != nil {
		return nil, err
	}
	if p.AdditionalDiagnoses, err = db.DecodeList(additional); err != nil {
		return nil, err
	}
	if p.MedicationHistory, err = db.DecodeList(history); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = db.ParseSQLiteTime(createdAt); err != nil {
		return nil, err
	}
	if weight.Valid {
		w := weight.Float64
		p.Weight = &w
	}
	if allergies.Valid {
		a := allergies.String
		p.Allergies = &a
	}
	return &p, nil
}
