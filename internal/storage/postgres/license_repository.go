package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/makkenzo/keybind/internal/domain/license"
	"go.uber.org/zap"
)

const licenseColumns = `license_key, type, created_at, expires_at, revoked, machine_id, activated_at, uses, last_seen, note`

type LicenseRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewLicenseRepository(db *pgxpool.Pool, logger *zap.Logger) *LicenseRepository {
	return &LicenseRepository{
		db:     db,
		logger: logger.Named("LicenseRepository"),
	}
}

var _ license.Store = (*LicenseRepository)(nil)

func (r *LicenseRepository) Get(ctx context.Context, key string) (*license.Record, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE license_key = $1`

	row := r.db.QueryRow(ctx, query, key)
	return r.scanLicense(row)
}

func (r *LicenseRepository) Put(ctx context.Context, rec *license.Record) error {
	query := `
        INSERT INTO licenses (` + licenseColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (license_key) DO UPDATE SET
            type = EXCLUDED.type,
            created_at = EXCLUDED.created_at,
            expires_at = EXCLUDED.expires_at,
            revoked = EXCLUDED.revoked,
            machine_id = EXCLUDED.machine_id,
            activated_at = EXCLUDED.activated_at,
            uses = EXCLUDED.uses,
            last_seen = EXCLUDED.last_seen,
            note = EXCLUDED.note
    `
	_, err := r.db.Exec(ctx, query,
		rec.Key,
		string(rec.Type),
		rec.CreatedAt,
		rec.ExpiresAt,
		rec.Revoked,
		rec.MachineID,
		rec.ActivatedAt,
		rec.Uses,
		rec.LastSeen,
		rec.Note,
	)
	if err != nil {
		r.logger.Error("Failed to upsert license", zap.Error(err))
		return fmt.Errorf("database error on put license: %w", err)
	}
	return nil
}

func (r *LicenseRepository) Patch(ctx context.Context, key string, p license.Patch) error {
	query := `
        UPDATE licenses SET
            revoked = COALESCE($2, revoked),
            machine_id = COALESCE($3, machine_id),
            activated_at = COALESCE($4, activated_at),
            uses = COALESCE($5, uses),
            last_seen = COALESCE($6, last_seen)
        WHERE license_key = $1
    `
	cmdTag, err := r.db.Exec(ctx, query, key, p.Revoked, p.MachineID, p.ActivatedAt, p.Uses, p.LastSeen)
	if err != nil {
		r.logger.Error("Failed to patch license", zap.Error(err))
		return fmt.Errorf("database error on patch license: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return license.ErrNotFound
	}
	return nil
}

func (r *LicenseRepository) List(ctx context.Context) ([]*license.Record, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		r.logger.Error("Failed to query list of licenses", zap.Error(err))
		return nil, fmt.Errorf("database error on list licenses: %w", err)
	}
	defer rows.Close()

	records := make([]*license.Record, 0)
	for rows.Next() {
		rec, err := r.scanLicense(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err = rows.Err(); err != nil {
		r.logger.Error("Error iterating license rows", zap.Error(err))
		return nil, fmt.Errorf("database iteration error on list licenses: %w", err)
	}

	return records, nil
}

func (r *LicenseRepository) BindIfAbsent(ctx context.Context, key, machineID string, at time.Time) (*license.Record, bool, error) {
	query := `
        UPDATE licenses SET machine_id = $2, activated_at = $3, uses = 1
        WHERE license_key = $1 AND (machine_id IS NULL OR machine_id = '')
        RETURNING ` + licenseColumns

	rec, err := r.scanLicense(r.db.QueryRow(ctx, query, key, machineID, at))
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, license.ErrNotFound) {
		return nil, false, err
	}

	// Either the key does not exist or another request bound it first.
	current, err := r.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

func (r *LicenseRepository) RecordUse(ctx context.Context, key string, at time.Time) (*license.Record, error) {
	query := `
        UPDATE licenses SET uses = uses + 1, last_seen = $2
        WHERE license_key = $1
        RETURNING ` + licenseColumns

	return r.scanLicense(r.db.QueryRow(ctx, query, key, at))
}

func (r *LicenseRepository) scanLicense(row pgx.Row) (*license.Record, error) {
	var rec license.Record
	var typ string
	err := row.Scan(
		&rec.Key,
		&typ,
		&rec.CreatedAt,
		&rec.ExpiresAt,
		&rec.Revoked,
		&rec.MachineID,
		&rec.ActivatedAt,
		&rec.Uses,
		&rec.LastSeen,
		&rec.Note,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, license.ErrNotFound
		}

		r.logger.Error("Failed to scan license row", zap.Error(err))
		return nil, fmt.Errorf("database scan error: %w", err)
	}

	rec.Type, err = license.ParseType(typ)
	if err != nil {
		return nil, fmt.Errorf("corrupt license row %s: %w", rec.Key, err)
	}
	return &rec, nil
}
