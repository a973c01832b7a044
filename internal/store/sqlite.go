package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	// Registers the "sqlite" driver (pure Go).
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/ykvlv/booking-bot/internal/domain"
)

// SQLiteRepo implements Repo using an embedded SQLite database.
type SQLiteRepo struct{ db *sql.DB }

var _ Repo = (*SQLiteRepo)(nil)

// OpenSQLite opens (or creates) the SQLite database at the given path,
// applies recommended PRAGMAs, runs SQL migrations, and returns a repository.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Single-writer engine: one connection also keeps per-connection PRAGMAs in force.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &SQLiteRepo{db: db}, nil
}

// applyPragmas configures the SQLite connection for durability and concurrency.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database resources.
func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

// UpsertClient inserts the client or, if the id exists, updates the name.
// created_at of an existing row is preserved.
func (r *SQLiteRepo) UpsertClient(ctx context.Context, id int64, firstName, lastName string) (*domain.Client, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO clients (id, first_name, last_name, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name  = excluded.last_name`,
		id, firstName, lastName, time.Now().UTC().Unix(),
	)
	if err != nil {
		return nil, storageErr("upsert client", err)
	}
	return r.GetClient(ctx, id)
}

// GetClient returns a client by id or domain.ErrNotFound.
func (r *SQLiteRepo) GetClient(ctx context.Context, id int64) (*domain.Client, error) {
	var (
		c       domain.Client
		created int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, first_name, last_name, created_at
		FROM clients
		WHERE id = ?`, id,
	).Scan(&c.ID, &c.FirstName, &c.LastName, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("client %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("get client", err)
	}
	c.CreatedAt = fromUnix(created)
	return &c, nil
}

// CreateBooking inserts a booking. The UNIQUE(day, time, provider) constraint
// makes the insert fail as a whole when the triple is already taken.
func (r *SQLiteRepo) CreateBooking(ctx context.Context, clientID int64, day, slot string, provider domain.Provider) (*domain.Booking, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO bookings (client_id, day, time, provider, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		clientID, day, slot, string(provider), now.Unix(),
	)
	if err != nil {
		if isSQLiteUnique(err) {
			return nil, &domain.ConflictError{Day: day, Time: slot, Provider: provider}
		}
		return nil, storageErr("create booking", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, storageErr("create booking", err)
	}
	return &domain.Booking{
		ID:        id,
		ClientID:  clientID,
		Day:       day,
		Time:      slot,
		Provider:  provider,
		CreatedAt: time.Unix(now.Unix(), 0).UTC(),
	}, nil
}

// ListBusy returns the committed times for day/provider.
func (r *SQLiteRepo) ListBusy(ctx context.Context, day string, provider domain.Provider) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT time
		FROM bookings
		WHERE day = ? AND provider = ?`,
		day, string(provider),
	)
	if err != nil {
		return nil, storageErr("list busy", err)
	}
	defer rows.Close()

	var res []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, storageErr("list busy", err)
		}
		res = append(res, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list busy", err)
	}
	return res, nil
}

// ListBookings returns every booking joined with its client's name.
func (r *SQLiteRepo) ListBookings(ctx context.Context) ([]domain.Booking, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT b.id, b.client_id, b.day, b.time, b.provider, b.created_at,
		       c.first_name || ' ' || c.last_name
		FROM bookings b
		JOIN clients c ON c.id = b.client_id
		ORDER BY b.id ASC`)
	if err != nil {
		return nil, storageErr("list bookings", err)
	}
	defer rows.Close()

	var res []domain.Booking
	for rows.Next() {
		b, err := scanBookingSQLite(rows)
		if err != nil {
			return nil, storageErr("list bookings", err)
		}
		res = append(res, b)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list bookings", err)
	}
	return res, nil
}

// CountBookings returns the number of committed bookings.
func (r *SQLiteRepo) CountBookings(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings`).Scan(&n); err != nil {
		return 0, storageErr("count bookings", err)
	}
	return n, nil
}

// ClearBookings deletes all bookings.
func (r *SQLiteRepo) ClearBookings(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM bookings`)
	if err != nil {
		return 0, storageErr("clear bookings", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("clear bookings", err)
	}
	return int(n), nil
}

// ResetWeek records date in reset_log and clears bookings in one transaction.
// A date that is already recorded leaves the bookings untouched.
func (r *SQLiteRepo) ResetWeek(ctx context.Context, date string) (int, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, storageErr("reset week", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO reset_log (date, removed, created_at)
		VALUES (?, 0, ?)
		ON CONFLICT(date) DO NOTHING`,
		date, time.Now().UTC().Unix(),
	)
	if err != nil {
		return 0, false, storageErr("reset week", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return 0, false, storageErr("reset week", err)
	} else if n == 0 {
		return 0, false, nil
	}

	del, err := tx.ExecContext(ctx, `DELETE FROM bookings`)
	if err != nil {
		return 0, false, storageErr("reset week", err)
	}
	removed, err := del.RowsAffected()
	if err != nil {
		return 0, false, storageErr("reset week", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE reset_log SET removed = ? WHERE date = ?`, removed, date,
	); err != nil {
		return 0, false, storageErr("reset week", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, false, storageErr("reset week", err)
	}
	return int(removed), true, nil
}

// LastReset returns the latest reset date or "".
func (r *SQLiteRepo) LastReset(ctx context.Context) (string, error) {
	var d string
	if err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(date), '') FROM reset_log`,
	).Scan(&d); err != nil {
		return "", storageErr("last reset", err)
	}
	return d, nil
}

// isSQLiteUnique reports a UNIQUE or PRIMARY KEY constraint violation.
func isSQLiteUnique(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		// primary code only, when extended result codes are off
		return strings.Contains(se.Error(), "UNIQUE constraint failed")
	}
	return false
}
