package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ykvlv/booking-bot/internal/domain"
)

// pgUniqueViolation is SQLSTATE unique_violation.
const pgUniqueViolation = "23505"

// PostgresRepo implements Repo on a pgx connection pool.
type PostgresRepo struct {
	pool *pgxpool.Pool
}

var _ Repo = (*PostgresRepo)(nil)

// OpenPostgres connects to databaseURL, pings it and applies migrations.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresRepo, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := runPGMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return &PostgresRepo{pool: pool}, nil
}

func runPGMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT        PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return err
	}
	migrations, err := loadMigrations("postgres")
	if err != nil {
		return err
	}
	for _, m := range migrations {
		err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			tag, err := tx.Exec(ctx,
				`INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT (version) DO NOTHING`,
				m.version,
			)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return nil
			}
			_, err = tx.Exec(ctx, m.body)
			return err
		})
		if err != nil {
			return fmt.Errorf("%s: %w", m.version, err)
		}
	}
	return nil
}

func (r *PostgresRepo) Close() error {
	r.pool.Close()
	return nil
}

func (r *PostgresRepo) UpsertClient(ctx context.Context, id int64, firstName, lastName string) (*domain.Client, error) {
	var c domain.Client
	err := r.pool.QueryRow(ctx, `
		INSERT INTO clients (id, first_name, last_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name  = EXCLUDED.last_name
		RETURNING id, first_name, last_name, created_at`,
		id, firstName, lastName,
	).Scan(&c.ID, &c.FirstName, &c.LastName, &c.CreatedAt)
	if err != nil {
		return nil, storageErr("upsert client", err)
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (r *PostgresRepo) GetClient(ctx context.Context, id int64) (*domain.Client, error) {
	var c domain.Client
	err := r.pool.QueryRow(ctx, `
		SELECT id, first_name, last_name, created_at
		FROM clients
		WHERE id = $1`, id,
	).Scan(&c.ID, &c.FirstName, &c.LastName, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("client %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("get client", err)
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (r *PostgresRepo) CreateBooking(ctx context.Context, clientID int64, day, slot string, provider domain.Provider) (*domain.Booking, error) {
	b := domain.Booking{ClientID: clientID, Day: day, Time: slot, Provider: provider}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO bookings (client_id, day, time, provider)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		clientID, day, slot, string(provider),
	).Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		if isPGUnique(err) {
			return nil, &domain.ConflictError{Day: day, Time: slot, Provider: provider}
		}
		return nil, storageErr("create booking", err)
	}
	b.CreatedAt = b.CreatedAt.UTC()
	return &b, nil
}

func (r *PostgresRepo) ListBusy(ctx context.Context, day string, provider domain.Provider) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT time
		FROM bookings
		WHERE day = $1 AND provider = $2`,
		day, string(provider),
	)
	if err != nil {
		return nil, storageErr("list busy", err)
	}
	res, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, storageErr("list busy", err)
	}
	return res, nil
}

func (r *PostgresRepo) ListBookings(ctx context.Context) ([]domain.Booking, error) {
	rows, err := r.pool.Query(ctx, `
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
		b, err := scanBookingPG(rows)
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

func (r *PostgresRepo) CountBookings(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bookings`).Scan(&n); err != nil {
		return 0, storageErr("count bookings", err)
	}
	return n, nil
}

func (r *PostgresRepo) ClearBookings(ctx context.Context) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM bookings`)
	if err != nil {
		return 0, storageErr("clear bookings", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *PostgresRepo) ResetWeek(ctx context.Context, date string) (int, bool, error) {
	var (
		removed   int64
		performed bool
	)
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`INSERT INTO reset_log (date) VALUES ($1) ON CONFLICT (date) DO NOTHING`, date)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		del, err := tx.Exec(ctx, `DELETE FROM bookings`)
		if err != nil {
			return err
		}
		removed = del.RowsAffected()
		if _, err := tx.Exec(ctx,
			`UPDATE reset_log SET removed = $1 WHERE date = $2`, removed, date,
		); err != nil {
			return err
		}
		performed = true
		return nil
	})
	if err != nil {
		return 0, false, storageErr("reset week", err)
	}
	return int(removed), performed, nil
}

func (r *PostgresRepo) LastReset(ctx context.Context) (string, error) {
	var d string
	if err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(date), '') FROM reset_log`,
	).Scan(&d); err != nil {
		return "", storageErr("last reset", err)
	}
	return d, nil
}

// isPGUnique reports whether err is a unique_violation from Postgres.
func isPGUnique(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
