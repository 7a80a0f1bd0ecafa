package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const schema = `CREATE TABLE IF NOT EXISTS analysis_history (
	id        UUID   NOT NULL,
	user_id   TEXT   NOT NULL,
	ts        BIGINT NOT NULL,
	analysis  JSONB  NOT NULL,
	PRIMARY KEY (user_id, ts)
)`

// Postgres implements Store on a PostgreSQL table.
type Postgres struct {
	db *sqlx.DB
}

// OpenPostgres connects to dsn and ensures the table exists.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxIdleConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	p := NewPostgres(db)
	if err := p.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

// NewPostgres wraps an existing connection.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the history table if missing.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

type recordRow struct {
	ID        string `db:"id"`
	UserID    string `db:"user_id"`
	Timestamp int64  `db:"ts"`
	Analysis  []byte `db:"analysis"`
}

// Save upserts a record and keeps the existing ID on replace.
func (p *Postgres) Save(ctx context.Context, rec *Record) error {
	if err := prepare(rec, time.Now()); err != nil {
		return err
	}

	query := `INSERT INTO analysis_history (id, user_id, ts, analysis)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id, ts) DO UPDATE SET analysis = EXCLUDED.analysis
			RETURNING id`

	var id string
	if err := p.db.QueryRowContext(ctx, query, rec.ID, rec.UserID, rec.Timestamp, []byte(rec.Analysis)).Scan(&id); err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	rec.ID = id
	return nil
}

// List returns a user's records, newest first.
func (p *Postgres) List(ctx context.Context, userID string) ([]Record, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}

	query := `SELECT id, user_id, ts, analysis
			FROM analysis_history
			WHERE user_id=$1
			ORDER BY ts DESC`

	var rows []recordRow
	if err := p.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	out := make([]Record, len(rows))
	for i, r := range rows {
		out[i] = Record{ID: r.ID, UserID: r.UserID, Timestamp: r.Timestamp, Analysis: r.Analysis}
	}
	return out, nil
}

// Delete removes one record.
func (p *Postgres) Delete(ctx context.Context, userID string, timestamp int64) error {
	if err := ValidateUserID(userID); err != nil {
		return err
	}
	if err := ValidateTimestamp(timestamp); err != nil {
		return err
	}

	res, err := p.db.ExecContext(ctx, `DELETE FROM analysis_history WHERE user_id=$1 AND ts=$2`, userID, timestamp)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s@%d", ErrNotFound, userID, timestamp)
	}
	return nil
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

var _ Store = (*Postgres)(nil)
