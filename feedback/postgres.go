package feedback

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// Postgres driver
	_ "github.com/lib/pq"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS pv_feedback (
	date          DATE PRIMARY KEY,
	actual_kwh    DOUBLE PRECISION NOT NULL,
	predicted_kwh DOUBLE PRECISION NOT NULL,
	recorded_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const createPredictionTableSQL = `
CREATE TABLE IF NOT EXISTS pv_prediction (
	date          DATE PRIMARY KEY,
	predicted_kwh DOUBLE PRECISION NOT NULL,
	generated_at  TIMESTAMPTZ NOT NULL
)`

// PostgresStore keeps the log in the pv_feedback table and full-day
// predictions in pv_prediction.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres opens and pings a lib/pq connection.
func OpenPostgres(ctx context.Context, connString string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the pv_feedback and pv_prediction tables if they do
// not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create pv_feedback table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, createPredictionTableSQL); err != nil {
		return fmt.Errorf("failed to create pv_prediction table: %w", err)
	}
	return nil
}

// Add upserts entry by date.
func (s *PostgresStore) Add(ctx context.Context, entry Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pv_feedback (date, actual_kwh, predicted_kwh, recorded_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (date) DO UPDATE SET
			actual_kwh = EXCLUDED.actual_kwh,
			predicted_kwh = EXCLUDED.predicted_kwh,
			recorded_at = EXCLUDED.recorded_at
	`, entry.Date.String(), entry.ActualKWh, entry.PredictedKWh)
	if err != nil {
		return fmt.Errorf("failed to insert feedback for %s: %w", entry.Date, err)
	}
	return nil
}

// List returns all entries ordered by date.
func (s *PostgresStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, actual_kwh, predicted_kwh
		FROM pv_feedback
		ORDER BY date ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var day time.Time
		var e Entry
		if err := rows.Scan(&day, &e.ActualKWh, &e.PredictedKWh); err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		// DATE columns come back as midnight UTC
		e.Date = NewDate(day)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feedback: %w", err)
	}
	return entries, nil
}

// SavePredictions upserts predictions by date in one transaction.
func (s *PostgresStore) SavePredictions(ctx context.Context, predictions []Prediction) error {
	if len(predictions) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, p := range predictions {
		if err := p.Validate(); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO pv_prediction (date, predicted_kwh, generated_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (date) DO UPDATE SET
				predicted_kwh = EXCLUDED.predicted_kwh,
				generated_at = EXCLUDED.generated_at
		`, p.Date.String(), p.EnergyKWh, p.GeneratedAt)
		if err != nil {
			return fmt.Errorf("failed to insert prediction for %s: %w", p.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Prediction returns the stored prediction for date.
func (s *PostgresStore) Prediction(ctx context.Context, date Date) (Prediction, bool, error) {
	p := Prediction{Date: date}
	err := s.db.QueryRowContext(ctx, `
		SELECT predicted_kwh, generated_at
		FROM pv_prediction
		WHERE date = $1
	`, date.String()).Scan(&p.EnergyKWh, &p.GeneratedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Prediction{}, false, nil
	}
	if err != nil {
		return Prediction{}, false, fmt.Errorf("failed to query prediction for %s: %w", date, err)
	}
	return p, true, nil
}
