package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/devskill-org/pvyield/forecast"
	"github.com/devskill-org/pvyield/utils"
	"github.com/devskill-org/pvyield/yield"
)

const createForecastTableSQL = `
CREATE TABLE IF NOT EXISTS pv_forecast (
	timestamp     TIMESTAMPTZ PRIMARY KEY,
	run_id        TEXT NOT NULL,
	source        TEXT NOT NULL,
	generated_at  TIMESTAMPTZ NOT NULL,
	bias          DOUBLE PRECISION NOT NULL,
	poa           DOUBLE PRECISION NOT NULL,
	temp_air      DOUBLE PRECISION NOT NULL,
	temp_module   DOUBLE PRECISION NOT NULL,
	efficiency    DOUBLE PRECISION NOT NULL,
	raw_power_kw  DOUBLE PRECISION NOT NULL,
	power_kw      DOUBLE PRECISION NOT NULL
)`

func ensureForecastSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createForecastTableSQL); err != nil {
		return fmt.Errorf("failed to create pv_forecast table: %w", err)
	}
	return nil
}

// saveForecast persists the forecast points, replacing stored points from the
// first forecast hour onwards.
func (s *ForecastScheduler) saveForecast(ctx context.Context, db *sql.DB, f *forecast.Forecast) error {
	if db == nil {
		return fmt.Errorf("database connection not available")
	}

	if len(f.Points) == 0 {
		return nil
	}

	if s.GetConfig().DryRun {
		s.logger.Info("[DRY-RUN] would save forecast",
			zap.String("id", f.ID),
			zap.Int("points", len(f.Points)),
			zap.Time("from", f.Points[0].Time))
		return nil
	}

	// Points are ordered by time
	minTimestamp := f.Points[0].Time

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `DELETE FROM pv_forecast WHERE timestamp >= $1`, minTimestamp)
	if err != nil {
		return fmt.Errorf("failed to delete existing forecast: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO pv_forecast (
			timestamp,
			run_id,
			source,
			generated_at,
			bias,
			poa,
			temp_air,
			temp_module,
			efficiency,
			raw_power_kw,
			power_kw
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (timestamp) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			source = EXCLUDED.source,
			generated_at = EXCLUDED.generated_at,
			bias = EXCLUDED.bias,
			poa = EXCLUDED.poa,
			temp_air = EXCLUDED.temp_air,
			temp_module = EXCLUDED.temp_module,
			efficiency = EXCLUDED.efficiency,
			raw_power_kw = EXCLUDED.raw_power_kw,
			power_kw = EXCLUDED.power_kw
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range f.Points {
		_, err := stmt.ExecContext(ctx,
			p.Time,
			f.ID,
			f.Source,
			f.GeneratedAt,
			f.Bias,
			p.POA,
			p.TempAir,
			p.TempModule,
			p.Efficiency,
			p.RawPowerKW,
			p.PowerKW,
		)
		if err != nil {
			return fmt.Errorf("failed to insert forecast point at %s: %w", p.Time.Format(time.RFC3339), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("Saved forecast to database", zap.String("id", f.ID), zap.Int("points", len(f.Points)))
	return nil
}

// loadLatestForecast rebuilds the most recent stored forecast from the
// points at or after since. It returns nil when nothing is stored.
func (s *ForecastScheduler) loadLatestForecast(ctx context.Context, db *sql.DB, since time.Time) (*forecast.Forecast, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection not available")
	}

	rows, err := db.QueryContext(ctx, `
		SELECT
			timestamp,
			run_id,
			source,
			generated_at,
			bias,
			poa,
			temp_air,
			temp_module,
			efficiency,
			raw_power_kw,
			power_kw
		FROM pv_forecast
		WHERE timestamp >= $1
		ORDER BY timestamp ASC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query forecast: %w", err)
	}
	defer rows.Close()

	f := &forecast.Forecast{}
	for rows.Next() {
		var p yield.Point
		err := rows.Scan(
			&p.Time,
			&f.ID,
			&f.Source,
			&f.GeneratedAt,
			&f.Bias,
			&p.POA,
			&p.TempAir,
			&p.TempModule,
			&p.Efficiency,
			&p.RawPowerKW,
			&p.PowerKW,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan forecast point: %w", err)
		}
		f.Points = append(f.Points, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating forecast points: %w", err)
	}

	if len(f.Points) == 0 {
		s.logger.Info("No stored forecast found in database")
		return nil, nil
	}

	s.summarizeStored(f)

	s.logger.Info("Loaded forecast from database", zap.String("id", f.ID), zap.Int("points", len(f.Points)))
	return f, nil
}

// summarizeStored derives the daily totals and summary values of a forecast
// rebuilt from stored points.
func (s *ForecastScheduler) summarizeStored(f *forecast.Forecast) {
	config := s.GetConfig()
	f.Location.Latitude, f.Location.Longitude = config.Latitude, config.Longitude
	f.Daily = yield.DailyTotals(f.Points, s.location())
	f.TotalKWh = lo.SumBy(f.Daily, func(d yield.DailyTotal) float64 { return d.EnergyKWh })
	f.RawTotalKWh = lo.SumBy(f.Daily, func(d yield.DailyTotal) float64 { return d.RawEnergyKWh })
	f.MaxModuleTemp = yield.MaxModuleTemperature(f.Points)
}

// restoreForecast loads the stored points of the prediction retention window.
// Fully stored days refill the full-day predictions and the points from
// today's midnight on serve as the latest forecast until the first run
// completes.
func (s *ForecastScheduler) restoreForecast(ctx context.Context) {
	s.mu.RLock()
	db, latest := s.db, s.latest
	s.mu.RUnlock()
	if db == nil || latest != nil {
		return
	}

	loc := s.location()
	today := utils.StartOfDay(s.now().In(loc))

	stored, err := s.loadLatestForecast(ctx, db, today.AddDate(0, 0, -predictionRetentionDays))
	if err != nil {
		s.logger.Error("Failed to load stored forecast", zap.Error(err))
		return
	}
	if stored == nil {
		return
	}

	fullDays := stored.FullDays(loc)

	current := *stored
	current.Points = lo.Filter(stored.Points, func(p yield.Point, _ int) bool { return !p.Time.Before(today) })
	s.summarizeStored(&current)

	s.mu.Lock()
	for _, d := range fullDays {
		if _, ok := s.predictions[dayKey(d.Date)]; !ok {
			s.predictions[dayKey(d.Date)] = d
		}
	}
	if s.latest == nil && len(current.Points) > 0 {
		s.latest = &current
	}
	s.mu.Unlock()

	s.logger.Info("Restored stored forecast",
		zap.Int("full_days", len(fullDays)),
		zap.Int("points", len(current.Points)))
}
