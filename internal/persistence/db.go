// Package persistence provides SQLite-based storage of simulation runs:
// daily per-layer flow results, pool snapshots, events and run metadata.
package persistence

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/soil-flow/internal/engine"
	"github.com/talgya/soil-flow/internal/soil"
)

const dateLayout = "2006-01-02"

// DB wraps a SQLite connection for run storage.
type DB struct {
	conn *sqlx.DB
}

// Run is a stored simulation run.
type Run struct {
	ID        string `db:"id"`
	Scenario  string `db:"scenario"`
	StartDate string `db:"start_date"`
	CreatedAt string `db:"created_at"`
}

// DailyTotal sums one day's results over all flows and layers.
type DailyTotal struct {
	Date         string  `db:"date"`
	CO2          float64 `db:"co2"`
	MineralisedN float64 `db:"mineralised_n"`
	MineralisedP float64 `db:"mineralised_p"`
}

// PoolLayer is one layer of a stored pool snapshot.
type PoolLayer struct {
	Date  string  `db:"date"`
	Pool  string  `db:"pool"`
	Layer int     `db:"layer"`
	C     float64 `db:"c"`
	N     float64 `db:"n"`
	P     float64 `db:"p"`
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		scenario TEXT NOT NULL,
		start_date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS daily_layers (
		run_id TEXT NOT NULL,
		date TEXT NOT NULL,
		flow TEXT NOT NULL,
		layer INTEGER NOT NULL,
		mineralised_n REAL NOT NULL,
		mineralised_p REAL NOT NULL,
		co2 REAL NOT NULL,
		PRIMARY KEY (run_id, date, flow, layer)
	);

	CREATE TABLE IF NOT EXISTS pool_layers (
		run_id TEXT NOT NULL,
		date TEXT NOT NULL,
		pool TEXT NOT NULL,
		layer INTEGER NOT NULL,
		c REAL NOT NULL,
		n REAL NOT NULL,
		p REAL NOT NULL,
		PRIMARY KEY (run_id, date, pool, layer)
	);

	CREATE TABLE IF NOT EXISTS run_meta (
		run_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (run_id, key)
	);

	CREATE TABLE IF NOT EXISTS events (
		run_id TEXT NOT NULL,
		date TEXT NOT NULL,
		category TEXT NOT NULL,
		description TEXT NOT NULL,
		PRIMARY KEY (run_id, date, category, description)
	);

	CREATE INDEX IF NOT EXISTS idx_daily_run_date ON daily_layers(run_id, date);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// NewRun registers a run and returns its ID.
func (db *DB) NewRun(scenario string, start time.Time) (string, error) {
	id := uuid.NewString()
	_, err := db.conn.Exec(
		"INSERT INTO runs (id, scenario, start_date, created_at) VALUES (?, ?, ?, ?)",
		id, scenario, start.Format(dateLayout), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// GetRun loads a run by ID.
func (db *DB) GetRun(id string) (Run, error) {
	var r Run
	err := db.conn.Get(&r, "SELECT id, scenario, start_date, created_at FROM runs WHERE id = ?", id)
	return r, err
}

// SaveDay writes one day's per-layer flow results.
func (db *DB) SaveDay(runID string, date time.Time, results []engine.LayerResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT OR REPLACE INTO daily_layers
		(run_id, date, flow, layer, mineralised_n, mineralised_p, co2)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	d := date.Format(dateLayout)
	for _, r := range results {
		_, err := stmt.Exec(runID, d, r.Flow, r.Layer, r.MineralisedN, r.MineralisedP, r.CO2)
		if err != nil {
			return fmt.Errorf("insert %s layer %d: %w", r.Flow, r.Layer, err)
		}
	}

	return tx.Commit()
}

// SavePools writes a snapshot of every pool in the profile.
func (db *DB) SavePools(runID string, date time.Time, pools []*soil.Pool) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	d := date.Format(dateLayout)
	for _, p := range pools {
		for i := range p.C {
			_, err := tx.Exec(`INSERT OR REPLACE INTO pool_layers
				(run_id, date, pool, layer, c, n, p) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				runID, d, p.Name, i, p.C[i], p.N[i], p.P[i],
			)
			if err != nil {
				return fmt.Errorf("insert pool %s layer %d: %w", p.Name, i, err)
			}
		}
	}

	slog.Debug("pool snapshot saved", "run", runID, "date", d, "pools", len(pools))
	return tx.Commit()
}

// SaveEvents stores events for a run. Events already stored are skipped, so
// the simulation's whole recent list can be saved each time.
func (db *DB) SaveEvents(runID string, events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range events {
		_, err := tx.Exec(
			"INSERT OR IGNORE INTO events (run_id, date, category, description) VALUES (?, ?, ?, ?)",
			runID, e.Date.Format(dateLayout), e.Category, e.Description,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// RecentEvents returns a run's most recent events, newest first.
func (db *DB) RecentEvents(runID string, limit int) ([]engine.Event, error) {
	var rows []struct {
		Date        string `db:"date"`
		Category    string `db:"category"`
		Description string `db:"description"`
	}
	err := db.conn.Select(&rows, `
		SELECT date, category, description
		FROM events
		WHERE run_id = ?
		ORDER BY date DESC, rowid DESC
		LIMIT ?`,
		runID, limit,
	)
	if err != nil {
		return nil, err
	}

	events := make([]engine.Event, 0, len(rows))
	for _, r := range rows {
		date, err := time.Parse(dateLayout, r.Date)
		if err != nil {
			return nil, fmt.Errorf("event date %q: %w", r.Date, err)
		}
		events = append(events, engine.Event{
			Date:        date,
			Description: r.Description,
			Category:    r.Category,
		})
	}
	return events, nil
}

// SaveMeta stores a key-value pair for a run.
func (db *DB) SaveMeta(runID, key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO run_meta (run_id, key, value) VALUES (?, ?, ?)",
		runID, key, value,
	)
	return err
}

// GetMeta retrieves a run metadata value.
func (db *DB) GetMeta(runID, key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM run_meta WHERE run_id = ? AND key = ?", runID, key)
	return value, err
}

// DailyTotals returns per-day sums for a run, oldest first.
func (db *DB) DailyTotals(runID string) ([]DailyTotal, error) {
	var totals []DailyTotal
	err := db.conn.Select(&totals, `
		SELECT date,
			SUM(co2) AS co2,
			SUM(mineralised_n) AS mineralised_n,
			SUM(mineralised_p) AS mineralised_p
		FROM daily_layers
		WHERE run_id = ?
		GROUP BY date
		ORDER BY date`,
		runID,
	)
	return totals, err
}

// DayLayers returns the stored per-layer results for one day.
func (db *DB) DayLayers(runID string, date time.Time) ([]engine.LayerResult, error) {
	var results []engine.LayerResult
	err := db.conn.Select(&results, `
		SELECT flow, layer, mineralised_n, mineralised_p, co2
		FROM daily_layers
		WHERE run_id = ? AND date = ?
		ORDER BY flow, layer`,
		runID, date.Format(dateLayout),
	)
	return results, err
}

// PoolSnapshot returns a pool's stored layers on a date.
func (db *DB) PoolSnapshot(runID, pool string, date time.Time) ([]PoolLayer, error) {
	var layers []PoolLayer
	err := db.conn.Select(&layers, `
		SELECT date, pool, layer, c, n, p
		FROM pool_layers
		WHERE run_id = ? AND pool = ? AND date = ?
		ORDER BY layer`,
		runID, pool, date.Format(dateLayout),
	)
	return layers, err
}

// SaveRunState stores a pool snapshot, recent events and the last simulated
// date.
func (db *DB) SaveRunState(runID string, sim *engine.Simulation) error {
	if err := db.SavePools(runID, sim.Date, sim.Profile.Pools); err != nil {
		return fmt.Errorf("save pools: %w", err)
	}
	if err := db.SaveEvents(runID, sim.Events); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	if err := db.SaveMeta(runID, "last_date", sim.Date.Format(dateLayout)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}
	if err := db.SaveMeta(runID, "days", fmt.Sprintf("%d", sim.Stats.Days)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}

	slog.Info("run state saved", "run", runID, "date", sim.Date.Format(dateLayout))
	return nil
}
