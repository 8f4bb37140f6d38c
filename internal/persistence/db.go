// Package persistence records a run's signal events and per-tick statistics
// to SQLite. The journal is append-only and never read back to resume a run.
package persistence

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/gridsim/internal/engine"
	"github.com/talgya/gridsim/internal/signal"
)

// RunInfo describes the run a journal belongs to.
type RunInfo struct {
	Seed     int64
	GridSize int
	Vehicles int
	Drones   int
}

// Journal wraps a SQLite connection for one run. Record and RecordEvent may
// be called from any goroutine; Flush writes everything buffered since the
// last successful flush.
type Journal struct {
	conn  *sqlx.DB
	runID string

	mu      sync.Mutex
	pending []signal.Event
	events  []engine.Event
}

// SignalEventRow is a journaled signal event as stored.
type SignalEventRow struct {
	RunID          string `db:"run_id"`
	Step           int64  `db:"step"`
	IntersectionID string `db:"intersection_id"`
	Kind           string `db:"kind"`
	FromPhase      string `db:"from_phase"`
	ToPhase        string `db:"to_phase"`
	Direction      string `db:"direction"`
	GreenDuration  int    `db:"green_duration"`
	PrevDuration   int    `db:"prev_duration"`
	Reason         string `db:"reason"`
}

// Open opens or creates a SQLite database at the given path and starts a new
// run in it.
func Open(path string, info RunInfo) (*Journal, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	j := &Journal{conn: conn, runID: uuid.NewString()}
	if err := j.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	_, err = conn.Exec(
		"INSERT INTO runs (id, seed, grid_size, vehicles, drones, started_at) VALUES (?, ?, ?, ?, ?, ?)",
		j.runID, info.Seed, info.GridSize, info.Vehicles, info.Drones, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("insert run: %w", err)
	}

	slog.Info("journal opened", "path", path, "run", j.runID)
	return j, nil
}

// RunID returns the identifier of this run's rows.
func (j *Journal) RunID() string {
	return j.runID
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.conn.Close()
}

func (j *Journal) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		seed INTEGER NOT NULL,
		grid_size INTEGER NOT NULL,
		vehicles INTEGER NOT NULL,
		drones INTEGER NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		last_tick INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS signal_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		step INTEGER NOT NULL,
		intersection_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		from_phase TEXT NOT NULL,
		to_phase TEXT NOT NULL,
		direction TEXT NOT NULL,
		green_duration INTEGER NOT NULL,
		prev_duration INTEGER NOT NULL,
		reason TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tick_stats (
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		arrived INTEGER NOT NULL,
		waiting INTEGER NOT NULL,
		moving INTEGER NOT NULL,
		green_lights INTEGER NOT NULL,
		avg_wait REAL NOT NULL,
		mean_congestion REAL NOT NULL,
		phase_changes INTEGER NOT NULL,
		adjustments INTEGER NOT NULL,
		PRIMARY KEY (run_id, tick)
	);

	CREATE INDEX IF NOT EXISTS idx_signal_events_run ON signal_events(run_id, step);
	CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, tick);
	`
	_, err := j.conn.Exec(schema)
	return err
}

// Record buffers a signal event until the next Flush. It satisfies
// signal.Sink.
func (j *Journal) Record(e signal.Event) {
	j.mu.Lock()
	j.pending = append(j.pending, e)
	j.mu.Unlock()
}

// RecordEvent buffers a simulation event until the next Flush. It is meant
// to be set as Simulation.OnEvent.
func (j *Journal) RecordEvent(e engine.Event) {
	j.mu.Lock()
	j.events = append(j.events, e)
	j.mu.Unlock()
}

// Flush writes buffered signal and simulation events and one statistics row
// for snap.Tick in a single transaction. Buffers are only released once the
// transaction commits, so a failed flush is retried in full by the next one.
func (j *Journal) Flush(snap engine.Snapshot) error {
	j.mu.Lock()
	pending := slices.Clone(j.pending)
	events := slices.Clone(j.events)
	j.mu.Unlock()

	if err := j.write(snap, pending, events); err != nil {
		return err
	}

	// Record may have appended while the transaction ran.
	j.mu.Lock()
	j.pending = slices.Delete(j.pending, 0, len(pending))
	j.events = slices.Delete(j.events, 0, len(events))
	j.mu.Unlock()

	slog.Debug("journal flushed", "tick", snap.Tick, "signal_events", len(pending), "events", len(events))
	return nil
}

func (j *Journal) write(snap engine.Snapshot, pending []signal.Event, events []engine.Event) error {
	tx, err := j.conn.Beginx()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT INTO signal_events
		(run_id, step, intersection_id, kind, from_phase, to_phase, direction,
		 green_duration, prev_duration, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare signal events: %w", err)
	}
	defer stmt.Close()

	for _, e := range pending {
		_, err := stmt.Exec(
			j.runID, e.Step, e.IntersectionID, e.Kind.String(),
			phaseText(e.From), phaseText(e.To), e.Direction.String(),
			e.GreenDuration, e.PrevDuration, e.Reason,
		)
		if err != nil {
			return fmt.Errorf("insert signal event %s@%d: %w", e.IntersectionID, e.Step, err)
		}
	}

	evStmt, err := tx.Preparex("INSERT INTO events (run_id, tick, description, category) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare events: %w", err)
	}
	defer evStmt.Close()

	for _, e := range events {
		if _, err := evStmt.Exec(j.runID, e.Tick, e.Description, e.Category); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}

	st := snap.Stats
	_, err = tx.Exec(`INSERT OR REPLACE INTO tick_stats
		(run_id, tick, arrived, waiting, moving, green_lights, avg_wait,
		 mean_congestion, phase_changes, adjustments)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.runID, snap.Tick, st.Arrived, st.Waiting, st.Moving, st.GreenLights,
		st.AvgWait, st.MeanCongestion, st.PhaseChanges, st.Adjustments,
	)
	if err != nil {
		return fmt.Errorf("insert tick stats: %w", err)
	}

	if _, err := tx.Exec("UPDATE runs SET last_tick = ? WHERE id = ?", snap.Tick, j.runID); err != nil {
		return fmt.Errorf("update run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Finish marks the run complete.
func (j *Journal) Finish() error {
	_, err := j.conn.Exec(
		"UPDATE runs SET finished_at = ? WHERE id = ?",
		time.Now().UTC().Format(time.RFC3339), j.runID,
	)
	return err
}

// SignalEvents returns this run's journaled signal events for one
// intersection, oldest first. An empty id returns every intersection.
func (j *Journal) SignalEvents(intersectionID string, limit int) ([]SignalEventRow, error) {
	var rows []SignalEventRow
	query := `SELECT run_id, step, intersection_id, kind, from_phase, to_phase, direction,
		green_duration, prev_duration, reason
		FROM signal_events WHERE run_id = ? AND (? = '' OR intersection_id = ?)
		ORDER BY id LIMIT ?`
	err := j.conn.Select(&rows, query, j.runID, intersectionID, intersectionID, limit)
	return rows, err
}

// TickCount returns how many statistics rows this run has written.
func (j *Journal) TickCount() (int, error) {
	var n int
	err := j.conn.Get(&n, "SELECT COUNT(*) FROM tick_stats WHERE run_id = ?", j.runID)
	return n, err
}

// EventCount returns how many simulation events this run has written.
func (j *Journal) EventCount() (int, error) {
	var n int
	err := j.conn.Get(&n, "SELECT COUNT(*) FROM events WHERE run_id = ?", j.runID)
	return n, err
}

// RecentEvents returns the most recent N simulation events of this run.
func (j *Journal) RecentEvents(limit int) ([]engine.Event, error) {
	var events []engine.Event
	err := j.conn.Select(&events,
		"SELECT tick, description, category FROM events WHERE run_id = ? ORDER BY id DESC LIMIT ?",
		j.runID, limit,
	)
	return events, err
}

func phaseText(p signal.Phase) string {
	if !p.Valid() {
		return ""
	}
	return p.String()
}
