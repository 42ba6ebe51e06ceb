// Package flightlog records the control loop's per-cycle output to SQLite so
// a run can be inspected after the fact.
package flightlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"
	_ "modernc.org/sqlite"

	"github.com/signalsfoundry/flighttask-auto/core"
)

// defaultBatchSize is the number of cycles buffered before a write.
const defaultBatchSize = 200

const schema = `
	CREATE TABLE IF NOT EXISTS runs (
		run_id            TEXT PRIMARY KEY,
		mission           TEXT,
		started_at        TIMESTAMP,
		cruise_speed      DOUBLE,
		corner_speed      DOUBLE,
		acceptance_radius DOUBLE,
		yaw_mode          TEXT
	);
	CREATE TABLE IF NOT EXISTS cycles (
		run_id            TEXT,
		cycle             BIGINT,
		sim_time          TIMESTAMP,
		leg               INTEGER,
		track_state       TEXT,
		waypoint_type     TEXT,
		vehicle_x         DOUBLE,
		vehicle_y         DOUBLE,
		vehicle_z         DOUBLE,
		target_x          DOUBLE,
		target_y          DOUBLE,
		target_z          DOUBLE,
		speed_at_target   DOUBLE,
		heading           DOUBLE,
		yaw_locked        BOOLEAN,
		PRIMARY KEY (run_id, cycle),
		FOREIGN KEY(run_id) REFERENCES runs(run_id)
	);
`

// DB is a flight log backed by SQLite.
type DB struct {
	*sql.DB
}

// Open opens (or creates) the flight log at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open flight log: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create flight log schema: %w", err)
	}
	return &DB{db}, nil
}

// Run records the cycles of one simulation run. It buffers rows and writes
// them in batches; Close flushes the rest. Not safe for concurrent use.
type Run struct {
	db        *DB
	id        string
	batchSize int
	pending   []row
	dropped   int
}

type row struct {
	cycle    uint64
	simTime  time.Time
	leg      int
	position r3.Vec
	sp       core.Setpoints
}

// StartRun registers a new run and returns its recorder.
func (db *DB) StartRun(ctx context.Context, mission string, started time.Time, cfg core.Config) (*Run, error) {
	id := uuid.NewString()
	_, err := db.ExecContext(ctx,
		"INSERT INTO runs (run_id, mission, started_at, cruise_speed, corner_speed, acceptance_radius, yaw_mode) VALUES (?, ?, ?, ?, ?, ?, ?)",
		id, mission, started.UTC(), cfg.CruiseSpeed, cfg.CornerSpeed, cfg.AcceptanceRadius, cfg.YawMode.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return &Run{db: db, id: id, batchSize: defaultBatchSize}, nil
}

// ID returns the run identifier.
func (r *Run) ID() string { return r.id }

// Record buffers one cycle, writing the batch when it is full.
func (r *Run) Record(ctx context.Context, cycle uint64, simTime time.Time, leg int, position r3.Vec, sp core.Setpoints) error {
	r.pending = append(r.pending, row{cycle: cycle, simTime: simTime, leg: leg, position: position, sp: sp})
	if len(r.pending) < r.batchSize {
		return nil
	}
	return r.Flush(ctx)
}

// Dropped returns the number of cycles discarded by failed writes.
func (r *Run) Dropped() int { return r.dropped }

// Flush writes all buffered cycles in one transaction. A batch that fails is
// rolled back and discarded, so a broken database never grows the buffer.
func (r *Run) Flush(ctx context.Context) error {
	if len(r.pending) == 0 {
		return nil
	}
	err := r.write(ctx)
	if err != nil {
		r.dropped += len(r.pending)
		err = fmt.Errorf("%w (%d cycles dropped)", err, len(r.pending))
	}
	r.pending = r.pending[:0]
	return err
}

func (r *Run) write(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin flight log batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO cycles (
		run_id, cycle, sim_time, leg, track_state, waypoint_type,
		vehicle_x, vehicle_y, vehicle_z, target_x, target_y, target_z,
		speed_at_target, heading, yaw_locked
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare flight log insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range r.pending {
		target := c.sp.Waypoints.Target
		if _, err := stmt.ExecContext(ctx,
			r.id, int64(c.cycle), c.simTime.UTC(), c.leg, c.sp.State.String(), c.sp.Type.String(),
			c.position.X, c.position.Y, c.position.Z, target.X, target.Y, target.Z,
			c.sp.SpeedAtTarget, c.sp.Heading, c.sp.YawLocked,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert cycle %d: %w", c.cycle, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit flight log batch: %w", err)
	}
	return nil
}

// Close flushes buffered cycles.
func (r *Run) Close(ctx context.Context) error {
	return r.Flush(ctx)
}

// CountCycles returns the number of recorded cycles for runID.
func (db *DB) CountCycles(ctx context.Context, runID string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cycles WHERE run_id = ?", runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count cycles: %w", err)
	}
	return n, nil
}

// StateCounts returns how many cycles of runID were spent in each track
// state.
func (db *DB) StateCounts(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT track_state, COUNT(*) FROM cycles WHERE run_id = ? GROUP BY track_state", runID)
	if err != nil {
		return nil, fmt.Errorf("query state counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scan state count: %w", err)
		}
		counts[state] = n
	}
	return counts, rows.Err()
}
