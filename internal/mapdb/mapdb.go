// Package mapdb stores occupancy grid snapshots in SQLite.
package mapdb

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/gridmapper/internal/mapper"
)

// ErrNoSnapshot is returned when no snapshot matches a lookup.
var ErrNoSnapshot = errors.New("no grid snapshot")

// DB wraps the mapper database.
type DB struct {
	*sql.DB
	path string
}

// NewDB opens (creating if needed) the database at path and applies the
// embedded migrations.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := sqlDB.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	db := &DB{DB: sqlDB, path: path}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	log.Printf("initialized map database at %s", path)
	return db, nil
}

// Session records the geometry a mapping session started with.
type Session struct {
	SessionID        string
	StartedUnixNanos int64
	Width            int
	Height           int
	Scale            int
	Resolution       float64
	Version          string
}

// InsertSession records the start of a mapping session.
func (db *DB) InsertSession(s Session) error {
	_, err := db.Exec(`INSERT INTO mapping_sessions (session_id, started_unix_nanos, width, height, scale, resolution, version)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.SessionID, s.StartedUnixNanos, s.Width, s.Height, s.Scale, s.Resolution, s.Version)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// InsertGridSnapshot persists s and returns its snapshot_id.
func (db *DB) InsertGridSnapshot(s *mapper.GridSnapshot) (int64, error) {
	if s == nil {
		return 0, nil
	}
	res, err := db.Exec(`INSERT INTO grid_snapshots (session_id, taken_unix_nanos, width, height, scale, resolution, grid_blob, changed_cells, snapshot_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.SessionID, s.TakenUnixNanos, s.Width, s.Height, s.Scale, s.Resolution, s.GridBlob, s.ChangedCells, s.Reason)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const snapshotColumns = `snapshot_id, session_id, taken_unix_nanos, width, height, scale, resolution, grid_blob, changed_cells, snapshot_reason`

func scanSnapshot(row interface{ Scan(...any) error }) (*mapper.GridSnapshot, error) {
	var s mapper.GridSnapshot
	err := row.Scan(&s.SnapshotID, &s.SessionID, &s.TakenUnixNanos, &s.Width, &s.Height,
		&s.Scale, &s.Resolution, &s.GridBlob, &s.ChangedCells, &s.Reason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// LatestGridSnapshot returns the most recent snapshot with the given
// geometry, across all sessions.
func (db *DB) LatestGridSnapshot(width, height, scale int, resolution float64) (*mapper.GridSnapshot, error) {
	row := db.QueryRow(`SELECT `+snapshotColumns+` FROM grid_snapshots
		WHERE width = ? AND height = ? AND scale = ? AND resolution = ?
		ORDER BY taken_unix_nanos DESC, snapshot_id DESC LIMIT 1`,
		width, height, scale, resolution)
	return scanSnapshot(row)
}

// GridSnapshotByID fetches one snapshot.
func (db *DB) GridSnapshotByID(id int64) (*mapper.GridSnapshot, error) {
	row := db.QueryRow(`SELECT `+snapshotColumns+` FROM grid_snapshots WHERE snapshot_id = ?`, id)
	return scanSnapshot(row)
}

// ListGridSnapshots returns up to limit snapshots for sessionID, newest
// first, without their grid blobs. An empty sessionID lists all sessions.
func (db *DB) ListGridSnapshots(sessionID string, limit int) ([]*mapper.GridSnapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`SELECT snapshot_id, session_id, taken_unix_nanos, width, height, scale, resolution, changed_cells, snapshot_reason
		FROM grid_snapshots
		WHERE (? = '' OR session_id = ?)
		ORDER BY taken_unix_nanos DESC, snapshot_id DESC LIMIT ?`, sessionID, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*mapper.GridSnapshot
	for rows.Next() {
		var s mapper.GridSnapshot
		if err := rows.Scan(&s.SnapshotID, &s.SessionID, &s.TakenUnixNanos, &s.Width, &s.Height,
			&s.Scale, &s.Resolution, &s.ChangedCells, &s.Reason); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

// AttachAdminRoutes mounts tailsql and a snapshot count on the tsweb debug
// page of mux.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+db.path, db.DB, &tailsql.DBOptions{
		Label: "Map DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("snapshots", "Grid snapshot count", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var n int
		if err := db.QueryRow(`SELECT COUNT(*) FROM grid_snapshots`).Scan(&n); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "%d\n", n)
	}))
	return nil
}
