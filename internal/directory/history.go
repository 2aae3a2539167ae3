package directory

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// History is an append-only audit log of terminated circuits, grounded on
// keysaver-server/storage.go's Storage (database/sql over modernc.org/sqlite,
// schema created with CREATE TABLE IF NOT EXISTS). Unlike Storage it holds no
// secret material, only the diagnostic record the spec's GET / handler shows.
type History struct {
	db *sql.DB
}

// OpenHistory opens (creating if absent) the SQLite database at dbPath and
// ensures its schema exists.
func OpenHistory(dbPath string) (*History, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	h := &History{db: db}
	if err := h.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return h, nil
}

func (h *History) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS circuit_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tracking_id TEXT NOT NULL,
		hops TEXT NOT NULL,
		outcome TEXT NOT NULL,
		finished_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_circuit_history_tracking ON circuit_history(tracking_id);
	`
	_, err := h.db.Exec(schema)
	return err
}

// Close closes the underlying database connection.
func (h *History) Close() error { return h.db.Close() }

// Record appends one terminated circuit's outcome to the log.
func (h *History) Record(trackingID string, hops []string, outcome string, finishedAt time.Time) {
	_, _ = h.db.Exec(
		`INSERT INTO circuit_history (tracking_id, hops, outcome, finished_at) VALUES (?, ?, ?, ?)`,
		trackingID, strings.Join(hops, ","), outcome, finishedAt.Unix(),
	)
}

// HistoryEntry is one row of the audit log, rendered by the GET / diagnostic.
type HistoryEntry struct {
	TrackingID string
	Hops       []string
	Outcome    string
	FinishedAt time.Time
}

// Recent returns up to limit most-recently-finished circuits, newest first.
func (h *History) Recent(limit int) ([]HistoryEntry, error) {
	rows, err := h.db.Query(
		`SELECT tracking_id, hops, outcome, finished_at FROM circuit_history ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var trackingID, hopsJoined, outcome string
		var finishedAtUnix int64
		if err := rows.Scan(&trackingID, &hopsJoined, &outcome, &finishedAtUnix); err != nil {
			return nil, err
		}
		out = append(out, HistoryEntry{
			TrackingID: trackingID,
			Hops:       strings.Split(hopsJoined, ","),
			Outcome:    outcome,
			FinishedAt: time.Unix(finishedAtUnix, 0),
		})
	}
	return out, rows.Err()
}
