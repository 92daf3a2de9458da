package notify

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/grovetools/tether/pkg/models"

	_ "modernc.org/sqlite"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS alerts (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	role      TEXT    NOT NULL,
	identity  TEXT    NOT NULL,
	title     TEXT    NOT NULL,
	message   TEXT    NOT NULL,
	from_tier INTEGER NOT NULL,
	to_tier   INTEGER NOT NULL,
	timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS alerts_timestamp ON alerts(timestamp);
`

// Journal records alerts in a SQLite database so they can be reviewed later.
type Journal struct {
	db   *sql.DB
	path string
}

// OpenJournal opens (creating if needed) the journal at path.
func OpenJournal(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode on %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout on %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, journalSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate journal %s: %w", path, err)
	}

	return &Journal{db: db, path: path}, nil
}

// Path returns the database location.
func (j *Journal) Path() string {
	return j.path
}

// Notify records alert.
func (j *Journal) Notify(ctx context.Context, alert models.Alert) error {
	_, err := j.Record(ctx, alert)
	return err
}

// Record inserts alert and returns its id.
func (j *Journal) Record(ctx context.Context, alert models.Alert) (int64, error) {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}
	res, err := j.db.ExecContext(ctx,
		`INSERT INTO alerts (role, identity, title, message, from_tier, to_tier, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(alert.Role), alert.Identity, alert.Title, alert.Message,
		alert.FromTier, alert.ToTier, alert.Timestamp.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("record alert: %w", err)
	}
	return res.LastInsertId()
}

// List returns up to limit alerts, newest first. A non-zero since drops older
// alerts.
func (j *Journal) List(ctx context.Context, limit int, since time.Time) ([]models.Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	var sinceMs int64
	if !since.IsZero() {
		sinceMs = since.UnixMilli()
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, role, identity, title, message, from_tier, to_tier, timestamp
		 FROM alerts WHERE timestamp >= ? ORDER BY timestamp DESC, id DESC LIMIT ?`,
		sinceMs, limit)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		var (
			a    models.Alert
			role string
			ts   int64
		)
		if err := rows.Scan(&a.ID, &role, &a.Identity, &a.Title, &a.Message, &a.FromTier, &a.ToTier, &ts); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Role = models.Role(role)
		a.Timestamp = time.UnixMilli(ts)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// Clear deletes every recorded alert and returns how many were removed.
func (j *Journal) Clear(ctx context.Context) (int64, error) {
	res, err := j.db.ExecContext(ctx, `DELETE FROM alerts`)
	if err != nil {
		return 0, fmt.Errorf("clear alerts: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
