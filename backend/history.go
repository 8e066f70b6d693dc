package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// History statuses
const (
	HistoryComplete  = "complete"
	HistoryError     = "error"
	HistoryCancelled = "cancelled"
)

// HistoryEntry represents a finished, failed, or stopped job
type HistoryEntry struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Kind        MediaKind `json:"kind"`
	Variant     Variant   `json:"variant,omitempty"`
	Title       string    `json:"title"`
	Artist      string    `json:"artist"`
	Album       string    `json:"album,omitempty"`
	OutputPath  string    `json:"outputPath,omitempty"`
	FileSize    int64     `json:"fileSize"`
	DurationMS  int64     `json:"durationMs"`
	Status      string    `json:"status"`
	ErrorKind   ErrorKind `json:"errorKind,omitempty"`
	Error       string    `json:"error,omitempty"`
	CompletedAt time.Time `json:"completedAt"`
}

// HistoryStats summarizes the history table.
type HistoryStats struct {
	Total     int   `json:"total"`
	Completed int   `json:"completed"`
	Failed    int   `json:"failed"`
	Cancelled int   `json:"cancelled"`
	TotalSize int64 `json:"totalSize"`
}

// ErrHistoryNotFound is returned for unknown entry IDs.
var ErrHistoryNotFound = errors.New("history entry not found")

// History persists job outcomes in SQLite.
type History struct {
	db   *sql.DB
	path string
}

const historySchema = `
CREATE TABLE IF NOT EXISTS history (
    id           TEXT PRIMARY KEY,
    url          TEXT NOT NULL,
    kind         TEXT NOT NULL,
    variant      TEXT NOT NULL DEFAULT '',
    title        TEXT NOT NULL DEFAULT '',
    artist       TEXT NOT NULL DEFAULT '',
    album        TEXT NOT NULL DEFAULT '',
    output_path  TEXT NOT NULL DEFAULT '',
    file_size    INTEGER NOT NULL DEFAULT 0,
    duration_ms  INTEGER NOT NULL DEFAULT 0,
    status       TEXT NOT NULL,
    error_kind   TEXT NOT NULL DEFAULT '',
    error        TEXT NOT NULL DEFAULT '',
    completed_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_completed_at ON history (completed_at);
`

// OpenHistory opens (or creates) history.db under dataDir.
func OpenHistory(dataDir string) (*History, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "history.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(historySchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}

	return &History{db: db, path: dbPath}, nil
}

// Close closes the underlying database connection.
func (h *History) Close() error {
	if h == nil || h.db == nil {
		return nil
	}
	return h.db.Close()
}

// Path returns the database file location.
func (h *History) Path() string {
	return h.path
}

// Add inserts entry, filling ID and CompletedAt when unset.
func (h *History) Add(ctx context.Context, entry HistoryEntry) (HistoryEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CompletedAt.IsZero() {
		entry.CompletedAt = time.Now().UTC()
	}

	_, err := h.db.ExecContext(ctx,
		`INSERT INTO history (
            id, url, kind, variant, title, artist, album, output_path,
            file_size, duration_ms, status, error_kind, error, completed_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.URL, string(entry.Kind), string(entry.Variant),
		entry.Title, entry.Artist, entry.Album, entry.OutputPath,
		entry.FileSize, entry.DurationMS, entry.Status,
		string(entry.ErrorKind), entry.Error,
		entry.CompletedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return entry, fmt.Errorf("insert history: %w", err)
	}
	return entry, nil
}

const historyColumns = `id, url, kind, variant, title, artist, album, output_path,
    file_size, duration_ms, status, error_kind, error, completed_at`

// GetAll returns every entry, newest first.
func (h *History) GetAll(ctx context.Context) ([]HistoryEntry, error) {
	return h.query(ctx, `SELECT `+historyColumns+` FROM history ORDER BY completed_at DESC`)
}

// GetRecent returns at most limit entries, newest first.
func (h *History) GetRecent(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		return h.GetAll(ctx)
	}
	return h.query(ctx, `SELECT `+historyColumns+` FROM history ORDER BY completed_at DESC LIMIT ?`, limit)
}

// Search matches query against title, artist, album, and URL.
func (h *History) Search(ctx context.Context, query string) ([]HistoryEntry, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return h.GetAll(ctx)
	}
	like := "%" + strings.ToLower(query) + "%"
	return h.query(ctx,
		`SELECT `+historyColumns+` FROM history
        WHERE lower(title) LIKE ? OR lower(artist) LIKE ? OR lower(album) LIKE ? OR lower(url) LIKE ?
        ORDER BY completed_at DESC`,
		like, like, like, like)
}

// GetByID returns one entry or ErrHistoryNotFound.
func (h *History) GetByID(ctx context.Context, id string) (*HistoryEntry, error) {
	entries, err := h.query(ctx, `SELECT `+historyColumns+` FROM history WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrHistoryNotFound
	}
	return &entries[0], nil
}

// Delete removes one entry.
func (h *History) Delete(ctx context.Context, id string) error {
	res, err := h.db.ExecContext(ctx, `DELETE FROM history WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrHistoryNotFound
	}
	return nil
}

// Clear removes every entry.
func (h *History) Clear(ctx context.Context) error {
	if _, err := h.db.ExecContext(ctx, `DELETE FROM history`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// GetStats counts entries per status.
func (h *History) GetStats(ctx context.Context) (HistoryStats, error) {
	var stats HistoryStats
	row := h.db.QueryRowContext(ctx, `SELECT
        COUNT(*),
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
        COALESCE(SUM(file_size), 0)
        FROM history`, HistoryComplete, HistoryError, HistoryCancelled)
	if err := row.Scan(&stats.Total, &stats.Completed, &stats.Failed, &stats.Cancelled, &stats.TotalSize); err != nil {
		return stats, fmt.Errorf("history stats: %w", err)
	}
	return stats, nil
}

func (h *History) query(ctx context.Context, q string, args ...any) ([]HistoryEntry, error) {
	rows, err := h.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	entries := []HistoryEntry{}
	for rows.Next() {
		var (
			e                                       HistoryEntry
			kind, variant, errorKind, completedText string
		)
		if err := rows.Scan(&e.ID, &e.URL, &kind, &variant, &e.Title, &e.Artist, &e.Album,
			&e.OutputPath, &e.FileSize, &e.DurationMS, &e.Status, &errorKind, &e.Error, &completedText); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.Kind = MediaKind(kind)
		e.Variant = Variant(variant)
		e.ErrorKind = ErrorKind(errorKind)
		if ts, err := time.Parse(time.RFC3339Nano, completedText); err == nil {
			e.CompletedAt = ts
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
