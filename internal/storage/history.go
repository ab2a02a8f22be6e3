package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"tock/internal/core/countdown"
	"tock/internal/core/finish"
	"tock/internal/core/orchestrator"
)

const historyFileName = "history.db"

// History keeps resolved finish episodes in sqlite.
type History struct {
	db *sql.DB
}

// HistoryPath returns the database location inside dir.
func HistoryPath(dir string) string {
	return filepath.Join(dir, historyFileName)
}

// OpenHistory opens or creates the database at path.
func OpenHistory(path string) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	// sqlite serializes writers anyway; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping history: %w", err)
	}

	history := &History{db: db}
	if err := history.initTables(); err != nil {
		db.Close()
		return nil, err
	}
	return history, nil
}

func (history *History) initTables() error {
	_, err := history.db.Exec(`
        CREATE TABLE IF NOT EXISTS finishes (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            duration_seconds INTEGER NOT NULL,
            variant TEXT NOT NULL,
            outcome TEXT NOT NULL,
            finished_at INTEGER NOT NULL
        )
    `)
	if err != nil {
		return fmt.Errorf("create finishes table: %w", err)
	}
	return nil
}

// RecordFinish appends one episode.
func (history *History) RecordFinish(ctx context.Context, record orchestrator.FinishRecord) error {
	_, err := history.db.ExecContext(ctx, `
        INSERT INTO finishes (duration_seconds, variant, outcome, finished_at)
        VALUES (?, ?, ?, ?)
    `, record.Duration.Total(), string(record.Variant), string(record.Outcome), record.FinishedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert finish: %w", err)
	}
	return nil
}

// Recent returns up to limit episodes, newest first.
func (history *History) Recent(ctx context.Context, limit int) ([]orchestrator.FinishRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := history.db.QueryContext(ctx, `
        SELECT duration_seconds, variant, outcome, finished_at
        FROM finishes
        ORDER BY finished_at DESC, id DESC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("query finishes: %w", err)
	}
	defer rows.Close()

	var records []orchestrator.FinishRecord
	for rows.Next() {
		var (
			seconds    int
			variant    string
			outcome    string
			finishedAt int64
		)
		if err := rows.Scan(&seconds, &variant, &outcome, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan finish: %w", err)
		}
		records = append(records, orchestrator.FinishRecord{
			Duration:   countdown.DurationOf(seconds),
			Variant:    finish.Variant(variant),
			Outcome:    finish.Outcome(outcome),
			FinishedAt: time.UnixMilli(finishedAt),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate finishes: %w", err)
	}
	return records, nil
}

// Close releases the database.
func (history *History) Close() error {
	return history.db.Close()
}
