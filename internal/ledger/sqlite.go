package ledger

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/ppiankov/shadowscore/internal/model"
)

//go:embed schema.sql
var schemaFS embed.FS

// SQLiteLedger stores entries in an embedded SQLite database.
// The run id is the primary key; appends run inside a transaction.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLiteLedger opens the database at path (":memory:" style DSNs are passed through)
func NewSQLiteLedger(ctx context.Context, path string) (*SQLiteLedger, error) {
	if path == "" {
		return nil, errors.New("ledger: sqlite path is empty")
	}
	if !strings.HasPrefix(path, "file:") && !strings.Contains(path, ":memory:") {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: appends are strictly serialized and in-memory DSNs share state
	db.SetMaxOpenConns(1)

	if err := applySchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteLedger{db: db}, nil
}

func applySchema(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := db.ExecContext(ctx, string(schemaSQL)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Append inserts one entry in a transaction
func (l *SQLiteLedger) Append(ctx context.Context, entry model.LedgerEntry) (model.LedgerEntry, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return entry, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			slog.Warn("ledger rollback failed", "error", rbErr)
		}
	}()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM ledger_entries WHERE audit_run_id = ?`, entry.AuditRunID).Scan(&exists)
	switch {
	case err == nil:
		return entry, fmt.Errorf("%w: %s", ErrDuplicateRun, entry.AuditRunID)
	case !errors.Is(err, sql.ErrNoRows):
		return entry, fmt.Errorf("check run id: %w", err)
	}

	var prevSeq int64
	var prevHash string
	err = tx.QueryRowContext(ctx, `SELECT seq, hash FROM ledger_entries ORDER BY seq DESC LIMIT 1`).Scan(&prevSeq, &prevHash)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return entry, fmt.Errorf("read chain head: %w", err)
	}

	entry, err = chain(entry, prevSeq, prevHash)
	if err != nil {
		return entry, err
	}

	metrics, err := json.Marshal(entry.Metrics)
	if err != nil {
		return entry, fmt.Errorf("marshal metrics: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (audit_run_id, seq, agent_id, contest_id, ts, supersedes, metrics, prev_hash, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.AuditRunID, entry.Seq, entry.AgentID, entry.ContestID,
		entry.Timestamp.Format(time.RFC3339Nano), entry.Supersedes, string(metrics),
		entry.PrevHash, entry.Hash,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return entry, fmt.Errorf("%w: %s", ErrDuplicateRun, entry.AuditRunID)
		}
		return entry, fmt.Errorf("insert entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return entry, fmt.Errorf("commit: %w", err)
	}

	slog.Debug("ledger entry appended", "backend", "sqlite", "run", entry.AuditRunID, "seq", entry.Seq)
	return entry, nil
}

// Entries returns entries ordered by seq
func (l *SQLiteLedger) Entries(ctx context.Context, agentID string) ([]model.LedgerEntry, error) {
	query := `SELECT audit_run_id, seq, agent_id, contest_id, ts, supersedes, metrics, prev_hash, hash
		FROM ledger_entries`
	var args []any
	if agentID != "" {
		query += ` WHERE agent_id = ?`
		args = append(args, agentID)
	}
	query += ` ORDER BY seq`

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var ts, metrics string
		if err := rows.Scan(&e.AuditRunID, &e.Seq, &e.AgentID, &e.ContestID, &ts, &e.Supersedes, &metrics, &e.PrevHash, &e.Hash); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("entry %s timestamp: %w", e.AuditRunID, err)
		}
		if err := json.Unmarshal([]byte(metrics), &e.Metrics); err != nil {
			return nil, fmt.Errorf("entry %s metrics: %w", e.AuditRunID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// Len counts entries
func (l *SQLiteLedger) Len(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

// Close closes the database
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
