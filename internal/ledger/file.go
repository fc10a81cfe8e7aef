package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/ppiankov/shadowscore/internal/model"
)

// FileLedger stores entries as hash-chained JSON lines.
// Every append re-reads the file under an exclusive lock on a sidecar
// ".lock" file, so handles in different processes extend one chain.
type FileLedger struct {
	path     string
	lockPath string

	mu sync.Mutex
}

// fileState is what a read of the ledger file found
type fileState struct {
	entries []model.LedgerEntry

	// goodEnd is the offset just past the last complete record
	goodEnd int64
	// tornLine is the line number of an undecodable final record (0 = none)
	tornLine int
	// missingNewline is set when the last complete record has no trailing newline
	missingNewline bool
}

// NewFileLedger opens (or creates) the ledger at path
func NewFileLedger(path string) (*FileLedger, error) {
	if path == "" {
		return nil, errors.New("ledger: file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}

	l := &FileLedger{path: path, lockPath: path + ".lock"}

	st, err := l.load()
	if err != nil {
		return nil, err
	}
	if st.tornLine > 0 {
		slog.Warn("ledger ends with an incomplete record", "path", path, "line", st.tornLine)
	}
	return l, nil
}

// Path returns the ledger file location
func (l *FileLedger) Path() string {
	return l.path
}

// Append writes one entry
func (l *FileLedger) Append(ctx context.Context, entry model.LedgerEntry) (model.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return entry, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	unlock, err := lockFile(l.lockPath, true)
	if err != nil {
		return entry, err
	}
	defer unlock()

	st, err := readState(l.path)
	if err != nil {
		return entry, err
	}
	for _, e := range st.entries {
		if e.AuditRunID == entry.AuditRunID {
			return entry, fmt.Errorf("%w: %s", ErrDuplicateRun, entry.AuditRunID)
		}
	}

	var prevSeq int64
	var prevHash string
	if n := len(st.entries); n > 0 {
		prevSeq = st.entries[n-1].Seq
		prevHash = st.entries[n-1].Hash
	}
	entry, err = chain(entry, prevSeq, prevHash)
	if err != nil {
		return entry, err
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return entry, fmt.Errorf("marshal entry: %w", err)
	}
	line = append(line, '\n')
	if st.missingNewline {
		line = append([]byte{'\n'}, line...)
	}

	if st.tornLine > 0 {
		slog.Warn("dropping incomplete ledger record", "path", l.path, "line", st.tornLine)
		if err := os.Truncate(l.path, st.goodEnd); err != nil {
			return entry, fmt.Errorf("truncate incomplete record: %w", err)
		}
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return entry, fmt.Errorf("open ledger: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return entry, fmt.Errorf("write ledger: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return entry, fmt.Errorf("sync ledger: %w", err)
	}
	if err := f.Close(); err != nil {
		return entry, fmt.Errorf("close ledger: %w", err)
	}

	slog.Debug("ledger entry appended", "backend", "file", "run", entry.AuditRunID, "seq", entry.Seq)
	return entry, nil
}

// Entries reads the file back
func (l *FileLedger) Entries(ctx context.Context, agentID string) ([]model.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st, err := l.load()
	if err != nil {
		return nil, err
	}
	return filterAgent(st.entries, agentID), nil
}

// Len returns the number of stored entries
func (l *FileLedger) Len(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	st, err := l.load()
	if err != nil {
		return 0, err
	}
	return len(st.entries), nil
}

// TornTail reports the line number of an undecodable final record.
// Such a record is left by a crash mid-append and is dropped by the next Append.
func (l *FileLedger) TornTail(ctx context.Context) (int, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	st, err := l.load()
	if err != nil {
		return 0, false, err
	}
	return st.tornLine, st.tornLine > 0, nil
}

// Close is a no-op; the file is opened per operation
func (l *FileLedger) Close() error {
	return nil
}

// load reads the ledger under a shared lock
func (l *FileLedger) load() (*fileState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	unlock, err := lockFile(l.lockPath, false)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return readState(l.path)
}

// readState decodes every line of path. Only the final line may fail to
// decode, and only when it has no trailing newline.
func readState(path string) (*fileState, error) {
	st := &fileState{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	offset, lineNo := 0, 0
	for offset < len(data) {
		lineNo++
		line := data[offset:]
		next := len(data)
		last := true
		if i := bytes.IndexByte(line, '\n'); i >= 0 {
			line = line[:i]
			next = offset + i + 1
			last = false
		}

		if len(bytes.TrimSpace(line)) > 0 {
			var e model.LedgerEntry
			if err := json.Unmarshal(line, &e); err != nil {
				if last {
					st.tornLine = lineNo
					break
				}
				return nil, fmt.Errorf("ledger line %d: %w", lineNo, err)
			}
			st.entries = append(st.entries, e)
		}

		st.goodEnd = int64(next)
		st.missingNewline = last
		offset = next
	}
	return st, nil
}
