package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ppiankov/shadowscore/internal/model"
)

var (
	// ErrDuplicateRun is returned when an audit run id is already recorded.
	// Re-scoring must mint a new run id.
	ErrDuplicateRun = errors.New("ledger: audit run already recorded")

	// ErrChainBroken is returned by Verify when stored history was altered
	ErrChainBroken = errors.New("ledger: hash chain broken")
)

// Store is an append-only performance ledger. There is no update or delete:
// corrections are new entries whose Supersedes names the corrected run.
type Store interface {
	// Append atomically records entry, assigning Seq, PrevHash and Hash.
	// Returns ErrDuplicateRun if the run id already exists.
	Append(ctx context.Context, entry model.LedgerEntry) (model.LedgerEntry, error)

	// Entries returns entries in append order; an empty agentID returns all
	Entries(ctx context.Context, agentID string) ([]model.LedgerEntry, error)

	// Len returns the number of stored entries
	Len(ctx context.Context) (int, error)

	Close() error
}

// Open creates the store selected by cfg.Backend
func Open(ctx context.Context, cfg model.LedgerConfig) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "file", "jsonl":
		return NewFileLedger(cfg.Path)

	case "sqlite":
		path := cfg.Path
		if filepath.Ext(path) == ".jsonl" {
			path = strings.TrimSuffix(path, ".jsonl") + ".db"
		}
		return NewSQLiteLedger(ctx, path)

	case "redis":
		return NewRedisLedger(ctx, RedisOptions{URL: cfg.RedisURL, KeyPrefix: cfg.KeyPrefix})

	default:
		return nil, fmt.Errorf("unknown ledger backend: %s (supported: file, sqlite, redis)", cfg.Backend)
	}
}

// chain fills in the sequence number and hash links of entry following prev
func chain(entry model.LedgerEntry, prevSeq int64, prevHash string) (model.LedgerEntry, error) {
	if entry.AuditRunID == "" {
		return entry, errors.New("ledger: entry has no audit run id")
	}
	entry.Timestamp = entry.Timestamp.UTC()
	entry.Seq = prevSeq + 1
	entry.PrevHash = prevHash

	hash, err := entryHash(entry)
	if err != nil {
		return entry, err
	}
	entry.Hash = hash
	return entry, nil
}

// entryHash is sha256 over the JSON encoding of entry without its own hash
func entryHash(entry model.LedgerEntry) (string, error) {
	entry.Hash = ""
	data, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("marshal entry: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyChain checks sequence continuity, hash links and recomputed hashes
func VerifyChain(entries []model.LedgerEntry) error {
	prevHash := ""
	for i, e := range entries {
		if e.Seq != int64(i+1) {
			return fmt.Errorf("%w: entry %d has seq %d", ErrChainBroken, i+1, e.Seq)
		}
		if e.PrevHash != prevHash {
			return fmt.Errorf("%w: seq %d does not link to its predecessor", ErrChainBroken, e.Seq)
		}
		want, err := entryHash(e)
		if err != nil {
			return err
		}
		if e.Hash != want {
			return fmt.Errorf("%w: seq %d (run %s) content does not match its hash", ErrChainBroken, e.Seq, e.AuditRunID)
		}
		prevHash = e.Hash
	}
	return nil
}

// Verify reads the whole ledger and checks its hash chain.
// Returns the number of verified entries.
func Verify(ctx context.Context, s Store) (int, error) {
	entries, err := s.Entries(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("read ledger: %w", err)
	}
	if err := VerifyChain(entries); err != nil {
		return 0, err
	}
	return len(entries), nil
}

// tailChecker is implemented by stores whose last record can be left
// incomplete by a crash
type tailChecker interface {
	TornTail(ctx context.Context) (int, bool, error)
}

// CheckTail reports the line of an incomplete final record, if s can hold one
func CheckTail(ctx context.Context, s Store) (int, bool, error) {
	tc, ok := s.(tailChecker)
	if !ok {
		return 0, false, nil
	}
	return tc.TornTail(ctx)
}

func filterAgent(entries []model.LedgerEntry, agentID string) []model.LedgerEntry {
	if agentID == "" {
		return entries
	}
	out := make([]model.LedgerEntry, 0, len(entries))
	for _, e := range entries {
		if e.AgentID == agentID {
			out = append(out, e)
		}
	}
	return out
}
