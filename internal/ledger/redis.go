package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ppiankov/shadowscore/internal/model"
)

// appendScript records an entry only if the run id is new and the chain head
// is still the one the client hashed against.
// Returns 1 on success, 0 for a duplicate run, -1 when the head moved.
var appendScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 1 then
	return 0
end
local head = redis.call('GET', KEYS[3])
if (head or '') ~= ARGV[2] then
	return -1
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[3])
redis.call('RPUSH', KEYS[2], ARGV[3])
redis.call('SET', KEYS[3], ARGV[4])
return 1
`)

const maxAppendAttempts = 16

// RedisOptions configures the Redis ledger
type RedisOptions struct {
	URL            string
	KeyPrefix      string
	ConnectTimeout time.Duration
}

// RedisLedger stores entries in a Redis list guarded by a run-id hash.
// A server-side script makes each append atomic across processes.
type RedisLedger struct {
	client  *redis.Client
	runsKey string
	listKey string
	headKey string
}

// NewRedisLedger connects to Redis
func NewRedisLedger(ctx context.Context, opts RedisOptions) (*RedisLedger, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "shadowscore"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisOpts.DialTimeout = opts.ConnectTimeout

	client := redis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisLedger{
		client:  client,
		runsKey: opts.KeyPrefix + ":ledger:runs",
		listKey: opts.KeyPrefix + ":ledger:entries",
		headKey: opts.KeyPrefix + ":ledger:head",
	}, nil
}

// Append records one entry, retrying when a concurrent writer moved the chain head
func (l *RedisLedger) Append(ctx context.Context, entry model.LedgerEntry) (model.LedgerEntry, error) {
	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		head, err := l.client.Get(ctx, l.headKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return entry, fmt.Errorf("read chain head: %w", err)
		}
		n, err := l.client.LLen(ctx, l.listKey).Result()
		if err != nil {
			return entry, fmt.Errorf("read ledger length: %w", err)
		}

		chained, err := chain(entry, n, head)
		if err != nil {
			return entry, err
		}
		data, err := json.Marshal(chained)
		if err != nil {
			return entry, fmt.Errorf("marshal entry: %w", err)
		}

		keys := []string{l.runsKey, l.listKey, l.headKey}
		res, err := appendScript.Run(ctx, l.client, keys, chained.AuditRunID, head, string(data), chained.Hash).Int()
		if err != nil {
			return entry, fmt.Errorf("append entry: %w", err)
		}

		switch res {
		case 1:
			slog.Debug("ledger entry appended", "backend", "redis", "run", chained.AuditRunID, "seq", chained.Seq)
			return chained, nil
		case 0:
			return entry, fmt.Errorf("%w: %s", ErrDuplicateRun, entry.AuditRunID)
		}
	}
	return entry, fmt.Errorf("append entry %s: chain head kept moving after %d attempts", entry.AuditRunID, maxAppendAttempts)
}

// Entries reads the whole list
func (l *RedisLedger) Entries(ctx context.Context, agentID string) ([]model.LedgerEntry, error) {
	raw, err := l.client.LRange(ctx, l.listKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read entries: %w", err)
	}

	entries := make([]model.LedgerEntry, 0, len(raw))
	for i, item := range raw {
		var e model.LedgerEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("ledger entry %d: %w", i+1, err)
		}
		entries = append(entries, e)
	}
	return filterAgent(entries, agentID), nil
}

// Len returns the list length
func (l *RedisLedger) Len(ctx context.Context) (int, error) {
	n, err := l.client.LLen(ctx, l.listKey).Result()
	if err != nil {
		return 0, fmt.Errorf("read ledger length: %w", err)
	}
	return int(n), nil
}

// Close closes the client
func (l *RedisLedger) Close() error {
	return l.client.Close()
}
