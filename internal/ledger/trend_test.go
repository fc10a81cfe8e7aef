package ledger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/shadowscore/internal/model"
)

func TestMovingAverage(t *testing.T) {
	entries := []model.LedgerEntry{
		entry("r1", "alice", 0.2, 0.4),
		entry("r2", "alice", 0.4, 0.6),
		entry("r3", "alice", 0.6, 0.8),
	}

	all := MovingAverage(entries, 0)
	assert.Equal(t, 3, all.Entries)
	assert.InDelta(t, 0.4, *all.Precision, 1e-9)
	assert.InDelta(t, 0.6, *all.Recall, 1e-9)

	last2 := MovingAverage(entries, 2)
	assert.Equal(t, 2, last2.Entries)
	assert.InDelta(t, 0.5, *last2.Precision, 1e-9)
	assert.Equal(t, "alice", last2.AgentID)
}

func TestMovingAverage_ExcludesNulls(t *testing.T) {
	empty := entry("r2", "alice", 0, 0)
	empty.Metrics.Precision = nil
	empty.Metrics.F1 = nil

	avg := MovingAverage([]model.LedgerEntry{entry("r1", "alice", 0.8, 0.5), empty}, 0)

	assert.Equal(t, 2, avg.Entries)
	assert.InDelta(t, 0.8, *avg.Precision, 1e-9, "null precision must not drag the mean")
	assert.InDelta(t, 0.25, *avg.Recall, 1e-9)

	none := MovingAverage([]model.LedgerEntry{empty}, 0)
	assert.Nil(t, none.Precision)
	assert.Nil(t, MovingAverage(nil, 5).Recall)
}

func TestSkipSuperseded(t *testing.T) {
	original := entry("r1", "alice", 0.1, 0.1)
	fix := entry("r2", "alice", 0.9, 0.9)
	fix.Supersedes = "r1"
	fixOfFix := entry("r3", "alice", 0.7, 0.7)
	fixOfFix.Supersedes = "r2"
	other := entry("r4", "alice", 0.5, 0.5)

	out := SkipSuperseded([]model.LedgerEntry{original, fix, fixOfFix, other})

	require.Len(t, out, 2)
	assert.Equal(t, "r3", out[0].AuditRunID)
	assert.Equal(t, "r4", out[1].AuditRunID)
}

func TestEffective_FromStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileLedger(filepath.Join(t.TempDir(), "ledger.jsonl"))
	require.NoError(t, err)

	_, err = s.Append(ctx, entry("r1", "alice", 0.1, 0.1))
	require.NoError(t, err)
	fix := entry("r2", "alice", 0.9, 0.9)
	fix.Supersedes = "r1"
	_, err = s.Append(ctx, fix)
	require.NoError(t, err)
	_, err = s.Append(ctx, entry("r3", "bob", 0.3, 0.3))
	require.NoError(t, err)

	entries, err := Effective(ctx, s, "alice")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "r2", entries[0].AuditRunID)

	// History itself is untouched
	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSeries_Rolling(t *testing.T) {
	entries := []model.LedgerEntry{
		entry("r1", "alice", 0.2, 0.2),
		entry("r2", "alice", 0.4, 0.4),
		entry("r3", "alice", 0.6, 0.6),
	}

	points := Series(entries, 2)
	require.Len(t, points, 3)
	assert.InDelta(t, 0.2, *points[0].Rolling.Precision, 1e-9)
	assert.InDelta(t, 0.3, *points[1].Rolling.Precision, 1e-9)
	assert.InDelta(t, 0.5, *points[2].Rolling.Precision, 1e-9)
	assert.InDelta(t, 0.6, *points[2].Run.Precision, 1e-9)
	assert.Equal(t, "r3", points[2].AuditRunID)
}

func TestCategoryAverages(t *testing.T) {
	e1 := entry("r1", "alice", 0.2, 0.2)
	e2 := entry("r2", "alice", 0.6, 0.6)
	e2.Metrics.PerCategory["oracle-manipulation"] = model.MetricSet{Precision: model.Float(1), Recall: nil}

	avgs := CategoryAverages([]model.LedgerEntry{e1, e2}, 0)

	require.Len(t, avgs, 2)
	assert.InDelta(t, 0.4, *avgs["reentrancy"].Precision, 1e-9)
	assert.Equal(t, 2, avgs["reentrancy"].Entries)

	oracle := avgs["oracle-manipulation"]
	assert.Equal(t, 1, oracle.Entries)
	assert.InDelta(t, 1.0, *oracle.Precision, 1e-9)
	assert.Nil(t, oracle.Recall)
}
