package model

import "time"

// LedgerEntry is one append-only record of an audit run outcome.
// Entries are never rewritten; corrections append a new entry with Supersedes set.
type LedgerEntry struct {
	Seq        int64     `json:"seq"`
	AgentID    string    `json:"agent_id"`
	AuditRunID string    `json:"audit_run_id"`
	ContestID  string    `json:"contest_id"`
	Metrics    Metrics   `json:"metrics"`
	Timestamp  time.Time `json:"timestamp"`
	Supersedes string    `json:"supersedes,omitempty"`
	PrevHash   string    `json:"prev_hash,omitempty"`
	Hash       string    `json:"hash,omitempty"`
}

// EntryFromRun builds the ledger entry for a scored run
func EntryFromRun(run *AuditRun, at time.Time) LedgerEntry {
	return LedgerEntry{
		AgentID:    run.AgentID,
		AuditRunID: run.ID,
		ContestID:  run.ContestID,
		Metrics:    run.Metrics,
		Timestamp:  at.UTC(),
		Supersedes: run.Supersedes,
	}
}
