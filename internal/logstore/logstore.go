// Package logstore persists session metadata and the append-only raw-line
// logs that session reconstruction replays.
package logstore

import "time"

// Meta is the persisted metadata for one session.
type Meta struct {
	ID         string     `json:"id"`
	Task       string     `json:"task"`
	Status     string     `json:"status"`
	StartedAt  *time.Time `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	ExitCode   *int       `json:"exit_code"`
}

// Store is the persistence sink for sessions. Append adds one raw line to a
// session's primary log; AppendChild to the per-child log of an async
// sub-agent stream. ReadAll returns the primary log for replay.
type Store interface {
	SaveMeta(meta *Meta) error
	LoadMeta(sessionID string) (*Meta, error)
	Append(sessionID, line string) error
	AppendChild(sessionID, toolUseID, line string) error
	ReadAll(sessionID string) ([]string, error)
	List() ([]string, error)
	Close() error
}
