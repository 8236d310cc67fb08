// Package logs owns per-user log entries: storage, the create/list API and
// the live tail stream.
package logs

import (
	"context"
	"strings"
	"time"
)

// MaxListLimit caps an explicit page size.
const MaxListLimit = 1000

// LogEntry is one immutable, owner-scoped record.
type LogEntry struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Level     string    `json:"level"`
	Owner     string    `json:"owner"`
	CreatedAt time.Time `json:"created_at"`
}

type AppendInput struct {
	Owner   string
	Message string
	Level   string
	Now     time.Time
}

// ListInput selects a page of one owner's entries.
// After is an exclusive entry id; Limit 0 returns every remaining entry.
type ListInput struct {
	Owner string
	After string
	Limit int
}

type ListResult struct {
	Entries []LogEntry
	HasMore bool
}

// Store persists log entries.
//
// Append assigns ID and CreatedAt. ListByOwner returns entries in creation
// order and never returns another owner's entries.
type Store interface {
	Append(ctx context.Context, in AppendInput) (LogEntry, error)
	ListByOwner(ctx context.Context, in ListInput) (ListResult, error)
}

func checkAppend(in AppendInput) error {
	switch {
	case strings.TrimSpace(in.Owner) == "":
		return missing("owner")
	case strings.TrimSpace(in.Message) == "":
		return missing("message")
	case strings.TrimSpace(in.Level) == "":
		return missing("level")
	}
	return nil
}

func clampLimit(limit int) int {
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
