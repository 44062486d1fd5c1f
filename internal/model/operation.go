package model

import "time"

// Operation is the audit record of one mutating CLI command.
type Operation struct {
	ID         int64      `db:"id"`
	Operation  string     `db:"operation"`
	Parameters string     `db:"parameters"`
	Status     string     `db:"status"`
	StartedAt  time.Time  `db:"started_at"`
	FinishedAt *time.Time `db:"finished_at"`
}
