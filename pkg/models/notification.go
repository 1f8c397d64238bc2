package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification is an outbox row asking a worker to start a job. It is written
// in the same transaction as the job and removed from the pending set once a
// worker has been told.
type Notification struct {
	ID            uuid.UUID  `db:"id"              json:"id"`
	JobID         uuid.UUID  `db:"job_id"          json:"job_id"`
	Kind          JobKind    `db:"kind"            json:"kind"`
	CallbackURL   string     `db:"callback_url"    json:"callback_url"`
	Attempts      int        `db:"attempts"        json:"attempts"`
	LastError     *string    `db:"last_error"      json:"last_error,omitempty"`
	NextAttemptAt time.Time  `db:"next_attempt_at" json:"next_attempt_at"`
	SentAt        *time.Time `db:"sent_at"         json:"sent_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at"      json:"created_at"`
}
