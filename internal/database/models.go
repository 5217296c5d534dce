package database

import (
	"database/sql"
	"time"
)

type RunStatus string

const (
	RunRunning     RunStatus = "running"
	RunCompleted   RunStatus = "completed"
	RunFailed      RunStatus = "failed"
	RunInterrupted RunStatus = "interrupted"
)

// Run is one generation batch as recorded in the runs table.
type Run struct {
	ID            string         `db:"id" json:"id"`
	Status        RunStatus      `db:"status" json:"status"`
	Mode          string         `db:"mode" json:"mode"`
	ValueStrategy string         `db:"value_strategy" json:"value_strategy"`
	ChunkSize     int            `db:"chunk_size" json:"chunk_size"`
	URLCount      int            `db:"url_count" json:"url_count"`
	WordCount     int            `db:"word_count" json:"word_count"`
	PayloadCount  int            `db:"payload_count" json:"payload_count"`
	Candidates    int            `db:"candidate_count" json:"candidate_count"`
	Failed        int            `db:"failed_count" json:"failed_count"`
	ErrorMessage  sql.NullString `db:"error_message" json:"-"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	CompletedAt   sql.NullTime   `db:"completed_at" json:"-"`
}

// RunResult is what FinishRun records once a batch ends.
type RunResult struct {
	Status     RunStatus
	Candidates int
	Failed     int
	Err        error
}

type RunFilter struct {
	Status RunStatus
	Limit  int
	Offset int
}

// CandidateRecord is a stored candidate. Params holds the ordered JSON object
// produced by mutation.Params.
type CandidateRecord struct {
	RunID     string    `db:"run_id" json:"run_id"`
	Seq       int       `db:"seq" json:"seq"`
	URL       string    `db:"url" json:"url"`
	Base      string    `db:"base" json:"base"`
	Origin    string    `db:"origin" json:"origin"`
	Payload   string    `db:"payload" json:"payload"`
	Params    string    `db:"params" json:"params"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type RunEvent struct {
	ID        string    `db:"id" json:"id"`
	RunID     string    `db:"run_id" json:"run_id"`
	Level     string    `db:"level" json:"level"`
	Component string    `db:"component" json:"component"`
	Message   string    `db:"message" json:"message"`
	Metadata  string    `db:"metadata" json:"metadata"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
