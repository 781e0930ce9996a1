package models

import "time"

// ExportFormat enumerates downloadable plan renderings.
type ExportFormat string

const (
	ExportFormatZIP ExportFormat = "zip"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportStatus captures background job lifecycle states.
type ExportStatus string

const (
	ExportStatusQueued     ExportStatus = "QUEUED"
	ExportStatusProcessing ExportStatus = "PROCESSING"
	ExportStatusFinished   ExportStatus = "FINISHED"
	ExportStatusFailed     ExportStatus = "FAILED"
	// ExportStatusExpired marks a finished job whose file was removed by cleanup.
	ExportStatusExpired    ExportStatus = "EXPIRED"
)

// ExportJob is a persisted asynchronous export request.
type ExportJob struct {
	ID           string       `db:"id" json:"id"`
	PlanID       string       `db:"plan_id" json:"plan_id"`
	Format       ExportFormat `db:"format" json:"format"`
	Status       ExportStatus `db:"status" json:"status"`
	Attempts     int          `db:"attempts" json:"attempts"`
	ResultURL    *string      `db:"result_url" json:"result_url,omitempty"`
	ErrorMessage *string      `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time   `db:"finished_at" json:"finished_at,omitempty"`
}

// ExportJobUpdate carries the fields a state transition changes. Nil fields
// are left untouched.
type ExportJobUpdate struct {
	Status       *ExportStatus
	Attempts     *int
	ResultURL    *string
	ErrorMessage *string
	FinishedAt   *time.Time
}
