package dto

import (
	"time"

	"github.com/noah-isme/sma-council-planner/internal/models"
)

// PlanUploadForm captures the non-file fields of POST /councils/plans.
type PlanUploadForm struct {
	Delimiter     string `form:"delimiter"`
	TeacherColumn string `form:"teacherColumn"`
	MaxGroupSize  int    `form:"maxGroupSize"`
}

// PlanRecordsRequest is the JSON body of POST /councils/plans/records.
type PlanRecordsRequest struct {
	Source        string                   `json:"source"`
	Columns       []string                 `json:"columns"`
	Records       []map[string]interface{} `json:"records" binding:"required,min=1"`
	TeacherColumn string                   `json:"teacherColumn"`
	MaxGroupSize  int                      `json:"maxGroupSize"`
}

// PlanOptions are the validated planner knobs shared by every entry point.
type PlanOptions struct {
	TeacherColumn string `validate:"required,max=128"`
	MaxGroupSize  int    `validate:"min=1,max=26"`
}

// PlanResponse wraps a stored run for API consumers.
type PlanResponse struct {
	ID          string            `json:"id"`
	Fingerprint string            `json:"fingerprint"`
	Source      string            `json:"source"`
	Result      models.PlanResult `json:"result"`
	Links       PlanLinks         `json:"links"`
}

// PlanLinks point at the download endpoints of a run.
type PlanLinks struct {
	Archive  string `json:"archive"`
	Document string `json:"document,omitempty"`
	Exports  string `json:"exports"`
}

// ExportRequest captures POST /councils/plans/:id/exports.
type ExportRequest struct {
	Format models.ExportFormat `json:"format" validate:"required,oneof=zip pdf"`
}

// ExportJobResponse is returned after enqueueing an export.
type ExportJobResponse struct {
	ID     string              `json:"id"`
	PlanID string              `json:"planId"`
	Format models.ExportFormat `json:"format"`
	Status models.ExportStatus `json:"status"`
}

// ExportStatusResponse exposes job progress metadata.
type ExportStatusResponse struct {
	ID        string              `json:"id"`
	PlanID    string              `json:"planId"`
	Format    models.ExportFormat `json:"format"`
	Status    models.ExportStatus `json:"status"`
	Attempts  int                 `json:"attempts"`
	ResultURL *string             `json:"resultUrl,omitempty"`
	Error     *string             `json:"error,omitempty"`
}

// TokenRequest describes a service token to mint.
type TokenRequest struct {
	Subject string             `validate:"required,max=128"`
	Role    models.ServiceRole `validate:"required,oneof=ADMIN VIEWER"`
}

// TokenResponse is a freshly signed service token.
type TokenResponse struct {
	Token     string             `json:"token"`
	Subject   string             `json:"subject"`
	Role      models.ServiceRole `json:"role"`
	ExpiresAt time.Time          `json:"expiresAt"`
}
