package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-council-planner/internal/dto"
	"github.com/noah-isme/sma-council-planner/internal/middleware"
	"github.com/noah-isme/sma-council-planner/internal/models"
	"github.com/noah-isme/sma-council-planner/internal/service"
	appErrors "github.com/noah-isme/sma-council-planner/pkg/errors"
	"github.com/noah-isme/sma-council-planner/pkg/response"
)

// multipart framing allowance on top of the file size limit
const uploadOverheadBytes = 64 * 1024

type plannerService interface {
	Plan(ctx context.Context, in service.PlanInput) (*service.PlanOutput, error)
	Get(ctx context.Context, id string) (*models.PlanRun, error)
	List(ctx context.Context, limit int) ([]models.PlanRunSummary, error)
}

type planRenderer interface {
	Render(run *models.PlanRun, format models.ExportFormat) (*service.RenderedFile, error)
	PDFEnabled() bool
}

type exportJobService interface {
	CreateJob(ctx context.Context, planID string, req dto.ExportRequest) (*dto.ExportJobResponse, error)
	GetStatus(ctx context.Context, id string) (*dto.ExportStatusResponse, error)
	ResolveDownload(ctx context.Context, token string) (*service.ExportDownload, error)
}

// CouncilHandlerConfig carries request defaults and limits.
type CouncilHandlerConfig struct {
	APIPrefix      string
	Delimiter      string
	MaxUploadBytes int64
}

// CouncilHandler exposes council planning and export endpoints.
type CouncilHandler struct {
	planner  plannerService
	renderer planRenderer
	jobs     exportJobService
	cfg      CouncilHandlerConfig
}

// NewCouncilHandler constructs the handler.
func NewCouncilHandler(planner plannerService, renderer planRenderer, jobs exportJobService, cfg CouncilHandlerConfig) *CouncilHandler {
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 5 * 1024 * 1024
	}
	return &CouncilHandler{planner: planner, renderer: renderer, jobs: jobs, cfg: cfg}
}

// UploadPlan godoc
// @Summary Plan council tables from an uploaded roster
// @Tags Councils
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Teacher by class roster (CSV)"
// @Param delimiter formData string false "Field delimiter: ; , or tab"
// @Param teacherColumn formData string false "Teacher name column"
// @Param maxGroupSize formData int false "Letters per table (1-26)"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /councils/plans [post]
func (h *CouncilHandler) UploadPlan(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxUploadBytes+uploadOverheadBytes)

	var form dto.PlanUploadForm
	if err := c.ShouldBind(&form); err != nil {
		response.Error(c, h.uploadError(err, "invalid plan options"))
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, h.uploadError(err, "file is required"))
		return
	}
	if fileHeader.Size > h.cfg.MaxUploadBytes {
		response.Error(c, h.tooLarge())
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
		return
	}
	defer src.Close()

	delimiter := form.Delimiter
	if delimiter == "" {
		delimiter = h.cfg.Delimiter
	}
	table, err := service.DecodeRoster(src, delimiter)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.plan(c, service.PlanInput{
		Table:         table,
		Source:        fileHeader.Filename,
		TeacherColumn: form.TeacherColumn,
		MaxGroupSize:  form.MaxGroupSize,
	})
}

// RecordsPlan godoc
// @Summary Plan council tables from JSON records
// @Tags Councils
// @Accept json
// @Produce json
// @Param payload body dto.PlanRecordsRequest true "Roster records"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /councils/plans/records [post]
func (h *CouncilHandler) RecordsPlan(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxUploadBytes)

	var req dto.PlanRecordsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, h.uploadError(err, "records are required"))
		return
	}
	table, err := service.DecodeRecords(req.Columns, req.Records)
	if err != nil {
		response.Error(c, err)
		return
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = "records"
	}
	h.plan(c, service.PlanInput{
		Table:         table,
		Source:        source,
		TeacherColumn: req.TeacherColumn,
		MaxGroupSize:  req.MaxGroupSize,
	})
}

// ListPlans godoc
// @Summary List recent plans
// @Tags Councils
// @Produce json
// @Param limit query int false "Maximum runs (default 20, max 100)"
// @Success 200 {object} response.Envelope
// @Router /councils/plans [get]
func (h *CouncilHandler) ListPlans(c *gin.Context) {
	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	runs, err := h.planner.List(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, runs, map[string]interface{}{"count": len(runs)})
}

// GetPlan godoc
// @Summary Get a plan
// @Tags Councils
// @Produce json
// @Param id path string true "Plan ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /councils/plans/{id} [get]
func (h *CouncilHandler) GetPlan(c *gin.Context) {
	run, err := h.planner.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, h.toResponse(run))
}

// DownloadArchive godoc
// @Summary Download the plan as a ZIP of CSV files
// @Tags Councils
// @Produce application/zip
// @Param id path string true "Plan ID"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Router /councils/plans/{id}/archive [get]
func (h *CouncilHandler) DownloadArchive(c *gin.Context) {
	h.render(c, models.ExportFormatZIP)
}

// DownloadDocument godoc
// @Summary Download the plan as a PDF document
// @Tags Councils
// @Produce application/pdf
// @Param id path string true "Plan ID"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Router /councils/plans/{id}/document [get]
func (h *CouncilHandler) DownloadDocument(c *gin.Context) {
	if !h.renderer.PDFEnabled() {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "pdf export is disabled"))
		return
	}
	h.render(c, models.ExportFormatPDF)
}

// CreateExport godoc
// @Summary Queue an asynchronous export
// @Tags Councils
// @Accept json
// @Produce json
// @Param id path string true "Plan ID"
// @Param payload body dto.ExportRequest true "Export format"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /councils/plans/{id}/exports [post]
func (h *CouncilHandler) CreateExport(c *gin.Context) {
	var req dto.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid export payload"))
		return
	}
	job, err := h.jobs.CreateJob(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, job)
}

// ExportStatus godoc
// @Summary Export job status
// @Tags Councils
// @Produce json
// @Param id path string true "Export job ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /councils/exports/{id} [get]
func (h *CouncilHandler) ExportStatus(c *gin.Context) {
	status, err := h.jobs.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status)
}

// DownloadExport godoc
// @Summary Download a finished export via signed token
// @Tags Councils
// @Produce application/octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /export/{token} [get]
func (h *CouncilHandler) DownloadExport(c *gin.Context) {
	download, err := h.jobs.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, download.Filename, download.ContentType, download.Payload)
}

func (h *CouncilHandler) plan(c *gin.Context, in service.PlanInput) {
	out, err := h.planner.Plan(c.Request.Context(), in)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, out.CacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{"cache_hit": out.CacheHit}
	}
	response.Created(c, h.toResponse(out.Run), meta)
}

func (h *CouncilHandler) render(c *gin.Context, format models.ExportFormat) {
	run, err := h.planner.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.renderer.Render(run, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Payload)
}

func (h *CouncilHandler) toResponse(run *models.PlanRun) dto.PlanResponse {
	base := fmt.Sprintf("%s/councils/plans/%s", strings.TrimRight(h.cfg.APIPrefix, "/"), run.ID)
	links := dto.PlanLinks{
		Archive: base + "/archive",
		Exports: base + "/exports",
	}
	if h.renderer.PDFEnabled() {
		links.Document = base + "/document"
	}
	return dto.PlanResponse{
		ID:          run.ID,
		Fingerprint: run.Fingerprint,
		Source:      run.Source,
		Result:      run.Result,
		Links:       links,
	}
}

func (h *CouncilHandler) uploadError(err error, message string) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return h.tooLarge()
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}

func (h *CouncilHandler) tooLarge() error {
	return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("upload exceeds %d bytes", h.cfg.MaxUploadBytes))
}
