package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-council-planner/internal/models"
	appErrors "github.com/noah-isme/sma-council-planner/pkg/errors"
	"github.com/noah-isme/sma-council-planner/pkg/export"
	"github.com/noah-isme/sma-council-planner/pkg/storage"
)

const (
	summaryFilename    = "group_summary.csv"
	validationFilename = "row_validation.csv"

	contentTypeZIP = "application/zip"
	contentTypePDF = "application/pdf"
)

type planLoader interface {
	GetByID(ctx context.Context, id string) (*models.PlanRun, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Read(filename string) ([]byte, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type archiveRenderer interface {
	Render(entries []export.ArchiveEntry) ([]byte, error)
}

type documentRenderer interface {
	Render(sections []export.Section) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix  string
	ResultTTL  time.Duration
	PDFEnabled bool
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ExportFormat
	ExpiresAt    time.Time
}

// RenderedFile is an in-memory rendering ready to be streamed.
type RenderedFile struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// ExportService renders plan results and persists them for signed download.
type ExportService struct {
	plans   planLoader
	storage fileStorage
	csv     csvRenderer
	zip     archiveRenderer
	pdf     documentRenderer
	signer  *storage.SignedURLSigner
	metrics *MetricsService
	logger  *zap.Logger
	cfg     ExportConfig
	now     func() time.Time
}

// NewExportService constructs an ExportService. Nil renderers fall back to
// the default exporters.
func NewExportService(plans planLoader, store fileStorage, signer *storage.SignedURLSigner, metrics *MetricsService, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, zip archiveRenderer, pdf documentRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if zip == nil {
		zip = export.NewZIPExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		plans:   plans,
		storage: store,
		csv:     csv,
		zip:     zip,
		pdf:     pdf,
		signer:  signer,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

// PDFEnabled reports whether document rendering is switched on.
func (s *ExportService) PDFEnabled() bool {
	return s.cfg.PDFEnabled
}

// Render produces the requested rendering of a plan in memory.
func (s *ExportService) Render(run *models.PlanRun, format models.ExportFormat) (*RenderedFile, error) {
	if run == nil {
		return nil, fmt.Errorf("plan run nil")
	}
	start := time.Now()
	var (
		payload     []byte
		contentType string
		err         error
	)
	switch format {
	case models.ExportFormatZIP:
		payload, err = RenderArchive(run.Result, s.csv, s.zip)
		contentType = contentTypeZIP
	case models.ExportFormatPDF:
		if !s.cfg.PDFEnabled {
			return nil, appErrors.Clone(appErrors.ErrValidation, "pdf export is disabled")
		}
		payload, err = RenderDocument(run.Result, s.pdf)
		contentType = contentTypePDF
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
	if err != nil {
		s.metrics.ObserveExport(string(format), "error", time.Since(start))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	s.metrics.ObserveExport(string(format), "success", time.Since(start))
	return &RenderedFile{
		Filename:    s.buildFilename(run.ID, format),
		ContentType: contentType,
		Payload:     payload,
	}, nil
}

// Generate renders the job's plan, stores the file and signs a download URL.
func (s *ExportService) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	run, err := s.plans.GetByID(ctx, job.PlanID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "plan not found")
		}
		return nil, err
	}
	file, err := s.Render(run, job.Format)
	if err != nil {
		return nil, err
	}

	relPath, err := s.storage.Save(file.Filename, file.Payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	signedURL := strings.TrimRight(s.cfg.APIPrefix, "/")
	if signedURL == "" {
		signedURL = "/api/v1"
	}
	signedURL = fmt.Sprintf("%s/export/%s", signedURL, token)

	s.logger.Sugar().Infow("export generated", "job_id", job.ID, "plan_id", job.PlanID, "format", job.Format, "bytes", len(file.Payload))
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          signedURL,
		Format:       job.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (storage.Grant, error) {
	return s.signer.Parse(token, allowExpired)
}

// Read returns the stored file contents.
func (s *ExportService) Read(relPath string) ([]byte, error) {
	return s.storage.Read(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(planID string, format models.ExportFormat) string {
	timestamp := s.now().UTC().Format("20060102_150405")
	return fmt.Sprintf("council_tables_%s_%s.%s", sanitizeFilename(planID), timestamp, format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

// RenderArchive bundles one CSV per table plus the group summary and row
// validation into a ZIP.
func RenderArchive(result models.PlanResult, csv csvRenderer, zip archiveRenderer) ([]byte, error) {
	entries := make([]export.ArchiveEntry, 0, len(result.Tables)+2)
	for _, table := range result.Tables {
		payload, err := csv.Render(TableDataset(table))
		if err != nil {
			return nil, fmt.Errorf("render table %d: %w", table.Index, err)
		}
		entries = append(entries, export.ArchiveEntry{Name: TableFilename(table), Data: payload})
	}

	summary, err := csv.Render(SummaryDataset(result.Summary))
	if err != nil {
		return nil, fmt.Errorf("render summary: %w", err)
	}
	validation, err := csv.Render(ValidationDataset(result.Validation))
	if err != nil {
		return nil, fmt.Errorf("render validation: %w", err)
	}
	entries = append(entries,
		export.ArchiveEntry{Name: summaryFilename, Data: summary},
		export.ArchiveEntry{Name: validationFilename, Data: validation},
	)
	return zip.Render(entries)
}

// RenderDocument draws every table as one titled grid.
func RenderDocument(result models.PlanResult, pdf documentRenderer) ([]byte, error) {
	sections := lo.Map(result.Tables, func(table models.CouncilTable, _ int) export.Section {
		return export.Section{Title: TableTitle(table), Data: TableDataset(table)}
	})
	return pdf.Render(sections)
}

// TableFilename names a table inside the archive, e.g. table_1_ACE.csv.
func TableFilename(table models.CouncilTable) string {
	return fmt.Sprintf("table_%d_%s.csv", table.Index, strings.Join(table.Letters, ""))
}

// TableTitle is the document heading of a table.
func TableTitle(table models.CouncilTable) string {
	return fmt.Sprintf("Table %d – Columns: %s", table.Index, strings.Join(table.Letters, ", "))
}

// TableDataset lays a table out as Year plus one column per letter.
func TableDataset(table models.CouncilTable) export.Dataset {
	headers := append([]string{"Year"}, table.Letters...)
	rows := make([]map[string]string, 0, len(table.Rows))
	for _, row := range table.Rows {
		record := map[string]string{"Year": strconv.Itoa(row.Year)}
		for i, letter := range table.Letters {
			if i < len(row.Cells) {
				record[letter] = row.Cells[i]
			}
		}
		rows = append(rows, record)
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

// SummaryDataset lists every table with its letters.
func SummaryDataset(summary []models.GroupSummary) export.Dataset {
	rows := lo.Map(summary, func(item models.GroupSummary, _ int) map[string]string {
		return map[string]string{
			"Table":             strconv.Itoa(item.Table),
			"Letters (columns)": strings.Join(item.Letters, " | "),
			"Columns":           strconv.Itoa(item.Count),
		}
	})
	return export.Dataset{
		Headers: []string{"Table", "Letters (columns)", "Columns"},
		Rows:    rows,
	}
}

// ValidationDataset lists the verdict of every table row.
func ValidationDataset(validation []models.RowValidation) export.Dataset {
	rows := lo.Map(validation, func(item models.RowValidation, _ int) map[string]string {
		shared := lo.Uniq(lo.FlatMap(item.Conflicts, func(conflict models.RowConflict, _ int) []string {
			return conflict.Teachers
		}))
		sort.Strings(shared)
		return map[string]string{
			"Table":                     strconv.Itoa(item.Table),
			"Year":                      strconv.Itoa(item.Year),
			"Valid (no shared teacher)": yesNo(item.Valid),
			"Shared teachers":           strings.Join(shared, ", "),
		}
	})
	return export.Dataset{
		Headers: []string{"Table", "Year", "Valid (no shared teacher)", "Shared teachers"},
		Rows:    rows,
	}
}

func yesNo(ok bool) string {
	if ok {
		return "Yes"
	}
	return "No"
}
