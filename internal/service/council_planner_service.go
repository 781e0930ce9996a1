package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-council-planner/internal/dto"
	"github.com/noah-isme/sma-council-planner/internal/models"
	appErrors "github.com/noah-isme/sma-council-planner/pkg/errors"
	"github.com/noah-isme/sma-council-planner/pkg/roster"
)

const (
	defaultPlanListLimit = 20
	maxPlanListLimit     = 100
)

// PlanRunStore persists plan runs.
type PlanRunStore interface {
	Create(ctx context.Context, run *models.PlanRun) error
	GetByID(ctx context.Context, id string) (*models.PlanRun, error)
	ListRecent(ctx context.Context, limit int) ([]models.PlanRunSummary, error)
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type planCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// CouncilPlannerConfig holds defaults applied to empty request options.
type CouncilPlannerConfig struct {
	TeacherColumn   string
	MaxGroupSize    int
	CacheTTL        time.Duration
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// PlanInput is one planning request.
type PlanInput struct {
	Table         roster.Table
	Source        string
	TeacherColumn string
	MaxGroupSize  int
}

// PlanOutput is the stored run plus whether the result came from cache.
type PlanOutput struct {
	Run      *models.PlanRun
	CacheHit bool
}

// CouncilPlannerService runs the council pipeline behind cache, history,
// metrics and logging.
type CouncilPlannerService struct {
	store     PlanRunStore
	cache     planCache
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       CouncilPlannerConfig
}

// NewCouncilPlannerService wires planner dependencies. cache and metrics may be nil.
func NewCouncilPlannerService(store PlanRunStore, cache planCache, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg CouncilPlannerConfig) *CouncilPlannerService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(cfg.TeacherColumn) == "" {
		cfg.TeacherColumn = models.DefaultTeacherColumn
	}
	if cfg.MaxGroupSize <= 0 {
		cfg.MaxGroupSize = models.DefaultMaxGroupSize
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &CouncilPlannerService{
		store:     store,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// Plan validates options, reuses a cached result for identical input or
// runs the pipeline, then records the run.
func (s *CouncilPlannerService) Plan(ctx context.Context, in PlanInput) (*PlanOutput, error) {
	opts, err := s.resolveOptions(in.TeacherColumn, in.MaxGroupSize)
	if err != nil {
		s.metrics.ObservePlan(PlanOutcomeRejected, 0, 0, 0)
		return nil, err
	}
	if len(in.Table.Columns) == 0 {
		s.metrics.ObservePlan(PlanOutcomeRejected, 0, 0, 0)
		return nil, appErrors.Clone(appErrors.ErrValidation, roster.ErrEmpty.Error())
	}

	fingerprint := planFingerprint(in.Table, opts)
	start := time.Now()

	var result models.PlanResult
	hit, err := s.cacheGet(ctx, fingerprint, &result)
	if err != nil {
		s.logger.Sugar().Warnw("plan cache lookup failed", "fingerprint", fingerprint, "error", err)
	}
	if !hit {
		computed, err := RunCouncilPipeline(in.Table, PipelineOptions{
			TeacherColumn: opts.TeacherColumn,
			MaxGroupSize:  opts.MaxGroupSize,
		})
		if err != nil {
			s.observeFailure(err, in.Source)
			return nil, err
		}
		result = *computed
		if s.cache != nil {
			_ = s.cache.Set(ctx, fingerprint, result, s.cfg.CacheTTL)
		}
	}
	duration := time.Since(start)

	run := &models.PlanRun{
		Fingerprint:   fingerprint,
		Source:        in.Source,
		TeacherColumn: result.TeacherColumn,
		MaxGroupSize:  result.MaxGroupSize,
		Result:        result,
	}
	storeStart := time.Now()
	if err := s.store.Create(ctx, run); err != nil {
		s.metrics.ObservePlan(PlanOutcomeError, 0, 0, 0)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store plan run")
	}
	s.metrics.ObserveDBQuery("plan_run_create", time.Since(storeStart))

	outcome := PlanOutcomeValid
	if result.InvalidRows > 0 {
		outcome = PlanOutcomeInvalid
	}
	s.metrics.ObservePlan(outcome, len(result.Groups), result.InvalidRows, duration)

	s.logger.Sugar().Infow("council plan computed",
		"plan_id", run.ID,
		"source", in.Source,
		"cache_hit", hit,
		"complete_letters", len(result.CompleteLetters),
		"incomplete_letters", result.IncompleteLetters,
		"ignored_columns", len(result.IgnoredColumns),
		"groups", len(result.Groups),
		"invalid_rows", result.InvalidRows,
		"duration_ms", duration.Milliseconds(),
	)
	if result.InvalidRows > 0 {
		s.logger.Sugar().Warnw("council plan has rows with shared teachers", "plan_id", run.ID, "invalid_rows", result.InvalidRows)
	}

	return &PlanOutput{Run: run, CacheHit: hit}, nil
}

// Get loads a stored run.
func (s *CouncilPlannerService) Get(ctx context.Context, id string) (*models.PlanRun, error) {
	start := time.Now()
	run, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "plan not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan")
	}
	s.metrics.ObserveDBQuery("plan_run_get", time.Since(start))
	return run, nil
}

// List returns recent runs, newest first. limit defaults to 20 and is capped at 100.
func (s *CouncilPlannerService) List(ctx context.Context, limit int) ([]models.PlanRunSummary, error) {
	if limit <= 0 {
		limit = defaultPlanListLimit
	}
	if limit > maxPlanListLimit {
		limit = maxPlanListLimit
	}
	runs, err := s.store.ListRecent(ctx, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list plans")
	}
	return runs, nil
}

// StartCleanup prunes runs older than the result TTL on every interval tick.
func (s *CouncilPlannerService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.prune(ctx)
			}
		}
	}()
}

func (s *CouncilPlannerService) prune(ctx context.Context) {
	deleted, err := s.store.DeleteCreatedBefore(ctx, time.Now().Add(-s.cfg.ResultTTL))
	if err != nil {
		s.logger.Sugar().Warnw("plan run cleanup failed", "error", err)
		return
	}
	if deleted > 0 {
		s.logger.Sugar().Infow("plan runs pruned", "deleted", deleted)
	}
}

func (s *CouncilPlannerService) resolveOptions(teacherColumn string, maxGroupSize int) (dto.PlanOptions, error) {
	opts := dto.PlanOptions{TeacherColumn: strings.TrimSpace(teacherColumn), MaxGroupSize: maxGroupSize}
	if opts.TeacherColumn == "" {
		opts.TeacherColumn = s.cfg.TeacherColumn
	}
	if opts.MaxGroupSize == 0 {
		opts.MaxGroupSize = s.cfg.MaxGroupSize
	}
	if err := s.validator.Struct(opts); err != nil {
		return opts, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "maxGroupSize must be between 1 and 26 and teacherColumn at most 128 characters")
	}
	return opts, nil
}

func (s *CouncilPlannerService) cacheGet(ctx context.Context, key string, dest *models.PlanResult) (bool, error) {
	if s.cache == nil {
		return false, nil
	}
	hit, err := s.cache.Get(ctx, key, dest)
	if err != nil {
		if appErrors.HasCode(err, appErrors.ErrCacheCorrupt.Code) {
			_ = s.cache.Delete(ctx, key)
		}
		*dest = models.PlanResult{}
		return false, err
	}
	return hit, nil
}

func (s *CouncilPlannerService) observeFailure(err error, source string) {
	outcome := PlanOutcomeError
	if appErrors.HasCode(err, appErrors.ErrMissingColumn.Code) || appErrors.HasCode(err, appErrors.ErrNoCompleteLetters.Code) {
		outcome = PlanOutcomeRejected
	}
	s.metrics.ObservePlan(outcome, 0, 0, 0)
	s.logger.Sugar().Warnw("council plan rejected", "source", source, "error", err)
}

func planFingerprint(table roster.Table, opts dto.PlanOptions) string {
	h := sha256.New()
	_, _ = fmt.Fprintf(h, "%s|%s|%d", table.Fingerprint(), opts.TeacherColumn, opts.MaxGroupSize)
	return hex.EncodeToString(h.Sum(nil))
}

// DecodeRoster parses an uploaded delimited roster. Malformed input is a
// validation error.
func DecodeRoster(r io.Reader, delimiter string) (roster.Table, error) {
	comma, err := roster.ParseDelimiter(delimiter)
	if err != nil {
		return roster.Table{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "delimiter must be one of ';', ',' or tab")
	}
	table, err := roster.Parse(r, roster.Options{Delimiter: comma})
	if err != nil {
		return roster.Table{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	return table, nil
}

// DecodeRecords builds a roster from JSON records. Malformed input is a
// validation error.
func DecodeRecords(columns []string, records []map[string]interface{}) (roster.Table, error) {
	table, err := roster.FromRecords(columns, records)
	if err != nil {
		return roster.Table{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	return table, nil
}
