package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/sma-council-planner/internal/models"
)

// MemoryPlanRunStore keeps plan runs in process when history is disabled.
// Runs older than ttl are invisible and pruned lazily.
type MemoryPlanRunStore struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]models.PlanRun
	now   func() time.Time
}

// NewMemoryPlanRunStore constructs the store.
func NewMemoryPlanRunStore(ttl time.Duration) *MemoryPlanRunStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryPlanRunStore{ttl: ttl, items: make(map[string]models.PlanRun), now: time.Now}
}

// Create stores a copy of run.
func (s *MemoryPlanRunStore) Create(_ context.Context, run *models.PlanRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.now().UTC()
	}
	run.GroupCount = len(run.Result.Groups)
	run.InvalidRows = run.Result.InvalidRows

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[run.ID] = *run
	return nil
}

// GetByID returns sql.ErrNoRows for unknown or expired runs.
func (s *MemoryPlanRunStore) GetByID(_ context.Context, id string) (*models.PlanRun, error) {
	s.mu.RLock()
	run, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("get plan run: %w", sql.ErrNoRows)
	}
	if s.expired(run.CreatedAt) {
		s.mu.Lock()
		delete(s.items, id)
		s.mu.Unlock()
		return nil, fmt.Errorf("get plan run: %w", sql.ErrNoRows)
	}
	return &run, nil
}

// ListRecent returns live runs, newest first.
func (s *MemoryPlanRunStore) ListRecent(_ context.Context, limit int) ([]models.PlanRunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.RLock()
	runs := make([]models.PlanRunSummary, 0, len(s.items))
	for _, run := range s.items {
		if !s.expired(run.CreatedAt) {
			runs = append(runs, run.Summary())
		}
	}
	s.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// DeleteCreatedBefore drops runs created before cutoff.
func (s *MemoryPlanRunStore) DeleteCreatedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for id, run := range s.items {
		if run.CreatedAt.Before(cutoff) {
			delete(s.items, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryPlanRunStore) expired(createdAt time.Time) bool {
	return s.now().Sub(createdAt) > s.ttl
}

// MemoryExportJobStore keeps export jobs in process when history is disabled.
type MemoryExportJobStore struct {
	mu    sync.RWMutex
	items map[string]models.ExportJob
}

// NewMemoryExportJobStore constructs the store.
func NewMemoryExportJobStore() *MemoryExportJobStore {
	return &MemoryExportJobStore{items: make(map[string]models.ExportJob)}
}

// Create stores a copy of job.
func (s *MemoryExportJobStore) Create(_ context.Context, job *models.ExportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ExportStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[job.ID] = *job
	return nil
}

// GetByID returns sql.ErrNoRows for unknown jobs.
func (s *MemoryExportJobStore) GetByID(_ context.Context, id string) (*models.ExportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("get export job: %w", sql.ErrNoRows)
	}
	return &job, nil
}

// Update applies the non-nil fields of params.
func (s *MemoryExportJobStore) Update(_ context.Context, id string, params models.ExportJobUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.items[id]
	if !ok {
		return fmt.Errorf("update export job: %w", sql.ErrNoRows)
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Attempts != nil {
		job.Attempts = *params.Attempts
	}
	if params.ResultURL != nil {
		url := *params.ResultURL
		job.ResultURL = &url
	}
	if params.ErrorMessage != nil {
		msg := *params.ErrorMessage
		job.ErrorMessage = &msg
	}
	if params.FinishedAt != nil {
		at := *params.FinishedAt
		job.FinishedAt = &at
	}
	s.items[id] = job
	return nil
}

// ListQueued returns queued jobs, oldest first.
func (s *MemoryExportJobStore) ListQueued(_ context.Context, limit int) ([]models.ExportJob, error) {
	return s.filter(limit, func(job models.ExportJob) bool {
		return job.Status == models.ExportStatusQueued
	}, func(job models.ExportJob) time.Time { return job.CreatedAt }), nil
}

// ListFinishedBefore returns finished jobs completed before cutoff.
func (s *MemoryExportJobStore) ListFinishedBefore(_ context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error) {
	return s.filter(limit, func(job models.ExportJob) bool {
		return job.Status == models.ExportStatusFinished && job.FinishedAt != nil && job.FinishedAt.Before(cutoff)
	}, func(job models.ExportJob) time.Time { return *job.FinishedAt }), nil
}

func (s *MemoryExportJobStore) filter(limit int, keep func(models.ExportJob) bool, orderBy func(models.ExportJob) time.Time) []models.ExportJob {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	jobs := make([]models.ExportJob, 0)
	for _, job := range s.items {
		if keep(job) {
			jobs = append(jobs, job)
		}
	}
	s.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool { return orderBy(jobs[i]).Before(orderBy(jobs[j])) })
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs
}
