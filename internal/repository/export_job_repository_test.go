package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-council-planner/internal/models"
)

var exportJobRowColumns = []string{"id", "plan_id", "format", "status", "attempts", "result_url", "error_message", "created_at", "finished_at"}

func TestExportJobRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewExportJobRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO council_export_jobs")).
		WithArgs(sqlmock.AnyArg(), "run-1", "zip", "QUEUED", 0, nil, nil, sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	job := &models.ExportJob{PlanID: "run-1", Format: models.ExportFormatZIP}
	require.NoError(t, repo.Create(context.Background(), job))
	assert.Equal(t, models.ExportStatusQueued, job.Status)

	rows := sqlmock.NewRows(exportJobRowColumns).
		AddRow(job.ID, "run-1", "zip", "QUEUED", 0, nil, nil, time.Now(), nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, plan_id, format, status, attempts, result_url, error_message, created_at, finished_at FROM council_export_jobs WHERE id = $1")).
		WithArgs(job.ID).
		WillReturnRows(rows)

	fetched, err := repo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExportFormatZIP, fetched.Format)
	assert.Nil(t, fetched.ResultURL)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExportJobRepositoryUpdate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewExportJobRepository(db)

	now := time.Now()
	status := models.ExportStatusFinished
	attempts := 1
	url := "/api/v1/export/token"
	mock.ExpectExec(regexp.QuoteMeta("UPDATE council_export_jobs SET status = $1, attempts = $2, result_url = $3, finished_at = $4 WHERE id = $5")).
		WithArgs(status, attempts, url, now, "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), "job-1", models.ExportJobUpdate{
		Status:     &status,
		Attempts:   &attempts,
		ResultURL:  &url,
		FinishedAt: &now,
	})
	require.NoError(t, err)
	require.NoError(t, repo.Update(context.Background(), "job-1", models.ExportJobUpdate{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExportJobRepositoryListQueries(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewExportJobRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM council_export_jobs WHERE status = 'QUEUED' ORDER BY created_at ASC LIMIT $1")).
		WithArgs(20).
		WillReturnRows(sqlmock.NewRows(exportJobRowColumns).AddRow("job-1", "run-1", "pdf", "QUEUED", 0, nil, nil, time.Now(), nil))

	queued, err := repo.ListQueued(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, queued, 1)

	cutoff := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM council_export_jobs WHERE status = 'FINISHED' AND finished_at IS NOT NULL AND finished_at < $1 ORDER BY finished_at ASC LIMIT $2")).
		WithArgs(cutoff, 50).
		WillReturnRows(sqlmock.NewRows(exportJobRowColumns))

	finished, err := repo.ListFinishedBefore(context.Background(), cutoff, 0)
	require.NoError(t, err)
	assert.Empty(t, finished)
	require.NoError(t, mock.ExpectationsWereMet())
}
