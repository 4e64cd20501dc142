package repository

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/cleanr/inboxengine/internal/ierrors"
	"github.com/cleanr/inboxengine/internal/models"
	"github.com/cleanr/inboxengine/internal/tracing"
	"github.com/cleanr/inboxengine/interfaces"
)

type folderJobRepository struct {
	db *gorm.DB
}

func NewFolderJobRepository(db *gorm.DB) interfaces.FolderJobRepository {
	return &folderJobRepository{db: db}
}

func (r *folderJobRepository) Create(ctx context.Context, j *models.FolderJob) error {
	span, ctx := tracing.StartTracerSpan(ctx, "folderJobRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if err := r.db.WithContext(ctx).Create(j).Error; err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "folderJobRepository.Create")
	}
	return nil
}

func (r *folderJobRepository) List(ctx context.Context) ([]*models.FolderJob, error) {
	span, ctx := tracing.StartTracerSpan(ctx, "folderJobRepository.List")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var out []*models.FolderJob
	if err := r.db.WithContext(ctx).Order("id").Find(&out).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "folderJobRepository.List")
	}
	return out, nil
}

func (r *folderJobRepository) Get(ctx context.Context, id uint) (*models.FolderJob, error) {
	span, ctx := tracing.StartTracerSpan(ctx, "folderJobRepository.Get")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagJob(span, uintToString(id))

	var j models.FolderJob
	err := r.db.WithContext(ctx).First(&j, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ierrors.ErrJobNotFound
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "folderJobRepository.Get")
	}
	return &j, nil
}

// ListRunningEnabled returns jobs the orchestrator should have a driver
// goroutine for: anything not yet completed/errored that is still enabled,
// including jobs left mid-flight by a previous process (boot recovery reads
// this same set).
func (r *folderJobRepository) ListRunningEnabled(ctx context.Context) ([]*models.FolderJob, error) {
	span, ctx := tracing.StartTracerSpan(ctx, "folderJobRepository.ListRunningEnabled")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var out []*models.FolderJob
	err := r.db.WithContext(ctx).
		Where("enabled = ? AND status IN ?", true, []models.FolderJobStatus{
			models.FolderJobIdle, models.FolderJobRunning, models.FolderJobPaused,
		}).
		Find(&out).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "folderJobRepository.ListRunningEnabled")
	}
	return out, nil
}

func (r *folderJobRepository) Update(ctx context.Context, j *models.FolderJob) error {
	span, ctx := tracing.StartTracerSpan(ctx, "folderJobRepository.Update")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagJob(span, uintToString(j.ID))

	if err := r.db.WithContext(ctx).Save(j).Error; err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "folderJobRepository.Update")
	}
	return nil
}
