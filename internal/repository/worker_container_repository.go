package repository

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/cleanr/inboxengine/internal/models"
	"github.com/cleanr/inboxengine/internal/tracing"
	"github.com/cleanr/inboxengine/internal/utils"
	"github.com/cleanr/inboxengine/interfaces"
)

type workerContainerRepository struct {
	db *gorm.DB
}

func NewWorkerContainerRepository(db *gorm.DB) interfaces.WorkerContainerRepository {
	return &workerContainerRepository{db: db}
}

func (r *workerContainerRepository) Create(ctx context.Context, wc *models.WorkerContainer) error {
	span, ctx := tracing.StartTracerSpan(ctx, "workerContainerRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if wc.CreatedAt.IsZero() {
		wc.CreatedAt = utils.Now()
	}
	if wc.Status == "" {
		wc.Status = models.WorkerContainerStarting
	}
	if err := r.db.WithContext(ctx).Create(wc).Error; err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "workerContainerRepository.Create")
	}
	return nil
}

func (r *workerContainerRepository) Finish(ctx context.Context, id uint, status models.WorkerContainerStatus) error {
	span, ctx := tracing.StartTracerSpan(ctx, "workerContainerRepository.Finish")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	now := utils.Now()
	err := r.db.WithContext(ctx).Model(&models.WorkerContainer{}).Where("id = ?", id).Updates(map[string]any{
		"status":      status,
		"finished_at": now,
	}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "workerContainerRepository.Finish")
	}
	return nil
}

// ListLiveByJob returns containers that have not reached a terminal status,
// used by orchestrator boot recovery to detect orphans left by a crashed
// process.
func (r *workerContainerRepository) ListLiveByJob(ctx context.Context, jobID uint) ([]*models.WorkerContainer, error) {
	span, ctx := tracing.StartTracerSpan(ctx, "workerContainerRepository.ListLiveByJob")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagJob(span, uintToString(jobID))

	var out []*models.WorkerContainer
	err := r.db.WithContext(ctx).
		Where("job_id = ? AND status IN ?", jobID, []models.WorkerContainerStatus{
			models.WorkerContainerStarting, models.WorkerContainerRunning,
		}).
		Find(&out).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "workerContainerRepository.ListLiveByJob")
	}
	return out, nil
}
