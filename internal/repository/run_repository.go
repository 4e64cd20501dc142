package repository

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/cleanr/inboxengine/internal/ierrors"
	"github.com/cleanr/inboxengine/internal/models"
	"github.com/cleanr/inboxengine/internal/tracing"
	"github.com/cleanr/inboxengine/internal/utils"
	"github.com/cleanr/inboxengine/interfaces"
)

type runRepository struct {
	db *gorm.DB
}

func NewRunRepository(db *gorm.DB) interfaces.RunRepository {
	return &runRepository{db: db}
}

func (r *runRepository) Create(ctx context.Context, run *models.Run) error {
	span, ctx := tracing.StartTracerSpan(ctx, "runRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if run.StartedAt.IsZero() {
		run.StartedAt = utils.Now()
	}
	if run.Status == "" {
		run.Status = models.RunRunning
	}
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "runRepository.Create")
	}
	tracing.TagRun(span, uintToString(run.ID))
	return nil
}

func (r *runRepository) Get(ctx context.Context, id uint) (*models.Run, error) {
	span, ctx := tracing.StartTracerSpan(ctx, "runRepository.Get")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagRun(span, uintToString(id))

	var run models.Run
	err := r.db.WithContext(ctx).First(&run, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ierrors.ErrNotFound
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "runRepository.Get")
	}
	return &run, nil
}

// UpdateCounters persists the mutable progress fields of a run in flight
// (Total/Kept/Filed/Trashed/Errors/Skipped); it never changes Status.
func (r *runRepository) UpdateCounters(ctx context.Context, run *models.Run) error {
	span, ctx := tracing.StartTracerSpan(ctx, "runRepository.UpdateCounters")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagRun(span, uintToString(run.ID))

	err := r.db.WithContext(ctx).Model(&models.Run{}).Where("id = ?", run.ID).Updates(map[string]any{
		"total":   run.Total,
		"kept":    run.Kept,
		"filed":   run.Filed,
		"trashed": run.Trashed,
		"errors":  run.Errors,
		"skipped": run.Skipped,
	}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "runRepository.UpdateCounters")
	}
	return nil
}

func (r *runRepository) Finish(ctx context.Context, id uint, status models.RunStatus) error {
	span, ctx := tracing.StartTracerSpan(ctx, "runRepository.Finish")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagRun(span, uintToString(id))

	now := utils.Now()
	err := r.db.WithContext(ctx).Model(&models.Run{}).Where("id = ?", id).Updates(map[string]any{
		"status":      status,
		"finished_at": now,
	}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "runRepository.Finish")
	}
	return nil
}
