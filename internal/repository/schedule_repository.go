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

type scheduleRepository struct {
	db *gorm.DB
}

func NewScheduleRepository(db *gorm.DB) interfaces.ScheduleRepository {
	return &scheduleRepository{db: db}
}

func (r *scheduleRepository) Create(ctx context.Context, s *models.Schedule) error {
	span, ctx := tracing.StartTracerSpan(ctx, "scheduleRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "scheduleRepository.Create")
	}
	return nil
}

func (r *scheduleRepository) List(ctx context.Context) ([]*models.Schedule, error) {
	span, ctx := tracing.StartTracerSpan(ctx, "scheduleRepository.List")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var out []*models.Schedule
	if err := r.db.WithContext(ctx).Order("id").Find(&out).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "scheduleRepository.List")
	}
	return out, nil
}

func (r *scheduleRepository) ListEnabled(ctx context.Context) ([]*models.Schedule, error) {
	span, ctx := tracing.StartTracerSpan(ctx, "scheduleRepository.ListEnabled")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var out []*models.Schedule
	if err := r.db.WithContext(ctx).Where("enabled = ?", true).Order("id").Find(&out).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "scheduleRepository.ListEnabled")
	}
	return out, nil
}

func (r *scheduleRepository) Get(ctx context.Context, id uint) (*models.Schedule, error) {
	span, ctx := tracing.StartTracerSpan(ctx, "scheduleRepository.Get")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var s models.Schedule
	err := r.db.WithContext(ctx).First(&s, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ierrors.ErrNotFound
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "scheduleRepository.Get")
	}
	return &s, nil
}

func (r *scheduleRepository) Update(ctx context.Context, s *models.Schedule) error {
	span, ctx := tracing.StartTracerSpan(ctx, "scheduleRepository.Update")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if err := r.db.WithContext(ctx).Save(s).Error; err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "scheduleRepository.Update")
	}
	return nil
}
