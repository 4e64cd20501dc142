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

type settingRepository struct {
	db *gorm.DB
}

func NewSettingRepository(db *gorm.DB) interfaces.SettingRepository {
	return &settingRepository{db: db}
}

// Get returns (value, found, err). Callers fall back to their own typed
// default when found is false rather than this package guessing a zero
// value across unrelated setting types.
func (r *settingRepository) Get(ctx context.Context, name string) (string, bool, error) {
	span, ctx := tracing.StartTracerSpan(ctx, "settingRepository.Get")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var s models.Setting
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return "", false, errors.Wrap(err, "settingRepository.Get")
	}
	return s.Value, true, nil
}

func (r *settingRepository) Put(ctx context.Context, name, value string) error {
	span, ctx := tracing.StartTracerSpan(ctx, "settingRepository.Put")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	now := utils.Now()
	err := r.db.WithContext(ctx).Save(&models.Setting{Name: name, Value: value, UpdatedAt: now}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "settingRepository.Put")
	}
	return nil
}
