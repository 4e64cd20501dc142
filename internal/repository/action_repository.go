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

type actionRepository struct {
	db *gorm.DB
}

func NewActionRepository(db *gorm.DB) interfaces.ActionRepository {
	return &actionRepository{db: db}
}

// Append is the sole write path for Action rows; they are never updated or
// deleted once written, matching the append-only audit trail the rest of
// the engine reports progress against.
func (r *actionRepository) Append(ctx context.Context, a *models.Action) error {
	span, ctx := tracing.StartTracerSpan(ctx, "actionRepository.Append")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagRun(span, uintToString(a.RunID))

	if a.CreatedAt.IsZero() {
		a.CreatedAt = utils.Now()
	}
	if err := r.db.WithContext(ctx).Create(a).Error; err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "actionRepository.Append")
	}
	return nil
}
