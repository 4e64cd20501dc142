package repository

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/cleanr/inboxengine/internal/models"
	"github.com/cleanr/inboxengine/internal/tracing"
	"github.com/cleanr/inboxengine/internal/utils"
	"github.com/cleanr/inboxengine/interfaces"
)

type cacheRepository struct {
	db *gorm.DB
}

func NewCacheRepository(db *gorm.DB) interfaces.CacheRepository {
	return &cacheRepository{db: db}
}

// Get returns (entry, hit, err). A row older than ttl is treated as a miss
// rather than deleted eagerly; the next Put overwrites it. A ttl of zero or
// less makes every lookup a miss.
func (r *cacheRepository) Get(ctx context.Context, hash string, ttl time.Duration) (*models.CacheEntry, bool, error) {
	span, ctx := tracing.StartTracerSpan(ctx, "cacheRepository.Get")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var entry models.CacheEntry
	err := r.db.WithContext(ctx).Where("hash = ?", hash).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, false, errors.Wrap(err, "cacheRepository.Get")
	}
	if ttl <= 0 || utils.Now().Sub(entry.ClassifiedAt) > ttl {
		return nil, false, nil
	}
	return &entry, true, nil
}

func (r *cacheRepository) Put(ctx context.Context, entry *models.CacheEntry) error {
	span, ctx := tracing.StartTracerSpan(ctx, "cacheRepository.Put")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if entry.ClassifiedAt.IsZero() {
		entry.ClassifiedAt = utils.Now()
	}
	if err := r.db.WithContext(ctx).Save(entry).Error; err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "cacheRepository.Put")
	}
	return nil
}
