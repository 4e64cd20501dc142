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

type credentialRepository struct {
	db *gorm.DB
}

func NewCredentialRepository(db *gorm.DB) interfaces.CredentialRepository {
	return &credentialRepository{db: db}
}

func (r *credentialRepository) Get(ctx context.Context, name string) (string, error) {
	span, ctx := tracing.StartTracerSpan(ctx, "credentialRepository.Get")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var cred models.Credential
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ierrors.ErrCredentialMissing
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return "", errors.Wrap(err, "credentialRepository.Get")
	}
	return cred.Value, nil
}

func (r *credentialRepository) Put(ctx context.Context, name, value string) error {
	span, ctx := tracing.StartTracerSpan(ctx, "credentialRepository.Put")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var existing models.Credential
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		err = r.db.WithContext(ctx).Create(&models.Credential{Name: name, Value: value}).Error
	case err == nil:
		existing.Value = value
		err = r.db.WithContext(ctx).Save(&existing).Error
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "credentialRepository.Put")
	}
	return nil
}
