package repository

import (
	"gorm.io/gorm"

	"github.com/cleanr/inboxengine/internal/models"
	"github.com/cleanr/inboxengine/interfaces"
)

// Repositories is the fully-wired set of relational repositories, built once
// at process start and threaded through to the orchestrator, scheduler,
// worker pipeline and REST façade.
type Repositories struct {
	Credentials      interfaces.CredentialRepository
	Settings         interfaces.SettingRepository
	Schedules        interfaces.ScheduleRepository
	FolderJobs       interfaces.FolderJobRepository
	Runs             interfaces.RunRepository
	Actions          interfaces.ActionRepository
	Cache            interfaces.CacheRepository
	WorkerContainers interfaces.WorkerContainerRepository
}

func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Credentials:      NewCredentialRepository(db),
		Settings:         NewSettingRepository(db),
		Schedules:        NewScheduleRepository(db),
		FolderJobs:       NewFolderJobRepository(db),
		Runs:             NewRunRepository(db),
		Actions:          NewActionRepository(db),
		Cache:            NewCacheRepository(db),
		WorkerContainers: NewWorkerContainerRepository(db),
	}
}

// MigrateDB brings the schema up to date with the current model set. It is
// invoked from the `migrate` CLI subcommand and, idempotently, from server
// startup.
func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(models.AllModels()...)
}
