package migration

import (
	"github.com/nextmonthlab/progress-versioning/internal/domain"
	"gorm.io/gorm"
)

// Run executes AutoMigrate for the versioning tables.
// The unique index on (entity_type, entity_id, version_number) is the
// backstop against concurrent writers allocating the same version number.
func Run(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.ContentVersion{},
		&domain.ChangeLog{},
	)
}
