package repository

import (
	"github.com/nextmonthlab/progress-versioning/internal/domain"
	"gorm.io/gorm"
)

// ChangeLogRepository append-only audit log data access.
// Entries are never updated or deleted.
type ChangeLogRepository interface {
	// WithTx returns a repository scoped to the given transaction
	WithTx(tx *gorm.DB) ChangeLogRepository
	Create(entry *domain.ChangeLog) error
	// FindByEntity returns audit entries for an entity, most recent first
	FindByEntity(ref domain.EntityRef) ([]*domain.ChangeLog, error)
}

type changeLogRepository struct {
	db *gorm.DB
}

// NewChangeLogRepository creates a new ChangeLogRepository
func NewChangeLogRepository(db *gorm.DB) ChangeLogRepository {
	return &changeLogRepository{db: db}
}

func (r *changeLogRepository) WithTx(tx *gorm.DB) ChangeLogRepository {
	if tx == nil {
		return r
	}
	return &changeLogRepository{db: tx}
}

func (r *changeLogRepository) Create(entry *domain.ChangeLog) error {
	if err := r.db.Create(entry).Error; err != nil {
		return storageError(err)
	}
	return nil
}

func (r *changeLogRepository) FindByEntity(ref domain.EntityRef) ([]*domain.ChangeLog, error) {
	var entries []*domain.ChangeLog
	err := r.db.Where("entity_type = ? AND entity_id = ?", ref.EntityType, ref.EntityID).
		Order("created_at DESC, id DESC").
		Find(&entries).Error
	if err != nil {
		return nil, storageError(err)
	}
	return entries, nil
}
