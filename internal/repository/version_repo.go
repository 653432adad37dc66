package repository

import (
	"errors"
	"fmt"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/nextmonthlab/progress-versioning/internal/common"
	"github.com/nextmonthlab/progress-versioning/internal/domain"
	"gorm.io/gorm"
)

// VersionRepository content version data access
type VersionRepository interface {
	// WithTx returns a repository scoped to the given transaction
	WithTx(tx *gorm.DB) VersionRepository
	// Create persists a fully-populated version record.
	// Returns common.ErrVersionConflict when the (entityType, entityId,
	// versionNumber) unique index rejects a stale version number.
	Create(version *domain.ContentVersion) error
	FindByID(id uint64) (*domain.ContentVersion, error)
	FindLatest(ref domain.EntityRef) (*domain.ContentVersion, error)
	// FindByEntity returns the full history, most recent version first
	FindByEntity(ref domain.EntityRef) ([]*domain.ContentVersion, error)
	// NextVersionNumber returns 1 for an entity with no versions,
	// max(version_number)+1 otherwise. Computed against current persisted
	// state; racing callers are caught by the unique index on Create.
	NextVersionNumber(ref domain.EntityRef) (int, error)
	// UpdateStatus sets a version's status. Promoting to published demotes
	// any other published version of the same entity to archived within
	// the same transaction.
	UpdateStatus(id uint64, status domain.VersionStatus) (*domain.ContentVersion, error)
}

type versionRepository struct {
	db *gorm.DB
}

// NewVersionRepository creates a new VersionRepository
func NewVersionRepository(db *gorm.DB) VersionRepository {
	return &versionRepository{db: db}
}

func (r *versionRepository) WithTx(tx *gorm.DB) VersionRepository {
	if tx == nil {
		return r
	}
	return &versionRepository{db: tx}
}

func (r *versionRepository) Create(version *domain.ContentVersion) error {
	if err := validateVersion(version); err != nil {
		return err
	}

	if err := r.db.Create(version).Error; err != nil {
		if isDuplicateKey(err) {
			return common.ErrVersionConflict
		}
		return storageError(err)
	}
	return nil
}

func validateVersion(v *domain.ContentVersion) error {
	if !v.EntityType.Valid() {
		return fmt.Errorf("%w: entity_type %q", common.ErrInvalidEntityType, v.EntityType)
	}
	if v.EntityID <= 0 {
		return fmt.Errorf("%w: entity_id is required", common.ErrInvalidInput)
	}
	if v.VersionNumber < 1 {
		return fmt.Errorf("%w: version_number must be positive", common.ErrInvalidInput)
	}
	if v.CreatedBy == 0 {
		return fmt.Errorf("%w: created_by is required", common.ErrInvalidInput)
	}
	if v.Snapshot == nil {
		return fmt.Errorf("%w: snapshot is required", common.ErrInvalidInput)
	}
	if !v.Status.Valid() {
		return fmt.Errorf("%w: %q", common.ErrInvalidStatus, v.Status)
	}
	if v.ChangeType == "" {
		return fmt.Errorf("%w: change_type is required", common.ErrInvalidInput)
	}
	return nil
}

func (r *versionRepository) FindByID(id uint64) (*domain.ContentVersion, error) {
	var version domain.ContentVersion
	err := r.db.Where("id = ?", id).First(&version).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrVersionNotFound
		}
		return nil, storageError(err)
	}
	return &version, nil
}

func (r *versionRepository) FindLatest(ref domain.EntityRef) (*domain.ContentVersion, error) {
	var version domain.ContentVersion
	err := r.db.Where("entity_type = ? AND entity_id = ?", ref.EntityType, ref.EntityID).
		Order("version_number DESC").
		First(&version).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNoVersionHistory
		}
		return nil, storageError(err)
	}
	return &version, nil
}

func (r *versionRepository) FindByEntity(ref domain.EntityRef) ([]*domain.ContentVersion, error) {
	var versions []*domain.ContentVersion
	err := r.db.Where("entity_type = ? AND entity_id = ?", ref.EntityType, ref.EntityID).
		Order("version_number DESC").
		Find(&versions).Error
	if err != nil {
		return nil, storageError(err)
	}
	return versions, nil
}

func (r *versionRepository) NextVersionNumber(ref domain.EntityRef) (int, error) {
	var maxVersion *int
	err := r.db.Model(&domain.ContentVersion{}).
		Where("entity_type = ? AND entity_id = ?", ref.EntityType, ref.EntityID).
		Select("MAX(version_number)").
		Scan(&maxVersion).Error
	if err != nil {
		return 0, storageError(err)
	}
	if maxVersion == nil {
		return 1, nil
	}
	return *maxVersion + 1, nil
}

func (r *versionRepository) UpdateStatus(id uint64, status domain.VersionStatus) (*domain.ContentVersion, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", common.ErrInvalidStatus, status)
	}

	var updated domain.ContentVersion
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var version domain.ContentVersion
		if err := tx.Where("id = ?", id).First(&version).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.ErrVersionNotFound
			}
			return err
		}

		// Single-published-version invariant: demote the current published
		// version of the same entity before promoting this one
		if status == domain.StatusPublished {
			err := tx.Model(&domain.ContentVersion{}).
				Where("entity_type = ? AND entity_id = ? AND status = ? AND id != ?",
					version.EntityType, version.EntityID, domain.StatusPublished, version.ID).
				Update("status", domain.StatusArchived).Error
			if err != nil {
				return err
			}
		}

		if err := tx.Model(&version).Update("status", status).Error; err != nil {
			return err
		}

		updated = version
		updated.Status = status
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrVersionNotFound) || errors.Is(err, common.ErrInvalidStatus) {
			return nil, err
		}
		return nil, storageError(err)
	}
	return &updated, nil
}

// isDuplicateKey detects a MySQL unique constraint violation (error 1062)
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysqldriver.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

func storageError(err error) error {
	return fmt.Errorf("%w: %v", common.ErrStorageUnavailable, err)
}
