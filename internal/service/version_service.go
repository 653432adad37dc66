package service

import (
	"errors"
	"fmt"

	"github.com/nextmonthlab/progress-versioning/internal/common"
	"github.com/nextmonthlab/progress-versioning/internal/diff"
	"github.com/nextmonthlab/progress-versioning/internal/domain"
	"github.com/nextmonthlab/progress-versioning/internal/repository"
	"github.com/nextmonthlab/progress-versioning/pkg/logger"
	"gorm.io/gorm"
)

// maxVersionRetries bounds the refetch-and-retry loop when two writers race
// on the same entity's next version number
const maxVersionRetries = 3

// Provenance request metadata recorded with audit entries
type Provenance struct {
	IPAddress string
	UserAgent string
}

// CreateVersionInput parameters for recording a new version
type CreateVersionInput struct {
	Ref               domain.EntityRef
	Snapshot          domain.Snapshot
	CreatedBy         int64
	ChangeDescription string
	Provenance        Provenance
}

// StatusPolicy decides the status of a newly created version given the
// entity's current latest version (nil when this is the first version)
type StatusPolicy func(latest *domain.ContentVersion) domain.VersionStatus

// InheritLatestStatus is the default policy: the first version of an entity
// starts as draft, later versions keep the latest version's status so edits
// to an already-published entity stay published without a re-publish step.
func InheritLatestStatus(latest *domain.ContentVersion) domain.VersionStatus {
	if latest == nil {
		return domain.StatusDraft
	}
	return latest.Status
}

// AlwaysDraft is an alternative policy: every new version starts as draft
// and must be published explicitly.
func AlwaysDraft(*domain.ContentVersion) domain.VersionStatus {
	return domain.StatusDraft
}

// VersionService orchestrates version creation, restore, lifecycle changes,
// comparison and history. It is the only entry point for the HTTP layer.
type VersionService interface {
	CreateVersion(input CreateVersionInput) (*domain.ContentVersion, error)
	RestoreVersion(versionID uint64, requestedBy int64, reason string, prov Provenance) (*domain.ContentVersion, error)
	UpdateVersionStatus(versionID uint64, status domain.VersionStatus, requestedBy int64, reason string, prov Provenance) (*domain.ContentVersion, error)
	CompareVersions(versionID1, versionID2 uint64) (*domain.VersionComparison, error)
	GetVersion(versionID uint64) (*domain.ContentVersion, error)
	GetLatestVersion(ref domain.EntityRef) (*domain.ContentVersion, error)
	GetHistory(ref domain.EntityRef) ([]domain.VersionSummary, error)
	GetActivityLog(ref domain.EntityRef) ([]*domain.ChangeLog, error)
}

type versionService struct {
	versions     repository.VersionRepository
	logs         repository.ChangeLogRepository
	txm          repository.TxManager
	statusPolicy StatusPolicy
}

// NewVersionService creates a VersionService with the default
// inherit-latest-status policy
func NewVersionService(versions repository.VersionRepository, logs repository.ChangeLogRepository, txm repository.TxManager) VersionService {
	return &versionService{
		versions:     versions,
		logs:         logs,
		txm:          txm,
		statusPolicy: InheritLatestStatus,
	}
}

// NewVersionServiceWithPolicy creates a VersionService with a custom
// new-version status policy
func NewVersionServiceWithPolicy(versions repository.VersionRepository, logs repository.ChangeLogRepository, txm repository.TxManager, policy StatusPolicy) VersionService {
	return &versionService{
		versions:     versions,
		logs:         logs,
		txm:          txm,
		statusPolicy: policy,
	}
}

func (s *versionService) CreateVersion(input CreateVersionInput) (*domain.ContentVersion, error) {
	if input.CreatedBy == 0 {
		return nil, common.ErrUnauthorized
	}
	if !input.Ref.EntityType.Valid() {
		return nil, fmt.Errorf("%w: %q", common.ErrInvalidEntityType, input.Ref.EntityType)
	}
	if input.Ref.EntityID <= 0 {
		return nil, fmt.Errorf("%w: entity_id is required", common.ErrInvalidInput)
	}
	if input.Snapshot == nil {
		return nil, fmt.Errorf("%w: snapshot is required", common.ErrInvalidInput)
	}

	var version *domain.ContentVersion
	err := s.retryOnConflict(func() error {
		latest, err := s.versions.FindLatest(input.Ref)
		if err != nil && !errors.Is(err, common.ErrNoVersionHistory) {
			return err
		}

		versionNumber, err := s.versions.NextVersionNumber(input.Ref)
		if err != nil {
			return err
		}

		var prevSnapshot domain.Snapshot
		if latest != nil {
			prevSnapshot = latest.Snapshot
		}

		version = &domain.ContentVersion{
			EntityType:        input.Ref.EntityType,
			EntityID:          input.Ref.EntityID,
			VersionNumber:     versionNumber,
			CreatedBy:         input.CreatedBy,
			Status:            s.statusPolicy(latest),
			ChangeType:        diff.Classify(prevSnapshot, input.Snapshot),
			ChangeDescription: input.ChangeDescription,
			Snapshot:          input.Snapshot,
			Diff:              diff.Compute(prevSnapshot, input.Snapshot),
		}

		return s.txm.Do(func(tx *gorm.DB) error {
			if err := s.versions.WithTx(tx).Create(version); err != nil {
				return err
			}
			return s.logs.WithTx(tx).Create(&domain.ChangeLog{
				UserID:     input.CreatedBy,
				Action:     domain.ActionCreateVersion,
				EntityType: input.Ref.EntityType,
				EntityID:   input.Ref.EntityID,
				VersionID:  version.ID,
				Details: domain.JSONMap{
					"version_number":     version.VersionNumber,
					"change_type":        string(version.ChangeType),
					"change_description": input.ChangeDescription,
				},
				IPAddress: input.Provenance.IPAddress,
				UserAgent: input.Provenance.UserAgent,
			})
		})
	})
	if err != nil {
		return nil, err
	}

	versionsCreated.WithLabelValues(string(version.ChangeType)).Inc()
	logger.GetLogger().Info().
		Str("entity_type", string(version.EntityType)).
		Int64("entity_id", version.EntityID).
		Int("version_number", version.VersionNumber).
		Str("change_type", string(version.ChangeType)).
		Msg("version created")

	return version, nil
}

func (s *versionService) RestoreVersion(versionID uint64, requestedBy int64, reason string, prov Provenance) (*domain.ContentVersion, error) {
	if requestedBy == 0 {
		return nil, common.ErrUnauthorized
	}

	target, err := s.versions.FindByID(versionID)
	if err != nil {
		return nil, err
	}
	ref := target.EntityRef()

	var restored *domain.ContentVersion
	err = s.retryOnConflict(func() error {
		// An entity being restored must already have history
		latest, err := s.versions.FindLatest(ref)
		if err != nil {
			return err
		}

		versionNumber, err := s.versions.NextVersionNumber(ref)
		if err != nil {
			return err
		}

		description := reason
		if description == "" {
			description = fmt.Sprintf("Restored from version %d", target.VersionNumber)
		}

		restored = &domain.ContentVersion{
			EntityType:        ref.EntityType,
			EntityID:          ref.EntityID,
			VersionNumber:     versionNumber,
			CreatedBy:         requestedBy,
			Status:            latest.Status,
			ChangeType:        domain.ChangeRestore,
			ChangeDescription: description,
			Snapshot:          target.Snapshot,
			// The stored diff shows what actually changes as a result of
			// the restore, not the restored version's historical diff
			Diff: diff.Compute(latest.Snapshot, target.Snapshot),
		}

		return s.txm.Do(func(tx *gorm.DB) error {
			if err := s.versions.WithTx(tx).Create(restored); err != nil {
				return err
			}
			return s.logs.WithTx(tx).Create(&domain.ChangeLog{
				UserID:     requestedBy,
				Action:     domain.ActionRestoreVersion,
				EntityType: ref.EntityType,
				EntityID:   ref.EntityID,
				VersionID:  restored.ID,
				Details: domain.JSONMap{
					"restored_from_version": target.VersionNumber,
					"new_version_number":    versionNumber,
					"reason":                orNotSpecified(reason),
				},
				IPAddress: prov.IPAddress,
				UserAgent: prov.UserAgent,
			})
		})
	})
	if err != nil {
		return nil, err
	}

	versionsRestored.Inc()
	logger.GetLogger().Info().
		Str("entity_type", string(ref.EntityType)).
		Int64("entity_id", ref.EntityID).
		Int("restored_from", target.VersionNumber).
		Int("version_number", restored.VersionNumber).
		Msg("version restored")

	return restored, nil
}

func (s *versionService) UpdateVersionStatus(versionID uint64, status domain.VersionStatus, requestedBy int64, reason string, prov Provenance) (*domain.ContentVersion, error) {
	if requestedBy == 0 {
		return nil, common.ErrUnauthorized
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", common.ErrInvalidStatus, status)
	}

	var updated *domain.ContentVersion
	err := s.txm.Do(func(tx *gorm.DB) error {
		before, err := s.versions.WithTx(tx).FindByID(versionID)
		if err != nil {
			return err
		}

		updated, err = s.versions.WithTx(tx).UpdateStatus(versionID, status)
		if err != nil {
			return err
		}

		return s.logs.WithTx(tx).Create(&domain.ChangeLog{
			UserID:     requestedBy,
			Action:     domain.ActionUpdateVersionStatus,
			EntityType: before.EntityType,
			EntityID:   before.EntityID,
			VersionID:  versionID,
			Details: domain.JSONMap{
				"old_status": string(before.Status),
				"new_status": string(status),
				"reason":     orNotSpecified(reason),
			},
			IPAddress: prov.IPAddress,
			UserAgent: prov.UserAgent,
		})
	})
	if err != nil {
		return nil, err
	}

	if status == domain.StatusPublished {
		versionsPublished.Inc()
	}

	return updated, nil
}

func (s *versionService) CompareVersions(versionID1, versionID2 uint64) (*domain.VersionComparison, error) {
	v1, err := s.versions.FindByID(versionID1)
	if err != nil {
		return nil, err
	}
	v2, err := s.versions.FindByID(versionID2)
	if err != nil {
		return nil, err
	}

	// Computed on demand: the stored per-version diff only ever compares
	// adjacent versions
	return &domain.VersionComparison{
		Version1:    v1.Ref(),
		Version2:    v2.Ref(),
		Differences: diff.Compute(v1.Snapshot, v2.Snapshot),
	}, nil
}

func (s *versionService) GetVersion(versionID uint64) (*domain.ContentVersion, error) {
	return s.versions.FindByID(versionID)
}

func (s *versionService) GetLatestVersion(ref domain.EntityRef) (*domain.ContentVersion, error) {
	if !ref.EntityType.Valid() {
		return nil, fmt.Errorf("%w: %q", common.ErrInvalidEntityType, ref.EntityType)
	}
	return s.versions.FindLatest(ref)
}

func (s *versionService) GetHistory(ref domain.EntityRef) ([]domain.VersionSummary, error) {
	if !ref.EntityType.Valid() {
		return nil, fmt.Errorf("%w: %q", common.ErrInvalidEntityType, ref.EntityType)
	}

	versions, err := s.versions.FindByEntity(ref)
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.VersionSummary, len(versions))
	for i, v := range versions {
		summaries[i] = v.ToSummary()
	}
	return summaries, nil
}

func (s *versionService) GetActivityLog(ref domain.EntityRef) ([]*domain.ChangeLog, error) {
	if !ref.EntityType.Valid() {
		return nil, fmt.Errorf("%w: %q", common.ErrInvalidEntityType, ref.EntityType)
	}
	return s.logs.FindByEntity(ref)
}

// retryOnConflict re-runs fn with freshly recomputed state when the unique
// version index rejects a number another writer claimed first
func (s *versionService) retryOnConflict(fn func() error) error {
	var err error
	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		err = fn()
		if !errors.Is(err, common.ErrVersionConflict) {
			return err
		}
		logger.GetLogger().Warn().
			Int("attempt", attempt+1).
			Msg("version number conflict, retrying with refreshed state")
	}
	return err
}

func orNotSpecified(reason string) string {
	if reason == "" {
		return "Not specified"
	}
	return reason
}
