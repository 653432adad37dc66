package service

import (
	"testing"

	"github.com/nextmonthlab/progress-versioning/internal/common"
	"github.com/nextmonthlab/progress-versioning/internal/domain"
	"github.com/nextmonthlab/progress-versioning/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"
)

// --- Mock VersionRepository ---

type mockVersionRepo struct {
	mock.Mock
}

func (m *mockVersionRepo) WithTx(tx *gorm.DB) repository.VersionRepository {
	return m
}

func (m *mockVersionRepo) Create(version *domain.ContentVersion) error {
	return m.Called(version).Error(0)
}

func (m *mockVersionRepo) FindByID(id uint64) (*domain.ContentVersion, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ContentVersion), args.Error(1)
}

func (m *mockVersionRepo) FindLatest(ref domain.EntityRef) (*domain.ContentVersion, error) {
	args := m.Called(ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ContentVersion), args.Error(1)
}

func (m *mockVersionRepo) FindByEntity(ref domain.EntityRef) ([]*domain.ContentVersion, error) {
	args := m.Called(ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ContentVersion), args.Error(1)
}

func (m *mockVersionRepo) NextVersionNumber(ref domain.EntityRef) (int, error) {
	args := m.Called(ref)
	return args.Int(0), args.Error(1)
}

func (m *mockVersionRepo) UpdateStatus(id uint64, status domain.VersionStatus) (*domain.ContentVersion, error) {
	args := m.Called(id, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ContentVersion), args.Error(1)
}

// --- Mock ChangeLogRepository ---

type mockChangeLogRepo struct {
	mock.Mock
}

func (m *mockChangeLogRepo) WithTx(tx *gorm.DB) repository.ChangeLogRepository {
	return m
}

func (m *mockChangeLogRepo) Create(entry *domain.ChangeLog) error {
	return m.Called(entry).Error(0)
}

func (m *mockChangeLogRepo) FindByEntity(ref domain.EntityRef) ([]*domain.ChangeLog, error) {
	args := m.Called(ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ChangeLog), args.Error(1)
}

// fakeTxManager runs the unit of work without a real database
type fakeTxManager struct{}

func (fakeTxManager) Do(fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func newTestService(versions *mockVersionRepo, logs *mockChangeLogRepo) VersionService {
	return NewVersionService(versions, logs, fakeTxManager{})
}

var pageRef = domain.EntityRef{EntityType: domain.EntityPage, EntityID: 42}

// --- CreateVersion ---

func TestCreateVersion_FirstVersion(t *testing.T) {
	versions := new(mockVersionRepo)
	logs := new(mockChangeLogRepo)
	svc := newTestService(versions, logs)

	versions.On("FindLatest", pageRef).Return(nil, common.ErrNoVersionHistory)
	versions.On("NextVersionNumber", pageRef).Return(1, nil)
	versions.On("Create", mock.AnythingOfType("*domain.ContentVersion")).Run(func(args mock.Arguments) {
		args.Get(0).(*domain.ContentVersion).ID = 101
	}).Return(nil)
	logs.On("Create", mock.AnythingOfType("*domain.ChangeLog")).Return(nil)

	created, err := svc.CreateVersion(CreateVersionInput{
		Ref:       pageRef,
		Snapshot:  domain.Snapshot{"title": "A"},
		CreatedBy: 7,
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, created.VersionNumber)
	assert.Equal(t, domain.ChangeCreate, created.ChangeType)
	assert.Equal(t, domain.StatusDraft, created.Status)
	// First version's diff records a from-empty addition
	assert.Equal(t, domain.Diff{"title": map[string]interface{}{"old": nil, "new": "A"}}, created.Diff)
	versions.AssertExpectations(t)
	logs.AssertExpectations(t)
}

func TestCreateVersion_UpdateInheritsLatestStatus(t *testing.T) {
	versions := new(mockVersionRepo)
	logs := new(mockChangeLogRepo)
	svc := newTestService(versions, logs)

	latest := &domain.ContentVersion{
		ID:            101,
		EntityType:    domain.EntityPage,
		EntityID:      42,
		VersionNumber: 1,
		Status:        domain.StatusPublished,
		Snapshot:      domain.Snapshot{"title": "A"},
	}
	versions.On("FindLatest", pageRef).Return(latest, nil)
	versions.On("NextVersionNumber", pageRef).Return(2, nil)
	versions.On("Create", mock.AnythingOfType("*domain.ContentVersion")).Return(nil)
	logs.On("Create", mock.AnythingOfType("*domain.ChangeLog")).Return(nil)

	created, err := svc.CreateVersion(CreateVersionInput{
		Ref:       pageRef,
		Snapshot:  domain.Snapshot{"title": "B"},
		CreatedBy: 7,
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, created.VersionNumber)
	assert.Equal(t, domain.ChangeUpdate, created.ChangeType)
	// Continued edits to a published entity stay published
	assert.Equal(t, domain.StatusPublished, created.Status)
	assert.Equal(t, domain.Diff{"title": map[string]interface{}{"old": "A", "new": "B"}}, created.Diff)
}

func TestCreateVersion_AlwaysDraftPolicy(t *testing.T) {
	versions := new(mockVersionRepo)
	logs := new(mockChangeLogRepo)
	svc := NewVersionServiceWithPolicy(versions, logs, fakeTxManager{}, AlwaysDraft)

	latest := &domain.ContentVersion{
		VersionNumber: 1,
		Status:        domain.StatusPublished,
		Snapshot:      domain.Snapshot{"title": "A"},
	}
	versions.On("FindLatest", pageRef).Return(latest, nil)
	versions.On("NextVersionNumber", pageRef).Return(2, nil)
	versions.On("Create", mock.AnythingOfType("*domain.ContentVersion")).Return(nil)
	logs.On("Create", mock.AnythingOfType("*domain.ChangeLog")).Return(nil)

	created, err := svc.CreateVersion(CreateVersionInput{
		Ref:       pageRef,
		Snapshot:  domain.Snapshot{"title": "B"},
		CreatedBy: 7,
	})

	assert.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, created.Status)
}

func TestCreateVersion_Unauthenticated(t *testing.T) {
	versions := new(mockVersionRepo)
	logs := new(mockChangeLogRepo)
	svc := newTestService(versions, logs)

	_, err := svc.CreateVersion(CreateVersionInput{
		Ref:      pageRef,
		Snapshot: domain.Snapshot{"title": "A"},
	})

	assert.ErrorIs(t, err, common.ErrUnauthorized)
	versions.AssertNotCalled(t, "Create", mock.Anything)
}

func TestCreateVersion_InvalidEntityType(t *testing.T) {
	versions := new(mockVersionRepo)
	logs := new(mockChangeLogRepo)
	svc := newTestService(versions, logs)

	_, err := svc.CreateVersion(CreateVersionInput{
		Ref:       domain.EntityRef{EntityType: "widget", EntityID: 1},
		Snapshot:  domain.Snapshot{"title": "A"},
		CreatedBy: 7,
	})

	assert.ErrorIs(t, err, common.ErrInvalidEntityType)
}

func TestCreateVersion_MissingSnapshot(t *testing.T) {
	versions := new(mockVersionRepo)
	logs := new(mockChangeLogRepo)
	svc := newTestService(versions, logs)

	_, err := svc.CreateVersion(CreateVersionInput{
		Ref:       pageRef,
		CreatedBy: 7,
	})

	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestCreateVersion_RetriesOnVersionConflict(t *testing.T) {
	versions := new(mockVersionRepo)
	logs := new(mockChangeLogRepo)
	svc := newTestService(versions, logs)

	latest := &domain.ContentVersion{
		VersionNumber: 2,
		Status:        domain.StatusDraft,
		Snapshot:      domain.Snapshot{"title": "A"},
	}
	versions.On("FindLatest", pageRef).Return(latest, nil)
	// Another writer claims version 3 first; the retry refetches and gets 4
	versions.On("NextVersionNumber", pageRef).Return(3, nil).Once()
	versions.On("NextVersionNumber", pageRef).Return(4, nil).Once()
	versions.On("Create", mock.AnythingOfType("*domain.ContentVersion")).Return(common.ErrVersionConflict).Once()
	versions.On("Create", mock.AnythingOfType("*domain.ContentVersion")).Return(nil).Once()
	logs.On("Create", mock.AnythingOfType("*domain.ChangeLog")).Return(nil)

	created, err := svc.CreateVersion(CreateVersionInput{
		Ref:       pageRef,
		Snapshot:  domain.Snapshot{"title": "B"},
		CreatedBy: 7,
	})

	assert.NoError(t, err)
	assert.Equal(t, 4, created.VersionNumber)
	versions.AssertExpectations(t)
}

func TestCreateVersion_GivesUpAfterRepeatedConflicts(t *testing.T) {
	versions := new(mockVersionRepo)
	logs := new(mockChangeLogRepo)
	svc := newTestService(versions, logs)

	versions.On("FindLatest", pageRef).Return(nil, common.ErrNoVersionHistory)
	versions.On("NextVersionNumber", pageRef).Return(1, nil)
	versions.On("Create", mock.AnythingOfType("*domain.ContentVersion")).Return(common.ErrVersionConflict)

	_, err := svc.CreateVersion(CreateVersionInput{
		Ref:       pageRef,
		Snapshot:  domain.Snapshot{"title": "A"},
		CreatedBy: 7,
	})

	assert.ErrorIs(t, err, common.ErrVersionConflict)
	versions.AssertNumberOfCalls(t, "Create", maxVersionRetries)
}

func TestCreateVersion_RecordsOneAuditEntry(t *testing.T) {
	versions := new(mockVersionRepo)
	logs := new(mockChangeLogRepo)
	svc := newTestService(versions, logs)

	versions.On("FindLatest", pageRef).Return(nil, common.ErrNoVersionHistory)
	versions.On("NextVersionNumber", pageRef).Return(1, nil)
	versions.On("Create", mock.AnythingOfType("*domain.ContentVersion")).Run(func(args mock.Arguments) {
		args.Get(0).(*domain.ContentVersion).ID = 55
	}).Return(nil)

	var logged *domain.ChangeLog
	logs.On("Create", mock.AnythingOfType("*domain.ChangeLog")).Run(func(args mock.Arguments) {
		logged = args.Get(0).(*domain.ChangeLog)
	}).Return(nil)

	_, err := svc.CreateVersion(CreateVersionInput{
		Ref:        pageRef,
		Snapshot:   domain.Snapshot{"title": "A"},
		CreatedBy:  7,
		Provenance: Provenance{IPAddress: "10.0.0.1", UserAgent: "editor/1.0"},
	})

	assert.NoError(t, err)
	logs.AssertNumberOfCalls(t, "Create", 1)
	assert.Equal(t, domain.ActionCreateVersion, logged.Action)
	assert.Equal(t, uint64(55), logged.VersionID)
	assert.Equal(t, int64(7), logged.UserID)
	assert.Equal(t, domain.EntityPage, logged.EntityType)
	assert.Equal(t, int64(42), logged.EntityID)
	assert.Equal(t, "10.0.0.1", logged.IPAddress)
	assert.Equal(t, "editor/1.0", logged.UserAgent)
}

// --- RestoreVersion ---

func TestRestoreVersion(t *testing.T) {
	versions := new(mockVersionRepo)
	logs := new(mockChangeLogRepo)
	svc := newTestService(versions, logs)

	target := &domain.ContentVersion{
		ID:            101,
		EntityType:    domain.EntityPage,
		EntityID:      42,
		VersionNumber: 1,
		Status:        domain.StatusArchived,
		Snapshot:      domain.Snapshot{"title": "A"},
	}
	latest := &domain.ContentVersion{
		ID:            103,
		EntityType:    domain.EntityPage,
		EntityID:      42,
		VersionNumber: 3,
		Status:        domain.StatusPublished,
		Snapshot:      domain.Snapshot{"title": "B"},
	}

	versions.On("FindByID", uint64(101)).Return(target, nil)
	versions.On("FindLatest", pageRef).Return(latest, nil)
	versions.On("NextVersionNumber", pageRef).Return(4, nil)
	versions.On("Create", mock.AnythingOfType("*domain.ContentVersion")).Run(func(args mock.Arguments) {
		args.Get(0).(*domain.ContentVersion).ID = 104
	}).Return(nil)

	var logged *domain.ChangeLog
	logs.On("Create", mock.AnythingOfType("*domain.ChangeLog")).Run(func(args mock.Arguments) {
		logged = args.Get(0).(*domain.ChangeLog)
	}).Return(nil)

	restored, err := svc.RestoreVersion(101, 7, "", Provenance{})

	assert.NoError(t, err)
	assert.Equal(t, 4, restored.VersionNumber)
	assert.Equal(t, domain.ChangeRestore, restored.ChangeType)
	// Restoring content does not itself change publish state
	assert.Equal(t, domain.StatusPublished, restored.Status)
	assert.Equal(t, target.Snapshot, restored.Snapshot)
	// Diff shows what changes as a result of the restore
	assert.Equal(t, domain.Diff{"title": map[string]interface{}{"old": "B", "new": "A"}}, restored.Diff)
	assert.Equal(t, "Restored from version 1", restored.ChangeDescription)

	assert.Equal(t, domain.ActionRestoreVersion, logged.Action)
	assert.Equal(t, uint64(104), logged.VersionID)
	assert.Equal(t, 1, logged.Details["restored_from_version"])
	assert.Equal(t, 4, logged.Details["new_version_number"])
	assert.Equal(t, "Not specified", logged.Details["reason"])
}

func TestRestoreVersion_TargetNotFound(t *testing.T) {
	versions := new(mockVersionRepo)
	logs := new(mockChangeLogRepo)
	svc := newTestService(versions, logs)

	versions.On("FindByID", uint64(999)).Return(nil, common.ErrVersionNotFound)

	_, err := svc.RestoreVersion(999, 7, "", Provenance{})
	assert.ErrorIs(t, err, common.ErrVersionNotFound)
}

func TestRestoreVersion_Unauthenticated(t *testing.T) {
	versions := new(mockVersionRepo)
	logs := new(mockChangeLogRepo)
	svc := newTestService(versions, logs)

	_, err := svc.RestoreVersion(101, 0, "", Provenance{})
	assert.ErrorIs(t, err, common.ErrUnauthorized)
	versions.AssertNotCalled(t, "FindByID", mock.Anything)
}

// --- UpdateVersionStatus ---

func TestUpdateVersionStatus_Publish(t *testing.T) {
	versions := new(mockVersionRepo)
	logs := new(mockChangeLogRepo)
	svc := newTestService(versions, logs)

	before := &domain.ContentVersion{
		ID:         102,
		EntityType: domain.EntityPage,
		EntityID:   42,
		Status:     domain.StatusDraft,
	}
	after := &domain.ContentVersion{
		ID:         102,
		EntityType: domain.EntityPage,
		EntityID:   42,
		Status:     domain.StatusPublished,
	}

	versions.On("FindByID", uint64(102)).Return(before, nil)
	versions.On("UpdateStatus", uint64(102), domain.StatusPublished).Return(after, nil)

	var logged *domain.ChangeLog
	logs.On("Create", mock.AnythingOfType("*domain.ChangeLog")).Run(func(args mock.Arguments) {
		logged = args.Get(0).(*domain.ChangeLog)
	}).Return(nil)

	updated, err := svc.UpdateVersionStatus(102, domain.StatusPublished, 7, "go live", Provenance{})

	assert.NoError(t, err)
	assert.Equal(t, domain.StatusPublished, updated.Status)
	assert.Equal(t, domain.ActionUpdateVersionStatus, logged.Action)
	assert.Equal(t, "draft", logged.Details["old_status"])
	assert.Equal(t, "published", logged.Details["new_status"])
	assert.Equal(t, "go live", logged.Details["reason"])
}

func TestUpdateVersionStatus_InvalidStatus(t *testing.T) {
	versions := new(mockVersionRepo)
	logs := new(mockChangeLogRepo)
	svc := newTestService(versions, logs)

	_, err := svc.UpdateVersionStatus(102, "live", 7, "", Provenance{})
	assert.ErrorIs(t, err, common.ErrInvalidStatus)
	versions.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything)
}

func TestUpdateVersionStatus_NotFound(t *testing.T) {
	versions := new(mockVersionRepo)
	logs := new(mockChangeLogRepo)
	svc := newTestService(versions, logs)

	versions.On("FindByID", uint64(999)).Return(nil, common.ErrVersionNotFound)

	_, err := svc.UpdateVersionStatus(999, domain.StatusPublished, 7, "", Provenance{})
	assert.ErrorIs(t, err, common.ErrVersionNotFound)
}

// --- CompareVersions ---

func TestCompareVersions(t *testing.T) {
	versions := new(mockVersionRepo)
	logs := new(mockChangeLogRepo)
	svc := newTestService(versions, logs)

	v1 := &domain.ContentVersion{ID: 101, VersionNumber: 1, Status: domain.StatusArchived, Snapshot: domain.Snapshot{"title": "A"}}
	v2 := &domain.ContentVersion{ID: 103, VersionNumber: 3, Status: domain.StatusPublished, Snapshot: domain.Snapshot{"title": "B"}}

	versions.On("FindByID", uint64(101)).Return(v1, nil)
	versions.On("FindByID", uint64(103)).Return(v2, nil)

	got, err := svc.CompareVersions(101, 103)

	assert.NoError(t, err)
	assert.Equal(t, uint64(101), got.Version1.ID)
	assert.Equal(t, uint64(103), got.Version2.ID)
	assert.Equal(t, domain.Diff{"title": map[string]interface{}{"old": "A", "new": "B"}}, got.Differences)
}

func TestCompareVersions_IdenticalContent(t *testing.T) {
	versions := new(mockVersionRepo)
	logs := new(mockChangeLogRepo)
	svc := newTestService(versions, logs)

	v1 := &domain.ContentVersion{ID: 101, Snapshot: domain.Snapshot{"title": "A"}}
	v4 := &domain.ContentVersion{ID: 104, Snapshot: domain.Snapshot{"title": "A"}}

	versions.On("FindByID", uint64(101)).Return(v1, nil)
	versions.On("FindByID", uint64(104)).Return(v4, nil)

	got, err := svc.CompareVersions(101, 104)

	assert.NoError(t, err)
	assert.Empty(t, got.Differences)
}

func TestCompareVersions_MissingVersion(t *testing.T) {
	versions := new(mockVersionRepo)
	logs := new(mockChangeLogRepo)
	svc := newTestService(versions, logs)

	versions.On("FindByID", uint64(101)).Return(&domain.ContentVersion{ID: 101}, nil)
	versions.On("FindByID", uint64(999)).Return(nil, common.ErrVersionNotFound)

	_, err := svc.CompareVersions(101, 999)
	assert.ErrorIs(t, err, common.ErrVersionNotFound)
}

// --- History & activity log ---

func TestGetHistory_EnrichesSummaries(t *testing.T) {
	versions := new(mockVersionRepo)
	logs := new(mockChangeLogRepo)
	svc := newTestService(versions, logs)

	history := []*domain.ContentVersion{
		{ID: 102, EntityType: domain.EntityPage, EntityID: 42, VersionNumber: 2, Snapshot: domain.Snapshot{"name": "About Us"}},
		{ID: 101, EntityType: domain.EntityPage, EntityID: 42, VersionNumber: 1, Snapshot: domain.Snapshot{}},
	}
	versions.On("FindByEntity", pageRef).Return(history, nil)

	summaries, err := svc.GetHistory(pageRef)

	assert.NoError(t, err)
	assert.Len(t, summaries, 2)
	assert.Equal(t, "About Us", summaries[0].Title)
	assert.Equal(t, "v2.0", summaries[0].VersionLabel)
	assert.Equal(t, "Untitled Page", summaries[1].Title)
	assert.Equal(t, "v1.0", summaries[1].VersionLabel)
}

func TestGetActivityLog(t *testing.T) {
	versions := new(mockVersionRepo)
	logs := new(mockChangeLogRepo)
	svc := newTestService(versions, logs)

	entries := []*domain.ChangeLog{
		{ID: 2, Action: domain.ActionRestoreVersion},
		{ID: 1, Action: domain.ActionCreateVersion},
	}
	logs.On("FindByEntity", pageRef).Return(entries, nil)

	got, err := svc.GetActivityLog(pageRef)

	assert.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestGetActivityLog_InvalidEntityType(t *testing.T) {
	versions := new(mockVersionRepo)
	logs := new(mockChangeLogRepo)
	svc := newTestService(versions, logs)

	_, err := svc.GetActivityLog(domain.EntityRef{EntityType: "widget", EntityID: 1})
	assert.ErrorIs(t, err, common.ErrInvalidEntityType)
}
