package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// EntityType identifies the kind of content being versioned.
// The engine never interprets it beyond using it as a partition key.
type EntityType string

const (
	EntityPage      EntityType = "page"
	EntityTemplate  EntityType = "template"
	EntityComponent EntityType = "component"
	EntitySection   EntityType = "section"
	EntityMedia     EntityType = "media"
	EntityForm      EntityType = "form"
)

// Valid reports whether the entity type is one of the supported kinds
func (t EntityType) Valid() bool {
	switch t {
	case EntityPage, EntityTemplate, EntityComponent, EntitySection, EntityMedia, EntityForm:
		return true
	}
	return false
}

// VersionStatus lifecycle state of a content version
type VersionStatus string

const (
	StatusDraft     VersionStatus = "draft"
	StatusPublished VersionStatus = "published"
	StatusArchived  VersionStatus = "archived"
)

// Valid reports whether the status is one of the allowed values
func (s VersionStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusArchived:
		return true
	}
	return false
}

// ChangeType classifies why a version exists
type ChangeType string

const (
	ChangeCreate  ChangeType = "create"
	ChangeUpdate  ChangeType = "update"
	ChangeLayout  ChangeType = "layout"
	ChangeStyle   ChangeType = "style"
	ChangeSEO     ChangeType = "seo"
	ChangeRestore ChangeType = "restore"
)

// JSONMap is a structured JSON document stored in a MySQL json column
type JSONMap map[string]interface{}

// Value implements driver.Valuer
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for JSONMap: %T", value)
	}
	if len(data) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(data, m)
}

// Snapshot is the opaque full content state of an entity at one point in time
type Snapshot = JSONMap

// Diff is a sparse structural delta between two snapshots
type Diff = JSONMap

// ContentVersion one recorded version of a versionable entity.
// version_number is strictly increasing per (entity_type, entity_id);
// the unique index closes the allocate/insert race between concurrent writers.
type ContentVersion struct {
	ID                uint64        `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	EntityType        EntityType    `gorm:"column:entity_type;type:varchar(20);uniqueIndex:uq_entity_version,priority:1" json:"entity_type"`
	EntityID          int64         `gorm:"column:entity_id;uniqueIndex:uq_entity_version,priority:2" json:"entity_id"`
	VersionNumber     int           `gorm:"column:version_number;uniqueIndex:uq_entity_version,priority:3" json:"version_number"`
	CreatedBy         int64         `gorm:"column:created_by" json:"created_by"`
	Status            VersionStatus `gorm:"column:status;type:varchar(20);index" json:"status"`
	ChangeType        ChangeType    `gorm:"column:change_type;type:varchar(20)" json:"change_type"`
	ChangeDescription string        `gorm:"column:change_description;type:varchar(500)" json:"change_description,omitempty"`
	Snapshot          Snapshot      `gorm:"column:snapshot;type:json" json:"snapshot"`
	Diff              Diff          `gorm:"column:diff;type:json" json:"diff,omitempty"`
	CreatedAt         time.Time     `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (ContentVersion) TableName() string { return "content_versions" }

// EntityRef returns the (entityType, entityId) pair this version belongs to
func (v *ContentVersion) EntityRef() EntityRef {
	return EntityRef{EntityType: v.EntityType, EntityID: v.EntityID}
}

// EntityRef identifies what is being versioned
type EntityRef struct {
	EntityType EntityType `json:"entity_type"`
	EntityID   int64      `json:"entity_id"`
}

// ChangeLog append-only audit record of every mutating versioning action
type ChangeLog struct {
	ID         uint64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID     int64      `gorm:"column:user_id;index" json:"user_id"`
	Action     string     `gorm:"column:action;type:varchar(40);index" json:"action"`
	EntityType EntityType `gorm:"column:entity_type;type:varchar(20);index:idx_changelog_entity,priority:1" json:"entity_type"`
	EntityID   int64      `gorm:"column:entity_id;index:idx_changelog_entity,priority:2" json:"entity_id"`
	VersionID  uint64     `gorm:"column:version_id" json:"version_id"`
	Details    JSONMap    `gorm:"column:details;type:json" json:"details,omitempty"`
	IPAddress  string     `gorm:"column:ip_address;type:varchar(45)" json:"ip_address,omitempty"`
	UserAgent  string     `gorm:"column:user_agent;type:varchar(255)" json:"user_agent,omitempty"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (ChangeLog) TableName() string { return "change_logs" }

// Audit log action tags
const (
	ActionCreateVersion       = "create_version"
	ActionRestoreVersion      = "restore_version"
	ActionUpdateVersionStatus = "update_version_status"
)

// VersionSummary history list item without the full snapshot payload
type VersionSummary struct {
	ID                uint64        `json:"id"`
	VersionNumber     int           `json:"version_number"`
	Status            VersionStatus `json:"status"`
	ChangeType        ChangeType    `json:"change_type"`
	ChangeDescription string        `json:"change_description,omitempty"`
	CreatedBy         int64         `json:"created_by"`
	CreatedAt         time.Time     `json:"created_at"`
	Title             string        `json:"title"`
	VersionLabel      string        `json:"version_label"`
}

// ToSummary builds a history list item, extracting a display title from
// page-like snapshots
func (v *ContentVersion) ToSummary() VersionSummary {
	summary := VersionSummary{
		ID:                v.ID,
		VersionNumber:     v.VersionNumber,
		Status:            v.Status,
		ChangeType:        v.ChangeType,
		ChangeDescription: v.ChangeDescription,
		CreatedBy:         v.CreatedBy,
		CreatedAt:         v.CreatedAt,
		Title:             "Unknown",
		VersionLabel:      fmt.Sprintf("v%d.0", v.VersionNumber),
	}

	if v.EntityType == EntityPage && v.Snapshot != nil {
		if name, ok := v.Snapshot["name"].(string); ok && name != "" {
			summary.Title = name
		} else {
			summary.Title = "Untitled Page"
		}
	}

	return summary
}

// VersionRef compact reference used in comparison payloads
type VersionRef struct {
	ID            uint64        `json:"id"`
	VersionNumber int           `json:"version_number"`
	Status        VersionStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Ref returns the compact comparison reference for a version
func (v *ContentVersion) Ref() VersionRef {
	return VersionRef{
		ID:            v.ID,
		VersionNumber: v.VersionNumber,
		Status:        v.Status,
		CreatedAt:     v.CreatedAt,
	}
}

// VersionComparison on-demand diff between two arbitrary versions
type VersionComparison struct {
	Version1    VersionRef `json:"version1"`
	Version2    VersionRef `json:"version2"`
	Differences Diff       `json:"differences"`
}

// CreateVersionRequest payload for recording a new version
type CreateVersionRequest struct {
	EntityID          int64    `json:"entity_id" binding:"required"`
	EntityType        string   `json:"entity_type" binding:"required"`
	Snapshot          Snapshot `json:"snapshot" binding:"required"`
	ChangeDescription string   `json:"change_description"`
}

// RestoreVersionRequest payload for restoring a historical version
type RestoreVersionRequest struct {
	Reason string `json:"reason"`
}

// UpdateStatusRequest payload for changing a version's lifecycle status
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason"`
}
