package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nextmonthlab/progress-versioning/internal/common"
	"github.com/nextmonthlab/progress-versioning/internal/domain"
	"github.com/nextmonthlab/progress-versioning/internal/middleware"
	"github.com/nextmonthlab/progress-versioning/internal/service"
)

// VersionHandler handles version engine API endpoints
type VersionHandler struct {
	service service.VersionService
}

// NewVersionHandler creates a new VersionHandler
func NewVersionHandler(svc service.VersionService) *VersionHandler {
	return &VersionHandler{service: svc}
}

func provenanceFrom(c *gin.Context) service.Provenance {
	return service.Provenance{
		IPAddress: c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	}
}

func parseEntityRef(c *gin.Context) (domain.EntityRef, error) {
	entityID, err := strconv.ParseInt(c.Param("entityId"), 10, 64)
	if err != nil {
		return domain.EntityRef{}, common.ErrInvalidInput
	}
	return domain.EntityRef{
		EntityType: domain.EntityType(c.Param("entityType")),
		EntityID:   entityID,
	}, nil
}

func parseVersionID(c *gin.Context, param string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(param), 10, 64)
	if err != nil {
		return 0, common.ErrInvalidInput
	}
	return id, nil
}

// CreateVersion handles POST /api/v1/versions
func (h *VersionHandler) CreateVersion(c *gin.Context) {
	var req domain.CreateVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	version, err := h.service.CreateVersion(service.CreateVersionInput{
		Ref: domain.EntityRef{
			EntityType: domain.EntityType(req.EntityType),
			EntityID:   req.EntityID,
		},
		Snapshot:          req.Snapshot,
		CreatedBy:         middleware.GetUserID(c),
		ChangeDescription: req.ChangeDescription,
		Provenance:        provenanceFrom(c),
	})
	if err != nil {
		common.FailFromError(c, err)
		return
	}

	common.CreatedResponse(c, version)
}

// GetVersion handles GET /api/v1/versions/:versionId
func (h *VersionHandler) GetVersion(c *gin.Context) {
	versionID, err := parseVersionID(c, "versionId")
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid version id", nil)
		return
	}

	version, err := h.service.GetVersion(versionID)
	if err != nil {
		common.FailFromError(c, err)
		return
	}

	common.SuccessResponse(c, version, nil)
}

// RestoreVersion handles POST /api/v1/versions/:versionId/restore
func (h *VersionHandler) RestoreVersion(c *gin.Context) {
	versionID, err := parseVersionID(c, "versionId")
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid version id", nil)
		return
	}

	var req domain.RestoreVersionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			common.ErrorResponse(c, http.StatusBadRequest, "invalid request body", err)
			return
		}
	}

	restored, err := h.service.RestoreVersion(versionID, middleware.GetUserID(c), req.Reason, provenanceFrom(c))
	if err != nil {
		common.FailFromError(c, err)
		return
	}

	common.SuccessResponse(c, restored, nil)
}

// UpdateVersionStatus handles PATCH /api/v1/versions/:versionId/status
func (h *VersionHandler) UpdateVersionStatus(c *gin.Context) {
	versionID, err := parseVersionID(c, "versionId")
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid version id", nil)
		return
	}

	var req domain.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	updated, err := h.service.UpdateVersionStatus(
		versionID,
		domain.VersionStatus(req.Status),
		middleware.GetUserID(c),
		req.Reason,
		provenanceFrom(c),
	)
	if err != nil {
		common.FailFromError(c, err)
		return
	}

	common.SuccessResponse(c, updated, nil)
}

// CompareVersions handles GET /api/v1/versions/:versionId/compare/:otherId
func (h *VersionHandler) CompareVersions(c *gin.Context) {
	versionID1, err := parseVersionID(c, "versionId")
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid version id", nil)
		return
	}
	versionID2, err := parseVersionID(c, "otherId")
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid version id", nil)
		return
	}

	comparison, err := h.service.CompareVersions(versionID1, versionID2)
	if err != nil {
		common.FailFromError(c, err)
		return
	}

	common.SuccessResponse(c, comparison, nil)
}

// GetHistory handles GET /api/v1/entities/:entityType/:entityId/versions
func (h *VersionHandler) GetHistory(c *gin.Context) {
	ref, err := parseEntityRef(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid entity id", nil)
		return
	}

	history, err := h.service.GetHistory(ref)
	if err != nil {
		common.FailFromError(c, err)
		return
	}

	common.SuccessResponse(c, history, &common.Meta{
		EntityType: string(ref.EntityType),
		EntityID:   ref.EntityID,
		Total:      int64(len(history)),
	})
}

// GetLatestVersion handles GET /api/v1/entities/:entityType/:entityId/versions/latest
func (h *VersionHandler) GetLatestVersion(c *gin.Context) {
	ref, err := parseEntityRef(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid entity id", nil)
		return
	}

	latest, err := h.service.GetLatestVersion(ref)
	if err != nil {
		common.FailFromError(c, err)
		return
	}

	common.SuccessResponse(c, latest, nil)
}

// GetActivityLog handles GET /api/v1/entities/:entityType/:entityId/activity
func (h *VersionHandler) GetActivityLog(c *gin.Context) {
	ref, err := parseEntityRef(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid entity id", nil)
		return
	}

	entries, err := h.service.GetActivityLog(ref)
	if err != nil {
		common.FailFromError(c, err)
		return
	}

	common.SuccessResponse(c, entries, &common.Meta{
		EntityType: string(ref.EntityType),
		EntityID:   ref.EntityID,
		Total:      int64(len(entries)),
	})
}
