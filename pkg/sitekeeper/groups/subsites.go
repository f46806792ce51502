package groups

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sitekeeper/sitekeeper/pkg/sitekeeper/models"
	"gorm.io/gorm"
)

// SubsiteLinkResponse represents one of a group's subsite links
type SubsiteLinkResponse struct {
	SubsiteID uint   `json:"subsite_id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
}

// SetSubsitesRequest replaces a group's subsite access wholesale: the flag and
// the full set of linked subsite IDs, mirroring the all-subsites/checkbox-list
// form the admin UI presents.
type SetSubsitesRequest struct {
	AccessAllSubsites bool   `json:"access_all_subsites"`
	SubsiteIDs        []uint `json:"subsite_ids"`
}

// ListSubsites returns the subsites a group is explicitly linked to
// @Summary List a group's subsites
// @Description Get the subsites a security group is explicitly linked to
// @Tags groups
// @Produce json
// @Param id path int true "Group ID"
// @Success 200 {array} SubsiteLinkResponse
// @Failure 404 {object} map[string]string "Group not found"
// @Security BearerAuth
// @Router /groups/{id}/subsites [get]
func (h *Handler) ListSubsites(c *gin.Context) {
	groupID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return
	}

	if err := h.db.First(&models.SecurityGroup{}, groupID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}

	var links []models.GroupSubsite
	if err := h.db.Preload("Subsite").Where("group_id = ?", groupID).Find(&links).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch subsites"})
		return
	}

	responses := make([]SubsiteLinkResponse, len(links))
	for i, link := range links {
		responses[i] = SubsiteLinkResponse{
			SubsiteID: link.SubsiteID,
			Name:      link.Subsite.Name,
			Slug:      link.Subsite.Slug,
		}
	}

	c.JSON(http.StatusOK, responses)
}

// SetSubsites replaces a group's subsite access
// @Summary Set a group's subsites
// @Description Replace a security group's global-access flag and linked subsite set
// @Tags groups
// @Accept json
// @Produce json
// @Param id path int true "Group ID"
// @Param request body SetSubsitesRequest true "Subsite access"
// @Success 200 {object} GroupResponse
// @Failure 400 {object} map[string]string "Unknown subsite"
// @Failure 403 {object} map[string]string "Edit permission required"
// @Security BearerAuth
// @Router /groups/{id}/subsites [put]
func (h *Handler) SetSubsites(c *gin.Context) {
	groupID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return
	}

	var group models.SecurityGroup
	if err := h.db.First(&group, groupID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}

	if !h.canEdit(c, &group) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Edit permission required"})
		return
	}

	var req SetSubsitesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Every referenced subsite must exist; 0 is the global sentinel, never a link.
	for _, subsiteID := range req.SubsiteIDs {
		if subsiteID == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Subsite ID 0 cannot be linked"})
			return
		}
		if err := h.db.First(&models.Subsite{}, subsiteID).Error; err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown subsite"})
			return
		}
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_id = ?", group.ID).Delete(&models.GroupSubsite{}).Error; err != nil {
			return err
		}
		for _, subsiteID := range req.SubsiteIDs {
			link := models.GroupSubsite{GroupID: group.ID, SubsiteID: subsiteID}
			if err := tx.Create(&link).Error; err != nil {
				return err
			}
		}
		return tx.Model(&group).Update("access_all_subsites", req.AccessAllSubsites).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update subsites"})
		return
	}

	if err := h.db.Preload("Subsites").First(&group, group.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch group"})
		return
	}

	c.JSON(http.StatusOK, groupResponse(&group))
}

// RegisterSubsiteRoutes registers group subsite-management routes
func (h *Handler) RegisterSubsiteRoutes(rg *gin.RouterGroup) {
	rg.GET("/:id/subsites", h.ListSubsites)
	rg.PUT("/:id/subsites", h.SetSubsites)
}
