package groups

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sitekeeper/sitekeeper/pkg/sitekeeper/access"
	"github.com/sitekeeper/sitekeeper/pkg/sitekeeper/auth"
	"github.com/sitekeeper/sitekeeper/pkg/sitekeeper/models"
	"gorm.io/gorm"
)

// Handler handles security-group requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new groups handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// CreateGroupRequest represents the request to create a security group
type CreateGroupRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	// AccessAllSubsites defaults to true when omitted. Outside any subsite
	// context the server forces it to true regardless of this value.
	AccessAllSubsites *bool `json:"access_all_subsites"`
}

// UpdateGroupRequest represents the request to update a security group
type UpdateGroupRequest struct {
	Name              string `json:"name"`
	Description       string `json:"description"`
	AccessAllSubsites *bool  `json:"access_all_subsites"`
}

// GroupResponse represents a security group in API responses
type GroupResponse struct {
	ID                uint   `json:"id"`
	Name              string `json:"name"`
	Description       string `json:"description"`
	AccessAllSubsites bool   `json:"access_all_subsites"`
	SubsiteIDs        []uint `json:"subsite_ids"`
}

func groupResponse(group *models.SecurityGroup) GroupResponse {
	return GroupResponse{
		ID:                group.ID,
		Name:              group.Name,
		Description:       group.Description,
		AccessAllSubsites: group.AccessAllSubsites,
		SubsiteIDs:        group.SubsiteIDs(),
	}
}

// canEdit applies the edit rule: system admins may edit any group, everyone
// else needs an administered subsite the group is explicitly linked to.
func (h *Handler) canEdit(c *gin.Context, group *models.SecurityGroup) bool {
	if auth.IsSystemAdmin(c) {
		return true
	}
	userID, ok := auth.GetUserID(c)
	if !ok {
		return false
	}
	return access.CanEditGroup(h.db, userID, group)
}

// List returns the security groups visible in the request's subsite context
// @Summary List security groups
// @Description Get the security groups visible in the active subsite (X-Subsite-ID header)
// @Tags groups
// @Produce json
// @Success 200 {array} GroupResponse
// @Security BearerAuth
// @Router /groups [get]
func (h *Handler) List(c *gin.Context) {
	// The subsite filter plugin scopes this query through the request context.
	var groups []models.SecurityGroup
	if err := h.db.WithContext(c.Request.Context()).
		Preload("Subsites").Find(&groups).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch groups"})
		return
	}

	responses := make([]GroupResponse, len(groups))
	for i := range groups {
		responses[i] = groupResponse(&groups[i])
	}

	c.JSON(http.StatusOK, responses)
}

// Create creates a new security group
// @Summary Create a security group
// @Description Create a security group; created inside a subsite context it is linked to that subsite
// @Tags groups
// @Accept json
// @Produce json
// @Param request body CreateGroupRequest true "Group details"
// @Success 201 {object} GroupResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Security BearerAuth
// @Router /groups [post]
func (h *Handler) Create(c *gin.Context) {
	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group := models.SecurityGroup{
		Name:              req.Name,
		Description:       req.Description,
		AccessAllSubsites: true,
	}
	if req.AccessAllSubsites != nil {
		group.AccessAllSubsites = *req.AccessAllSubsites
	}

	// The lifecycle hooks read the subsite context: created under a subsite,
	// the group is linked to it after the insert.
	if err := h.db.WithContext(c.Request.Context()).Create(&group).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create group"})
		return
	}

	if err := h.db.Preload("Subsites").First(&group, group.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch group"})
		return
	}

	c.JSON(http.StatusCreated, groupResponse(&group))
}

// Get returns a specific security group
// @Summary Get a security group
// @Description Get a security group by ID; primary-key lookups are not subsite-filtered
// @Tags groups
// @Produce json
// @Param id path int true "Group ID"
// @Success 200 {object} GroupResponse
// @Failure 404 {object} map[string]string "Group not found"
// @Security BearerAuth
// @Router /groups/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	groupID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return
	}

	var group models.SecurityGroup
	if err := h.db.WithContext(c.Request.Context()).
		Preload("Subsites").First(&group, groupID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}

	c.JSON(http.StatusOK, groupResponse(&group))
}

// Update updates a security group
// @Summary Update a security group
// @Description Update a security group (requires the manage-group-subsites grant on a linked subsite, or system admin)
// @Tags groups
// @Accept json
// @Produce json
// @Param id path int true "Group ID"
// @Param request body UpdateGroupRequest true "Updated group details"
// @Success 200 {object} GroupResponse
// @Failure 403 {object} map[string]string "Edit permission required"
// @Failure 404 {object} map[string]string "Group not found"
// @Security BearerAuth
// @Router /groups/{id} [put]
func (h *Handler) Update(c *gin.Context) {
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

	var req UpdateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Name != "" {
		group.Name = req.Name
	}
	if req.Description != "" {
		group.Description = req.Description
	}
	if req.AccessAllSubsites != nil {
		group.AccessAllSubsites = *req.AccessAllSubsites
	}

	if err := h.db.Save(&group).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update group"})
		return
	}

	if err := h.db.Preload("Subsites").First(&group, group.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch group"})
		return
	}

	c.JSON(http.StatusOK, groupResponse(&group))
}

// Delete deletes a security group and its subsite links
// @Summary Delete a security group
// @Description Delete a security group (requires the manage-group-subsites grant on a linked subsite, or system admin)
// @Tags groups
// @Produce json
// @Param id path int true "Group ID"
// @Success 200 {object} map[string]string "Group deleted"
// @Failure 403 {object} map[string]string "Edit permission required"
// @Security BearerAuth
// @Router /groups/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
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

	// Deleting the loaded group lets the model hook remove its subsite links.
	if err := h.db.Delete(&group).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete group"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Group deleted"})
}

// RegisterRoutes registers security-group routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/:id", h.Get)
	rg.PUT("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)
}
