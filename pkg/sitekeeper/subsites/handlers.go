package subsites

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sitekeeper/sitekeeper/pkg/sitekeeper/auth"
	"github.com/sitekeeper/sitekeeper/pkg/sitekeeper/models"
	"github.com/sitekeeper/sitekeeper/pkg/sitekeeper/permissions"
	"gorm.io/gorm"
)

var slugRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*[a-z0-9]$|^[a-z0-9]$`)

// Handler handles subsite requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new subsites handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// CreateSubsiteRequest represents the request to create a subsite
type CreateSubsiteRequest struct {
	Name string `json:"name" binding:"required,min=1,max=100"`
	Slug string `json:"slug" binding:"required,min=1,max=50"`
}

// UpdateSubsiteRequest represents the request to update a subsite
type UpdateSubsiteRequest struct {
	Name string `json:"name" binding:"omitempty,min=1,max=100"`
}

// SubsiteResponse represents a subsite in API responses
type SubsiteResponse struct {
	ID         uint   `json:"id"`
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	GroupCount int    `json:"group_count,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// GrantResponse represents a subsite grant in API responses
type GrantResponse struct {
	ID         uint   `json:"id"`
	UserID     uint   `json:"user_id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Permission string `json:"permission"`
	CreatedAt  string `json:"created_at"`
}

// AddGrantRequest represents the request to grant a permission in a subsite
type AddGrantRequest struct {
	Email      string `json:"email" binding:"required,email"`
	Permission string `json:"permission" binding:"required"`
}

// ValidationError represents a validation error
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// validateSlug checks if a subsite slug is valid and available
func (h *Handler) validateSlug(slug string, excludeID uint) error {
	if slug == "" {
		return &ValidationError{"Slug is required"}
	}

	// Check format (lowercase alphanumeric with hyphens, no leading/trailing hyphens)
	if !slugRegex.MatchString(slug) {
		return &ValidationError{"Slug must contain only lowercase letters, numbers, and hyphens (no leading/trailing hyphens)"}
	}

	// Check reserved slugs
	reserved := []string{"api", "health", "admin", "login", "logout", "register", "auth", "global"}
	for _, r := range reserved {
		if strings.EqualFold(slug, r) {
			return &ValidationError{"This slug is reserved"}
		}
	}

	// Check uniqueness
	var existing models.Subsite
	query := h.db.Where("slug = ?", slug)
	if excludeID > 0 {
		query = query.Where("id != ?", excludeID)
	}
	if err := query.First(&existing).Error; err == nil {
		return &ValidationError{"This slug is already taken"}
	}

	return nil
}

func subsiteResponse(subsite *models.Subsite, groupCount int) SubsiteResponse {
	return SubsiteResponse{
		ID:         subsite.ID,
		Name:       subsite.Name,
		Slug:       subsite.Slug,
		GroupCount: groupCount,
		CreatedAt:  subsite.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// List returns all subsites
// @Summary List subsites
// @Description Get all subsites of the installation
// @Tags subsites
// @Produce json
// @Success 200 {array} SubsiteResponse
// @Security BearerAuth
// @Router /subsites [get]
func (h *Handler) List(c *gin.Context) {
	var all []models.Subsite
	if err := h.db.Order("id").Find(&all).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch subsites"})
		return
	}

	responses := make([]SubsiteResponse, len(all))
	for i := range all {
		var groupCount int64
		h.db.Model(&models.GroupSubsite{}).Where("subsite_id = ?", all[i].ID).Count(&groupCount)
		responses[i] = subsiteResponse(&all[i], int(groupCount))
	}

	c.JSON(http.StatusOK, responses)
}

// Create creates a new subsite (system admin only)
// @Summary Create a subsite
// @Description Create a new subsite (requires system admin)
// @Tags subsites
// @Accept json
// @Produce json
// @Param request body CreateSubsiteRequest true "Subsite details"
// @Success 201 {object} SubsiteResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 403 {object} map[string]string "Admin access required"
// @Security BearerAuth
// @Router /subsites [post]
func (h *Handler) Create(c *gin.Context) {
	if !auth.IsSystemAdmin(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
		return
	}

	var req CreateSubsiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	slug := strings.ToLower(strings.TrimSpace(req.Slug))
	if err := h.validateSlug(slug, 0); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	subsite := models.Subsite{
		Name: strings.TrimSpace(req.Name),
		Slug: slug,
	}
	if err := h.db.Create(&subsite).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create subsite"})
		return
	}

	c.JSON(http.StatusCreated, subsiteResponse(&subsite, 0))
}

// Get returns a specific subsite
// @Summary Get a subsite
// @Description Get details of a specific subsite
// @Tags subsites
// @Produce json
// @Param id path int true "Subsite ID"
// @Success 200 {object} SubsiteResponse
// @Failure 404 {object} map[string]string "Subsite not found"
// @Security BearerAuth
// @Router /subsites/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	subsiteID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid subsite ID"})
		return
	}

	var subsite models.Subsite
	if err := h.db.First(&subsite, subsiteID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Subsite not found"})
		return
	}

	var groupCount int64
	h.db.Model(&models.GroupSubsite{}).Where("subsite_id = ?", subsite.ID).Count(&groupCount)

	c.JSON(http.StatusOK, subsiteResponse(&subsite, int(groupCount)))
}

// Update updates a subsite (system admin only)
// @Summary Update a subsite
// @Description Update a subsite's name (requires system admin)
// @Tags subsites
// @Accept json
// @Produce json
// @Param id path int true "Subsite ID"
// @Param request body UpdateSubsiteRequest true "Updated subsite details"
// @Success 200 {object} SubsiteResponse
// @Failure 403 {object} map[string]string "Admin access required"
// @Security BearerAuth
// @Router /subsites/{id} [put]
func (h *Handler) Update(c *gin.Context) {
	if !auth.IsSystemAdmin(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
		return
	}

	subsiteID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid subsite ID"})
		return
	}

	var req UpdateSubsiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var subsite models.Subsite
	if err := h.db.First(&subsite, subsiteID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Subsite not found"})
		return
	}

	if req.Name != "" {
		subsite.Name = strings.TrimSpace(req.Name)
	}

	if err := h.db.Save(&subsite).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update subsite"})
		return
	}

	var groupCount int64
	h.db.Model(&models.GroupSubsite{}).Where("subsite_id = ?", subsite.ID).Count(&groupCount)

	c.JSON(http.StatusOK, subsiteResponse(&subsite, int(groupCount)))
}

// Delete deletes a subsite and everything scoped to it (system admin only)
// @Summary Delete a subsite
// @Description Delete a subsite, its group links, and its grants (requires system admin)
// @Tags subsites
// @Produce json
// @Param id path int true "Subsite ID"
// @Success 200 {object} map[string]string "Subsite deleted"
// @Failure 403 {object} map[string]string "Admin access required"
// @Security BearerAuth
// @Router /subsites/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	if !auth.IsSystemAdmin(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
		return
	}

	subsiteID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid subsite ID"})
		return
	}

	var subsite models.Subsite
	if err := h.db.First(&subsite, subsiteID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Subsite not found"})
		return
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("subsite_id = ?", subsite.ID).Delete(&models.GroupSubsite{}).Error; err != nil {
			return err
		}
		if err := tx.Where("subsite_id = ?", subsite.ID).Delete(&models.SubsiteGrant{}).Error; err != nil {
			return err
		}
		return tx.Delete(&subsite).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete subsite"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Subsite deleted"})
}

// ListGrants returns the permission grants within a subsite
// @Summary List subsite grants
// @Description Get the permission grants within a subsite
// @Tags subsites
// @Produce json
// @Param id path int true "Subsite ID"
// @Success 200 {array} GrantResponse
// @Security BearerAuth
// @Router /subsites/{id}/grants [get]
func (h *Handler) ListGrants(c *gin.Context) {
	subsiteID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid subsite ID"})
		return
	}

	if err := h.db.First(&models.Subsite{}, subsiteID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Subsite not found"})
		return
	}

	var grants []models.SubsiteGrant
	if err := h.db.Preload("User").Where("subsite_id = ?", subsiteID).Find(&grants).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch grants"})
		return
	}

	responses := make([]GrantResponse, len(grants))
	for i, grant := range grants {
		responses[i] = GrantResponse{
			ID:         grant.ID,
			UserID:     grant.UserID,
			Email:      grant.User.Email,
			Name:       grant.User.Name,
			Permission: grant.Permission,
			CreatedAt:  grant.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
	}

	c.JSON(http.StatusOK, responses)
}

// AddGrant grants a permission to a user within a subsite (system admin only)
// @Summary Grant a permission
// @Description Grant a registered permission to a user within a subsite (requires system admin)
// @Tags subsites
// @Accept json
// @Produce json
// @Param id path int true "Subsite ID"
// @Param request body AddGrantRequest true "Grant details"
// @Success 201 {object} GrantResponse
// @Failure 400 {object} map[string]string "Unknown permission"
// @Failure 409 {object} map[string]string "Already granted"
// @Security BearerAuth
// @Router /subsites/{id}/grants [post]
func (h *Handler) AddGrant(c *gin.Context) {
	if !auth.IsSystemAdmin(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
		return
	}

	subsiteID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid subsite ID"})
		return
	}

	if err := h.db.First(&models.Subsite{}, subsiteID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Subsite not found"})
		return
	}

	var req AddGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !permissions.Known(req.Permission) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown permission"})
		return
	}

	var user models.User
	if err := h.db.Where("email = ?", req.Email).First(&user).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	var existing models.SubsiteGrant
	if err := h.db.Where("user_id = ? AND subsite_id = ? AND permission = ?",
		user.ID, subsiteID, req.Permission).First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Already granted"})
		return
	}

	grant := models.SubsiteGrant{
		UserID:     user.ID,
		SubsiteID:  uint(subsiteID),
		Permission: req.Permission,
	}
	if err := h.db.Create(&grant).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create grant"})
		return
	}

	c.JSON(http.StatusCreated, GrantResponse{
		ID:         grant.ID,
		UserID:     user.ID,
		Email:      user.Email,
		Name:       user.Name,
		Permission: grant.Permission,
		CreatedAt:  grant.CreatedAt.Format("2006-01-02T15:04:05Z"),
	})
}

// RemoveGrant revokes a grant (system admin only)
// @Summary Revoke a grant
// @Description Revoke a permission grant within a subsite (requires system admin)
// @Tags subsites
// @Produce json
// @Param id path int true "Subsite ID"
// @Param grantID path int true "Grant ID"
// @Success 200 {object} map[string]string "Grant revoked"
// @Security BearerAuth
// @Router /subsites/{id}/grants/{grantID} [delete]
func (h *Handler) RemoveGrant(c *gin.Context) {
	if !auth.IsSystemAdmin(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
		return
	}

	subsiteID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid subsite ID"})
		return
	}
	grantID, err := strconv.ParseUint(c.Param("grantID"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid grant ID"})
		return
	}

	var grant models.SubsiteGrant
	if err := h.db.Where("id = ? AND subsite_id = ?", grantID, subsiteID).First(&grant).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Grant not found"})
		return
	}

	if err := h.db.Delete(&grant).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to revoke grant"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Grant revoked"})
}

// RegisterRoutes registers subsite routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/:id", h.Get)
	rg.PUT("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)
	rg.GET("/:id/grants", h.ListGrants)
	rg.POST("/:id/grants", h.AddGrant)
	rg.DELETE("/:id/grants/:grantID", h.RemoveGrant)
}
