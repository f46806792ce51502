package admin

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sitekeeper/sitekeeper/pkg/sitekeeper/auth"
	"github.com/sitekeeper/sitekeeper/pkg/sitekeeper/models"
	"github.com/sitekeeper/sitekeeper/pkg/sitekeeper/permissions"
	"github.com/sitekeeper/sitekeeper/pkg/sitekeeper/scope"
	"gorm.io/gorm"
)

// Handler handles admin requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new admin handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// UserResponse represents user data in admin responses
type UserResponse struct {
	ID         uint   `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	SystemRole string `json:"system_role"`
	CreatedAt  string `json:"created_at"`
	GrantCount int64  `json:"grant_count"`
}

// UpdateUserRequest represents the request to update a user
type UpdateUserRequest struct {
	Name       *string `json:"name"`
	SystemRole *string `json:"system_role"`
}

// GroupSummary represents a security group in the unscoped admin listing
type GroupSummary struct {
	ID                uint   `json:"id"`
	Name              string `json:"name"`
	AccessAllSubsites bool   `json:"access_all_subsites"`
	SubsiteCount      int64  `json:"subsite_count"`
}

// StatsResponse represents system statistics
type StatsResponse struct {
	TotalUsers    int64 `json:"total_users"`
	TotalSubsites int64 `json:"total_subsites"`
	TotalGroups   int64 `json:"total_groups"`
	GlobalGroups  int64 `json:"global_groups"`
	AdminUsers    int64 `json:"admin_users"`
	ActiveAPIKeys int64 `json:"active_api_keys"`
}

func userResponse(db *gorm.DB, user *models.User) UserResponse {
	var grantCount int64
	db.Model(&models.SubsiteGrant{}).Where("user_id = ?", user.ID).Count(&grantCount)

	return UserResponse{
		ID:         user.ID,
		Email:      user.Email,
		Name:       user.Name,
		SystemRole: string(user.SystemRole),
		CreatedAt:  user.CreatedAt.Format("2006-01-02T15:04:05Z"),
		GrantCount: grantCount,
	}
}

// ListUsers returns all users (admin only)
func (h *Handler) ListUsers(c *gin.Context) {
	var users []models.User

	query := h.db.Order("created_at DESC")

	// Optional search by email or name
	if search := c.Query("q"); search != "" {
		query = query.Where("email LIKE ? OR name LIKE ?", "%"+search+"%", "%"+search+"%")
	}

	// Optional filter by role
	if role := c.Query("role"); role != "" {
		query = query.Where("system_role = ?", role)
	}

	if err := query.Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"})
		return
	}

	responses := make([]UserResponse, len(users))
	for i := range users {
		responses[i] = userResponse(h.db, &users[i])
	}

	c.JSON(http.StatusOK, responses)
}

// GetUser returns a single user by ID (admin only)
func (h *Handler) GetUser(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	var user models.User
	if err := h.db.First(&user, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	c.JSON(http.StatusOK, userResponse(h.db, &user))
}

// UpdateUser updates a user's profile (admin only)
func (h *Handler) UpdateUser(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	var user models.User
	if err := h.db.First(&user, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Prevent admin from demoting themselves
	currentUserID, _ := auth.GetUserID(c)
	if uint(id) == currentUserID && req.SystemRole != nil && *req.SystemRole != "admin" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot demote yourself"})
		return
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.SystemRole != nil {
		if *req.SystemRole != "admin" && *req.SystemRole != "user" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid system role"})
			return
		}
		updates["system_role"] = *req.SystemRole
	}

	if len(updates) > 0 {
		if err := h.db.Model(&user).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
			return
		}
	}

	// Reload user
	h.db.First(&user, id)

	c.JSON(http.StatusOK, userResponse(h.db, &user))
}

// DeleteUser soft-deletes a user (admin only)
func (h *Handler) DeleteUser(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	// Prevent admin from deleting themselves
	currentUserID, _ := auth.GetUserID(c)
	if uint(id) == currentUserID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot delete yourself"})
		return
	}

	var user models.User
	if err := h.db.First(&user, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	// Delete user and related data in a transaction
	err = h.db.Transaction(func(tx *gorm.DB) error {
		// Delete API keys
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.APIKey{}).Error; err != nil {
			return err
		}
		// Delete subsite grants
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.SubsiteGrant{}).Error; err != nil {
			return err
		}
		// Delete user
		return tx.Delete(&user).Error
	})

	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}

// ListGroups returns every security group regardless of subsite context
// (admin only). The per-query filter opt-out keeps the subsite scope plugin
// out of this listing even when the request carries an X-Subsite-ID header.
func (h *Handler) ListGroups(c *gin.Context) {
	var groups []models.SecurityGroup
	if err := h.db.WithContext(c.Request.Context()).
		Set(scope.FilterSetting, false).
		Order("id").Find(&groups).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch groups"})
		return
	}

	responses := make([]GroupSummary, len(groups))
	for i, group := range groups {
		var subsiteCount int64
		h.db.Model(&models.GroupSubsite{}).Where("group_id = ?", group.ID).Count(&subsiteCount)

		responses[i] = GroupSummary{
			ID:                group.ID,
			Name:              group.Name,
			AccessAllSubsites: group.AccessAllSubsites,
			SubsiteCount:      subsiteCount,
		}
	}

	c.JSON(http.StatusOK, responses)
}

// ListPermissions returns the registered permission descriptors (admin only)
func (h *Handler) ListPermissions(c *gin.Context) {
	c.JSON(http.StatusOK, permissions.All())
}

// GetStats returns system-wide statistics (admin only)
func (h *Handler) GetStats(c *gin.Context) {
	var stats StatsResponse

	h.db.Model(&models.User{}).Count(&stats.TotalUsers)
	h.db.Model(&models.Subsite{}).Count(&stats.TotalSubsites)
	h.db.Model(&models.SecurityGroup{}).Count(&stats.TotalGroups)
	h.db.Model(&models.SecurityGroup{}).Where("access_all_subsites = ?", true).Count(&stats.GlobalGroups)
	h.db.Model(&models.User{}).Where("system_role = ?", "admin").Count(&stats.AdminUsers)
	h.db.Model(&models.APIKey{}).Count(&stats.ActiveAPIKeys)

	c.JSON(http.StatusOK, stats)
}

// RegisterRoutes registers admin routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/stats", h.GetStats)
	rg.GET("/users", h.ListUsers)
	rg.GET("/users/:id", h.GetUser)
	rg.PUT("/users/:id", h.UpdateUser)
	rg.DELETE("/users/:id", h.DeleteUser)
	rg.GET("/groups", h.ListGroups)
	rg.GET("/permissions", h.ListPermissions)
}
