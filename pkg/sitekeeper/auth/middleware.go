package auth

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sitekeeper/sitekeeper/pkg/sitekeeper/models"
	"github.com/sitekeeper/sitekeeper/pkg/sitekeeper/tenant"
	"gorm.io/gorm"
)

const (
	// ContextKeyUserID is the key for user ID in gin context
	ContextKeyUserID = "user_id"
	// ContextKeyEmail is the key for email in gin context
	ContextKeyEmail = "email"
	// ContextKeySystemRole is the key for system role in gin context
	ContextKeySystemRole = "system_role"
	// ContextKeySubsiteID is the key for the active subsite ID in gin context
	ContextKeySubsiteID = "subsite_id"
)

// AuthMiddleware validates JWT tokens and sets user info in context
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		// Expect "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}

		tokenString := parts[1]
		claims, err := ValidateToken(tokenString)
		if err != nil {
			if err == ErrExpiredToken {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Token has expired"})
			} else {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			}
			c.Abort()
			return
		}

		// Set user info in context
		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyEmail, claims.Email)
		c.Set(ContextKeySystemRole, claims.SystemRole)

		c.Next()
	}
}

// RequireAdmin middleware checks if the user has admin system role
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get(ContextKeySystemRole)
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}

		if role != "admin" {
			c.JSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// GetUserID returns the user ID from the gin context
func GetUserID(c *gin.Context) (uint, bool) {
	userID, exists := c.Get(ContextKeyUserID)
	if !exists {
		return 0, false
	}
	return userID.(uint), true
}

// GetEmail returns the email from the gin context
func GetEmail(c *gin.Context) (string, bool) {
	email, exists := c.Get(ContextKeyEmail)
	if !exists {
		return "", false
	}
	return email.(string), true
}

// GetSystemRole returns the system role from the gin context
func GetSystemRole(c *gin.Context) (string, bool) {
	role, exists := c.Get(ContextKeySystemRole)
	if !exists {
		return "", false
	}
	return role.(string), true
}

// IsSystemAdmin reports whether the authenticated user is a system admin
func IsSystemAdmin(c *gin.Context) bool {
	role, ok := GetSystemRole(c)
	return ok && role == string(models.SystemRoleAdmin)
}

// GetSubsiteID returns the active subsite ID from the gin context.
// ok is false when the request established no subsite context.
func GetSubsiteID(c *gin.Context) (uint, bool) {
	id, exists := c.Get(ContextKeySubsiteID)
	if !exists {
		return 0, false
	}
	return id.(uint), true
}

// SubsiteMiddleware resolves the X-Subsite-ID header (or subsite_id query
// param) into the request's subsite context, which the query filter and the
// group lifecycle hooks read. Three states come out of this:
//
//   - no header: no subsite context, group queries run unfiltered;
//   - "0": global administrative context, only access-all groups are visible;
//   - a positive ID: must name an existing subsite, which becomes the active one.
//
// The resolved subsite is stored both in gin's context for handlers and on
// the http request context so it travels into db.WithContext.
func SubsiteMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		subsiteIDStr := c.GetHeader("X-Subsite-ID")
		if subsiteIDStr == "" {
			subsiteIDStr = c.Query("subsite_id")
		}
		if subsiteIDStr == "" {
			c.Next()
			return
		}

		parsed, err := strconv.ParseUint(subsiteIDStr, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid subsite ID"})
			c.Abort()
			return
		}
		subsiteID := uint(parsed)

		if subsiteID > 0 {
			var subsite models.Subsite
			if err := db.First(&subsite, subsiteID).Error; err != nil {
				c.JSON(http.StatusNotFound, gin.H{"error": "Subsite not found"})
				c.Abort()
				return
			}
		}

		c.Set(ContextKeySubsiteID, subsiteID)
		c.Request = c.Request.WithContext(tenant.WithSubsite(c.Request.Context(), subsiteID))

		c.Next()
	}
}
