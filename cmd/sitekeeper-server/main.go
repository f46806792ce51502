package main

import (
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/sitekeeper/sitekeeper/pkg/sitekeeper/admin"
	"github.com/sitekeeper/sitekeeper/pkg/sitekeeper/apikeys"
	"github.com/sitekeeper/sitekeeper/pkg/sitekeeper/auth"
	"github.com/sitekeeper/sitekeeper/pkg/sitekeeper/database"
	"github.com/sitekeeper/sitekeeper/pkg/sitekeeper/groups"
	"github.com/sitekeeper/sitekeeper/pkg/sitekeeper/migrate"
	"github.com/sitekeeper/sitekeeper/pkg/sitekeeper/models"
	"github.com/sitekeeper/sitekeeper/pkg/sitekeeper/scope"
	"github.com/sitekeeper/sitekeeper/pkg/sitekeeper/subsites"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	_ "github.com/sitekeeper/sitekeeper/api/swagger"
)

// @title Sitekeeper API
// @version 1.0
// @description A multi-site content platform backend with subsite-scoped security groups.

// @contact.name Sitekeeper Support
// @contact.url https://github.com/sitekeeper/sitekeeper

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT token or API key. Format: "Bearer {token}"

func main() {
	// Get database path from environment or use default
	dbPath := os.Getenv("SITEKEEPER_DB_PATH")
	if dbPath == "" {
		dbPath = "sitekeeper.db"
	}

	// Connect to database
	if err := database.Connect(dbPath); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	db := database.GetDB()

	// Install the subsite query filter. The kill-switch is explicit
	// configuration, not ambient state.
	filterCfg := scope.Config{Disabled: os.Getenv("SITEKEEPER_DISABLE_SUBSITE_FILTER") == "true"}
	if err := db.Use(scope.New(filterCfg)); err != nil {
		log.Fatalf("Failed to install subsite filter: %v", err)
	}

	// Run auto-migrations
	if err := models.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Fold the deprecated one-subsite-per-group column into the membership
	// table. Must complete before any request traffic; failure aborts startup.
	if err := migrate.Legacy(db); err != nil {
		log.Fatalf("Failed to migrate legacy subsite assignments: %v", err)
	}
	log.Println("Database migrations completed")

	// Create default admin user if no admin exists
	if err := ensureAdminExists(db); err != nil {
		log.Fatalf("Failed to ensure admin user exists: %v", err)
	}

	// Create a first subsite on a fresh install
	if err := ensureDefaultSubsiteExists(db); err != nil {
		log.Fatalf("Failed to ensure default subsite exists: %v", err)
	}

	// Set up Gin router
	r := gin.Default()

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	// Swagger documentation
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// API routes
	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status":  "ok",
				"service": "sitekeeper",
			})
		})

		// Auth routes (public)
		authHandler := auth.NewHandler(db)
		authHandler.RegisterRoutes(api.Group("/auth"))

		// Combined auth middleware (accepts JWT or API key)
		combinedAuth := apikeys.CombinedAuthMiddleware(db)

		// API keys routes (JWT only - need to be logged in to manage keys)
		apiKeysHandler := apikeys.NewHandler(db)
		apiKeysHandler.RegisterRoutes(api.Group("", auth.AuthMiddleware()))

		// Subsite routes (protected)
		subsitesHandler := subsites.NewHandler(db)
		subsitesHandler.RegisterRoutes(api.Group("/subsites", combinedAuth))

		// Security group routes (protected; X-Subsite-ID establishes the
		// subsite context the query filter and lifecycle hooks read)
		groupsHandler := groups.NewHandler(db)
		groupsGroup := api.Group("/groups")
		groupsGroup.Use(combinedAuth, auth.SubsiteMiddleware(db))
		groupsHandler.RegisterRoutes(groupsGroup)
		groupsHandler.RegisterSubsiteRoutes(groupsGroup)

		// Admin routes (JWT only, admin role required)
		adminHandler := admin.NewHandler(db)
		adminGroup := api.Group("/admin")
		adminGroup.Use(auth.AuthMiddleware(), auth.RequireAdmin())
		adminHandler.RegisterRoutes(adminGroup)
	}

	// Get port from environment or use default
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Starting Sitekeeper server on :%s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// ensureAdminExists creates a default admin user if no admin exists in the
// database.
func ensureAdminExists(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.User{}).Where("system_role = ?", models.SystemRoleAdmin).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		return nil // Admin already exists
	}

	hashedPassword, err := auth.HashPassword("changeme")
	if err != nil {
		return err
	}

	adminUser := models.User{
		Email:        "admin@sitekeeper.local",
		Name:         "Admin",
		PasswordHash: hashedPassword,
		SystemRole:   models.SystemRoleAdmin,
	}

	if err := db.Create(&adminUser).Error; err != nil {
		return err
	}

	log.Printf("Created default admin user: admin@sitekeeper.local (password: changeme)")
	return nil
}

// ensureDefaultSubsiteExists creates an initial subsite on a fresh install so
// the admin UI has something to scope to.
func ensureDefaultSubsiteExists(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.Subsite{}).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		return nil
	}

	subsite := models.Subsite{
		Name: "Main Site",
		Slug: "main",
	}

	if err := db.Create(&subsite).Error; err != nil {
		return err
	}

	log.Printf("Created default subsite: %s (/%s)", subsite.Name, subsite.Slug)
	return nil
}
