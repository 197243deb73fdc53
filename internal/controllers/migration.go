package controllers

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/patali/yantra/internal/db"
	"gorm.io/gorm"
)

// MigrationController exposes an operator-only endpoint to run schema
// migrations without shelling into the deployment; gated on a static API
// key rather than the usual JWT middleware since it runs before any user
// session exists.
type MigrationController struct {
	db *gorm.DB
}

func NewMigrationController(gdb *gorm.DB) *MigrationController {
	return &MigrationController{db: gdb}
}

func (ctrl *MigrationController) RegisterRoutes(rg *gin.RouterGroup) {
	migration := rg.Group("/migration")
	migration.Use(migrationAPIKeyMiddleware())
	{
		migration.POST("/run", ctrl.RunMigrations)
		migration.GET("/status", ctrl.GetMigrationStatus)
	}
}

func migrationAPIKeyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := os.Getenv("MIGRATION_API_KEY")
		if apiKey == "" {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Migration API is disabled. Set MIGRATION_API_KEY environment variable to enable.",
			})
			c.Abort()
			return
		}

		providedKey := c.GetHeader("X-Migration-Key")
		if providedKey == "" {
			providedKey = c.GetHeader("Authorization")
		}
		if providedKey != apiKey {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or missing migration API key"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RunMigrations runs both River and GORM migrations programmatically.
func (ctrl *MigrationController) RunMigrations(c *gin.Context) {
	ctx := context.Background()
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DATABASE_URL not set"})
		return
	}

	database := &db.Database{DB: ctrl.db}
	results := make(map[string]any)

	riverErr := database.RunRiverMigrations(ctx, databaseURL)
	results["river"] = map[string]any{"error": nil}
	if riverErr != nil {
		results["river"].(map[string]any)["error"] = riverErr.Error()
	}

	gormErr := database.AutoMigrate()
	results["gorm"] = map[string]any{"error": nil}
	if gormErr != nil {
		results["gorm"].(map[string]any)["error"] = gormErr.Error()
	}

	status := "success"
	if riverErr != nil || gormErr != nil {
		status = "partial_failure"
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "results": results})
}

// GetMigrationStatus is a lightweight check that the River migration table exists.
func (ctrl *MigrationController) GetMigrationStatus(c *gin.Context) {
	var count int64
	err := ctrl.db.Raw("SELECT COUNT(*) FROM river_migration").Scan(&count).Error
	riverMigrated := err == nil

	c.JSON(http.StatusOK, gin.H{
		"river_migrated": riverMigrated,
		"database_url":   fmt.Sprintf("Connected to: %s", ctrl.db.Name()),
	})
}
