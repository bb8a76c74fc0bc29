package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/fieldvault/fieldvault/internal/handlers"
)

func registerHealthRoutes(r *gin.Engine, db *gorm.DB) {
	health := handlers.Health(db)
	r.GET("/health", health)
	r.GET("/api/health", health)
}
