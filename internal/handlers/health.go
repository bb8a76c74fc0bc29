package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/fieldvault/fieldvault/pkg/response"
)

// Health returns a simple status payload useful for readiness checks.
// When a database handle is supplied the connection is pinged too.
func Health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := gin.H{"status": "ok"}

		if db != nil {
			sqlDB, err := db.DB()
			if err == nil {
				err = sqlDB.PingContext(requestContext(c))
			}
			if err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"success": false,
					"status":  "degraded",
				})
				return
			}
			status["database"] = "ok"
		}

		response.Success(c, http.StatusOK, status)
	}
}
