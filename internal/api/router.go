package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/fieldvault/fieldvault/internal/middleware"
	"github.com/fieldvault/fieldvault/internal/services"
)

// Services bundles the service layer consumed by the HTTP routes.
type Services struct {
	Keys   *services.KeyService
	Crypto *services.CryptoService
	Audit  *services.AuditService
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(db *gorm.DB, svcs Services) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if svcs.Keys == nil {
		return nil, fmt.Errorf("key service must be provided")
	}
	if svcs.Crypto == nil {
		return nil, fmt.Errorf("crypto service must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	registerHealthRoutes(r, db)
	registerKeyRoutes(r, svcs)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
