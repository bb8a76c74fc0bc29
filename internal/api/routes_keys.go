package api

import (
	"github.com/gin-gonic/gin"

	"github.com/fieldvault/fieldvault/internal/handlers"
)

func registerKeyRoutes(r *gin.Engine, svcs Services) {
	keyHandler := handlers.NewKeyHandler(svcs.Keys)
	cryptoHandler := handlers.NewCryptoHandler(svcs.Crypto)

	api := r.Group("/api")

	keys := api.Group("/keys")
	{
		keys.GET("/status", keyHandler.Status)
		keys.POST("", keyHandler.Create)
		keys.POST("/activate", keyHandler.Activate)
		keys.POST("/retire", keyHandler.Retire)
		keys.POST("/rotate", keyHandler.Rotate)
	}

	crypto := api.Group("/crypto")
	{
		crypto.POST("/encrypt", cryptoHandler.Encrypt)
		crypto.POST("/decrypt", cryptoHandler.Decrypt)
	}

	if svcs.Audit != nil {
		auditHandler := handlers.NewAuditHandler(svcs.Audit)
		api.GET("/audit", auditHandler.List)
	}
}
