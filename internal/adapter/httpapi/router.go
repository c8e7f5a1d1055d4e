package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NewRouter — служебный HTTP: health-check для оркестратора.
func NewRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}
