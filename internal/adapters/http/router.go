// Package http is the admin console and validation boundary.
package http

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"classgate/internal/codes"
	"classgate/internal/config"
)

const sessionAdminKey = "admin"

// AdminRequired gates the code-mutation endpoints behind the cookie
// session marked by a successful login.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		if ok, _ := s.Get(sessionAdminKey).(bool); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin login required"})
			return
		}
		c.Next()
	}
}

func SetupRouter(cfg *config.Config, registry *codes.Registry) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ClassgateSessions", store))

	log.Info().Str("module", "adapters.http").Msg("router setup")

	h := &Handlers{Registry: registry, AdminKey: cfg.AdminKey}

	api := r.Group("/api")
	api.POST("/validate", h.Validate)
	api.POST("/admin/login", h.Login)

	admin := api.Group("/admin", AdminRequired())
	admin.GET("/codes", h.ListCodes)
	admin.POST("/codes", h.GenerateOne)
	admin.POST("/codes/bulk", h.GenerateBulk)
	admin.POST("/codes/import", h.Import)
	admin.GET("/codes/export", h.Export)
	admin.PATCH("/codes/name", h.SetName)
	admin.PATCH("/codes/names", h.SetNamesBulk)
	admin.PATCH("/codes/status", h.SetStatus)
	admin.DELETE("/codes", h.RemoveMany)

	return r
}
