// Package server assembles the HTTP surface from the feature packages.
package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/flickpick/pkg/flickpick/admin"
	"github.com/mikepea/flickpick/pkg/flickpick/auth"
	"github.com/mikepea/flickpick/pkg/flickpick/genres"
	"github.com/mikepea/flickpick/pkg/flickpick/groups"
	"github.com/mikepea/flickpick/pkg/flickpick/middleware"
	"github.com/mikepea/flickpick/pkg/flickpick/selection"
	"gorm.io/gorm"
)

// Options are the dependencies the router needs
type Options struct {
	DB       *gorm.DB
	Resolver *auth.Resolver
	Machine  *selection.Machine
	Logger   *slog.Logger
	Region   string
}

// ConfigResponse tells clients which optional features are available
type ConfigResponse struct {
	CatalogConfigured bool     `json:"catalog_configured"`
	CatalogRegion     string   `json:"catalog_region"`
	Genres            []string `json:"genres"`
}

// NewRouter registers every route on a new gin engine
func NewRouter(opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.Logging(opts.Logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":  "ok",
				"service": "flickpick",
			})
		})

		api.GET("/config", func(c *gin.Context) {
			c.JSON(http.StatusOK, ConfigResponse{
				CatalogConfigured: opts.Machine.CatalogConfigured(),
				CatalogRegion:     opts.Region,
				Genres:            genres.Allowed,
			})
		})

		// Auth routes (public, /me and /whoami resolve their own principal)
		authHandler := auth.NewHandler(opts.DB, opts.Resolver)
		authHandler.RegisterRoutes(api.Group("/auth"))
		authHandler.RegisterIdentityRoutes(api)

		// Group routes resolve an optional principal; member routes require one
		groupsGroup := api.Group("/groups", opts.Resolver.Middleware())
		groups.NewHandler(opts.DB, opts.Resolver).AfterLeave(genres.Recheck).RegisterRoutes(groupsGroup)
		genres.NewHandler(opts.DB).RegisterRoutes(groupsGroup.Group("/:code/genres"))
		selection.NewHandler(opts.DB, opts.Machine).RegisterRoutes(groupsGroup)

		// Admin routes (account JWT, admin role required)
		adminGroup := api.Group("/admin", opts.Resolver.Middleware(), auth.RequireAdmin())
		admin.NewHandler(opts.DB).RegisterRoutes(adminGroup)
	}

	return r
}
