// Package api wires the HTTP surface: routes, middleware and handlers.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/takumin/iqdb/internal/api/handler"
	"github.com/takumin/iqdb/internal/api/middleware"
	"github.com/takumin/iqdb/internal/config"
	"github.com/takumin/iqdb/internal/imgdb"
	"github.com/takumin/iqdb/internal/logger"
	"github.com/takumin/iqdb/internal/source"
	"github.com/takumin/iqdb/internal/storage"
)

// SetupRouter builds the gin engine with all routes registered.
// archive may be nil when the blob archive is disabled.
func SetupRouter(
	cfg *config.Config,
	log *logger.Logger,
	db *imgdb.IQDB,
	fetcher *source.Fetcher,
	archive storage.ObjectStorage,
	version string,
) *gin.Engine {
	switch cfg.Server.Mode {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
	}))

	images := handler.NewImageHandler(db, fetcher, archive, cfg.Storage.KeyPrefix)
	queries := handler.NewQueryHandler(db, cfg.Query.DefaultLimit, version)

	r.GET("/images/:post_id", images.GetImage)
	r.POST("/images/:post_id", images.CreateImage)
	r.DELETE("/images/:post_id", images.DeleteImage)
	r.GET("/md5/:md5", images.GetByMD5)
	r.POST("/query", queries.Query)
	r.GET("/status", queries.Status)

	return r
}
