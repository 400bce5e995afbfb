package handler

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/takumin/iqdb/internal/imgdb"
	"github.com/takumin/iqdb/internal/logger"
)

// renderError writes the JSON error envelope for err. NotFound surfaces as
// a plain 404; everything else becomes a 500 with the exception name,
// message and a backtrace. Fatal kinds are additionally logged so index
// corruption is never silent.
func renderError(c *gin.Context, err error) {
	log := logger.FromContext(c.Request.Context())

	var e *imgdb.Error
	if errors.As(err, &e) {
		if e.Kind == imgdb.KindNotFound {
			c.JSON(http.StatusNotFound, gin.H{"message": "not found"})
			return
		}
		if e.Fatal() {
			log.WithError(err).Error("fatal error while handling request")
		} else {
			log.WithError(err).Warn("request failed")
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"exception": string(e.Kind),
			"message":   e.Message,
			"backtrace": string(debug.Stack()),
		})
		return
	}

	log.WithError(err).Error("unclassified error while handling request")
	c.JSON(http.StatusInternalServerError, gin.H{
		"exception": string(imgdb.KindInternal),
		"message":   err.Error(),
		"backtrace": string(debug.Stack()),
	})
}
