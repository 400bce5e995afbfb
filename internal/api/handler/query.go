package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/takumin/iqdb/internal/haar"
	"github.com/takumin/iqdb/internal/imgdb"
	"github.com/takumin/iqdb/internal/logger"
)

// QueryHandler handles similarity queries and the status endpoint.
type QueryHandler struct {
	db           *imgdb.IQDB
	defaultLimit int
	version      string
}

// NewQueryHandler creates a query handler.
func NewQueryHandler(db *imgdb.IQDB, defaultLimit int, version string) *QueryHandler {
	if defaultLimit <= 0 {
		defaultLimit = 10
	}
	return &QueryHandler{db: db, defaultLimit: defaultLimit, version: version}
}

// Query handles POST /query. The query image is given either as a `hash`
// form value (a previously returned signature hash) or as a multipart
// `file` upload.
func (h *QueryHandler) Query(c *gin.Context) {
	ctx := c.Request.Context()
	limit := h.limit(c)

	var matches []imgdb.Match

	if hash := c.PostForm("hash"); hash != "" {
		sig, err := haar.FromHash(hash)
		if err != nil {
			renderError(c, imgdb.Wrap(imgdb.KindInvalidParameter, err, "invalid signature hash"))
			return
		}
		matches = h.db.QueryFromSignature(ctx, sig, limit)
	} else {
		file, err := c.FormFile("file")
		if err != nil {
			renderError(c, imgdb.Errorf(imgdb.KindInvalidParameter, "`POST /query` requires a `file` or `hash` param"))
			return
		}
		f, err := file.Open()
		if err != nil {
			renderError(c, imgdb.Wrap(imgdb.KindInvalidParameter, err, "could not open uploaded file"))
			return
		}
		blob, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			renderError(c, imgdb.Wrap(imgdb.KindInvalidParameter, err, "could not read uploaded file"))
			return
		}
		matches, err = h.db.QueryFromBlob(ctx, blob, limit)
		if err != nil {
			renderError(c, err)
			return
		}
	}

	items := make([]gin.H, 0, len(matches))
	for _, m := range matches {
		row, err := h.db.GetImage(ctx, m.PostID)
		if err != nil {
			renderError(c, err)
			return
		}
		if row == nil {
			// The row vanished between ranking and enrichment.
			logger.FromContext(ctx).WithField(logger.FieldPostID, m.PostID).Warn("match has no persisted row; skipping")
			continue
		}
		sig, err := row.Signature()
		if err != nil {
			renderError(c, imgdb.Wrap(imgdb.KindDataCorruption, err, "persisted signature is malformed"))
			return
		}
		items = append(items, gin.H{
			"post_id": m.PostID,
			"score":   m.Score,
			"hash":    sig.Hash(),
			"signature": gin.H{
				"avglf": sig.Avglf,
			},
		})
	}

	c.JSON(http.StatusOK, items)
}

// Status handles GET /status.
func (h *QueryHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"images":  h.db.Count(),
		"version": h.version,
	})
}

// limit resolves the result count from the `limit` form or query value,
// falling back to the configured default.
func (h *QueryHandler) limit(c *gin.Context) int {
	raw := c.PostForm("limit")
	if raw == "" {
		raw = c.Query("limit")
	}
	if raw == "" {
		return h.defaultLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return h.defaultLimit
	}
	return n
}
