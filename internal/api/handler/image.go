package handler

import (
	"bytes"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/takumin/iqdb/internal/imgdb"
	"github.com/takumin/iqdb/internal/logger"
	"github.com/takumin/iqdb/internal/source"
	"github.com/takumin/iqdb/internal/storage"
)

// ImageHandler handles the /images endpoints.
type ImageHandler struct {
	db      *imgdb.IQDB
	fetcher *source.Fetcher

	// archive is optional; when set, original blobs are mirrored there.
	archive       storage.ObjectStorage
	archivePrefix string
}

// NewImageHandler creates an image handler. archive may be nil.
func NewImageHandler(db *imgdb.IQDB, fetcher *source.Fetcher, archive storage.ObjectStorage, archivePrefix string) *ImageHandler {
	return &ImageHandler{
		db:            db,
		fetcher:       fetcher,
		archive:       archive,
		archivePrefix: archivePrefix,
	}
}

// GetImage handles GET /images/:post_id.
func (h *ImageHandler) GetImage(c *gin.Context) {
	postID := c.Param("post_id")

	row, err := h.db.GetImage(c.Request.Context(), postID)
	if err != nil {
		renderError(c, err)
		return
	}
	if row == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "not found"})
		return
	}

	sig, err := row.Signature()
	if err != nil {
		renderError(c, imgdb.Wrap(imgdb.KindDataCorruption, err, "persisted signature is malformed"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"post_id": row.PostID,
		"md5":     row.MD5,
		"hash":    sig.Hash(),
		"avglf":   sig.Avglf,
	})
}

// GetByMD5 handles GET /md5/:md5.
func (h *ImageHandler) GetByMD5(c *gin.Context) {
	rows, err := h.db.GetByMD5(c.Request.Context(), c.Param("md5"))
	if err != nil {
		renderError(c, err)
		return
	}

	results := make([]gin.H, 0, len(rows))
	for i := range rows {
		sig, err := rows[i].Signature()
		if err != nil {
			renderError(c, imgdb.Wrap(imgdb.KindDataCorruption, err, "persisted signature is malformed"))
			return
		}
		results = append(results, gin.H{
			"post_id": rows[i].PostID,
			"md5":     rows[i].MD5,
			"hash":    sig.Hash(),
			"avglf":   sig.Avglf,
		})
	}
	c.JSON(http.StatusOK, results)
}

// CreateImage handles POST /images/:post_id. The request carries either a
// multipart `file` or a `url` form value to fetch the blob from.
func (h *ImageHandler) CreateImage(c *gin.Context) {
	ctx := c.Request.Context()
	postID := c.Param("post_id")

	blob, err := h.requestBlob(c)
	if err != nil {
		renderError(c, err)
		return
	}

	sig, err := h.db.AddImage(ctx, postID, blob)
	if err != nil {
		renderError(c, err)
		return
	}

	if h.archive != nil {
		key := h.archivePrefix + postID
		contentType := http.DetectContentType(blob)
		if err := h.archive.Upload(ctx, key, bytes.NewReader(blob), int64(len(blob)), contentType); err != nil {
			// The index is already consistent; losing the archival copy
			// is not a request failure.
			logger.FromContext(ctx).WithError(err).WithField(logger.FieldPostID, postID).Warn("failed to archive original blob")
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"post_id": postID,
		"hash":    sig.Hash(),
		"signature": gin.H{
			"avglf": sig.Avglf,
			"sig":   sig.Sig,
		},
	})
}

// DeleteImage handles DELETE /images/:post_id.
func (h *ImageHandler) DeleteImage(c *gin.Context) {
	ctx := c.Request.Context()
	postID := c.Param("post_id")

	if err := h.db.RemoveImage(ctx, postID); err != nil {
		renderError(c, err)
		return
	}

	if h.archive != nil {
		if err := h.archive.Delete(ctx, h.archivePrefix+postID); err != nil {
			logger.FromContext(ctx).WithError(err).WithField(logger.FieldPostID, postID).Warn("failed to delete archived blob")
		}
	}

	c.JSON(http.StatusOK, gin.H{"post_id": postID})
}

// requestBlob extracts the image bytes from a multipart `file` or, failing
// that, downloads the `url` form value.
func (h *ImageHandler) requestBlob(c *gin.Context) ([]byte, error) {
	if file, err := c.FormFile("file"); err == nil {
		f, err := file.Open()
		if err != nil {
			return nil, imgdb.Wrap(imgdb.KindInvalidParameter, err, "could not open uploaded file")
		}
		defer f.Close()

		blob, err := io.ReadAll(f)
		if err != nil {
			return nil, imgdb.Wrap(imgdb.KindInvalidParameter, err, "could not read uploaded file")
		}
		return blob, nil
	}

	if url := c.PostForm("url"); url != "" {
		blob, err := h.fetcher.Fetch(c.Request.Context(), url)
		if err != nil {
			return nil, imgdb.Wrap(imgdb.KindInvalidParameter, err, "could not fetch image url")
		}
		return blob, nil
	}

	return nil, imgdb.Errorf(imgdb.KindInvalidParameter, "`POST /images/:post_id` requires a `file` or `url` param")
}
