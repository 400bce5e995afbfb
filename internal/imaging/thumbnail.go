// Package imaging decodes image blobs and produces the fixed-size
// truecolor thumbnails the signature pipeline operates on.
package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/semaphore"
)

// ThumbSize is the edge length of the thumbnail every image is reduced to.
const ThumbSize = 128

// ErrDecode reports a blob that could not be decoded as an image.
var ErrDecode = errors.New("could not decode image")

// Thumbnailer turns raw image bytes into ThumbSize×ThumbSize RGBA
// thumbnails. Decoding is capped by a weighted semaphore so that a burst of
// large uploads cannot exhaust memory.
type Thumbnailer struct {
	sem *semaphore.Weighted
}

// NewThumbnailer creates a thumbnailer that decodes at most maxDecoders
// blobs concurrently.
func NewThumbnailer(maxDecoders int64) *Thumbnailer {
	if maxDecoders < 1 {
		maxDecoders = 1
	}
	return &Thumbnailer{sem: semaphore.NewWeighted(maxDecoders)}
}

// Thumbnail decodes blob and scales it to a ThumbSize×ThumbSize truecolor
// bitmap. JPEG, PNG, GIF, WebP and BMP are accepted; anything else fails
// with an error wrapping ErrDecode. Catmull-Rom resampling keeps the
// result deterministic for identical input.
func (t *Thumbnailer) Thumbnail(ctx context.Context, blob []byte) (*image.RGBA, error) {
	if err := t.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for decoder slot: %w", err)
	}
	defer t.sem.Release(1)

	src, _, err := image.Decode(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, ThumbSize, ThumbSize))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst, nil
}

// IsJPEG reports whether blob starts with the JPEG SOI marker. The service
// guarantees JPEG support; other formats are best-effort.
func IsJPEG(blob []byte) bool {
	return len(blob) >= 2 && blob[0] == 0xff && blob[1] == 0xd8
}
