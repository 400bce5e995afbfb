package imaging

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("jpeg encode: %v", err)
	}
	return buf.Bytes()
}

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{uint8(x), uint8(y), uint8(x ^ y), 255})
		}
	}
	return img
}

func TestThumbnailSizesToFixedBounds(t *testing.T) {
	tests := []struct {
		name string
		w, h int
	}{
		{"smaller", 64, 48},
		{"exact", 128, 128},
		{"larger", 500, 300},
		{"tall", 100, 700},
	}
	th := NewThumbnailer(2)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := th.Thumbnail(context.Background(), encodeJPEG(t, testImage(tt.w, tt.h)))
			if err != nil {
				t.Fatalf("Thumbnail: %v", err)
			}
			b := got.Bounds()
			if b.Dx() != ThumbSize || b.Dy() != ThumbSize {
				t.Errorf("bounds = %v, want %d x %d", b, ThumbSize, ThumbSize)
			}
		})
	}
}

func TestThumbnailDeterministic(t *testing.T) {
	th := NewThumbnailer(1)
	blob := encodeJPEG(t, testImage(311, 200))

	a, err := th.Thumbnail(context.Background(), blob)
	if err != nil {
		t.Fatalf("Thumbnail: %v", err)
	}
	b, err := th.Thumbnail(context.Background(), blob)
	if err != nil {
		t.Fatalf("Thumbnail: %v", err)
	}
	if !bytes.Equal(a.Pix, b.Pix) {
		t.Error("same blob produced different thumbnails")
	}
}

func TestThumbnailAcceptsPNG(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage(90, 90)); err != nil {
		t.Fatalf("png encode: %v", err)
	}

	th := NewThumbnailer(2)
	if _, err := th.Thumbnail(context.Background(), buf.Bytes()); err != nil {
		t.Errorf("Thumbnail: %v", err)
	}
}

func TestThumbnailRejectsGarbage(t *testing.T) {
	th := NewThumbnailer(2)
	_, err := th.Thumbnail(context.Background(), []byte("definitely not an image"))
	if !errors.Is(err, ErrDecode) {
		t.Errorf("error = %v, want ErrDecode", err)
	}
}

func TestIsJPEG(t *testing.T) {
	if !IsJPEG(encodeJPEG(t, testImage(8, 8))) {
		t.Error("JPEG blob not recognized")
	}
	if IsJPEG([]byte{0x89, 0x50}) {
		t.Error("PNG magic recognized as JPEG")
	}
	if IsJPEG(nil) {
		t.Error("empty blob recognized as JPEG")
	}
}
