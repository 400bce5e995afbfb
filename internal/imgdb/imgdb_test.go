package imgdb

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/takumin/iqdb/internal/config"
	"github.com/takumin/iqdb/internal/imaging"
	"github.com/takumin/iqdb/internal/repository"
)

func newTestRepo(t *testing.T) *repository.ImageRepository {
	t.Helper()
	gdb, err := repository.InitDB(&config.DatabaseConfig{
		Driver:          "sqlite",
		Path:            filepath.Join(t.TempDir(), "iqdb.sqlite"),
		MaxIdleConns:    1,
		MaxOpenConns:    1,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	return repository.NewImageRepository(gdb)
}

func newTestDB(t *testing.T) *IQDB {
	t.Helper()
	return New(newTestRepo(t), imaging.NewThumbnailer(2), testLogger())
}

// jpegBlob renders a deterministic test image and encodes it as JPEG.
// shift varies the content so different shifts produce distinct images.
func jpegBlob(t *testing.T, shift uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(x*4) + shift,
				G: uint8(y*4) - shift,
				B: shift,
				A: 255,
			})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("jpeg encode: %v", err)
	}
	return buf.Bytes()
}

func TestAddAndQuery(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	blob := jpegBlob(t, 0)
	if _, err := db.AddImage(ctx, "post-1", blob); err != nil {
		t.Fatalf("AddImage: %v", err)
	}
	if got := db.Count(); got != 1 {
		t.Fatalf("Count = %d, want 1", got)
	}

	matches, err := db.QueryFromBlob(ctx, blob, 10)
	if err != nil {
		t.Fatalf("QueryFromBlob: %v", err)
	}
	if len(matches) != 1 || matches[0].PostID != "post-1" {
		t.Fatalf("matches = %v, want [post-1]", matches)
	}
	if math.Abs(float64(matches[0].Score)-100) > 0.1 {
		t.Errorf("self-match score = %v, want 100", matches[0].Score)
	}
}

func TestQueryRanksCloserImageFirst(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	near := jpegBlob(t, 0)
	if _, err := db.AddImage(ctx, "near", near); err != nil {
		t.Fatalf("AddImage: %v", err)
	}
	if _, err := db.AddImage(ctx, "far", jpegBlob(t, 120)); err != nil {
		t.Fatalf("AddImage: %v", err)
	}

	matches, err := db.QueryFromBlob(ctx, near, 10)
	if err != nil {
		t.Fatalf("QueryFromBlob: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[0].PostID != "near" {
		t.Errorf("best match = %s, want near", matches[0].PostID)
	}
	if matches[0].Score <= matches[1].Score {
		t.Errorf("scores not best-first: %v then %v", matches[0].Score, matches[1].Score)
	}
}

func TestAddReplacesExistingPost(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := jpegBlob(t, 10)
	second := jpegBlob(t, 200)
	if _, err := db.AddImage(ctx, "post-1", first); err != nil {
		t.Fatalf("AddImage: %v", err)
	}
	if _, err := db.AddImage(ctx, "post-1", second); err != nil {
		t.Fatalf("AddImage: %v", err)
	}

	if got := db.Count(); got != 1 {
		t.Fatalf("Count = %d, want 1", got)
	}

	matches, err := db.QueryFromBlob(ctx, second, 10)
	if err != nil {
		t.Fatalf("QueryFromBlob: %v", err)
	}
	if len(matches) != 1 || matches[0].PostID != "post-1" {
		t.Fatalf("matches = %v, want [post-1]", matches)
	}
	if math.Abs(float64(matches[0].Score)-100) > 0.1 {
		t.Errorf("replacement did not take: score = %v, want 100", matches[0].Score)
	}
}

func TestRemoveImage(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	blob := jpegBlob(t, 0)
	if _, err := db.AddImage(ctx, "post-1", blob); err != nil {
		t.Fatalf("AddImage: %v", err)
	}
	if err := db.RemoveImage(ctx, "post-1"); err != nil {
		t.Fatalf("RemoveImage: %v", err)
	}

	if got := db.Count(); got != 0 {
		t.Errorf("Count = %d, want 0", got)
	}
	matches, err := db.QueryFromBlob(ctx, blob, 10)
	if err != nil {
		t.Fatalf("QueryFromBlob: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("matches = %v, want none", matches)
	}

	row, err := db.GetImage(ctx, "post-1")
	if err != nil {
		t.Fatalf("GetImage: %v", err)
	}
	if row != nil {
		t.Error("row still present after remove")
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := db.AddImage(ctx, "post-1", jpegBlob(t, 0)); err != nil {
		t.Fatalf("AddImage: %v", err)
	}
	if err := db.RemoveImage(ctx, "post-1"); err != nil {
		t.Fatalf("first remove: %v", err)
	}
	if err := db.RemoveImage(ctx, "post-1"); err != nil {
		t.Fatalf("second remove: %v", err)
	}
	if err := db.RemoveImage(ctx, "never-existed"); err != nil {
		t.Fatalf("remove of unknown id: %v", err)
	}
	if got := db.Count(); got != 0 {
		t.Errorf("Count = %d, want 0", got)
	}
}

func TestLoadRebuildsIndex(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first := New(repo, imaging.NewThumbnailer(2), testLogger())
	blob := jpegBlob(t, 0)
	if _, err := first.AddImage(ctx, "post-1", blob); err != nil {
		t.Fatalf("AddImage: %v", err)
	}
	if _, err := first.AddImage(ctx, "post-2", jpegBlob(t, 60)); err != nil {
		t.Fatalf("AddImage: %v", err)
	}
	if _, err := first.AddImage(ctx, "post-3", jpegBlob(t, 130)); err != nil {
		t.Fatalf("AddImage: %v", err)
	}

	// A fresh instance over the same database simulates a restart.
	second := New(repo, imaging.NewThumbnailer(2), testLogger())
	if err := second.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := second.Count(); got != 3 {
		t.Fatalf("Count after load = %d, want 3", got)
	}

	matches, err := second.QueryFromBlob(ctx, blob, 10)
	if err != nil {
		t.Fatalf("QueryFromBlob: %v", err)
	}
	if len(matches) != 3 || matches[0].PostID != "post-1" {
		t.Fatalf("matches = %v, want post-1 first of 3", matches)
	}
	if math.Abs(float64(matches[0].Score)-100) > 0.1 {
		t.Errorf("self-match score after load = %v, want 100", matches[0].Score)
	}

	// Loading again over the same rows must land on identical state, not
	// accumulate duplicate bucket entries.
	if err := second.Load(ctx); err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if got := second.Count(); got != 3 {
		t.Fatalf("Count after reload = %d, want 3", got)
	}
	reloaded, err := second.QueryFromBlob(ctx, blob, 10)
	if err != nil {
		t.Fatalf("QueryFromBlob after reload: %v", err)
	}
	if len(reloaded) != len(matches) {
		t.Fatalf("got %d matches after reload, want %d", len(reloaded), len(matches))
	}
	for i := range matches {
		if reloaded[i] != matches[i] {
			t.Errorf("match %d changed across reload: %v vs %v", i, reloaded[i], matches[i])
		}
	}
}

func TestGetByMD5(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	blob := jpegBlob(t, 0)
	if _, err := db.AddImage(ctx, "post-1", blob); err != nil {
		t.Fatalf("AddImage: %v", err)
	}

	row, err := db.GetImage(ctx, "post-1")
	if err != nil || row == nil {
		t.Fatalf("GetImage: row=%v err=%v", row, err)
	}

	rows, err := db.GetByMD5(ctx, row.MD5)
	if err != nil {
		t.Fatalf("GetByMD5: %v", err)
	}
	if len(rows) != 1 || rows[0].PostID != "post-1" {
		t.Errorf("rows = %v, want [post-1]", rows)
	}

	rows, err = db.GetByMD5(ctx, "0000000000000000000000000000dead")
	if err != nil {
		t.Fatalf("GetByMD5: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("rows = %v, want none", rows)
	}
}

func TestAddRejectsUndecodableBlob(t *testing.T) {
	db := newTestDB(t)

	_, err := db.AddImage(context.Background(), "post-1", []byte("this is not an image"))
	if err == nil {
		t.Fatal("expected error")
	}
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindImageDecode {
		t.Errorf("error = %v, want kind %s", err, KindImageDecode)
	}
	if got := db.Count(); got != 0 {
		t.Errorf("Count = %d, want 0", got)
	}
}
