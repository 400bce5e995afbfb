package repository

import (
	"context"
	"errors"
	"sync"

	"github.com/takumin/iqdb/internal/haar"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// eachImageBatchSize is the row batch size used when streaming the whole
// table during startup load.
const eachImageBatchSize = 1000

// Image is one persisted signature row.
type Image struct {
	PostID string  `gorm:"column:post_id;type:text;primaryKey" json:"post_id"`
	MD5    string  `gorm:"column:md5;type:text;index:idx_images_md5" json:"md5"`
	Avglf1 float64 `gorm:"column:avglf1" json:"avglf1"`
	Avglf2 float64 `gorm:"column:avglf2" json:"avglf2"`
	Avglf3 float64 `gorm:"column:avglf3" json:"avglf3"`
	Sig    []byte  `gorm:"column:sig" json:"-"`
}

// TableName returns the database table name for Image.
func (Image) TableName() string {
	return "images"
}

// Signature reconstructs the Haar signature stored in the row.
func (img *Image) Signature() (*haar.Signature, error) {
	return haar.FromBlob([haar.NumChannels]float64{img.Avglf1, img.Avglf2, img.Avglf3}, img.Sig)
}

// ImageRepository handles persisted signature rows. Writes are serialized
// with an internal lock; reads may run concurrently.
type ImageRepository struct {
	db *gorm.DB
	mu sync.Mutex
}

// NewImageRepository creates a repository bound to db.
func NewImageRepository(db *gorm.DB) *ImageRepository {
	return &ImageRepository{db: db}
}

// GetByID retrieves a row by post ID. Returns (nil, nil) when absent.
func (r *ImageRepository) GetByID(ctx context.Context, postID string) (*Image, error) {
	var img Image
	err := r.db.WithContext(ctx).First(&img, "post_id = ?", postID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &img, nil
}

// GetByMD5 retrieves all rows whose content hash matches md5.
func (r *ImageRepository) GetByMD5(ctx context.Context, md5 string) ([]Image, error) {
	var imgs []Image
	if err := r.db.WithContext(ctx).Where("md5 = ?", md5).Find(&imgs).Error; err != nil {
		return nil, err
	}
	return imgs, nil
}

// Replace inserts the row, overwriting any existing row with the same
// post ID.
func (r *ImageRepository) Replace(ctx context.Context, img *Image) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "post_id"}},
		UpdateAll: true,
	}).Create(img).Error
}

// DeleteByID removes the row for postID; deleting a missing row is not an
// error.
func (r *ImageRepository) DeleteByID(ctx context.Context, postID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.db.WithContext(ctx).Delete(&Image{}, "post_id = ?", postID).Error
}

// EachImage streams every row to fn in batches. Iteration stops at the
// first error returned by fn.
func (r *ImageRepository) EachImage(ctx context.Context, fn func(*Image) error) error {
	var batch []Image
	res := r.db.WithContext(ctx).FindInBatches(&batch, eachImageBatchSize, func(tx *gorm.DB, _ int) error {
		for i := range batch {
			if err := fn(&batch[i]); err != nil {
				return err
			}
		}
		return nil
	})
	return res.Error
}

// Count returns the number of persisted rows.
func (r *ImageRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&Image{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
