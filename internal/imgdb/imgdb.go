package imgdb

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"sync"

	"github.com/takumin/iqdb/internal/haar"
	"github.com/takumin/iqdb/internal/imaging"
	"github.com/takumin/iqdb/internal/logger"
	"github.com/takumin/iqdb/internal/repository"
)

// loadProgressEvery is how often Load reports progress, in rows.
const loadProgressEvery = 250000

// IQDB owns the in-memory similarity index and its persistence handle.
// One reader/writer lock guards the tuple (bucket set, info table,
// repository): queries take the read lock, mutations and Load take the
// write lock, so no query ever observes a partial add.
type IQDB struct {
	mu      sync.RWMutex
	buckets *BucketSet
	info    map[string]*ImageInfo
	count   uint64

	repo  *repository.ImageRepository
	thumb *imaging.Thumbnailer
	log   *logger.Logger
}

// New creates an empty IQDB on top of repo. Call Load to populate it from
// the persisted rows.
func New(repo *repository.ImageRepository, thumb *imaging.Thumbnailer, log *logger.Logger) *IQDB {
	if log == nil {
		log = logger.Default()
	}
	return &IQDB{
		buckets: NewBucketSet(),
		info:    make(map[string]*ImageInfo),
		repo:    repo,
		thumb:   thumb,
		log:     log,
	}
}

// Signature runs the full extraction pipeline on an image blob.
func (db *IQDB) Signature(ctx context.Context, blob []byte) (*haar.Signature, error) {
	thumb, err := db.thumb.Thumbnail(ctx, blob)
	if err != nil {
		if errors.Is(err, imaging.ErrDecode) {
			return nil, Wrap(KindImageDecode, err, "could not extract image data")
		}
		return nil, Wrap(KindInternal, err, "thumbnailer failed")
	}
	return haar.Extract(thumb), nil
}

// AddImage ingests an image blob under postID, replacing any previous
// image with the same ID. The signature is computed outside the write
// lock; the persistence write and the in-memory insert happen atomically
// with respect to concurrent queries.
func (db *IQDB) AddImage(ctx context.Context, postID string, blob []byte) (*haar.Signature, error) {
	sig, err := db.Signature(ctx, blob)
	if err != nil {
		return nil, err
	}

	sum := md5.Sum(blob)
	md5hex := hex.EncodeToString(sum[:])

	db.mu.Lock()
	defer db.mu.Unlock()

	// Idempotent ingest: clear any prior entries for this ID first.
	if err := db.removeLocked(ctx, postID); err != nil {
		return nil, err
	}

	row := &repository.Image{
		PostID: postID,
		MD5:    md5hex,
		Avglf1: sig.Avglf[0],
		Avglf2: sig.Avglf[1],
		Avglf3: sig.Avglf[2],
		Sig:    sig.SigBlob(),
	}
	if err := db.repo.Replace(ctx, row); err != nil {
		return nil, Wrap(KindIO, err, "could not persist image")
	}

	db.addInMemory(postID, sig)

	db.log.WithFields(logger.Fields{
		logger.FieldPostID: postID,
		"md5":              md5hex,
	}).Debug("added image to memory and database")

	return sig, nil
}

// addInMemory inserts the signature into the bucket set and the info
// table. Caller holds the write lock.
func (db *IQDB) addInMemory(postID string, sig *haar.Signature) {
	db.buckets.Add(sig, postID)
	db.info[postID] = newImageInfo(postID, sig)
	db.count++
}

// RemoveImage retracts postID from the index and deletes the persisted
// row. Removing an unknown ID is a no-op.
func (db *IQDB) RemoveImage(ctx context.Context, postID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.removeLocked(ctx, postID)
}

func (db *IQDB) removeLocked(ctx context.Context, postID string) error {
	row, err := db.repo.GetByID(ctx, postID)
	if err != nil {
		return Wrap(KindIO, err, "could not look up image")
	}
	if row == nil {
		db.log.WithField(logger.FieldPostID, postID).Debug("remove skipped; post not in database")
		return nil
	}

	sig, err := row.Signature()
	if err != nil {
		return Wrap(KindDataCorruption, err, "persisted signature is malformed")
	}

	db.buckets.Remove(sig, postID)
	if info, ok := db.info[postID]; ok && !info.Deleted {
		info.Deleted = true
		db.count--
	}
	if err := db.repo.DeleteByID(ctx, postID); err != nil {
		return Wrap(KindIO, err, "could not delete image")
	}

	db.log.WithField(logger.FieldPostID, postID).Debug("removed image from memory and database")
	return nil
}

// QueryFromBlob extracts a signature from blob and queries it.
func (db *IQDB) QueryFromBlob(ctx context.Context, blob []byte, limit int) ([]Match, error) {
	sig, err := db.Signature(ctx, blob)
	if err != nil {
		return nil, err
	}
	return db.QueryFromSignature(ctx, sig, limit), nil
}

// QueryFromSignature returns up to limit matches for sig, best first.
func (db *IQDB) QueryFromSignature(_ context.Context, sig *haar.Signature, limit int) []Match {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return rankSignature(sig, limit, db.buckets, db.info, db.log)
}

// GetImage returns the persisted row for postID, or nil when absent.
func (db *IQDB) GetImage(ctx context.Context, postID string) (*repository.Image, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	row, err := db.repo.GetByID(ctx, postID)
	if err != nil {
		return nil, Wrap(KindIO, err, "could not look up image")
	}
	return row, nil
}

// GetByMD5 returns all persisted rows whose content hash is md5.
func (db *IQDB) GetByMD5(ctx context.Context, md5hex string) ([]repository.Image, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	rows, err := db.repo.GetByMD5(ctx, md5hex)
	if err != nil {
		return nil, Wrap(KindIO, err, "could not look up images by md5")
	}
	return rows, nil
}

// Count returns the number of live (non-deleted) images in the index.
func (db *IQDB) Count() uint64 {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.count
}

// Load clears the in-memory index and rebuilds it by streaming every
// persisted row. Progress is logged every 250 000 rows.
func (db *IQDB) Load(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.buckets = NewBucketSet()
	db.info = make(map[string]*ImageInfo)
	db.count = 0

	err := db.repo.EachImage(ctx, func(row *repository.Image) error {
		sig, err := row.Signature()
		if err != nil {
			return Wrap(KindDataCorruption, err, "persisted signature is malformed")
		}
		db.addInMemory(row.PostID, sig)

		if db.count%loadProgressEvery == 0 {
			db.log.WithFields(logger.Fields{
				logger.FieldImages: db.count,
				logger.FieldPostID: row.PostID,
			}).Info("loading images")
		}
		return nil
	})
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			return e
		}
		return Wrap(KindIO, err, "could not iterate images")
	}

	db.log.WithField(logger.FieldImages, db.count).Info("loaded database")
	return nil
}
