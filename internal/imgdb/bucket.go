// Package imgdb holds the in-memory similarity index: the bucket-set
// inverted index over signed Haar coefficient positions, the per-image DC
// average table, and the weighted scorer that sweeps them.
package imgdb

import (
	"github.com/takumin/iqdb/internal/haar"
)

// BucketSet is the inverted index mapping (channel, coefficient sign,
// coefficient position) to the post IDs whose signature contains that
// coefficient. The shape is fixed at 3 × 2 × 16384 buckets, almost all of
// which stay empty. It is not internally synchronized; the IQDB
// reader/writer lock guards it.
type BucketSet struct {
	buckets [haar.NumChannels][2][haar.NumPixelsSquared][]string
}

// NewBucketSet returns an empty bucket set.
func NewBucketSet() *BucketSet {
	return &BucketSet{}
}

// At returns the bucket for a signed coefficient of the given channel.
func (b *BucketSet) At(channel int, coef int16) []string {
	return *b.at(channel, coef)
}

func (b *BucketSet) at(channel int, coef int16) *[]string {
	sign := 0
	if coef < 0 {
		sign = 1
		coef = -coef
	}
	return &b.buckets[channel][sign][coef]
}

// Add appends id to every bucket touched by sig. Adding the same id twice
// inserts duplicates and corrupts scoring; callers must Remove any prior
// entry first.
func (b *BucketSet) Add(sig *haar.Signature, id string) {
	b.each(sig, func(bucket *[]string) {
		*bucket = append(*bucket, id)
	})
}

// Remove erases every occurrence of id from the buckets touched by sig.
func (b *BucketSet) Remove(sig *haar.Signature, id string) {
	b.each(sig, func(bucket *[]string) {
		kept := (*bucket)[:0]
		for _, v := range *bucket {
			if v != id {
				kept = append(kept, v)
			}
		}
		*bucket = kept
	})
}

func (b *BucketSet) each(sig *haar.Signature, fn func(*[]string)) {
	for c := 0; c < haar.NumChannels; c++ {
		for i := 0; i < haar.NumCoefs; i++ {
			fn(b.at(c, sig.Sig[c][i]))
		}
	}
}
