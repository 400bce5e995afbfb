package imgdb

import (
	"container/heap"

	"github.com/takumin/iqdb/internal/haar"
	"github.com/takumin/iqdb/internal/logger"
)

// Match is one scored query result. Scores are similarity percentages:
// 100 means every coefficient of the query collided with the match, and
// results are returned best-first.
type Match struct {
	PostID string  `json:"post_id"`
	Score  float32 `json:"score"`
}

// matchHeap is a max-heap on raw score with post ID as tie-breaker: the
// root is the worst match currently kept, so pushing past the size limit
// and popping yields a bounded top-N selection that does not depend on map
// iteration order.
type matchHeap []Match

func (h matchHeap) Len() int { return len(h) }
func (h matchHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score > h[j].Score
	}
	return h[i].PostID > h[j].PostID
}
func (h matchHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *matchHeap) Push(x interface{}) { *h = append(*h, x.(Match)) }
func (h *matchHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// rankSignature scores every indexed image against sig and returns up to
// limit matches, best first.
//
// The raw score of an image starts at its weighted DC-luminance distance
// from the query and decreases by the bin weight of every coefficient
// bucket the two share, so lower raw means more similar. The final score
// rescales raw by 100 / Σ(matched-bucket weights), yielding 100 for a
// perfect collision.
func rankSignature(sig *haar.Signature, limit int, buckets *BucketSet, info map[string]*ImageInfo, log *logger.Logger) []Match {
	if limit <= 0 {
		return []Match{}
	}

	var scale float32
	scores := make(map[string]float32, len(info))

	// DC-luminance baseline over every image, tombstoned included; the
	// tombstone filter runs at selection time.
	for id, inf := range info {
		var s float32
		for c := 0; c < haar.NumChannels; c++ {
			s += haar.Weights[0][c] * abs32(inf.Avgl[c]-float32(sig.Avglf[c]))
		}
		scores[id] = s
	}

	// Bucket sweep: every coefficient of the query signature touches one
	// bucket; each image in it moves closer by that bucket's weight.
	for c := 0; c < haar.NumChannels; c++ {
		for b := 0; b < haar.NumCoefs; b++ {
			coef := sig.Sig[c][b]
			bucket := buckets.At(c, coef)
			if len(bucket) == 0 {
				continue
			}

			pos := int(coef)
			if pos < 0 {
				pos = -pos
			}
			w := haar.Weights[haar.Bin(pos)][c]
			scale -= w

			for _, id := range bucket {
				scores[id] -= w
			}
		}
	}

	if scale != 0 {
		scale = 1 / scale
	}

	h := make(matchHeap, 0, limit+1)
	for id, raw := range scores {
		inf, ok := info[id]
		if !ok {
			// A bucketed id without an info entry means the index is
			// inconsistent; skip it and keep the response well-formed.
			log.WithField(logger.FieldPostID, id).Error("index corruption: bucketed id missing from info table")
			continue
		}
		if inf.Deleted {
			continue
		}
		heap.Push(&h, Match{PostID: id, Score: raw})
		if h.Len() > limit {
			heap.Pop(&h)
		}
	}

	// Drain worst-first into the tail so the slice ends up best-first.
	out := make([]Match, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		m := heap.Pop(&h).(Match)
		m.Score = m.Score * 100 * scale
		out[i] = m
	}
	return out
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
