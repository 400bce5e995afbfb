package imgdb

import (
	"github.com/takumin/iqdb/internal/haar"
)

// ImageInfo mirrors the DC averages of one indexed image in single
// precision for the scoring loop. Deleted is an explicit tombstone: the
// entry stays in the table after removal but is never returned by queries.
type ImageInfo struct {
	ID      string
	Avgl    [haar.NumChannels]float32
	Deleted bool
}

func newImageInfo(id string, sig *haar.Signature) *ImageInfo {
	info := &ImageInfo{ID: id}
	for c := 0; c < haar.NumChannels; c++ {
		info.Avgl[c] = float32(sig.Avglf[c])
	}
	return info
}
