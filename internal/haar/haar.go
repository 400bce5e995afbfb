// Package haar computes the perceptual fingerprint of an image: a 2D Haar
// wavelet decomposition of a 128×128 thumbnail in YIQ color space, reduced
// to the DC coefficient and the positions of the 40 strongest AC
// coefficients per channel.
package haar

import (
	"container/heap"
	"image"
	"math"
	"sort"
)

const (
	// NumPixels is the edge length of the plane the transform operates on.
	NumPixels = 128
	// NumPixelsSquared is the number of coefficients per plane.
	NumPixelsSquared = NumPixels * NumPixels
	// NumCoefs is the number of AC coefficient positions kept per channel.
	NumCoefs = 40
	// NumChannels is the number of color planes (Y, I, Q).
	NumChannels = 3
)

const invSqrt2 = 0.7071067811865475

// yiq converts one RGB888 pixel to YIQ using the NTSC matrix, with RGB
// normalized to [0,1].
func yiq(r, g, b uint8) (float64, float64, float64) {
	rf := float64(r) / 255.0
	gf := float64(g) / 255.0
	bf := float64(b) / 255.0
	return 0.299900*rf + 0.587000*gf + 0.114000*bf,
		0.595716*rf - 0.274453*gf - 0.321263*bf,
		0.211456*rf - 0.522591*gf + 0.311135*bf
}

// planes converts a 128×128 truecolor thumbnail into three YIQ planes in
// raster order. The image bounds must be exactly NumPixels×NumPixels.
func planes(img *image.RGBA) [NumChannels][]float64 {
	var p [NumChannels][]float64
	for c := range p {
		p[c] = make([]float64, NumPixelsSquared)
	}

	b := img.Bounds()
	i := 0
	for row := b.Min.Y; row < b.Min.Y+NumPixels; row++ {
		off := img.PixOffset(b.Min.X, row)
		for col := 0; col < NumPixels; col++ {
			y, iq, q := yiq(img.Pix[off], img.Pix[off+1], img.Pix[off+2])
			p[0][i] = y
			p[1][i] = iq
			p[2][i] = q
			off += 4
			i++
		}
	}
	return p
}

// haar2D runs the standard 2D Haar decomposition in place: every row is
// fully decomposed down to one average, then every column. The orthonormal
// (a+b)/√2, (a−b)/√2 convention is used, so a[0] ends up as the plane mean
// times 128.
func haar2D(a []float64) {
	t := make([]float64, NumPixels/2)

	// Rows.
	for i := 0; i < NumPixelsSquared; i += NumPixels {
		for h := NumPixels; h > 1; h /= 2 {
			h1 := h / 2
			for k := 0; k < h1; k++ {
				j := i + 2*k
				t[k] = (a[j] - a[j+1]) * invSqrt2
				a[i+k] = (a[j] + a[j+1]) * invSqrt2
			}
			copy(a[i+h1:i+h], t[:h1])
		}
	}

	// Columns.
	for col := 0; col < NumPixels; col++ {
		for h := NumPixels; h > 1; h /= 2 {
			h1 := h / 2
			for k := 0; k < h1; k++ {
				j := 2 * k * NumPixels
				t[k] = (a[j+col] - a[j+NumPixels+col]) * invSqrt2
				a[k*NumPixels+col] = (a[j+col] + a[j+NumPixels+col]) * invSqrt2
			}
			for k := 0; k < h1; k++ {
				a[(h1+k)*NumPixels+col] = t[k]
			}
		}
	}
}

// coefRank identifies one AC coefficient during top-K selection.
type coefRank struct {
	abs float64
	pos int
}

// rankHeap is a min-heap whose root is the weakest kept coefficient. A
// coefficient with equal magnitude but higher position ranks weaker, so
// magnitude ties resolve in raster order.
type rankHeap []coefRank

func (h rankHeap) Len() int { return len(h) }
func (h rankHeap) Less(i, j int) bool {
	if h[i].abs != h[j].abs {
		return h[i].abs < h[j].abs
	}
	return h[i].pos > h[j].pos
}
func (h rankHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *rankHeap) Push(x interface{}) { *h = append(*h, x.(coefRank)) }
func (h *rankHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// largestCoefs returns the signed positions of the NumCoefs strongest AC
// coefficients of a transformed plane. The DC term a[0] is skipped. A
// zero or negative coefficient carries a negative position, matching the
// stored-sign convention of the scorer's bucket lookup.
func largestCoefs(a []float64) [NumCoefs]int16 {
	h := make(rankHeap, 0, NumCoefs)
	for pos := 1; pos < NumPixelsSquared; pos++ {
		abs := math.Abs(a[pos])
		if len(h) < NumCoefs {
			heap.Push(&h, coefRank{abs, pos})
			continue
		}
		if abs > h[0].abs || (abs == h[0].abs && pos < h[0].pos) {
			h[0] = coefRank{abs, pos}
			heap.Fix(&h, 0)
		}
	}

	// Strongest first; position order breaks magnitude ties.
	sort.Slice(h, func(i, j int) bool {
		if h[i].abs != h[j].abs {
			return h[i].abs > h[j].abs
		}
		return h[i].pos < h[j].pos
	})

	var sig [NumCoefs]int16
	for i, c := range h {
		if a[c.pos] > 0 {
			sig[i] = int16(c.pos)
		} else {
			sig[i] = int16(-c.pos)
		}
	}
	return sig
}

// Extract computes the signature of a 128×128 truecolor thumbnail.
func Extract(img *image.RGBA) *Signature {
	p := planes(img)

	var sig Signature
	for c := 0; c < NumChannels; c++ {
		haar2D(p[c])
		sig.Avglf[c] = p[c][0]
		p[c][0] = 0
		sig.Sig[c] = largestCoefs(p[c])
	}
	return &sig
}
