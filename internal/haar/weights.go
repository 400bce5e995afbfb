package haar

// Weights is the per-bin, per-channel score weight table inherited from the
// imgSeek lineage. Row 0 weighs the DC (average luminance) difference, rows
// 1..5 weigh AC coefficient matches by frequency bin. These constants are
// part of the fingerprint contract: changing them invalidates every stored
// signature, so they must never be altered without re-indexing.
var Weights = [6][NumChannels]float32{
	{5.00, 19.21, 34.37}, // DC
	{0.83, 1.26, 0.36},
	{1.01, 0.44, 0.45},
	{0.52, 0.53, 0.14},
	{0.47, 0.28, 0.18},
	{0.30, 0.14, 0.27},
}

// imgBin maps a linearized coefficient position to its weight bin.
var imgBin [NumPixelsSquared]uint8

func init() {
	for row := 0; row < NumPixels; row++ {
		for col := 0; col < NumPixels; col++ {
			bin := row
			if col > bin {
				bin = col
			}
			if bin > 5 {
				bin = 5
			}
			imgBin[row*NumPixels+col] = uint8(bin)
		}
	}
}

// Bin returns the weight bin (0..5) for the linearized coefficient
// position pos. Position 0 is the DC bin.
func Bin(pos int) int {
	return int(imgBin[pos])
}
