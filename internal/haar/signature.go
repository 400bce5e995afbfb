package haar

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
)

// SigBlobSize is the size of the packed coefficient arrays: 3 channels ×
// 40 coefficients × 2 bytes, little-endian int16.
const SigBlobSize = NumChannels * NumCoefs * 2

// HashSize is the length of the canonical hex form: the three avglf
// doubles followed by the coefficient blob.
const HashSize = 2 * (NumChannels*8 + SigBlobSize)

// Signature is the perceptual fingerprint of one image.
//
// Avglf holds the DC coefficients of the Y, I and Q planes. Sig holds, per
// plane, the signed linearized positions of the 40 strongest AC
// coefficients: the sign carries the sign of the underlying wavelet
// coefficient, the magnitude is row*128+col. The coefficient magnitudes
// themselves are discarded.
type Signature struct {
	Avglf [NumChannels]float64
	Sig   [NumChannels][NumCoefs]int16
}

// SigBlob packs the coefficient arrays as little-endian int16, the layout
// stored in the database `sig` column.
func (s *Signature) SigBlob() []byte {
	blob := make([]byte, SigBlobSize)
	i := 0
	for c := 0; c < NumChannels; c++ {
		for _, v := range s.Sig[c] {
			binary.LittleEndian.PutUint16(blob[i:], uint16(v))
			i += 2
		}
	}
	return blob
}

// FromBlob reconstructs a signature from the stored DC averages and the
// 240-byte coefficient blob.
func FromBlob(avglf [NumChannels]float64, blob []byte) (*Signature, error) {
	if len(blob) != SigBlobSize {
		return nil, fmt.Errorf("signature blob is %d bytes, want %d", len(blob), SigBlobSize)
	}

	sig := &Signature{Avglf: avglf}
	i := 0
	for c := 0; c < NumChannels; c++ {
		for b := 0; b < NumCoefs; b++ {
			sig.Sig[c][b] = int16(binary.LittleEndian.Uint16(blob[i:]))
			i += 2
		}
	}
	return sig, nil
}

// Hash returns the canonical hex string form of the signature: the three
// avglf values as little-endian IEEE-754 doubles, then the coefficient
// blob.
func (s *Signature) Hash() string {
	buf := make([]byte, 0, NumChannels*8+SigBlobSize)
	for c := 0; c < NumChannels; c++ {
		var d [8]byte
		binary.LittleEndian.PutUint64(d[:], math.Float64bits(s.Avglf[c]))
		buf = append(buf, d[:]...)
	}
	buf = append(buf, s.SigBlob()...)
	return hex.EncodeToString(buf)
}

// FromHash parses the canonical hex form emitted by Hash. The round trip
// FromHash(s.Hash()) is exact.
func FromHash(h string) (*Signature, error) {
	if len(h) != HashSize {
		return nil, fmt.Errorf("signature hash is %d chars, want %d", len(h), HashSize)
	}
	raw, err := hex.DecodeString(h)
	if err != nil {
		return nil, fmt.Errorf("malformed signature hash: %w", err)
	}

	var avglf [NumChannels]float64
	for c := 0; c < NumChannels; c++ {
		avglf[c] = math.Float64frombits(binary.LittleEndian.Uint64(raw[c*8:]))
	}
	return FromBlob(avglf, raw[NumChannels*8:])
}
