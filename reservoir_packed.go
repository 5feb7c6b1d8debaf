package lucerna

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// PackedReservoirSize is the byte stride of one packed reservoir (std430).
const PackedReservoirSize = 16

// PackedReservoir is the only cross-frame persisted form of a reservoir, four
// 32-bit words: the light index, the two sample parameters as halfs, W at full
// precision, and {M, visibility} as halfs. Lossless for index and W, half
// rounded for the rest; valid only within one running session.
type PackedReservoir [4]uint32

// PackReservoir quantises a reservoir for persistence.
func PackReservoir(r Reservoir) PackedReservoir {
	return PackedReservoir{
		r.Sample.Index,
		packHalf2x16(r.Sample.Params),
		math.Float32bits(r.W),
		packHalf2x16(mgl32.Vec2{r.M, r.Visibility}),
	}
}

// UnpackReservoir restores a persisted reservoir.
func UnpackReservoir(p PackedReservoir) Reservoir {
	mv := unpackHalf2x16(p[3])
	return Reservoir{
		Sample: LightSample{
			Index:  p[0],
			Params: unpackHalf2x16(p[1]),
		},
		W:          math.Float32frombits(p[2]),
		M:          mv[0],
		Visibility: mv[1],
	}
}

// Marshal appends the record to buf in GPU-buffer byte order.
func (p *PackedReservoir) Marshal(buf []byte) []byte {
	for _, w := range p {
		buf = binary.LittleEndian.AppendUint32(buf, w)
	}
	return buf
}

// MarshalPackedReservoirs serialises a reservoir buffer for upload.
func MarshalPackedReservoirs(reservoirs []PackedReservoir) []byte {
	buf := make([]byte, 0, len(reservoirs)*PackedReservoirSize)
	for i := range reservoirs {
		buf = reservoirs[i].Marshal(buf)
	}
	return buf
}
