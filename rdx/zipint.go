package rdx

import (
	"math"
	"math/bits"

	"golang.org/x/exp/constraints"
)

// byteLen is the width of the smallest of 0, 1, 2, 4 or 8 bytes holding n.
func byteLen(n uint64) int {
	switch {
	case n == 0:
		return 0
	case n <= math.MaxUint8:
		return 1
	case n <= math.MaxUint16:
		return 2
	case n <= math.MaxUint32:
		return 4
	}
	return 8
}

// pairLayouts maps the length of a zipped pair to the widths of its
// halves. The low half is never wider than the high one.
var pairLayouts = map[int][2]int{
	0: {0, 0}, 1: {1, 0}, 2: {1, 1}, 3: {2, 1},
	4: {2, 2}, 5: {4, 1}, 6: {4, 2}, 8: {4, 4},
	9: {8, 1}, 10: {8, 2}, 12: {8, 4}, 16: {8, 8},
}

func appendLE(into []byte, v uint64, width int) []byte {
	for ; width > 0; width-- {
		into = append(into, byte(v))
		v >>= 8
	}
	return into
}

// ZipUint64Pair packs two uint64s little-endian, each into the fewest
// bytes its layout allows: clocks and client ids are mostly small.
func ZipUint64Pair(big, lil uint64) []byte {
	lw := byteLen(lil)
	bw := max(byteLen(big), lw)
	if bw > 1 {
		lw = max(lw, 1)
	}
	ret := make([]byte, 0, bw+lw)
	return appendLE(appendLE(ret, big, bw), lil, lw)
}

// ValidZipPairLen tells whether n is a length ZipUint64Pair can produce.
func ValidZipPairLen(n int) bool {
	_, ok := pairLayouts[n]
	return ok
}

func UnzipUint64Pair(buf []byte) (big, lil uint64) {
	layout, ok := pairLayouts[len(buf)]
	if !ok {
		return 0, 0
	}
	return UnzipUint64(buf[:layout[0]]), UnzipUint64(buf[layout[0]:])
}

// ZipUint64 packs v into the shortest little-endian byte string.
func ZipUint64(v uint64) []byte {
	return appendLE(nil, v, (bits.Len64(v)+7)/8)
}

func UnzipUint64(zip []byte) (v uint64) {
	for i := len(zip) - 1; i >= 0; i-- {
		v = v<<8 | uint64(zip[i])
	}
	return
}

// ZigZag keeps small negative numbers small.
func ZigZag[T constraints.Signed](i T) uint64 {
	v := int64(i)
	return uint64(v<<1) ^ uint64(v>>63)
}

func ZagZig(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}

func ZipInt64(v int64) []byte {
	return ZipUint64(ZigZag(v))
}

func UnzipInt64(zip []byte) int64 {
	return ZagZig(UnzipUint64(zip))
}

// ZipFloat64 reverses the bits so the usually-empty mantissa tail
// becomes the high bytes and gets zipped away.
func ZipFloat64(f float64) []byte {
	return ZipUint64(bits.Reverse64(math.Float64bits(f)))
}

func UnzipFloat64(zip []byte) float64 {
	return math.Float64frombits(bits.Reverse64(UnzipUint64(zip)))
}
