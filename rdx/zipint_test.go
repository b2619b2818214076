package rdx

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZipUint64PairLayout(t *testing.T) {
	cases := []struct {
		big, lil uint64
		len      int
	}{
		{0, 0, 0},
		{7, 0, 1},
		{0, 7, 2},
		{300, 0, 3},
		{1, 300, 4},
		{1 << 20, 1, 5},
		{1 << 20, 300, 6},
		{5, 1 << 20, 8},
		{1 << 40, 0, 9},
		{1 << 40, 1 << 20, 12},
		{1, 1 << 40, 16},
		{math.MaxUint64, math.MaxUint64, 16},
	}
	for _, c := range cases {
		zip := ZipUint64Pair(c.big, c.lil)
		assert.Len(t, zip, c.len, "%d %d", c.big, c.lil)
		assert.True(t, ValidZipPairLen(len(zip)))
		big, lil := UnzipUint64Pair(zip)
		assert.Equal(t, c.big, big)
		assert.Equal(t, c.lil, lil)
	}
	assert.False(t, ValidZipPairLen(7))
}

func TestZipInts(t *testing.T) {
	assert.Empty(t, ZipUint64(0))
	assert.Equal(t, []byte{0x01, 0x02}, ZipUint64(0x0201))
	assert.Len(t, ZipInt64(-1), 1)
	for _, i := range []int64{0, -1, 1, 127, -128, 1 << 40, math.MinInt64, math.MaxInt64} {
		assert.Equal(t, i, UnzipInt64(ZipInt64(i)))
	}
	// 1.0 is 0x3ff0<<48: reversed, the exponent bits land in the low 12
	assert.Len(t, ZipFloat64(1.0), 2)
	for _, f := range []float64{0, 1, -1.5, 3.25, 3.14159, 1e300} {
		assert.Equal(t, f, UnzipFloat64(ZipFloat64(f)))
	}
}
