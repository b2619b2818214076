package rdx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDZip(t *testing.T) {
	ids := []ID{
		{0, 0},
		{1, 0},
		{0xff, 1},
		{0x1234, 0x56},
		{0xdeadbeef, 0xffff},
		{0x1fffffffffffff, 0xffffffff},
		{^uint64(0), ^uint64(0)},
	}
	for _, id := range ids {
		zip := id.ZipBytes()
		assert.True(t, ValidZipPairLen(len(zip)))
		back, err := IDFromZipBytes(zip)
		assert.Nil(t, err)
		assert.Equal(t, id, back)
	}
	_, err := IDFromZipBytes(make([]byte, 7))
	assert.ErrorIs(t, err, ErrBadID)
}

func TestParseID(t *testing.T) {
	ids := []string{
		"0-0",
		"3-1",
		"fa3-57",
		"fffffffffffff-ffa",
	}
	for _, str := range ids {
		id, err := IDFromString(str)
		assert.Nil(t, err)
		assert.Equal(t, str, id.String())
	}
	for _, bad := range []string{"", "-1", "1-", "x-1", "1-2-3"} {
		_, err := IDFromString(bad)
		assert.ErrorIs(t, err, ErrBadID, bad)
	}
}

func TestIDLess(t *testing.T) {
	assert.True(t, ID{1, 5}.Less(ID{2, 0}))
	assert.True(t, ID{1, 5}.Less(ID{1, 6}))
	assert.False(t, ID{1, 5}.Less(ID{1, 5}))
	assert.Equal(t, ID{1, 6}, ID{1, 5}.Next())
}
