package rdx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVV(t *testing.T) {
	vv := make(VV)
	assert.True(t, vv.PutID(ID{0xa, 4}))
	assert.False(t, vv.PutID(ID{0xa, 2}))
	assert.True(t, vv.Put(0xb, 1))
	assert.Equal(t, uint64(5), vv.Get(0xa))
	assert.True(t, vv.Covers(ID{0xa, 4}))
	assert.False(t, vv.Covers(ID{0xa, 5}))
	assert.False(t, vv.Covers(ID{0xc, 0}))
	assert.Equal(t, "a-5,b-1", vv.String())

	vv2, err := VVFromTLV(vv.TLV())
	assert.Nil(t, err)
	assert.Equal(t, vv, vv2)
	assert.True(t, vv.Seen(vv2))

	vv2.Set(0xc, 3)
	assert.False(t, vv.Seen(vv2))
	assert.True(t, vv2.Seen(vv))
}

func TestVVEmpty(t *testing.T) {
	vv := make(VV)
	tlv := vv.TLV()
	assert.NotNil(t, tlv)
	assert.Equal(t, 0, len(tlv))
	back, err := VVFromTLV(tlv)
	assert.Nil(t, err)
	assert.Equal(t, 0, len(back))
}

func TestVVWary(t *testing.T) {
	_, err := VVFromTLV([]byte{'v', 3, 1})
	assert.NotNil(t, err)
	_, err = VVFromTLV([]byte{'v', 7, 1, 2, 3, 4, 5, 6, 7})
	assert.ErrorIs(t, err, ErrBadVRecord)
	_, err = VVFromTLV([]byte{0xff, 0})
	assert.NotNil(t, err)
}
