package rdx

import (
	"errors"
	"slices"

	"github.com/y-crdt/yrb/protocol"
)

// VV is a version vector: for every known client, the next clock
// expected from it. A replica with VV{c: 5} has seen clocks 0..4 of c.
type VV map[uint64]uint64

var ErrBadVRecord = errors.New("bad V record")

func (vv VV) Get(client uint64) (next uint64) {
	return vv[client]
}

// Set the progress for the specified client
func (vv VV) Set(client, next uint64) {
	vv[client] = next
}

// Put the client-next pair to the VV, returns whether it
// made any difference
func (vv VV) Put(client, next uint64) bool {
	pre, ok := vv[client]
	if ok && pre >= next {
		return false
	}
	vv[client] = next
	return true
}

// PutID notes the id as seen, returns whether it was unseen.
func (vv VV) PutID(id ID) bool {
	return vv.Put(id.Client, id.Clock+1)
}

// Covers tells whether the id is below the vector.
func (vv VV) Covers(id ID) bool {
	return id.Clock < vv[id.Client]
}

func (vv VV) Clone() VV {
	c := make(VV, len(vv))
	for k, v := range vv {
		c[k] = v
	}
	return c
}

// Clients returns the known clients in ascending order.
func (vv VV) Clients() []uint64 {
	clients := make([]uint64, 0, len(vv))
	for c := range vv {
		clients = append(clients, c)
	}
	slices.Sort(clients)
	return clients
}

// Seen tells whether everything bb has seen was seen by vv too.
func (vv VV) Seen(bb VV) bool {
	for client, next := range bb {
		if next > vv[client] {
			return false
		}
	}
	return true
}

// TLV encodes the vector as a sequence of V records, sorted by client.
// An empty vector encodes as an empty (non-nil) slice.
func (vv VV) TLV() (ret []byte) {
	ret = make([]byte, 0, len(vv)*8)
	for _, client := range vv.Clients() {
		ret = protocol.Append(ret, 'V', ZipUint64Pair(client, vv[client]))
	}
	return
}

// PutTLV consumes V records from untrusted input.
func (vv VV) PutTLV(rec []byte) (err error) {
	rest := rec
	for len(rest) > 0 {
		var val []byte
		val, rest, err = protocol.TakeWary('V', rest)
		if err != nil {
			return
		}
		if !ValidZipPairLen(len(val)) {
			return ErrBadVRecord
		}
		vv.Put(UnzipUint64Pair(val))
	}
	return
}

func VVFromTLV(tlv []byte) (vv VV, err error) {
	vv = make(VV)
	err = vv.PutTLV(tlv)
	return
}

func (vv VV) String() string {
	clients := vv.Clients()
	ret := make([]byte, 0, len(vv)*32)
	for i, client := range clients {
		if i > 0 {
			ret = append(ret, ',')
		}
		ret = append(ret, ID{client, vv[client]}.String()...)
	}
	return string(ret)
}
