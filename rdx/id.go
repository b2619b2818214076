package rdx

import (
	"errors"
	"strconv"
)

/*
ID identifies one unit of content in a document: the client (replica)
that created it and the client-local clock of the unit.

Every inserted element, character, format marker or nested type takes
exactly one clock tick, so the clocks of a client are dense: a replica that
has seen clock N of some client has seen all clocks below N as well.
*/
type ID struct {
	Client uint64
	Clock  uint64
}

var ErrBadID = errors.New("rdx: bad id")

func NewID(client, clock uint64) ID {
	return ID{Client: client, Clock: clock}
}

func (id ID) Less(other ID) bool {
	if id.Client != other.Client {
		return id.Client < other.Client
	}
	return id.Clock < other.Clock
}

func (id ID) Next() ID {
	return ID{id.Client, id.Clock + 1}
}

func (id ID) ZipBytes() []byte {
	return ZipUint64Pair(id.Client, id.Clock)
}

// IDFromZipBytes is the wary counterpart of ZipBytes.
func IDFromZipBytes(zip []byte) (ID, error) {
	if !ValidZipPairLen(len(zip)) {
		return ID{}, ErrBadID
	}
	client, clock := UnzipUint64Pair(zip)
	return ID{client, clock}, nil
}

func (id ID) String() string {
	var buf [40]byte
	b := buf[:0]
	b = strconv.AppendUint(b, id.Client, 16)
	b = append(b, '-')
	b = strconv.AppendUint(b, id.Clock, 16)
	return string(b)
}

// IDFromString parses the client-clock hex form produced by String.
func IDFromString(idstr string) (ID, error) {
	var parts [2]uint64
	p, digits := 0, 0
	for i := 0; i < len(idstr); i++ {
		c := idstr[i]
		var d uint64
		switch {
		case c >= '0' && c <= '9':
			d = uint64(c - '0')
		case c >= 'a' && c <= 'f':
			d = uint64(10 + c - 'a')
		case c >= 'A' && c <= 'F':
			d = uint64(10 + c - 'A')
		case c == '-' && p == 0 && digits > 0:
			p, digits = 1, 0
			continue
		default:
			return ID{}, ErrBadID
		}
		if digits == 16 {
			return ID{}, ErrBadID
		}
		parts[p] = parts[p]<<4 | d
		digits++
	}
	if p != 1 || digits == 0 {
		return ID{}, ErrBadID
	}
	return ID{parts[0], parts[1]}, nil
}
