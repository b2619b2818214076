package rdx

import (
	"bytes"
	"errors"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/y-crdt/yrb/protocol"
)

// Kind of a plain document value.
type Kind byte

const (
	KindUndefined Kind = iota
	KindNull
	KindBool
	KindNumber
	KindBigInt
	KindString
	KindBuffer
	KindArray
	KindMap
)

var kindNames = [...]string{"undefined", "null", "bool", "number", "bigint", "string", "buffer", "array", "map"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

/*
Any is a plain (non-container) document value. The zero value is
Undefined. Any never holds a live container: nested shared types travel
through the engine as a separate kind of output.

Encoding, one TLV record per value:

	T  term: null, undefined, true or false
	F  number, zipped float64
	I  bigint, zipped zig-zag int64
	S  string, raw UTF-8
	B  buffer, raw bytes
	L  array, concatenated element records
	M  map, S key record followed by the value record, keys sorted
*/
type Any struct {
	kind Kind
	num  float64
	i    int64
	str  string
	buf  []byte
	arr  []Any
	m    map[string]Any
}

var (
	ErrBadAnyRecord = errors.New("bad value record")
	ErrBadTerm      = errors.New("bad term")
)

func AnyUndefined() Any           { return Any{} }
func AnyNull() Any                { return Any{kind: KindNull} }
func AnyNumber(f float64) Any     { return Any{kind: KindNumber, num: f} }
func AnyBigInt(i int64) Any       { return Any{kind: KindBigInt, i: i} }
func AnyString(s string) Any      { return Any{kind: KindString, str: s} }
func AnyArray(items ...Any) Any   { return Any{kind: KindArray, arr: items} }
func AnyMap(m map[string]Any) Any { return Any{kind: KindMap, m: m} }

func AnyBool(b bool) Any {
	a := Any{kind: KindBool}
	if b {
		a.i = 1
	}
	return a
}

// AnyBuffer keeps a copy of b.
func AnyBuffer(b []byte) Any {
	return Any{kind: KindBuffer, buf: bytes.Clone(b)}
}

func (a Any) Kind() Kind { return a.kind }

func (a Any) IsNull() bool { return a.kind == KindNull }

func (a Any) IsUndefined() bool { return a.kind == KindUndefined }

func (a Any) Bool() bool { return a.kind == KindBool && a.i != 0 }

func (a Any) Number() float64 { return a.num }

func (a Any) BigInt() int64 { return a.i }

func (a Any) Str() string { return a.str }

func (a Any) Buffer() []byte { return a.buf }

func (a Any) Array() []Any { return a.arr }

func (a Any) Map() map[string]Any { return a.m }

func (a Any) Equal(b Any) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindBool, KindBigInt:
		return a.i == b.i
	case KindNumber:
		return a.num == b.num || (math.IsNaN(a.num) && math.IsNaN(b.num))
	case KindString:
		return a.str == b.str
	case KindBuffer:
		return bytes.Equal(a.buf, b.buf)
	case KindArray:
		return slices.EqualFunc(a.arr, b.arr, Any.Equal)
	case KindMap:
		if len(a.m) != len(b.m) {
			return false
		}
		for k, v := range a.m {
			w, ok := b.m[k]
			if !ok || !v.Equal(w) {
				return false
			}
		}
		return true
	}
	return true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// AppendTLV appends the record of the value.
func (a Any) AppendTLV(into []byte) []byte {
	switch a.kind {
	case KindUndefined:
		return protocol.Append(into, 'T', []byte("undefined"))
	case KindNull:
		return protocol.Append(into, 'T', []byte("null"))
	case KindBool:
		if a.i != 0 {
			return protocol.Append(into, 'T', []byte("true"))
		}
		return protocol.Append(into, 'T', []byte("false"))
	case KindNumber:
		return protocol.Append(into, 'F', ZipFloat64(a.num))
	case KindBigInt:
		return protocol.Append(into, 'I', ZipInt64(a.i))
	case KindString:
		return protocol.Append(into, 'S', []byte(a.str))
	case KindBuffer:
		return protocol.Append(into, 'B', a.buf)
	case KindArray:
		var body []byte
		for _, item := range a.arr {
			body = item.AppendTLV(body)
		}
		return protocol.Append(into, 'L', body)
	case KindMap:
		var body []byte
		for _, k := range sortedKeys(a.m) {
			body = protocol.Append(body, 'S', []byte(k))
			body = a.m[k].AppendTLV(body)
		}
		return protocol.Append(into, 'M', body)
	}
	panic("unknown value kind")
}

func (a Any) TLV() []byte {
	return a.AppendTLV(nil)
}

// TakeAny parses the next value record from untrusted data.
func TakeAny(data []byte) (a Any, rest []byte, err error) {
	var lit byte
	var body []byte
	lit, body, rest, err = protocol.TakeAnyWary(data)
	if err != nil {
		return
	}
	switch lit {
	case 'T':
		switch string(body) {
		case "undefined":
			a = AnyUndefined()
		case "null":
			a = AnyNull()
		case "true":
			a = AnyBool(true)
		case "false":
			a = AnyBool(false)
		default:
			err = ErrBadTerm
		}
	case 'F':
		if len(body) > 8 {
			return a, nil, ErrBadAnyRecord
		}
		a = AnyNumber(UnzipFloat64(body))
	case 'I':
		if len(body) > 8 {
			return a, nil, ErrBadAnyRecord
		}
		a = AnyBigInt(UnzipInt64(body))
	case 'S':
		a = AnyString(string(body))
	case 'B':
		a = AnyBuffer(body)
	case 'L':
		items := []Any{}
		for len(body) > 0 {
			var item Any
			item, body, err = TakeAny(body)
			if err != nil {
				return a, nil, err
			}
			items = append(items, item)
		}
		a = AnyArray(items...)
	case 'M':
		m := make(map[string]Any)
		for len(body) > 0 {
			var key []byte
			key, body, err = protocol.TakeWary('S', body)
			if err != nil {
				return a, nil, err
			}
			var val Any
			val, body, err = TakeAny(body)
			if err != nil {
				return a, nil, err
			}
			m[string(key)] = val
		}
		a = AnyMap(m)
	default:
		err = ErrBadAnyRecord
	}
	return
}

// ParseAny parses exactly one value record.
func ParseAny(rec []byte) (a Any, err error) {
	var rest []byte
	a, rest, err = TakeAny(rec)
	if err == nil && len(rest) > 0 {
		err = ErrBadAnyRecord
	}
	return
}

// String renders the value the way it shows up in text and XML output:
// strings unquoted, maps with sorted keys.
func (a Any) String() string {
	var b strings.Builder
	a.writeTo(&b)
	return b.String()
}

func (a Any) writeTo(b *strings.Builder) {
	switch a.kind {
	case KindUndefined:
		b.WriteString("undefined")
	case KindNull:
		b.WriteString("null")
	case KindBool:
		b.WriteString(strconv.FormatBool(a.i != 0))
	case KindNumber:
		b.WriteString(strconv.FormatFloat(a.num, 'g', -1, 64))
	case KindBigInt:
		b.WriteString(strconv.FormatInt(a.i, 10))
	case KindString:
		b.WriteString(a.str)
	case KindBuffer:
		b.WriteByte('[')
		for i, c := range a.buf {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(strconv.Itoa(int(c)))
		}
		b.WriteByte(']')
	case KindArray:
		b.WriteByte('[')
		for i, item := range a.arr {
			if i > 0 {
				b.WriteString(", ")
			}
			item.writeTo(b)
		}
		b.WriteByte(']')
	case KindMap:
		b.WriteByte('{')
		for i, k := range sortedKeys(a.m) {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(k)
			b.WriteString(": ")
			a.m[k].writeTo(b)
		}
		b.WriteByte('}')
	}
}
