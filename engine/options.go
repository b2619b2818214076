package engine

import (
	"strconv"

	"github.com/y-crdt/yrb/utils"
)

// Kind of a shared type.
type Kind byte

const (
	KindUndefined Kind = iota
	KindArray
	KindMap
	KindText
	KindXmlElement
	KindXmlFragment
	KindXmlText
)

var kindNames = [...]string{"Undefined", "Array", "Map", "Text", "XmlElement", "XmlFragment", "XmlText"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

func (k Kind) valid() bool {
	return k > KindUndefined && k <= KindXmlText
}

func (k Kind) IsXml() bool {
	return k == KindXmlElement || k == KindXmlFragment || k == KindXmlText
}

func (k Kind) isText() bool {
	return k == KindText || k == KindXmlText
}

// OffsetKind says how text indexes and lengths are counted.
type OffsetKind byte

const (
	// OffsetUTF32 counts unicode code points.
	OffsetUTF32 OffsetKind = iota
	// OffsetUTF16 counts UTF-16 code units, the way browsers do.
	OffsetUTF16
)

func (o OffsetKind) String() string {
	if o == OffsetUTF16 {
		return "utf16"
	}
	return "utf32"
}

// ClientMask keeps client ids within the 53 bits a double can carry.
const ClientMask = 1<<53 - 1

type Options struct {
	ClientID   uint64
	OffsetKind OffsetKind
	Logger     utils.Logger
}

func (o *Options) SetDefaults() {
	o.ClientID &= ClientMask
	if o.OffsetKind != OffsetUTF16 {
		o.OffsetKind = OffsetUTF32
	}
	if o.Logger == nil {
		o.Logger = utils.NopLogger()
	}
}
