package engine

import (
	"unicode/utf16"

	"github.com/y-crdt/yrb/rdx"
)

type contentKind byte

const (
	contentAny contentKind = iota + 1
	contentRune
	contentEmbed
	contentFormat
	contentType
)

type content struct {
	kind   contentKind
	value  rdx.Any
	r      rune
	key    string
	branch *Branch
}

// Item is one unit of content: an array element, a character, an embed,
// a formatting marker or a nested shared type.
type Item struct {
	ID          rdx.ID
	origin      *Item
	rightOrigin *Item
	parent      *Branch
	key         string
	keyed       bool
	left, right *Item
	content     content
	deleted     bool
}

func (it *Item) countable() bool {
	return it.content.kind != contentFormat
}

// length of the item in offset units of the document
func (it *Item) length(offsets OffsetKind) uint32 {
	switch it.content.kind {
	case contentFormat:
		return 0
	case contentRune:
		return runeLen(it.content.r, offsets)
	}
	return 1
}

func runeLen(r rune, offsets OffsetKind) uint32 {
	if offsets == OffsetUTF16 {
		if n := utf16.RuneLen(r); n > 0 {
			return uint32(n)
		}
	}
	return 1
}

func (it *Item) out() Out {
	switch it.content.kind {
	case contentType:
		return Out{Branch: it.content.branch}
	case contentRune:
		return Out{Value: rdx.AnyString(string(it.content.r))}
	}
	return Out{Value: it.content.value}
}

// integrate links the item into its parent. left and right must be set
// to the neighbours the item was created between; the loop below picks
// the final position among concurrently inserted items.
func (it *Item) integrate(txn *Txn) {
	parent := it.parent
	if (it.left == nil && (it.right == nil || it.right.left != nil)) ||
		(it.left != nil && it.left.right != it.right) {
		left := it.left
		var o *Item
		if left != nil {
			o = left.right
		} else if it.keyed {
			o = parent.keys[it.key]
			for o != nil && o.left != nil {
				o = o.left
			}
		} else {
			o = parent.start
		}
		conflicting := make(map[*Item]struct{})
		beforeOrigin := make(map[*Item]struct{})
		for o != nil && o != it.right {
			beforeOrigin[o] = struct{}{}
			conflicting[o] = struct{}{}
			if it.origin == o.origin {
				if o.ID.Client < it.ID.Client {
					left = o
					clear(conflicting)
				} else if it.rightOrigin == o.rightOrigin {
					break
				}
			} else if _, ok := beforeOrigin[o.origin]; o.origin != nil && ok {
				if _, ok := conflicting[o.origin]; !ok {
					left = o
					clear(conflicting)
				}
			} else {
				break
			}
			o = o.right
		}
		it.left = left
	}
	if it.left != nil {
		it.right = it.left.right
		it.left.right = it
	} else {
		var r *Item
		if it.keyed {
			r = parent.keys[it.key]
			for r != nil && r.left != nil {
				r = r.left
			}
		} else {
			r = parent.start
			parent.start = it
		}
		it.right = r
	}
	if it.right != nil {
		it.right.left = it
	} else if it.keyed {
		parent.keys[it.key] = it
		if it.left != nil {
			it.left.delete(txn)
		}
	}
	txn.doc.addItem(it)
	txn.addChanged(parent, it.key, it.keyed)
	if (parent.item != nil && parent.item.deleted) || (it.keyed && it.right != nil) {
		it.delete(txn)
	}
}

func (it *Item) delete(txn *Txn) {
	if it.deleted {
		return
	}
	it.deleted = true
	txn.deleted[it.ID] = struct{}{}
	txn.addChanged(it.parent, it.key, it.keyed)
	if it.content.kind == contentType {
		b := it.content.branch
		for n := b.start; n != nil; n = n.right {
			n.delete(txn)
		}
		for _, n := range b.keys {
			n.delete(txn)
		}
	}
}
