package engine

import (
	"strings"

	"github.com/y-crdt/yrb/rdx"
	"github.com/y-crdt/yrb/ybridge_errors"
)

// textPos is a cursor between two items of a text, together with the
// formatting in effect at that point.
type textPos struct {
	left, right *Item
	index       uint32
	attrs       rdx.Attrs
	offsets     OffsetKind
}

func updateAttrs(attrs rdx.Attrs, c content) {
	if c.value.IsNull() {
		delete(attrs, c.key)
	} else {
		attrs[c.key] = c.value
	}
}

func attrOrNull(attrs rdx.Attrs, key string) rdx.Any {
	if v, ok := attrs[key]; ok {
		return v
	}
	return rdx.AnyNull()
}

func (p *textPos) forward() {
	r := p.right
	if r == nil {
		return
	}
	if !r.deleted {
		if r.content.kind == contentFormat {
			updateAttrs(p.attrs, r.content)
		} else {
			p.index += r.length(p.offsets)
		}
	}
	p.left = r
	p.right = r.right
}

// findPosition stops right after the count-th unit, before any formatting
// markers that follow it. A count that falls inside a surrogate pair
// moves past the whole character.
func (b *Branch) findPosition(count uint32) *textPos {
	p := &textPos{right: b.start, attrs: rdx.Attrs{}, offsets: b.doc.opts.OffsetKind}
	for p.right != nil && count > 0 {
		r := p.right
		if !r.deleted && r.content.kind != contentFormat {
			l := r.length(p.offsets)
			if count < l {
				count = 0
			} else {
				count -= l
			}
		}
		p.forward()
	}
	return p
}

func (b *Branch) textCheck(txn *Txn, index, length uint32) error {
	if err := txn.check(b); err != nil {
		return err
	}
	if !b.kind.isText() {
		return ybridge_errors.ErrKindMismatch
	}
	if n := b.seqLen(); index > n || index+length > n || index+length < index {
		return ybridge_errors.OutOfBounds(index, length, n)
	}
	return nil
}

func (b *Branch) insertAt(txn *Txn, p *textPos, c content) {
	it := b.newItem(txn, p.left, p.right, c)
	p.right = it
	p.forward()
}

// minimizeAttributeChanges skips the markers that already set what the
// insertion wants.
func (p *textPos) minimizeAttributeChanges(attrs rdx.Attrs) {
	for p.right != nil {
		r := p.right
		if !r.deleted && !(r.content.kind == contentFormat &&
			attrOrNull(attrs, r.content.key).Equal(r.content.value)) {
			break
		}
		p.forward()
	}
}

// insertAttributes puts markers for every attribute that differs from the
// current formatting and returns the values to restore afterwards.
func (b *Branch) insertAttributes(txn *Txn, p *textPos, attrs rdx.Attrs) rdx.Attrs {
	negated := rdx.Attrs{}
	for _, key := range attrs.Keys() {
		val := attrs[key]
		cur := attrOrNull(p.attrs, key)
		if cur.Equal(val) {
			continue
		}
		negated[key] = cur
		b.insertAt(txn, p, content{kind: contentFormat, key: key, value: val})
	}
	return negated
}

func (b *Branch) insertNegatedAttributes(txn *Txn, p *textPos, negated rdx.Attrs) {
	for p.right != nil {
		r := p.right
		if !r.deleted {
			if r.content.kind != contentFormat {
				break
			}
			neg, ok := negated[r.content.key]
			if !ok || !neg.Equal(r.content.value) {
				break
			}
			delete(negated, r.content.key)
		}
		p.forward()
	}
	for _, key := range negated.Keys() {
		b.insertAt(txn, p, content{kind: contentFormat, key: key, value: negated[key]})
	}
}

// insertContents inserts at index. Nil attrs inherit the formatting in
// effect at index; otherwise every current attribute not named in attrs
// is cleared for the inserted content.
func (b *Branch) insertContents(txn *Txn, index uint32, contents []content, attrs rdx.Attrs) error {
	if err := b.textCheck(txn, index, 0); err != nil {
		return err
	}
	p := b.findPosition(index)
	if attrs == nil {
		attrs = p.attrs.Clone()
	} else {
		attrs = attrs.Clone()
		for key := range p.attrs {
			if _, ok := attrs[key]; !ok {
				attrs[key] = rdx.AnyNull()
			}
		}
	}
	p.minimizeAttributeChanges(attrs)
	negated := b.insertAttributes(txn, p, attrs)
	for _, c := range contents {
		b.insertAt(txn, p, c)
	}
	b.insertNegatedAttributes(txn, p, negated)
	return nil
}

func runeContents(s string) []content {
	contents := make([]content, 0, len(s))
	for _, r := range s {
		contents = append(contents, content{kind: contentRune, r: r})
	}
	return contents
}

// InsertText inserts a string; see insertContents for attrs.
func (b *Branch) InsertText(txn *Txn, index uint32, s string, attrs rdx.Attrs) error {
	if s == "" {
		return b.textCheck(txn, index, 0)
	}
	return b.insertContents(txn, index, runeContents(s), attrs)
}

// InsertEmbed inserts a plain value inline, taking one offset unit.
func (b *Branch) InsertEmbed(txn *Txn, index uint32, v rdx.Any, attrs rdx.Attrs) error {
	return b.insertContents(txn, index, []content{{kind: contentEmbed, value: v}}, attrs)
}

// RemoveText deletes length units starting at index.
func (b *Branch) RemoveText(txn *Txn, index, length uint32) error {
	if err := b.textCheck(txn, index, length); err != nil {
		return err
	}
	p := b.findPosition(index)
	for length > 0 && p.right != nil {
		r := p.right
		if !r.deleted && r.content.kind != contentFormat {
			l := r.length(p.offsets)
			if length < l {
				length = 0
			} else {
				length -= l
			}
			r.delete(txn)
		}
		p.forward()
	}
	return nil
}

// Format applies attrs to a range. A null attribute value removes that
// formatting.
func (b *Branch) Format(txn *Txn, index, length uint32, attrs rdx.Attrs) error {
	if err := b.textCheck(txn, index, length); err != nil {
		return err
	}
	if len(attrs) == 0 {
		return nil
	}
	p := b.findPosition(index)
	negated := b.insertAttributes(txn, p, attrs)
loop:
	for p.right != nil && (length > 0 || (len(negated) > 0 &&
		(p.right.deleted || p.right.content.kind == contentFormat))) {
		r := p.right
		if !r.deleted {
			if r.content.kind == contentFormat {
				if want, ok := attrs[r.content.key]; ok {
					if want.Equal(r.content.value) {
						delete(negated, r.content.key)
					} else {
						if length == 0 {
							break loop
						}
						negated[r.content.key] = r.content.value
					}
					r.delete(txn)
				}
			} else {
				l := r.length(p.offsets)
				if length < l {
					length = 0
				} else {
					length -= l
				}
			}
		}
		p.forward()
	}
	b.insertNegatedAttributes(txn, p, negated)
	return nil
}

// TextString is the text content; embeds and formatting are left out.
func (b *Branch) TextString(txn *Txn) (string, error) {
	if err := txn.check(b); err != nil {
		return "", err
	}
	var sb strings.Builder
	for it := b.start; it != nil; it = it.right {
		if !it.deleted && it.content.kind == contentRune {
			sb.WriteRune(it.content.r)
		}
	}
	return sb.String(), nil
}

type ChangeKind byte

const (
	ChangeAdded ChangeKind = iota + 1
	ChangeRemoved
)

// Change annotates a diff run with where it came from.
type Change struct {
	Kind ChangeKind
	ID   rdx.ID
}

// Diff is a run of content sharing the same formatting.
type Diff struct {
	Insert     Out
	Attributes rdx.Attrs
	Change     *Change
}

// Diff lists the content as formatted runs. With a non-nil since vector,
// runs unknown to it are annotated as added.
func (b *Branch) Diff(txn *Txn, since rdx.VV) ([]Diff, error) {
	if err := txn.check(b); err != nil {
		return nil, err
	}
	var diffs []Diff
	var sb strings.Builder
	var runChange *Change
	var runAttrs rdx.Attrs
	attrs := rdx.Attrs{}
	snapshot := func() rdx.Attrs {
		if len(attrs) == 0 {
			return nil
		}
		return attrs.Clone()
	}
	pack := func() {
		if sb.Len() == 0 {
			return
		}
		diffs = append(diffs, Diff{
			Insert:     Out{Value: rdx.AnyString(sb.String())},
			Attributes: runAttrs,
			Change:     runChange,
		})
		sb.Reset()
	}
	for it := b.start; it != nil; it = it.right {
		if it.deleted {
			continue
		}
		var ch *Change
		if since != nil && !since.Covers(it.ID) {
			ch = &Change{Kind: ChangeAdded, ID: it.ID}
		}
		switch it.content.kind {
		case contentRune:
			if sb.Len() > 0 && ((ch == nil) != (runChange == nil) || !runAttrs.Equal(attrs)) {
				pack()
			}
			if sb.Len() == 0 {
				runChange, runAttrs = ch, snapshot()
			}
			sb.WriteRune(it.content.r)
		case contentFormat:
			updateAttrs(attrs, it.content)
		default:
			pack()
			diffs = append(diffs, Diff{Insert: it.out(), Attributes: snapshot(), Change: ch})
		}
	}
	pack()
	return diffs, nil
}
