package engine

import (
	"slices"
	"strings"

	"github.com/y-crdt/yrb/rdx"
)

// Parent of a nested type, nil for roots.
func (b *Branch) Parent() *Branch {
	if b.item == nil {
		return nil
	}
	return b.item.parent
}

func liveType(it *Item, step func(*Item) *Item) *Branch {
	for ; it != nil; it = step(it) {
		if !it.deleted && it.content.kind == contentType {
			return it.content.branch
		}
	}
	return nil
}

func toRight(it *Item) *Item { return it.right }

func toLeft(it *Item) *Item { return it.left }

func (b *Branch) NextSibling(txn *Txn) (*Branch, error) {
	if err := txn.check(b); err != nil || b.item == nil || b.item.keyed {
		return nil, err
	}
	return liveType(b.item.right, toRight), nil
}

func (b *Branch) PrevSibling(txn *Txn) (*Branch, error) {
	if err := txn.check(b); err != nil || b.item == nil || b.item.keyed {
		return nil, err
	}
	return liveType(b.item.left, toLeft), nil
}

// Siblings lists the live siblings following b.
func (b *Branch) Siblings(txn *Txn) ([]*Branch, error) {
	var sibs []*Branch
	next, err := b.NextSibling(txn)
	for ; next != nil && err == nil; next, err = next.NextSibling(txn) {
		sibs = append(sibs, next)
	}
	return sibs, err
}

func (b *Branch) FirstChild(txn *Txn) (*Branch, error) {
	if err := txn.check(b); err != nil {
		return nil, err
	}
	return liveType(b.start, toRight), nil
}

// Successors walks all the nested XML nodes depth first, b excluded.
func (b *Branch) Successors(txn *Txn) ([]*Branch, error) {
	if err := txn.check(b); err != nil {
		return nil, err
	}
	var walk func(p *Branch, into []*Branch) []*Branch
	walk = func(p *Branch, into []*Branch) []*Branch {
		for it := p.start; it != nil; it = it.right {
			if it.deleted || it.content.kind != contentType {
				continue
			}
			child := it.content.branch
			into = append(into, child)
			if child.kind != KindXmlText {
				into = walk(child, into)
			}
		}
		return into
	}
	return walk(b, nil), nil
}

// Attributes of an XML node, the live keyed entries.
func (b *Branch) Attributes(txn *Txn) (map[string]rdx.Any, error) {
	if err := txn.check(b); err != nil {
		return nil, err
	}
	attrs := make(map[string]rdx.Any)
	for k, it := range b.keys {
		if !it.deleted && it.content.kind != contentType {
			attrs[k] = it.content.value
		}
	}
	return attrs, nil
}

// XmlString renders an XML node as markup: elements with sorted
// attributes, text formatting as nested tags.
func (b *Branch) XmlString(txn *Txn) (string, error) {
	if err := txn.check(b); err != nil {
		return "", err
	}
	var sb strings.Builder
	b.writeXml(txn, &sb)
	return sb.String(), nil
}

func (b *Branch) writeAttrs(sb *strings.Builder) {
	keys := make([]string, 0, len(b.keys))
	for k, it := range b.keys {
		if !it.deleted {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	for _, k := range keys {
		sb.WriteByte(' ')
		sb.WriteString(k)
		sb.WriteString(`="`)
		sb.WriteString(b.keys[k].out().Value.String())
		sb.WriteByte('"')
	}
}

func (b *Branch) writeXml(txn *Txn, sb *strings.Builder) {
	switch b.kind {
	case KindXmlText:
		b.writeXmlText(txn, sb)
		return
	case KindXmlElement:
		sb.WriteByte('<')
		sb.WriteString(b.tag)
		b.writeAttrs(sb)
		sb.WriteByte('>')
	}
	for it := b.start; it != nil; it = it.right {
		if it.deleted {
			continue
		}
		if it.content.kind == contentType {
			it.content.branch.writeXml(txn, sb)
		} else {
			sb.WriteString(it.out().Value.String())
		}
	}
	if b.kind == KindXmlElement {
		sb.WriteString("</")
		sb.WriteString(b.tag)
		sb.WriteByte('>')
	}
}

func (b *Branch) writeXmlText(txn *Txn, sb *strings.Builder) {
	diffs, _ := b.Diff(txn, nil)
	for _, d := range diffs {
		names := d.Attributes.Keys()
		for _, name := range names {
			sb.WriteByte('<')
			sb.WriteString(name)
			if m := d.Attributes[name]; m.Kind() == rdx.KindMap {
				attrs := m.Map()
				for _, k := range rdx.Attrs(attrs).Keys() {
					sb.WriteByte(' ')
					sb.WriteString(k)
					sb.WriteString(`="`)
					sb.WriteString(attrs[k].String())
					sb.WriteByte('"')
				}
			}
			sb.WriteByte('>')
		}
		if d.Insert.Branch != nil {
			d.Insert.Branch.writeXml(txn, sb)
		} else {
			sb.WriteString(d.Insert.Value.String())
		}
		for i := len(names) - 1; i >= 0; i-- {
			sb.WriteString("</")
			sb.WriteString(names[i])
			sb.WriteByte('>')
		}
	}
}
