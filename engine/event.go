package engine

import (
	"slices"
	"strings"

	"github.com/y-crdt/yrb/rdx"
)

// Event describes what a transaction did to one shared type. Its
// methods compute the change relative to the state before the
// transaction and are only valid while the observers run.
type Event struct {
	Target  *Branch
	txn     *Txn
	changes *changeSet
}

func (e *Event) Txn() *Txn {
	return e.txn
}

type Op byte

const (
	OpInsert Op = iota + 1
	OpRetain
	OpDelete
)

func (op Op) String() string {
	switch op {
	case OpInsert:
		return "insert"
	case OpRetain:
		return "retain"
	case OpDelete:
		return "delete"
	}
	return "?"
}

// Delta is one entry of a sequence change.
type Delta struct {
	Op     Op
	Values []Out
	Len    uint32
}

// Delta of an array or of the children of an XML node. Trailing retains
// are left out.
func (e *Event) Delta() (deltas []Delta) {
	if !e.changes.seq {
		return nil
	}
	txn := e.txn
	var cur *Delta
	flush := func() {
		if cur != nil {
			deltas = append(deltas, *cur)
			cur = nil
		}
	}
	step := func(op Op) *Delta {
		if cur == nil || cur.Op != op {
			flush()
			cur = &Delta{Op: op}
		}
		return cur
	}
	for it := e.Target.start; it != nil; it = it.right {
		if !it.countable() {
			continue
		}
		switch {
		case it.deleted:
			if txn.deletes(it) && !txn.adds(it) {
				step(OpDelete).Len++
			}
		case txn.adds(it):
			d := step(OpInsert)
			d.Values = append(d.Values, it.out())
			d.Len++
		default:
			step(OpRetain).Len++
		}
	}
	flush()
	if n := len(deltas); n > 0 && deltas[n-1].Op == OpRetain {
		deltas = deltas[:n-1]
	}
	return
}

type EntryAction byte

const (
	EntryInserted EntryAction = iota + 1
	EntryUpdated
	EntryRemoved
)

// EntryChange is the change of one key of a map or of XML attributes.
type EntryChange struct {
	Key    string
	Action EntryAction
	Old    Out
	New    Out
}

// Keys lists the changed keys, sorted.
func (e *Event) Keys() (changes []EntryChange) {
	txn := e.txn
	keys := make([]string, 0, len(e.changes.keys))
	for k := range e.changes.keys {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, key := range keys {
		it := e.Target.keys[key]
		if it == nil {
			continue
		}
		ch := EntryChange{Key: key}
		if txn.adds(it) {
			prev := it.left
			for prev != nil && txn.adds(prev) {
				prev = prev.left
			}
			prevGone := prev != nil && txn.deletes(prev)
			switch {
			case txn.deletes(it) && prevGone:
				ch.Action, ch.Old = EntryRemoved, prev.out()
			case txn.deletes(it):
				continue
			case prevGone:
				ch.Action, ch.Old, ch.New = EntryUpdated, prev.out(), it.out()
			default:
				ch.Action, ch.New = EntryInserted, it.out()
			}
		} else if txn.deletes(it) {
			ch.Action, ch.Old = EntryRemoved, it.out()
		} else {
			continue
		}
		changes = append(changes, ch)
	}
	return
}

// TextDelta is one entry of a rich text change.
type TextDelta struct {
	Op         Op
	Insert     Out
	Len        uint32
	Attributes rdx.Attrs
}

// TextDelta of a text: inserted runs carry their formatting, retained
// runs carry formatting changes, null meaning removed.
func (e *Event) TextDelta() (deltas []TextDelta) {
	if !e.changes.seq {
		return nil
	}
	txn := e.txn
	offsets := e.Target.doc.opts.OffsetKind
	var (
		op       Op
		insert   strings.Builder
		embed    *Out
		retain   uint32
		del      uint32
		current  = rdx.Attrs{}
		old      = rdx.Attrs{}
		retAttrs = rdx.Attrs{}
	)
	addOp := func() {
		switch op {
		case OpDelete:
			deltas = append(deltas, TextDelta{Op: OpDelete, Len: del})
			del = 0
		case OpInsert:
			d := TextDelta{Op: OpInsert}
			if embed != nil {
				d.Insert, d.Len = *embed, 1
				embed = nil
			} else {
				s := insert.String()
				d.Insert = Out{Value: rdx.AnyString(s)}
				for _, r := range s {
					d.Len += runeLen(r, offsets)
				}
				insert.Reset()
			}
			if len(current) > 0 {
				d.Attributes = current.Clone()
			}
			deltas = append(deltas, d)
		case OpRetain:
			d := TextDelta{Op: OpRetain, Len: retain}
			if len(retAttrs) > 0 {
				d.Attributes = retAttrs.Clone()
			}
			deltas = append(deltas, d)
			retain = 0
		}
		op = 0
	}
	for it := e.Target.start; it != nil; it = it.right {
		switch it.content.kind {
		case contentFormat:
			key, value := it.content.key, it.content.value
			switch {
			case txn.adds(it):
				if !it.deleted && !attrOrNull(current, key).Equal(value) {
					if op == OpRetain {
						addOp()
					}
					if value.Equal(attrOrNull(old, key)) {
						delete(retAttrs, key)
					} else {
						retAttrs[key] = value
					}
				}
			case txn.deletes(it):
				old[key] = value
				cur := attrOrNull(current, key)
				if !cur.Equal(value) {
					if op == OpRetain {
						addOp()
					}
					retAttrs[key] = cur
				}
			case !it.deleted:
				old[key] = value
				if attr, ok := retAttrs[key]; ok && !attr.Equal(value) {
					if op == OpRetain {
						addOp()
					}
					if value.IsNull() {
						delete(retAttrs, key)
					} else {
						retAttrs[key] = value
					}
				}
			}
			if !it.deleted {
				if op == OpInsert {
					addOp()
				}
				updateAttrs(current, it.content)
			}
		case contentRune:
			switch {
			case txn.adds(it):
				if !it.deleted {
					if op != OpInsert {
						addOp()
						op = OpInsert
					}
					insert.WriteRune(it.content.r)
				}
			case txn.deletes(it):
				if op != OpDelete {
					addOp()
					op = OpDelete
				}
				del += it.length(offsets)
			case !it.deleted:
				if op != OpRetain {
					addOp()
					op = OpRetain
				}
				retain += it.length(offsets)
			}
		default:
			switch {
			case txn.adds(it):
				if !it.deleted {
					addOp()
					out := it.out()
					op, embed = OpInsert, &out
					addOp()
				}
			case txn.deletes(it):
				if op != OpDelete {
					addOp()
					op = OpDelete
				}
				del++
			case !it.deleted:
				if op != OpRetain {
					addOp()
					op = OpRetain
				}
				retain++
			}
		}
	}
	addOp()
	for n := len(deltas); n > 0; n = len(deltas) {
		last := deltas[n-1]
		if last.Op != OpRetain || len(last.Attributes) > 0 {
			break
		}
		deltas = deltas[:n-1]
	}
	return
}
