package yrb

import (
	"github.com/y-crdt/yrb/engine"
	"github.com/y-crdt/yrb/rdx"
	"github.com/y-crdt/yrb/ybridge_errors"
)

type Change = engine.Change

const ChangeAdded = engine.ChangeAdded

// Diff is a run of text content sharing the same formatting.
type Diff struct {
	Insert     any
	Attributes map[string]any
	Change     *Change
}

// Text is a handle to shared rich text. Indexes count code points, or
// UTF-16 code units when the document was made with OffsetUTF16.
type Text struct {
	shared
}

func (t *Text) insert(tx *Transaction, index uint32, s string, attrs any, inherit bool) error {
	var at rdx.Attrs
	if !inherit {
		var err error
		if at, err = ToAttrs(attrs); err != nil {
			return err
		}
	}
	return tx.with(t.doc, func(txn *engine.Txn) error {
		return t.b.InsertText(txn, index, s, at)
	})
}

// Insert inserts a string taking over the formatting at index.
func (t *Text) Insert(tx *Transaction, index uint32, s string) error {
	return t.insert(tx, index, s, nil, true)
}

// InsertWithAttributes inserts a string formatted with exactly attrs.
func (t *Text) InsertWithAttributes(tx *Transaction, index uint32, s string, attrs any) error {
	return t.insert(tx, index, s, attrs, false)
}

func (t *Text) insertEmbed(tx *Transaction, index uint32, value any, attrs any, inherit bool) error {
	v, err := ToAny(value)
	if err != nil {
		return err
	}
	var at rdx.Attrs
	if !inherit {
		if at, err = ToAttrs(attrs); err != nil {
			return err
		}
	}
	return tx.with(t.doc, func(txn *engine.Txn) error {
		return t.b.InsertEmbed(txn, index, v, at)
	})
}

// InsertEmbed inserts a plain value inline; it takes one offset unit.
func (t *Text) InsertEmbed(tx *Transaction, index uint32, value any) error {
	return t.insertEmbed(tx, index, value, nil, true)
}

func (t *Text) InsertEmbedWithAttributes(tx *Transaction, index uint32, value any, attrs any) error {
	return t.insertEmbed(tx, index, value, attrs, false)
}

// Push appends a string.
func (t *Text) Push(tx *Transaction, s string) error {
	return tx.with(t.doc, func(txn *engine.Txn) error {
		n, err := t.b.Len(txn)
		if err != nil {
			return err
		}
		return t.b.InsertText(txn, n, s, nil)
	})
}

// RemoveRange deletes length units from index; a zero length does nothing.
func (t *Text) RemoveRange(tx *Transaction, index, length uint32) error {
	return tx.with(t.doc, func(txn *engine.Txn) error {
		return t.b.RemoveText(txn, index, length)
	})
}

// Format applies attrs to a range; a nil attribute value removes it.
func (t *Text) Format(tx *Transaction, index, length uint32, attrs any) error {
	at, err := ToAttrs(attrs)
	if err != nil {
		return err
	}
	return tx.with(t.doc, func(txn *engine.Txn) error {
		return t.b.Format(txn, index, length, at)
	})
}

// String is the text without embeds and formatting.
func (t *Text) String(tx *Transaction) (string, error) {
	return withTx(tx, t.doc, t.b.TextString)
}

func (t *Text) diff(tx *Transaction, since rdx.VV) ([]Diff, error) {
	runs, err := withTx(tx, t.doc, func(txn *engine.Txn) ([]engine.Diff, error) {
		return t.b.Diff(txn, since)
	})
	if err != nil {
		return nil, err
	}
	diffs := make([]Diff, len(runs))
	for i, r := range runs {
		diffs[i] = Diff{
			Insert:     fromOut(t.doc, r.Insert),
			Attributes: FromAttrs(r.Attributes),
			Change:     r.Change,
		}
	}
	return diffs, nil
}

// Diff lists the content as formatted runs.
func (t *Text) Diff(tx *Transaction) ([]Diff, error) {
	return t.diff(tx, nil)
}

// DiffSince is Diff with every run unknown to the state vector sv
// annotated as added.
func (t *Text) DiffSince(tx *Transaction, sv []byte) ([]Diff, error) {
	vv, err := rdx.VVFromTLV(sv)
	if err != nil {
		return nil, ybridge_errors.Decode(err, "state vector")
	}
	return t.diff(tx, vv)
}

// Observe registers fn to receive the text changes of every commit.
func (t *Text) Observe(fn func(delta []TextDelta)) Subscription {
	return t.observeText("text", fn)
}
