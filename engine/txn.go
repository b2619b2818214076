package engine

import (
	"github.com/pkg/errors"

	"github.com/y-crdt/yrb/rdx"
	"github.com/y-crdt/yrb/ybridge_errors"
)

// Txn batches mutations of a document. Mutations apply immediately;
// Commit fires the observers and emits the update.
type Txn struct {
	doc     *Doc
	before  rdx.VV
	deleted map[rdx.ID]struct{}
	changed map[*Branch]*changeSet
	order   []*Branch
	done    bool
}

type changeSet struct {
	seq  bool
	keys map[string]struct{}
}

func (txn *Txn) Doc() *Doc {
	return txn.doc
}

func (txn *Txn) Done() bool {
	return txn.done
}

func (txn *Txn) check(b *Branch) error {
	if txn == nil || txn.done {
		return ybridge_errors.ErrTransactionDisposed
	}
	if b != nil && b.doc != txn.doc {
		return ybridge_errors.ErrForeignTransaction
	}
	return nil
}

// addChanged notes a change of a type that existed before the transaction.
func (txn *Txn) addChanged(b *Branch, key string, keyed bool) {
	if b.item != nil && (b.item.deleted || !txn.before.Covers(b.item.ID)) {
		return
	}
	cs, ok := txn.changed[b]
	if !ok {
		cs = &changeSet{keys: make(map[string]struct{})}
		txn.changed[b] = cs
		txn.order = append(txn.order, b)
	}
	if keyed {
		cs.keys[key] = struct{}{}
	} else {
		cs.seq = true
	}
}

func (txn *Txn) adds(it *Item) bool {
	return !txn.before.Covers(it.ID)
}

func (txn *Txn) deletes(it *Item) bool {
	_, ok := txn.deleted[it.ID]
	return ok
}

// GetOrInsert returns the root type of the given name, creating it on
// first use. A root first seen in a remote update takes the kind of its
// first local use.
func (txn *Txn) GetOrInsert(name string, kind Kind) (*Branch, error) {
	if err := txn.check(nil); err != nil {
		return nil, err
	}
	if !kind.valid() {
		return nil, errors.Wrapf(ybridge_errors.ErrKindMismatch, "root %q of kind %s", name, kind)
	}
	b := txn.doc.root(name)
	switch b.kind {
	case KindUndefined:
		b.kind = kind
		if kind == KindXmlElement {
			b.tag = name
		}
	case kind:
	default:
		return nil, errors.Wrapf(ybridge_errors.ErrKindMismatch, "root %q is %s, not %s", name, b.kind, kind)
	}
	return b, nil
}

// StateVector of the document as seen inside the transaction.
func (txn *Txn) StateVector() rdx.VV {
	return txn.doc.stateVector()
}

func (txn *Txn) EncodeStateVector() []byte {
	return txn.doc.stateVector().TLV()
}

// Commit fires the observers of every type changed by the transaction,
// in the order the types were first touched, then hands the update to
// the document update observers.
func (txn *Txn) Commit() {
	if txn.done {
		return
	}
	for _, b := range txn.order {
		if b.item != nil && b.item.deleted {
			continue
		}
		b.fire(&Event{Target: b, txn: txn, changes: txn.changed[b]})
	}
	update := txn.encodeOwnUpdate()
	txn.done = true
	txn.doc.release(txn)
	if update != nil {
		txn.doc.emitUpdate(update)
	}
}

// Free ends the transaction without running the type observers. The
// mutations were applied eagerly, so their update is still emitted:
// stores and peers must see them before any later update built on top.
func (txn *Txn) Free() {
	if txn.done {
		return
	}
	update := txn.encodeOwnUpdate()
	txn.done = true
	txn.doc.release(txn)
	if update != nil {
		txn.doc.emitUpdate(update)
	}
}

// Changed tells whether the transaction added or removed anything so far.
func (txn *Txn) Changed() bool {
	return len(txn.deleted) > 0 || !txn.before.Seen(txn.doc.stateVector())
}
