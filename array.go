package yrb

import (
	"github.com/y-crdt/yrb/engine"
	"github.com/y-crdt/yrb/rdx"
)

// Array is a handle to a shared sequence.
type Array struct {
	shared
}

// Get returns the element at index. Nested shared types come back as
// handles. An index past the end is a bounds error.
func (a *Array) Get(tx *Transaction, index uint32) (any, error) {
	return withTx(tx, a.doc, func(txn *engine.Txn) (any, error) {
		out, err := a.b.Get(txn, index)
		if err != nil {
			return nil, err
		}
		return fromOut(a.doc, out), nil
	})
}

// Insert places a value at index; index equal to the length appends.
func (a *Array) Insert(tx *Transaction, index uint32, value any) error {
	return a.InsertRange(tx, index, value)
}

// InsertRange places several values at index, in order.
func (a *Array) InsertRange(tx *Transaction, index uint32, values ...any) error {
	anys := make([]rdx.Any, len(values))
	for i, v := range values {
		var err error
		if anys[i], err = ToAny(v); err != nil {
			return err
		}
	}
	return tx.with(a.doc, func(txn *engine.Txn) error {
		return a.b.Insert(txn, index, anys...)
	})
}

func (a *Array) PushBack(tx *Transaction, value any) error {
	anyv, err := ToAny(value)
	if err != nil {
		return err
	}
	return tx.with(a.doc, func(txn *engine.Txn) error {
		n, err := a.b.Len(txn)
		if err != nil {
			return err
		}
		return a.b.Insert(txn, n, anyv)
	})
}

func (a *Array) PushFront(tx *Transaction, value any) error {
	return a.Insert(tx, 0, value)
}

// InsertContainer places a new nested shared type at index.
func (a *Array) InsertContainer(tx *Transaction, index uint32, kind Kind) (Container, error) {
	return withTx(tx, a.doc, func(txn *engine.Txn) (Container, error) {
		b, err := a.b.InsertType(txn, index, kind, "")
		if err != nil {
			return nil, err
		}
		return newContainer(a.doc, b), nil
	})
}

func (a *Array) Remove(tx *Transaction, index uint32) error {
	return a.RemoveRange(tx, index, 1)
}

// RemoveRange deletes length elements from index; a zero length does nothing.
func (a *Array) RemoveRange(tx *Transaction, index, length uint32) error {
	return tx.with(a.doc, func(txn *engine.Txn) error {
		return a.b.Remove(txn, index, length)
	})
}

// Each calls fn with every element in order until fn returns false.
func (a *Array) Each(tx *Transaction, fn func(index uint32, value any) bool) error {
	outs, err := withTx(tx, a.doc, a.b.Values)
	if err != nil {
		return err
	}
	for i, o := range outs {
		if !fn(uint32(i), fromOut(a.doc, o)) {
			break
		}
	}
	return nil
}

// ToSlice returns a deep copy of the contents.
func (a *Array) ToSlice(tx *Transaction) ([]any, error) {
	return withTx(tx, a.doc, func(txn *engine.Txn) ([]any, error) {
		return snapshotSlice(txn, a.b)
	})
}

// Observe registers fn to receive the changes of every commit.
func (a *Array) Observe(fn func(changes []ArrayChange)) Subscription {
	return a.observeSeq("array", fn)
}
