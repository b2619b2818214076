package yrb

import (
	"sync"

	"github.com/y-crdt/yrb/engine"
	"github.com/y-crdt/yrb/ybridge_errors"
)

/*
Transaction is a handle to the open transaction of a document. It can be
kept and passed around across calls; every operation borrows the native
transaction for the duration of that one call.

	Open --Commit--> Disposed
	Open --Free----> Disposed

Any call on a disposed handle fails with ErrTransactionDisposed.
*/
type Transaction struct {
	mu  sync.Mutex
	doc *Document
	txn *engine.Txn
}

func (tx *Transaction) with(doc *Document, fn func(txn *engine.Txn) error) error {
	if tx == nil {
		return ybridge_errors.ErrTransactionDisposed
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.txn == nil {
		return ybridge_errors.ErrTransactionDisposed
	}
	if doc != nil && doc != tx.doc {
		return ybridge_errors.ErrForeignTransaction
	}
	return fn(tx.txn)
}

// take empties the slot.
func (tx *Transaction) take() (*engine.Txn, error) {
	if tx == nil {
		return nil, ybridge_errors.ErrTransactionDisposed
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	txn := tx.txn
	if txn == nil {
		return nil, ybridge_errors.ErrTransactionDisposed
	}
	tx.txn = nil
	return txn, nil
}

// Commit fires the observers of the changed types, emits the update and
// disposes the handle. Observers run after the handle is disposed.
func (tx *Transaction) Commit() error {
	txn, err := tx.take()
	if err != nil {
		return err
	}
	txn.Commit()
	TransactionCount.WithLabelValues("committed").Inc()
	return nil
}

// Free disposes the handle without running the type observers. Mutations
// made so far stay in the document and still reach the update observers.
func (tx *Transaction) Free() error {
	txn, err := tx.take()
	if err != nil {
		return err
	}
	txn.Free()
	TransactionCount.WithLabelValues("freed").Inc()
	return nil
}

func (tx *Transaction) Disposed() bool {
	if tx == nil {
		return true
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.txn == nil
}

func (tx *Transaction) Document() *Document {
	return tx.doc
}

// StateVector encodes what the document has seen.
func (tx *Transaction) StateVector() ([]byte, error) {
	return withTx(tx, nil, func(txn *engine.Txn) ([]byte, error) {
		return txn.EncodeStateVector(), nil
	})
}

// EncodeDiff encodes what a peer with the given state vector is missing.
func (tx *Transaction) EncodeDiff(sv []byte) ([]byte, error) {
	return withTx(tx, nil, func(txn *engine.Txn) ([]byte, error) {
		return txn.EncodeDiff(sv)
	})
}

// ApplyUpdate integrates an update produced by another replica.
func (tx *Transaction) ApplyUpdate(update []byte) error {
	return tx.with(nil, func(txn *engine.Txn) error {
		UpdateBytes.Observe(float64(len(update)))
		if err := txn.ApplyUpdate(update); err != nil {
			UpdatesApplied.WithLabelValues("malformed").Inc()
			return err
		}
		if items, deletes := txn.Doc().Pending(); items+deletes > 0 {
			UpdatesApplied.WithLabelValues("pending").Inc()
		} else {
			UpdatesApplied.WithLabelValues("ok").Inc()
		}
		return nil
	})
}

func (tx *Transaction) getOrInsert(name string, kind Kind) (Container, error) {
	return withTx(tx, nil, func(txn *engine.Txn) (Container, error) {
		b, err := txn.GetOrInsert(name, kind)
		if err != nil {
			return nil, err
		}
		return newContainer(tx.doc, b), nil
	})
}

func (tx *Transaction) GetArray(name string) (*Array, error) {
	c, err := tx.getOrInsert(name, KindArray)
	if err != nil {
		return nil, err
	}
	return c.(*Array), nil
}

func (tx *Transaction) GetMap(name string) (*Map, error) {
	c, err := tx.getOrInsert(name, KindMap)
	if err != nil {
		return nil, err
	}
	return c.(*Map), nil
}

func (tx *Transaction) GetText(name string) (*Text, error) {
	c, err := tx.getOrInsert(name, KindText)
	if err != nil {
		return nil, err
	}
	return c.(*Text), nil
}

func (tx *Transaction) GetXmlElement(name string) (*XmlElement, error) {
	c, err := tx.getOrInsert(name, KindXmlElement)
	if err != nil {
		return nil, err
	}
	return c.(*XmlElement), nil
}

func (tx *Transaction) GetXmlFragment(name string) (*XmlFragment, error) {
	c, err := tx.getOrInsert(name, KindXmlFragment)
	if err != nil {
		return nil, err
	}
	return c.(*XmlFragment), nil
}

func (tx *Transaction) GetXmlText(name string) (*XmlText, error) {
	c, err := tx.getOrInsert(name, KindXmlText)
	if err != nil {
		return nil, err
	}
	return c.(*XmlText), nil
}
