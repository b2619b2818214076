package yrb

import "github.com/y-crdt/yrb/engine"

type Kind = engine.Kind

const (
	KindArray       = engine.KindArray
	KindMap         = engine.KindMap
	KindText        = engine.KindText
	KindXmlElement  = engine.KindXmlElement
	KindXmlFragment = engine.KindXmlFragment
	KindXmlText     = engine.KindXmlText
)

// Container is a live handle to a shared type of a document. Handles are
// cheap: any number of them may refer to the same shared type, and
// observers belong to the shared type rather than to a handle.
type Container interface {
	Kind() Kind
	Len(tx *Transaction) (uint32, error)
	Unobserve(sub Subscription)
	Document() *Document
	branch() *engine.Branch
}

type shared struct {
	doc *Document
	b   *engine.Branch
}

func (s shared) Kind() Kind { return s.b.Kind() }

func (s shared) Document() *Document { return s.doc }

func (s shared) branch() *engine.Branch { return s.b }

func (s shared) Len(tx *Transaction) (n uint32, err error) {
	err = tx.with(s.doc, func(txn *engine.Txn) (err error) {
		n, err = s.b.Len(txn)
		return
	})
	return
}

// Unobserve removes an observer; unknown subscriptions are ignored.
func (s shared) Unobserve(sub Subscription) {
	s.b.Unobserve(uint32(sub))
}

// Same tells whether two handles refer to the same shared type.
func Same(a, b Container) bool {
	return a != nil && b != nil && a.branch() == b.branch()
}

// newContainer is the only place a shared type becomes a handle.
func newContainer(doc *Document, b *engine.Branch) Container {
	s := shared{doc: doc, b: b}
	switch b.Kind() {
	case engine.KindArray:
		return &Array{s}
	case engine.KindMap:
		return &Map{s}
	case engine.KindText:
		return &Text{s}
	case engine.KindXmlElement:
		return &XmlElement{xmlNode{s}}
	case engine.KindXmlFragment:
		return &XmlFragment{xmlNode{s}}
	case engine.KindXmlText:
		return &XmlText{Text{s}}
	}
	return nil
}

// xmlContainer narrows a shared type to an XML node handle, nil otherwise.
func xmlContainer(doc *Document, b *engine.Branch) Container {
	if b == nil || !b.Kind().IsXml() {
		return nil
	}
	return newContainer(doc, b)
}

// withTx is tx.with for calls that produce a value.
func withTx[T any](tx *Transaction, doc *Document, fn func(txn *engine.Txn) (T, error)) (res T, err error) {
	err = tx.with(doc, func(txn *engine.Txn) (err error) {
		res, err = fn(txn)
		return
	})
	return
}
