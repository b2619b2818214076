package yrb

import (
	"github.com/y-crdt/yrb/engine"
	"github.com/y-crdt/yrb/rdx"
)

// xmlNode holds what fragments and elements share: a list of children.
type xmlNode struct {
	shared
}

// Get returns the child at index, nil when there is none.
func (x xmlNode) Get(tx *Transaction, index uint32) (Container, error) {
	return withTx(tx, x.doc, func(txn *engine.Txn) (Container, error) {
		n, err := x.b.Len(txn)
		if err != nil || index >= n {
			return nil, err
		}
		out, err := x.b.Get(txn, index)
		if err != nil {
			return nil, err
		}
		return xmlContainer(x.doc, out.Branch), nil
	})
}

func (x xmlNode) insertChild(tx *Transaction, index uint32, kind Kind, tag string, back bool) (Container, error) {
	return withTx(tx, x.doc, func(txn *engine.Txn) (Container, error) {
		if back {
			n, err := x.b.Len(txn)
			if err != nil {
				return nil, err
			}
			index = n
		}
		b, err := x.b.InsertType(txn, index, kind, tag)
		if err != nil {
			return nil, err
		}
		return newContainer(x.doc, b), nil
	})
}

func (x xmlNode) element(c Container, err error) (*XmlElement, error) {
	if err != nil {
		return nil, err
	}
	return c.(*XmlElement), nil
}

func (x xmlNode) text(c Container, err error) (*XmlText, error) {
	if err != nil {
		return nil, err
	}
	return c.(*XmlText), nil
}

// InsertElement inserts a new element with the given tag at index.
func (x xmlNode) InsertElement(tx *Transaction, index uint32, tag string) (*XmlElement, error) {
	return x.element(x.insertChild(tx, index, KindXmlElement, tag, false))
}

func (x xmlNode) PushElementBack(tx *Transaction, tag string) (*XmlElement, error) {
	return x.element(x.insertChild(tx, 0, KindXmlElement, tag, true))
}

func (x xmlNode) PushElementFront(tx *Transaction, tag string) (*XmlElement, error) {
	return x.element(x.insertChild(tx, 0, KindXmlElement, tag, false))
}

// InsertText inserts a new empty text node at index.
func (x xmlNode) InsertText(tx *Transaction, index uint32) (*XmlText, error) {
	return x.text(x.insertChild(tx, index, KindXmlText, "", false))
}

func (x xmlNode) PushTextBack(tx *Transaction) (*XmlText, error) {
	return x.text(x.insertChild(tx, 0, KindXmlText, "", true))
}

func (x xmlNode) PushTextFront(tx *Transaction) (*XmlText, error) {
	return x.text(x.insertChild(tx, 0, KindXmlText, "", false))
}

// RemoveRange deletes length children from index.
func (x xmlNode) RemoveRange(tx *Transaction, index, length uint32) error {
	return tx.with(x.doc, func(txn *engine.Txn) error {
		return x.b.Remove(txn, index, length)
	})
}

func (x xmlNode) FirstChild(tx *Transaction) (Container, error) {
	return withTx(tx, x.doc, func(txn *engine.Txn) (Container, error) {
		b, err := x.b.FirstChild(txn)
		return xmlContainer(x.doc, b), err
	})
}

// Successors lists all the nested nodes, depth first.
func (x xmlNode) Successors(tx *Transaction) ([]Container, error) {
	return withTx(tx, x.doc, func(txn *engine.Txn) ([]Container, error) {
		bs, err := x.b.Successors(txn)
		return x.containers(bs), err
	})
}

// Parent is nil for root nodes.
func (x xmlNode) Parent() Container {
	return x.parent()
}

// String renders the node as markup.
func (x xmlNode) String(tx *Transaction) (string, error) {
	return withTx(tx, x.doc, x.b.XmlString)
}

func (s shared) parent() Container {
	return xmlContainer(s.doc, s.b.Parent())
}

func (s shared) containers(bs []*engine.Branch) []Container {
	cs := make([]Container, len(bs))
	for i, b := range bs {
		cs[i] = xmlContainer(s.doc, b)
	}
	return cs
}

func (s shared) nextSibling(tx *Transaction) (Container, error) {
	return withTx(tx, s.doc, func(txn *engine.Txn) (Container, error) {
		b, err := s.b.NextSibling(txn)
		return xmlContainer(s.doc, b), err
	})
}

func (s shared) prevSibling(tx *Transaction) (Container, error) {
	return withTx(tx, s.doc, func(txn *engine.Txn) (Container, error) {
		b, err := s.b.PrevSibling(txn)
		return xmlContainer(s.doc, b), err
	})
}

func (s shared) attributes(tx *Transaction) (map[string]string, error) {
	return withTx(tx, s.doc, func(txn *engine.Txn) (map[string]string, error) {
		attrs, err := s.b.Attributes(txn)
		if err != nil {
			return nil, err
		}
		m := make(map[string]string, len(attrs))
		for k, v := range attrs {
			m[k] = v.String()
		}
		return m, nil
	})
}

func (s shared) getAttribute(tx *Transaction, name string) (value string, ok bool, err error) {
	err = tx.with(s.doc, func(txn *engine.Txn) error {
		var out engine.Out
		out, ok, err = s.b.MapGet(txn, name)
		if ok {
			value = out.Value.String()
		}
		return err
	})
	return
}

func (s shared) insertAttribute(tx *Transaction, name, value string) error {
	return tx.with(s.doc, func(txn *engine.Txn) error {
		_, _, err := s.b.MapInsert(txn, name, rdx.AnyString(value))
		return err
	})
}

func (s shared) removeAttribute(tx *Transaction, name string) error {
	return tx.with(s.doc, func(txn *engine.Txn) error {
		_, _, err := s.b.MapRemove(txn, name)
		return err
	})
}

// XmlFragment is a handle to a shared list of XML nodes without a tag.
type XmlFragment struct {
	xmlNode
}

// Observe registers fn to receive the child changes of every commit.
func (f *XmlFragment) Observe(fn func(changes []ArrayChange)) Subscription {
	return f.observeSeq("xml_fragment", fn)
}

// XmlElement is a handle to a shared XML element.
type XmlElement struct {
	xmlNode
}

func (e *XmlElement) Tag() string {
	return e.b.Tag()
}

func (e *XmlElement) Attributes(tx *Transaction) (map[string]string, error) {
	return e.attributes(tx)
}

func (e *XmlElement) GetAttribute(tx *Transaction, name string) (string, bool, error) {
	return e.getAttribute(tx, name)
}

func (e *XmlElement) InsertAttribute(tx *Transaction, name, value string) error {
	return e.insertAttribute(tx, name, value)
}

func (e *XmlElement) RemoveAttribute(tx *Transaction, name string) error {
	return e.removeAttribute(tx, name)
}

func (e *XmlElement) NextSibling(tx *Transaction) (Container, error) {
	return e.nextSibling(tx)
}

func (e *XmlElement) PrevSibling(tx *Transaction) (Container, error) {
	return e.prevSibling(tx)
}

// Siblings lists the nodes following the element.
func (e *XmlElement) Siblings(tx *Transaction) ([]Container, error) {
	return withTx(tx, e.doc, func(txn *engine.Txn) ([]Container, error) {
		bs, err := e.b.Siblings(txn)
		return e.containers(bs), err
	})
}

// Observe registers fn to receive the child changes of every commit.
func (e *XmlElement) Observe(fn func(changes []ArrayChange)) Subscription {
	return e.observeSeq("xml_element", fn)
}

// ObserveAttributes registers fn to receive the attribute changes of
// every commit.
func (e *XmlElement) ObserveAttributes(fn func(changes map[string]MapChange)) Subscription {
	return e.observeKeys("xml_element_attributes", fn)
}

// XmlText is a handle to shared rich text living in an XML tree.
type XmlText struct {
	Text
}

func (t *XmlText) Attributes(tx *Transaction) (map[string]string, error) {
	return t.attributes(tx)
}

func (t *XmlText) GetAttribute(tx *Transaction, name string) (string, bool, error) {
	return t.getAttribute(tx, name)
}

func (t *XmlText) InsertAttribute(tx *Transaction, name, value string) error {
	return t.insertAttribute(tx, name, value)
}

func (t *XmlText) RemoveAttribute(tx *Transaction, name string) error {
	return t.removeAttribute(tx, name)
}

func (t *XmlText) Parent() Container {
	return t.parent()
}

func (t *XmlText) NextSibling(tx *Transaction) (Container, error) {
	return t.nextSibling(tx)
}

func (t *XmlText) PrevSibling(tx *Transaction) (Container, error) {
	return t.prevSibling(tx)
}

// String renders the text as markup, formatting as nested tags.
func (t *XmlText) String(tx *Transaction) (string, error) {
	return withTx(tx, t.doc, t.b.XmlString)
}

// Observe registers fn to receive the text changes of every commit.
func (t *XmlText) Observe(fn func(delta []TextDelta)) Subscription {
	return t.observeText("xml_text", fn)
}
