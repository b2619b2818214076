package engine

import (
	"slices"
	"sync"

	"github.com/y-crdt/yrb/rdx"
	"github.com/y-crdt/yrb/ybridge_errors"
)

// Branch is a shared type: a root type of a document or a type nested
// in another one. Sequence content (array elements, characters, XML
// children) is a linked list of items; keyed content (map entries, XML
// attributes) is a chain of items per key with the live one on the right.
type Branch struct {
	doc   *Doc
	kind  Kind
	name  string
	tag   string
	item  *Item
	start *Item
	keys  map[string]*Item

	obsMu     sync.Mutex
	observers []observer
	lastSub   uint32
}

type observer struct {
	id uint32
	fn func(e *Event)
}

// Out is a value read from a shared type: either a plain value or a
// nested shared type.
type Out struct {
	Value  rdx.Any
	Branch *Branch
}

func (o Out) IsBranch() bool {
	return o.Branch != nil
}

func newBranch(doc *Doc, kind Kind) *Branch {
	return &Branch{doc: doc, kind: kind, keys: make(map[string]*Item)}
}

func (b *Branch) Kind() Kind { return b.kind }

func (b *Branch) Doc() *Doc { return b.doc }

// Name of a root type, empty for nested ones.
func (b *Branch) Name() string { return b.name }

// Tag of an XML element.
func (b *Branch) Tag() string { return b.tag }

// ID of the item holding a nested type.
func (b *Branch) ID() (rdx.ID, bool) {
	if b.item == nil {
		return rdx.ID{}, false
	}
	return b.item.ID, true
}

// Deleted tells whether the type was removed from its parent.
func (b *Branch) Deleted() bool {
	return b.item != nil && b.item.deleted
}

// Observe registers fn to be called on every commit that changed the
// type. Observers run in the order of registration.
func (b *Branch) Observe(fn func(e *Event)) uint32 {
	b.obsMu.Lock()
	defer b.obsMu.Unlock()
	b.lastSub++
	b.observers = append(b.observers, observer{b.lastSub, fn})
	return b.lastSub
}

// Unobserve removes the observer; unknown ids are ignored.
func (b *Branch) Unobserve(id uint32) bool {
	b.obsMu.Lock()
	defer b.obsMu.Unlock()
	i := slices.IndexFunc(b.observers, func(o observer) bool { return o.id == id })
	if i < 0 {
		return false
	}
	b.observers = slices.Delete(b.observers, i, i+1)
	return true
}

// fire calls a snapshot of the observers, so they may (un)register.
func (b *Branch) fire(e *Event) {
	b.obsMu.Lock()
	observers := slices.Clone(b.observers)
	b.obsMu.Unlock()
	for _, o := range observers {
		o.fn(e)
	}
}

// Len is the number of elements, or the text length in offset units.
func (b *Branch) Len(txn *Txn) (n uint32, err error) {
	if err = txn.check(b); err != nil {
		return
	}
	if b.kind == KindMap {
		for _, it := range b.keys {
			if !it.deleted {
				n++
			}
		}
		return
	}
	return b.seqLen(), nil
}

func (b *Branch) seqLen() (n uint32) {
	offsets := b.doc.opts.OffsetKind
	for it := b.start; it != nil; it = it.right {
		if !it.deleted {
			n += it.length(offsets)
		}
	}
	return
}

func (b *Branch) newItem(txn *Txn, left, right *Item, c content) *Item {
	it := &Item{
		ID:          txn.doc.nextID(),
		origin:      left,
		rightOrigin: right,
		parent:      b,
		left:        left,
		right:       right,
		content:     c,
	}
	if c.kind == contentType {
		c.branch.item = it
	}
	it.integrate(txn)
	return it
}

func (b *Branch) newNested(kind Kind, tag string) content {
	nb := newBranch(b.doc, kind)
	nb.tag = tag
	return content{kind: contentType, branch: nb}
}

// visibleAfter finds the item after which position index starts:
// nil for the start of the sequence.
func (b *Branch) visibleAfter(index uint32) (left *Item, ok bool) {
	if index == 0 {
		return nil, true
	}
	for it := b.start; it != nil; it = it.right {
		if it.deleted || !it.countable() {
			continue
		}
		if index <= 1 {
			return it, true
		}
		index--
	}
	return nil, false
}

func (b *Branch) insertAfter(txn *Txn, left *Item, contents []content) *Item {
	var right *Item
	if left != nil {
		right = left.right
	} else {
		right = b.start
	}
	for _, c := range contents {
		left = b.newItem(txn, left, right, c)
	}
	return left
}

func (b *Branch) seqCheck(txn *Txn, index uint32) error {
	if err := txn.check(b); err != nil {
		return err
	}
	if n := b.seqLen(); index > n {
		return ybridge_errors.OutOfBounds(index, 0, n)
	}
	return nil
}

// Insert places plain values at index; index equal to the length appends.
func (b *Branch) Insert(txn *Txn, index uint32, values ...rdx.Any) error {
	if err := b.seqCheck(txn, index); err != nil {
		return err
	}
	contents := make([]content, len(values))
	for i, v := range values {
		contents[i] = content{kind: contentAny, value: v}
	}
	left, _ := b.visibleAfter(index)
	b.insertAfter(txn, left, contents)
	return nil
}

// InsertType places a new nested type at index and returns it.
func (b *Branch) InsertType(txn *Txn, index uint32, kind Kind, tag string) (*Branch, error) {
	if err := b.seqCheck(txn, index); err != nil {
		return nil, err
	}
	if !kind.valid() {
		return nil, ybridge_errors.ErrKindMismatch
	}
	left, _ := b.visibleAfter(index)
	it := b.insertAfter(txn, left, []content{b.newNested(kind, tag)})
	return it.content.branch, nil
}

// Get returns the element at index.
func (b *Branch) Get(txn *Txn, index uint32) (Out, error) {
	if err := txn.check(b); err != nil {
		return Out{}, err
	}
	it, ok := b.visibleAfter(index + 1)
	if !ok || it == nil {
		return Out{}, ybridge_errors.OutOfBounds(index, 0, b.seqLen())
	}
	return it.out(), nil
}

// Remove deletes n elements starting at index; n of 0 is a no-op.
func (b *Branch) Remove(txn *Txn, index, n uint32) error {
	if err := txn.check(b); err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	if size := b.seqLen(); index+n > size || index+n < index {
		return ybridge_errors.OutOfBounds(index, n, size)
	}
	left, _ := b.visibleAfter(index)
	it := b.start
	if left != nil {
		it = left.right
	}
	for ; it != nil && n > 0; it = it.right {
		if it.deleted || !it.countable() {
			continue
		}
		it.delete(txn)
		n--
	}
	return nil
}

// Values lists the live elements in order.
func (b *Branch) Values(txn *Txn) ([]Out, error) {
	if err := txn.check(b); err != nil {
		return nil, err
	}
	var outs []Out
	for it := b.start; it != nil; it = it.right {
		if !it.deleted && it.countable() {
			outs = append(outs, it.out())
		}
	}
	return outs, nil
}

// MapGet reads the live value of a key.
func (b *Branch) MapGet(txn *Txn, key string) (out Out, ok bool, err error) {
	if err = txn.check(b); err != nil {
		return
	}
	it := b.keys[key]
	if it == nil || it.deleted {
		return
	}
	return it.out(), true, nil
}

func (b *Branch) mapSet(txn *Txn, key string, c content) (prev Out, had bool, it *Item) {
	left := b.keys[key]
	if left != nil && !left.deleted {
		prev, had = left.out(), true
	}
	it = &Item{
		ID:      txn.doc.nextID(),
		origin:  left,
		parent:  b,
		key:     key,
		keyed:   true,
		left:    left,
		content: c,
	}
	if c.kind == contentType {
		c.branch.item = it
	}
	it.integrate(txn)
	return
}

// MapInsert sets a key to a plain value and returns the value it replaced.
func (b *Branch) MapInsert(txn *Txn, key string, v rdx.Any) (prev Out, had bool, err error) {
	if err = txn.check(b); err != nil {
		return
	}
	prev, had, _ = b.mapSet(txn, key, content{kind: contentAny, value: v})
	return
}

// MapInsertType sets a key to a new nested type.
func (b *Branch) MapInsertType(txn *Txn, key string, kind Kind, tag string) (*Branch, error) {
	if err := txn.check(b); err != nil {
		return nil, err
	}
	if !kind.valid() {
		return nil, ybridge_errors.ErrKindMismatch
	}
	_, _, it := b.mapSet(txn, key, b.newNested(kind, tag))
	return it.content.branch, nil
}

// MapRemove deletes a key; removing an absent key does nothing.
func (b *Branch) MapRemove(txn *Txn, key string) (prev Out, had bool, err error) {
	if err = txn.check(b); err != nil {
		return
	}
	it := b.keys[key]
	if it == nil || it.deleted {
		return
	}
	prev, had = it.out(), true
	it.delete(txn)
	return
}

// MapKeys lists the live keys, sorted.
func (b *Branch) MapKeys(txn *Txn) ([]string, error) {
	if err := txn.check(b); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(b.keys))
	for k, it := range b.keys {
		if !it.deleted {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}
