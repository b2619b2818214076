package engine

import (
	"slices"
	"sync"

	"github.com/y-crdt/yrb/rdx"
	"github.com/y-crdt/yrb/utils"
	"github.com/y-crdt/yrb/ybridge_errors"
)

// Doc is a replicated document: a set of named root shared types plus
// the history of every item ever inserted into them.
//
// A Doc allows one transaction at a time. Everything a transaction
// touches is owned by it until Commit or Free, so Doc methods other than
// Transact and the update observer registry must not be called
// concurrently with an open transaction.
type Doc struct {
	opts Options
	log  utils.Logger

	lock sync.Mutex
	txn  *Txn

	roots  map[string]*Branch
	blocks map[uint64][]*Item

	pending        []itemRecord
	pendingDeletes []delRange

	updMu      sync.Mutex
	updSubs    []updateSub
	lastUpdSub uint32
}

type updateSub struct {
	id uint32
	fn func(update []byte)
}

func NewDoc(opts Options) *Doc {
	opts.SetDefaults()
	return &Doc{
		opts:   opts,
		log:    opts.Logger,
		roots:  make(map[string]*Branch),
		blocks: make(map[uint64][]*Item),
	}
}

func (d *Doc) ClientID() uint64 {
	return d.opts.ClientID
}

func (d *Doc) OffsetKind() OffsetKind {
	return d.opts.OffsetKind
}

// Transact opens the only writable transaction of the document.
func (d *Doc) Transact() (*Txn, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.txn != nil {
		return nil, ybridge_errors.ErrTransactionOpen
	}
	txn := &Txn{
		doc:     d,
		before:  d.stateVector(),
		deleted: make(map[rdx.ID]struct{}),
		changed: make(map[*Branch]*changeSet),
	}
	d.txn = txn
	return txn, nil
}

func (d *Doc) release(txn *Txn) {
	d.lock.Lock()
	if d.txn == txn {
		d.txn = nil
	}
	d.lock.Unlock()
}

// Busy tells whether a transaction is open.
func (d *Doc) Busy() bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.txn != nil
}

// ObserveUpdate registers a callback receiving the encoded update of
// every transaction that changed the document.
func (d *Doc) ObserveUpdate(fn func(update []byte)) uint32 {
	d.updMu.Lock()
	defer d.updMu.Unlock()
	d.lastUpdSub++
	d.updSubs = append(d.updSubs, updateSub{d.lastUpdSub, fn})
	return d.lastUpdSub
}

func (d *Doc) UnobserveUpdate(id uint32) bool {
	d.updMu.Lock()
	defer d.updMu.Unlock()
	i := slices.IndexFunc(d.updSubs, func(s updateSub) bool { return s.id == id })
	if i < 0 {
		return false
	}
	d.updSubs = slices.Delete(d.updSubs, i, i+1)
	return true
}

func (d *Doc) emitUpdate(update []byte) {
	d.updMu.Lock()
	subs := slices.Clone(d.updSubs)
	d.updMu.Unlock()
	for _, s := range subs {
		s.fn(update)
	}
}

func (d *Doc) stateVector() rdx.VV {
	vv := make(rdx.VV, len(d.blocks))
	for client, items := range d.blocks {
		vv[client] = uint64(len(items))
	}
	return vv
}

func (d *Doc) nextID() rdx.ID {
	client := d.opts.ClientID
	return rdx.ID{Client: client, Clock: uint64(len(d.blocks[client]))}
}

func (d *Doc) addItem(it *Item) {
	d.blocks[it.ID.Client] = append(d.blocks[it.ID.Client], it)
}

func (d *Doc) item(id rdx.ID) *Item {
	items := d.blocks[id.Client]
	if id.Clock >= uint64(len(items)) {
		return nil
	}
	return items[id.Clock]
}

func (d *Doc) root(name string) *Branch {
	b, ok := d.roots[name]
	if !ok {
		b = newBranch(d, KindUndefined)
		b.name = name
		d.roots[name] = b
	}
	return b
}

// RootNames lists the names of root types, sorted.
func (d *Doc) RootNames() []string {
	names := make([]string, 0, len(d.roots))
	for name := range d.roots {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
