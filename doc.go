package yrb

import (
	"github.com/cespare/xxhash"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/y-crdt/yrb/engine"
	"github.com/y-crdt/yrb/utils"
	"github.com/y-crdt/yrb/ybridge_errors"
)

type OffsetKind = engine.OffsetKind

const (
	OffsetUTF32 = engine.OffsetUTF32
	OffsetUTF16 = engine.OffsetUTF16
)

type Options struct {
	// ClientID identifies the replica in every item it creates. Zero
	// derives one from GUID.
	ClientID   uint64
	OffsetKind OffsetKind
	GUID       string
	Logger     utils.Logger
}

func (o *Options) SetDefaults() {
	if o.GUID == "" {
		o.GUID = uuid.NewString()
	}
	if o.ClientID == 0 {
		o.ClientID = xxhash.Sum64([]byte(o.GUID)) & engine.ClientMask
	}
	if o.Logger == nil {
		o.Logger = utils.NopLogger()
	}
}

type Option func(o *Options)

func WithClientID(id uint64) Option {
	return func(o *Options) { o.ClientID = id }
}

func WithOffsetKind(kind OffsetKind) Option {
	return func(o *Options) { o.OffsetKind = kind }
}

func WithGUID(guid string) Option {
	return func(o *Options) { o.GUID = guid }
}

func WithLogger(log utils.Logger) Option {
	return func(o *Options) { o.Logger = log }
}

// Document owns the replicated state and hands out transactions and
// container handles.
type Document struct {
	opts Options
	doc  *engine.Doc
	log  utils.Logger
}

func NewDocument(opts ...Option) *Document {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	o.SetDefaults()
	return &Document{
		opts: o,
		log:  o.Logger,
		doc: engine.NewDoc(engine.Options{
			ClientID:   o.ClientID,
			OffsetKind: o.OffsetKind,
			Logger:     o.Logger,
		}),
	}
}

func (d *Document) ClientID() uint64 { return d.doc.ClientID() }

func (d *Document) GUID() string { return d.opts.GUID }

func (d *Document) OffsetKind() OffsetKind { return d.doc.OffsetKind() }

// Transact opens a transaction. Only one may be open at a time; the
// handle must be committed or freed before the next one.
func (d *Document) Transact() (*Transaction, error) {
	txn, err := d.doc.Transact()
	if err != nil {
		TransactionCount.WithLabelValues("conflict").Inc()
		d.log.Debug("transaction is already open", "client", d.ClientID())
		return nil, err
	}
	TransactionCount.WithLabelValues("opened").Inc()
	return &Transaction{doc: d, txn: txn}, nil
}

// Transaction runs fn in a new transaction and commits it, even when fn
// fails, unless fn disposed of the handle itself.
func (d *Document) Transaction(fn func(tx *Transaction) error) error {
	tx, err := d.Transact()
	if err != nil {
		return err
	}
	ferr := fn(tx)
	if !tx.Disposed() {
		if err = tx.Commit(); err != nil {
			return err
		}
	}
	return ferr
}

func transactValue[T any](d *Document, fn func(tx *Transaction) (T, error)) (res T, err error) {
	err = d.Transaction(func(tx *Transaction) (err error) {
		res, err = fn(tx)
		return
	})
	return
}

func (d *Document) GetArray(name string) (*Array, error) {
	return transactValue(d, func(tx *Transaction) (*Array, error) { return tx.GetArray(name) })
}

func (d *Document) GetMap(name string) (*Map, error) {
	return transactValue(d, func(tx *Transaction) (*Map, error) { return tx.GetMap(name) })
}

func (d *Document) GetText(name string) (*Text, error) {
	return transactValue(d, func(tx *Transaction) (*Text, error) { return tx.GetText(name) })
}

func (d *Document) GetXmlElement(name string) (*XmlElement, error) {
	return transactValue(d, func(tx *Transaction) (*XmlElement, error) { return tx.GetXmlElement(name) })
}

func (d *Document) GetXmlFragment(name string) (*XmlFragment, error) {
	return transactValue(d, func(tx *Transaction) (*XmlFragment, error) { return tx.GetXmlFragment(name) })
}

func (d *Document) GetXmlText(name string) (*XmlText, error) {
	return transactValue(d, func(tx *Transaction) (*XmlText, error) { return tx.GetXmlText(name) })
}

// StateVector encodes what the document has seen.
func (d *Document) StateVector() ([]byte, error) {
	return transactValue(d, (*Transaction).StateVector)
}

// Diff encodes what a peer with the given state vector is missing; a nil
// state vector yields the whole document.
func (d *Document) Diff(sv []byte) ([]byte, error) {
	return transactValue(d, func(tx *Transaction) ([]byte, error) { return tx.EncodeDiff(sv) })
}

// Sync applies a remote update.
func (d *Document) Sync(update []byte) error {
	err := d.Transaction(func(tx *Transaction) error { return tx.ApplyUpdate(update) })
	if err != nil && !errors.Is(err, ybridge_errors.ErrTransactionState) {
		d.log.Warn("sync failed", "client", d.ClientID(), "err", err)
	}
	return err
}

// ObserveUpdate registers fn to receive the encoded update of every
// commit or free that changed the document.
func (d *Document) ObserveUpdate(fn func(update []byte)) Subscription {
	return Subscription(d.doc.ObserveUpdate(fn))
}

func (d *Document) UnobserveUpdate(sub Subscription) {
	d.doc.UnobserveUpdate(uint32(sub))
}
