/*
Package store keeps documents on disk as logs of updates in pebble.

Every committed update of an attached document is appended to its log;
loading replays the log into a fresh document. Compact replaces a log
with a single update holding the whole document.

# Keys

	U <name> 0x00 <seq, 8 bytes big-endian>  ->  update

Sequence numbers grow per document and are never reused, compaction
included. The last number of recently written logs is cached; a miss
reads it back from the last key. Deleting a log starts it over.
*/
package store

import (
	"context"
	"encoding/binary"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/y-crdt/yrb"
	"github.com/y-crdt/yrb/protocol"
	"github.com/y-crdt/yrb/utils"
)

var (
	ErrBadName = errors.New("document name is empty or holds a zero byte")
	ErrClosed  = errors.New("store is closed")
)

type Options struct {
	pebble.Options

	Logger utils.Logger
	// SyncWrites makes every append durable before it returns.
	SyncWrites bool
	// QueueLimit bounds the bytes buffered for attached documents.
	QueueLimit int
	// BatchSize is how many buffered bytes go into one pebble batch.
	BatchSize int
	// SeqCacheSize is how many logs keep their last sequence number
	// in memory.
	SeqCacheSize int
}

func (o *Options) SetDefaults() {
	if o.Logger == nil {
		o.Logger = utils.NopLogger()
	}
	if o.QueueLimit == 0 {
		o.QueueLimit = 1 << 24
	}
	if o.BatchSize == 0 {
		o.BatchSize = 1 << 16
	}
	if o.SeqCacheSize <= 0 {
		o.SeqCacheSize = 1 << 12
	}
}

type Store struct {
	opts   Options
	db     *pebble.DB
	log    utils.Logger
	seqMu  sync.Mutex
	seqs   *lru.Cache[string, uint64]
	queue  *utils.BatchQueue[protocol.Records]
	flush  *xsync.MapOf[uint64, chan struct{}]
	flushN atomic.Uint64
	writer sync.WaitGroup
	closed atomic.Bool

	appended atomic.Uint64
}

// Open opens or creates a store in dir.
func Open(dir string, opts Options) (*Store, error) {
	opts.SetDefaults()
	seqs, err := lru.New[string, uint64](opts.SeqCacheSize)
	if err != nil {
		return nil, err
	}
	db, err := pebble.Open(dir, &opts.Options)
	if err != nil {
		return nil, errors.Wrapf(err, "open store %s", dir)
	}
	s := &Store{
		opts:  opts,
		db:    db,
		log:   opts.Logger,
		seqs:  seqs,
		queue: utils.NewBatchQueue[protocol.Records](opts.QueueLimit, opts.BatchSize),
		flush: xsync.NewMapOf[uint64, chan struct{}](),
	}
	s.writer.Add(1)
	go s.write()
	return s, nil
}

// Close writes out what attached documents left in the queue and closes
// the database.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	_ = s.queue.Close()
	s.writer.Wait()
	return s.db.Close()
}

func (s *Store) writeOptions() *pebble.WriteOptions {
	if s.opts.SyncWrites {
		return pebble.Sync
	}
	return pebble.NoSync
}

func checkName(name string) error {
	if name == "" || strings.IndexByte(name, 0) >= 0 {
		return errors.Wrapf(ErrBadName, "%q", name)
	}
	return nil
}

func prefix(name string) []byte {
	key := make([]byte, 0, len(name)+2)
	key = append(key, 'U')
	key = append(key, name...)
	return append(key, 0)
}

func updateKey(name string, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(prefix(name), seq)
}

// bounds returns the key range of a log.
func bounds(name string) (lower, upper []byte) {
	lower = prefix(name)
	upper = append(prefix(name)[:len(lower)-1], 1)
	return
}

func parseKey(key []byte) (name string, seq uint64, ok bool) {
	if len(key) < 10 || key[0] != 'U' || key[len(key)-9] != 0 {
		return "", 0, false
	}
	return string(key[1 : len(key)-9]), binary.BigEndian.Uint64(key[len(key)-8:]), true
}

// lastSeq returns the last sequence number written to a log. Numbers are
// handed out and written under seqMu, so a cache miss finds the last one
// on disk.
func (s *Store) lastSeq(name string) (last uint64) {
	if seq, ok := s.seqs.Get(name); ok {
		return seq
	}
	lower, upper := bounds(name)
	it := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if it.Last() {
		if _, n, ok := parseKey(it.Key()); ok {
			last = n
		}
	}
	_ = it.Close()
	return
}

// Append adds an update to the log of a document and returns its
// sequence number.
func (s *Store) Append(name string, update []byte) (uint64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	if err := checkName(name); err != nil {
		return 0, err
	}
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	seq := s.lastSeq(name) + 1
	if err := s.db.Set(updateKey(name, seq), update, s.writeOptions()); err != nil {
		return 0, errors.Wrapf(err, "append to %s", name)
	}
	s.seqs.Add(name, seq)
	s.appended.Add(1)
	return seq, nil
}

// Updates returns the log of a document in order.
func (s *Store) Updates(name string) (updates [][]byte, err error) {
	if err = checkName(name); err != nil {
		return
	}
	lower, upper := bounds(name)
	it := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	for it.First(); it.Valid(); it.Next() {
		updates = append(updates, append([]byte{}, it.Value()...))
	}
	return updates, it.Close()
}

// Load replays the log of a document into doc in one transaction. Load
// before Attach, or the replayed updates get appended again.
func (s *Store) Load(name string, doc *yrb.Document) (int, error) {
	updates, err := s.Updates(name)
	if err != nil || len(updates) == 0 {
		return 0, err
	}
	err = doc.Transaction(func(tx *yrb.Transaction) error {
		for i, update := range updates {
			if err := tx.ApplyUpdate(update); err != nil {
				return errors.Wrapf(err, "%s update %d", name, i)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.log.Debug("document loaded", "name", name, "updates", len(updates))
	return len(updates), nil
}

// Compact replaces the log of a document with one update encoding all
// of doc, which must hold everything the log has.
func (s *Store) Compact(name string, doc *yrb.Document) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := s.Flush(context.Background()); err != nil {
		return err
	}
	snapshot, err := doc.Diff(nil)
	if err != nil {
		return err
	}
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	seq := s.lastSeq(name) + 1
	lower, _ := bounds(name)
	batch := s.db.NewBatch()
	defer batch.Close()
	if err = batch.DeleteRange(lower, updateKey(name, seq), nil); err != nil {
		return err
	}
	if err = batch.Set(updateKey(name, seq), snapshot, nil); err != nil {
		return err
	}
	if err = batch.Commit(pebble.Sync); err != nil {
		return errors.Wrapf(err, "compact %s", name)
	}
	s.seqs.Add(name, seq)
	s.log.Info("document compacted", "name", name, "seq", seq, "bytes", len(snapshot))
	return nil
}

// Delete drops the log of a document.
func (s *Store) Delete(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	lower, upper := bounds(name)
	if err := s.db.DeleteRange(lower, upper, pebble.Sync); err != nil {
		return err
	}
	s.seqs.Remove(name)
	return nil
}

// Names lists the documents having a log, sorted.
func (s *Store) Names() (names []string, err error) {
	it := s.db.NewIter(&pebble.IterOptions{LowerBound: []byte{'U'}, UpperBound: []byte{'V'}})
	for valid := it.First(); valid; {
		name, _, ok := parseKey(it.Key())
		if !ok {
			valid = it.Next()
			continue
		}
		names = append(names, name)
		_, upper := bounds(name)
		valid = it.SeekGE(upper)
	}
	return names, it.Close()
}
