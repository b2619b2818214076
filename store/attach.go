package store

import (
	"context"

	"github.com/pkg/errors"

	"github.com/y-crdt/yrb"
	"github.com/y-crdt/yrb/protocol"
	"github.com/y-crdt/yrb/rdx"
)

/*
Queue records, as the document observers hand them to the writer:

	W
	├── N  document name
	└── B  update
	F  flush id

A flush record completes once everything queued before it is written.
*/

// Attach appends every update doc commits from now on to the log of
// name. Writes happen in the background; Flush waits for them.
func (s *Store) Attach(name string, doc *yrb.Document) (yrb.Subscription, error) {
	if err := checkName(name); err != nil {
		return 0, err
	}
	sub := doc.ObserveUpdate(func(update []byte) {
		rec := protocol.Record('W',
			protocol.Record('N', []byte(name)),
			protocol.Record('B', update))
		if err := s.queue.Push(context.Background(), rec); err != nil {
			s.log.Error("update not queued", "name", name, "len", len(update), "err", err)
		}
	})
	return sub, nil
}

// Flush waits until the updates queued so far are written.
func (s *Store) Flush(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	id := s.flushN.Add(1)
	done := make(chan struct{})
	s.flush.Store(id, done)
	defer s.flush.Delete(id)
	if err := s.queue.Push(ctx, protocol.Record('F', rdx.ZipUint64(id))); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) write() {
	defer s.writer.Done()
	for {
		recs, err := s.queue.Pop(context.Background())
		if err != nil {
			return
		}
		if err = s.writeBatch(recs); err != nil {
			s.log.Error("queued updates lost", "records", len(recs), "err", err)
		}
	}
}

func (s *Store) writeBatch(recs protocol.Records) error {
	batch := s.db.NewBatch()
	defer batch.Close()
	var flushed []uint64
	n := uint64(0)
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	// the batch is invisible to lastSeq until committed
	seqs := make(map[string]uint64)
	for _, rec := range recs {
		lit, body, _ := protocol.TakeAny(rec)
		switch lit {
		case 'W':
			name, rest := protocol.Take('N', body)
			update, _ := protocol.Take('B', rest)
			seq, ok := seqs[string(name)]
			if !ok {
				seq = s.lastSeq(string(name))
			}
			seq++
			seqs[string(name)] = seq
			if err := batch.Set(updateKey(string(name), seq), update, nil); err != nil {
				return err
			}
			n++
		case 'F':
			flushed = append(flushed, rdx.UnzipUint64(body))
		}
	}
	var err error
	if !batch.Empty() {
		if err = batch.Commit(s.writeOptions()); err != nil {
			err = errors.Wrap(err, "write queued updates")
		} else {
			s.appended.Add(n)
			for name, seq := range seqs {
				s.seqs.Add(name, seq)
			}
		}
	}
	for _, id := range flushed {
		if done, ok := s.flush.Load(id); ok {
			close(done)
		}
	}
	return err
}
