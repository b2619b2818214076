package network

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/y-crdt/yrb"
	"github.com/y-crdt/yrb/awareness"
	"github.com/y-crdt/yrb/protocol"
	"github.com/y-crdt/yrb/utils"
	"github.com/y-crdt/yrb/ybridge_errors"
)

/*
Sync messages, one TLV record each:

	V  state vector of the sender, asks for a D
	D  update with everything the V sender lacks
	U  update committed by the sender or relayed by it
	A  awareness update

Both ends send V and their awareness states on connect, then stream U
and A records as things change. Updates that arrive before their
dependencies are buffered by the document.
*/

const (
	SESSION_QUEUE_LIMIT = 1 << 24
	SESSION_BATCH       = 1 << 16
	TX_RETRY_PERIOD     = 5 * time.Millisecond
)

var ErrSlowPeer = errors.New("peer does not keep up with updates")

// Hub syncs one document, and optionally its awareness, with every
// connection of a Net. Its Install and Destroy methods are the Net
// callbacks.
type Hub struct {
	doc      *yrb.Document
	aware    *awareness.Awareness
	log      utils.Logger
	sessions *xsync.MapOf[string, *session]

	docSub   yrb.Subscription
	awareSub uint32
}

func NewHub(doc *yrb.Document, aware *awareness.Awareness, log utils.Logger) *Hub {
	h := &Hub{
		doc:      doc,
		aware:    aware,
		log:      log,
		sessions: xsync.NewMapOf[string, *session](),
	}
	h.docSub = doc.ObserveUpdate(func(update []byte) {
		h.broadcast(protocol.Record('U', update))
	})
	if aware != nil {
		h.awareSub = aware.OnUpdate(func(ev awareness.Event) {
			clients := make([]uint64, 0, len(ev.Added)+len(ev.Updated)+len(ev.Removed))
			clients = append(clients, ev.Added...)
			clients = append(clients, ev.Updated...)
			clients = append(clients, ev.Removed...)
			data, err := aware.EncodeClients(clients...)
			if err != nil {
				h.log.Warn("awareness change not sent", "err", err)
				return
			}
			h.broadcast(protocol.Record('A', data))
		})
	}
	return h
}

// Close stops relaying and ends every session.
func (h *Hub) Close() {
	h.doc.UnobserveUpdate(h.docSub)
	if h.aware != nil {
		h.aware.RemoveOnUpdate(h.awareSub)
	}
	h.sessions.Range(func(_ string, s *session) bool {
		_ = s.Close()
		return true
	})
	h.sessions.Clear()
}

// Sessions is the number of connected peers.
func (h *Hub) Sessions() int {
	return h.sessions.Size()
}

func (h *Hub) Install(name string) Handler {
	s := &session{
		hub:   h,
		name:  name,
		queue: utils.NewBatchQueue[protocol.Records](SESSION_QUEUE_LIMIT, SESSION_BATCH),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	h.sessions.Store(name, s)
	go s.hello()
	h.log.Debug("sync: session started", "name", name)
	return s
}

// hello sends the opening V and awareness records. The state vector
// waits for any local transaction to end.
func (s *session) hello() {
	h := s.hub
	var sv []byte
	err := h.transact(s.ctx, func() (err error) {
		sv, err = h.doc.StateVector()
		return
	})
	if err != nil {
		if s.ctx.Err() == nil {
			h.log.Error("sync: no state vector", "name", s.name, "err", err)
			_ = s.Close()
		}
		return
	}
	hello := protocol.Records{protocol.Record('V', sv)}
	if h.aware != nil {
		if states := h.aware.Encode(); len(states) > 0 {
			hello = append(hello, protocol.Record('A', states))
		}
	}
	s.send(hello...)
}

// Destroy ends the session of a closed connection. A newer session under
// the same name stays.
func (h *Hub) Destroy(name string, hd Handler) {
	s, ok := hd.(*session)
	if !ok {
		return
	}
	h.sessions.Compute(name, func(cur *session, loaded bool) (*session, bool) {
		return cur, !loaded || cur == s
	})
	_ = s.Close()
	h.log.Debug("sync: session ended", "name", name)
}

func (h *Hub) broadcast(rec []byte) {
	h.sessions.Range(func(_ string, s *session) bool {
		s.send(rec)
		return true
	})
}

// transact retries while another transaction holds the document.
func (h *Hub) transact(ctx context.Context, fn func() error) error {
	for {
		err := fn()
		if !errors.Is(err, ybridge_errors.ErrTransactionOpen) {
			return err
		}
		select {
		case <-time.After(TX_RETRY_PERIOD):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

type session struct {
	hub    *Hub
	name   string
	queue  *utils.BatchQueue[protocol.Records]
	ctx    context.Context
	cancel context.CancelFunc
}

// send never blocks the committing goroutine: a session whose queue is
// full is dropped, and the peer resyncs on reconnect.
func (s *session) send(recs ...[]byte) {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	if err := s.queue.Push(ctx, recs...); err != nil {
		if errors.Is(err, utils.ErrClosed) {
			return
		}
		s.hub.log.Warn("sync: dropping session", "name", s.name, "err", err)
		SessionsDropped.WithLabelValues("slow").Inc()
		_ = s.Close()
	}
}

func (s *session) Feed(ctx context.Context) (protocol.Records, error) {
	return s.queue.Pop(ctx)
}

func (s *session) Drain(ctx context.Context, recs protocol.Records) error {
	h := s.hub
	for _, rec := range recs {
		lit, body, _, err := protocol.TakeAnyWary(rec)
		if err != nil {
			return err
		}
		switch lit {
		case 'V':
			var diff []byte
			err = h.transact(ctx, func() (err error) {
				diff, err = h.doc.Diff(body)
				return
			})
			if err == nil {
				s.send(protocol.Record('D', diff))
			}
		case 'D', 'U':
			err = h.transact(ctx, func() error { return h.doc.Sync(body) })
		case 'A':
			if h.aware != nil {
				err = h.aware.Apply(body)
			}
		default:
			h.log.Debug("sync: unknown record skipped", "name", s.name, "type", string(lit))
		}
		if err != nil {
			SessionsDropped.WithLabelValues("bad_record").Inc()
			return errors.Wrapf(err, "sync record %c", lit)
		}
	}
	return nil
}

func (s *session) Close() error {
	s.cancel()
	return s.queue.Close()
}
