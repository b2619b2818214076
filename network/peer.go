package network

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/y-crdt/yrb/protocol"
	"github.com/y-crdt/yrb/utils"
)

var ErrRecordTooLong = errors.New("record does not fit the read buffer")

// Peer moves records between one connection and its Handler: a read
// loop cuts the byte stream into whole records for Drain, a write loop
// sends whatever Feed returns with one vectored write per batch.
type Peer struct {
	name          string
	conn          net.Conn
	inout         Handler
	writeTimeout  time.Duration
	bufferMaxSize int

	done    chan struct{}
	closing sync.Once
}

func newPeer(name string, conn net.Conn, inout Handler) *Peer {
	return &Peer{
		name:  name,
		conn:  conn,
		inout: inout,
		done:  make(chan struct{}),
	}
}

func (p *Peer) Name() string {
	return p.name
}

// keepRead buffers at least a TYPICAL_MTU of free space per read; a
// record split across reads waits in the buffer for its tail.
func (p *Peer) keepRead(ctx context.Context) error {
	var buf bytes.Buffer
	for ctx.Err() == nil {
		if buf.Available() < TYPICAL_MTU {
			buf.Grow(TYPICAL_MTU)
		}
		idle := buf.AvailableBuffer()[:buf.Available()]
		n, rerr := p.conn.Read(idle)
		buf.Write(idle[:n])

		recs, err := protocol.Split(buf.Bytes())
		if err != nil && !errors.Is(err, protocol.ErrIncomplete) {
			return err
		}
		if len(recs) > 0 {
			// the buffer is reused, handlers get their own copy
			whole := bytes.Clone(buf.Next(int(recs.TotalLen())))
			recs, _ = protocol.Split(whole)
			RecordsReceived.Add(float64(len(recs)))
			if err = p.inout.Drain(ctx, recs); err != nil {
				return errors.Wrap(err, "drain")
			}
		}
		if buf.Len() > p.bufferMaxSize {
			return ErrRecordTooLong
		}
		if rerr != nil {
			return rerr
		}
	}
	return nil
}

func (p *Peer) keepWrite(ctx context.Context) error {
	for ctx.Err() == nil {
		recs, err := p.inout.Feed(ctx)
		if err != nil {
			return err
		}
		WriteBatchBytes.Observe(float64(recs.TotalLen()))
		RecordsSent.Add(float64(len(recs)))
		if p.writeTimeout != 0 {
			_ = p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout))
		}
		b := net.Buffers(recs)
		if _, err = b.WriteTo(p.conn); err != nil {
			return err
		}
	}
	return nil
}

// quiet drops the errors that mean the connection was shut down on
// purpose.
func quiet(err error) error {
	switch {
	case err == nil,
		errors.Is(err, io.EOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, context.Canceled),
		errors.Is(err, utils.ErrClosed):
		return nil
	}
	return err
}

// Keep runs both loops until either ends, the context is cancelled or
// the peer is closed; then the connection is closed, which stops the
// other loop.
func (p *Peer) Keep(ctx context.Context) (rerr, werr, cerr error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	select {
	case <-p.done:
		return nil, nil, p.conn.Close()
	default:
	}

	closed := make(chan error, 1)
	go func() {
		select {
		case <-ctx.Done():
		case <-p.done:
			cancel()
		}
		closed <- p.conn.Close()
	}()

	readErrCh, writeErrCh := make(chan error, 1), make(chan error, 1)
	go func() { readErrCh <- p.keepRead(ctx) }()
	go func() { writeErrCh <- p.keepWrite(ctx) }()
	for i := 0; i < 2; i++ {
		select {
		case rerr = <-readErrCh:
		case werr = <-writeErrCh:
		}
		cancel()
	}
	cerr = <-closed
	return quiet(rerr), quiet(werr), quiet(cerr)
}

// Close stops the peer and its handler.
func (p *Peer) Close() {
	p.closing.Do(func() { close(p.done) })
	_ = p.inout.Close()
}
