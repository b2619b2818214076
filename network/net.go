// Package network keeps documents of several processes in sync over
// long-lived TCP or TLS connections.
//
// Net owns the transport: listeners, outgoing connections that are
// re-dialed with exponential backoff, and one Peer per live connection.
// What flows through a connection is decided by the Handler that the
// install callback returns for it; Hub is the handler that speaks the
// document sync protocol.
//
//	hub := network.NewHub(doc, aware, log)
//	net := network.NewNet(log, hub.Install, hub.Destroy)
//	addr, err := net.Listen("tcp://:4400")
//	err = net.Connect("tcp://peer:4400")
//	defer net.Close()
package network

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/y-crdt/yrb/protocol"
	"github.com/y-crdt/yrb/utils"
)

type ConnType = uint

var (
	ErrAddressInvalid    = errors.New("the address invalid")
	ErrAddressDuplicated = errors.New("the address already used")
	ErrAddressUnknown    = errors.New("address unknown")
	ErrNoTLSConfig       = errors.New("tls address without tls config")
)

const (
	TCP ConnType = iota + 1
	TLS
)

const (
	TYPICAL_MTU       = 1500
	MAX_RETRY_PERIOD  = time.Minute
	MIN_RETRY_PERIOD  = time.Second / 2
	DEFAULT_READ_SIZE = 1 << 24
)

// Handler is the per-connection protocol: Feed blocks until there is
// something to send, Drain takes whole records received.
type Handler interface {
	Feed(ctx context.Context) (protocol.Records, error)
	Drain(ctx context.Context, recs protocol.Records) error
	Close() error
}

type InstallCallback func(name string) Handler
type DestroyCallback func(name string, h Handler)

type Net struct {
	wg        sync.WaitGroup
	log       utils.Logger
	onInstall InstallCallback
	onDestroy DestroyCallback

	conns     *xsync.MapOf[string, *Peer]
	listens   *xsync.MapOf[string, net.Listener]
	ctx       context.Context
	cancelCtx context.CancelFunc

	tlsConfig     *tls.Config
	writeTimeout  time.Duration
	bufferMaxSize int
}

type NetOpt interface {
	Apply(*Net)
}

type NetWriteTimeoutOpt struct {
	Timeout time.Duration
}

func (opt *NetWriteTimeoutOpt) Apply(n *Net) {
	n.writeTimeout = opt.Timeout
}

type NetTlsConfigOpt struct {
	Config *tls.Config
}

func (opt *NetTlsConfigOpt) Apply(n *Net) {
	n.tlsConfig = opt.Config
}

// NetReadBufferOpt bounds the bytes a peer buffers while waiting for the
// end of a record.
type NetReadBufferOpt struct {
	MaxSize int
}

func (opt *NetReadBufferOpt) Apply(n *Net) {
	n.bufferMaxSize = opt.MaxSize
}

func NewNet(log utils.Logger, install InstallCallback, destroy DestroyCallback, opts ...NetOpt) *Net {
	ctx, cancel := context.WithCancel(context.Background())
	n := &Net{
		log:           log,
		ctx:           ctx,
		cancelCtx:     cancel,
		conns:         xsync.NewMapOf[string, *Peer](),
		listens:       xsync.NewMapOf[string, net.Listener](),
		onInstall:     install,
		onDestroy:     destroy,
		bufferMaxSize: DEFAULT_READ_SIZE,
	}
	for _, o := range opts {
		o.Apply(n)
	}
	return n
}

// Peers lists the names of the live connections.
func (n *Net) Peers() (names []string) {
	n.conns.Range(func(name string, p *Peer) bool {
		if p != nil {
			names = append(names, name)
		}
		return true
	})
	return
}

func (n *Net) Close() error {
	n.cancelCtx()

	n.listens.Range(func(_ string, l net.Listener) bool {
		if l != nil {
			_ = l.Close()
		}
		return true
	})
	n.conns.Range(func(_ string, p *Peer) bool {
		// nil while still dialing
		if p != nil {
			p.Close()
		}
		return true
	})

	n.wg.Wait()
	n.listens.Clear()
	n.conns.Clear()
	return nil
}

func (n *Net) Connect(addr string) error {
	return n.ConnectPool(addr, []string{addr})
}

// ConnectPool keeps one connection named name to the first address of
// addrs that answers, re-dialing after failures until Disconnect.
func (n *Net) ConnectPool(name string, addrs []string) error {
	for _, addr := range addrs {
		if _, _, err := n.parseAddr(addr); err != nil {
			return err
		}
	}
	// the nil entry reserves the name while dialing
	if _, ok := n.conns.LoadOrStore(name, nil); ok {
		return ErrAddressDuplicated
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.keepConnecting(name, addrs)
	}()
	return nil
}

func (n *Net) Disconnect(name string) error {
	p, ok := n.conns.LoadAndDelete(name)
	if !ok {
		return ErrAddressUnknown
	}
	if p != nil {
		p.Close()
	}
	return nil
}

// Listen accepts connections on addr and returns the address actually
// bound, which differs from addr for port 0.
func (n *Net) Listen(addr string) (string, error) {
	if _, ok := n.listens.LoadOrStore(addr, nil); ok {
		return "", ErrAddressDuplicated
	}
	listener, err := n.createListener(addr)
	if err != nil {
		n.listens.Delete(addr)
		return "", err
	}
	n.listens.Store(addr, listener)
	bound := listener.Addr().String()
	n.log.Info("net: listening", "addr", addr, "bound", bound)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.keepListening(addr, listener)
	}()
	return bound, nil
}

func (n *Net) Unlisten(addr string) error {
	l, ok := n.listens.LoadAndDelete(addr)
	if !ok || l == nil {
		return ErrAddressUnknown
	}
	return l.Close()
}

// still reports whether the connection name is wanted.
func (n *Net) still(name string) bool {
	if n.ctx.Err() != nil {
		return false
	}
	_, ok := n.conns.Load(name)
	return ok
}

func (n *Net) keepConnecting(name string, addrs []string) {
	ctx := utils.WithDefaultArgs(n.ctx, "name", name)
	backoff := MIN_RETRY_PERIOD
	for n.still(name) {
		var conn net.Conn
		var err error
		for _, addr := range addrs {
			if conn, err = n.createConn(addr); err == nil {
				break
			}
		}
		if err != nil {
			n.log.WarnCtx(ctx, "net: couldn't connect", "err", err, "retry", backoff)
			select {
			case <-time.After(backoff):
			case <-n.ctx.Done():
			}
			backoff = min(MAX_RETRY_PERIOD, backoff*2)
			continue
		}
		n.log.InfoCtx(ctx, "net: connected")
		backoff = MIN_RETRY_PERIOD
		n.keepPeer(ctx, name, conn, true)
	}
}

func (n *Net) keepListening(addr string, listener net.Listener) {
	for n.ctx.Err() == nil {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				break
			}
			// reconnects are the client's problem
			n.log.Error("net: couldn't accept", "addr", addr, "err", err)
			continue
		}
		remote := conn.RemoteAddr().String()
		name := fmt.Sprintf("listen:%s:%s", uuid.Must(uuid.NewV7()).String(), remote)
		ctx := utils.WithDefaultArgs(n.ctx, "name", name)
		n.log.InfoCtx(ctx, "net: accepted", "addr", addr)
		n.conns.Store(name, nil)
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.keepPeer(ctx, name, conn, false)
			n.conns.Delete(name)
		}()
	}
	n.listens.Delete(addr)
	n.log.Info("net: listener closed", "addr", addr)
}

// keepPeer runs a connection to its end. Outgoing connections stay
// reserved under their name so they can be re-dialed.
func (n *Net) keepPeer(ctx context.Context, name string, conn net.Conn, outgoing bool) {
	peer := newPeer(name, conn, n.onInstall(name))
	peer.writeTimeout = n.writeTimeout
	peer.bufferMaxSize = n.bufferMaxSize
	if !n.swapPeer(name, nil, peer) {
		// disconnected while dialing
		_ = conn.Close()
		_ = peer.inout.Close()
		n.onDestroy(name, peer.inout)
		return
	}
	PeersConnected.Inc()

	rerr, werr, cerr := peer.Keep(n.ctx)
	if rerr != nil {
		n.log.WarnCtx(ctx, "net: couldn't read from peer", "err", rerr)
	}
	if werr != nil {
		n.log.WarnCtx(ctx, "net: couldn't write to peer", "err", werr)
	}
	if cerr != nil {
		n.log.WarnCtx(ctx, "net: couldn't close peer", "err", cerr)
	}
	PeersConnected.Dec()

	if outgoing {
		n.swapPeer(name, peer, nil)
	}
	peer.Close()
	n.onDestroy(name, peer.inout)
	n.log.InfoCtx(ctx, "net: disconnected")
}

// swapPeer replaces the entry of name if it is still old.
func (n *Net) swapPeer(name string, old, peer *Peer) (swapped bool) {
	n.conns.Compute(name, func(cur *Peer, loaded bool) (*Peer, bool) {
		if !loaded {
			return nil, true
		}
		if cur != old {
			return cur, false
		}
		swapped = true
		return peer, false
	})
	return
}

func (n *Net) createListener(addr string) (net.Listener, error) {
	connType, address, err := n.parseAddr(addr)
	if err != nil {
		return nil, err
	}
	config := net.ListenConfig{}
	listener, err := config.Listen(n.ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	if connType == TLS {
		listener = tls.NewListener(listener, n.tlsConfig)
	}
	return listener, nil
}

func (n *Net) createConn(addr string) (net.Conn, error) {
	connType, address, err := n.parseAddr(addr)
	if err != nil {
		return nil, err
	}
	if connType == TLS {
		d := tls.Dialer{Config: n.tlsConfig}
		return d.DialContext(n.ctx, "tcp", address)
	}
	d := net.Dialer{Timeout: time.Minute}
	return d.DialContext(n.ctx, "tcp", address)
}

// parseAddr takes "tcp://host:port", "tls://host:port" or a bare
// "host:port", which means TCP.
func (n *Net) parseAddr(addr string) (ConnType, string, error) {
	if !strings.Contains(addr, "://") {
		return TCP, addr, nil
	}
	u, err := url.Parse(addr)
	if err != nil {
		return TCP, "", errors.Wrap(ErrAddressInvalid, err.Error())
	}
	switch u.Scheme {
	case "tcp", "tcp4", "tcp6":
		return TCP, u.Host, nil
	case "tls":
		if n.tlsConfig == nil {
			return TLS, "", ErrNoTLSConfig
		}
		return TLS, u.Host, nil
	}
	return TCP, "", errors.Wrapf(ErrAddressInvalid, "scheme %q", u.Scheme)
}
