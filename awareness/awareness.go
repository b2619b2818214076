/*
Package awareness tracks ephemeral per-client state next to a document:
cursors, selections, user names. States are JSON strings, every client
owns exactly one and versions it with a clock. Nothing here is part of
the document history.

A state is replaced by a remote one only when the remote clock is ahead,
or when the clocks are equal and the remote side removed it. A peer that
removes our own live state gets overridden: we bump our clock so the next
broadcast wins.
*/
package awareness

import (
	"encoding/json"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash"
	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/y-crdt/yrb"
	"github.com/y-crdt/yrb/utils"
	"github.com/y-crdt/yrb/ybridge_errors"
)

var (
	ErrBadState      = errors.Wrap(ybridge_errors.ErrConversion, "awareness state is not valid JSON")
	ErrUnknownClient = errors.New("awareness: unknown client")
)

const null = "null"

// Event lists the clients touched by one change. Changed is the subset
// whose state differs from what was there before.
type Event struct {
	Added   []uint64
	Updated []uint64
	Removed []uint64
	Changed []uint64
}

func (e *Event) empty() bool {
	return len(e.Added)+len(e.Updated)+len(e.Removed) == 0
}

func (e *Event) sort() {
	for _, ids := range [][]uint64{e.Added, e.Updated, e.Removed, e.Changed} {
		slices.Sort(ids)
	}
}

// entry outlives the state it describes: the clock of a removed state
// still decides which updates are stale.
type entry struct {
	clock  uint64
	state  string
	live   bool
	digest uint64
	seen   time.Time
}

type Options struct {
	ClientID uint64
	Logger   utils.Logger
	// Now is the clock for last-seen bookkeeping.
	Now func() time.Time
}

func (o *Options) SetDefaults() {
	if o.Logger == nil {
		o.Logger = utils.NopLogger()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type Awareness struct {
	opts    Options
	lock    sync.Mutex
	entries *xsync.MapOf[uint64, entry]
	subs    *xsync.MapOf[uint32, func(Event)]
	lastSub atomic.Uint32
}

func New(opts Options) *Awareness {
	opts.SetDefaults()
	return &Awareness{
		opts:    opts,
		entries: xsync.NewMapOf[uint64, entry](),
		subs:    xsync.NewMapOf[uint32, func(Event)](),
	}
}

// ForDocument makes an awareness instance sharing the client id of doc.
func ForDocument(doc *yrb.Document, log utils.Logger) *Awareness {
	return New(Options{ClientID: doc.ClientID(), Logger: log})
}

func (a *Awareness) ClientID() uint64 {
	return a.opts.ClientID
}

// SetLocalState replaces the local state with a JSON document.
func (a *Awareness) SetLocalState(state string) error {
	if !json.Valid([]byte(state)) {
		return errors.Wrapf(ErrBadState, "%.32q", state)
	}
	a.setLocal(state)
	return nil
}

// SetLocalValue is SetLocalState for any value encoding/json accepts.
func (a *Awareness) SetLocalValue(v any) error {
	state, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(ErrBadState, err.Error())
	}
	a.setLocal(string(state))
	return nil
}

func (a *Awareness) setLocal(state string) {
	var ev Event
	id := a.opts.ClientID
	a.lock.Lock()
	prev, _ := a.entries.Load(id)
	next := entry{
		clock:  prev.clock + 1,
		state:  state,
		live:   state != null,
		digest: xxhash.Sum64([]byte(state)),
		seen:   a.opts.Now(),
	}
	a.entries.Store(id, next)
	a.lock.Unlock()
	ev.record(id, prev, next)
	a.emit(ev)
}

// LocalState returns the local state; false when there is none.
func (a *Awareness) LocalState() (string, bool) {
	return a.State(a.opts.ClientID)
}

func (a *Awareness) State(client uint64) (string, bool) {
	e, ok := a.entries.Load(client)
	if !ok || !e.live {
		return "", false
	}
	return e.state, true
}

// CleanLocalState drops the local state. The clock advances so peers
// learn about the removal.
func (a *Awareness) CleanLocalState() {
	a.setLocal(null)
}

// RemoveState forgets the state of a client. Removing our own client
// drops the local state.
func (a *Awareness) RemoveState(client uint64) {
	if client == a.opts.ClientID {
		a.CleanLocalState()
		return
	}
	a.lock.Lock()
	prev, ok := a.entries.Load(client)
	if ok && prev.live {
		next := prev
		next.state, next.live = null, false
		a.entries.Store(client, next)
	}
	a.lock.Unlock()
	if ok && prev.live {
		a.emit(Event{Removed: []uint64{client}, Changed: []uint64{client}})
	}
}

// Clients returns the live states by client id.
func (a *Awareness) Clients() map[uint64]string {
	m := make(map[uint64]string)
	a.entries.Range(func(client uint64, e entry) bool {
		if e.live {
			m[client] = e.state
		}
		return true
	})
	return m
}

// OnUpdate registers fn to be called after every change of the state
// table, local or remote.
func (a *Awareness) OnUpdate(fn func(e Event)) uint32 {
	id := a.lastSub.Add(1)
	a.subs.Store(id, fn)
	return id
}

func (a *Awareness) RemoveOnUpdate(id uint32) bool {
	_, ok := a.subs.LoadAndDelete(id)
	return ok
}

func (a *Awareness) emit(ev Event) {
	if ev.empty() {
		return
	}
	ev.sort()
	var ids []uint32
	a.subs.Range(func(id uint32, _ func(Event)) bool {
		ids = append(ids, id)
		return true
	})
	slices.Sort(ids)
	for _, id := range ids {
		if fn, ok := a.subs.Load(id); ok {
			fn(ev)
		}
	}
}

// record files a client under added, updated or removed by comparing
// what it had before with what it has now.
func (ev *Event) record(client uint64, prev, next entry) {
	switch {
	case !prev.live && next.live:
		ev.Added = append(ev.Added, client)
	case prev.live && next.live:
		ev.Updated = append(ev.Updated, client)
	case prev.live && !next.live:
		ev.Removed = append(ev.Removed, client)
	default:
		return
	}
	if prev.live != next.live || prev.digest != next.digest {
		ev.Changed = append(ev.Changed, client)
	}
}

// RemoveOutdated drops the remote states not refreshed within timeout
// and returns their clients. The local state never expires.
func (a *Awareness) RemoveOutdated(timeout time.Duration) []uint64 {
	deadline := a.opts.Now().Add(-timeout)
	var ev Event
	a.lock.Lock()
	a.entries.Range(func(client uint64, e entry) bool {
		if client != a.opts.ClientID && e.live && e.seen.Before(deadline) {
			next := e
			next.state, next.live = null, false
			a.entries.Store(client, next)
			ev.record(client, e, next)
		}
		return true
	})
	a.lock.Unlock()
	a.emit(ev)
	return ev.Removed
}
