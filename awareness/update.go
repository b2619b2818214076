package awareness

import (
	"slices"

	"github.com/cespare/xxhash"
	"github.com/pkg/errors"

	"github.com/y-crdt/yrb/protocol"
	"github.com/y-crdt/yrb/rdx"
	"github.com/y-crdt/yrb/ybridge_errors"
)

/*
An awareness update is a run of 'A' records, one per client:

	A
	├── C  zipped (client, clock)
	└── S  JSON state, "null" once removed

An empty update is valid and changes nothing.
*/

var ErrBadUpdate = errors.New("bad awareness record")

type update struct {
	client uint64
	clock  uint64
	state  string
}

func appendUpdate(into []byte, u update) []byte {
	return protocol.Append(into, 'A',
		protocol.Record('C', rdx.ZipUint64Pair(u.client, u.clock)),
		protocol.Record('S', []byte(u.state)))
}

func parseUpdate(data []byte) (ups []update, err error) {
	for len(data) > 0 {
		var body, zip, state []byte
		if body, data, err = protocol.TakeWary('A', data); err != nil {
			return nil, err
		}
		if zip, body, err = protocol.TakeWary('C', body); err != nil {
			return nil, err
		}
		if state, body, err = protocol.TakeWary('S', body); err != nil {
			return nil, err
		}
		if len(body) > 0 || !rdx.ValidZipPairLen(len(zip)) {
			return nil, ErrBadUpdate
		}
		u := update{state: string(state)}
		u.client, u.clock = rdx.UnzipUint64Pair(zip)
		ups = append(ups, u)
	}
	return
}

// Encode encodes every live state, in client order.
func (a *Awareness) Encode() []byte {
	clients := make([]uint64, 0)
	a.entries.Range(func(client uint64, e entry) bool {
		if e.live {
			clients = append(clients, client)
		}
		return true
	})
	slices.Sort(clients)
	data, _ := a.EncodeClients(clients...)
	return data
}

// EncodeClients encodes the given clients, removed ones included so the
// removal reaches peers.
func (a *Awareness) EncodeClients(clients ...uint64) ([]byte, error) {
	data := []byte{}
	for _, client := range clients {
		e, ok := a.entries.Load(client)
		if !ok {
			return nil, errors.Wrapf(ErrUnknownClient, "%d", client)
		}
		state := e.state
		if !e.live {
			state = null
		}
		data = appendUpdate(data, update{client: client, clock: e.clock, state: state})
	}
	return data, nil
}

// Apply merges a remote update. A malformed update changes nothing.
func (a *Awareness) Apply(data []byte) error {
	ups, err := parseUpdate(data)
	if err != nil {
		a.opts.Logger.Warn("malformed awareness update", "len", len(data), "err", err)
		return ybridge_errors.Decode(err, "awareness update")
	}
	var ev Event
	now := a.opts.Now()
	a.lock.Lock()
	for _, u := range ups {
		prev, _ := a.entries.Load(u.client)
		removal := u.state == null
		if prev.clock > u.clock || (prev.clock == u.clock && !(removal && prev.live)) {
			continue
		}
		next := entry{clock: u.clock, seen: now}
		switch {
		case !removal:
			next.state, next.live = u.state, true
			next.digest = xxhash.Sum64([]byte(u.state))
		case u.client == a.opts.ClientID && prev.live:
			next = prev
			next.clock = u.clock + 1
		default:
			next.state = null
		}
		a.entries.Store(u.client, next)
		ev.record(u.client, prev, next)
	}
	a.lock.Unlock()
	a.emit(ev)
	return nil
}
