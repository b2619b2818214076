package engine

import (
	"slices"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/y-crdt/yrb/protocol"
	"github.com/y-crdt/yrb/rdx"
	"github.com/y-crdt/yrb/ybridge_errors"
)

/*
Update format: a sequence of TLV records.

	I  item, nested records:
	   C  id (zipped client, clock)
	   O  origin id, optional
	   R  right origin id, optional
	   N  root parent name, or
	   P  parent item id
	   K  map key, optional
	   one of
	   A  plain value record
	   S  one character, UTF-8
	   E  embedded value record
	   F  format: S key record, then the value record
	   Y  nested type: kind byte, then the tag
	D  deleted ranges of one client, nested records:
	   C  zipped client
	   R  zipped clock, length (repeated)

Items of a client go in clock order. An item whose dependencies (the
previous clock of its client, origins, parent) are unknown is kept
pending until an update supplies them.
*/

var (
	ErrBadItem     = errors.New("bad item record")
	ErrBadDeletes  = errors.New("bad delete set record")
	ErrUnknownType = errors.New("unknown shared type kind")
)

type itemRecord struct {
	id          rdx.ID
	origin      *rdx.ID
	rightOrigin *rdx.ID
	parentName  string
	parentID    *rdx.ID
	key         string
	keyed       bool
	c           content
	typeKind    Kind
}

type delRange struct {
	client, clock, length uint64
}

func appendID(into []byte, lit byte, id rdx.ID) []byte {
	return protocol.Append(into, lit, id.ZipBytes())
}

func (it *Item) appendTLV(into []byte) []byte {
	body := appendID(nil, 'C', it.ID)
	if it.origin != nil {
		body = appendID(body, 'O', it.origin.ID)
	}
	if it.rightOrigin != nil {
		body = appendID(body, 'R', it.rightOrigin.ID)
	}
	if p := it.parent; p.item != nil {
		body = appendID(body, 'P', p.item.ID)
	} else {
		body = protocol.Append(body, 'N', []byte(p.name))
	}
	if it.keyed {
		body = protocol.Append(body, 'K', []byte(it.key))
	}
	c := it.content
	switch c.kind {
	case contentAny:
		body = protocol.Append(body, 'A', c.value.TLV())
	case contentRune:
		body = protocol.Append(body, 'S', utf8.AppendRune(nil, c.r))
	case contentEmbed:
		body = protocol.Append(body, 'E', c.value.TLV())
	case contentFormat:
		body = protocol.Append(body, 'F', protocol.Record('S', []byte(c.key)), c.value.TLV())
	case contentType:
		body = protocol.Append(body, 'Y', []byte{byte(c.branch.kind)}, []byte(c.branch.tag))
	}
	return protocol.Append(into, 'I', body)
}

func takeID(body []byte) (*rdx.ID, error) {
	id, err := rdx.IDFromZipBytes(body)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func parseItem(body []byte) (rec itemRecord, err error) {
	var hasID, hasParent, hasContent bool
	for len(body) > 0 && err == nil {
		var lit byte
		var val []byte
		lit, val, body, err = protocol.TakeAnyWary(body)
		if err != nil {
			break
		}
		var id *rdx.ID
		switch lit {
		case 'C':
			if id, err = takeID(val); err == nil {
				rec.id, hasID = *id, true
			}
		case 'O':
			rec.origin, err = takeID(val)
		case 'R':
			rec.rightOrigin, err = takeID(val)
		case 'N':
			rec.parentName, hasParent = string(val), true
		case 'P':
			rec.parentID, err = takeID(val)
			hasParent = true
		case 'K':
			rec.key, rec.keyed = string(val), true
		case 'A', 'E':
			rec.c.kind = contentAny
			if lit == 'E' {
				rec.c.kind = contentEmbed
			}
			rec.c.value, err = rdx.ParseAny(val)
			hasContent = true
		case 'S':
			r, size := utf8.DecodeRune(val)
			if r == utf8.RuneError || size != len(val) {
				return rec, ErrBadItem
			}
			rec.c = content{kind: contentRune, r: r}
			hasContent = true
		case 'F':
			var key []byte
			key, val, err = protocol.TakeWary('S', val)
			if err != nil {
				break
			}
			rec.c = content{kind: contentFormat, key: string(key)}
			rec.c.value, err = rdx.ParseAny(val)
			hasContent = true
		case 'Y':
			if len(val) == 0 || !Kind(val[0]).valid() {
				return rec, ErrUnknownType
			}
			rec.c = content{kind: contentType}
			rec.typeKind, rec.c.key = Kind(val[0]), string(val[1:])
			hasContent = true
		default:
			err = ErrBadItem
		}
	}
	if err == nil && !(hasID && hasParent && hasContent) {
		err = ErrBadItem
	}
	return
}

func parseDeletes(body []byte) (ranges []delRange, err error) {
	var zc []byte
	zc, body, err = protocol.TakeWary('C', body)
	if err != nil {
		return nil, err
	}
	if len(zc) > 8 {
		return nil, ErrBadDeletes
	}
	client := rdx.UnzipUint64(zc)
	for len(body) > 0 {
		var zr []byte
		zr, body, err = protocol.TakeWary('R', body)
		if err != nil {
			return nil, err
		}
		if !rdx.ValidZipPairLen(len(zr)) {
			return nil, ErrBadDeletes
		}
		clock, length := rdx.UnzipUint64Pair(zr)
		if clock+length < clock {
			return nil, ErrBadDeletes
		}
		ranges = append(ranges, delRange{client, clock, length})
	}
	return
}

func parseUpdate(data []byte) (items []itemRecord, dels []delRange, err error) {
	for len(data) > 0 {
		var lit byte
		var body []byte
		lit, body, data, err = protocol.TakeAnyWary(data)
		if err != nil {
			return
		}
		switch lit {
		case 'I':
			var rec itemRecord
			if rec, err = parseItem(body); err != nil {
				return
			}
			items = append(items, rec)
		case 'D':
			var ranges []delRange
			if ranges, err = parseDeletes(body); err != nil {
				return
			}
			dels = append(dels, ranges...)
		default:
			return nil, nil, ErrBadItem
		}
	}
	return
}

func appendDeletes(into []byte, deleted []rdx.ID) []byte {
	slices.SortFunc(deleted, func(a, b rdx.ID) int {
		if a.Less(b) {
			return -1
		} else if b.Less(a) {
			return 1
		}
		return 0
	})
	for i := 0; i < len(deleted); {
		client := deleted[i].Client
		body := protocol.Append(nil, 'C', rdx.ZipUint64(client))
		for i < len(deleted) && deleted[i].Client == client {
			start, n := deleted[i].Clock, uint64(1)
			for i++; i < len(deleted) && deleted[i].Client == client && deleted[i].Clock == start+n; i++ {
				n++
			}
			body = protocol.Append(body, 'R', rdx.ZipUint64Pair(start, n))
		}
		into = protocol.Append(into, 'D', body)
	}
	return into
}

func (d *Doc) encodeSince(sv rdx.VV, deleted []rdx.ID) []byte {
	out := []byte{}
	clients := make([]uint64, 0, len(d.blocks))
	for client := range d.blocks {
		clients = append(clients, client)
	}
	slices.Sort(clients)
	for _, client := range clients {
		items := d.blocks[client]
		for clock := sv.Get(client); clock < uint64(len(items)); clock++ {
			out = items[clock].appendTLV(out)
		}
	}
	return appendDeletes(out, deleted)
}

func (d *Doc) allDeleted() (ids []rdx.ID) {
	for _, items := range d.blocks {
		for _, it := range items {
			if it.deleted {
				ids = append(ids, it.ID)
			}
		}
	}
	return
}

// EncodeDiff encodes everything the holder of the state vector sv is
// missing. An empty sv asks for the whole document.
func (txn *Txn) EncodeDiff(sv []byte) ([]byte, error) {
	if err := txn.check(nil); err != nil {
		return nil, err
	}
	vv, err := rdx.VVFromTLV(sv)
	if err != nil {
		return nil, ybridge_errors.Decode(err, "state vector")
	}
	return txn.doc.encodeSince(vv, txn.doc.allDeleted()), nil
}

func (txn *Txn) encodeOwnUpdate() []byte {
	if !txn.Changed() {
		return nil
	}
	deleted := make([]rdx.ID, 0, len(txn.deleted))
	for id := range txn.deleted {
		deleted = append(deleted, id)
	}
	return txn.doc.encodeSince(txn.before, deleted)
}

// ApplyUpdate integrates a remote update. A malformed update is rejected
// as a whole before anything is applied.
func (txn *Txn) ApplyUpdate(update []byte) error {
	if err := txn.check(nil); err != nil {
		return err
	}
	items, dels, err := parseUpdate(update)
	if err != nil {
		txn.doc.log.Warn("malformed update", "len", len(update), "err", err)
		return ybridge_errors.Decode(err, "update")
	}
	d := txn.doc
	d.pending = append(d.pending, items...)
	d.pendingDeletes = append(d.pendingDeletes, dels...)
	txn.integratePending()
	return nil
}

type integration byte

const (
	integrated integration = iota
	stale
	missing
)

func (txn *Txn) integratePending() {
	d := txn.doc
	for progress := true; progress && len(d.pending) > 0; {
		progress = false
		var kept []itemRecord
		for _, rec := range d.pending {
			if txn.tryIntegrate(rec) == missing {
				kept = append(kept, rec)
			} else {
				progress = true
			}
		}
		d.pending = kept
	}
	var kept []delRange
	for _, r := range d.pendingDeletes {
		items := d.blocks[r.client]
		known := uint64(len(items))
		end := r.clock + r.length
		for clock := r.clock; clock < end && clock < known; clock++ {
			items[clock].delete(txn)
		}
		if end > known {
			kept = append(kept, delRange{r.client, max(r.clock, known), end - max(r.clock, known)})
		}
	}
	d.pendingDeletes = kept
	if len(d.pending) > 0 || len(d.pendingDeletes) > 0 {
		d.log.Debug("update waits for missing dependencies",
			"items", len(d.pending), "deletes", len(d.pendingDeletes))
	}
}

func (txn *Txn) tryIntegrate(rec itemRecord) integration {
	d := txn.doc
	known := uint64(len(d.blocks[rec.id.Client]))
	switch {
	case rec.id.Clock < known:
		return stale
	case rec.id.Clock > known:
		return missing
	}
	var origin, rightOrigin *Item
	if rec.origin != nil {
		if origin = d.item(*rec.origin); origin == nil {
			return missing
		}
	}
	if rec.rightOrigin != nil {
		if rightOrigin = d.item(*rec.rightOrigin); rightOrigin == nil {
			return missing
		}
	}
	var parent *Branch
	if rec.parentID != nil {
		pit := d.item(*rec.parentID)
		if pit == nil {
			return missing
		}
		if pit.content.kind != contentType {
			d.log.Warn("item parent is not a shared type", "id", rec.id.String())
			return stale
		}
		parent = pit.content.branch
	} else {
		parent = d.root(rec.parentName)
	}
	c := rec.c
	if c.kind == contentType {
		nb := newBranch(d, rec.typeKind)
		nb.tag = c.key
		c = content{kind: contentType, branch: nb}
	}
	it := &Item{
		ID:          rec.id,
		origin:      origin,
		rightOrigin: rightOrigin,
		parent:      parent,
		key:         rec.key,
		keyed:       rec.keyed,
		left:        origin,
		right:       rightOrigin,
		content:     c,
	}
	if c.kind == contentType {
		c.branch.item = it
	}
	it.integrate(txn)
	return integrated
}

// Pending tells how many items and delete ranges wait for dependencies.
func (d *Doc) Pending() (items, deletes int) {
	return len(d.pending), len(d.pendingDeletes)
}
