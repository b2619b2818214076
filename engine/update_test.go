package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/y-crdt/yrb/protocol"
	"github.com/y-crdt/yrb/rdx"
	"github.com/y-crdt/yrb/ybridge_errors"
)

func apply(t *testing.T, d *Doc, update []byte) {
	txn := transact(t, d)
	require.NoError(t, txn.ApplyUpdate(update))
	txn.Commit()
}

func TestUpdatesOutOfOrder(t *testing.T) {
	d1 := newTestDoc(1)
	var updates [][]byte
	d1.ObserveUpdate(func(update []byte) { updates = append(updates, update) })

	edit := func(fn func(txn *Txn, text *Branch)) {
		txn := transact(t, d1)
		text, _ := txn.GetOrInsert("t", KindText)
		fn(txn, text)
		txn.Commit()
	}
	edit(func(txn *Txn, text *Branch) { require.NoError(t, text.InsertText(txn, 0, "abc", nil)) })
	edit(func(txn *Txn, text *Branch) { require.NoError(t, text.InsertText(txn, 1, "X", nil)) })
	edit(func(txn *Txn, text *Branch) { require.NoError(t, text.RemoveText(txn, 0, 1)) })
	edit(func(txn *Txn, text *Branch) {})
	require.Len(t, updates, 3)

	d2 := newTestDoc(2)
	apply(t, d2, updates[2])
	apply(t, d2, updates[1])
	items, deletes := d2.Pending()
	assert.Equal(t, 1, items)
	assert.Equal(t, 1, deletes)
	assert.Equal(t, "", textOf(t, d2, "t"))

	apply(t, d2, updates[0])
	items, deletes = d2.Pending()
	assert.Equal(t, 0, items)
	assert.Equal(t, 0, deletes)
	assert.Equal(t, "Xbc", textOf(t, d2, "t"))

	// reapplying is harmless
	apply(t, d2, updates[0])
	assert.Equal(t, "Xbc", textOf(t, d2, "t"))
}

func TestFreeEmitsUpdate(t *testing.T) {
	d1 := newTestDoc(1)
	var updates [][]byte
	d1.ObserveUpdate(func(update []byte) { updates = append(updates, update) })
	fired := 0

	txn := transact(t, d1)
	text, _ := txn.GetOrInsert("t", KindText)
	text.Observe(func(e *Event) { fired++ })
	require.NoError(t, text.InsertText(txn, 0, "abc", nil))
	txn.Free()
	txn = transact(t, d1)
	require.NoError(t, text.InsertText(txn, 3, "d", nil))
	txn.Commit()
	assert.Equal(t, 1, fired)
	require.Len(t, updates, 2)

	d2 := newTestDoc(2)
	for _, update := range updates {
		apply(t, d2, update)
	}
	items, deletes := d2.Pending()
	assert.Zero(t, items+deletes)
	assert.Equal(t, "abcd", textOf(t, d2, "t"))
}

func TestDiffRoundTrip(t *testing.T) {
	d1, d2 := newTestDoc(1), newTestDoc(2)
	txn := transact(t, d1)
	m, _ := txn.GetOrInsert("m", KindMap)
	nested, _ := m.MapInsertType(txn, "list", KindArray, "")
	require.NoError(t, nested.Insert(txn, 0, rdx.AnyString("x"), rdx.AnyNumber(1.5)))
	_, _, _ = m.MapInsert(txn, "k", rdx.AnyMap(map[string]rdx.Any{"deep": rdx.AnyBool(true)}))
	frag, _ := txn.GetOrInsert("x", KindXmlFragment)
	el, _ := frag.InsertType(txn, 0, KindXmlElement, "p")
	_, _, _ = el.MapInsert(txn, "id", rdx.AnyString("1"))
	txn.Commit()

	syncDocs(t, d1, d2)

	txn = transact(t, d2)
	defer txn.Commit()
	m2, err := txn.GetOrInsert("m", KindMap)
	require.NoError(t, err)
	out, ok, _ := m2.MapGet(txn, "list")
	require.True(t, ok)
	require.NotNil(t, out.Branch)
	assert.Equal(t, KindArray, out.Branch.Kind())
	outs, _ := out.Branch.Values(txn)
	require.Len(t, outs, 2)
	assert.Equal(t, "x", outs[0].Value.Str())
	out, _, _ = m2.MapGet(txn, "k")
	assert.True(t, out.Value.Map()["deep"].Bool())
	frag2, _ := txn.GetOrInsert("x", KindXmlFragment)
	s, _ := frag2.XmlString(txn)
	assert.Equal(t, `<p id="1"></p>`, s)

	sv1 := transact(t, d1)
	assert.Equal(t, sv1.StateVector(), txn.StateVector())
	sv1.Free()
}

func TestMalformedUpdates(t *testing.T) {
	d := newTestDoc(1)
	txn := transact(t, d)
	defer txn.Commit()
	bad := [][]byte{
		{0x01, 0x02},
		{'i', 9, 1},
		protocol.Record('I', protocol.Record('C', rdx.ID{Client: 5}.ZipBytes())),
		protocol.Record('I', protocol.Record('C', []byte{1, 2, 3, 4, 5, 6, 7})),
		protocol.Record('Q'),
		protocol.Record('D', protocol.Record('C', []byte{1}), protocol.Record('R', []byte{1, 2, 3, 4, 5, 6, 7})),
	}
	for _, update := range bad {
		err := txn.ApplyUpdate(update)
		assert.ErrorIs(t, err, ybridge_errors.ErrDecode)
	}
	_, err := txn.EncodeDiff([]byte{'v', 1})
	assert.ErrorIs(t, err, ybridge_errors.ErrDecode)
	assert.Equal(t, 0, len(txn.StateVector()))
}
