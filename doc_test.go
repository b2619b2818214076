package yrb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/y-crdt/yrb/engine"
	"github.com/y-crdt/yrb/ybridge_errors"
)

func begin(t *testing.T, d *Document) *Transaction {
	tx, err := d.Transact()
	require.NoError(t, err)
	return tx
}

func TestDocument_ClientID(t *testing.T) {
	a := NewDocument(WithGUID("8ed1b7a0-7a3c-4b8e-9d0f-1d2b0f3e4c5a"))
	b := NewDocument(WithGUID("8ed1b7a0-7a3c-4b8e-9d0f-1d2b0f3e4c5a"))
	assert.Equal(t, a.ClientID(), b.ClientID())
	assert.Zero(t, a.ClientID() & ^uint64(engine.ClientMask))

	c := NewDocument(WithClientID(42))
	assert.Equal(t, uint64(42), c.ClientID())
	assert.NotEmpty(t, c.GUID())
	assert.Equal(t, OffsetUTF32, c.OffsetKind())
}

func TestTransaction_SingleWriter(t *testing.T) {
	d := NewDocument(WithClientID(1))
	tx := begin(t, d)

	_, err := d.Transact()
	assert.ErrorIs(t, err, ybridge_errors.ErrTransactionOpen)
	assert.ErrorIs(t, err, ybridge_errors.ErrTransactionState)

	require.NoError(t, tx.Commit())
	tx = begin(t, d)
	require.NoError(t, tx.Free())
	tx = begin(t, d)
	require.NoError(t, tx.Commit())
}

func TestTransaction_Disposed(t *testing.T) {
	d := NewDocument(WithClientID(1))
	arr, err := d.GetArray("a")
	require.NoError(t, err)
	text, err := d.GetText("t")
	require.NoError(t, err)

	tx := begin(t, d)
	require.NoError(t, tx.Commit())
	assert.True(t, tx.Disposed())

	assert.ErrorIs(t, arr.PushBack(tx, 1), ybridge_errors.ErrTransactionDisposed)
	_, err = arr.Get(tx, 0)
	assert.ErrorIs(t, err, ybridge_errors.ErrTransactionState)
	_, err = text.String(tx)
	assert.ErrorIs(t, err, ybridge_errors.ErrTransactionState)
	_, err = arr.Len(tx)
	assert.ErrorIs(t, err, ybridge_errors.ErrTransactionState)
	_, err = tx.GetMap("m")
	assert.ErrorIs(t, err, ybridge_errors.ErrTransactionState)
	assert.ErrorIs(t, tx.Commit(), ybridge_errors.ErrTransactionDisposed)
	assert.ErrorIs(t, tx.Free(), ybridge_errors.ErrTransactionDisposed)

	var none *Transaction
	assert.ErrorIs(t, arr.PushBack(none, 1), ybridge_errors.ErrTransactionDisposed)
}

func TestTransaction_Foreign(t *testing.T) {
	d1 := NewDocument(WithClientID(1))
	d2 := NewDocument(WithClientID(2))
	arr, err := d1.GetArray("a")
	require.NoError(t, err)

	tx := begin(t, d2)
	defer tx.Free()
	assert.ErrorIs(t, arr.PushBack(tx, 1), ybridge_errors.ErrForeignTransaction)
}

func TestDocument_TransactionCommitsOnError(t *testing.T) {
	d := NewDocument(WithClientID(1))
	arr, err := d.GetArray("a")
	require.NoError(t, err)

	err = d.Transaction(func(tx *Transaction) error {
		require.NoError(t, arr.PushBack(tx, "kept"))
		return arr.Remove(tx, 5)
	})
	assert.ErrorIs(t, err, ybridge_errors.ErrBounds)

	vals, err := transactValue(d, arr.ToSlice)
	require.NoError(t, err)
	assert.Equal(t, []any{"kept"}, vals)
	assert.False(t, d.doc.Busy())
}

func TestDocument_KindMismatch(t *testing.T) {
	d := NewDocument(WithClientID(1))
	_, err := d.GetArray("x")
	require.NoError(t, err)
	_, err = d.GetMap("x")
	assert.ErrorIs(t, err, ybridge_errors.ErrKindMismatch)
}

func TestDocument_UpdateRoundTrip(t *testing.T) {
	d1 := NewDocument(WithClientID(1))
	d2 := NewDocument(WithClientID(2))
	t1, err := d1.GetText("t")
	require.NoError(t, err)

	script := []func(tx *Transaction) error{
		func(tx *Transaction) error { return t1.Insert(tx, 0, "hello world") },
		func(tx *Transaction) error { return t1.RemoveRange(tx, 5, 6) },
		func(tx *Transaction) error { return t1.Insert(tx, 0, ">> ") },
		func(tx *Transaction) error { return t1.Push(tx, "!") },
		func(tx *Transaction) error { return t1.RemoveRange(tx, 0, 1) },
	}
	for _, step := range script {
		require.NoError(t, d1.Transaction(step))
	}

	sv, err := d2.StateVector()
	require.NoError(t, err)
	tx1 := begin(t, d1)
	update, err := tx1.EncodeDiff(sv)
	require.NoError(t, err)
	require.NoError(t, tx1.Free())

	tx2 := begin(t, d2)
	require.NoError(t, tx2.ApplyUpdate(update))
	require.NoError(t, tx2.Commit())

	t2, err := d2.GetText("t")
	require.NoError(t, err)
	s1, err := transactValue(d1, t1.String)
	require.NoError(t, err)
	s2, err := transactValue(d2, t2.String)
	require.NoError(t, err)
	assert.Equal(t, "> hello!", s1)
	assert.Equal(t, s1, s2)
}

func TestDocument_ObserveUpdate(t *testing.T) {
	d1 := NewDocument(WithClientID(1))
	d2 := NewDocument(WithClientID(2))

	var updates [][]byte
	sub := d1.ObserveUpdate(func(update []byte) {
		updates = append(updates, update)
	})
	m, err := d1.GetMap("m")
	require.NoError(t, err)
	require.NoError(t, d1.Transaction(func(tx *Transaction) error {
		_, err := m.Insert(tx, "k", "v")
		return err
	}))
	require.Len(t, updates, 1)

	// an empty transaction emits nothing
	require.NoError(t, d1.Transaction(func(tx *Transaction) error { return nil }))
	require.Len(t, updates, 1)

	require.NoError(t, d2.Sync(updates[0]))
	m2, err := d2.GetMap("m")
	require.NoError(t, err)
	v, err := transactValue(d2, func(tx *Transaction) (any, error) { return m2.Get(tx, "k") })
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	d1.UnobserveUpdate(sub)
	require.NoError(t, d1.Transaction(func(tx *Transaction) error {
		_, err := m.Remove(tx, "k")
		return err
	}))
	assert.Len(t, updates, 1)
}

func TestDocument_SyncMalformed(t *testing.T) {
	d := NewDocument(WithClientID(1))
	err := d.Sync([]byte{0x01, 0x02})
	assert.ErrorIs(t, err, ybridge_errors.ErrDecode)
	assert.False(t, d.doc.Busy())
}
