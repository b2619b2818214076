package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/y-crdt/yrb/rdx"
)

func TestTextEventReconstructs(t *testing.T) {
	d := newTestDoc(1)
	txn := transact(t, d)
	text, _ := txn.GetOrInsert("t", KindText)
	txn.Commit()

	var calls []string
	var got [][]TextDelta
	text.Observe(func(e *Event) {
		calls = append(calls, "first")
		got = append(got, e.TextDelta())
	})
	text.Observe(func(e *Event) {
		calls = append(calls, "second")
		got = append(got, e.TextDelta())
	})

	txn = transact(t, d)
	require.NoError(t, text.InsertText(txn, 0, "ab", nil))
	require.NoError(t, text.InsertText(txn, 2, "cd", nil))
	require.NoError(t, text.RemoveText(txn, 1, 1))
	txn.Commit()

	assert.Equal(t, []string{"first", "second"}, calls)
	for _, delta := range got {
		require.Len(t, delta, 1)
		assert.Equal(t, OpInsert, delta[0].Op)
		assert.Equal(t, "acd", delta[0].Insert.Value.Str())
		assert.Equal(t, uint32(3), delta[0].Len)
	}
}

func TestTextEventRetainDelete(t *testing.T) {
	d := newTestDoc(1)
	txn := transact(t, d)
	text, _ := txn.GetOrInsert("t", KindText)
	require.NoError(t, text.InsertText(txn, 0, "xyz", nil))
	txn.Commit()

	var delta []TextDelta
	text.Observe(func(e *Event) { delta = e.TextDelta() })
	txn = transact(t, d)
	require.NoError(t, text.InsertText(txn, 1, "Q", nil))
	require.NoError(t, text.RemoveText(txn, 2, 1))
	txn.Commit()
	require.Len(t, delta, 3)
	assert.Equal(t, TextDelta{Op: OpRetain, Len: 1}, delta[0])
	assert.Equal(t, OpInsert, delta[1].Op)
	assert.Equal(t, "Q", delta[1].Insert.Value.Str())
	assert.Equal(t, TextDelta{Op: OpDelete, Len: 1}, delta[2])

	txn = transact(t, d)
	require.NoError(t, text.Format(txn, 0, 2, bold))
	txn.Commit()
	require.Len(t, delta, 1)
	assert.Equal(t, OpRetain, delta[0].Op)
	assert.Equal(t, uint32(2), delta[0].Len)
	assert.Equal(t, bold, delta[0].Attributes)
}

func TestArrayEvent(t *testing.T) {
	d := newTestDoc(1)
	txn := transact(t, d)
	arr, _ := txn.GetOrInsert("a", KindArray)
	require.NoError(t, arr.Insert(txn, 0, rdx.AnyBigInt(1), rdx.AnyBigInt(2), rdx.AnyBigInt(3)))
	txn.Commit()

	var delta []Delta
	sub := arr.Observe(func(e *Event) { delta = e.Delta() })
	txn = transact(t, d)
	require.NoError(t, arr.Insert(txn, 1, rdx.AnyBigInt(9)))
	require.NoError(t, arr.Remove(txn, 3, 1))
	txn.Commit()
	require.Len(t, delta, 4)
	assert.Equal(t, Delta{Op: OpRetain, Len: 1}, delta[0])
	assert.Equal(t, OpInsert, delta[1].Op)
	require.Len(t, delta[1].Values, 1)
	assert.Equal(t, int64(9), delta[1].Values[0].Value.BigInt())
	assert.Equal(t, Delta{Op: OpRetain, Len: 1}, delta[2])
	assert.Equal(t, Delta{Op: OpDelete, Len: 1}, delta[3])

	assert.True(t, arr.Unobserve(sub))
	assert.False(t, arr.Unobserve(sub))
	delta = nil
	txn = transact(t, d)
	require.NoError(t, arr.Insert(txn, 0, rdx.AnyNull()))
	txn.Commit()
	assert.Nil(t, delta)
}

func TestMapEvent(t *testing.T) {
	d := newTestDoc(1)
	txn := transact(t, d)
	m, _ := txn.GetOrInsert("m", KindMap)
	_, _, _ = m.MapInsert(txn, "a", rdx.AnyBigInt(1))
	_, _, _ = m.MapInsert(txn, "b", rdx.AnyBigInt(2))
	txn.Commit()

	var changes []EntryChange
	m.Observe(func(e *Event) { changes = e.Keys() })
	txn = transact(t, d)
	_, _, _ = m.MapInsert(txn, "a", rdx.AnyBigInt(5))
	_, _, _ = m.MapRemove(txn, "b")
	_, _, _ = m.MapInsert(txn, "c", rdx.AnyBigInt(3))
	_, _, _ = m.MapInsert(txn, "d", rdx.AnyBigInt(4))
	_, _, _ = m.MapRemove(txn, "d")
	txn.Commit()

	require.Len(t, changes, 3)
	assert.Equal(t, "a", changes[0].Key)
	assert.Equal(t, EntryUpdated, changes[0].Action)
	assert.Equal(t, int64(1), changes[0].Old.Value.BigInt())
	assert.Equal(t, int64(5), changes[0].New.Value.BigInt())
	assert.Equal(t, "b", changes[1].Key)
	assert.Equal(t, EntryRemoved, changes[1].Action)
	assert.Equal(t, int64(2), changes[1].Old.Value.BigInt())
	assert.Equal(t, "c", changes[2].Key)
	assert.Equal(t, EntryInserted, changes[2].Action)
	assert.Equal(t, int64(3), changes[2].New.Value.BigInt())
}

func TestNewTypesDoNotFire(t *testing.T) {
	d := newTestDoc(1)
	txn := transact(t, d)
	arr, _ := txn.GetOrInsert("a", KindArray)
	txn.Commit()
	fired := 0
	arr.Observe(func(e *Event) { fired++ })

	txn = transact(t, d)
	nested, err := arr.InsertType(txn, 0, KindArray, "")
	require.NoError(t, err)
	nestedFired := 0
	nested.Observe(func(e *Event) { nestedFired++ })
	require.NoError(t, nested.Insert(txn, 0, rdx.AnyBigInt(1)))
	txn.Commit()
	assert.Equal(t, 1, fired)
	assert.Equal(t, 0, nestedFired)

	txn = transact(t, d)
	require.NoError(t, nested.Insert(txn, 1, rdx.AnyBigInt(2)))
	txn.Commit()
	assert.Equal(t, 1, fired)
	assert.Equal(t, 1, nestedFired)
}
