package yrb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/y-crdt/yrb/ybridge_errors"
)

func TestMap_KeyNormalization(t *testing.T) {
	d := NewDocument(WithClientID(1))
	m, err := d.GetMap("m")
	require.NoError(t, err)
	tx := begin(t, d)
	defer tx.Commit()

	_, err = m.Insert(tx, "x", 1)
	require.NoError(t, err)
	_, err = m.Insert(tx, Symbol("y"), 2)
	require.NoError(t, err)

	v, err := m.Get(tx, Symbol("x"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
	v, err = m.Get(tx, "y")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	keys, err := m.Keys(tx)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, keys)

	_, err = m.Insert(tx, 3, "v")
	assert.ErrorIs(t, err, ybridge_errors.ErrInvalidKey)
}

func TestMap_Ops(t *testing.T) {
	d := NewDocument(WithClientID(1))
	m, err := d.GetMap("m")
	require.NoError(t, err)
	tx := begin(t, d)
	defer tx.Commit()

	prev, err := m.Insert(tx, "a", "one")
	require.NoError(t, err)
	assert.Nil(t, prev)
	prev, err = m.Insert(tx, "a", "two")
	require.NoError(t, err)
	assert.Equal(t, "one", prev)

	v, err := m.Get(tx, "missing")
	require.NoError(t, err)
	assert.Nil(t, v)
	ok, err := m.Contains(tx, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	sub, err := m.InsertContainer(tx, "list", KindArray)
	require.NoError(t, err)
	require.NoError(t, sub.(*Array).PushBack(tx, []byte("raw")))

	contents, err := m.ToMap(tx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "two", "list": []any{[]byte("raw")}}, contents)
	js, err := m.ToJSON(tx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"two","list":["cmF3"]}`, string(js))

	removed, err := m.Remove(tx, "a")
	require.NoError(t, err)
	assert.Equal(t, "two", removed)
	removed, err = m.Remove(tx, "a")
	require.NoError(t, err)
	assert.Nil(t, removed)

	require.NoError(t, m.Clear(tx))
	n, err := m.Len(tx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMap_Observe(t *testing.T) {
	d := NewDocument(WithClientID(1))
	m, err := d.GetMap("m")
	require.NoError(t, err)
	require.NoError(t, d.Transaction(func(tx *Transaction) error {
		_, err := m.Insert(tx, "a", 1)
		return err
	}))

	var got map[string]MapChange
	m.Observe(func(changes map[string]MapChange) { got = changes })
	require.NoError(t, d.Transaction(func(tx *Transaction) error {
		if _, err := m.Insert(tx, "a", 2); err != nil {
			return err
		}
		_, err := m.Insert(tx, Symbol("b"), true)
		return err
	}))
	assert.Equal(t, map[string]MapChange{
		"a": {Action: MapUpdated, Old: int64(1), New: int64(2)},
		"b": {Action: MapInserted, New: true},
	}, got)

	require.NoError(t, d.Transaction(func(tx *Transaction) error {
		_, err := m.Remove(tx, "a")
		return err
	}))
	assert.Equal(t, map[string]MapChange{
		"a": {Action: MapRemoved, Old: int64(2)},
	}, got)
}
