package store

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/y-crdt/yrb"
)

func open(t *testing.T, dir string) *Store {
	s, err := Open(dir, Options{})
	require.NoError(t, err)
	return s
}

func textOf(t *testing.T, doc *yrb.Document, name string) string {
	text, err := doc.GetText(name)
	require.NoError(t, err)
	tx, err := doc.Transact()
	require.NoError(t, err)
	defer tx.Free()
	s, err := text.String(tx)
	require.NoError(t, err)
	return s
}

func edit(t *testing.T, doc *yrb.Document, fn func(tx *yrb.Transaction, text *yrb.Text) error) {
	text, err := doc.GetText("t")
	require.NoError(t, err)
	require.NoError(t, doc.Transaction(func(tx *yrb.Transaction) error {
		return fn(tx, text)
	}))
}

func TestStore_AttachLoad(t *testing.T) {
	dir := t.TempDir()
	s := open(t, dir)

	doc := yrb.NewDocument(yrb.WithClientID(1))
	_, err := s.Attach("notes", doc)
	require.NoError(t, err)
	edit(t, doc, func(tx *yrb.Transaction, text *yrb.Text) error { return text.Insert(tx, 0, "hello") })
	edit(t, doc, func(tx *yrb.Transaction, text *yrb.Text) error { return text.Push(tx, " world") })
	edit(t, doc, func(tx *yrb.Transaction, text *yrb.Text) error { return text.RemoveRange(tx, 0, 1) })
	require.NoError(t, s.Flush(context.Background()))

	updates, err := s.Updates("notes")
	require.NoError(t, err)
	// the first commit only created the root and emitted nothing
	assert.Len(t, updates, 3)
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Close(), ErrClosed)

	s = open(t, dir)
	defer s.Close()
	names, err := s.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"notes"}, names)

	replica := yrb.NewDocument(yrb.WithClientID(2))
	n, err := s.Load("notes", replica)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "ello world", textOf(t, replica, "t"))

	seq, err := s.Append("notes", []byte{})
	require.NoError(t, err)
	assert.Equal(t, uint64(4), seq)
}

func TestStore_FreedTransactionPersists(t *testing.T) {
	s := open(t, t.TempDir())
	defer s.Close()

	doc := yrb.NewDocument(yrb.WithClientID(1))
	_, err := s.Attach("freed", doc)
	require.NoError(t, err)
	peer := yrb.NewDocument(yrb.WithClientID(3))
	var live [][]byte
	sub := doc.ObserveUpdate(func(update []byte) { live = append(live, update) })
	defer doc.UnobserveUpdate(sub)

	text, err := doc.GetText("t")
	require.NoError(t, err)
	tx, err := doc.Transact()
	require.NoError(t, err)
	require.NoError(t, text.Insert(tx, 0, "abc"))
	require.NoError(t, tx.Free())
	edit(t, doc, func(tx *yrb.Transaction, text *yrb.Text) error { return text.Push(tx, "d") })
	require.NoError(t, s.Flush(context.Background()))

	replica := yrb.NewDocument(yrb.WithClientID(2))
	_, err = s.Load("freed", replica)
	require.NoError(t, err)
	assert.Equal(t, "abcd", textOf(t, replica, "t"))

	require.Len(t, live, 2)
	for _, update := range live {
		require.NoError(t, peer.Transaction(func(tx *yrb.Transaction) error {
			return tx.ApplyUpdate(update)
		}))
	}
	assert.Equal(t, "abcd", textOf(t, peer, "t"))
}

func TestStore_Compact(t *testing.T) {
	s := open(t, t.TempDir())
	defer s.Close()

	doc := yrb.NewDocument(yrb.WithClientID(1))
	_, err := s.Attach("a", doc)
	require.NoError(t, err)
	for _, word := range []string{"one ", "two ", "three"} {
		edit(t, doc, func(tx *yrb.Transaction, text *yrb.Text) error { return text.Push(tx, word) })
	}
	require.NoError(t, s.Compact("a", doc))

	updates, err := s.Updates("a")
	require.NoError(t, err)
	assert.Len(t, updates, 1)

	edit(t, doc, func(tx *yrb.Transaction, text *yrb.Text) error { return text.RemoveRange(tx, 0, 4) })
	require.NoError(t, s.Flush(context.Background()))

	replica := yrb.NewDocument(yrb.WithClientID(2))
	n, err := s.Load("a", replica)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "two three", textOf(t, replica, "t"))
}

func TestStore_Names(t *testing.T) {
	s := open(t, t.TempDir())
	defer s.Close()

	for _, name := range []string{"b", "a", "a\x01b", "a"} {
		_, err := s.Append(name, []byte(name))
		require.NoError(t, err)
	}
	names, err := s.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a\x01b", "b"}, names)

	updates, err := s.Updates("a")
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("a"), []byte("a")}, updates)

	require.NoError(t, s.Delete("a"))
	names, err = s.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"a\x01b", "b"}, names)

	_, err = s.Append("", nil)
	assert.ErrorIs(t, err, ErrBadName)
	_, err = s.Append("x\x00y", nil)
	assert.ErrorIs(t, err, ErrBadName)
}

func TestStore_SequenceCacheEviction(t *testing.T) {
	s, err := Open(t.TempDir(), Options{SeqCacheSize: 1})
	require.NoError(t, err)
	defer s.Close()

	names := []string{"a", "b", "c"}
	for round := uint64(1); round <= 3; round++ {
		for _, name := range names {
			seq, err := s.Append(name, []byte{byte(round)})
			require.NoError(t, err)
			assert.Equal(t, round, seq, name)
		}
	}

	docs := make([]*yrb.Document, len(names))
	for i, name := range names {
		docs[i] = yrb.NewDocument(yrb.WithClientID(uint64(i + 1)))
		_, err = s.Attach(name, docs[i])
		require.NoError(t, err)
	}
	for _, word := range []string{"x", "y"} {
		for _, doc := range docs {
			edit(t, doc, func(tx *yrb.Transaction, text *yrb.Text) error { return text.Push(tx, word) })
		}
	}
	require.NoError(t, s.Flush(context.Background()))
	for _, name := range names {
		updates, err := s.Updates(name)
		require.NoError(t, err)
		assert.Len(t, updates, 5, name)
		seq, err := s.Append(name, nil)
		require.NoError(t, err)
		assert.Equal(t, uint64(6), seq, name)
	}

	require.NoError(t, s.Delete("a"))
	seq, err := s.Append("a", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)
}

func TestStore_Collector(t *testing.T) {
	s := open(t, t.TempDir())
	defer s.Close()
	_, err := s.Append("a", []byte{1})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewCollector(s)))
	count, err := testutil.GatherAndCount(reg, "yrb_store_updates_appended_total", "yrb_store_documents")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
