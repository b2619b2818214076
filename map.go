package yrb

import (
	"encoding/json"

	"github.com/y-crdt/yrb/engine"
)

// Map is a handle to a shared map. Keys may be given as strings or
// symbols and always read back as strings.
type Map struct {
	shared
}

func (m *Map) keyed(key any, fn func(txn *engine.Txn, key string) (any, error)) func(txn *engine.Txn) (any, error) {
	return func(txn *engine.Txn) (any, error) {
		k, err := KeyString(key)
		if err != nil {
			return nil, err
		}
		return fn(txn, k)
	}
}

// Get reads a key; an absent key reads as nil.
func (m *Map) Get(tx *Transaction, key any) (any, error) {
	return withTx(tx, m.doc, m.keyed(key, func(txn *engine.Txn, k string) (any, error) {
		out, ok, err := m.b.MapGet(txn, k)
		if err != nil || !ok {
			return nil, err
		}
		return fromOut(m.doc, out), nil
	}))
}

func (m *Map) Contains(tx *Transaction, key any) (bool, error) {
	v, err := withTx(tx, m.doc, m.keyed(key, func(txn *engine.Txn, k string) (any, error) {
		_, ok, err := m.b.MapGet(txn, k)
		return ok, err
	}))
	ok, _ := v.(bool)
	return ok, err
}

// Insert sets a key and returns the value it replaced, nil if none.
func (m *Map) Insert(tx *Transaction, key any, value any) (any, error) {
	return withTx(tx, m.doc, m.keyed(key, func(txn *engine.Txn, k string) (any, error) {
		anyv, err := ToAny(value)
		if err != nil {
			return nil, err
		}
		prev, had, err := m.b.MapInsert(txn, k, anyv)
		if err != nil || !had {
			return nil, err
		}
		return fromOut(m.doc, prev), nil
	}))
}

// InsertContainer sets a key to a new nested shared type.
func (m *Map) InsertContainer(tx *Transaction, key any, kind Kind) (Container, error) {
	c, err := withTx(tx, m.doc, m.keyed(key, func(txn *engine.Txn, k string) (any, error) {
		b, err := m.b.MapInsertType(txn, k, kind, "")
		if err != nil {
			return nil, err
		}
		return newContainer(m.doc, b), nil
	}))
	if err != nil {
		return nil, err
	}
	return c.(Container), nil
}

// Remove deletes a key and returns its value; removing an absent key
// returns nil.
func (m *Map) Remove(tx *Transaction, key any) (any, error) {
	return withTx(tx, m.doc, m.keyed(key, func(txn *engine.Txn, k string) (any, error) {
		prev, had, err := m.b.MapRemove(txn, k)
		if err != nil || !had {
			return nil, err
		}
		return fromOut(m.doc, prev), nil
	}))
}

// Clear removes every key.
func (m *Map) Clear(tx *Transaction) error {
	return tx.with(m.doc, func(txn *engine.Txn) error {
		keys, err := m.b.MapKeys(txn)
		for _, k := range keys {
			if _, _, err = m.b.MapRemove(txn, k); err != nil {
				break
			}
		}
		return err
	})
}

// Keys lists the keys, sorted.
func (m *Map) Keys(tx *Transaction) ([]string, error) {
	return withTx(tx, m.doc, m.b.MapKeys)
}

// Each calls fn with every entry in key order until fn returns false.
func (m *Map) Each(tx *Transaction, fn func(key string, value any) bool) error {
	type entry struct {
		key string
		out engine.Out
	}
	entries, err := withTx(tx, m.doc, func(txn *engine.Txn) ([]entry, error) {
		keys, err := m.b.MapKeys(txn)
		if err != nil {
			return nil, err
		}
		entries := make([]entry, 0, len(keys))
		for _, k := range keys {
			out, _, _ := m.b.MapGet(txn, k)
			entries = append(entries, entry{k, out})
		}
		return entries, nil
	})
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !fn(e.key, fromOut(m.doc, e.out)) {
			break
		}
	}
	return nil
}

// ToMap returns a deep copy of the contents.
func (m *Map) ToMap(tx *Transaction) (map[string]any, error) {
	return withTx(tx, m.doc, func(txn *engine.Txn) (map[string]any, error) {
		return snapshotMap(txn, m.b)
	})
}

// ToJSON renders the contents as a JSON object. Buffers come out base64
// encoded; undefined values come out as null.
func (m *Map) ToJSON(tx *Transaction) ([]byte, error) {
	contents, err := m.ToMap(tx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(contents)
}

// Observe registers fn to receive the changed keys of every commit.
func (m *Map) Observe(fn func(changes map[string]MapChange)) Subscription {
	return m.observeKeys("map", fn)
}
