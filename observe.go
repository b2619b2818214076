package yrb

import "github.com/y-crdt/yrb/engine"

// Subscription identifies one registered observer.
type Subscription uint32

// ArrayChange is one entry of a sequence change; exactly one field is set.
type ArrayChange struct {
	Insert []any
	Retain uint32
	Delete uint32
}

type MapAction byte

const (
	MapInserted MapAction = iota + 1
	MapUpdated
	MapRemoved
)

func (a MapAction) String() string {
	switch a {
	case MapInserted:
		return "inserted"
	case MapUpdated:
		return "updated"
	case MapRemoved:
		return "removed"
	}
	return "?"
}

// MapChange is the change of one key. Old is set for updates and
// removals, New for inserts and updates.
type MapChange struct {
	Action MapAction
	Old    any
	New    any
}

// TextDelta is one entry of a text change. Insert is a string, an
// embedded value or a nested type handle; Retain and Delete count offset
// units. Retained runs carry formatting changes, nil meaning removed.
type TextDelta struct {
	Insert     any
	Retain     uint32
	Delete     uint32
	Attributes map[string]any
}

func arrayChanges(doc *Document, deltas []engine.Delta) []ArrayChange {
	changes := make([]ArrayChange, 0, len(deltas))
	for _, d := range deltas {
		switch d.Op {
		case engine.OpInsert:
			changes = append(changes, ArrayChange{Insert: fromOuts(doc, d.Values)})
		case engine.OpRetain:
			changes = append(changes, ArrayChange{Retain: d.Len})
		case engine.OpDelete:
			changes = append(changes, ArrayChange{Delete: d.Len})
		}
	}
	return changes
}

func mapChanges(doc *Document, entries []engine.EntryChange) map[string]MapChange {
	changes := make(map[string]MapChange, len(entries))
	for _, e := range entries {
		ch := MapChange{Action: MapAction(e.Action)}
		if e.Action != engine.EntryInserted {
			ch.Old = fromOut(doc, e.Old)
		}
		if e.Action != engine.EntryRemoved {
			ch.New = fromOut(doc, e.New)
		}
		changes[e.Key] = ch
	}
	return changes
}

func textChanges(doc *Document, deltas []engine.TextDelta) []TextDelta {
	changes := make([]TextDelta, 0, len(deltas))
	for _, d := range deltas {
		td := TextDelta{Attributes: FromAttrs(d.Attributes)}
		switch d.Op {
		case engine.OpInsert:
			td.Insert = fromOut(doc, d.Insert)
		case engine.OpRetain:
			td.Retain = d.Len
		case engine.OpDelete:
			td.Delete = d.Len
		}
		changes = append(changes, td)
	}
	return changes
}

// observe registers one engine listener. The payload is fully built
// before fn runs and shares nothing with the engine.
func observe[P any](s shared, label string, build func(e *engine.Event) P, fn func(P)) Subscription {
	return Subscription(s.b.Observe(func(e *engine.Event) {
		payload := build(e)
		ObserverDeliveries.WithLabelValues(label).Inc()
		fn(payload)
	}))
}

func (s shared) observeSeq(label string, fn func([]ArrayChange)) Subscription {
	return observe(s, label, func(e *engine.Event) []ArrayChange {
		return arrayChanges(s.doc, e.Delta())
	}, fn)
}

func (s shared) observeKeys(label string, fn func(map[string]MapChange)) Subscription {
	return observe(s, label, func(e *engine.Event) map[string]MapChange {
		return mapChanges(s.doc, e.Keys())
	}, fn)
}

func (s shared) observeText(label string, fn func([]TextDelta)) Subscription {
	return observe(s, label, func(e *engine.Event) []TextDelta {
		return textChanges(s.doc, e.TextDelta())
	}, fn)
}
