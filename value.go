package yrb

import (
	"math"
	"reflect"

	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"

	"github.com/y-crdt/yrb/engine"
	"github.com/y-crdt/yrb/rdx"
	"github.com/y-crdt/yrb/ybridge_errors"
)

// Symbol is a symbol-like map key. It is stored as its string form and
// always reads back as a plain string.
type Symbol string

// UndefinedValue is the type of Undefined.
type UndefinedValue struct{}

// Undefined stores the undefined value, as opposed to nil which stores null.
var Undefined = UndefinedValue{}

func normInt[T constraints.Integer](i T) (int64, bool) {
	if i < 0 {
		return int64(i), true
	}
	u := uint64(i)
	if u > math.MaxInt64 {
		return 0, false
	}
	return int64(u), true
}

func intAny[T constraints.Integer](i T) (rdx.Any, error) {
	n, ok := normInt(i)
	if !ok {
		return rdx.Any{}, errors.Wrapf(ybridge_errors.ErrUnsupportedValue, "%d overflows int64", i)
	}
	return rdx.AnyBigInt(n), nil
}

// ToAny converts a Go value to a plain document value. Containers are
// rejected: nested shared types are made with InsertContainer.
func ToAny(v any) (a rdx.Any, err error) {
	a, err = toAny(v)
	if err != nil {
		ConversionFailures.WithLabelValues("write").Inc()
	}
	return
}

func toAny(v any) (rdx.Any, error) {
	switch x := v.(type) {
	case nil:
		return rdx.AnyNull(), nil
	case UndefinedValue:
		return rdx.AnyUndefined(), nil
	case rdx.Any:
		return x, nil
	case bool:
		return rdx.AnyBool(x), nil
	case int:
		return intAny(x)
	case int8:
		return intAny(x)
	case int16:
		return intAny(x)
	case int32:
		return intAny(x)
	case int64:
		return intAny(x)
	case uint:
		return intAny(x)
	case uint8:
		return intAny(x)
	case uint16:
		return intAny(x)
	case uint32:
		return intAny(x)
	case uint64:
		return intAny(x)
	case float32:
		return rdx.AnyNumber(float64(x)), nil
	case float64:
		return rdx.AnyNumber(x), nil
	case string:
		return rdx.AnyString(x), nil
	case Symbol:
		return rdx.AnyString(string(x)), nil
	case []byte:
		return rdx.AnyBuffer(x), nil
	case []any:
		items := make([]rdx.Any, len(x))
		for i, item := range x {
			var err error
			if items[i], err = toAny(item); err != nil {
				return rdx.Any{}, err
			}
		}
		return rdx.AnyArray(items...), nil
	case map[string]any:
		return mapAny(len(x), func(yield func(any, any) bool) {
			for k, v := range x {
				if !yield(k, v) {
					return
				}
			}
		})
	case map[Symbol]any:
		return mapAny(len(x), func(yield func(any, any) bool) {
			for k, v := range x {
				if !yield(k, v) {
					return
				}
			}
		})
	case map[any]any:
		return mapAny(len(x), func(yield func(any, any) bool) {
			for k, v := range x {
				if !yield(k, v) {
					return
				}
			}
		})
	case Container:
		return rdx.Any{}, errors.Wrapf(ybridge_errors.ErrContainerValue, "%s", x.Kind())
	}
	return reflectAny(v)
}

func mapAny(size int, entries func(yield func(k, v any) bool)) (a rdx.Any, err error) {
	m := make(map[string]rdx.Any, size)
	entries(func(k, v any) bool {
		var key string
		if key, err = KeyString(k); err != nil {
			return false
		}
		m[key], err = toAny(v)
		return err == nil
	})
	if err != nil {
		return rdx.Any{}, err
	}
	return rdx.AnyMap(m), nil
}

// reflectAny handles typed slices and maps like []string or map[string]int.
func reflectAny(v any) (rdx.Any, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]rdx.Any, rv.Len())
		for i := range items {
			var err error
			if items[i], err = toAny(rv.Index(i).Interface()); err != nil {
				return rdx.Any{}, err
			}
		}
		return rdx.AnyArray(items...), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return rdx.Any{}, errors.Wrapf(ybridge_errors.ErrInvalidKey, "%T", v)
		}
		iter := rv.MapRange()
		return mapAny(rv.Len(), func(yield func(any, any) bool) {
			for iter.Next() {
				if !yield(iter.Key().String(), iter.Value().Interface()) {
					return
				}
			}
		})
	}
	return rdx.Any{}, ybridge_errors.Unsupported(v)
}

// KeyString normalizes a map key: strings and symbols are accepted.
func KeyString(k any) (string, error) {
	switch x := k.(type) {
	case string:
		return x, nil
	case Symbol:
		return string(x), nil
	}
	return "", errors.Wrapf(ybridge_errors.ErrInvalidKey, "%T", k)
}

// FromAny converts a plain document value to Go. Null and undefined both
// read as nil; map keys are always strings.
func FromAny(a rdx.Any) any {
	switch a.Kind() {
	case rdx.KindBool:
		return a.Bool()
	case rdx.KindNumber:
		return a.Number()
	case rdx.KindBigInt:
		return a.BigInt()
	case rdx.KindString:
		return a.Str()
	case rdx.KindBuffer:
		return append([]byte{}, a.Buffer()...)
	case rdx.KindArray:
		items := make([]any, len(a.Array()))
		for i, item := range a.Array() {
			items[i] = FromAny(item)
		}
		return items
	case rdx.KindMap:
		m := make(map[string]any, len(a.Map()))
		for k, v := range a.Map() {
			m[k] = FromAny(v)
		}
		return m
	}
	return nil
}

// fromOut turns a read result into a Go value. Nested shared types
// become live proxies, never copies.
func fromOut(doc *Document, o engine.Out) any {
	if o.Branch != nil {
		return newContainer(doc, o.Branch)
	}
	return FromAny(o.Value)
}

func fromOuts(doc *Document, outs []engine.Out) []any {
	vals := make([]any, len(outs))
	for i, o := range outs {
		vals[i] = fromOut(doc, o)
	}
	return vals
}

// snapshot deep-copies a read result: arrays and maps are materialized,
// text and XML types are rendered to strings.
func snapshot(txn *engine.Txn, o engine.Out) (any, error) {
	b := o.Branch
	if b == nil {
		return FromAny(o.Value), nil
	}
	switch b.Kind() {
	case engine.KindArray:
		return snapshotSlice(txn, b)
	case engine.KindMap:
		return snapshotMap(txn, b)
	case engine.KindText:
		return b.TextString(txn)
	}
	return b.XmlString(txn)
}

func snapshotSlice(txn *engine.Txn, b *engine.Branch) ([]any, error) {
	outs, err := b.Values(txn)
	if err != nil {
		return nil, err
	}
	vals := make([]any, len(outs))
	for i, o := range outs {
		if vals[i], err = snapshot(txn, o); err != nil {
			return nil, err
		}
	}
	return vals, nil
}

func snapshotMap(txn *engine.Txn, b *engine.Branch) (map[string]any, error) {
	keys, err := b.MapKeys(txn)
	if err != nil {
		return nil, err
	}
	m := make(map[string]any, len(keys))
	for _, k := range keys {
		o, _, err := b.MapGet(txn, k)
		if err != nil {
			return nil, err
		}
		if m[k], err = snapshot(txn, o); err != nil {
			return nil, err
		}
	}
	return m, nil
}
