package yrb

import (
	"github.com/pkg/errors"

	"github.com/y-crdt/yrb/rdx"
	"github.com/y-crdt/yrb/ybridge_errors"
)

// ToAttrs builds formatting attributes from a Go map. Keys may be
// strings or symbols; a nil value removes the formatting.
func ToAttrs(attrs any) (rdx.Attrs, error) {
	if attrs == nil {
		return rdx.Attrs{}, nil
	}
	a, err := ToAny(attrs)
	if err != nil {
		return nil, err
	}
	if a.Kind() != rdx.KindMap {
		return nil, errors.Wrapf(ybridge_errors.ErrUnsupportedValue, "attributes must be a map, got %T", attrs)
	}
	return rdx.Attrs(a.Map()), nil
}

// FromAttrs converts attributes back to a Go map with string keys.
func FromAttrs(attrs rdx.Attrs) map[string]any {
	if len(attrs) == 0 {
		return nil
	}
	m := make(map[string]any, len(attrs))
	for k, v := range attrs {
		m[k] = FromAny(v)
	}
	return m
}
