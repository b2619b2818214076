package yrb

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/y-crdt/yrb/rdx"
	"github.com/y-crdt/yrb/ybridge_errors"
)

func TestValue_RoundTrip(t *testing.T) {
	cases := []struct {
		name string
		in   any
		out  any
	}{
		{"null", nil, nil},
		{"undefined", Undefined, nil},
		{"true", true, true},
		{"false", false, false},
		{"int", 7, int64(7)},
		{"negative", int8(-5), int64(-5)},
		{"min", int64(math.MinInt64), int64(math.MinInt64)},
		{"max", uint64(math.MaxInt64), int64(math.MaxInt64)},
		{"float", 1.5, 1.5},
		{"float32", float32(0.25), 0.25},
		{"string", "żółw", "żółw"},
		{"symbol", Symbol("sym"), "sym"},
		{"buffer", []byte{0, 1, 0xff}, []byte{0, 1, 0xff}},
		{"array", []any{1, "a", []any{true, nil}}, []any{int64(1), "a", []any{true, nil}}},
		{"typed slice", []string{"a", "b"}, []any{"a", "b"}},
		{"map", map[string]any{"a": 1, "n": map[string]any{"b": nil}},
			map[string]any{"a": int64(1), "n": map[string]any{"b": nil}}},
		{"symbol keys", map[Symbol]any{"k": 2.5}, map[string]any{"k": 2.5}},
		{"typed map", map[string]int{"x": 3}, map[string]any{"x": int64(3)}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			a, err := ToAny(c.in)
			require.NoError(t, err)
			assert.Equal(t, c.out, FromAny(a))

			// a stored value survives the update encoding too
			back, err := rdx.ParseAny(a.TLV())
			require.NoError(t, err)
			assert.True(t, a.Equal(back))
		})
	}
}

func TestValue_Unsupported(t *testing.T) {
	_, err := ToAny(uint64(math.MaxUint64))
	assert.ErrorIs(t, err, ybridge_errors.ErrUnsupportedValue)
	assert.ErrorIs(t, err, ybridge_errors.ErrConversion)

	_, err = ToAny(struct{ A int }{1})
	assert.ErrorIs(t, err, ybridge_errors.ErrUnsupportedValue)

	_, err = ToAny(map[int]any{1: 1})
	assert.ErrorIs(t, err, ybridge_errors.ErrInvalidKey)

	_, err = ToAny(map[any]any{1.5: 1})
	assert.ErrorIs(t, err, ybridge_errors.ErrInvalidKey)

	_, err = ToAny([]any{1, make(chan int)})
	assert.ErrorIs(t, err, ybridge_errors.ErrConversion)

	d := NewDocument(WithClientID(1))
	arr, err := d.GetArray("a")
	require.NoError(t, err)
	_, err = ToAny(arr)
	assert.ErrorIs(t, err, ybridge_errors.ErrContainerValue)
}

func TestValue_Attrs(t *testing.T) {
	attrs, err := ToAttrs(map[Symbol]any{"bold": true, "color": nil})
	require.NoError(t, err)
	assert.True(t, attrs["bold"].Bool())
	assert.True(t, attrs["color"].IsNull())
	assert.Equal(t, map[string]any{"bold": true, "color": nil}, FromAttrs(attrs))

	empty, err := ToAttrs(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.Nil(t, FromAttrs(empty))

	_, err = ToAttrs("bold")
	assert.ErrorIs(t, err, ybridge_errors.ErrUnsupportedValue)
}
