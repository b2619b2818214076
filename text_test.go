package yrb

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/y-crdt/yrb/rdx"
	"github.com/y-crdt/yrb/ybridge_errors"
)

// apply replays a text delta onto the previous content.
func apply(prev string, delta []TextDelta) string {
	runes := []rune(prev)
	var sb strings.Builder
	pos := 0
	for _, d := range delta {
		switch {
		case d.Insert != nil:
			if s, ok := d.Insert.(string); ok {
				sb.WriteString(s)
			}
		case d.Retain > 0:
			sb.WriteString(string(runes[pos : pos+int(d.Retain)]))
			pos += int(d.Retain)
		case d.Delete > 0:
			pos += int(d.Delete)
		}
	}
	sb.WriteString(string(runes[pos:]))
	return sb.String()
}

func TestText_ObserversReconstruct(t *testing.T) {
	d := NewDocument(WithClientID(1))
	text, err := d.GetText("t")
	require.NoError(t, err)

	var first, second [][]TextDelta
	text.Observe(func(delta []TextDelta) { first = append(first, delta) })
	text.Observe(func(delta []TextDelta) { second = append(second, delta) })

	require.NoError(t, d.Transaction(func(tx *Transaction) error {
		require.NoError(t, text.Insert(tx, 0, "ab"))
		require.NoError(t, text.Insert(tx, 2, "cd"))
		return text.RemoveRange(tx, 1, 1)
	}))

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first, second)
	assert.Equal(t, "acd", apply("", first[0]))

	require.NoError(t, d.Transaction(func(tx *Transaction) error {
		require.NoError(t, text.Insert(tx, 1, "Q"))
		return text.RemoveRange(tx, 3, 1)
	}))
	require.Len(t, first, 2)
	assert.Equal(t, "aQc", apply("acd", first[1]))
}

func TestText_Formatting(t *testing.T) {
	d := NewDocument(WithClientID(1))
	text, err := d.GetText("t")
	require.NoError(t, err)
	tx := begin(t, d)
	defer tx.Commit()

	bold := map[string]any{"bold": true}
	italic := map[string]any{"italic": true}
	require.NoError(t, text.Insert(tx, 0, "hello"))
	require.NoError(t, text.Format(tx, 0, 5, bold))
	require.NoError(t, text.InsertWithAttributes(tx, 5, " world", map[Symbol]any{"italic": true}))
	require.NoError(t, text.Push(tx, "!"))

	diffs, err := text.Diff(tx)
	require.NoError(t, err)
	assert.Equal(t, []Diff{
		{Insert: "hello", Attributes: bold},
		{Insert: " world!", Attributes: italic},
	}, diffs)

	require.NoError(t, text.Format(tx, 0, 12, map[string]any{"bold": nil, "italic": nil}))
	diffs, err = text.Diff(tx)
	require.NoError(t, err)
	assert.Equal(t, []Diff{{Insert: "hello world!"}}, diffs)

	s, err := text.String(tx)
	require.NoError(t, err)
	assert.Equal(t, "hello world!", s)

	assert.ErrorIs(t, text.Format(tx, 0, 5, "bold"), ybridge_errors.ErrConversion)
	assert.ErrorIs(t, text.RemoveRange(tx, 10, 5), ybridge_errors.ErrBounds)
}

func TestText_Embed(t *testing.T) {
	d := NewDocument(WithClientID(1))
	text, err := d.GetText("t")
	require.NoError(t, err)
	tx := begin(t, d)
	defer tx.Commit()

	require.NoError(t, text.Insert(tx, 0, "ab"))
	img := map[string]any{"src": "x.png"}
	require.NoError(t, text.InsertEmbedWithAttributes(tx, 1, img, map[string]any{"width": 10}))
	require.NoError(t, text.InsertEmbed(tx, 0, 1.5))

	n, err := text.Len(tx)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), n)
	s, err := text.String(tx)
	require.NoError(t, err)
	assert.Equal(t, "ab", s)

	diffs, err := text.Diff(tx)
	require.NoError(t, err)
	assert.Equal(t, []Diff{
		{Insert: 1.5},
		{Insert: "a"},
		{Insert: img, Attributes: map[string]any{"width": int64(10)}},
		{Insert: "b"},
	}, diffs)

	arr, err := tx.GetArray("a")
	require.NoError(t, err)
	assert.ErrorIs(t, text.InsertEmbed(tx, 0, arr), ybridge_errors.ErrContainerValue)
}

func TestText_Offsets(t *testing.T) {
	for _, tc := range []struct {
		offsets OffsetKind
		length  uint32
	}{
		{OffsetUTF32, 3},
		{OffsetUTF16, 4},
	} {
		d := NewDocument(WithClientID(1), WithOffsetKind(tc.offsets))
		text, err := d.GetText("t")
		require.NoError(t, err)
		n, err := transactValue(d, func(tx *Transaction) (uint32, error) {
			if err := text.Insert(tx, 0, "a😀b"); err != nil {
				return 0, err
			}
			return text.Len(tx)
		})
		require.NoError(t, err)
		assert.Equal(t, tc.length, n, tc.offsets.String())
	}
}

func TestText_DiffSince(t *testing.T) {
	d := NewDocument(WithClientID(1))
	text, err := d.GetText("t")
	require.NoError(t, err)
	tx := begin(t, d)
	defer tx.Commit()

	require.NoError(t, text.Insert(tx, 0, "abc"))
	sv, err := tx.StateVector()
	require.NoError(t, err)
	require.NoError(t, text.Insert(tx, 1, "XY"))

	diffs, err := text.DiffSince(tx, sv)
	require.NoError(t, err)
	require.Len(t, diffs, 3)
	assert.Nil(t, diffs[0].Change)
	assert.Equal(t, "XY", diffs[1].Insert)
	assert.Equal(t, &Change{Kind: ChangeAdded, ID: rdx.ID{Client: 1, Clock: 3}}, diffs[1].Change)
	assert.Nil(t, diffs[2].Change)

	_, err = text.DiffSince(tx, []byte{'v', 1})
	assert.ErrorIs(t, err, ybridge_errors.ErrDecode)
}
