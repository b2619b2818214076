package ybridge_errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	kinds := map[error]error{
		ErrUnsupportedValue:    ErrConversion,
		ErrInvalidKey:          ErrConversion,
		ErrContainerValue:      ErrConversion,
		ErrKindMismatch:        ErrConversion,
		ErrTransactionDisposed: ErrTransactionState,
		ErrTransactionOpen:     ErrTransactionState,
		ErrForeignTransaction:  ErrTransactionState,
	}
	for err, kind := range kinds {
		assert.ErrorIs(t, err, kind, err.Error())
		for _, other := range []error{ErrConversion, ErrTransactionState, ErrDecode, ErrBounds} {
			if other != kind {
				assert.False(t, errors.Is(err, other))
			}
		}
	}
}

func TestErrorHelpers(t *testing.T) {
	err := Unsupported(struct{}{})
	assert.ErrorIs(t, err, ErrUnsupportedValue)
	assert.ErrorIs(t, err, ErrConversion)
	assert.Contains(t, err.Error(), "struct {}")

	err = OutOfBounds(5, 1, 3)
	assert.ErrorIs(t, err, ErrBounds)
	assert.Contains(t, err.Error(), "5+1")

	assert.Nil(t, Decode(nil, "update"))
	err = Decode(fmt.Errorf("short"), "update")
	assert.ErrorIs(t, err, ErrDecode)
	assert.Contains(t, err.Error(), "short")
}
