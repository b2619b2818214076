// Provides the yrb error taxonomy.
//
// Every error returned by the bridge matches exactly one of the four kind
// sentinels under errors.Is; the specific errors wrap their kind.
package ybridge_errors

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
)

var (
	ErrConversion       = errors.New("yrb: conversion error")
	ErrTransactionState = errors.New("yrb: transaction state error")
	ErrDecode           = errors.New("yrb: decode error")
	ErrBounds           = errors.New("yrb: index out of bounds")
)

var (
	ErrUnsupportedValue = pkgerrors.Wrap(ErrConversion, "unsupported value")
	ErrInvalidKey       = pkgerrors.Wrap(ErrConversion, "map key is not a string")
	ErrContainerValue   = pkgerrors.Wrap(ErrConversion, "shared types can not be stored as values, use InsertContainer")
	ErrKindMismatch     = pkgerrors.Wrap(ErrConversion, "shared type kind mismatch")

	ErrTransactionDisposed = pkgerrors.Wrap(ErrTransactionState, "transaction no longer valid")
	ErrTransactionOpen     = pkgerrors.Wrap(ErrTransactionState, "another transaction is open")
	ErrForeignTransaction  = pkgerrors.Wrap(ErrTransactionState, "transaction belongs to a different document")
)

// Unsupported names the offending Go type.
func Unsupported(v any) error {
	return pkgerrors.Wrapf(ErrUnsupportedValue, "%T", v)
}

// OutOfBounds reports an index or range that does not fit a length.
func OutOfBounds(index, length, size uint32) error {
	if length == 0 {
		return pkgerrors.Wrapf(ErrBounds, "index %d, length %d", index, size)
	}
	return pkgerrors.Wrapf(ErrBounds, "range %d+%d, length %d", index, length, size)
}

// Decode marks err as a malformed payload error.
func Decode(err error, what string) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrapf(ErrDecode, "%s: %v", what, err)
}
