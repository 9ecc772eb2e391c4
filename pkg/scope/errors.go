package scope

import (
	"errors"
	"fmt"

	"tricolor/pkg/value"

	"github.com/google/uuid"
)

var (
	ErrMissingPayload = errors.New("pointer value without payload")
	ErrBadStore       = errors.New("bad store")
	ErrScopeUnderflow = errors.New("scope underflow")
	ErrUnknownClosure = errors.New("unknown closure")
	ErrLoadFailed     = errors.New("load failed")
	ErrStoreFailed    = errors.New("store failed")
)

// LoadError reports an identity that no visible frame binds.
type LoadError struct {
	ID uuid.UUID
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%v: %s", ErrLoadFailed, e.ID)
}

func (e *LoadError) Unwrap() error { return ErrLoadFailed }

// StoreError carries the operand of a store that no visible frame accepted,
// so the caller can report or retry it.
type StoreError struct {
	Value   value.Value
	Payload value.Payload
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%v: %s", ErrStoreFailed, e.Value)
}

func (e *StoreError) Unwrap() error { return ErrStoreFailed }
