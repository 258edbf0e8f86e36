package domain

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrExtraction       = errors.New("extraction failed")
	ErrRuleFetch        = errors.New("rule fetch failed")
	ErrStoreRead        = errors.New("store read failed")
	ErrDuplicateKey     = errors.New("duplicate natural key")
	ErrInvalidPeriod    = errors.New("invalid report period")
)

// PayloadError names the field that made a payload unusable.
type PayloadError struct {
	Field  string
	Reason string
	Err    error
}

func (e *PayloadError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed payload: %s", e.Reason)
	}
	return fmt.Sprintf("malformed payload: %s: %s", e.Field, e.Reason)
}

func (e *PayloadError) Is(target error) bool {
	return target == ErrMalformedPayload
}

func (e *PayloadError) Unwrap() error {
	return e.Err
}

// StoreWriteError reports a failed insert. The write may or may not have reached the store.
type StoreWriteError struct {
	Err error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("store write failed: %v", e.Err)
}

func (e *StoreWriteError) Unwrap() error {
	return e.Err
}

// MayHaveWritten is always true: an insert that errored cannot be assumed absent.
func (e *StoreWriteError) MayHaveWritten() bool {
	return true
}
