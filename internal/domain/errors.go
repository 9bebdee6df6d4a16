package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrNotFound         = errors.New("not found")
	ErrInvalidReceipt   = errors.New("invalid receipt")
	ErrHashMismatch     = errors.New("receipt hash mismatch")
	ErrSignatureInvalid = errors.New("signature invalid")
	ErrUnsupportedAlg   = errors.New("unsupported algorithm")
	ErrStorage          = errors.New("receipt storage failure")
	ErrSealUnavailable  = errors.New("sealing not configured")
	ErrPolicyDenied     = errors.New("policy denied")
)

// SerializationError reports input that cannot be brought into canonical
// JSON form.
type SerializationError struct {
	Op  string
	Err error
}

func (e *SerializationError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("serialization: %v", e.Err)
	}
	return fmt.Sprintf("serialization: %s: %v", e.Op, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// CryptoError reports a failed signing, key derivation or encryption step.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("crypto: %v", e.Err)
	}
	return fmt.Sprintf("crypto: %s: %v", e.Op, e.Err)
}

func (e *CryptoError) Unwrap() error {
	return e.Err
}

func NewSerializationError(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *SerializationError
	if errors.As(err, &existing) {
		return err
	}
	return &SerializationError{Op: op, Err: err}
}

func NewCryptoError(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *CryptoError
	if errors.As(err, &existing) {
		return err
	}
	return &CryptoError{Op: op, Err: err}
}

func IsSerializationError(err error) bool {
	var target *SerializationError
	return errors.As(err, &target)
}

func IsCryptoError(err error) bool {
	var target *CryptoError
	return errors.As(err, &target)
}
