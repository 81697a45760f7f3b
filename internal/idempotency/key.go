package idempotency

import (
	"errors"
	"fmt"
)

// DefaultMaxKeyLength bounds caller-supplied keys; anything longer is a client error.
const DefaultMaxKeyLength = 50

var (
	ErrKeyEmpty   = errors.New("idempotency key cannot be empty")
	ErrKeyTooLong = errors.New("idempotency key is too long")
)

// Key is a validated caller-supplied idempotency key.
type Key string

// ParseKey validates a raw idempotency key before it is allowed anywhere near
// the store. maxLen <= 0 falls back to DefaultMaxKeyLength.
func ParseKey(raw string, maxLen int) (Key, error) {
	if maxLen <= 0 {
		maxLen = DefaultMaxKeyLength
	}
	if raw == "" {
		return "", ErrKeyEmpty
	}
	if len(raw) > maxLen {
		return "", fmt.Errorf("%w: %d bytes, max %d", ErrKeyTooLong, len(raw), maxLen)
	}
	return Key(raw), nil
}

func (k Key) String() string {
	return string(k)
}
