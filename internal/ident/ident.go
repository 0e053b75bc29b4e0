// Package ident provides identifier generation for entities and sync operations.
package ident

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

var numericRegex = regexp.MustCompile(`^[0-9]+$`)

var (
	mu     sync.Mutex
	lastID uint64
)

// NewEntityID generates a numeric-string entity identifier derived from the
// current time in milliseconds plus a three-digit random suffix. IDs are
// strictly monotonic within a process, so creation order is recoverable by
// comparing ids numerically.
func NewEntityID() string {
	mu.Lock()
	defer mu.Unlock()

	id := uint64(time.Now().UnixMilli())*1000 + uint64(rand.IntN(1000))
	if id <= lastID {
		id = lastID + 1
	}
	lastID = id

	return strconv.FormatUint(id, 10)
}

// NewOperationID generates a UUID v4 for queue operations and conflict records.
func NewOperationID() string {
	return uuid.New().String()
}

// IsEntityID checks whether a string is a valid numeric entity identifier.
func IsEntityID(s string) bool {
	return s != "" && numericRegex.MatchString(s)
}

// Validate returns an error if the string is not a valid entity identifier.
func Validate(s string) error {
	if !IsEntityID(s) {
		return fmt.Errorf("invalid entity id: %q", s)
	}
	return nil
}
