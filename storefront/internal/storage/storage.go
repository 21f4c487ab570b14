// Package storage keeps the cart snapshot in a named slot of a key-value store.
package storage

import (
	"context"
	"errors"
)

// Storage persists opaque values under named slots.
type Storage interface {
	// Load returns ErrSlotEmpty when nothing is stored under slot.
	Load(ctx context.Context, slot string) ([]byte, error)
	Save(ctx context.Context, slot string, value []byte) error
	Clear(ctx context.Context, slot string) error
	Close() error
}

var ErrSlotEmpty = errors.New("slot empty")
