// Package cart holds the shopper's cart and mirrors every change into a storage slot.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/fjod/boutique/pkg/logger"
	"github.com/fjod/boutique/storefront/internal/domain"
	"github.com/fjod/boutique/storefront/internal/storage"
)

const (
	DefaultSlot = "cart"
	saveTimeout = 2 * time.Second
)

var ErrInvalidQuantity = errors.New("quantity must be at least 1")

// Store is the cart of one shopper. Lines keep insertion order and never hold a
// quantity below 1.
type Store struct {
	mu      sync.Mutex
	storage storage.Storage
	slot    string
	lines   []domain.CartLine
}

// Open loads the snapshot under slot. A missing, empty or unreadable snapshot
// yields an empty cart.
func Open(ctx context.Context, st storage.Storage, slot string) *Store {
	s := &Store{storage: st, slot: slot}

	raw, err := st.Load(ctx, slot)
	switch {
	case errors.Is(err, storage.ErrSlotEmpty):
		return s
	case err != nil:
		logger.FromContext(ctx).WithError(err).Warn("cart snapshot unavailable, starting empty")
		return s
	case len(raw) == 0:
		return s
	}

	var lines []domain.CartLine
	if err := json.Unmarshal(raw, &lines); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("cart snapshot corrupt, starting empty")
		return s
	}
	for _, l := range lines {
		if l.Quantity < 1 {
			continue
		}
		s.lines = append(s.lines, l)
	}
	return s
}

// Add merges quantity into the line with the same product and size, or appends line.
func (s *Store) Add(ctx context.Context, line domain.CartLine, quantity int) error {
	if quantity < 1 {
		return fmt.Errorf("add %d x product %d: %w", quantity, line.ProductID, ErrInvalidQuantity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(line.ProductID, line.Size); i >= 0 {
		s.lines[i].Quantity += quantity
	} else {
		line.Quantity = quantity
		s.lines = append(s.lines, line)
	}
	s.persist(ctx)
	return nil
}

// Remove deletes the matching line. Absent lines are ignored.
func (s *Store) Remove(ctx context.Context, productID int64, size string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.remove(productID, size) {
		s.persist(ctx)
	}
}

// SetQuantity replaces the quantity of a line; zero or less removes it.
func (s *Store) SetQuantity(ctx context.Context, productID int64, size string, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if quantity <= 0 {
		if s.remove(productID, size) {
			s.persist(ctx)
		}
		return
	}

	i := s.indexOf(productID, size)
	if i < 0 {
		return
	}
	s.lines[i].Quantity = quantity
	s.persist(ctx)
}

func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = nil
	sctx, cancel := context.WithTimeout(ctx, saveTimeout)
	defer cancel()
	if err := s.storage.Clear(sctx, s.slot); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("failed to clear cart snapshot")
	}
}

func (s *Store) TotalItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, l := range s.lines {
		n += l.Quantity
	}
	return n
}

func (s *Store) TotalPrice() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := decimal.Zero
	for _, l := range s.lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// Lines returns a copy of the cart in insertion order.
func (s *Store) Lines() []domain.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.CartLine, len(s.lines))
	copy(out, s.lines)
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines)
}

// Close writes the final snapshot. The storage itself stays open.
func (s *Store) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persist(ctx)
}

func (s *Store) indexOf(productID int64, size string) int {
	for i, l := range s.lines {
		if l.SameItem(productID, size) {
			return i
		}
	}
	return -1
}

func (s *Store) remove(productID int64, size string) bool {
	i := s.indexOf(productID, size)
	if i < 0 {
		return false
	}
	s.lines = append(s.lines[:i], s.lines[i+1:]...)
	return true
}

// persist must be called with s.mu held. Failures are logged; the in-memory
// cart stays authoritative.
func (s *Store) persist(ctx context.Context) {
	lines := s.lines
	if lines == nil {
		lines = []domain.CartLine{}
	}
	raw, err := json.Marshal(lines)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Error("failed to encode cart snapshot")
		return
	}

	sctx, cancel := context.WithTimeout(ctx, saveTimeout)
	defer cancel()
	if err := s.storage.Save(sctx, s.slot, raw); err != nil {
		logger.FromContext(ctx).WithError(err).WithFields(log.Fields{
			"slot":  s.slot,
			"lines": len(s.lines),
		}).Warn("failed to persist cart snapshot")
	}
}
