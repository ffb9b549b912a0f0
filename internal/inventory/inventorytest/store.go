// Package inventorytest provides an in-memory stock store for tests of
// packages that write to the stock ledger inside their own transactions.
package inventorytest

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/odyssey-erp/backoffice/internal/inventory"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Store implements inventory.TxRepository and inventory.RepositoryPort.
type Store struct {
	mu        sync.Mutex
	stocks    map[int64]inventory.Stock
	histories []inventory.StockHistory
	batches   []inventory.BatchTracking
	nextID    int64
}

// Snapshot is a point-in-time copy of a Store.
type Snapshot struct {
	stocks    map[int64]inventory.Stock
	histories []inventory.StockHistory
	batches   []inventory.BatchTracking
	nextID    int64
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{stocks: make(map[int64]inventory.Stock)}
}

// Snapshot copies the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	stocks := make(map[int64]inventory.Stock, len(s.stocks))
	for id, st := range s.stocks {
		stocks[id] = st
	}
	return Snapshot{
		stocks:    stocks,
		histories: slices.Clone(s.histories),
		batches:   slices.Clone(s.batches),
		nextID:    s.nextID,
	}
}

// Restore resets the store to snap.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stocks = snap.stocks
	s.histories = snap.histories
	s.batches = snap.batches
	s.nextID = snap.nextID
}

// Seed inserts a stock directly and returns its id.
func (s *Store) Seed(stock inventory.Stock) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	stock.ID = s.nextID
	s.stocks[stock.ID] = stock
	return stock.ID
}

// Stock returns the stored stock, ok is false when absent.
func (s *Store) Stock(id int64) (inventory.Stock, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stocks[id]
	return st, ok
}

// Stocks returns every stored stock ordered by id.
func (s *Store) Stocks() []inventory.Stock {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]inventory.Stock, 0, len(s.stocks))
	for _, st := range s.stocks {
		out = append(out, st)
	}
	slices.SortFunc(out, func(a, b inventory.Stock) int { return int(a.ID - b.ID) })
	return out
}

// Histories returns every history entry in insertion order.
func (s *Store) Histories() []inventory.StockHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.histories)
}

// Batches returns every batch in insertion order.
func (s *Store) Batches() []inventory.BatchTracking {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.batches)
}

func (s *Store) InsertStock(_ context.Context, stock inventory.Stock) (int64, error) {
	return s.Seed(stock), nil
}

func (s *Store) GetStock(_ context.Context, id int64) (inventory.Stock, error) {
	if st, ok := s.Stock(id); ok {
		return st, nil
	}
	return inventory.Stock{}, inventory.ErrStockNotFound
}

func (s *Store) FindStock(_ context.Context, sku, name string) (inventory.Stock, error) {
	stocks := s.Stocks()
	if sku != "" {
		for _, st := range stocks {
			if st.SKU == sku {
				return st, nil
			}
		}
	}
	if name != "" {
		for _, st := range stocks {
			if strings.EqualFold(st.ProductName, name) {
				return st, nil
			}
		}
	}
	return inventory.Stock{}, inventory.ErrStockNotFound
}

func (s *Store) DecrementStock(_ context.Context, id, qty int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stocks[id]
	if !ok || st.ReceivedQuantity < qty {
		return 0, false, nil
	}
	st.ReceivedQuantity -= qty
	s.stocks[id] = st
	return st.ReceivedQuantity, true, nil
}

func (s *Store) IncrementStock(_ context.Context, id, qty int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stocks[id]
	if !ok {
		return 0, inventory.ErrStockNotFound
	}
	st.ReceivedQuantity += qty
	s.stocks[id] = st
	return st.ReceivedQuantity, nil
}

func (s *Store) InsertHistory(_ context.Context, entry inventory.StockHistory) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	entry.ID = s.nextID
	s.histories = append(s.histories, entry)
	return entry.ID, nil
}

func (s *Store) InsertBatch(_ context.Context, batch inventory.BatchTracking) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	batch.ID = s.nextID
	s.batches = append(s.batches, batch)
	return batch.ID, nil
}

func (s *Store) ConsumeBatch(_ context.Context, stockID, qty int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, b := range s.batches {
		if b.StockID != stockID || b.Status == inventory.BatchExpired {
			continue
		}
		b.ConsumedQty += qty
		b.CurrentQty -= qty
		switch {
		case b.CurrentQty <= 0:
			b.Status = inventory.BatchDepleted
		case b.Status == inventory.BatchDepleted:
			b.Status = inventory.BatchActive
		}
		s.batches[i] = b
	}
	return nil
}

func (s *Store) ListStocks(_ context.Context, filter shared.ListFilter) ([]inventory.Stock, int, error) {
	var out []inventory.Stock
	for _, st := range s.Stocks() {
		if filter.Search != "" && !strings.Contains(strings.ToLower(st.SKU+" "+st.ProductName), strings.ToLower(filter.Search)) {
			continue
		}
		switch filter.Status {
		case "in_stock":
			if st.ReceivedQuantity <= 0 {
				continue
			}
		case "out_of_stock":
			if st.ReceivedQuantity > 0 {
				continue
			}
		}
		out = append(out, st)
	}
	total := len(out)
	start := min(filter.Offset(), total)
	end := min(start+filter.Normalize().Limit, total)
	return out[start:end], total, nil
}

func (s *Store) ListHistory(_ context.Context, stockID int64) ([]inventory.StockHistory, error) {
	var out []inventory.StockHistory
	for _, h := range s.Histories() {
		if h.StockID == stockID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (s *Store) ListBatches(_ context.Context, stockID int64) ([]inventory.BatchTracking, error) {
	var out []inventory.BatchTracking
	for _, b := range s.Batches() {
		if b.StockID == stockID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Store) FindMismatches(_ context.Context) ([]inventory.Mismatch, error) {
	last := make(map[int64]int64)
	for _, h := range s.Histories() {
		last[h.StockID] = h.QtyAfter
	}
	var out []inventory.Mismatch
	for _, st := range s.Stocks() {
		after, ok := last[st.ID]
		if ok && after != st.ReceivedQuantity {
			out = append(out, inventory.Mismatch{StockID: st.ID, SKU: st.SKU, ReceivedQuantity: st.ReceivedQuantity, LastQtyAfter: after})
		}
	}
	return out, nil
}

func (s *Store) ExpireBatches(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i, b := range s.batches {
		if b.Status == inventory.BatchActive && b.ExpiryDate != nil && b.ExpiryDate.Before(now) {
			b.Status = inventory.BatchExpired
			s.batches[i] = b
			n++
		}
	}
	return n, nil
}
