// Package sequence issues human readable document numbers such as
// PO-2025-06-0007 from per (prefix, period) counters.
package sequence

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
)

// Document prefixes.
const (
	PrefixPurchaseOrder = "PO"
	PrefixGoodsReceipt  = "GRN"
	PrefixSupplier      = "SUP"
)

const width = 4

// Key identifies one counter.
type Key struct {
	Prefix string
	Period string
}

// Monthly returns the counter key for prefix in the month of at.
func Monthly(prefix string, at time.Time) Key {
	return Key{Prefix: prefix, Period: at.Format("2006-01")}
}

// Global returns a counter key that never rolls over.
func Global(prefix string) Key {
	return Key{Prefix: prefix}
}

func (k Key) stem() string {
	if k.Period == "" {
		return k.Prefix + "-"
	}
	return k.Prefix + "-" + k.Period + "-"
}

// Format renders n as a document number, zero padded to four digits.
func (k Key) Format(n int64) string {
	return fmt.Sprintf("%s%0*d", k.stem(), width, n)
}

// Parse extracts the counter value from number. ok is false when number was
// not issued under k.
func (k Key) Parse(number string) (int64, bool) {
	rest, found := strings.CutPrefix(number, k.stem())
	if !found || rest == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Next atomically increments the counter for key and returns the formatted
// number. It runs on q so the increment commits with the caller's writes.
func Next(ctx context.Context, q db.DBTX, key Key) (string, error) {
	var n int64
	err := q.QueryRow(ctx, `INSERT INTO document_sequences (prefix, period, last_number, updated_at)
VALUES ($1, $2, 1, NOW())
ON CONFLICT (prefix, period) DO UPDATE SET last_number = document_sequences.last_number + 1, updated_at = NOW()
RETURNING last_number`, key.Prefix, key.Period).Scan(&n)
	if err != nil {
		return "", fmt.Errorf("sequence %s: %w", key.stem(), err)
	}
	return key.Format(n), nil
}

// Seed raises the counter for key to at least the value encoded in last.
// Numbers not issued under key are ignored.
func Seed(ctx context.Context, q db.DBTX, key Key, last string) error {
	n, ok := key.Parse(last)
	if !ok {
		return nil
	}
	_, err := q.Exec(ctx, `INSERT INTO document_sequences (prefix, period, last_number, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (prefix, period) DO UPDATE SET last_number = GREATEST(document_sequences.last_number, EXCLUDED.last_number), updated_at = NOW()`,
		key.Prefix, key.Period, n)
	return err
}

type source struct {
	key    Key
	table  string
	column string
}

// SeedExisting aligns the counters used at now with the highest numbers already
// stored in the document tables.
func SeedExisting(ctx context.Context, q db.DBTX, now time.Time) error {
	sources := []source{
		{key: Monthly(PrefixPurchaseOrder, now), table: "purchase_orders", column: "number"},
		{key: Monthly(PrefixGoodsReceipt, now), table: "goods_receiving_notes", column: "number"},
		{key: Global(PrefixSupplier), table: "suppliers", column: "code"},
	}
	for _, src := range sources {
		var last string
		// Same-width numbers sort lexicographically; wider ones sort by length first.
		sql := fmt.Sprintf(`SELECT COALESCE(MAX(%[1]s), '') FROM %[2]s WHERE %[1]s LIKE $1 AND LENGTH(%[1]s) = (SELECT MAX(LENGTH(%[1]s)) FROM %[2]s WHERE %[1]s LIKE $1)`, src.column, src.table)
		if err := q.QueryRow(ctx, sql, src.key.stem()+"%").Scan(&last); err != nil {
			return fmt.Errorf("sequence seed %s: %w", src.table, err)
		}
		if err := Seed(ctx, q, src.key, last); err != nil {
			return fmt.Errorf("sequence seed %s: %w", src.table, err)
		}
	}
	return nil
}

// Memory is a process local counter set used by tests and tools.
type Memory struct {
	mu       sync.Mutex
	counters map[Key]int64
}

// NewMemory constructs an empty Memory.
func NewMemory() *Memory {
	return &Memory{counters: make(map[Key]int64)}
}

// Next increments the counter for key.
func (m *Memory) Next(key Key) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[key]++
	return key.Format(m.counters[key])
}

// Seed raises the counter for key to the value encoded in last.
func (m *Memory) Seed(key Key, last string) {
	n, ok := key.Parse(last)
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > m.counters[key] {
		m.counters[key] = n
	}
}
