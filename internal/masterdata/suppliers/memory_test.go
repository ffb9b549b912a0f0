package suppliers

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/odyssey-erp/backoffice/internal/sequence"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

type memoryRepo struct {
	mu        sync.Mutex
	suppliers map[int64]Supplier
	nextID    int64
	seq       *sequence.Memory
	inUse     map[int64]bool
	gets      atomic.Int64

	// gate, when set, holds Get until it is closed or ctx ends. Each gated
	// Get signals entered and reports its outcome on gated.
	gate    chan struct{}
	entered chan struct{}
	gated   chan error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{suppliers: make(map[int64]Supplier), seq: sequence.NewMemory(), inUse: make(map[int64]bool)}
}

func (r *memoryRepo) List(_ context.Context, filter Filter) ([]Supplier, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []Supplier
	for _, s := range r.suppliers {
		if filter.Search != "" && !strings.Contains(strings.ToLower(s.Name+" "+s.Code), strings.ToLower(filter.Search)) {
			continue
		}
		if (filter.Status == "active" && !s.IsActive) || (filter.Status == "inactive" && s.IsActive) {
			continue
		}
		matched = append(matched, s)
	}
	slices.SortFunc(matched, func(a, b Supplier) int { return strings.Compare(a.Name, b.Name) })
	total := len(matched)
	start := min(filter.Offset(), total)
	end := min(start+filter.Limit, total)
	return matched[start:end], total, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Supplier, error) {
	r.gets.Add(1)
	if r.gate != nil {
		r.entered <- struct{}{}
		select {
		case <-r.gate:
			r.gated <- nil
		case <-ctx.Done():
			r.gated <- ctx.Err()
			return Supplier{}, ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.suppliers[id]
	if !ok {
		return Supplier{}, ErrSupplierNotFound
	}
	return s, nil
}

func (r *memoryRepo) NextCode(context.Context) (string, error) {
	return r.seq.Next(sequence.Global(sequence.PrefixSupplier)), nil
}

func (r *memoryRepo) conflict(s Supplier) error {
	for id, other := range r.suppliers {
		if id == s.ID {
			continue
		}
		if other.Code == s.Code {
			return ErrDuplicateCode
		}
		if s.Email != "" && other.Email == s.Email {
			return ErrDuplicateEmail
		}
	}
	return nil
}

func (r *memoryRepo) Create(_ context.Context, s Supplier) (Supplier, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.conflict(s); err != nil {
		return Supplier{}, err
	}
	r.nextID++
	s.ID = r.nextID
	r.suppliers[s.ID] = s
	return s, nil
}

func (r *memoryRepo) Update(_ context.Context, s Supplier) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.suppliers[s.ID]; !ok {
		return ErrSupplierNotFound
	}
	if err := r.conflict(s); err != nil {
		return err
	}
	r.suppliers[s.ID] = s
	return nil
}

func (r *memoryRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.suppliers[id]; !ok {
		return ErrSupplierNotFound
	}
	if r.inUse[id] {
		return ErrSupplierInUse
	}
	delete(r.suppliers, id)
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []shared.Event
}

func (n *recordingNotifier) Notify(_ context.Context, evt shared.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evt)
	return nil
}

func (n *recordingNotifier) types() []shared.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]shared.EventType, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

var fixedNow = time.Date(2025, time.June, 10, 9, 0, 0, 0, time.UTC)

func newTestService() (*Service, *memoryRepo, *recordingNotifier) {
	repo := newMemoryRepo()
	notifier := &recordingNotifier{}
	svc := NewService(repo, nil, notifier, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return fixedNow }
	return svc, repo, notifier
}
