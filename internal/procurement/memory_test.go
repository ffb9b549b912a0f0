package procurement

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/odyssey-erp/backoffice/internal/inventory"
	"github.com/odyssey-erp/backoffice/internal/inventory/inventorytest"
	"github.com/odyssey-erp/backoffice/internal/sequence"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

var errInjected = errors.New("injected failure")

type memoryRepo struct {
	pos       map[int64]PurchaseOrder
	grns      map[int64]GoodsReceivingNote
	approvals []shared.ApprovalLog
	seq       *sequence.Memory
	stock     *inventorytest.Store
	nextID    int64
	failAt    map[string]int
	calls     map[string]int
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		pos:    make(map[int64]PurchaseOrder),
		grns:   make(map[int64]GoodsReceivingNote),
		seq:    sequence.NewMemory(),
		stock:  inventorytest.NewStore(),
		failAt: make(map[string]int),
		calls:  make(map[string]int),
	}
}

// failOn makes the nth call to method return errInjected.
func (r *memoryRepo) failOn(method string, nth int) {
	r.failAt[method] = nth
	r.calls[method] = 0
}

func (r *memoryRepo) hit(method string) error {
	r.calls[method]++
	if n, ok := r.failAt[method]; ok && r.calls[method] == n {
		return fmt.Errorf("%s: %w", method, errInjected)
	}
	return nil
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	pos := make(map[int64]PurchaseOrder, len(r.pos))
	for id, po := range r.pos {
		pos[id] = clonePO(po)
	}
	grns := make(map[int64]GoodsReceivingNote, len(r.grns))
	for id, grn := range r.grns {
		grns[id] = cloneGRN(grn)
	}
	approvals := slices.Clone(r.approvals)
	nextID := r.nextID
	stock := r.stock.Snapshot()

	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.pos, r.grns, r.approvals, r.nextID = pos, grns, approvals, nextID
		r.stock.Restore(stock)
		return err
	}
	return nil
}

func clonePO(po PurchaseOrder) PurchaseOrder {
	po.Items = slices.Clone(po.Items)
	return po
}

func cloneGRN(grn GoodsReceivingNote) GoodsReceivingNote {
	grn.Items = slices.Clone(grn.Items)
	if grn.CostBreakdown != nil {
		cb := *grn.CostBreakdown
		grn.CostBreakdown = &cb
	}
	return grn
}

func (r *memoryRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memoryRepo) GetPurchaseOrder(_ context.Context, id int64) (PurchaseOrder, error) {
	po, ok := r.pos[id]
	if !ok {
		return PurchaseOrder{}, ErrPONotFound
	}
	return clonePO(po), nil
}

func (r *memoryRepo) ListPurchaseOrders(_ context.Context, filter POFilter) ([]PurchaseOrder, int, error) {
	var out []PurchaseOrder
	for _, po := range r.pos {
		if filter.Status != "" && string(po.Status) != filter.Status {
			continue
		}
		if filter.SupplierID > 0 && po.SupplierID != filter.SupplierID {
			continue
		}
		if filter.Search != "" && !strings.Contains(po.Number, filter.Search) {
			continue
		}
		out = append(out, clonePO(po))
	}
	slices.SortFunc(out, func(a, b PurchaseOrder) int { return int(b.ID - a.ID) })
	return paginate(out, filter.ListFilter), len(out), nil
}

func (r *memoryRepo) ListApprovals(_ context.Context, module string, refID int64) ([]shared.ApprovalLog, error) {
	out := []shared.ApprovalLog{}
	for _, l := range r.approvals {
		if l.Module == module && l.RefID == refID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetGoodsReceipt(_ context.Context, id int64) (GoodsReceivingNote, error) {
	grn, ok := r.grns[id]
	if !ok {
		return GoodsReceivingNote{}, ErrGRNNotFound
	}
	return cloneGRN(grn), nil
}

func (r *memoryRepo) ListGoodsReceipts(_ context.Context, filter GRNFilter) ([]GoodsReceivingNote, int, error) {
	var out []GoodsReceivingNote
	for _, grn := range r.grns {
		if filter.Status != "" && string(grn.Status) != filter.Status {
			continue
		}
		if filter.InspectionStatus != "" && string(grn.InspectionStatus) != filter.InspectionStatus {
			continue
		}
		if filter.POID > 0 && grn.POID != filter.POID {
			continue
		}
		out = append(out, cloneGRN(grn))
	}
	slices.SortFunc(out, func(a, b GoodsReceivingNote) int { return int(b.ID - a.ID) })
	return paginate(out, filter.ListFilter), len(out), nil
}

func paginate[T any](rows []T, filter shared.ListFilter) []T {
	start := min(filter.Offset(), len(rows))
	end := min(start+filter.Normalize().Limit, len(rows))
	return rows[start:end]
}

func (t *memoryTx) NextNumber(_ context.Context, key sequence.Key) (string, error) {
	return t.repo.seq.Next(key), nil
}

func (t *memoryTx) Stock() inventory.TxRepository {
	return failingStock{Store: t.repo.stock, repo: t.repo}
}

func (t *memoryTx) RecordApproval(_ context.Context, log shared.ApprovalLog) error {
	t.repo.approvals = append(t.repo.approvals, log)
	return nil
}

func (t *memoryTx) GetPurchaseOrderForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	return t.repo.GetPurchaseOrder(ctx, id)
}

func (t *memoryTx) InsertPurchaseOrder(_ context.Context, po PurchaseOrder) (int64, error) {
	if err := t.repo.hit("InsertPurchaseOrder"); err != nil {
		return 0, err
	}
	for _, existing := range t.repo.pos {
		if existing.Number == po.Number {
			return 0, fmt.Errorf("%w: purchase order number %s already exists", shared.ErrConflict, po.Number)
		}
	}
	po.ID = t.repo.id()
	po.Items = nil
	t.repo.pos[po.ID] = po
	return po.ID, nil
}

func (t *memoryTx) UpdatePurchaseOrder(_ context.Context, po PurchaseOrder) error {
	stored, ok := t.repo.pos[po.ID]
	if !ok {
		return ErrPONotFound
	}
	po.Items = stored.Items
	t.repo.pos[po.ID] = po
	return nil
}

func (t *memoryTx) DeletePurchaseOrder(_ context.Context, id int64) error {
	delete(t.repo.pos, id)
	return nil
}

func (t *memoryTx) InsertPurchaseOrderItem(_ context.Context, item PurchaseOrderItem) (int64, error) {
	if err := t.repo.hit("InsertPurchaseOrderItem"); err != nil {
		return 0, err
	}
	po, ok := t.repo.pos[item.POID]
	if !ok {
		return 0, ErrPONotFound
	}
	item.ID = t.repo.id()
	po.Items = append(po.Items, item)
	t.repo.pos[po.ID] = po
	return item.ID, nil
}

func (t *memoryTx) UpdatePurchaseOrderItem(_ context.Context, item PurchaseOrderItem) error {
	if err := t.repo.hit("UpdatePurchaseOrderItem"); err != nil {
		return err
	}
	po := t.repo.pos[item.POID]
	for i := range po.Items {
		if po.Items[i].ID == item.ID {
			po.Items[i] = item
		}
	}
	t.repo.pos[po.ID] = po
	return nil
}

func (t *memoryTx) DeletePurchaseOrderItems(_ context.Context, poID int64) error {
	po := t.repo.pos[poID]
	po.Items = nil
	t.repo.pos[poID] = po
	return nil
}

func (t *memoryTx) CountReceiptItems(_ context.Context, poID int64) (int, error) {
	n := 0
	for _, grn := range t.repo.grns {
		if grn.POID == poID {
			n += len(grn.Items)
		}
	}
	return n, nil
}

func (t *memoryTx) GetGoodsReceiptForUpdate(ctx context.Context, id int64) (GoodsReceivingNote, error) {
	return t.repo.GetGoodsReceipt(ctx, id)
}

func (t *memoryTx) InsertGoodsReceipt(_ context.Context, grn GoodsReceivingNote) (int64, error) {
	grn.ID = t.repo.id()
	grn.Items = nil
	grn.CostBreakdown = nil
	t.repo.grns[grn.ID] = grn
	return grn.ID, nil
}

func (t *memoryTx) UpdateGoodsReceipt(_ context.Context, grn GoodsReceivingNote) error {
	stored, ok := t.repo.grns[grn.ID]
	if !ok {
		return ErrGRNNotFound
	}
	grn.Items = stored.Items
	grn.CostBreakdown = stored.CostBreakdown
	t.repo.grns[grn.ID] = grn
	return nil
}

func (t *memoryTx) InsertGRNItem(_ context.Context, item GRNItem) (int64, error) {
	grn := t.repo.grns[item.GRNID]
	item.ID = t.repo.id()
	grn.Items = append(grn.Items, item)
	t.repo.grns[grn.ID] = grn
	return item.ID, nil
}

func (t *memoryTx) InsertCostBreakdown(_ context.Context, grnID int64, breakdown CostBreakdown) error {
	grn := t.repo.grns[grnID]
	grn.CostBreakdown = &breakdown
	t.repo.grns[grnID] = grn
	return nil
}

func (t *memoryTx) LinkGRNItemStock(_ context.Context, itemID, stockID int64) error {
	if err := t.repo.hit("LinkGRNItemStock"); err != nil {
		return err
	}
	for id, grn := range t.repo.grns {
		for i := range grn.Items {
			if grn.Items[i].ID == itemID {
				grn.Items[i].StockID = &stockID
				t.repo.grns[id] = grn
				return nil
			}
		}
	}
	return fmt.Errorf("grn item %d not found", itemID)
}

// failingStock lets tests inject ledger failures.
type failingStock struct {
	*inventorytest.Store
	repo *memoryRepo
}

func (s failingStock) InsertHistory(ctx context.Context, entry inventory.StockHistory) (int64, error) {
	if err := s.repo.hit("InsertHistory"); err != nil {
		return 0, err
	}
	return s.Store.InsertHistory(ctx, entry)
}

type memorySuppliers map[int64]bool

func (m memorySuppliers) EnsureExists(_ context.Context, id int64) error {
	if !m[id] {
		return fmt.Errorf("%w: supplier %d", shared.ErrNotFound, id)
	}
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []shared.Event
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, evt shared.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evt)
	return n.err
}

func (n *recordingNotifier) types() []shared.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]shared.EventType, 0, len(n.events))
	for _, evt := range n.events {
		out = append(out, evt.Type)
	}
	return out
}

var fixedNow = time.Date(2025, time.June, 15, 9, 30, 0, 0, time.UTC)

func newTestService() (*Service, *memoryRepo, *recordingNotifier) {
	repo := newMemoryRepo()
	notifier := &recordingNotifier{}
	svc := NewService(repo, memorySuppliers{1: true, 2: true}, nil, notifier, nil)
	svc.now = func() time.Time { return fixedNow }
	return svc, repo, notifier
}
