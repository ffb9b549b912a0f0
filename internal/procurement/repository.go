package procurement

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/backoffice/internal/inventory"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/sequence"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool      *pgxpool.Pool
	approvals *shared.ApprovalRecorder
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool, approvals *shared.ApprovalRecorder) *Repository {
	return &Repository{pool: pool, approvals: approvals}
}

// ListApprovals returns the approval trail recorded for module/refID.
func (r *Repository) ListApprovals(ctx context.Context, module string, refID int64) ([]shared.ApprovalLog, error) {
	if r.approvals == nil {
		return []shared.ApprovalLog{}, nil
	}
	return r.approvals.List(ctx, r.pool, module, refID)
}

type txRepo struct {
	tx        pgx.Tx
	stock     inventory.TxRepository
	approvals *shared.ApprovalRecorder
}

// WithTx wraps callback in a read-committed transaction. Stock writes made
// through TxRepository.Stock share the same transaction. Row locks taken with
// FOR UPDATE and the sequence upsert serialize concurrent writers.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, stock: inventory.NewTxRepository(tx), approvals: r.approvals})
	})
	return mapTxError(err)
}

// mapTxError turns retryable transaction failures into conflicts.
func mapTxError(err error) error {
	if db.IsSerializationFailure(err) {
		return fmt.Errorf("%w: concurrent update, retry the request: %w", shared.ErrConflict, err)
	}
	return err
}

const poColumns = `p.id, p.number, p.supplier_id, COALESCE(s.name, ''), p.status, p.order_date, p.expected_date,
	p.subtotal, p.tax_amount, p.shipping_cost, p.other_charges, p.grand_total,
	p.approved_by, p.approved_at, p.closed_at, p.cancellation_reason, p.cancelled_at, p.notes,
	COALESCE(p.created_by, 0), p.created_at, p.updated_at`

const poFrom = ` FROM purchase_orders p LEFT JOIN suppliers s ON s.id = p.supplier_id`

func scanPO(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	var status string
	err := row.Scan(&po.ID, &po.Number, &po.SupplierID, &po.SupplierName, &status, &po.OrderDate, &po.ExpectedDate,
		&po.Subtotal, &po.TaxAmount, &po.ShippingCost, &po.OtherCharges, &po.GrandTotal,
		&po.ApprovedBy, &po.ApprovedAt, &po.ClosedAt, &po.CancellationReason, &po.CancelledAt, &po.Notes,
		&po.CreatedBy, &po.CreatedAt, &po.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, ErrPONotFound
		}
		return PurchaseOrder{}, err
	}
	po.Status = POStatus(status)
	return po, nil
}

func loadPOItems(ctx context.Context, q db.DBTX, poID int64) ([]PurchaseOrderItem, error) {
	rows, err := q.Query(ctx, `SELECT id, po_id, product_name, sku, ordered_qty, received_qty, remaining_qty,
	unit_price, discount_pct, tax_pct, discount_amount, tax_amount, line_total, status
FROM purchase_order_items WHERE po_id = $1 ORDER BY id`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []PurchaseOrderItem
	for rows.Next() {
		var item PurchaseOrderItem
		var status string
		if err := rows.Scan(&item.ID, &item.POID, &item.ProductName, &item.SKU, &item.OrderedQty, &item.ReceivedQty, &item.RemainingQty,
			&item.UnitPrice, &item.DiscountPct, &item.TaxPct, &item.DiscountAmount, &item.TaxAmount, &item.LineTotal, &status); err != nil {
			return nil, err
		}
		item.Status = POItemStatus(status)
		items = append(items, item)
	}
	return items, rows.Err()
}

func getPO(ctx context.Context, q db.DBTX, id int64, lock bool) (PurchaseOrder, error) {
	sql := `SELECT ` + poColumns + poFrom + ` WHERE p.id = $1`
	if lock {
		sql += ` FOR UPDATE OF p`
	}
	po, err := scanPO(q.QueryRow(ctx, sql, id))
	if err != nil {
		return PurchaseOrder{}, err
	}
	if po.Items, err = loadPOItems(ctx, q, id); err != nil {
		return PurchaseOrder{}, err
	}
	return po, nil
}

// GetPurchaseOrder returns purchase order and items.
func (r *Repository) GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	return getPO(ctx, r.pool, id, false)
}

// ListPurchaseOrders returns purchase orders with supplier name.
func (r *Repository) ListPurchaseOrders(ctx context.Context, filter POFilter) ([]PurchaseOrder, int, error) {
	var f db.Filter
	if filter.Search != "" {
		f.Add("(p.number ILIKE ? OR s.name ILIKE ?)", "%"+filter.Search+"%")
	}
	if filter.Status != "" {
		f.Add("p.status = ?", filter.Status)
	}
	if filter.SupplierID > 0 {
		f.Add("p.supplier_id = ?", filter.SupplierID)
	}
	if !filter.From.IsZero() {
		f.Add("p.order_date >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		f.Add("p.order_date <= ?", filter.To)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+poFrom+f.Where(), f.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page, args := f.Page(filter.Limit, filter.Offset())
	rows, err := r.pool.Query(ctx, `SELECT `+poColumns+poFrom+f.Where()+` ORDER BY p.created_at DESC, p.id DESC`+page, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var orders []PurchaseOrder
	for rows.Next() {
		po, err := scanPO(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, po)
	}
	return orders, total, rows.Err()
}

const grnColumns = `g.id, g.number, g.po_id, COALESCE(p.number, ''), g.supplier_id, g.status, g.inspection_status, g.inspection_notes,
	g.inspected_by, g.inspected_at, g.has_discrepancies, g.received_date, COALESCE(g.received_by, 0),
	g.approved_by, g.approved_at, g.rejection_reason, g.notes, g.created_at, g.updated_at`

const grnFrom = ` FROM goods_receiving_notes g LEFT JOIN purchase_orders p ON p.id = g.po_id`

func scanGRN(row pgx.Row) (GoodsReceivingNote, error) {
	var g GoodsReceivingNote
	var status, inspection string
	err := row.Scan(&g.ID, &g.Number, &g.POID, &g.PONumber, &g.SupplierID, &status, &inspection, &g.InspectionNotes,
		&g.InspectedBy, &g.InspectedAt, &g.HasDiscrepancies, &g.ReceivedDate, &g.ReceivedBy,
		&g.ApprovedBy, &g.ApprovedAt, &g.RejectionReason, &g.Notes, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GoodsReceivingNote{}, ErrGRNNotFound
		}
		return GoodsReceivingNote{}, err
	}
	g.Status = GRNStatus(status)
	g.InspectionStatus = InspectionStatus(inspection)
	return g, nil
}

func loadGRNItems(ctx context.Context, q db.DBTX, grnID int64) ([]GRNItem, error) {
	rows, err := q.Query(ctx, `SELECT id, grn_id, po_item_id, product_name, sku, ordered_qty, received_qty, accepted_qty, rejected_qty,
	rejection_reason, unit_cost, landed_cost, line_total, batch_number, serial_numbers, manufacture_date, expiry_date, stock_id
FROM grn_items WHERE grn_id = $1 ORDER BY id`, grnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []GRNItem
	for rows.Next() {
		var item GRNItem
		if err := rows.Scan(&item.ID, &item.GRNID, &item.POItemID, &item.ProductName, &item.SKU, &item.OrderedQty, &item.ReceivedQty, &item.AcceptedQty, &item.RejectedQty,
			&item.RejectionReason, &item.UnitCost, &item.LandedCost, &item.LineTotal, &item.BatchNumber, &item.SerialNumbers, &item.ManufactureDate, &item.ExpiryDate, &item.StockID); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func loadBreakdown(ctx context.Context, q db.DBTX, grnID int64) (*CostBreakdown, error) {
	var c CostBreakdown
	err := q.QueryRow(ctx, `SELECT shipping_fee, customs_fee, insurance_fee, handling_fee, other_fees, total_fees, total_landed_cost, cost_per_unit
FROM grn_cost_breakdowns WHERE grn_id = $1`, grnID).Scan(&c.ShippingFee, &c.CustomsFee, &c.InsuranceFee, &c.HandlingFee, &c.OtherFees, &c.TotalFees, &c.TotalLandedCost, &c.CostPerUnit)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func getGRN(ctx context.Context, q db.DBTX, id int64, lock bool) (GoodsReceivingNote, error) {
	sql := `SELECT ` + grnColumns + grnFrom + ` WHERE g.id = $1`
	if lock {
		sql += ` FOR UPDATE OF g`
	}
	grn, err := scanGRN(q.QueryRow(ctx, sql, id))
	if err != nil {
		return GoodsReceivingNote{}, err
	}
	if grn.Items, err = loadGRNItems(ctx, q, id); err != nil {
		return GoodsReceivingNote{}, err
	}
	if grn.CostBreakdown, err = loadBreakdown(ctx, q, id); err != nil {
		return GoodsReceivingNote{}, err
	}
	return grn, nil
}

// GetGoodsReceipt returns GRN, items and cost breakdown.
func (r *Repository) GetGoodsReceipt(ctx context.Context, id int64) (GoodsReceivingNote, error) {
	return getGRN(ctx, r.pool, id, false)
}

// ListGoodsReceipts returns goods receipts with their PO number.
func (r *Repository) ListGoodsReceipts(ctx context.Context, filter GRNFilter) ([]GoodsReceivingNote, int, error) {
	var f db.Filter
	if filter.Search != "" {
		f.Add("(g.number ILIKE ? OR p.number ILIKE ?)", "%"+filter.Search+"%")
	}
	if filter.Status != "" {
		f.Add("g.status = ?", filter.Status)
	}
	if filter.InspectionStatus != "" {
		f.Add("g.inspection_status = ?", filter.InspectionStatus)
	}
	if filter.POID > 0 {
		f.Add("g.po_id = ?", filter.POID)
	}
	if !filter.From.IsZero() {
		f.Add("g.received_date >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		f.Add("g.received_date <= ?", filter.To)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+grnFrom+f.Where(), f.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page, args := f.Page(filter.Limit, filter.Offset())
	rows, err := r.pool.Query(ctx, `SELECT `+grnColumns+grnFrom+f.Where()+` ORDER BY g.created_at DESC, g.id DESC`+page, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var receipts []GoodsReceivingNote
	for rows.Next() {
		g, err := scanGRN(rows)
		if err != nil {
			return nil, 0, err
		}
		receipts = append(receipts, g)
	}
	return receipts, total, rows.Err()
}

func (t *txRepo) NextNumber(ctx context.Context, key sequence.Key) (string, error) {
	return sequence.Next(ctx, t.tx, key)
}

func (t *txRepo) Stock() inventory.TxRepository {
	return t.stock
}

func (t *txRepo) RecordApproval(ctx context.Context, log shared.ApprovalLog) error {
	if t.approvals == nil {
		return nil
	}
	return t.approvals.Record(ctx, t.tx, log)
}

func (t *txRepo) GetPurchaseOrderForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	return getPO(ctx, t.tx, id, true)
}

func (t *txRepo) InsertPurchaseOrder(ctx context.Context, po PurchaseOrder) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_orders (number, supplier_id, status, order_date, expected_date, subtotal, tax_amount,
	shipping_cost, other_charges, grand_total, notes, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13) RETURNING id`,
		po.Number, po.SupplierID, string(po.Status), po.OrderDate, po.ExpectedDate, po.Subtotal, po.TaxAmount,
		po.ShippingCost, po.OtherCharges, po.GrandTotal, po.Notes, db.NullInt(po.CreatedBy), po.CreatedAt).Scan(&id)
	if db.IsUniqueViolation(err, "") {
		return 0, fmt.Errorf("%w: purchase order number %s already exists", shared.ErrConflict, po.Number)
	}
	return id, err
}

func (t *txRepo) UpdatePurchaseOrder(ctx context.Context, po PurchaseOrder) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET supplier_id = $2, status = $3, order_date = $4, expected_date = $5,
	subtotal = $6, tax_amount = $7, shipping_cost = $8, other_charges = $9, grand_total = $10,
	approved_by = $11, approved_at = $12, closed_at = $13, cancellation_reason = $14, cancelled_at = $15,
	notes = $16, updated_at = $17
WHERE id = $1`,
		po.ID, po.SupplierID, string(po.Status), po.OrderDate, po.ExpectedDate,
		po.Subtotal, po.TaxAmount, po.ShippingCost, po.OtherCharges, po.GrandTotal,
		po.ApprovedBy, po.ApprovedAt, po.ClosedAt, po.CancellationReason, po.CancelledAt,
		po.Notes, po.UpdatedAt)
	return err
}

func (t *txRepo) DeletePurchaseOrder(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM purchase_orders WHERE id = $1`, id)
	return err
}

func (t *txRepo) InsertPurchaseOrderItem(ctx context.Context, item PurchaseOrderItem) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_order_items (po_id, product_name, sku, ordered_qty, received_qty, remaining_qty,
	unit_price, discount_pct, tax_pct, discount_amount, tax_amount, line_total, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13) RETURNING id`,
		item.POID, item.ProductName, item.SKU, item.OrderedQty, item.ReceivedQty, item.RemainingQty,
		item.UnitPrice, item.DiscountPct, item.TaxPct, item.DiscountAmount, item.TaxAmount, item.LineTotal, string(item.Status)).Scan(&id)
	return id, err
}

func (t *txRepo) UpdatePurchaseOrderItem(ctx context.Context, item PurchaseOrderItem) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_order_items SET received_qty = $2, remaining_qty = $3, status = $4 WHERE id = $1`,
		item.ID, item.ReceivedQty, item.RemainingQty, string(item.Status))
	return err
}

func (t *txRepo) DeletePurchaseOrderItems(ctx context.Context, poID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM purchase_order_items WHERE po_id = $1`, poID)
	return err
}

func (t *txRepo) CountReceiptItems(ctx context.Context, poID int64) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM grn_items gi JOIN goods_receiving_notes g ON g.id = gi.grn_id WHERE g.po_id = $1`, poID).Scan(&n)
	return n, err
}

func (t *txRepo) GetGoodsReceiptForUpdate(ctx context.Context, id int64) (GoodsReceivingNote, error) {
	return getGRN(ctx, t.tx, id, true)
}

func (t *txRepo) InsertGoodsReceipt(ctx context.Context, g GoodsReceivingNote) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO goods_receiving_notes (number, po_id, supplier_id, status, inspection_status, has_discrepancies,
	received_date, received_by, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10) RETURNING id`,
		g.Number, g.POID, g.SupplierID, string(g.Status), string(g.InspectionStatus), g.HasDiscrepancies,
		g.ReceivedDate, db.NullInt(g.ReceivedBy), g.Notes, g.CreatedAt).Scan(&id)
	if db.IsUniqueViolation(err, "") {
		return 0, fmt.Errorf("%w: goods receiving note number %s already exists", shared.ErrConflict, g.Number)
	}
	return id, err
}

func (t *txRepo) UpdateGoodsReceipt(ctx context.Context, g GoodsReceivingNote) error {
	_, err := t.tx.Exec(ctx, `UPDATE goods_receiving_notes SET status = $2, inspection_status = $3, inspection_notes = $4,
	inspected_by = $5, inspected_at = $6, approved_by = $7, approved_at = $8, rejection_reason = $9, updated_at = $10
WHERE id = $1`,
		g.ID, string(g.Status), string(g.InspectionStatus), g.InspectionNotes,
		g.InspectedBy, g.InspectedAt, g.ApprovedBy, g.ApprovedAt, g.RejectionReason, g.UpdatedAt)
	return err
}

func (t *txRepo) InsertGRNItem(ctx context.Context, item GRNItem) (int64, error) {
	serials := item.SerialNumbers
	if serials == nil {
		serials = []string{}
	}
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO grn_items (grn_id, po_item_id, product_name, sku, ordered_qty, received_qty, accepted_qty, rejected_qty,
	rejection_reason, unit_cost, landed_cost, line_total, batch_number, serial_numbers, manufacture_date, expiry_date)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16) RETURNING id`,
		item.GRNID, item.POItemID, item.ProductName, item.SKU, item.OrderedQty, item.ReceivedQty, item.AcceptedQty, item.RejectedQty,
		item.RejectionReason, item.UnitCost, item.LandedCost, item.LineTotal, item.BatchNumber, serials, item.ManufactureDate, item.ExpiryDate).Scan(&id)
	return id, err
}

func (t *txRepo) InsertCostBreakdown(ctx context.Context, grnID int64, c CostBreakdown) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO grn_cost_breakdowns (grn_id, shipping_fee, customs_fee, insurance_fee, handling_fee, other_fees,
	total_fees, total_landed_cost, cost_per_unit)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		grnID, c.ShippingFee, c.CustomsFee, c.InsuranceFee, c.HandlingFee, c.OtherFees, c.TotalFees, c.TotalLandedCost, c.CostPerUnit)
	return err
}

func (t *txRepo) LinkGRNItemStock(ctx context.Context, itemID, stockID int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE grn_items SET stock_id = $2 WHERE id = $1`, itemID, stockID)
	return err
}
