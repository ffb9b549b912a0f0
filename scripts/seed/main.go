// Command seed loads demo suppliers and an approved purchase order through the
// regular services, so generated codes, numbers and audit entries match what
// the API would produce.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/app"
	"github.com/odyssey-erp/backoffice/internal/masterdata/suppliers"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/procurement"
	"github.com/odyssey-erp/backoffice/internal/sequence"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

const seedActor int64 = 1

var demoSuppliers = []suppliers.Input{
	{Name: "PT Sumber Makmur", Email: "sales@sumbermakmur.example", Phone: "+62 812-3456-7890", ContactPerson: "Budi"},
	{Name: "CV Logam Jaya", Email: "order@logamjaya.example", Phone: "+62 813-1111-2222", ContactPerson: "Sari"},
	{Name: "Nusantara Packaging", Email: "hello@nusapack.example", Phone: "+62 857-1234-5678", ContactPerson: "Andi"},
}

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)
	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Error("seed failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("seed complete", slog.Time("at", time.Now()))
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := sequence.SeedExisting(ctx, pool, time.Now()); err != nil {
		return err
	}

	audit := shared.NewAuditLogger(pool)
	notifier := shared.NopNotifier{}
	supplierService := suppliers.NewService(suppliers.NewRepository(pool), audit, notifier, logger)
	procurementService := procurement.NewService(
		procurement.NewRepository(pool, shared.NewApprovalRecorder()),
		supplierService, audit, notifier, logger,
	)

	result, err := supplierService.BulkImport(ctx, demoSuppliers, seedActor)
	if err != nil {
		return fmt.Errorf("seed suppliers: %w", err)
	}
	logger.Info("suppliers seeded", slog.Int("succeeded", result.Succeeded), slog.Int("failed", result.Failed))

	page, err := supplierService.List(ctx, suppliers.Filter{ListFilter: shared.ListFilter{Status: "active", Limit: 1}.Normalize()})
	if err != nil {
		return err
	}
	if len(page.Data) == 0 {
		return fmt.Errorf("seed purchase order: no active supplier")
	}

	po, err := procurementService.CreatePurchaseOrder(ctx, procurement.CreatePOInput{
		SupplierID:   page.Data[0].ID,
		OrderDate:    time.Now().UTC(),
		ShippingCost: decimal.NewFromInt(50000),
		Notes:        "seed",
		Items: []procurement.POItemInput{
			{ProductName: "Steel Bolt M8", SKU: "BOLT-M8", OrderedQty: 500, UnitPrice: decimal.NewFromInt(1200), TaxPct: decimal.NewFromInt(11)},
			{ProductName: "Carton Box 40x30", SKU: "BOX-4030", OrderedQty: 200, UnitPrice: decimal.NewFromInt(4500), DiscountPct: decimal.NewFromInt(5)},
		},
	}, seedActor)
	if err != nil {
		return fmt.Errorf("seed purchase order: %w", err)
	}
	if _, err := procurementService.SubmitPurchaseOrder(ctx, po.ID, seedActor); err != nil {
		return err
	}
	po, err = procurementService.ApprovePurchaseOrder(ctx, po.ID, seedActor, true)
	if err != nil {
		return err
	}
	logger.Info("purchase order seeded", slog.String("number", po.Number), slog.String("grand_total", po.GrandTotal.StringFixed(2)))
	return nil
}
