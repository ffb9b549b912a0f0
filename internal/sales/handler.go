package sales

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
)

// Handler exposes stock-out endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs sales handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers stock-out routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Post("/bulk-import", h.bulkImport)
	r.Get("/transactions/{txID}", h.listByTransaction)
	r.Get("/{id}", h.get)
	r.Delete("/{id}", h.delete)
}

type bulkImportRequest struct {
	Rows []ImportRow `json:"rows"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := Filter{
		ListFilter:    httpx.ListFilter(r),
		StockID:       httpx.Int64Query(r, "stockId"),
		PaymentMethod: r.URL.Query().Get("paymentMethod"),
	}
	page, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input CreateSalesInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if input.IdempotencyKey == "" {
		input.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}
	outs, err := h.service.Create(r.Context(), input, httpx.Actor(r).ID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"data": outs, "transactionId": outs[0].TransactionID})
}

func (h *Handler) bulkImport(w http.ResponseWriter, r *http.Request) {
	var req bulkImportRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	result, err := h.service.BulkImport(r.Context(), req.Rows, httpx.Actor(r).ID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) listByTransaction(w http.ResponseWriter, r *http.Request) {
	outs, err := h.service.ListByTransaction(r.Context(), chi.URLParam(r, "txID"))
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": outs})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	out, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := h.service.Delete(r.Context(), id, httpx.Actor(r).ID); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
