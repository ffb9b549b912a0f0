package procurement

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
)

// Handler exposes purchase order and goods receipt endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/purchase-orders", func(r chi.Router) {
		r.Get("/", h.listPOs)
		r.Post("/", h.createPO)
		r.Get("/{id}", h.getPO)
		r.Put("/{id}", h.updatePO)
		r.Delete("/{id}", h.deletePO)
		r.Post("/{id}/submit", h.submitPO)
		r.Post("/{id}/approve", h.approvePO)
		r.Post("/{id}/cancel", h.cancelPO)
		r.Get("/{id}/approvals", h.poApprovals)
	})
	r.Route("/grns", func(r chi.Router) {
		r.Get("/", h.listGRNs)
		r.Post("/", h.createGRN)
		r.Get("/{id}", h.getGRN)
		r.Post("/{id}/approve", h.approveGRN)
		r.Post("/{id}/reject", h.rejectGRN)
		r.Get("/{id}/approvals", h.grnApprovals)
		r.Put("/{id}/inspection", h.inspectGRN)
	})
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) listPOs(w http.ResponseWriter, r *http.Request) {
	filter := POFilter{ListFilter: httpx.ListFilter(r), SupplierID: httpx.Int64Query(r, "supplierId")}
	page, err := h.service.ListPurchaseOrders(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) createPO(w http.ResponseWriter, r *http.Request) {
	var input CreatePOInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	po, err := h.service.CreatePurchaseOrder(r.Context(), input, httpx.Actor(r).ID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, po)
}

func (h *Handler) getPO(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	po, err := h.service.GetPurchaseOrder(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) updatePO(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var input UpdatePOInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	po, err := h.service.UpdatePurchaseOrder(r.Context(), id, input, httpx.Actor(r).ID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) deletePO(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := h.service.RemovePurchaseOrder(r.Context(), id, httpx.Actor(r).ID); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) submitPO(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	po, err := h.service.SubmitPurchaseOrder(r.Context(), id, httpx.Actor(r).ID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) approvePO(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	actor := httpx.Actor(r)
	po, err := h.service.ApprovePurchaseOrder(r.Context(), id, actor.ID, actor.IsAdmin)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) cancelPO(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var req reasonRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	po, err := h.service.CancelPurchaseOrder(r.Context(), id, req.Reason, httpx.Actor(r).ID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) listGRNs(w http.ResponseWriter, r *http.Request) {
	filter := GRNFilter{
		ListFilter:       httpx.ListFilter(r),
		POID:             httpx.Int64Query(r, "poId"),
		InspectionStatus: r.URL.Query().Get("inspectionStatus"),
	}
	page, err := h.service.ListGoodsReceipts(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) createGRN(w http.ResponseWriter, r *http.Request) {
	var input CreateGRNInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	grn, err := h.service.CreateGoodsReceipt(r.Context(), input, httpx.Actor(r).ID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, grn)
}

func (h *Handler) getGRN(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	grn, err := h.service.GetGoodsReceipt(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grn)
}

func (h *Handler) approveGRN(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	actor := httpx.Actor(r)
	grn, err := h.service.ApproveGoodsReceipt(r.Context(), id, actor.ID, actor.IsAdmin)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grn)
}

func (h *Handler) rejectGRN(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var req reasonRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	grn, err := h.service.RejectGoodsReceipt(r.Context(), id, req.Reason, httpx.Actor(r).ID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grn)
}

func (h *Handler) inspectGRN(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var input UpdateInspectionInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	grn, err := h.service.UpdateInspection(r.Context(), id, input, httpx.Actor(r).ID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grn)
}

func (h *Handler) poApprovals(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	logs, err := h.service.PurchaseOrderApprovals(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, logs)
}

func (h *Handler) grnApprovals(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	logs, err := h.service.GoodsReceiptApprovals(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, logs)
}
