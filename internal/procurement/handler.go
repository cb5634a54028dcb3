package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bizdesk/bizdesk/internal/export"
	"github.com/bizdesk/bizdesk/internal/platform/httpx"
	"github.com/bizdesk/bizdesk/internal/shared"
)

// Handler manages procurement endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers purchase order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleListPOs)
	r.Post("/", h.createPO)
	r.Get("/register.xlsx", h.register)
	r.Get("/{id}", h.showPO)
	r.Put("/{id}", h.updatePO)
	r.Post("/{id}/approve", h.action(h.service.ApprovePurchaseOrder))
	r.Post("/{id}/receive", h.action(h.service.ReceivePurchaseOrder))
	r.Post("/{id}/cancel", h.action(h.service.CancelPurchaseOrder))
}

type listResponse struct {
	Data       []PurchaseOrder   `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func parseFilters(q url.Values) (ListFilters, error) {
	page, perPage := shared.PageParams(q)
	filters := ListFilters{Status: q.Get("status"), Page: page, PerPage: perPage}
	if v := q.Get("supplier_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return ListFilters{}, fmt.Errorf("%w: invalid supplier_id", httpx.ErrBadRequest)
		}
		filters.SupplierID = &id
	}
	return filters, nil
}

func (h *Handler) handleListPOs(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r.URL.Query())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	pos, total, err := h.service.ListPurchaseOrders(r.Context(), filters)
	if err != nil {
		h.logger.Error("list purchase orders", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if pos == nil {
		pos = []PurchaseOrder{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: pos, Pagination: shared.NewPagination(filters.Page, filters.PerPage, total)})
}

func (h *Handler) createPO(w http.ResponseWriter, r *http.Request) {
	var req PurchaseOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	po, err := h.service.CreatePurchaseOrder(r.Context(), req)
	if err != nil {
		h.logger.Warn("create purchase order", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, po)
}

func (h *Handler) showPO(w http.ResponseWriter, r *http.Request) {
	po, err := h.service.GetPurchaseOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) updatePO(w http.ResponseWriter, r *http.Request) {
	var req PurchaseOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	po, err := h.service.UpdatePurchaseOrder(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.logger.Warn("update purchase order", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) action(fn func(context.Context, string) (PurchaseOrder, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		po, err := fn(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			h.logger.Warn("purchase order status change", slog.String("id", chi.URLParam(r, "id")), slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, po)
	}
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r.URL.Query())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.Register(r.Context(), filters)
	if err != nil {
		h.logger.Error("load purchase register", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	body, err := export.RegisterXLSX("Purchase register", rows)
	if err != nil {
		h.logger.Error("render purchase register", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.Attachment(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "purchase-register.xlsx", body)
}
