package sales

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bizdesk/bizdesk/internal/export"
	"github.com/bizdesk/bizdesk/internal/platform/httpx"
	"github.com/bizdesk/bizdesk/internal/shared"
)

// Handler wires sales endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a sales handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountQuotations registers quotation routes.
func (h *Handler) MountQuotations(r chi.Router) {
	r.Get("/", h.listQuotations)
	r.Post("/", h.createQuotation)
	r.Get("/{id}", h.showQuotation)
	r.Put("/{id}", h.updateQuotation)
	r.Post("/{id}/submit", h.quotationAction(h.service.SubmitQuotation))
	r.Post("/{id}/accept", h.quotationAction(h.service.AcceptQuotation))
	r.Post("/{id}/reject", h.quotationAction(h.service.RejectQuotation))
	r.Post("/{id}/convert", h.convertQuotation)
}

// MountOrders registers sales order routes.
func (h *Handler) MountOrders(r chi.Router) {
	r.Get("/", h.listOrders)
	r.Post("/", h.createOrder)
	r.Get("/{id}", h.showOrder)
	r.Put("/{id}", h.updateOrder)
	r.Post("/{id}/confirm", h.orderAction(h.service.ConfirmSalesOrder))
	r.Post("/{id}/cancel", h.orderAction(h.service.CancelSalesOrder))
}

// MountSales registers sales record routes.
func (h *Handler) MountSales(r chi.Router) {
	r.Get("/", h.listSales)
	r.Post("/", h.recordSale)
	r.Get("/register.xlsx", h.salesRegister)
	r.Get("/{id}", h.showSale)
}

type listResponse[T any] struct {
	Data       []T               `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func respondList[T any](w http.ResponseWriter, items []T, f ListFilters, total int) {
	if items == nil {
		items = []T{}
	}
	httpx.JSON(w, http.StatusOK, listResponse[T]{Data: items, Pagination: shared.NewPagination(f.Page, f.PerPage, total)})
}

// parseFilters reads status, customer_id, from, to and paging parameters.
func parseFilters(q url.Values) (ListFilters, error) {
	page, perPage := shared.PageParams(q)
	f := ListFilters{Status: q.Get("status"), Page: page, PerPage: perPage}
	if v := q.Get("customer_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return ListFilters{}, fmt.Errorf("%w: invalid customer_id", httpx.ErrBadRequest)
		}
		f.CustomerID = &id
	}
	for name, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		t, err := time.Parse(shared.DateLayout, v)
		if err != nil {
			return ListFilters{}, fmt.Errorf("%w: invalid %s", httpx.ErrBadRequest, name)
		}
		*dst = &t
	}
	return f, nil
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	h.logger.Warn(msg, slog.Any("error", err))
	httpx.RespondError(w, err)
}

// ============================================================================
// QUOTATIONS
// ============================================================================

func (h *Handler) listQuotations(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r.URL.Query())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, total, err := h.service.ListQuotations(r.Context(), f)
	if err != nil {
		h.fail(w, "list quotations failed", err)
		return
	}
	respondList(w, items, f, total)
}

func (h *Handler) createQuotation(w http.ResponseWriter, r *http.Request) {
	var req QuotationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	q, err := h.service.CreateQuotation(r.Context(), req)
	if err != nil {
		h.fail(w, "create quotation failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, q)
}

func (h *Handler) showQuotation(w http.ResponseWriter, r *http.Request) {
	q, err := h.service.GetQuotation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) updateQuotation(w http.ResponseWriter, r *http.Request) {
	var req QuotationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	q, err := h.service.UpdateQuotation(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.fail(w, "update quotation failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) quotationAction(fn func(context.Context, string) (Quotation, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := fn(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			h.fail(w, "quotation status change failed", err)
			return
		}
		httpx.JSON(w, http.StatusOK, q)
	}
}

func (h *Handler) convertQuotation(w http.ResponseWriter, r *http.Request) {
	var req ConvertRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	order, err := h.service.ConvertQuotation(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.fail(w, "convert quotation failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

// ============================================================================
// SALES ORDERS
// ============================================================================

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r.URL.Query())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, total, err := h.service.ListSalesOrders(r.Context(), f)
	if err != nil {
		h.fail(w, "list sales orders failed", err)
		return
	}
	respondList(w, items, f, total)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req SalesOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	o, err := h.service.CreateSalesOrder(r.Context(), req)
	if err != nil {
		h.fail(w, "create sales order failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, o)
}

func (h *Handler) showOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.service.GetSalesOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	var req SalesOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	o, err := h.service.UpdateSalesOrder(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.fail(w, "update sales order failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) orderAction(fn func(context.Context, string) (SalesOrder, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		o, err := fn(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			h.fail(w, "sales order status change failed", err)
			return
		}
		httpx.JSON(w, http.StatusOK, o)
	}
}

// ============================================================================
// SALES RECORDS
// ============================================================================

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r.URL.Query())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, total, err := h.service.ListSales(r.Context(), f)
	if err != nil {
		h.fail(w, "list sales failed", err)
		return
	}
	respondList(w, items, f, total)
}

func (h *Handler) recordSale(w http.ResponseWriter, r *http.Request) {
	var req SaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	sale, err := h.service.RecordSale(r.Context(), req, r.Header.Get("Idempotency-Key"))
	if err != nil {
		h.fail(w, "record sale failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) showSale(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.GetSale(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}

// salesRegister exports the filtered sales records as a spreadsheet.
func (h *Handler) salesRegister(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r.URL.Query())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.Register(r.Context(), f)
	if err != nil {
		h.fail(w, "load sales register failed", err)
		return
	}
	body, err := export.RegisterXLSX("Sales register", rows)
	if err != nil {
		h.fail(w, "render sales register failed", err)
		return
	}
	httpx.Attachment(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "sales-register.xlsx", body)
}
