package invoicing

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bizdesk/bizdesk/internal/export"
	"github.com/bizdesk/bizdesk/internal/platform/httpx"
	"github.com/bizdesk/bizdesk/internal/shared"
)

// Handler exposes invoice endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	companyName string
}

// NewHandler builds an invoicing handler. companyName heads printed invoices.
func NewHandler(logger *slog.Logger, service *Service, companyName string) *Handler {
	return &Handler{logger: logger, service: service, companyName: companyName}
}

// MountRoutes registers invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/aging", h.aging)
	r.Get("/{id}", h.show)
	r.Put("/{id}", h.update)
	r.Get("/{id}/pdf", h.pdf)
	r.Post("/{id}/issue", h.action(h.service.IssueInvoice))
	r.Post("/{id}/pay", h.action(h.service.MarkPaid))
	r.Post("/{id}/void", h.action(h.service.VoidInvoice))
}

type listResponse struct {
	Data       []Invoice         `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

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
	if v := q.Get("overdue"); v != "" {
		overdue, err := strconv.ParseBool(v)
		if err != nil {
			return ListFilters{}, fmt.Errorf("%w: invalid overdue", httpx.ErrBadRequest)
		}
		f.Overdue = overdue
	}
	asOf, err := parseAsOf(q)
	if err != nil {
		return ListFilters{}, err
	}
	f.AsOf = asOf
	return f, nil
}

func parseAsOf(q url.Values) (time.Time, error) {
	v := q.Get("as_of")
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(shared.DateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid as_of", httpx.ErrBadRequest)
	}
	return t, nil
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	h.logger.Warn(msg, slog.Any("error", err))
	httpx.RespondError(w, err)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r.URL.Query())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, total, err := h.service.ListInvoices(r.Context(), f)
	if err != nil {
		h.fail(w, "list invoices failed", err)
		return
	}
	if items == nil {
		items = []Invoice{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: items, Pagination: shared.NewPagination(f.Page, f.PerPage, total)})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req InvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.CreateInvoice(r.Context(), req)
	if err != nil {
		h.fail(w, "create invoice failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.GetInvoice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req InvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.UpdateInvoice(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.fail(w, "update invoice failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) action(fn func(context.Context, string) (Invoice, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inv, err := fn(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			h.fail(w, "invoice status change failed", err)
			return
		}
		httpx.JSON(w, http.StatusOK, inv)
	}
}

func (h *Handler) aging(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseAsOf(r.URL.Query())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	bucket, err := h.service.CalculateAging(r.Context(), asOf)
	if err != nil {
		h.fail(w, "invoice aging failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, bucket)
}

func (h *Handler) pdf(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.Document(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "load invoice document failed", err)
		return
	}
	doc.CompanyName = h.companyName
	body, err := export.InvoicePDF(doc)
	if err != nil {
		h.fail(w, "render invoice pdf failed", err)
		return
	}
	httpx.Attachment(w, "application/pdf", doc.ID+".pdf", body)
}
