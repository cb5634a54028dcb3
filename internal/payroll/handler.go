package payroll

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bizdesk/bizdesk/internal/platform/httpx"
	"github.com/bizdesk/bizdesk/internal/shared"
)

// Handler exposes employee and payslip endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountEmployees registers employee routes.
func (h *Handler) MountEmployees(r chi.Router) {
	r.Get("/", h.listEmployees)
	r.Post("/", h.createEmployee)
	r.Get("/{id}", h.showEmployee)
	r.Put("/{id}", h.updateEmployee)
}

// MountPayslips registers payslip routes.
func (h *Handler) MountPayslips(r chi.Router) {
	r.Get("/", h.listPayslips)
	r.Post("/", h.createPayslip)
	r.Get("/{id}", h.showPayslip)
}

type listResponse[T any] struct {
	Data       []T               `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func respondList[T any](w http.ResponseWriter, items []T, page, perPage, total int) {
	if items == nil {
		items = []T{}
	}
	httpx.JSON(w, http.StatusOK, listResponse[T]{Data: items, Pagination: shared.NewPagination(page, perPage, total)})
}

func (h *Handler) listEmployees(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, perPage := shared.PageParams(q)
	items, total, err := h.service.ListEmployees(r.Context(), EmployeeFilters{
		Search:     q.Get("search"),
		Department: q.Get("department"),
		ActiveOnly: q.Get("active") == "true",
		Page:       page,
		PerPage:    perPage,
	})
	if err != nil {
		h.logger.Error("list employees failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	respondList(w, items, page, perPage, total)
}

func (h *Handler) createEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	e, err := h.service.CreateEmployee(r.Context(), req)
	if err != nil {
		h.logger.Warn("create employee failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, e)
}

func (h *Handler) showEmployee(w http.ResponseWriter, r *http.Request) {
	e, err := h.service.GetEmployee(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, e)
}

func (h *Handler) updateEmployee(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req UpdateEmployeeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	e, err := h.service.UpdateEmployee(r.Context(), id, req)
	if err != nil {
		h.logger.Warn("update employee failed", slog.String("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, e)
}

func (h *Handler) listPayslips(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, perPage := shared.PageParams(q)
	items, total, err := h.service.ListPayslips(r.Context(), PayslipFilters{
		EmployeeID: q.Get("employee_id"),
		Period:     q.Get("period"),
		Page:       page,
		PerPage:    perPage,
	})
	if err != nil {
		h.logger.Error("list payslips failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	respondList(w, items, page, perPage, total)
}

func (h *Handler) createPayslip(w http.ResponseWriter, r *http.Request) {
	var req PayslipRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.CreatePayslip(r.Context(), req)
	if err != nil {
		h.logger.Warn("create payslip failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) showPayslip(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetPayslip(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}
