package masterdata

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bizdesk/bizdesk/internal/platform/httpx"
	"github.com/bizdesk/bizdesk/internal/shared"
)

// Handler exposes customer and supplier endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// Routes returns a mount function for one party kind.
func (h *Handler) Routes(kind Kind) func(chi.Router) {
	return func(r chi.Router) {
		r.Get("/", h.list(kind))
		r.Post("/", h.create(kind))
		r.Get("/{id}", h.show(kind))
		r.Put("/{id}", h.update(kind))
		r.Post("/{id}/deactivate", h.deactivate(kind))
	}
}

type listResponse struct {
	Data       []Party           `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) list(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page, perPage := shared.PageParams(q)
		filters := ListFilters{
			Search:     q.Get("search"),
			ActiveOnly: q.Get("active") == "true",
			Page:       page,
			PerPage:    perPage,
		}
		parties, total, err := h.service.List(r.Context(), kind, filters)
		if err != nil {
			h.logger.Error("list parties failed", slog.String("kind", string(kind)), slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		if parties == nil {
			parties = []Party{}
		}
		httpx.JSON(w, http.StatusOK, listResponse{Data: parties, Pagination: shared.NewPagination(page, perPage, total)})
	}
}

func (h *Handler) show(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.UUIDParam(r, "id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		party, err := h.service.Get(r.Context(), kind, id)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, party)
	}
}

func (h *Handler) create(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreatePartyRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
		party, err := h.service.Create(r.Context(), kind, req)
		if err != nil {
			h.logError("create party failed", kind, err)
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, party)
	}
}

func (h *Handler) update(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.UUIDParam(r, "id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		var req UpdatePartyRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
		party, err := h.service.Update(r.Context(), kind, id, req)
		if err != nil {
			h.logError("update party failed", kind, err)
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, party)
	}
}

func (h *Handler) deactivate(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.UUIDParam(r, "id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		party, err := h.service.Deactivate(r.Context(), kind, id)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, party)
	}
}

func (h *Handler) logError(msg string, kind Kind, err error) {
	if h.logger == nil {
		return
	}
	h.logger.Warn(msg, slog.String("kind", string(kind)), slog.Any("error", err))
}
