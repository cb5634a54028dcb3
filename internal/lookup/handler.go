package lookup

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bizdesk/bizdesk/internal/platform/httpx"
)

// Handler serves dropdown collections to form pages.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers lookup routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.form)
	r.Get("/{collection}", h.collection)
}

// form answers ?collections=customers,items with every requested list at once.
func (h *Handler) form(w http.ResponseWriter, r *http.Request) {
	var names []string
	for _, n := range strings.Split(r.URL.Query().Get("collections"), ",") {
		if n = strings.TrimSpace(n); n != "" {
			if !known(n) {
				httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown collection "+n)
				return
			}
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		names = Collections
	}
	out, err := h.service.FormOptions(r.Context(), names...)
	if err != nil {
		h.logger.Error("load form options", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) collection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "collection")
	if !known(name) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown collection "+name)
		return
	}
	opts, err := h.service.Options(r.Context(), name)
	if err != nil {
		h.logger.Error("load options", slog.String("collection", name), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, opts)
}
