package sequence

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bizdesk/bizdesk/internal/platform/httpx"
	"github.com/bizdesk/bizdesk/internal/shared"
)

// Handler exposes id previews for new-document forms.
type Handler struct {
	logger *slog.Logger
	reader CounterReader
	now    func() time.Time
}

// NewHandler constructs the preview handler.
func NewHandler(logger *slog.Logger, reader CounterReader) *Handler {
	return &Handler{logger: logger, reader: reader, now: time.Now}
}

// MountRoutes registers sequence routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{name}/preview", h.preview)
}

type previewResponse struct {
	Sequence string `json:"sequence"`
	Year     int    `json:"year"`
	NextID   string `json:"next_id"`
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	spec, err := Lookup(chi.URLParam(r, "name"))
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		return
	}
	year := h.now().Year()
	if raw := r.URL.Query().Get("year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil || y < 1 {
			httpx.RespondError(w, shared.FieldError("year", "must be a positive year"))
			return
		}
		year = y
	}
	id, err := Preview(r.Context(), h.reader, spec, year)
	if err != nil {
		if !errors.Is(err, ErrInvalidSpec) && h.logger != nil {
			h.logger.Error("preview sequence", slog.String("sequence", spec.Name), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, previewResponse{Sequence: spec.Name, Year: year, NextID: id})
}
