package memory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/aiox-platform/mindloop/internal/api"
)

// Handler handles memory HTTP endpoints. A nil engine means archiving is
// disabled and every endpoint answers 503.
type Handler struct {
	engine   *Engine
	validate *validator.Validate
}

// NewHandler creates a new memory handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{
		engine:   engine,
		validate: validator.New(),
	}
}

func (h *Handler) available(w http.ResponseWriter) bool {
	if h.engine == nil || !h.engine.Enabled() {
		api.HandleError(w, api.NewUnavailableError("archiving is disabled"))
		return false
	}
	return true
}

// Create records a new memory in the active tier.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}

	var req NewRecord
	if err := api.Decode(w, r, &req); err != nil {
		api.HandleError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	rec, err := h.engine.Record(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrDisabled) {
			api.HandleError(w, api.ErrServiceUnavailable)
			return
		}
		slog.Error("recording memory", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusCreated, rec)
}

// Stats returns archive totals and the active count.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}

	stats, err := h.engine.Stats(r.Context())
	if err != nil {
		slog.Error("reading memory stats", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSON(w, http.StatusOK, stats)
}

// SearchArchive queries the archive tier.
func (h *Handler) SearchArchive(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}

	req := SearchRequest{Query: r.URL.Query().Get("q"), Limit: 10}
	if l := r.URL.Query().Get("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil {
			api.HandleError(w, api.NewBadRequestError("limit must be an integer"))
			return
		}
		req.Limit = v
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	api.JSON(w, http.StatusOK, h.engine.Retrieve(r.Context(), req.Query, req.Limit))
}

// Sweep runs an archiving sweep immediately.
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}

	res, err := h.engine.Sweep(r.Context())
	if err != nil {
		slog.Error("manual sweep", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSON(w, http.StatusOK, res)
}
