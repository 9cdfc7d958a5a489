package orchestrator

import (
	"net/http"

	"github.com/aiox-platform/mindloop/internal/api"
	"github.com/aiox-platform/mindloop/internal/diversity"
)

// Handler exposes the loop state.
type Handler struct {
	scheduler *Scheduler
	tracker   *diversity.Tracker
}

// NewHandler creates a new loop handler.
func NewHandler(scheduler *Scheduler, tracker *diversity.Tracker) *Handler {
	return &Handler{scheduler: scheduler, tracker: tracker}
}

type statusResponse struct {
	Status
	RecentActions []diversity.Entry `json:"recent_actions"`
	Counts        map[string]int    `json:"counts"`
	Guidance      string            `json:"guidance,omitempty"`
}

// Status returns the scheduler state and the diversity window.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	st := h.scheduler.Status()
	api.JSON(w, http.StatusOK, statusResponse{
		Status:        st,
		RecentActions: h.tracker.Entries(),
		Counts:        h.tracker.Counts(),
		Guidance:      h.tracker.Guidance(st.Iteration),
	})
}
