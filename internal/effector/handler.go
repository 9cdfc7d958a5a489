package effector

import (
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/aiox-platform/mindloop/internal/api"
	"github.com/aiox-platform/mindloop/internal/auth"
)

// Handler exposes out-of-band, forced delivery and gate control.
type Handler struct {
	gateway  *Gateway
	agent    string
	validate *validator.Validate
}

// NewHandler creates a new effector handler.
func NewHandler(gateway *Gateway, agent string) *Handler {
	return &Handler{gateway: gateway, agent: agent, validate: validator.New()}
}

type SpeakRequest struct {
	Text     string            `json:"text" validate:"required,min=1,max=4000"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type StateRequest struct {
	Status     string   `json:"status" validate:"required,oneof=acting idle confused failed"`
	Thought    string   `json:"thought,omitempty"`
	Text       string   `json:"text,omitempty"`
	Actions    []string `json:"actions,omitempty"`
	Providers  []string `json:"providers,omitempty"`
	Evaluators []string `json:"evaluators,omitempty"`
	Simple     bool     `json:"simple"`
}

type ActivationRequest struct {
	Avatar     *bool `json:"avatar,omitempty"`
	Blackboard *bool `json:"blackboard,omitempty"`
}

type deliveryResponse struct {
	Outcome Outcome `json:"outcome"`
}

func outcomeStatus(o Outcome) int {
	switch o {
	case Delivered:
		return http.StatusOK
	case Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// Speak sends text to the avatar regardless of its gate.
func (h *Handler) Speak(w http.ResponseWriter, r *http.Request) {
	var req SpeakRequest
	if err := api.Decode(w, r, &req); err != nil {
		api.HandleError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	o := h.gateway.Send(r.Context(), req.Text, req.Metadata, Options{Force: true})
	slog.Info("operator speech", "operator", auth.Operator(r.Context()), "outcome", o)
	api.JSON(w, outcomeStatus(o), deliveryResponse{Outcome: o})
}

// PublishState publishes a state on the blackboard regardless of its gate.
func (h *Handler) PublishState(w http.ResponseWriter, r *http.Request) {
	var req StateRequest
	if err := api.Decode(w, r, &req); err != nil {
		api.HandleError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	state := State{
		Agent:      h.agent,
		Status:     req.Status,
		Thought:    req.Thought,
		Text:       req.Text,
		Actions:    orEmpty(req.Actions),
		Providers:  orEmpty(req.Providers),
		Evaluators: orEmpty(req.Evaluators),
		Simple:     req.Simple,
	}
	o := h.gateway.PublishState(r.Context(), state, Options{Force: true})
	slog.Info("operator state", "operator", auth.Operator(r.Context()), "status", state.Status, "outcome", o)
	api.JSON(w, outcomeStatus(o), deliveryResponse{Outcome: o})
}

// GetActivation returns both gates.
func (h *Handler) GetActivation(w http.ResponseWriter, r *http.Request) {
	api.JSON(w, http.StatusOK, h.gateway.Activation())
}

// SetActivation opens or closes either gate.
func (h *Handler) SetActivation(w http.ResponseWriter, r *http.Request) {
	var req ActivationRequest
	if err := api.Decode(w, r, &req); err != nil {
		api.HandleError(w, err)
		return
	}
	if req.Avatar == nil && req.Blackboard == nil {
		api.HandleError(w, api.NewValidationError("avatar or blackboard is required"))
		return
	}

	if req.Avatar != nil {
		h.gateway.SetAvatarActive(*req.Avatar)
	}
	if req.Blackboard != nil {
		h.gateway.SetBlackboardActive(*req.Blackboard)
	}
	slog.Info("effector gates changed", "operator", auth.Operator(r.Context()), "activation", h.gateway.Activation())
	api.JSON(w, http.StatusOK, h.gateway.Activation())
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
