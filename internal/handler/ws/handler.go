package ws

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/windfall/engapp_service/internal/errors"
	"github.com/windfall/engapp_service/internal/service"
)

// MessageType constants
const (
	TypePing        = "ping"
	TypePong        = "pong"
	TypeDashboard   = "dashboard"
	TypeEligibility = "eligibility"
	TypeError       = "error"
)

// Handler handles WebSocket messages.
type Handler struct {
	log               zerolog.Logger
	assessmentService *service.AssessmentService
}

// NewHandler creates a new WebSocket handler.
func NewHandler(log zerolog.Logger, assessmentService *service.AssessmentService) *Handler {
	return &Handler{
		log:               log,
		assessmentService: assessmentService,
	}
}

// Response represents a WebSocket response.
type Response struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Handle processes an incoming message from an authenticated user.
func (h *Handler) Handle(ctx context.Context, userID, msgType string, payload json.RawMessage) ([]byte, error) {
	h.log.Debug().
		Str("user_id", userID).
		Str("type", msgType).
		Msg("Handling WebSocket message")

	switch msgType {
	case TypePing:
		return h.response(TypePong, map[string]string{
			"status": "ok",
		})

	case TypeDashboard:
		dashboard, err := h.assessmentService.GetDashboardData(ctx, userID)
		if err != nil {
			return h.appErrorResponse(err)
		}
		return h.response(TypeDashboard, dashboard)

	case TypeEligibility:
		eligibility, err := h.assessmentService.CanStartAssessment(ctx, userID)
		if err != nil {
			return h.appErrorResponse(err)
		}
		return h.response(TypeEligibility, eligibility)

	default:
		return h.errorResponse("unknown message type: " + msgType)
	}
}

// Event encodes a service event for delivery to clients.
func (h *Handler) Event(ev service.Event) ([]byte, error) {
	return h.response(ev.Type, ev)
}

func (h *Handler) response(msgType string, payload interface{}) ([]byte, error) {
	resp := Response{
		Type:    msgType,
		Payload: payload,
	}
	return json.Marshal(resp)
}

func (h *Handler) errorResponse(message string) ([]byte, error) {
	return h.response(TypeError, map[string]string{
		"error": message,
	})
}

func (h *Handler) appErrorResponse(err error) ([]byte, error) {
	if appErr, ok := errors.As(err); ok {
		return h.response(TypeError, map[string]string{
			"code":  string(appErr.Code),
			"error": appErr.Message,
		})
	}
	h.log.Error().Err(err).Msg("WebSocket request failed")
	return h.errorResponse("internal server error")
}
