package http

import (
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/windfall/engapp_service/internal/errors"
	"github.com/windfall/engapp_service/internal/middleware"
	"github.com/windfall/engapp_service/internal/service"
	"github.com/windfall/engapp_service/pkg/response"
)

// AssessmentHandler handles placement assessment HTTP endpoints.
type AssessmentHandler struct {
	log               zerolog.Logger
	assessmentService *service.AssessmentService
	maxAudioBytes     int64
}

// NewAssessmentHandler creates a new AssessmentHandler.
func NewAssessmentHandler(log zerolog.Logger, assessmentService *service.AssessmentService, maxAudioBytes int64) *AssessmentHandler {
	if maxAudioBytes <= 0 {
		maxAudioBytes = 20 << 20
	}
	return &AssessmentHandler{
		log:               log,
		assessmentService: assessmentService,
		maxAudioBytes:     maxAudioBytes,
	}
}

// Eligibility handles GET /api/v1/assessments/eligibility
func (h *AssessmentHandler) Eligibility(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	result, err := h.assessmentService.CanStartAssessment(r.Context(), userID)
	if err != nil {
		h.handleError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, result)
}

// Start handles POST /api/v1/assessments
func (h *AssessmentHandler) Start(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	session, err := h.assessmentService.StartAssessment(r.Context(), userID)
	if err != nil {
		h.handleError(w, err)
		return
	}

	response.Created(w, session)
}

// SubmitPhase handles POST /api/v1/assessments/{sessionID}/phases/{phase}
// Accepts multipart form with "audio" file field and optional "attempt".
func (h *AssessmentHandler) SubmitPhase(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxAudioBytes)
	if err := r.ParseMultipartForm(h.maxAudioBytes); err != nil {
		response.BadRequest(w, "invalid multipart body or recording too large")
		return
	}

	file, _, err := r.FormFile("audio")
	if err != nil {
		response.BadRequest(w, "audio file is required (field: 'audio')")
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		response.BadRequest(w, "failed to read audio file")
		return
	}

	attempt := 0
	if raw := r.FormValue("attempt"); raw != "" {
		attempt, err = strconv.Atoi(raw)
		if err != nil {
			h.handleError(w, errors.Validation("attempt must be a number"))
			return
		}
	}

	result, err := h.assessmentService.SubmitPhase(r.Context(), service.SubmitPhaseInput{
		SessionID: chi.URLParam(r, "sessionID"),
		UserID:    userID,
		Phase:     chi.URLParam(r, "phase"),
		Audio:     audio,
		Attempt:   attempt,
	})
	if err != nil {
		h.handleError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, result)
}

// Complete handles POST /api/v1/assessments/{sessionID}/complete
// It retries a final scoring that did not commit during PHASE_4.
func (h *AssessmentHandler) Complete(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if _, err := h.assessmentService.GetResults(r.Context(), sessionID, userID); err != nil {
		h.handleError(w, err)
		return
	}

	report, err := h.assessmentService.CalculateFinalLevel(r.Context(), sessionID)
	if err != nil {
		h.handleError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, report)
}

// GetResults handles GET /api/v1/assessments/{sessionID}
func (h *AssessmentHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	session, err := h.assessmentService.GetResults(r.Context(), chi.URLParam(r, "sessionID"), userID)
	if err != nil {
		h.handleError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, session)
}

// Dashboard handles GET /api/v1/assessments/dashboard
func (h *AssessmentHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	dashboard, err := h.assessmentService.GetDashboardData(r.Context(), userID)
	if err != nil {
		h.handleError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, dashboard)
}

func (h *AssessmentHandler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		response.Unauthorized(w, "user not authenticated")
		return "", false
	}
	return userID, true
}

func (h *AssessmentHandler) handleError(w http.ResponseWriter, err error) {
	appErr, ok := errors.As(err)
	if !ok {
		h.log.Error().Err(err).Msg("Internal server error")
		response.InternalError(w, "internal server error")
		return
	}

	switch appErr.Code {
	case errors.ErrCooldownActive:
		if next, ok := appErr.Details["next_available_at"].(string); ok {
			if at, err := time.Parse(time.RFC3339Nano, next); err == nil {
				secs := int(math.Ceil(time.Until(at).Seconds()))
				if secs > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(secs))
				}
			}
		}
	case errors.ErrInternal, errors.ErrUpstreamService, errors.ErrStorageService:
		h.log.Error().Err(appErr).Str("code", string(appErr.Code)).Msg("Request failed")
	}

	response.AppError(w, appErr)
}
