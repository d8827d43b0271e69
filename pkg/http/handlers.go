package http

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"fluently-server/pkg/analysis"
	"fluently-server/pkg/errors"
)

// EventPublisher mirrors feedback and session lifecycle events onto a message
// broker. A nil publisher disables mirroring.
type EventPublisher interface {
	PublishFeedbackEvent(sessionID, userID string, feedback []analysis.RealTimeFeedback) error
	PublishSessionEnded(sessionID, userID string, final *analysis.SessionAnalytics) error
}

// Handler serves the real-time analysis REST API.
type Handler struct {
	logger    *logrus.Logger
	analyzer  *analysis.Analyzer
	hub       *FeedbackHub
	publisher EventPublisher
}

// NewHandler wires the REST API to the analyzer, hub, and publisher.
func NewHandler(logger *logrus.Logger, analyzer *analysis.Analyzer, hub *FeedbackHub, publisher EventPublisher) *Handler {
	return &Handler{
		logger:    logger,
		analyzer:  analyzer,
		hub:       hub,
		publisher: publisher,
	}
}

// RegisterRoutes attaches all API endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/realtime/start", h.handleStart)
	mux.HandleFunc("POST /api/realtime/analyze", h.handleAnalyze)
	mux.HandleFunc("GET /api/realtime/analytics/{id}", h.handleAnalytics)
	mux.HandleFunc("POST /api/realtime/end/{id}", h.handleEnd)
	mux.HandleFunc("GET /api/realtime/feedback/{id}", h.handleFeedback)
	if h.hub != nil {
		mux.HandleFunc("GET /ws/{session_id}", h.hub.ServeHTTP)
	}
}

type startRequest struct {
	Language      string   `json:"language"`
	AnalysisTypes []string `json:"analysis_types"`
}

type startResponse struct {
	SessionID     string                  `json:"session_id"`
	UserID        string                  `json:"user_id"`
	Language      string                  `json:"language"`
	AnalysisTypes []analysis.AnalysisType `json:"analysis_types"`
	Status        string                  `json:"status"`
	StartedAt     time.Time               `json:"started_at"`
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, errors.NewInvalidInput("invalid request body"))
		return
	}

	if req.Language == "" {
		req.Language = "en"
	}

	types, err := parseAnalysisTypes(req.AnalysisTypes)
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	if len(types) == 0 {
		types = []analysis.AnalysisType{analysis.AnalysisComprehensive}
	}

	sessionID := h.analyzer.StartSession(userID, req.Language, types)
	startedAt, _ := h.analyzer.SessionStartTime(sessionID)

	h.writeJSON(w, http.StatusOK, startResponse{
		SessionID:     sessionID,
		UserID:        userID,
		Language:      req.Language,
		AnalysisTypes: types,
		Status:        "started",
		StartedAt:     startedAt,
	})
}

type analyzeRequest struct {
	SessionID     string   `json:"session_id"`
	AudioData     string   `json:"audio_data,omitempty"`
	Text          string   `json:"text"`
	StartTime     float64  `json:"start_time"`
	EndTime       float64  `json:"end_time"`
	Duration      float64  `json:"duration"`
	Language      string   `json:"language,omitempty"`
	Confidence    float64  `json:"confidence"`
	AnalysisTypes []string `json:"analysis_types,omitempty"`
}

// feedbackResponse is the wire shape of one feedback item: the envelope
// fields with the category payload's fields inlined alongside them.
type feedbackResponse struct {
	ID          string                    `json:"feedback_id"`
	Timestamp   time.Time                 `json:"timestamp"`
	Type        analysis.AnalysisType     `json:"analysis_type"`
	Priority    analysis.FeedbackPriority `json:"priority"`
	Message     string                    `json:"message"`
	Correction  string                    `json:"correction,omitempty"`
	Explanation string                    `json:"explanation"`
	Confidence  float64                   `json:"confidence"`
	Actionable  bool                      `json:"actionable"`

	*analysis.PronunciationAnalysis
	*analysis.GrammarIssue
	*analysis.FluencyMetrics
}

type analyzeResponse struct {
	SessionID string             `json:"session_id"`
	Timestamp time.Time          `json:"timestamp"`
	Feedback  []feedbackResponse `json:"feedback"`
}

func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, errors.NewInvalidInput("invalid request body"))
		return
	}

	userID, ok := h.authorizeSession(w, r, req.SessionID)
	if !ok {
		return
	}

	var audio []byte
	if req.AudioData != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.AudioData)
		if err != nil {
			errors.WriteError(w, errors.Wrap(errors.ErrInvalidAudio, "audio_data is not valid base64"))
			return
		}
		audio = decoded
	}

	if req.Confidence < 0 || req.Confidence > 1 {
		errors.WriteError(w, errors.NewInvalidInput("confidence must be between 0 and 1"))
		return
	}

	types, err := parseAnalysisTypes(req.AnalysisTypes)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	language := req.Language
	if language == "" {
		language, _ = h.analyzer.SessionLanguage(req.SessionID)
	}

	segment := analysis.AudioSegment{
		Audio:      audio,
		Text:       req.Text,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		Duration:   req.Duration,
		Language:   language,
		Confidence: req.Confidence,
	}

	feedback, err := h.analyzer.AnalyzeSegment(r.Context(), req.SessionID, segment, types)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	if h.hub != nil {
		h.hub.BroadcastFeedback(req.SessionID, feedback)
	}
	if h.publisher != nil && len(feedback) > 0 {
		if err := h.publisher.PublishFeedbackEvent(req.SessionID, userID, feedback); err != nil {
			h.logger.WithError(err).Warn("Failed to publish feedback event")
		}
	}

	h.writeJSON(w, http.StatusOK, analyzeResponse{
		SessionID: req.SessionID,
		Timestamp: time.Now(),
		Feedback:  flattenFeedback(feedback),
	})
}

func (h *Handler) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if _, ok := h.authorizeSession(w, r, sessionID); !ok {
		return
	}

	snapshot, err := h.analyzer.SessionAnalytics(sessionID)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, snapshot)
}

type endResponse struct {
	SessionID      string                     `json:"session_id"`
	Status         string                     `json:"status"`
	FinalAnalytics *analysis.SessionAnalytics `json:"final_analytics"`
}

func (h *Handler) handleEnd(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	userID, ok := h.authorizeSession(w, r, sessionID)
	if !ok {
		return
	}

	final, err := h.analyzer.EndSession(sessionID)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	if h.hub != nil {
		h.hub.BroadcastSessionEnded(sessionID, final)
	}
	if h.publisher != nil {
		if err := h.publisher.PublishSessionEnded(sessionID, userID, final); err != nil {
			h.logger.WithError(err).Warn("Failed to publish session-ended event")
		}
	}

	h.writeJSON(w, http.StatusOK, endResponse{
		SessionID:      sessionID,
		Status:         "ended",
		FinalAnalytics: final,
	})
}

type liveFeedbackResponse struct {
	SessionID string             `json:"session_id"`
	Feedback  []feedbackResponse `json:"feedback"`
	Count     int                `json:"count"`
}

func (h *Handler) handleFeedback(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if _, ok := h.authorizeSession(w, r, sessionID); !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			errors.WriteError(w, errors.NewInvalidInput("limit must be a positive integer"))
			return
		}
		limit = n
	}

	feedback := h.analyzer.LiveFeedback(sessionID, limit)

	h.writeJSON(w, http.StatusOK, liveFeedbackResponse{
		SessionID: sessionID,
		Feedback:  flattenFeedback(feedback),
		Count:     len(feedback),
	})
}

// requireUser extracts the caller identity from the X-User-ID header.
func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		errors.WriteError(w, errors.NewUnauthenticated("missing X-User-ID header"))
		return "", false
	}
	return userID, true
}

// authorizeSession checks identity and session ownership. Unknown sessions
// yield 404 so callers cannot probe other users' session ids.
func (h *Handler) authorizeSession(w http.ResponseWriter, r *http.Request, sessionID string) (string, bool) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return "", false
	}

	owner, found := h.analyzer.SessionOwner(sessionID)
	if !found {
		errors.WriteError(w, errors.NewSessionNotFound(sessionID))
		return "", false
	}
	if owner != userID {
		errors.WriteError(w, errors.NewPermissionDenied("session belongs to another user"))
		return "", false
	}
	return userID, true
}

func parseAnalysisTypes(raw []string) ([]analysis.AnalysisType, error) {
	types := make([]analysis.AnalysisType, 0, len(raw))
	for _, value := range raw {
		parsed, err := analysis.ParseAnalysisType(value)
		if err != nil {
			return nil, err
		}
		types = append(types, parsed)
	}
	return types, nil
}

func flattenFeedback(feedback []analysis.RealTimeFeedback) []feedbackResponse {
	out := make([]feedbackResponse, 0, len(feedback))
	for _, item := range feedback {
		out = append(out, feedbackResponse{
			ID:                    item.ID,
			Timestamp:             item.Timestamp,
			Type:                  item.Type,
			Priority:              item.Priority,
			Message:               item.Message,
			Correction:            item.Correction,
			Explanation:           item.Explanation,
			Confidence:            item.Confidence,
			Actionable:            item.Actionable,
			PronunciationAnalysis: item.Pronunciation,
			GrammarIssue:          item.Grammar,
			FluencyMetrics:        item.Fluency,
		})
	}
	return out
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.WithError(err).Error("Failed to encode response body")
	}
}
