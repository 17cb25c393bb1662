package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"recapbot/internal/metrics"
	"recapbot/internal/summarize"

	"github.com/gorilla/mux"
)

// Poster posts summary text back into a channel.
type Poster interface {
	PostMessage(ctx context.Context, channelID, threadTs, text string) error
}

// SummarizeHandler exposes the summarization pipeline over HTTP.
type SummarizeHandler struct {
	service  *summarize.Service
	cache    summarize.SummaryCache
	recorder summarize.SessionRecorder
	poster   Poster
}

func NewSummarizeHandler(service *summarize.Service, cache summarize.SummaryCache, recorder summarize.SessionRecorder, poster Poster) *SummarizeHandler {
	return &SummarizeHandler{
		service:  service,
		cache:    cache,
		recorder: recorder,
		poster:   poster,
	}
}

type summarizeRequest struct {
	TeamID     string   `json:"team_id"`
	UserID     string   `json:"user_id"`
	Context    string   `json:"context"`
	ChannelIDs []string `json:"channel_ids"`
	ThreadTs   string   `json:"thread_ts,omitempty"`
	DaysBack   int      `json:"days_back,omitempty"`
	Timezone   string   `json:"timezone,omitempty"`
}

// HandleSummarize runs a summarization and returns the result.
func (h *SummarizeHandler) HandleSummarize(w http.ResponseWriter, r *http.Request) {
	var req summarizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	if req.TeamID == "" || req.UserID == "" || len(req.ChannelIDs) == 0 {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "team_id, user_id and channel_ids are required")
		return
	}

	runContext := summarize.Context(req.Context)
	switch runContext {
	case summarize.ContextThread:
		if req.ThreadTs == "" {
			writeJSONError(w, http.StatusBadRequest, "invalid_request", "thread_ts is required for thread context")
			return
		}
	case summarize.ContextChannel, summarize.ContextMultiChannel:
	default:
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "context must be thread, channel or multi_channel")
		return
	}

	daysBack := req.DaysBack
	if daysBack <= 0 {
		daysBack = 1
	}

	result, err := h.service.Summarize(r.Context(), summarize.Request{
		Context:    runContext,
		TeamID:     req.TeamID,
		UserID:     req.UserID,
		ChannelIDs: req.ChannelIDs,
		ThreadTs:   req.ThreadTs,
		DaysBack:   daysBack,
		Timezone:   req.Timezone,
	})
	if err != nil {
		writeClassifiedError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleGetSummary fetches a cached summary by key.
func (h *SummarizeHandler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	summary, found, err := h.cache.Get(r.Context(), key)
	if err != nil {
		slog.Error("Summary cache read failed", "error", err, "key", key)
		writeJSONError(w, http.StatusBadGateway, "storage_error", "Could not read summary cache")
		return
	}
	if !found {
		metrics.SummaryCacheOps.WithLabelValues("get", "miss").Inc()
		writeJSONError(w, http.StatusNotFound, "expired", "Summary expired or never existed")
		return
	}

	metrics.SummaryCacheOps.WithLabelValues("get", "hit").Inc()
	writeJSON(w, http.StatusOK, summary)
}

// HandlePostSummary posts a cached summary back to its channel.
func (h *SummarizeHandler) HandlePostSummary(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	summary, found, err := h.cache.Get(r.Context(), key)
	if err != nil {
		slog.Error("Summary cache read failed", "error", err, "key", key)
		writeJSONError(w, http.StatusBadGateway, "storage_error", "Could not read summary cache")
		return
	}
	if !found {
		writeJSONError(w, http.StatusNotFound, "expired", "Summary expired or never existed")
		return
	}

	if err := h.poster.PostMessage(r.Context(), summary.ChannelID, summary.ThreadTs, summary.Text); err != nil {
		slog.Error("Failed to post summary", "error", err, "channel_id", summary.ChannelID)
		writeJSONError(w, http.StatusBadGateway, "post_failed", "Could not post summary to channel")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "posted"})
}

type feedbackRequest struct {
	SessionID string `json:"session_id"`
	TeamID    string `json:"team_id"`
	UserID    string `json:"user_id"`
	Value     int    `json:"value"`
}

// HandleFeedback upserts one user's verdict on a summarization session.
func (h *SummarizeHandler) HandleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.SessionID == "" || req.TeamID == "" || req.UserID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "session_id, team_id and user_id are required")
		return
	}

	err := h.recorder.UpsertFeedback(r.Context(), summarize.FeedbackRecord{
		SessionID: req.SessionID,
		TeamID:    req.TeamID,
		UserID:    req.UserID,
		Value:     req.Value,
	})
	if err != nil {
		metrics.FeedbackRecorded.WithLabelValues("error").Inc()
		slog.Error("Failed to record feedback", "error", err, "session_id", req.SessionID)
		writeJSONError(w, http.StatusBadGateway, "storage_error", "Could not record feedback")
		return
	}

	metrics.FeedbackRecorded.WithLabelValues("success").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// writeClassifiedError maps the pipeline error taxonomy onto HTTP responses.
func writeClassifiedError(w http.ResponseWriter, err error) {
	kind := summarize.KindOf(err)
	switch kind {
	case summarize.KindRateLimited:
		// Not an error-level event: the user simply ran out of quota.
		slog.Info("Summarization rate limited")
		writeJSONError(w, http.StatusTooManyRequests, "upgrade_required", "You have used all your summaries for today")
	case summarize.KindModerationViolation:
		slog.Info("Summarization blocked by moderation")
		writeJSONError(w, http.StatusUnprocessableEntity, "inappropriate_content", "The conversation could not be summarized due to its content")
	case summarize.KindNoMessages, summarize.KindAllMessagesPrefiltered:
		slog.Info("Summarization produced nothing", "kind", kind.String())
		writeJSONError(w, http.StatusNotFound, "could_not_summarize", "There was not enough conversation to summarize")
	default:
		slog.Error("Summarization failed", "error", err)
		writeJSONError(w, http.StatusBadGateway, "unavailable", "Could not summarize right now, please try again")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}
