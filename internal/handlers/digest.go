package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"recapbot/internal/mailer"
	"recapbot/internal/summarize"
)

// DigestHandler triggers digest emails through the mail microservice.
type DigestHandler struct {
	mail  *mailer.Client
	quota summarize.QuotaGate
}

func NewDigestHandler(mail *mailer.Client, quota summarize.QuotaGate) *DigestHandler {
	return &DigestHandler{mail: mail, quota: quota}
}

type digestRequest struct {
	TeamID    string `json:"team_id"`
	UserID    string `json:"user_id"`
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

// HandleSendDigest sends a digest email, gated by the send_digest quota.
func (h *DigestHandler) HandleSendDigest(w http.ResponseWriter, r *http.Request) {
	var req digestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.TeamID == "" || req.UserID == "" || req.Recipient == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "team_id, user_id and recipient are required")
		return
	}

	allowed, err := h.quota.Acquire(r.Context(), req.TeamID, req.UserID, summarize.FeatureSendDigest)
	if err != nil {
		slog.Error("Digest quota check failed", "error", err)
		writeJSONError(w, http.StatusBadGateway, "unavailable", "Could not send digest right now")
		return
	}
	if !allowed {
		writeJSONError(w, http.StatusTooManyRequests, "upgrade_required", "You have used all your digests for today")
		return
	}

	err = h.mail.SendDigest(r.Context(), mailer.DigestRequest{
		TeamID:    req.TeamID,
		Recipient: req.Recipient,
		Subject:   req.Subject,
		Body:      req.Body,
	})
	if err != nil {
		slog.Error("Failed to send digest", "error", err, "team_id", req.TeamID)
		if refundErr := h.quota.AllowMore(r.Context(), req.TeamID, req.UserID, summarize.FeatureSendDigest, 1); refundErr != nil {
			slog.Error("Failed to refund digest quota", "error", refundErr)
		}
		writeJSONError(w, http.StatusBadGateway, "send_failed", "Could not send digest")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}
