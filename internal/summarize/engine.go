package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"recapbot/internal/metrics"

	"github.com/google/uuid"
)

// Engine invokes the summarization backend with a shrink-and-retry loop.
//
// The loop is bounded by the initial record count: every blank response
// discards the first record of the active set, so the loop terminates even
// if the backend keeps returning nothing.
type Engine struct {
	backend    Backend
	sessions   SessionRecorder
	permalinks Permalinker
	// testTeamIDs get every shape concatenated with labeled headers.
	testTeamIDs map[string]struct{}
}

func NewEngine(backend Backend, sessions SessionRecorder, permalinks Permalinker, testTeamIDs []string) *Engine {
	ids := make(map[string]struct{}, len(testTeamIDs))
	for _, id := range testTeamIDs {
		ids[id] = struct{}{}
	}
	return &Engine{
		backend:     backend,
		sessions:    sessions,
		permalinks:  permalinks,
		testTeamIDs: ids,
	}
}

// Summarize submits the fitted records, retrying on blank responses with a
// shrunk set. Moderation violations fail immediately; exhausting the record
// set fails with KindNoMessages. Iterations are strictly sequential: no two
// backend calls for the same run are ever in flight at once.
func (e *Engine) Summarize(ctx context.Context, req Request, records []ModelRecord, channelName string) (*Summarization, error) {
	maxAttempts := len(records)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if len(records) == 0 {
			break
		}

		resp, err := e.call(ctx, req, records, channelName)
		if err != nil {
			if errors.Is(err, ErrModerationViolation) {
				metrics.BackendCalls.WithLabelValues("moderated").Inc()
				return nil, NewError(KindModerationViolation, err)
			}
			metrics.BackendCalls.WithLabelValues("error").Inc()
			return nil, NewError(KindUpstreamUnavailable, err)
		}
		metrics.BackendCalls.WithLabelValues("success").Inc()

		if resp.Blank() {
			// The model produced nothing for this set; drop the leading
			// record and try a smaller request.
			records = records[1:]
			metrics.BackendRetries.Inc()
			slog.Debug("Blank backend response, shrinking record set",
				"attempt", attempt+1,
				"remaining", len(records))
			continue
		}

		text := e.renderText(req, resp)
		result := e.buildResult(req, records, text)
		e.recordSession(ctx, req, records, result)
		return result, nil
	}

	return nil, NewError(KindNoMessages, fmt.Errorf("no non-blank summary after %d attempts", maxAttempts))
}

func (e *Engine) call(ctx context.Context, req Request, records []ModelRecord, channelName string) (*BackendResponse, error) {
	start := time.Now()
	defer func() {
		metrics.BackendCallDuration.Observe(time.Since(start).Seconds())
	}()

	if req.Context == ContextThread {
		return e.backend.SummarizeMessages(ctx, records)
	}
	return e.backend.SummarizeChannel(ctx, records, channelName)
}

// renderText picks exactly one textual representation of the response.
func (e *Engine) renderText(req Request, resp *BackendResponse) string {
	if req.Context == ContextThread {
		return renderConversations(resp.Conversations)
	}

	if _, internal := e.testTeamIDs[req.TeamID]; internal {
		return renderAllShapes(resp)
	}

	// Fixed priority order; first non-empty shape wins.
	if text := strings.TrimSpace(resp.SummaryByEverything); text != "" {
		return text
	}
	if text := renderTopics(resp.SummaryByTopics); text != "" {
		return text
	}
	if text := renderBullets(resp.SummaryByBullets); text != "" {
		return text
	}
	if text := strings.TrimSpace(resp.SummaryBySummary); text != "" {
		return text
	}
	return renderConversations(resp.Conversations)
}

func renderConversations(conversations []ConversationSummary) string {
	var parts []string
	for _, c := range conversations {
		if s := strings.TrimSpace(c.Summary); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

func renderTopics(topics *OrderedTopics) string {
	if topics == nil || topics.Len() == 0 {
		return ""
	}
	var b strings.Builder
	for _, key := range topics.Keys() {
		text, _ := topics.Get(key)
		if strings.TrimSpace(text) == "" {
			continue
		}
		fmt.Fprintf(&b, "%s:\n%s\n", key, text)
	}
	return strings.TrimSpace(b.String())
}

func renderBullets(bullets []string) string {
	var parts []string
	n := 0
	for _, bullet := range bullets {
		if strings.TrimSpace(bullet) == "" {
			continue
		}
		n++
		parts = append(parts, fmt.Sprintf("%d. %s", n, bullet))
	}
	return strings.Join(parts, "\n\n")
}

// renderAllShapes concatenates every populated shape with labeled headers.
// Internal test teams use this to compare model output shapes side by side.
func renderAllShapes(resp *BackendResponse) string {
	var sections []string
	if text := strings.TrimSpace(resp.SummaryByEverything); text != "" {
		sections = append(sections, "Summary by everything:\n"+text)
	}
	if text := renderTopics(resp.SummaryByTopics); text != "" {
		sections = append(sections, "Summary by topics:\n"+text)
	}
	if text := renderBullets(resp.SummaryByBullets); text != "" {
		sections = append(sections, "Summary by bullets:\n"+text)
	}
	if text := strings.TrimSpace(resp.SummaryBySummary); text != "" {
		sections = append(sections, "Summary by summary:\n"+text)
	}
	return strings.Join(sections, "\n\n")
}

func (e *Engine) buildResult(req Request, records []ModelRecord, text string) *Summarization {
	authors := make(map[string]struct{})
	occurrences := 0
	reactions := 0
	for _, rec := range records {
		occurrences++
		authors[rec.UserID] = struct{}{}
		for _, r := range rec.Reactions {
			reactions += r.Count
		}
	}

	return &Summarization{
		SessionID:        uuid.New().String(),
		Text:             text,
		NumberOfMessages: len(records),
		NumberOfUsers:    occurrences,
		UniqueUsers:      len(authors),
		Reactions:        reactions,
	}
}

// recordSession persists the audit record. Best effort: the summary is
// already committed to the caller, so failures are logged and swallowed.
func (e *Engine) recordSession(ctx context.Context, req Request, records []ModelRecord, result *Summarization) {
	if e.sessions == nil {
		return
	}

	channelID := ""
	if len(req.ChannelIDs) > 0 {
		channelID = req.ChannelIDs[0]
	}

	rec := SessionRecord{
		SessionID:   result.SessionID,
		TeamID:      req.TeamID,
		SummaryType: req.Context,
		ChannelID:   channelID,
		UserID:      req.UserID,
		Messages:    records,
		Response:    result.Text,
	}

	if err := e.sessions.InsertSession(ctx, rec); err != nil {
		metrics.SessionsRecorded.WithLabelValues("error").Inc()
		slog.Error("Failed to record summarization session",
			"error", err,
			"session_id", result.SessionID,
			"team_id", req.TeamID)
		return
	}
	metrics.SessionsRecorded.WithLabelValues("success").Inc()
}

// EnrichWithPermalink appends a view link for channel-context results when
// a permalink can be resolved. Thread results stay plain text.
func (e *Engine) EnrichWithPermalink(ctx context.Context, req Request, result *Summarization, firstTs string) {
	if req.Context == ContextThread || e.permalinks == nil || firstTs == "" {
		return
	}
	if len(req.ChannelIDs) == 0 {
		return
	}

	link, err := e.permalinks.GetPermalink(ctx, req.ChannelIDs[0], firstTs)
	if err != nil {
		slog.Debug("Permalink enrichment skipped", "error", err)
		return
	}

	result.Text = result.Text + "\n\n<" + link + "|View conversation>"
}
