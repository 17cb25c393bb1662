package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"recapbot/internal/store"
	"recapbot/internal/summarize"

	"github.com/gorilla/mux"
)

type fakePoster struct {
	channelID string
	threadTs  string
	text      string
	err       error
}

func (f *fakePoster) PostMessage(_ context.Context, channelID, threadTs, text string) error {
	f.channelID = channelID
	f.threadTs = threadTs
	f.text = text
	return f.err
}

func newTestHandler(poster *fakePoster) (*SummarizeHandler, *store.SummaryCache, *store.MemoryRecorder) {
	cache := store.NewSummaryCache(store.NewMemoryKV())
	recorder := store.NewMemoryRecorder()
	return NewSummarizeHandler(nil, cache, recorder, poster), cache, recorder
}

func TestHandleSummarize_Validation(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: `{not json`},
		{name: "missing team", body: `{"user_id":"U1","context":"channel","channel_ids":["C1"]}`},
		{name: "missing channels", body: `{"team_id":"T1","user_id":"U1","context":"channel"}`},
		{name: "unknown context", body: `{"team_id":"T1","user_id":"U1","context":"weekly","channel_ids":["C1"]}`},
		{name: "thread without ts", body: `{"team_id":"T1","user_id":"U1","context":"thread","channel_ids":["C1"]}`},
	}

	handler, _, _ := newTestHandler(&fakePoster{})

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/summarize", bytes.NewBufferString(tc.body))
			w := httptest.NewRecorder()

			handler.HandleSummarize(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", w.Code)
			}
		})
	}
}

func TestHandleGetSummary(t *testing.T) {
	handler, cache, _ := newTestHandler(&fakePoster{})

	key, err := cache.Set(context.Background(), summarize.CachedSummary{
		Text:      "the week in review",
		ChannelID: "C1",
	}, "")
	if err != nil {
		t.Fatalf("Cache set failed: %v", err)
	}

	router := mux.NewRouter()
	router.HandleFunc("/api/summaries/{key}", handler.HandleGetSummary)

	req := httptest.NewRequest("GET", "/api/summaries/"+key, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var summary summarize.CachedSummary
	if err := json.NewDecoder(w.Body).Decode(&summary); err != nil {
		t.Fatalf("Could not decode response: %v", err)
	}
	if summary.Text != "the week in review" {
		t.Errorf("Unexpected summary text: %q", summary.Text)
	}

	// Unknown keys are presented as expired, not as an internal failure.
	req = httptest.NewRequest("GET", "/api/summaries/no-such-key", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown key, got %d", w.Code)
	}
}

func TestHandlePostSummary(t *testing.T) {
	poster := &fakePoster{}
	handler, cache, _ := newTestHandler(poster)

	key, err := cache.Set(context.Background(), summarize.CachedSummary{
		Text:      "shipped three features",
		ChannelID: "C1",
		ThreadTs:  "9.0",
	}, "")
	if err != nil {
		t.Fatalf("Cache set failed: %v", err)
	}

	router := mux.NewRouter()
	router.HandleFunc("/api/summaries/{key}/post", handler.HandlePostSummary)

	req := httptest.NewRequest("POST", "/api/summaries/"+key+"/post", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if poster.channelID != "C1" || poster.threadTs != "9.0" || poster.text != "shipped three features" {
		t.Errorf("Poster received wrong arguments: %+v", poster)
	}
}

func TestHandlePostSummary_PostFailure(t *testing.T) {
	poster := &fakePoster{err: errors.New("channel archived")}
	handler, cache, _ := newTestHandler(poster)

	key, _ := cache.Set(context.Background(), summarize.CachedSummary{Text: "x", ChannelID: "C1"}, "")

	router := mux.NewRouter()
	router.HandleFunc("/api/summaries/{key}/post", handler.HandlePostSummary)

	req := httptest.NewRequest("POST", "/api/summaries/"+key+"/post", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Errorf("Expected 502 when posting fails, got %d", w.Code)
	}
}

func TestHandleFeedback(t *testing.T) {
	handler, _, recorder := newTestHandler(&fakePoster{})

	body := `{"session_id":"S1","team_id":"T1","user_id":"U1","value":1}`
	req := httptest.NewRequest("POST", "/api/feedback", bytes.NewBufferString(body))
	w := httptest.NewRecorder()

	handler.HandleFeedback(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	rec, ok := recorder.Feedback("S1", "T1", "U1")
	if !ok || rec.Value != 1 {
		t.Errorf("Expected recorded feedback value 1, got %+v (found=%v)", rec, ok)
	}

	// Same user changing their mind overwrites the verdict.
	body = `{"session_id":"S1","team_id":"T1","user_id":"U1","value":-1}`
	req = httptest.NewRequest("POST", "/api/feedback", bytes.NewBufferString(body))
	w = httptest.NewRecorder()
	handler.HandleFeedback(w, req)

	rec, _ = recorder.Feedback("S1", "T1", "U1")
	if rec.Value != -1 {
		t.Errorf("Expected feedback upsert to overwrite, got %d", rec.Value)
	}
}

func TestHandleFeedback_Validation(t *testing.T) {
	handler, _, _ := newTestHandler(&fakePoster{})

	req := httptest.NewRequest("POST", "/api/feedback", bytes.NewBufferString(`{"session_id":"S1"}`))
	w := httptest.NewRecorder()
	handler.HandleFeedback(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for incomplete feedback, got %d", w.Code)
	}
}

func TestWriteClassifiedError(t *testing.T) {
	testCases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "rate limited", err: summarize.NewError(summarize.KindRateLimited, nil), status: http.StatusTooManyRequests, code: "upgrade_required"},
		{name: "moderation", err: summarize.NewError(summarize.KindModerationViolation, nil), status: http.StatusUnprocessableEntity, code: "inappropriate_content"},
		{name: "no messages", err: summarize.NewError(summarize.KindNoMessages, nil), status: http.StatusNotFound, code: "could_not_summarize"},
		{name: "prefiltered", err: summarize.NewError(summarize.KindAllMessagesPrefiltered, nil), status: http.StatusNotFound, code: "could_not_summarize"},
		{name: "upstream", err: summarize.NewError(summarize.KindUpstreamUnavailable, errors.New("boom")), status: http.StatusBadGateway, code: "unavailable"},
		{name: "unclassified", err: errors.New("surprise"), status: http.StatusBadGateway, code: "unavailable"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeClassifiedError(w, tc.err)

			if w.Code != tc.status {
				t.Errorf("Expected status %d, got %d", tc.status, w.Code)
			}
			var payload map[string]string
			if err := json.NewDecoder(w.Body).Decode(&payload); err != nil {
				t.Fatalf("Could not decode error payload: %v", err)
			}
			if payload["error"] != tc.code {
				t.Errorf("Expected error code %q, got %q", tc.code, payload["error"])
			}
		})
	}
}
