package summarize

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"recapbot/internal/normalize"
	"recapbot/internal/slackapi"

	"github.com/slack-go/slack"
)

// msg builds a plain user message.
func msg(ts, user, text string) slack.Message {
	return slack.Message{Msg: slack.Msg{Timestamp: ts, User: user, Text: text}}
}

// botMsg builds a bot-authored message posting under a username.
func botMsg(ts, botID, username, text string) slack.Message {
	return slack.Message{Msg: slack.Msg{Timestamp: ts, BotID: botID, Username: username, Text: text}}
}

// fakeSource serves scripted history pages and reply sets.
type fakeSource struct {
	mu      sync.Mutex
	pages   [][]slack.Message
	replies map[string][]slack.Message

	historyErr error
	repliesErr error

	historyCalls int
	replyCalls   int
}

func (f *fakeSource) FetchHistory(_ context.Context, _, cursor, _, _ string, _ int) ([]slack.Message, bool, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.historyErr != nil {
		return nil, false, "", f.historyErr
	}

	f.historyCalls++
	page := 0
	if cursor != "" {
		fmt.Sscanf(cursor, "page-%d", &page)
	}
	if page >= len(f.pages) {
		return nil, false, "", nil
	}

	hasMore := page+1 < len(f.pages)
	next := ""
	if hasMore {
		next = fmt.Sprintf("page-%d", page+1)
	}
	return f.pages[page], hasMore, next, nil
}

func (f *fakeSource) FetchReplies(_ context.Context, _, rootTs string, _ int) ([]slack.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.repliesErr != nil {
		return nil, f.repliesErr
	}

	f.replyCalls++
	return f.replies[rootTs], nil
}

// fakeResolver resolves users from a fixed table, with sentinel fallback.
type fakeResolver struct {
	users map[string]slackapi.UserIdentity
	bots  map[string]slackapi.BotIdentity
}

func (f *fakeResolver) ResolveUser(_ context.Context, userID string) slackapi.UserIdentity {
	if identity, ok := f.users[userID]; ok {
		return identity
	}
	return slackapi.UserIdentity{Name: slackapi.UnknownUserName}
}

func (f *fakeResolver) ResolveBot(_ context.Context, botID string) slackapi.BotIdentity {
	if identity, ok := f.bots[botID]; ok {
		return identity
	}
	return slackapi.BotIdentity{Name: slackapi.UnknownBotName}
}

// fakeBackend plays back scripted responses in order; the last entry
// repeats once the script runs out.
type fakeBackend struct {
	responses []*BackendResponse
	err       error

	calls        int
	lastRecords  []ModelRecord
	recordCounts []int
}

func (f *fakeBackend) respond(records []ModelRecord) (*BackendResponse, error) {
	f.calls++
	f.lastRecords = records
	f.recordCounts = append(f.recordCounts, len(records))

	if f.err != nil {
		return nil, f.err
	}
	idx := f.calls - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], nil
}

func (f *fakeBackend) SummarizeChannel(_ context.Context, records []ModelRecord, _ string) (*BackendResponse, error) {
	return f.respond(records)
}

func (f *fakeBackend) SummarizeMessages(_ context.Context, records []ModelRecord) (*BackendResponse, error) {
	return f.respond(records)
}

// fakeQuota tracks acquisitions and refunds.
type fakeQuota struct {
	allow    bool
	acquired int
	refunded int
}

func (f *fakeQuota) Acquire(_ context.Context, _, _, _ string) (bool, error) {
	f.acquired++
	return f.allow, nil
}

func (f *fakeQuota) AllowMore(_ context.Context, _, _, _ string, amount int) error {
	f.refunded += amount
	return nil
}

// fakeCache records Set calls.
type fakeCache struct {
	entries map[string]CachedSummary
}

func (f *fakeCache) Set(_ context.Context, summary CachedSummary, key string) (string, error) {
	if f.entries == nil {
		f.entries = make(map[string]CachedSummary)
	}
	if key == "" {
		key = fmt.Sprintf("key-%d", len(f.entries)+1)
	}
	f.entries[key] = summary
	return key, nil
}

func (f *fakeCache) Get(_ context.Context, key string) (CachedSummary, bool, error) {
	entry, ok := f.entries[key]
	return entry, ok, nil
}

// fakeRecorder keeps the first session per key, like the real store.
type fakeRecorder struct {
	sessions map[string]SessionRecord
	feedback map[string]FeedbackRecord
	err      error
}

func (f *fakeRecorder) InsertSession(_ context.Context, rec SessionRecord) error {
	if f.err != nil {
		return f.err
	}
	if f.sessions == nil {
		f.sessions = make(map[string]SessionRecord)
	}
	key := rec.SessionID + "/" + rec.TeamID
	if _, exists := f.sessions[key]; !exists {
		f.sessions[key] = rec
	}
	return nil
}

func (f *fakeRecorder) UpsertFeedback(_ context.Context, rec FeedbackRecord) error {
	if f.err != nil {
		return f.err
	}
	if f.feedback == nil {
		f.feedback = make(map[string]FeedbackRecord)
	}
	f.feedback[rec.SessionID+"/"+rec.TeamID+"/"+rec.UserID] = rec
	return nil
}

// passthroughNormalizer trims whitespace and nothing else.
type passthroughNormalizer struct{}

func (passthroughNormalizer) Normalize(raw string, _ normalize.Options) string {
	return strings.TrimSpace(raw)
}
