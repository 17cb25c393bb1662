// Package summarize implements the conversation summarization pipeline:
// quota gate, message collection, bot-channel detection, budget fitting,
// the shrink-and-retry backend engine, and result caching.
package summarize

import (
	"context"
	"time"

	"github.com/slack-go/slack"
)

// Context identifies which summarization entry point a run serves.
type Context string

const (
	ContextThread       Context = "thread"
	ContextChannel      Context = "channel"
	ContextMultiChannel Context = "multi_channel"
)

// Features gated by the quota limiter.
const (
	FeatureSummarizeChannel = "summarize_channel"
	FeatureSummarizeThread  = "summarize_thread"
	FeatureSendDigest       = "send_digest"
)

// EnrichedThread is a root message joined with its fetched replies. The
// replies never include the root itself.
type EnrichedThread struct {
	Root    slack.Message
	Replies []slack.Message
}

// flatten lists every message of the threads in order, each root followed by
// its replies.
func flatten(threads []EnrichedThread) []slack.Message {
	var messages []slack.Message
	for _, thread := range threads {
		messages = append(messages, thread.Root)
		messages = append(messages, thread.Replies...)
	}
	return messages
}

// Reaction is an emoji reaction aggregated onto a model record.
type Reaction struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ModelRecord is the normalized unit sent to the summarization backend.
type ModelRecord struct {
	Ts        string     `json:"ts"`
	ThreadTs  string     `json:"thread_ts,omitempty"`
	ChannelID string     `json:"channel_id"`
	UserID    string     `json:"user_id"`
	UserName  string     `json:"user_name"`
	UserTitle string     `json:"user_title,omitempty"`
	Reactions []Reaction `json:"reactions,omitempty"`
	Text      string     `json:"text"`
	IsBot     bool       `json:"is_bot"`
}

// Request describes one summarization run.
type Request struct {
	Context    Context
	TeamID     string
	UserID     string
	ChannelIDs []string
	// ThreadTs is set for thread-context runs.
	ThreadTs string
	DaysBack int
	// Timezone is the requesting user's IANA timezone; empty means UTC.
	Timezone string
}

// Summarization is the result of a successful run.
type Summarization struct {
	SessionID        string     `json:"session_id"`
	Text             string     `json:"text"`
	StartDate        time.Time  `json:"start_date"`
	NumberOfMessages int        `json:"number_of_messages"`
	// NumberOfUsers counts author occurrences; UniqueUsers counts distinct
	// authors. Analytics consumes both.
	NumberOfUsers int      `json:"number_of_users"`
	UniqueUsers   int      `json:"unique_users"`
	Reactions     int      `json:"reactions"`
	// SingleBot carries the detection result when a single-bot integration
	// short-circuited the pipeline.
	SingleBot *IntegrationSummary `json:"single_bot,omitempty"`
}

// CachedSummary is the short-lived cache entry backing the post-to-channel
// and feedback flows.
type CachedSummary struct {
	Text      string    `json:"text"`
	StartDate time.Time `json:"start_date"`
	ChannelID string    `json:"channel_id"`
	ThreadTs  string    `json:"thread_ts,omitempty"`
}

// SessionRecord is the durable audit record of a run. Inserted once per
// (session, team); never updated.
type SessionRecord struct {
	SessionID   string
	TeamID      string
	SummaryType Context
	ChannelID   string
	UserID      string
	Messages    []ModelRecord
	Response    string
}

// FeedbackRecord is one user's verdict on a session, upserted per
// (session, team, user).
type FeedbackRecord struct {
	SessionID string
	TeamID    string
	UserID    string
	Value     int
}

// ConversationSource is the platform history surface the collector reads.
type ConversationSource interface {
	FetchHistory(ctx context.Context, channelID, cursor, oldest, latest string, limit int) (messages []slack.Message, hasMore bool, nextCursor string, err error)
	FetchReplies(ctx context.Context, channelID, rootTs string, limit int) ([]slack.Message, error)
}

// Permalinker resolves message permalinks for channel-context output.
type Permalinker interface {
	GetPermalink(ctx context.Context, channelID, ts string) (string, error)
}

// ChannelNamer resolves channel display names for multi-channel runs.
type ChannelNamer interface {
	ChannelName(ctx context.Context, channelID string) (string, error)
}

// SessionRecorder persists session and feedback records. Failures are
// non-fatal to the run that produced the summary.
type SessionRecorder interface {
	InsertSession(ctx context.Context, rec SessionRecord) error
	UpsertFeedback(ctx context.Context, rec FeedbackRecord) error
}

// SummaryCache stores accepted summaries under opaque keys with a TTL.
type SummaryCache interface {
	Set(ctx context.Context, summary CachedSummary, key string) (string, error)
	Get(ctx context.Context, key string) (CachedSummary, bool, error)
}

// QuotaGate is the per-tenant feature allowance check.
type QuotaGate interface {
	Acquire(ctx context.Context, teamID, userID, feature string) (bool, error)
	AllowMore(ctx context.Context, teamID, userID, feature string, amount int) error
}
