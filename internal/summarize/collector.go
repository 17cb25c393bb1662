package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"recapbot/internal/metrics"

	"github.com/slack-go/slack"
	"golang.org/x/sync/errgroup"
)

const (
	historyPageSize = 200
	repliesLimit    = 200
	// replyFanout bounds concurrent reply fetches per run.
	replyFanout = 4
)

// channelMetaSubtypes are channel lifecycle events that carry no
// conversation content.
var channelMetaSubtypes = map[string]struct{}{
	"channel_join":      {},
	"channel_leave":     {},
	"channel_topic":     {},
	"channel_purpose":   {},
	"channel_name":      {},
	"channel_archive":   {},
	"channel_unarchive": {},
}

// Collector paginates conversation history and joins thread replies onto
// their roots.
type Collector struct {
	source         ConversationSource
	selfBotID      string
	selfUserID     string
	internalBotIDs map[string]struct{}

	now func() time.Time
}

func NewCollector(source ConversationSource, selfBotID, selfUserID string, internalBotIDs []string) *Collector {
	ids := make(map[string]struct{}, len(internalBotIDs))
	for _, id := range internalBotIDs {
		ids[id] = struct{}{}
	}
	return &Collector{
		source:         source,
		selfBotID:      selfBotID,
		selfUserID:     selfUserID,
		internalBotIDs: ids,
		now:            time.Now,
	}
}

// FetchRootMessages pages backward from now and returns up to maxCount root
// messages since midnight daysBack days ago in the given timezone, sorted
// ascending by timestamp. An empty result is a valid terminal state, not an
// error: the channel is simply too quiet.
func (c *Collector) FetchRootMessages(ctx context.Context, channelID string, maxCount, daysBack int, timezone string) ([]slack.Message, error) {
	oldest := windowStart(c.now(), daysBack, timezone)
	oldestTs := fmt.Sprintf("%d.000000", oldest.Unix())

	var roots []slack.Message
	cursor := ""

	for len(roots) < maxCount {
		messages, hasMore, nextCursor, err := c.source.FetchHistory(ctx, channelID, cursor, oldestTs, "", historyPageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch channel history: %w", err)
		}

		for _, msg := range messages {
			if len(roots) >= maxCount {
				break
			}
			if c.isRootMessage(msg) {
				roots = append(roots, msg)
			}
		}

		if !hasMore || nextCursor == "" {
			break
		}
		cursor = nextCursor
	}

	sort.Slice(roots, func(i, j int) bool {
		return tsLess(roots[i].Timestamp, roots[j].Timestamp)
	})

	metrics.MessagesCollected.Observe(float64(len(roots)))
	slog.Debug("Collected root messages",
		"channel_id", channelID,
		"count", len(roots),
		"oldest", oldestTs)

	return roots, nil
}

// EnrichWithReplies fetches the reply set of every root that has replies.
// Reply fetches fan out concurrently; results are re-associated with their
// roots by index, so fetch completion order does not matter. Roots with no
// replies yield an empty reply list.
func (c *Collector) EnrichWithReplies(ctx context.Context, channelID string, roots []slack.Message) ([]EnrichedThread, error) {
	threads := make([]EnrichedThread, len(roots))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(replyFanout)

	for i, root := range roots {
		threads[i] = EnrichedThread{Root: root}

		if root.ReplyCount == 0 {
			continue
		}

		i, root := i, root
		g.Go(func() error {
			msgs, err := c.source.FetchReplies(gctx, channelID, root.Timestamp, repliesLimit)
			if err != nil {
				return fmt.Errorf("failed to fetch replies for %s: %w", root.Timestamp, err)
			}

			var replies []slack.Message
			for _, msg := range msgs {
				// Platforms echo the root into its own reply set.
				if msg.Timestamp == root.Timestamp {
					continue
				}
				if !c.keepReply(msg) {
					continue
				}
				replies = append(replies, msg)
			}

			sort.Slice(replies, func(a, b int) bool {
				return tsLess(replies[a].Timestamp, replies[b].Timestamp)
			})

			threads[i].Replies = replies
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return threads, nil
}

// FetchThread returns a single enriched thread for a thread-context run:
// the root message plus its filtered replies.
func (c *Collector) FetchThread(ctx context.Context, channelID, rootTs string) (EnrichedThread, error) {
	msgs, err := c.source.FetchReplies(ctx, channelID, rootTs, repliesLimit)
	if err != nil {
		return EnrichedThread{}, fmt.Errorf("failed to fetch thread %s: %w", rootTs, err)
	}

	var thread EnrichedThread
	foundRoot := false
	for _, msg := range msgs {
		if msg.Timestamp == rootTs {
			thread.Root = msg
			foundRoot = true
			continue
		}
		if c.keepReply(msg) {
			thread.Replies = append(thread.Replies, msg)
		}
	}

	if !foundRoot {
		return EnrichedThread{}, NewError(KindNoMessages, fmt.Errorf("thread root %s not found", rootTs))
	}

	sort.Slice(thread.Replies, func(a, b int) bool {
		return tsLess(thread.Replies[a].Timestamp, thread.Replies[b].Timestamp)
	})

	return thread, nil
}

// windowStart computes midnight daysBack days ago in the caller's timezone.
// Unknown or empty timezones fall back to UTC.
func windowStart(now time.Time, daysBack int, timezone string) time.Time {
	loc, err := time.LoadLocation(timezone)
	if err != nil || timezone == "" {
		loc = time.UTC
	}
	n := now.In(loc)
	midnight := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc)
	return midnight.AddDate(0, 0, -daysBack)
}

// isRootMessage applies the collection filter to channel history entries.
func (c *Collector) isRootMessage(msg slack.Message) bool {
	// Thread replies surface in history too; only roots are collected here.
	if msg.ThreadTimestamp != "" && msg.ThreadTimestamp != msg.Timestamp {
		return false
	}
	if _, meta := channelMetaSubtypes[msg.SubType]; meta {
		return false
	}
	return !c.isInternalAuthor(msg)
}

// keepReply applies the subtype and author filters without the root-only
// thread check, which would reject every reply.
func (c *Collector) keepReply(msg slack.Message) bool {
	if _, meta := channelMetaSubtypes[msg.SubType]; meta {
		return false
	}
	return !c.isInternalAuthor(msg)
}

func (c *Collector) isInternalAuthor(msg slack.Message) bool {
	if msg.BotID != "" {
		if msg.BotID == c.selfBotID {
			return true
		}
		if _, internal := c.internalBotIDs[msg.BotID]; internal {
			return true
		}
	}
	return msg.User != "" && msg.User == c.selfUserID
}

// tsLess compares Slack timestamps ("1700000000.123456") numerically.
func tsLess(a, b string) bool {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA != nil || errB != nil {
		return a < b
	}
	return fa < fb
}
