// Package slackapi wraps the Slack Web API calls the summarization pipeline
// depends on: conversation history, thread replies, identity resolution,
// permalinks and posting.
package slackapi

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"recapbot/internal/metrics"

	"github.com/slack-go/slack"
)

// Client is a thin wrapper over the Slack Web API client.
type Client struct {
	api       *slack.Client
	botUserID string
	botID     string
}

func NewClient(botToken string) *Client {
	api := slack.New(botToken)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c := &Client{api: api}

	authTest, err := api.AuthTestContext(ctx)
	if err != nil {
		slog.Warn("Could not get bot identity", "error", err)
	} else {
		c.botUserID = authTest.UserID
		c.botID = authTest.BotID
		slog.Info("Bot identity retrieved", "bot_user_id", c.botUserID, "bot_id", c.botID)
	}

	return c
}

// BotUserID returns the user id of the bot the client authenticates as.
func (c *Client) BotUserID() string { return c.botUserID }

// BotID returns the bot id of the client's own integration.
func (c *Client) BotID() string { return c.botID }

// FetchHistory returns one page of channel history between oldest and latest.
func (c *Client) FetchHistory(ctx context.Context, channelID, cursor, oldest, latest string, limit int) ([]slack.Message, bool, string, error) {
	params := &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Cursor:    cursor,
		Oldest:    oldest,
		Latest:    latest,
		Limit:     limit,
		Inclusive: true,
	}

	resp, err := c.api.GetConversationHistoryContext(ctx, params)
	if err != nil {
		metrics.SlackAPICalls.WithLabelValues("conversations.history", "error").Inc()
		return nil, false, "", fmt.Errorf("failed to get conversation history: %w", err)
	}
	metrics.SlackAPICalls.WithLabelValues("conversations.history", "success").Inc()

	return resp.Messages, resp.HasMore, resp.ResponseMetaData.NextCursor, nil
}

// FetchReplies returns the messages of a thread, including the root.
func (c *Client) FetchReplies(ctx context.Context, channelID, rootTs string, limit int) ([]slack.Message, error) {
	params := &slack.GetConversationRepliesParameters{
		ChannelID: channelID,
		Timestamp: rootTs,
		Limit:     limit,
		Inclusive: true,
	}

	msgs, _, _, err := c.api.GetConversationRepliesContext(ctx, params)
	if err != nil {
		metrics.SlackAPICalls.WithLabelValues("conversations.replies", "error").Inc()
		return nil, fmt.Errorf("failed to get thread replies: %w", err)
	}
	metrics.SlackAPICalls.WithLabelValues("conversations.replies", "success").Inc()

	return msgs, nil
}

// GetPermalink returns a permalink for a message.
func (c *Client) GetPermalink(ctx context.Context, channelID, ts string) (string, error) {
	link, err := c.api.GetPermalinkContext(ctx, &slack.PermalinkParameters{
		Channel: channelID,
		Ts:      ts,
	})
	if err != nil {
		metrics.SlackAPICalls.WithLabelValues("chat.getPermalink", "error").Inc()
		return "", fmt.Errorf("failed to get permalink: %w", err)
	}
	metrics.SlackAPICalls.WithLabelValues("chat.getPermalink", "success").Inc()
	return link, nil
}

// ChannelName resolves a channel id to its display name.
func (c *Client) ChannelName(ctx context.Context, channelID string) (string, error) {
	info, err := c.api.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{
		ChannelID: channelID,
	})
	if err != nil {
		metrics.SlackAPICalls.WithLabelValues("conversations.info", "error").Inc()
		return "", fmt.Errorf("failed to get channel info: %w", err)
	}
	metrics.SlackAPICalls.WithLabelValues("conversations.info", "success").Inc()
	return info.Name, nil
}

// PostMessage posts text to a channel, optionally into a thread.
func (c *Client) PostMessage(ctx context.Context, channelID, threadTs, text string) error {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if threadTs != "" {
		opts = append(opts, slack.MsgOptionTS(threadTs))
	}

	_, _, err := c.api.PostMessageContext(ctx, channelID, opts...)
	if err != nil {
		metrics.SlackAPICalls.WithLabelValues("chat.postMessage", "error").Inc()
		return fmt.Errorf("failed to post message: %w", err)
	}
	metrics.SlackAPICalls.WithLabelValues("chat.postMessage", "success").Inc()
	return nil
}
