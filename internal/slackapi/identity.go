package slackapi

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"recapbot/internal/metrics"
)

// Sentinel identities used when resolution fails. Unresolved authors are
// still summarized; they are never dropped.
const (
	UnknownUserName = "Unknown User"
	UnknownBotName  = "Unknown Bot"
)

// UserIdentity is the resolved display identity of a human author.
type UserIdentity struct {
	Name     string
	Title    string
	Timezone string
}

// BotIdentity is the resolved display identity of a bot author.
type BotIdentity struct {
	Name string
}

// IdentityResolver caches user and bot lookups for the lifetime of the
// process. Slack identities change rarely enough that we never invalidate.
type IdentityResolver struct {
	client *Client

	mu    sync.RWMutex
	users map[string]UserIdentity
	bots  map[string]BotIdentity
}

func NewIdentityResolver(client *Client) *IdentityResolver {
	return &IdentityResolver{
		client: client,
		users:  make(map[string]UserIdentity),
		bots:   make(map[string]BotIdentity),
	}
}

// ResolveUser resolves a user id to a display name, title and timezone.
// Failures fall back to the sentinel identity.
func (r *IdentityResolver) ResolveUser(ctx context.Context, userID string) UserIdentity {
	if userID == "" {
		return UserIdentity{Name: UnknownUserName}
	}

	r.mu.RLock()
	cached, ok := r.users[userID]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	user, err := r.client.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		metrics.SlackAPICalls.WithLabelValues("users.info", "error").Inc()
		slog.Warn("Failed to resolve user", "error", err, "user_id", userID)
		return UserIdentity{Name: UnknownUserName}
	}
	metrics.SlackAPICalls.WithLabelValues("users.info", "success").Inc()

	identity := UserIdentity{
		Title:    user.Profile.Title,
		Timezone: user.TZ,
	}

	// Try display name first, then real name, then name.
	switch {
	case user.Profile.DisplayName != "":
		identity.Name = user.Profile.DisplayName
	case user.Profile.RealName != "":
		identity.Name = user.Profile.RealName
	case user.Name != "":
		identity.Name = user.Name
	default:
		identity.Name = userID
	}

	r.mu.Lock()
	r.users[userID] = identity
	r.mu.Unlock()

	return identity
}

// ResolveBot resolves a bot id to its capitalized display name. Failures
// fall back to the sentinel identity.
func (r *IdentityResolver) ResolveBot(ctx context.Context, botID string) BotIdentity {
	if botID == "" {
		return BotIdentity{Name: UnknownBotName}
	}

	r.mu.RLock()
	cached, ok := r.bots[botID]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	bot, err := r.client.api.GetBotInfoContext(ctx, botID)
	if err != nil {
		metrics.SlackAPICalls.WithLabelValues("bots.info", "error").Inc()
		slog.Warn("Failed to resolve bot", "error", err, "bot_id", botID)
		return BotIdentity{Name: UnknownBotName}
	}
	metrics.SlackAPICalls.WithLabelValues("bots.info", "success").Inc()

	identity := BotIdentity{Name: capitalize(bot.Name)}

	r.mu.Lock()
	r.bots[botID] = identity
	r.mu.Unlock()

	return identity
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
