package summarize

import (
	"context"
	"log/slog"

	"recapbot/internal/metrics"
	"recapbot/internal/normalize"
	"recapbot/internal/slackapi"

	"github.com/slack-go/slack"
)

// recordOverhead approximates the serialization cost of a record beyond its
// text fields (field names, separators, timestamps).
const recordOverhead = 40

// IdentityResolver resolves message authors to display identities. Failures
// inside the resolver surface as sentinel identities, never as errors.
type IdentityResolver interface {
	ResolveUser(ctx context.Context, userID string) slackapi.UserIdentity
	ResolveBot(ctx context.Context, botID string) slackapi.BotIdentity
}

// Fitter converts enriched threads into model records and trims the set to
// a character budget.
type Fitter struct {
	resolver   IdentityResolver
	normalizer normalize.Normalizer
	opts       normalize.Options
}

func NewFitter(resolver IdentityResolver, normalizer normalize.Normalizer, opts normalize.Options) *Fitter {
	return &Fitter{
		resolver:   resolver,
		normalizer: normalizer,
		opts:       opts,
	}
}

// Fit flattens threads into an ordered record list (root then replies,
// threads in input order), resolves authors, normalizes text, and removes
// records until the set fits budgetChars.
//
// Channel-mode runs trim from the front, oldest first. Thread-mode runs
// prefer trimming index 1 while at least two records remain, preserving the
// root message for context.
func (f *Fitter) Fit(ctx context.Context, threads []EnrichedThread, channelID string, budgetChars int, mode Context) ([]ModelRecord, error) {
	flattened := flatten(threads)
	if len(flattened) == 0 {
		return nil, NewError(KindNoMessages, nil)
	}

	records := make([]ModelRecord, 0, len(flattened))
	for _, msg := range flattened {
		rec := f.toRecord(ctx, msg, channelID)
		if rec.Text == "" {
			continue
		}
		records = append(records, rec)
	}

	trimmed := 0
	for len(records) > 0 && approxChars(records) > budgetChars {
		if mode == ContextThread && len(records) >= 2 {
			records = append(records[:1], records[2:]...)
		} else {
			records = records[1:]
		}
		trimmed++
	}

	if trimmed > 0 {
		metrics.RecordsTrimmed.Add(float64(trimmed))
		slog.Debug("Budget fitting trimmed records",
			"channel_id", channelID,
			"trimmed", trimmed,
			"remaining", len(records),
			"budget_chars", budgetChars)
	}

	if len(records) == 0 {
		// Distinct from KindNoMessages: there was input, but normalization
		// and trimming removed all of it.
		return nil, NewError(KindAllMessagesPrefiltered, nil)
	}

	return records, nil
}

func (f *Fitter) toRecord(ctx context.Context, msg slack.Message, channelID string) ModelRecord {
	rec := ModelRecord{
		Ts:        msg.Timestamp,
		ThreadTs:  msg.ThreadTimestamp,
		ChannelID: channelID,
		UserID:    msg.User,
		Text:      f.normalizer.Normalize(msg.Text, f.opts),
	}

	if msg.BotID != "" && msg.User == "" {
		rec.IsBot = true
		rec.UserID = msg.BotID
		rec.UserName = f.resolver.ResolveBot(ctx, msg.BotID).Name
	} else {
		identity := f.resolver.ResolveUser(ctx, msg.User)
		rec.UserName = identity.Name
		rec.UserTitle = identity.Title
	}

	for _, reaction := range msg.Reactions {
		rec.Reactions = append(rec.Reactions, Reaction{
			Name:  reaction.Name,
			Count: reaction.Count,
		})
	}

	return rec
}

// approxChars estimates the serialized size of the record set.
func approxChars(records []ModelRecord) int {
	total := 0
	for _, rec := range records {
		total += len(rec.Text) + len(rec.UserName) + len(rec.UserTitle) + recordOverhead
	}
	return total
}
