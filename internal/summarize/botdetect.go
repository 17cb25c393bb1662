package summarize

import (
	"github.com/slack-go/slack"
)

// singleBotThreshold is the share of the input one integration must match
// for the channel to be treated as bot-dominated. The comparison is
// inclusive: exactly 70% flags.
const singleBotThreshold = 0.7

// Integration classifies and summarizes messages produced by a known bot
// integration. Integrations are injected values, not compile-time
// constants, so tests can substitute fixtures.
type Integration struct {
	Name string
	// Match reports whether the integration produced the message.
	Match func(msg slack.Message) bool
	// Summarize renders the integration's own summary of the messages it
	// matched.
	Summarize func(matched []slack.Message) string
}

// IntegrationSummary is one integration's view of the message set.
type IntegrationSummary struct {
	Integration  string `json:"integration"`
	Summary      string `json:"summary"`
	MessageCount int    `json:"message_count"`
	// DetectedAsSingleBotChannel is set when the integration matched at
	// least 70% of the input.
	DetectedAsSingleBotChannel bool `json:"detected_as_single_bot_channel"`
}

// Detect matches every message against the integrations in registration
// order. A message matches at most one integration: the first that claims
// it wins and the rest are not tried.
func Detect(messages []slack.Message, integrations []Integration) []IntegrationSummary {
	if len(integrations) == 0 {
		return nil
	}

	matched := make([][]slack.Message, len(integrations))

	for _, msg := range messages {
		for i, integ := range integrations {
			if integ.Match != nil && integ.Match(msg) {
				matched[i] = append(matched[i], msg)
				break
			}
		}
	}

	total := len(messages)
	summaries := make([]IntegrationSummary, 0, len(integrations))

	for i, integ := range integrations {
		if len(matched[i]) == 0 {
			continue
		}

		s := IntegrationSummary{
			Integration:  integ.Name,
			MessageCount: len(matched[i]),
		}
		if integ.Summarize != nil {
			s.Summary = integ.Summarize(matched[i])
		}
		if total > 0 {
			share := float64(len(matched[i])) / float64(total)
			s.DetectedAsSingleBotChannel = share >= singleBotThreshold
		}

		summaries = append(summaries, s)
	}

	return summaries
}

// SingleBot returns the first integration flagged as dominating the
// channel, or nil.
func SingleBot(summaries []IntegrationSummary) *IntegrationSummary {
	for i := range summaries {
		if summaries[i].DetectedAsSingleBotChannel {
			return &summaries[i]
		}
	}
	return nil
}
