package summarize

import (
	"fmt"
	"strings"

	"github.com/slack-go/slack"
)

// NewBotUsernameIntegration builds an integration that claims bot messages
// posted under any of the given usernames. The summary it renders is a
// plain digest of the matched updates; no per-user attribution is attempted
// inside bot-generated content.
func NewBotUsernameIntegration(name string, usernames ...string) Integration {
	lowered := make([]string, len(usernames))
	for i, u := range usernames {
		lowered[i] = strings.ToLower(u)
	}

	return Integration{
		Name: name,
		Match: func(msg slack.Message) bool {
			if msg.BotID == "" {
				return false
			}
			candidate := strings.ToLower(msg.Username)
			if candidate == "" && msg.BotProfile != nil {
				candidate = strings.ToLower(msg.BotProfile.Name)
			}
			for _, u := range lowered {
				if candidate == u {
					return true
				}
			}
			return false
		},
		Summarize: func(matched []slack.Message) string {
			var b strings.Builder
			fmt.Fprintf(&b, "This channel is dominated by %s activity: %d updates in the selected window.", name, len(matched))

			const maxSamples = 5
			samples := 0
			for _, msg := range matched {
				line := firstLine(msg.Text)
				if line == "" && len(msg.Attachments) > 0 {
					line = firstLine(msg.Attachments[0].Title)
				}
				if line == "" {
					continue
				}
				if samples == 0 {
					b.WriteString(" Recent updates:\n")
				}
				fmt.Fprintf(&b, "• %s\n", line)
				samples++
				if samples >= maxSamples {
					break
				}
			}

			return strings.TrimSpace(b.String())
		},
	}
}

// DefaultIntegrations is the registration order used in production. Order
// matters: a message matches at most one integration, first match wins.
func DefaultIntegrations() []Integration {
	return []Integration{
		NewBotUsernameIntegration("GitHub", "github", "github actions"),
		NewBotUsernameIntegration("Jira", "jira", "jira cloud"),
		NewBotUsernameIntegration("PagerDuty", "pagerduty"),
		NewBotUsernameIntegration("Datadog", "datadog"),
	}
}

func firstLine(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	return text
}
