// Package normalize converts Slack mrkdwn into plain text suitable for the
// summarization backend. It is deliberately not a full mrkdwn parser; it
// strips the constructs that confuse the model and leaves the rest alone.
package normalize

import (
	"regexp"
	"strings"
)

// Options control which normalization passes run.
type Options struct {
	// StripCodeblocks removes fenced code blocks and inline code markers.
	StripCodeblocks bool
	// CollapseUnlabeledLinks replaces bare <http://...> links with a
	// placeholder token; labeled links keep their label.
	CollapseUnlabeledLinks bool
}

// Normalizer is the text-normalization gateway the budget fitter depends on.
type Normalizer interface {
	Normalize(raw string, opts Options) string
}

const linkPlaceholder = "[link]"

var (
	userMentionRe  = regexp.MustCompile(`<@[A-Z0-9]+(\|[^>]*)?>`)
	channelRefRe   = regexp.MustCompile(`<#[A-Z0-9]+(\|([^>]*))?>`)
	labeledLinkRe  = regexp.MustCompile(`<(https?://[^|>]+)\|([^>]+)>`)
	bareLinkRe     = regexp.MustCompile(`<(https?://[^>]+)>`)
	specialRefRe   = regexp.MustCompile(`<!([a-z]+)(\|[^>]*)?>`)
	fencedCodeRe   = regexp.MustCompile("(?s)```.*?```")
	inlineCodeRe   = regexp.MustCompile("`([^`]*)`")
	multiSpaceRe   = regexp.MustCompile(`[ \t]{2,}`)
	multiNewlineRe = regexp.MustCompile(`\n{3,}`)
)

// Mrkdwn is the default Normalizer implementation.
type Mrkdwn struct{}

func NewMrkdwn() *Mrkdwn {
	return &Mrkdwn{}
}

func (m *Mrkdwn) Normalize(raw string, opts Options) string {
	text := raw

	if opts.StripCodeblocks {
		text = fencedCodeRe.ReplaceAllString(text, "")
		text = inlineCodeRe.ReplaceAllString(text, "$1")
	}

	// Mentions and channel references carry no summarizable content once the
	// author is resolved separately.
	text = userMentionRe.ReplaceAllString(text, "")
	text = channelRefRe.ReplaceAllString(text, "#$2")
	text = specialRefRe.ReplaceAllString(text, "@$1")

	// Labeled links keep their label either way.
	text = labeledLinkRe.ReplaceAllString(text, "$2")
	if opts.CollapseUnlabeledLinks {
		text = bareLinkRe.ReplaceAllString(text, linkPlaceholder)
	} else {
		text = bareLinkRe.ReplaceAllString(text, "$1")
	}

	// Formatting markers around words.
	text = strings.NewReplacer("*", "", "~", "").Replace(text)

	text = multiSpaceRe.ReplaceAllString(text, " ")
	text = multiNewlineRe.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}
