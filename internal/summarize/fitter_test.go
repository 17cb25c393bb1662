package summarize

import (
	"context"
	"strings"
	"testing"

	"recapbot/internal/normalize"
	"recapbot/internal/slackapi"

	"github.com/slack-go/slack"
)

func newTestFitter() *Fitter {
	resolver := &fakeResolver{
		users: map[string]slackapi.UserIdentity{
			"U1": {Name: "Ana", Title: "Engineer"},
			"U2": {Name: "Ben", Title: "Designer"},
		},
		bots: map[string]slackapi.BotIdentity{
			"B1": {Name: "Deploybot"},
		},
	}
	return NewFitter(resolver, passthroughNormalizer{}, normalize.Options{})
}

func thread(root slack.Message, replies ...slack.Message) EnrichedThread {
	return EnrichedThread{Root: root, Replies: replies}
}

func TestFit_FlattensInOrder(t *testing.T) {
	threads := []EnrichedThread{
		thread(msg("1.0", "U1", "first root"), msg("1.1", "U2", "first reply")),
		thread(msg("2.0", "U2", "second root")),
	}

	records, err := newTestFitter().Fit(context.Background(), threads, "C1", 100000, ContextChannel)
	if err != nil {
		t.Fatalf("Fit returned error: %v", err)
	}

	want := []string{"1.0", "1.1", "2.0"}
	if len(records) != len(want) {
		t.Fatalf("Expected %d records, got %d", len(want), len(records))
	}
	for i, ts := range want {
		if records[i].Ts != ts {
			t.Errorf("Record %d: expected ts %s, got %s", i, ts, records[i].Ts)
		}
	}
}

func TestFit_ResolvesAuthors(t *testing.T) {
	threads := []EnrichedThread{
		thread(msg("1.0", "U1", "hello")),
		thread(slack.Message{Msg: slack.Msg{Timestamp: "2.0", BotID: "B1", Text: "deployed v2"}}),
		thread(msg("3.0", "U_GHOST", "who am i")),
	}

	records, err := newTestFitter().Fit(context.Background(), threads, "C1", 100000, ContextChannel)
	if err != nil {
		t.Fatalf("Fit returned error: %v", err)
	}

	if records[0].UserName != "Ana" || records[0].UserTitle != "Engineer" {
		t.Errorf("Expected resolved user identity, got %+v", records[0])
	}
	if !records[1].IsBot || records[1].UserName != "Deploybot" {
		t.Errorf("Expected resolved bot identity, got %+v", records[1])
	}
	// Unresolved authors fall back to the sentinel but are never dropped.
	if records[2].UserName != slackapi.UnknownUserName {
		t.Errorf("Expected sentinel for unresolved author, got %q", records[2].UserName)
	}
}

func TestFit_DropsEmptyNormalizedText(t *testing.T) {
	threads := []EnrichedThread{
		thread(msg("1.0", "U1", "   ")),
		thread(msg("2.0", "U1", "real content")),
	}

	records, err := newTestFitter().Fit(context.Background(), threads, "C1", 100000, ContextChannel)
	if err != nil {
		t.Fatalf("Fit returned error: %v", err)
	}
	if len(records) != 1 || records[0].Ts != "2.0" {
		t.Errorf("Expected only the non-empty record, got %+v", records)
	}
}

func TestFit_BudgetIsRespected(t *testing.T) {
	var threads []EnrichedThread
	for i := 0; i < 20; i++ {
		threads = append(threads, thread(msg(tsFor(i), "U1", strings.Repeat("x", 100))))
	}

	// Room for roughly half the records.
	budget := 10 * (100 + len("Ana") + len("Engineer") + recordOverhead)

	records, err := newTestFitter().Fit(context.Background(), threads, "C1", budget, ContextChannel)
	if err != nil {
		t.Fatalf("Fit returned error: %v", err)
	}

	if got := approxChars(records); got > budget {
		t.Errorf("Fitted set exceeds budget: %d > %d", got, budget)
	}
	// Channel mode trims from the front: the newest records survive.
	if records[len(records)-1].Ts != tsFor(19) {
		t.Errorf("Expected the last record to survive front-trimming, got %s", records[len(records)-1].Ts)
	}
}

func TestFit_ThreadModePrefersTrimmingIndexOne(t *testing.T) {
	threads := []EnrichedThread{thread(
		msg("1.0", "U1", strings.Repeat("r", 200)),
		msg("1.1", "U2", strings.Repeat("a", 200)),
		msg("1.2", "U2", strings.Repeat("b", 200)),
	)}

	// Budget fits exactly two of the three records.
	budget := 2*(200+recordOverhead) + 2*(len("Ana")+len("Engineer"))

	records, err := newTestFitter().Fit(context.Background(), threads, "C1", budget, ContextThread)
	if err != nil {
		t.Fatalf("Fit returned error: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("Expected 2 records after trimming, got %d", len(records))
	}
	// Index 1 was removed; the root keeps its place.
	if records[0].Ts != "1.0" {
		t.Errorf("Thread-mode trimming must preserve the root, got %s first", records[0].Ts)
	}
	if records[1].Ts != "1.2" {
		t.Errorf("Expected index 1 (ts 1.1) to be removed, got remaining %s", records[1].Ts)
	}
}

func TestFit_NoInputVsAllPrefiltered(t *testing.T) {
	fitter := newTestFitter()
	ctx := context.Background()

	_, err := fitter.Fit(ctx, nil, "C1", 1000, ContextChannel)
	if KindOf(err) != KindNoMessages {
		t.Errorf("No input should be KindNoMessages, got %v", err)
	}

	// Input exists but normalization empties everything.
	threads := []EnrichedThread{thread(msg("1.0", "U1", "   "))}
	_, err = fitter.Fit(ctx, threads, "C1", 1000, ContextChannel)
	if KindOf(err) != KindAllMessagesPrefiltered {
		t.Errorf("Emptied input should be KindAllMessagesPrefiltered, got %v", err)
	}

	// A single record larger than the whole budget is trimmed away too.
	threads = []EnrichedThread{thread(msg("1.0", "U1", strings.Repeat("x", 5000)))}
	_, err = fitter.Fit(ctx, threads, "C1", 100, ContextChannel)
	if KindOf(err) != KindAllMessagesPrefiltered {
		t.Errorf("Oversized single record should be KindAllMessagesPrefiltered, got %v", err)
	}
}

func TestFit_KeepsReactions(t *testing.T) {
	root := slack.Message{Msg: slack.Msg{
		Timestamp: "1.0",
		User:      "U1",
		Text:      "ship it",
		Reactions: []slack.ItemReaction{{Name: "rocket", Count: 3}},
	}}

	records, err := newTestFitter().Fit(context.Background(), []EnrichedThread{thread(root)}, "C1", 100000, ContextChannel)
	if err != nil {
		t.Fatalf("Fit returned error: %v", err)
	}
	if len(records[0].Reactions) != 1 || records[0].Reactions[0] != (Reaction{Name: "rocket", Count: 3}) {
		t.Errorf("Expected reactions carried onto the record, got %+v", records[0].Reactions)
	}
}

func tsFor(i int) string {
	return "100" + string(rune('0'+i/10)) + string(rune('0'+i%10)) + ".0"
}
