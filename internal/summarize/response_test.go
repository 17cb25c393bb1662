package summarize

import (
	"encoding/json"
	"testing"
)

func TestOrderedTopics_UnmarshalPreservesOrder(t *testing.T) {
	// Keys chosen to disagree with lexical and hash order.
	payload := `{"zeta":"last topic","alpha":"first topic","mid":"middle topic"}`

	var topics OrderedTopics
	if err := json.Unmarshal([]byte(payload), &topics); err != nil {
		t.Fatalf("Unmarshal returned error: %v", err)
	}

	want := []string{"zeta", "alpha", "mid"}
	got := topics.Keys()
	if len(got) != len(want) {
		t.Fatalf("Expected %d keys, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Key %d: expected %q, got %q", i, want[i], got[i])
		}
	}

	if v, ok := topics.Get("alpha"); !ok || v != "first topic" {
		t.Errorf("Expected alpha to resolve, got %q (%v)", v, ok)
	}
}

func TestOrderedTopics_RoundTrip(t *testing.T) {
	topics := NewOrderedTopics()
	topics.Add("b", "two")
	topics.Add("a", "one")

	data, err := json.Marshal(topics)
	if err != nil {
		t.Fatalf("Marshal returned error: %v", err)
	}
	if string(data) != `{"b":"two","a":"one"}` {
		t.Errorf("Marshal should preserve insertion order, got %s", data)
	}
}

func TestOrderedTopics_AddOverwritesInPlace(t *testing.T) {
	topics := NewOrderedTopics()
	topics.Add("deploys", "draft")
	topics.Add("incidents", "none")
	topics.Add("deploys", "final")

	if topics.Len() != 2 {
		t.Fatalf("Overwrite must not append, got %d keys", topics.Len())
	}
	if topics.Keys()[0] != "deploys" {
		t.Errorf("Overwrite must keep the original position, got %v", topics.Keys())
	}
	if v, _ := topics.Get("deploys"); v != "final" {
		t.Errorf("Expected overwritten value, got %q", v)
	}
}

func TestOrderedTopics_RejectsNonObject(t *testing.T) {
	var topics OrderedTopics
	if err := json.Unmarshal([]byte(`["not","an","object"]`), &topics); err == nil {
		t.Error("Expected error for non-object topics payload")
	}
}

func TestBackendResponse_Blank(t *testing.T) {
	testCases := []struct {
		name  string
		resp  BackendResponse
		blank bool
	}{
		{name: "zero value", resp: BackendResponse{}, blank: true},
		{name: "whitespace everything", resp: BackendResponse{SummaryByEverything: "   "}, blank: true},
		{name: "empty bullets", resp: BackendResponse{SummaryByBullets: []string{"", "  "}}, blank: true},
		{name: "empty topics", resp: BackendResponse{SummaryByTopics: topics("k", "  ")}, blank: true},
		{name: "everything present", resp: BackendResponse{SummaryByEverything: "x"}, blank: false},
		{name: "one real bullet", resp: BackendResponse{SummaryByBullets: []string{"", "x"}}, blank: false},
		{name: "one real topic", resp: BackendResponse{SummaryByTopics: topics("k", "x")}, blank: false},
		{name: "conversation present", resp: BackendResponse{Conversations: []ConversationSummary{{Summary: "x"}}}, blank: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.resp.Blank(); got != tc.blank {
				t.Errorf("Blank() = %v, expected %v", got, tc.blank)
			}
		})
	}
}
