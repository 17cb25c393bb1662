package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrModerationViolation is surfaced by backends when the submitted content
// was flagged. The engine never retries it.
var ErrModerationViolation = errors.New("content flagged by moderation")

// ConversationSummary is the backend's summary of a single thread.
type ConversationSummary struct {
	ThreadTs string `json:"thread_ts,omitempty"`
	Summary  string `json:"summary"`
}

// OrderedTopics is a topic-to-summary map that preserves insertion order.
// Rendering order is an observable contract, so plain maps are not usable
// here.
type OrderedTopics struct {
	keys   []string
	values map[string]string
}

func NewOrderedTopics() *OrderedTopics {
	return &OrderedTopics{values: make(map[string]string)}
}

// Add appends a topic, or overwrites its value in place when the key is
// already present.
func (t *OrderedTopics) Add(key, value string) {
	if t.values == nil {
		t.values = make(map[string]string)
	}
	if _, exists := t.values[key]; !exists {
		t.keys = append(t.keys, key)
	}
	t.values[key] = value
}

func (t *OrderedTopics) Get(key string) (string, bool) {
	v, ok := t.values[key]
	return v, ok
}

func (t *OrderedTopics) Keys() []string { return t.keys }

func (t *OrderedTopics) Len() int { return len(t.keys) }

func (t *OrderedTopics) UnmarshalJSON(data []byte) error {
	t.keys = nil
	t.values = make(map[string]string)

	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected JSON object for topics, got %v", tok)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("expected string topic key, got %v", keyTok)
		}

		var value string
		if err := dec.Decode(&value); err != nil {
			return err
		}
		t.Add(key, value)
	}

	return nil
}

func (t *OrderedTopics) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range t.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(t.values[key])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// BackendResponse carries every summary shape a backend may return. Which
// fields are populated depends on the model and the request context; the
// engine selects exactly one textual rendering per run.
type BackendResponse struct {
	SummaryByEverything string                `json:"summary_by_everything,omitempty"`
	SummaryByTopics     *OrderedTopics        `json:"summary_by_topics,omitempty"`
	SummaryByBullets    []string              `json:"summary_by_bullets,omitempty"`
	SummaryBySummary    string                `json:"summary_by_summary,omitempty"`
	Conversations       []ConversationSummary `json:"conversations,omitempty"`
}

// Blank reports whether the response carries no usable summary text at all.
// A blank success makes the engine shrink the record set and retry.
func (r *BackendResponse) Blank() bool {
	if strings.TrimSpace(r.SummaryByEverything) != "" {
		return false
	}
	if strings.TrimSpace(r.SummaryBySummary) != "" {
		return false
	}
	for _, b := range r.SummaryByBullets {
		if strings.TrimSpace(b) != "" {
			return false
		}
	}
	if r.SummaryByTopics != nil {
		for _, key := range r.SummaryByTopics.Keys() {
			if v, _ := r.SummaryByTopics.Get(key); strings.TrimSpace(v) != "" {
				return false
			}
		}
	}
	for _, c := range r.Conversations {
		if strings.TrimSpace(c.Summary) != "" {
			return false
		}
	}
	return true
}

// Backend is the summarization model boundary.
type Backend interface {
	// SummarizeChannel summarizes a channel-context record set, optionally
	// with the channel name for context.
	SummarizeChannel(ctx context.Context, records []ModelRecord, channelName string) (*BackendResponse, error)
	// SummarizeMessages summarizes a thread-context record set.
	SummarizeMessages(ctx context.Context, records []ModelRecord) (*BackendResponse, error)
}
