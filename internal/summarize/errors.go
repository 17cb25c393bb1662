package summarize

import (
	"errors"
	"fmt"
)

// Kind classifies run failures. Callers branch on the kind to pick the
// user-facing message and the quota refund policy.
type Kind int

const (
	// KindUpstreamUnavailable covers transport and backend errors not
	// otherwise classified. Quota is refunded.
	KindUpstreamUnavailable Kind = iota
	// KindRateLimited means the quota gate denied the run. Not retryable.
	KindRateLimited
	// KindModerationViolation means the backend flagged the content.
	// Quota is not refunded.
	KindModerationViolation
	// KindNoMessages means collection or shrinking exhausted the record set.
	// Quota is refunded.
	KindNoMessages
	// KindAllMessagesPrefiltered means budget fitting removed every record
	// before the first backend call. Same user-facing treatment and refund
	// policy as KindNoMessages, kept distinct for diagnostics.
	KindAllMessagesPrefiltered
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindModerationViolation:
		return "moderation_violation"
	case KindNoMessages:
		return "no_messages"
	case KindAllMessagesPrefiltered:
		return "all_messages_prefiltered"
	default:
		return "upstream_unavailable"
	}
}

// Refundable reports whether a failure of this kind returns the consumed
// quota unit to the user.
func (k Kind) Refundable() bool {
	switch k {
	case KindNoMessages, KindAllMessagesPrefiltered, KindUpstreamUnavailable:
		return true
	default:
		return false
	}
}

// Error is a classified pipeline failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a kind. A nil err is allowed for kinds that are
// states rather than wrapped failures.
func NewError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the kind from an error chain. Anything unclassified is
// treated as upstream unavailability.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUpstreamUnavailable
}
