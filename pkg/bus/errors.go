package bus

import "github.com/chris-alexander-pop/pktbus/pkg/errors"

// Error codes surfaced by Bus operations. CapacityExceeded and
// InvalidArgument are reused unchanged from pkg/topic/pkg/errors; the
// remainder are specific to subscription lifecycle and fan-out policy.
const (
	CodeNotFound        = errors.CodeNotFound
	CodeInvalidArgument = errors.CodeInvalidArgument
	CodePolicyViolation = errors.CodePolicyViolation
)

var (
	// ErrUnknownSubscription is returned by Unsubscribe for an id that
	// does not (or no longer) identifies a live subscription.
	ErrUnknownSubscription = errors.New(CodeNotFound, "unknown subscription id", nil)

	// ErrNilMessage is returned by Publish for a nil Message.
	ErrNilMessage = errors.New(CodeInvalidArgument, "message is nil", nil)

	// ErrPolicyViolation is returned when a Unique-payload Message is
	// published to more than one surviving subscription.
	ErrPolicyViolation = errors.New(CodePolicyViolation, "unique payload published to more than one subscriber", nil)
)
