// Package topic implements the hierarchical, slash-separated topic
// namespace used by pkg/bus to route published messages to exact and
// wildcard subscribers.
package topic

import (
	"strings"

	"github.com/chris-alexander-pop/pktbus/pkg/errors"
)

// ErrInvalidTopic is returned for empty segments or leading/trailing
// slashes.
var ErrInvalidTopic = errors.New(errors.CodeInvalidArgument, "invalid topic path", nil)

// ErrCapacityExceeded is returned when max_topics or
// max_subscriptions_per_topic would be breached.
var ErrCapacityExceeded = errors.New(errors.CodeCapacityExceeded, "topic tree capacity exceeded", nil)

// Split validates and splits a topic string into its segments. An
// empty string denotes the root and splits to an empty slice.
func Split(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	if strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") {
		return nil, ErrInvalidTopic
	}
	segments := strings.Split(path, "/")
	for _, s := range segments {
		if s == "" {
			return nil, ErrInvalidTopic
		}
	}
	return segments, nil
}

// ValidatePattern checks a subscription pattern: segments may be
// literals, the single-segment wildcard "*", or the terminal
// multi-segment wildcard "**", which is only valid as the last
// segment.
func ValidatePattern(pattern string) ([]string, error) {
	segments, err := Split(pattern)
	if err != nil {
		return nil, err
	}
	for i, s := range segments {
		if s == "**" && i != len(segments)-1 {
			return nil, ErrInvalidTopic
		}
	}
	return segments, nil
}

// Matches reports whether pattern (already known-valid per
// ValidatePattern) matches topic segments.
func Matches(patternSegments, topicSegments []string) bool {
	pi, ti := 0, 0
	for pi < len(patternSegments) {
		seg := patternSegments[pi]
		if seg == "**" {
			return ti < len(topicSegments) // requires at least one remaining segment
		}
		if ti >= len(topicSegments) {
			return false
		}
		if seg != "*" && seg != topicSegments[ti] {
			return false
		}
		pi++
		ti++
	}
	return ti == len(topicSegments)
}
