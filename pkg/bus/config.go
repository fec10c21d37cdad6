package bus

import "time"

// RoutingConfig is the immutable policy a Bus is constructed with.
type RoutingConfig struct {
	EnableTopicHierarchy     bool
	EnablePatternMatching    bool
	EnableMessageFiltering   bool
	EnablePriorityRouting    bool
	MaxSubscriptionsPerTopic int
	MaxTopics                int
	DeliveryTimeout          time.Duration
	DropOnTimeout            bool
	EnableStatistics         bool
	MaintenanceInterval      time.Duration
}

// DefaultRoutingConfig enables the full routing feature set with
// conservative caps.
func DefaultRoutingConfig() RoutingConfig {
	return RoutingConfig{
		EnableTopicHierarchy:     true,
		EnablePatternMatching:    true,
		EnableMessageFiltering:   true,
		EnablePriorityRouting:    true,
		MaxSubscriptionsPerTopic: 1000,
		MaxTopics:                10000,
		DeliveryTimeout:          100 * time.Millisecond,
		DropOnTimeout:            true,
		EnableStatistics:         true,
		MaintenanceInterval:      60 * time.Second,
	}
}
