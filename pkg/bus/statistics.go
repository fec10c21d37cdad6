package bus

import (
	"sync"
	"time"
)

// Statistics is a point-in-time snapshot of a Bus's counters.
type Statistics struct {
	MessagesPublished   uint64
	MessagesDelivered   uint64
	FailedDeliveries    uint64
	AverageDeliveryUs   float64
	PeakDeliveryUs      int64
	MessagesPerTopic    map[string]uint64
	SubscribersPerTopic map[string]int
	LastResetTime       time.Time
}

// busStats holds the mutable counters behind Statistics, guarded by a
// single short-lived mutex; it is never held across a send or a user
// callback.
type busStats struct {
	mu      sync.Mutex
	enabled bool

	published   uint64
	delivered   uint64
	failed      uint64
	deliverySum float64 // microseconds
	peakUs      int64

	perTopic     map[string]uint64
	subsPerTopic map[string]int

	lastReset time.Time
}

func newBusStats(enabled bool) *busStats {
	return &busStats{
		enabled:      enabled,
		perTopic:     make(map[string]uint64),
		subsPerTopic: make(map[string]int),
		lastReset:    time.Now(),
	}
}

func (s *busStats) recordPublished(topicPath string) {
	if !s.enabled {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published++
	s.perTopic[topicPath]++
}

func (s *busStats) recordDelivered(topicPath string, elapsed time.Duration) {
	if !s.enabled {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered++
	us := float64(elapsed.Microseconds())
	s.deliverySum += us
	if elapsed.Microseconds() > s.peakUs {
		s.peakUs = elapsed.Microseconds()
	}
}

func (s *busStats) recordFailed(topicPath string) {
	if !s.enabled {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed++
}

func (s *busStats) subscriberAdded(topicPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subsPerTopic[topicPath]++
}

func (s *busStats) subscriberRemoved(topicPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subsPerTopic[topicPath] > 0 {
		s.subsPerTopic[topicPath]--
	}
}

func (s *busStats) snapshot() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	perTopic := make(map[string]uint64, len(s.perTopic))
	for k, v := range s.perTopic {
		perTopic[k] = v
	}
	subsPerTopic := make(map[string]int, len(s.subsPerTopic))
	for k, v := range s.subsPerTopic {
		subsPerTopic[k] = v
	}

	var avg float64
	if s.delivered > 0 {
		avg = s.deliverySum / float64(s.delivered)
	}

	return Statistics{
		MessagesPublished:   s.published,
		MessagesDelivered:   s.delivered,
		FailedDeliveries:    s.failed,
		AverageDeliveryUs:   avg,
		PeakDeliveryUs:      s.peakUs,
		MessagesPerTopic:    perTopic,
		SubscribersPerTopic: subsPerTopic,
		LastResetTime:       s.lastReset,
	}
}

func (s *busStats) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = 0
	s.delivered = 0
	s.failed = 0
	s.deliverySum = 0
	s.peakUs = 0
	s.perTopic = make(map[string]uint64)
	s.subsPerTopic = make(map[string]int)
	s.lastReset = time.Now()
}
