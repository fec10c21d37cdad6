package topic

import (
	"sort"
	"strings"
	"sync"

	"github.com/chris-alexander-pop/pktbus/pkg/concurrency"
	"github.com/chris-alexander-pop/pktbus/pkg/datastructures/lru"
)

// Subscription is the minimal view of a bus subscription that the
// Topic Tree needs in order to enumerate delivery targets. pkg/bus
// owns the concrete Subscription type and satisfies this interface.
type Subscription interface {
	ID() uint64
	Priority() int32
	Active() bool
}

// Node is one level of the topic namespace: a name, its subscriptions,
// and its children. Nodes are never reclaimed once created; bounded
// memory comes from Tree's maxTopics cap, not from pruning.
type Node struct {
	name     string
	mu       sync.Mutex
	subs     []Subscription
	children map[string]*Node
}

func newNode(name string) *Node {
	return &Node{name: name, children: make(map[string]*Node)}
}

// AddSubscription appends a Subscription under this node's lock,
// enforcing maxSubsPerTopic.
func (n *Node) AddSubscription(s Subscription, maxSubsPerTopic int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if maxSubsPerTopic > 0 && len(n.subs) >= maxSubsPerTopic {
		return ErrCapacityExceeded
	}
	n.subs = append(n.subs, s)
	return nil
}

// RemoveSubscription removes the first Subscription matching id.
// Idempotent: removing an absent id is a no-op.
func (n *Node) RemoveSubscription(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, s := range n.subs {
		if s.ID() == id {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			return
		}
	}
}

// Snapshot returns a copy of this node's current subscription list.
func (n *Node) Snapshot() []Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Subscription, len(n.subs))
	copy(out, n.subs)
	return out
}

// patternEntry pairs a validated pattern with its subscription.
type patternEntry struct {
	segments []string
	sub      Subscription
}

// Tree is the hierarchical topic namespace. Structure (node creation)
// is guarded by a reader/writer lock; each Node's own subscription
// list is additionally guarded by its own mutex, so delivery on
// unrelated topics never contends on tree structure.
type Tree struct {
	structMu  *concurrency.SmartRWMutex
	root      *Node
	nodeCount int

	maxTopics       int
	maxSubsPerTopic int

	cacheMu sync.Mutex
	cache   *lru.Cache[string, *Node]

	patternMu sync.RWMutex
	patterns  []patternEntry

	onNodeCreated func(path string)
}

// Config bounds Tree's node and per-node subscription counts.
// OnNodeCreated, when set, is invoked (outside the structure lock's
// critical path, but before FindOrCreate returns) once per newly
// created node with its full path.
type Config struct {
	MaxTopics                int
	MaxSubscriptionsPerTopic int
	CacheSize                int
	OnNodeCreated            func(path string)
}

// DefaultConfig caps the tree at 10000 topics and 1000 subscriptions
// per topic, with a 1000-entry lookup cache.
func DefaultConfig() Config {
	return Config{MaxTopics: 10000, MaxSubscriptionsPerTopic: 1000, CacheSize: 1000}
}

// New constructs an empty Tree.
func New(cfg Config) *Tree {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1000
	}
	return &Tree{
		structMu:        concurrency.NewSmartRWMutex(concurrency.MutexConfig{Name: "topic-tree"}),
		root:            newNode(""),
		nodeCount:       1,
		maxTopics:       cfg.MaxTopics,
		maxSubsPerTopic: cfg.MaxSubscriptionsPerTopic,
		cache:           lru.New[string, *Node](cfg.CacheSize),
		onNodeCreated:   cfg.OnNodeCreated,
	}
}

// FindOrCreate walks path's segments, creating child nodes as needed,
// and returns the terminal Node. The path→node cache short-circuits
// repeated lookups of previously-resolved paths.
func (t *Tree) FindOrCreate(path string) (*Node, error) {
	segments, err := Split(path)
	if err != nil {
		return nil, err
	}

	if n, ok := t.cacheGet(path); ok {
		return n, nil
	}

	t.structMu.Lock()

	var created []string
	n := t.root
	for i, seg := range segments {
		child, ok := n.children[seg]
		if !ok {
			if t.maxTopics > 0 && t.nodeCount >= t.maxTopics {
				t.structMu.Unlock()
				return nil, ErrCapacityExceeded
			}
			child = newNode(seg)
			n.children[seg] = child
			t.nodeCount++
			created = append(created, join(segments[:i+1]))
		}
		n = child
	}
	t.structMu.Unlock()

	if t.onNodeCreated != nil {
		for _, p := range created {
			t.onNodeCreated(p)
		}
	}

	t.cacheSet(path, n)
	return n, nil
}

func join(segments []string) string {
	return strings.Join(segments, "/")
}

// Lookup returns the node at path without creating it, or (nil, false)
// if it does not exist.
func (t *Tree) Lookup(path string) (*Node, bool) {
	segments, err := Split(path)
	if err != nil {
		return nil, false
	}
	if n, ok := t.cacheGet(path); ok {
		return n, true
	}

	t.structMu.RLock()
	defer t.structMu.RUnlock()

	n := t.root
	for _, seg := range segments {
		child, ok := n.children[seg]
		if !ok {
			return nil, false
		}
		n = child
	}
	return n, true
}

func (t *Tree) cacheGet(path string) (*Node, bool) {
	t.cacheMu.Lock()
	defer t.cacheMu.Unlock()
	return t.cache.Get(path)
}

func (t *Tree) cacheSet(path string, n *Node) {
	t.cacheMu.Lock()
	defer t.cacheMu.Unlock()
	t.cache.Set(path, n)
}

// AddPattern registers a wildcard subscription against the Bus's
// pattern list, validating the grammar described in ValidatePattern.
func (t *Tree) AddPattern(pattern string, sub Subscription) error {
	segments, err := ValidatePattern(pattern)
	if err != nil {
		return err
	}
	t.patternMu.Lock()
	defer t.patternMu.Unlock()
	t.patterns = append(t.patterns, patternEntry{segments: segments, sub: sub})
	return nil
}

// RemovePattern removes a pattern subscription by id. Idempotent.
func (t *Tree) RemovePattern(id uint64) {
	t.patternMu.Lock()
	defer t.patternMu.Unlock()
	for i, p := range t.patterns {
		if p.sub.ID() == id {
			t.patterns = append(t.patterns[:i], t.patterns[i+1:]...)
			return
		}
	}
}

// Enumerate collects the delivery targets for a published topic: the
// exact-node subscriptions plus every matching pattern subscription,
// stable-sorted by descending priority (ties keep insertion order).
// Filter/expiration/active checks and statistics are the Bus's
// concern, applied after this call.
func (t *Tree) Enumerate(path string) ([]Subscription, error) {
	segments, err := Split(path)
	if err != nil {
		return nil, err
	}

	var out []Subscription
	if n, ok := t.Lookup(path); ok {
		out = append(out, n.Snapshot()...)
	}

	t.patternMu.RLock()
	for _, p := range t.patterns {
		if Matches(p.segments, segments) {
			out = append(out, p.sub)
		}
	}
	t.patternMu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority() > out[j].Priority()
	})
	return out, nil
}

// NodeCount returns the current number of tree nodes, for statistics.
func (t *Tree) NodeCount() int {
	t.structMu.RLock()
	defer t.structMu.RUnlock()
	return t.nodeCount
}
