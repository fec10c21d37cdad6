// Package message defines the typed message envelope shared by
// pkg/channel and pkg/bus: identity, routing, timing, priority, metadata,
// and exactly one of three ownership-typed payload carriers.
package message

import (
	"sync/atomic"
	"time"
)

// ID is a process-lifetime-unique, monotonically increasing message
// identifier.
type ID uint64

var nextID atomic.Uint64

func newID() ID {
	return ID(nextID.Add(1))
}

// ResetIDCounterForTest rewinds the global id counter. Exposed only for
// deterministic tests; production code must never call it.
func ResetIDCounterForTest() {
	nextID.Store(0)
}

// SubscriberID is a caller-chosen tag identifying a logical subscriber.
// It is not unique by itself.
type SubscriberID uint32

// Priority is a signed ordering value used for delivery precedence among
// ready subscriptions within a single publish call.
type Priority int32

const (
	PriorityCritical   Priority = 1000
	PriorityHigh       Priority = 500
	PriorityNormal     Priority = 0
	PriorityLow        Priority = -500
	PriorityBackground Priority = -1000
)

// Route carries addressing information for a Message.
type Route struct {
	Sender   SubscriberID
	Receiver SubscriberID
	Topic    string
	Channel  string
}

// Timing carries the three lifecycle timestamps and the TTL. All three
// timestamps and the TTL comparison use the monotonic clock embedded in
// time.Time, per the fixed reading of the source's clock ambiguity.
type Timing struct {
	Created  time.Time
	Sent     time.Time
	Received time.Time
	TTL      time.Duration
}

// Expired reports whether the message has outlived its TTL, measured
// from Created. A zero TTL means "never expires".
func (t Timing) Expired() bool {
	if t.TTL <= 0 {
		return false
	}
	return time.Since(t.Created) > t.TTL
}

// Age returns the duration since Created.
func (t Timing) Age() time.Duration {
	return time.Since(t.Created)
}

// Latency returns Received.Sub(Sent) once both are stamped, else zero.
func (t Timing) Latency() time.Duration {
	if t.Sent.IsZero() || t.Received.IsZero() {
		return 0
	}
	return t.Received.Sub(t.Sent)
}

// AttrKind tags the leaf type carried by an Attr.
type AttrKind int

const (
	AttrString AttrKind = iota
	AttrInt
	AttrFloat
	AttrBool
	AttrBytes
	AttrOpaque // catch-all for values that don't fit a leaf kind
)

// Attr is a tagged-sum attribute value. Exactly one field is meaningful,
// selected by Kind.
type Attr struct {
	Kind  AttrKind
	Str   string
	Int   int64
	Float float64
	Bool  bool
	Bytes []byte
}

func StringAttr(v string) Attr { return Attr{Kind: AttrString, Str: v} }
func IntAttr(v int64) Attr     { return Attr{Kind: AttrInt, Int: v} }
func FloatAttr(v float64) Attr { return Attr{Kind: AttrFloat, Float: v} }
func BoolAttr(v bool) Attr     { return Attr{Kind: AttrBool, Bool: v} }
func BytesAttr(v []byte) Attr  { return Attr{Kind: AttrBytes, Bytes: v} }
func OpaqueAttr(v []byte) Attr { return Attr{Kind: AttrOpaque, Bytes: v} }

// Metadata carries a free-text description plus a bag of typed
// attributes.
type Metadata struct {
	Description string
	Attributes  map[string]Attr
}

// Payload is implemented by the three ownership-typed carriers: Owned,
// Unique, and Shared. A Message holds exactly one.
type Payload interface {
	Kind() PayloadKind
	Size() int
}

// PayloadCloner is implemented by the carriers that support fan-out
// cloning (Owned copies by value, Shared increments the refcount).
// Unique deliberately does not implement it.
type PayloadCloner interface {
	Payload
	ClonePayload() Payload
}

// PayloadKind discriminates which carrier a Payload value is.
type PayloadKind int

const (
	KindOwned PayloadKind = iota
	KindUnique
	KindShared
)

// Message is an immutable-after-publish envelope. Construct with New,
// populate mutable fields, then hand to a Channel; the Channel freezes
// the message on enqueue.
type Message struct {
	id       ID
	typ      string
	priority Priority
	route    Route
	timing   Timing
	metadata Metadata
	payload  Payload

	frozen atomic.Bool
}

// Option mutates a Message during construction.
type Option func(*Message)

// WithPriority overrides the default Normal priority.
func WithPriority(p Priority) Option {
	return func(m *Message) { m.priority = p }
}

// WithRoute sets routing information.
func WithRoute(r Route) Option {
	return func(m *Message) { m.route = r }
}

// WithTTL sets the message's time-to-live.
func WithTTL(ttl time.Duration) Option {
	return func(m *Message) { m.timing.TTL = ttl }
}

// WithDescription sets the metadata description.
func WithDescription(desc string) Option {
	return func(m *Message) { m.metadata.Description = desc }
}

// WithAttr sets a single metadata attribute.
func WithAttr(key string, v Attr) Option {
	return func(m *Message) {
		if m.metadata.Attributes == nil {
			m.metadata.Attributes = make(map[string]Attr)
		}
		m.metadata.Attributes[key] = v
	}
}

// WithPayload attaches the message's single payload carrier.
func WithPayload(p Payload) Option {
	return func(m *Message) { m.payload = p }
}

// New constructs a Message with a fresh id and Created timestamp.
func New(typ string, opts ...Option) *Message {
	m := &Message{
		id:       newID(),
		typ:      typ,
		priority: PriorityNormal,
		timing:   Timing{Created: time.Now()},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Message) ID() ID             { return m.id }
func (m *Message) Type() string       { return m.typ }
func (m *Message) Priority() Priority { return m.priority }
func (m *Message) Route() Route       { return m.route }
func (m *Message) Timing() Timing     { return m.timing }
func (m *Message) Metadata() Metadata { return m.metadata }
func (m *Message) Payload() Payload   { return m.payload }
func (m *Message) Expired() bool      { return m.timing.Expired() }
func (m *Message) Frozen() bool       { return m.frozen.Load() }

// Freeze marks the message immutable. Called by a Channel on enqueue.
// Mutator methods below become no-ops after Freeze.
func (m *Message) Freeze() {
	m.frozen.Store(true)
}

// SetRoute mutates routing before publish. No-op once frozen.
func (m *Message) SetRoute(r Route) {
	if m.frozen.Load() {
		return
	}
	m.route = r
}

// SetPriority mutates priority before publish. No-op once frozen.
func (m *Message) SetPriority(p Priority) {
	if m.frozen.Load() {
		return
	}
	m.priority = p
}

// MarkSent stamps the Sent timestamp. Allowed even when frozen: this is
// the Channel's own enqueue bookkeeping, not caller mutation.
func (m *Message) MarkSent() {
	m.timing.Sent = time.Now()
}

// MarkReceived stamps the Received timestamp. Allowed even when frozen,
// for the same reason as MarkSent.
func (m *Message) MarkReceived() {
	m.timing.Received = time.Now()
}

// Clone produces an independent Message carrying the same identity,
// route, and metadata but a fresh zero-valued Sent/Received timing (each
// delivery target stamps its own), used by the Bus's fan-out path. The
// payload is cloned per its carrier's own rules when it implements
// PayloadCloner: Owned copies by value, Shared increments the refcount.
// Unique does not implement PayloadCloner, so the clone shares the
// single move-only handle; the Bus rejects a Unique payload published
// to more than one subscription before ever cloning it.
func (m *Message) Clone() *Message {
	payload := m.payload
	if pc, ok := payload.(PayloadCloner); ok {
		payload = pc.ClonePayload()
	}
	return &Message{
		id:       m.id,
		typ:      m.typ,
		priority: m.priority,
		route:    m.route,
		timing:   Timing{Created: m.timing.Created, TTL: m.timing.TTL},
		metadata: m.metadata,
		payload:  payload,
	}
}
