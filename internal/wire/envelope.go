package wire

// Envelope is the unit carried over every internal/transport frame.
// Field order matches spec.md §6's canonical order, which the CBOR codec
// preserves via struct tag index so HMAC verification is reproducible
// across implementations.
type Envelope struct {
	_ struct{} `cbor:",toarray"`

	Version     uint8
	From        NodeID
	TimestampMs int64
	Signature   []byte
	Payload     Payload
}

// PayloadKind discriminates the tagged union carried in Envelope.Payload.
type PayloadKind uint8

const (
	KindHello PayloadKind = iota + 1
	KindGoodbye
	KindHeartbeat
	KindGossip
	KindCall
	KindCallReply
	KindCallError
	KindCast
	KindSpawnRequest
	KindSpawnReply
	KindMonitorNotify
)

// Payload is the envelope body. Exactly one of the typed fields is set,
// selected by Kind; this mirrors how cbor encodes Go structs (every field
// present) more simply than implementing cbor.Marshaler by hand for a
// true sum type, at the cost of a few always-empty fields per message.
type Payload struct {
	Kind PayloadKind

	Hello         *Hello         `cbor:",omitempty"`
	Goodbye       *Goodbye       `cbor:",omitempty"`
	Heartbeat     *Heartbeat     `cbor:",omitempty"`
	Gossip        *Gossip        `cbor:",omitempty"`
	Call          *Call          `cbor:",omitempty"`
	CallReply     *CallReply     `cbor:",omitempty"`
	CallError     *CallError     `cbor:",omitempty"`
	Cast          *Cast          `cbor:",omitempty"`
	SpawnRequest  *SpawnRequest  `cbor:",omitempty"`
	SpawnReply    *SpawnReply    `cbor:",omitempty"`
	MonitorNotify *MonitorNotify `cbor:",omitempty"`
}

// Hello announces a node at the start of a handshake.
type Hello struct {
	NodeID       NodeID
	Capabilities []string
}

// Goodbye announces a node's graceful departure.
type Goodbye struct {
	NodeID NodeID
}

// Heartbeat carries no data; its arrival is the signal.
type Heartbeat struct{}

// Gossip carries an idempotent membership delta.
type Gossip struct {
	Add    []GossipMember
	Remove []NodeID
}

// GossipMember is one entry in a Gossip.Add delta.
type GossipMember struct {
	NodeID          NodeID
	Status          uint8
	LastHeartbeatMs int64
}

// Call is a synchronous request awaiting CallReply or CallError.
type Call struct {
	CallID       string
	TargetHandle string
	Msg          []byte
	TimeoutMs    int64
	SentAtMs     int64
}

// CallReply answers a Call with a successful result.
type CallReply struct {
	CallID string
	Result []byte
}

// CallErrorKind enumerates the reasons a Call fails remotely.
type CallErrorKind uint8

const (
	CallErrorServerNotRunning CallErrorKind = iota + 1
	CallErrorTimeout
	CallErrorUnknown
)

// CallError answers a Call with a failure.
type CallError struct {
	CallID  string
	Kind    CallErrorKind
	Message string
}

// Cast is a fire-and-forget message.
type Cast struct {
	TargetHandle string
	Msg          []byte
}

// SpawnRequest asks a remote node to start a new actor instance.
type SpawnRequest struct {
	RequestID    string
	BehaviorName string
	Args         []byte
	Registration string
	Name         string
}

// SpawnReply answers a SpawnRequest, either with a handle or an error.
type SpawnReply struct {
	RequestID string
	OK        bool
	Handle    string
	ErrKind   string
	ErrMsg    string
}

// MonitorNotify reports a monitored handle's termination.
type MonitorNotify struct {
	Handle string
	Reason string
}
