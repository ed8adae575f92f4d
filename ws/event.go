// Package ws is the server side of the realtime broker.
//
// Clients hold one WebSocket each and multiplex topics over it: they
// subscribe, broadcast to the other subscribers, and track presence. The
// server pushes presence snapshots and row change notifications. With a
// Redis relay configured, several instances share topics and presence.
package ws

import (
	"encoding/json"

	"github.com/akinalp/tradechat/pubsub"
)

// Event is an outbound frame. Seq increases per hub so clients can spot
// gaps.
type Event struct {
	Op   string `json:"op"`
	Data any    `json:"d,omitempty"`
	Seq  int64  `json:"seq,omitempty"`
}

// Frame is the decoding side of Event; Data stays raw until the op is
// known.
type Frame struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"d,omitempty"`
	Seq  int64           `json:"seq,omitempty"`
}

// ─── Operations ───

// Client → server
const (
	OpHeartbeat   = "heartbeat"
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpTrack       = "track"
	OpUntrack     = "untrack"
)

// Both directions
const (
	OpBroadcast = "broadcast"
)

// Server → client
const (
	OpHeartbeatAck = "heartbeat_ack"
	OpSubscribed   = "subscribed"
	OpPresenceSync = "presence_sync"
	OpChange       = "change"

	// OpMessageCreate is pushed to both participants of a conversation
	// when a message is stored.
	OpMessageCreate = "message_create"
)

// ─── Payloads ───

// SubscribeData joins a topic. PresenceKey is accepted for compatibility;
// the server always tracks under the authenticated user id.
type SubscribeData struct {
	Topic       string `json:"topic"`
	PresenceKey string `json:"presence_key,omitempty"`
}

// TopicData names a topic (unsubscribe, untrack).
type TopicData struct {
	Topic string `json:"topic"`
}

type BroadcastData struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type TrackData struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SubscribedData answers a subscribe. Reason is set for CHANNEL_ERROR.
type SubscribedData struct {
	Topic  string        `json:"topic"`
	Status pubsub.Status `json:"status"`
	Reason string        `json:"reason,omitempty"`
}

// PresenceSyncData is the full presence snapshot of a topic.
type PresenceSyncData struct {
	Topic string               `json:"topic"`
	State pubsub.PresenceState `json:"state"`
}

// ChangeData notifies subscribers that a row behind the topic changed.
// Type is INSERT, UPDATE or DELETE.
type ChangeData struct {
	Topic  string          `json:"topic"`
	Table  string          `json:"table"`
	Type   string          `json:"type"`
	Record json.RawMessage `json:"record,omitempty"`
}

// Change actions.
const (
	ChangeInsert = "INSERT"
	ChangeUpdate = "UPDATE"
	ChangeDelete = "DELETE"
)
