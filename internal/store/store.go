package store

import "time"

// Event is one entry of a channel's event log.
//
// Event mirrors the wire shape of a Syncano channel event so handlers can
// encode it directly.
type Event struct {
	// ID is assigned by the store on Append. IDs of one channel start at 1
	// and strictly increase.
	ID int64 `json:"id"`

	// Action is "custom" for published messages, or "create", "update" and
	// "delete" for data object changes.
	Action string `json:"action"`

	Author   map[string]any `json:"author,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`

	// Room is empty unless the event was sent to one room of a
	// separate_rooms channel.
	Room string `json:"room,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Store holds per-channel event logs and wakes waiting readers on append.
//
// Store implementations must be safe for concurrent access.
type Store interface {
	// Append assigns the next id of channel to ev, stores it and notifies
	// the channel's subscribers. The stored event is returned.
	Append(channel string, ev Event) Event

	// Since returns the events of channel with id greater than lastID in id
	// order. A non-empty room keeps only that room's events. limit <= 0
	// means no limit. The returned slice is a copy.
	Since(channel string, lastID int64, room string, limit int) []Event

	// LastID returns the id of the newest event of channel, or 0.
	LastID(channel string) int64

	// Drop deletes the log of channel and closes its subscriptions.
	Drop(channel string)

	// Subscribe returns a channel receiving the events appended to channel.
	// Caller must call Unsubscribe when done.
	Subscribe(channel string) <-chan Event

	// Unsubscribe removes a subscription and closes it. Safe to call with an
	// already removed subscription.
	Unsubscribe(channel string, ch <-chan Event)
}
