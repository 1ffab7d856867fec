package syncano

import (
	"encoding/json"
	"fmt"
)

// Action discriminates channel events.
type Action string

const (
	ActionCustom Action = "custom"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// EventName is the name listeners subscribe to on a [PollSession].
type EventName string

const (
	EventMessage EventName = "message"
	EventCreate  EventName = "create"
	EventUpdate  EventName = "update"
	EventDelete  EventName = "delete"
)

// ChannelEvent is one entry of a channel's feed.
//
// Custom events come from [Channel.Publish]; create, update and delete
// events are emitted by the platform for data objects bound to the channel.
type ChannelEvent struct {
	ID        int64          `json:"id"`
	Action    Action         `json:"action"`
	Author    map[string]any `json:"author,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Room      string         `json:"room,omitempty"`
	CreatedAt string         `json:"created_at,omitempty"`
}

// Name maps the event's action to the listener name it is dispatched under.
// Custom events are delivered as message; unknown actions return "".
func (e ChannelEvent) Name() EventName {
	switch e.Action {
	case ActionCustom:
		return EventMessage
	case ActionCreate:
		return EventCreate
	case ActionUpdate:
		return EventUpdate
	case ActionDelete:
		return EventDelete
	default:
		return ""
	}
}

func validEventName(name EventName) bool {
	switch name {
	case EventMessage, EventCreate, EventUpdate, EventDelete:
		return true
	default:
		return false
	}
}

// pollResponse is the long-poll envelope.
type pollResponse struct {
	Objects []json.RawMessage `json:"objects"`
	Next    json.RawMessage   `json:"next"`
}

// decodeEvents parses a long-poll response body into events in response
// order. An empty body is an empty batch; a bare event object is a batch of
// one. Every event must carry a positive id.
func decodeEvents(body []byte) ([]ChannelEvent, error) {
	if len(body) == 0 {
		return nil, nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	var raw []json.RawMessage
	if _, ok := probe["objects"]; ok {
		var env pollResponse
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		raw = env.Objects
	} else if _, ok := probe["id"]; ok {
		raw = []json.RawMessage{body}
	} else if len(probe) == 0 {
		return nil, nil
	} else {
		return nil, fmt.Errorf("%w: neither an event list nor an event", ErrMalformedResponse)
	}

	events := make([]ChannelEvent, 0, len(raw))
	for i, r := range raw {
		var ev ChannelEvent
		if err := json.Unmarshal(r, &ev); err != nil {
			return nil, fmt.Errorf("%w: event %d: %v", ErrMalformedResponse, i, err)
		}
		if ev.ID <= 0 {
			return nil, fmt.Errorf("%w: event %d has no id", ErrMalformedResponse, i)
		}
		events = append(events, ev)
	}
	return events, nil
}
