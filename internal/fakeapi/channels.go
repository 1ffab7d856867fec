package fakeapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/syncano/syncano-go/internal/store"
)

// handlePoll answers with the first event after last_id, waiting up to the
// poll window for one to be published. Without last_id only events
// published after the request arrived are returned.
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s.pollRequests.Add(1)
	instance, name := ps.ByName("instance"), ps.ByName("name")

	if status, ok := s.takePollFault(); ok {
		s.logger.Debug("injected poll failure", "channel", name, "status", status)
		writeDetail(w, status, "Injected failure.")
		return
	}

	if _, ok := s.channelExists(instance, name); !ok {
		writeNotFound(w)
		return
	}

	key := channelKey(instance, name)
	room := r.URL.Query().Get("room")

	// subscribe before reading so an event appended in between still wakes us
	sub := s.events.Subscribe(key)
	defer s.events.Unsubscribe(key, sub)

	lastID := s.events.LastID(key)
	if raw := r.URL.Query().Get("last_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string][]string{"last_id": {"A valid integer is required."}})
			return
		}
		lastID = id
	}

	timer := time.NewTimer(s.pollWindow)
	defer timer.Stop()

	for {
		if events := s.events.Since(key, lastID, room, 1); len(events) > 0 {
			writeJSON(w, http.StatusOK, events[0])
			return
		}

		select {
		case _, ok := <-sub:
			if !ok {
				// channel deleted while waiting
				writeNotFound(w)
				return
			}
		case <-timer.C:
			w.WriteHeader(http.StatusNoContent)
			return
		case <-r.Context().Done():
			return
		}
	}
}

type publishRequest struct {
	Payload map[string]any `json:"payload"`
	Room    string         `json:"room"`
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	instance, name := ps.ByName("instance"), ps.ByName("name")

	typ, ok := s.channelExists(instance, name)
	if !ok {
		writeNotFound(w)
		return
	}

	obj, err := decodeObject(r)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	var req publishRequest
	req.Payload, _ = obj["payload"].(map[string]any)
	req.Room, _ = obj["room"].(string)

	if req.Payload == nil {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"payload": {"This field is required."}})
		return
	}
	if typ == "separate_rooms" && req.Room == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"room": {"This field is required for separate_rooms channels."}})
		return
	}

	ev := s.events.Append(channelKey(instance, name), store.Event{
		Action:  "custom",
		Payload: req.Payload,
		Room:    req.Room,
	})
	writeJSON(w, http.StatusCreated, ev)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	instance, name := ps.ByName("instance"), ps.ByName("name")
	if _, ok := s.channelExists(instance, name); !ok {
		writeNotFound(w)
		return
	}

	q := r.URL.Query()
	lastID, _ := strconv.ParseInt(q.Get("last_id"), 10, 64)
	events := s.events.Since(channelKey(instance, name), lastID, q.Get("room"), 0)

	objects := make([]object, 0, len(events))
	for _, ev := range events {
		objects = append(objects, eventObject(ev))
	}
	writeJSON(w, http.StatusOK, paginate(r, objects))
}

func (s *Server) handleResend(res *resource) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		s.mu.Lock()
		_, ok := s.lookup(res, ps)
		s.mu.Unlock()

		if !ok {
			writeNotFound(w)
			return
		}
		s.logger.Debug("invitation resent", "instance", ps.ByName("instance"), "id", ps.ByName("id"))
		w.WriteHeader(http.StatusNoContent)
	}
}

// emitObjectEvent publishes data object changes to the object's channel,
// if it has one that exists. Runs with s.mu held.
func emitObjectEvent(action string) func(*Server, httprouter.Params, object) {
	return func(s *Server, ps httprouter.Params, obj object) {
		channel, _ := obj["channel"].(string)
		if channel == "" {
			return
		}
		instance := ps.ByName("instance")
		st, ok := s.state[instance]
		if !ok {
			return
		}
		if _, ok := st.channels.get(channel); !ok {
			return
		}

		payload := copyObject(obj)
		if action == "delete" {
			payload = object{"id": obj["id"]}
		}
		room, _ := obj["channel_room"].(string)
		s.events.Append(channelKey(instance, channel), store.Event{
			Action:  action,
			Payload: payload,
			Room:    room,
		})
	}
}

// eventObject converts an event to the generic object form used by
// paginate.
func eventObject(ev store.Event) object {
	obj := object{
		"id":         ev.ID,
		"action":     ev.Action,
		"created_at": timestamp(ev.CreatedAt),
	}
	if ev.Author != nil {
		obj["author"] = ev.Author
	}
	if ev.Payload != nil {
		obj["payload"] = ev.Payload
	}
	if ev.Metadata != nil {
		obj["metadata"] = ev.Metadata
	}
	if ev.Room != "" {
		obj["room"] = ev.Room
	}
	return obj
}
