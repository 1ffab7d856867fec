package syncano

import (
	"errors"
	"net/http"
	"testing"
)

func TestDecodeEvents(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantIDs []int64
		wantErr bool
	}{
		{"empty body", "", nil, false},
		{"empty object", "{}", nil, false},
		{"bare event", `{"id":4,"action":"custom","payload":{"a":1}}`, []int64{4}, false},
		{"envelope", `{"objects":[{"id":1,"action":"create"},{"id":2,"action":"delete"}],"next":null}`, []int64{1, 2}, false},
		{"empty envelope", `{"objects":[]}`, nil, false},
		{"array", `[1]`, nil, true},
		{"not json", `<html>`, nil, true},
		{"unknown shape", `{"detail":"x"}`, nil, true},
		{"zero id", `{"objects":[{"id":0,"action":"custom"}]}`, nil, true},
		{"bad field type", `{"id":"seven"}`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := decodeEvents([]byte(tt.body))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedResponse) {
					t.Fatalf("decodeEvents() error = %v, want ErrMalformedResponse", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeEvents() error = %v", err)
			}
			if len(events) != len(tt.wantIDs) {
				t.Fatalf("decodeEvents() = %d events, want %d", len(events), len(tt.wantIDs))
			}
			for i, ev := range events {
				if ev.ID != tt.wantIDs[i] {
					t.Errorf("events[%d].ID = %d, want %d", i, ev.ID, tt.wantIDs[i])
				}
			}
		})
	}
}

func TestChannelEvent_Name(t *testing.T) {
	tests := []struct {
		action Action
		want   EventName
	}{
		{ActionCustom, EventMessage},
		{ActionCreate, EventCreate},
		{ActionUpdate, EventUpdate},
		{ActionDelete, EventDelete},
		{"presence", ""},
	}
	for _, tt := range tests {
		if got := (ChannelEvent{Action: tt.action}).Name(); got != tt.want {
			t.Errorf("Name() for %q = %q, want %q", tt.action, got, tt.want)
		}
	}
}

func TestCursor(t *testing.T) {
	var c Cursor
	if _, ok := c.Current(); ok {
		t.Error("zero Cursor should be unset")
	}

	// an unset cursor accepts any first id
	if err := c.Advance(5); err != nil {
		t.Fatalf("Advance(5) error = %v", err)
	}
	if err := c.Advance(6); err != nil {
		t.Fatalf("Advance(6) error = %v", err)
	}

	for _, id := range []int64{6, 3} {
		err := c.Advance(id)
		var ov *OrderingViolationError
		if !errors.As(err, &ov) || ov.LastID != 6 || ov.GotID != id {
			t.Errorf("Advance(%d) error = %v, want ordering violation after 6", id, err)
		}
		if !errors.Is(err, ErrOrderingViolation) {
			t.Errorf("Advance(%d) error should match ErrOrderingViolation", id)
		}
	}

	if lastID, ok := c.Current(); !ok || lastID != 6 {
		t.Errorf("Current() = %d, %v, want 6, true", lastID, ok)
	}
}

func TestNewCursor(t *testing.T) {
	c := NewCursor(0)
	if lastID, ok := c.Current(); !ok || lastID != 0 {
		t.Errorf("Current() = %d, %v, want 0, true", lastID, ok)
	}
	if err := c.Advance(0); err == nil {
		t.Error("Advance(0) after NewCursor(0) should fail")
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transport", &TransportError{Cause: errors.New("reset")}, true},
		{"408", httpErr(http.StatusRequestTimeout), true},
		{"429", httpErr(http.StatusTooManyRequests), true},
		{"500", httpErr(http.StatusInternalServerError), true},
		{"503", httpErr(http.StatusServiceUnavailable), true},
		{"400", httpErr(http.StatusBadRequest), false},
		{"401", httpErr(http.StatusUnauthorized), false},
		{"404", httpErr(http.StatusNotFound), false},
		{"malformed", ErrMalformedResponse, false},
		{"ordering", &OrderingViolationError{LastID: 2, GotID: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHTTPError_Fields(t *testing.T) {
	err := newHTTPError("c", http.MethodPost, "/x/", http.StatusBadRequest, []byte(`{"name":["This field is required."]}`))
	fields := err.Fields()
	if len(fields["name"]) != 1 {
		t.Errorf("Fields() = %v, want name error", fields)
	}
	if err.Detail != "" {
		t.Errorf("Detail = %q, want empty", err.Detail)
	}

	plain := newHTTPError("c", http.MethodGet, "/x/", http.StatusBadGateway, []byte("<html>bad gateway</html>"))
	if plain.Fields() != nil {
		t.Error("Fields() of a non-JSON body should be nil")
	}
}
