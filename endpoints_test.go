package syncano

import (
	"net/http"
	"strings"
	"testing"
)

func TestMeta_ResolvePath(t *testing.T) {
	tests := []struct {
		name     string
		meta     *Meta
		endpoint string
		params   Params
		want     string
	}{
		{"instance list", instanceMeta, "list", nil, "/v1.1/instances/"},
		{"instance detail", instanceMeta, "detail", Params{"name": "demo-app"}, "/v1.1/instances/demo-app/"},
		{"channel poll", channelMeta, "poll", Params{"instanceName": "demo-app", "name": "chat"}, "/v1.1/instances/demo-app/channels/chat/poll/"},
		{"escaped", channelMeta, "detail", Params{"instanceName": "demo app", "name": "a/b"}, "/v1.1/instances/demo%20app/channels/a%2Fb/"},
		{"extra params ignored", channelMeta, "list", Params{"instanceName": "demo-app", "name": "chat"}, "/v1.1/instances/demo-app/channels/"},
		{"data object", dataObjectMeta, "detail", Params{"instanceName": "demo-app", "className": "notes", "id": "7"}, "/v1.1/instances/demo-app/classes/notes/objects/7/"},
		{"invitation resend", invitationMeta, "resend", Params{"instanceName": "demo-app", "id": "3"}, "/v1/instances/demo-app/invitations/3/resend/"},
		{"gcm device", gcmDeviceMeta, "detail", Params{"instanceName": "demo-app", "registration_id": "tok"}, "/v1.1/instances/demo-app/push_notifications/gcm/devices/tok/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.meta.ResolvePath(tt.endpoint, tt.params)
			if err != nil {
				t.Fatalf("ResolvePath() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolvePath() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMeta_ResolvePathMissingParams(t *testing.T) {
	_, err := dataObjectMeta.ResolvePath("detail", Params{"instanceName": "demo-app", "className": ""})
	if err == nil {
		t.Fatal("ResolvePath() expected error, got nil")
	}
	if !strings.Contains(err.Error(), "missing className, id") {
		t.Errorf("ResolvePath() error = %v, want missing className, id", err)
	}
}

func TestMeta_UnknownEndpoint(t *testing.T) {
	if _, err := instanceMeta.ResolvePath("poll", nil); err == nil {
		t.Error("ResolvePath() expected error for unknown endpoint, got nil")
	}
	if _, err := instanceMeta.Endpoint("poll"); err == nil {
		t.Error("Endpoint() expected error for unknown endpoint, got nil")
	}
}

func TestEndpoint_Allows(t *testing.T) {
	ep, err := invitationMeta.Endpoint("detail")
	if err != nil {
		t.Fatalf("Endpoint() error = %v", err)
	}

	if !ep.Allows(http.MethodGet) || !ep.Allows("delete") {
		t.Error("detail should allow GET and DELETE")
	}
	if ep.Allows(http.MethodPatch) {
		t.Error("invitations cannot be updated")
	}
}

func TestMeta_Placeholders(t *testing.T) {
	got := channelMeta.placeholders("list")
	if len(got) != 1 || !got["instanceName"] {
		t.Errorf("placeholders(list) = %v, want [instanceName]", got)
	}
	if got := dataObjectMeta.placeholders("detail"); len(got) != 3 {
		t.Errorf("placeholders(detail) = %v, want 3 keys", got)
	}
}

func TestParams_Clone(t *testing.T) {
	p := Params{"a": "1"}
	cp := p.clone()
	cp["a"] = "2"
	if p["a"] != "1" {
		t.Error("clone() should not share storage")
	}
	if nilClone := Params(nil).clone(); nilClone == nil {
		t.Error("clone() of nil should be writable")
	}
}
