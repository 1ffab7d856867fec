package syncano

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Channel types.
const (
	ChannelTypeDefault       = "default"
	ChannelTypeSeparateRooms = "separate_rooms"
)

// Channel permission levels, used for group and other permissions.
const (
	ChannelPermissionNone      = "none"
	ChannelPermissionSubscribe = "subscribe"
	ChannelPermissionPublish   = "publish"
)

var channelMeta = &Meta{
	Name:       "Channel",
	PluralName: "Channels",
	Endpoints: map[string]Endpoint{
		"list": {
			Path:    "/v1.1/instances/{instanceName}/channels/",
			Methods: []string{http.MethodGet, http.MethodPost},
		},
		"detail": {
			Path:    "/v1.1/instances/{instanceName}/channels/{name}/",
			Methods: []string{http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodDelete},
		},
		"poll": {
			Path:    "/v1.1/instances/{instanceName}/channels/{name}/poll/",
			Methods: []string{http.MethodGet},
		},
		"publish": {
			Path:    "/v1.1/instances/{instanceName}/channels/{name}/publish/",
			Methods: []string{http.MethodPost},
		},
		"history": {
			Path:    "/v1.1/instances/{instanceName}/channels/{name}/history/",
			Methods: []string{http.MethodGet},
		},
	},
}

// Channel is a named real-time event feed inside an instance.
type Channel struct {
	InstanceName     string         `json:"-"`
	Name             string         `json:"name"`
	Description      string         `json:"description,omitempty"`
	Type             string         `json:"type,omitempty"`
	Group            *int64         `json:"group,omitempty"`
	GroupPermissions string         `json:"group_permissions,omitempty"`
	OtherPermissions string         `json:"other_permissions,omitempty"`
	CustomPublish    bool           `json:"custom_publish"`
	Links            map[string]any `json:"links,omitempty"`
	CreatedAt        string         `json:"created_at,omitempty"`
	UpdatedAt        string         `json:"updated_at,omitempty"`

	client *Client
}

func (ch *Channel) identity() Params {
	return Params{"instanceName": ch.InstanceName, "name": ch.Name}
}

func (ch *Channel) bind(c *Client, p Params) {
	ch.client = c
	if ch.InstanceName == "" {
		ch.InstanceName = p["instanceName"]
	}
}

func (ch *Channel) persisted() bool {
	return ch.CreatedAt != ""
}

// Validate checks the channel locally before it is sent.
func (ch *Channel) Validate() error {
	permissions := []any{ChannelPermissionNone, ChannelPermissionSubscribe, ChannelPermissionPublish}
	return validation.ValidateStruct(ch,
		validation.Field(&ch.InstanceName, instanceNameRules...),
		validation.Field(&ch.Name, validation.Required, validation.Length(1, 64)),
		validation.Field(&ch.Type, validation.In(ChannelTypeDefault, ChannelTypeSeparateRooms)),
		validation.Field(&ch.GroupPermissions, validation.In(permissions...)),
		validation.Field(&ch.OtherPermissions, validation.In(permissions...)),
	)
}

// Poll creates an idle [PollSession] for the channel. The session uses the
// client's backoff policy and logger unless opts override them.
func (ch *Channel) Poll(opts ...PollOption) *PollSession {
	if ch.client == nil {
		cfg := defaultPollConfig(nil)
		for _, opt := range opts {
			opt(cfg)
		}
		return newPollSession(unboundRequester{name: "channel"}, ch.InstanceName, ch.Name, cfg)
	}
	return ch.client.Poll(ch.InstanceName, ch.Name, opts...)
}

// Publish sends a custom message to the channel. room is only used on
// separate_rooms channels. The created event is returned.
func (ch *Channel) Publish(ctx context.Context, payload map[string]any, room string) (*ChannelEvent, error) {
	if ch.client == nil {
		return nil, errUnbound(channelMeta.Name)
	}
	path, err := channelMeta.ResolvePath("publish", ch.identity())
	if err != nil {
		return nil, err
	}

	body := map[string]any{"payload": payload}
	if room != "" {
		body["room"] = room
	}
	resp, err := ch.client.Request(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}

	var ev ChannelEvent
	if err := json.Unmarshal(resp, &ev); err != nil {
		return nil, fmt.Errorf("decoding published event: %w: %v", ErrMalformedResponse, err)
	}
	return &ev, nil
}

// History returns one page of past events of the channel, oldest first
// unless ordered otherwise. Use QueryParam("room", ...) or
// QueryParam("last_id", ...) to narrow it.
func (ch *Channel) History(ctx context.Context, opts ...ListOption) ([]ChannelEvent, error) {
	if ch.client == nil {
		return nil, errUnbound(channelMeta.Name)
	}
	path, err := channelMeta.ResolvePath("history", ch.identity())
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	for _, opt := range opts {
		opt(q)
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	resp, err := ch.client.Request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var page struct {
		Objects []ChannelEvent `json:"objects"`
	}
	if err := json.Unmarshal(resp, &page); err != nil {
		return nil, fmt.Errorf("decoding channel history: %w: %v", ErrMalformedResponse, err)
	}
	return page.Objects, nil
}

// Delete removes the channel.
func (ch *Channel) Delete(ctx context.Context) error {
	if ch.client == nil {
		return errUnbound(channelMeta.Name)
	}
	return ch.client.Channels(ch.InstanceName).Delete(ctx, Params{"name": ch.Name})
}

// ChannelQuery gives access to the channels of one instance.
type ChannelQuery struct {
	qs querySet[Channel, *Channel]
}

var (
	_ Listable[Channel]          = (*ChannelQuery)(nil)
	_ Gettable[Channel]          = (*ChannelQuery)(nil)
	_ Creatable[Channel]         = (*ChannelQuery)(nil)
	_ Updatable[Channel]         = (*ChannelQuery)(nil)
	_ Deletable                  = (*ChannelQuery)(nil)
	_ GetOrCreatable[Channel]    = (*ChannelQuery)(nil)
	_ UpdateOrCreatable[Channel] = (*ChannelQuery)(nil)
)

// Channels returns the channel query set of instanceName.
func (c *Client) Channels(instanceName string) *ChannelQuery {
	return &ChannelQuery{qs: newQuerySet[Channel](c, channelMeta, Params{"instanceName": instanceName})}
}

// Poll creates an idle [PollSession] for a channel without fetching it first.
func (c *Client) Poll(instanceName, channelName string, opts ...PollOption) *PollSession {
	cfg := defaultPollConfig(c)
	for _, opt := range opts {
		opt(cfg)
	}
	return newPollSession(c, instanceName, channelName, cfg)
}

func (q *ChannelQuery) List(ctx context.Context, params Params, opts ...ListOption) ([]*Channel, error) {
	return q.qs.list(ctx, params, opts)
}

func (q *ChannelQuery) Page(ctx context.Context, params Params, opts ...ListOption) (*Page[Channel], error) {
	return q.qs.page(ctx, params, opts)
}

func (q *ChannelQuery) All(ctx context.Context, params Params, opts ...ListOption) ([]*Channel, error) {
	return q.qs.all(ctx, params, opts)
}

func (q *ChannelQuery) First(ctx context.Context, params Params, opts ...ListOption) (*Channel, error) {
	return q.qs.first(ctx, params, opts)
}

// Get fetches one channel. params must contain "name".
func (q *ChannelQuery) Get(ctx context.Context, params Params) (*Channel, error) {
	return q.qs.get(ctx, params)
}

func (q *ChannelQuery) Create(ctx context.Context, ch *Channel) (*Channel, error) {
	return q.qs.create(ctx, ch)
}

func (q *ChannelQuery) Update(ctx context.Context, params Params, changes map[string]any) (*Channel, error) {
	return q.qs.update(ctx, params, changes)
}

// Save creates ch, or updates it if it was fetched from the API.
func (q *ChannelQuery) Save(ctx context.Context, ch *Channel) (*Channel, error) {
	return q.qs.save(ctx, ch)
}

func (q *ChannelQuery) Delete(ctx context.Context, params Params) error {
	return q.qs.delete(ctx, params)
}

func (q *ChannelQuery) GetOrCreate(ctx context.Context, params Params, defaults map[string]any) (*Channel, bool, error) {
	return q.qs.getOrCreate(ctx, params, defaults)
}

func (q *ChannelQuery) UpdateOrCreate(ctx context.Context, params Params, changes, defaults map[string]any) (*Channel, bool, error) {
	return q.qs.updateOrCreate(ctx, params, changes, defaults)
}
