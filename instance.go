package syncano

import (
	"context"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var instanceMeta = &Meta{
	Name:       "Instance",
	PluralName: "Instances",
	Endpoints: map[string]Endpoint{
		"list": {
			Path:    "/v1.1/instances/",
			Methods: []string{http.MethodGet, http.MethodPost},
		},
		"detail": {
			Path:    "/v1.1/instances/{name}/",
			Methods: []string{http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodDelete},
		},
	},
}

// Instance is a Syncano application namespace. Every other model lives
// inside one.
type Instance struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Owner       map[string]any `json:"owner,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Role        string         `json:"role,omitempty"`
	Links       map[string]any `json:"links,omitempty"`
	CreatedAt   string         `json:"created_at,omitempty"`
	UpdatedAt   string         `json:"updated_at,omitempty"`

	client *Client
}

func (in *Instance) identity() Params {
	return Params{"name": in.Name}
}

func (in *Instance) bind(c *Client, _ Params) {
	in.client = c
}

func (in *Instance) persisted() bool {
	return in.CreatedAt != ""
}

// Validate checks the instance locally before it is sent.
func (in *Instance) Validate() error {
	return validation.ValidateStruct(in,
		validation.Field(&in.Name, instanceNameRules...),
	)
}

// Channels returns the channel query set of the instance.
func (in *Instance) Channels() *ChannelQuery {
	return in.client.Channels(in.Name)
}

// InstanceQuery gives access to the instances visible to the client's key.
type InstanceQuery struct {
	qs querySet[Instance, *Instance]
}

var (
	_ Listable[Instance]          = (*InstanceQuery)(nil)
	_ Gettable[Instance]          = (*InstanceQuery)(nil)
	_ Creatable[Instance]         = (*InstanceQuery)(nil)
	_ Updatable[Instance]         = (*InstanceQuery)(nil)
	_ Deletable                   = (*InstanceQuery)(nil)
	_ GetOrCreatable[Instance]    = (*InstanceQuery)(nil)
	_ UpdateOrCreatable[Instance] = (*InstanceQuery)(nil)
)

// Instances returns the instance query set.
func (c *Client) Instances() *InstanceQuery {
	return &InstanceQuery{qs: newQuerySet[Instance](c, instanceMeta, Params{})}
}

func (q *InstanceQuery) List(ctx context.Context, params Params, opts ...ListOption) ([]*Instance, error) {
	return q.qs.list(ctx, params, opts)
}

func (q *InstanceQuery) Page(ctx context.Context, params Params, opts ...ListOption) (*Page[Instance], error) {
	return q.qs.page(ctx, params, opts)
}

func (q *InstanceQuery) All(ctx context.Context, params Params, opts ...ListOption) ([]*Instance, error) {
	return q.qs.all(ctx, params, opts)
}

func (q *InstanceQuery) First(ctx context.Context, params Params, opts ...ListOption) (*Instance, error) {
	return q.qs.first(ctx, params, opts)
}

// Get fetches one instance. params must contain "name".
func (q *InstanceQuery) Get(ctx context.Context, params Params) (*Instance, error) {
	return q.qs.get(ctx, params)
}

func (q *InstanceQuery) Create(ctx context.Context, in *Instance) (*Instance, error) {
	return q.qs.create(ctx, in)
}

func (q *InstanceQuery) Update(ctx context.Context, params Params, changes map[string]any) (*Instance, error) {
	return q.qs.update(ctx, params, changes)
}

// Save creates in, or updates it if it was fetched from the API.
func (q *InstanceQuery) Save(ctx context.Context, in *Instance) (*Instance, error) {
	return q.qs.save(ctx, in)
}

func (q *InstanceQuery) Delete(ctx context.Context, params Params) error {
	return q.qs.delete(ctx, params)
}

func (q *InstanceQuery) GetOrCreate(ctx context.Context, params Params, defaults map[string]any) (*Instance, bool, error) {
	return q.qs.getOrCreate(ctx, params, defaults)
}

func (q *InstanceQuery) UpdateOrCreate(ctx context.Context, params Params, changes, defaults map[string]any) (*Instance, bool, error) {
	return q.qs.updateOrCreate(ctx, params, changes, defaults)
}
