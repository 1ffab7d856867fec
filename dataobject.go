package syncano

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var dataObjectMeta = &Meta{
	Name:       "DataObject",
	PluralName: "DataObjects",
	Endpoints: map[string]Endpoint{
		"list": {
			Path:    "/v1.1/instances/{instanceName}/classes/{className}/objects/",
			Methods: []string{http.MethodGet, http.MethodPost},
		},
		"detail": {
			Path:    "/v1.1/instances/{instanceName}/classes/{className}/objects/{id}/",
			Methods: []string{http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodDelete},
		},
	},
}

// DataObject is one row of a class. Class-specific fields are carried in
// Fields and are flattened into the JSON object next to the built-in ones.
//
// Setting Channel binds the object to a channel: its creation, updates and
// deletion are then published there as create, update and delete events.
type DataObject struct {
	InstanceName     string         `json:"-"`
	ClassName        string         `json:"-"`
	ID               int64          `json:"id,omitempty"`
	Revision         int            `json:"revision,omitempty"`
	Owner            *int64         `json:"owner,omitempty"`
	OwnerPermissions string         `json:"owner_permissions,omitempty"`
	Group            *int64         `json:"group,omitempty"`
	GroupPermissions string         `json:"group_permissions,omitempty"`
	OtherPermissions string         `json:"other_permissions,omitempty"`
	Channel          string         `json:"channel,omitempty"`
	ChannelRoom      string         `json:"channel_room,omitempty"`
	Links            map[string]any `json:"links,omitempty"`
	CreatedAt        string         `json:"created_at,omitempty"`
	UpdatedAt        string         `json:"updated_at,omitempty"`

	Fields map[string]any `json:"-"`

	client *Client
}

// dataObjectFields is DataObject without its methods, so the JSON codecs
// below can use the default encoding for the built-in fields.
type dataObjectFields DataObject

var builtinDataObjectKeys = map[string]bool{
	"id": true, "revision": true, "owner": true, "owner_permissions": true,
	"group": true, "group_permissions": true, "other_permissions": true,
	"channel": true, "channel_room": true, "links": true,
	"created_at": true, "updated_at": true,
}

// MarshalJSON flattens Fields next to the built-in fields. Built-in fields
// win over custom ones of the same name.
func (o DataObject) MarshalJSON() ([]byte, error) {
	builtin, err := json.Marshal(dataObjectFields(o))
	if err != nil {
		return nil, err
	}
	if len(o.Fields) == 0 {
		return builtin, nil
	}

	merged := make(map[string]any, len(o.Fields)+len(builtinDataObjectKeys))
	for k, v := range o.Fields {
		merged[k] = v
	}
	var known map[string]any
	if err := json.Unmarshal(builtin, &known); err != nil {
		return nil, err
	}
	for k, v := range known {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// UnmarshalJSON fills the built-in fields and collects the rest into Fields.
func (o *DataObject) UnmarshalJSON(data []byte) error {
	var builtin dataObjectFields
	if err := json.Unmarshal(data, &builtin); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}

	fields := make(map[string]any)
	for k, raw := range all {
		if builtinDataObjectKeys[k] {
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		fields[k] = v
	}

	// keep the locally bound identity
	builtin.InstanceName = o.InstanceName
	builtin.ClassName = o.ClassName
	builtin.client = o.client
	builtin.Fields = fields
	*o = DataObject(builtin)
	return nil
}

func (o *DataObject) identity() Params {
	p := Params{"instanceName": o.InstanceName, "className": o.ClassName}
	if o.ID != 0 {
		p["id"] = strconv.FormatInt(o.ID, 10)
	}
	return p
}

func (o *DataObject) bind(c *Client, p Params) {
	o.client = c
	if o.InstanceName == "" {
		o.InstanceName = p["instanceName"]
	}
	if o.ClassName == "" {
		o.ClassName = p["className"]
	}
}

func (o *DataObject) persisted() bool {
	return o.ID != 0
}

// Validate checks the object locally before it is sent.
func (o *DataObject) Validate() error {
	return validation.ValidateStruct(o,
		validation.Field(&o.InstanceName, instanceNameRules...),
		validation.Field(&o.ClassName, validation.Required),
		validation.Field(&o.OwnerPermissions, validation.In(permissionLevels...)),
		validation.Field(&o.GroupPermissions, validation.In(permissionLevels...)),
		validation.Field(&o.OtherPermissions, validation.In(permissionLevels...)),
	)
}

// Delete removes the object.
func (o *DataObject) Delete(ctx context.Context) error {
	if o.client == nil {
		return errUnbound(dataObjectMeta.Name)
	}
	return o.client.DataObjects(o.InstanceName, o.ClassName).Delete(ctx, Params{"id": strconv.FormatInt(o.ID, 10)})
}

// DataObjectQuery gives access to the objects of one class.
type DataObjectQuery struct {
	qs querySet[DataObject, *DataObject]
}

var (
	_ Listable[DataObject]  = (*DataObjectQuery)(nil)
	_ Gettable[DataObject]  = (*DataObjectQuery)(nil)
	_ Creatable[DataObject] = (*DataObjectQuery)(nil)
	_ Updatable[DataObject] = (*DataObjectQuery)(nil)
	_ Deletable             = (*DataObjectQuery)(nil)
)

// DataObjects returns the object query set of class className in
// instanceName.
func (c *Client) DataObjects(instanceName, className string) *DataObjectQuery {
	return &DataObjectQuery{qs: newQuerySet[DataObject](c, dataObjectMeta, Params{
		"instanceName": instanceName,
		"className":    className,
	})}
}

func (q *DataObjectQuery) List(ctx context.Context, params Params, opts ...ListOption) ([]*DataObject, error) {
	return q.qs.list(ctx, params, opts)
}

func (q *DataObjectQuery) Page(ctx context.Context, params Params, opts ...ListOption) (*Page[DataObject], error) {
	return q.qs.page(ctx, params, opts)
}

func (q *DataObjectQuery) All(ctx context.Context, params Params, opts ...ListOption) ([]*DataObject, error) {
	return q.qs.all(ctx, params, opts)
}

func (q *DataObjectQuery) First(ctx context.Context, params Params, opts ...ListOption) (*DataObject, error) {
	return q.qs.first(ctx, params, opts)
}

// Get fetches one object. params must contain "id".
func (q *DataObjectQuery) Get(ctx context.Context, params Params) (*DataObject, error) {
	return q.qs.get(ctx, params)
}

func (q *DataObjectQuery) Create(ctx context.Context, o *DataObject) (*DataObject, error) {
	return q.qs.create(ctx, o)
}

func (q *DataObjectQuery) Update(ctx context.Context, params Params, changes map[string]any) (*DataObject, error) {
	return q.qs.update(ctx, params, changes)
}

// Save creates o, or updates it if it has an id.
func (q *DataObjectQuery) Save(ctx context.Context, o *DataObject) (*DataObject, error) {
	return q.qs.save(ctx, o)
}

func (q *DataObjectQuery) Delete(ctx context.Context, params Params) error {
	return q.qs.delete(ctx, params)
}
