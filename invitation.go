package syncano

import (
	"context"
	"net/http"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Invitation roles.
const (
	RoleFull  = "full"
	RoleWrite = "write"
	RoleRead  = "read"
)

var invitationMeta = &Meta{
	Name:       "Invitation",
	PluralName: "Invitations",
	Endpoints: map[string]Endpoint{
		"list": {
			Path:    "/v1/instances/{instanceName}/invitations/",
			Methods: []string{http.MethodGet, http.MethodPost},
		},
		"detail": {
			Path:    "/v1/instances/{instanceName}/invitations/{id}/",
			Methods: []string{http.MethodGet, http.MethodDelete},
		},
		"resend": {
			Path:    "/v1/instances/{instanceName}/invitations/{id}/resend/",
			Methods: []string{http.MethodPost},
		},
	},
}

// Invitation asks a person, by email, to join an instance with a role.
type Invitation struct {
	InstanceName string         `json:"-"`
	ID           int64          `json:"id,omitempty"`
	Email        string         `json:"email"`
	Role         string         `json:"role"`
	Key          string         `json:"key,omitempty"`
	Inviter      string         `json:"inviter,omitempty"`
	State        string         `json:"state,omitempty"`
	Links        map[string]any `json:"links,omitempty"`
	CreatedAt    string         `json:"created_at,omitempty"`
	UpdatedAt    string         `json:"updated_at,omitempty"`

	client *Client
}

func (inv *Invitation) identity() Params {
	p := Params{"instanceName": inv.InstanceName}
	if inv.ID != 0 {
		p["id"] = strconv.FormatInt(inv.ID, 10)
	}
	return p
}

func (inv *Invitation) bind(c *Client, p Params) {
	inv.client = c
	if inv.InstanceName == "" {
		inv.InstanceName = p["instanceName"]
	}
}

func (inv *Invitation) persisted() bool {
	return inv.ID != 0
}

// Validate checks the invitation locally before it is sent.
func (inv *Invitation) Validate() error {
	return validation.ValidateStruct(inv,
		validation.Field(&inv.InstanceName, instanceNameRules...),
		validation.Field(&inv.Email, validation.Required, is.Email),
		validation.Field(&inv.Role, validation.Required, validation.In(RoleFull, RoleWrite, RoleRead)),
	)
}

// Resend sends the invitation email again.
func (inv *Invitation) Resend(ctx context.Context) error {
	if inv.client == nil {
		return errUnbound(invitationMeta.Name)
	}
	return inv.client.Invitations(inv.InstanceName).Resend(ctx, Params{"id": strconv.FormatInt(inv.ID, 10)})
}

// InvitationQuery gives access to the invitations of one instance.
// Invitations cannot be updated; delete and recreate them instead.
type InvitationQuery struct {
	qs querySet[Invitation, *Invitation]
}

var (
	_ Listable[Invitation]       = (*InvitationQuery)(nil)
	_ Gettable[Invitation]       = (*InvitationQuery)(nil)
	_ Creatable[Invitation]      = (*InvitationQuery)(nil)
	_ Deletable                  = (*InvitationQuery)(nil)
	_ GetOrCreatable[Invitation] = (*InvitationQuery)(nil)
)

// Invitations returns the invitation query set of instanceName.
func (c *Client) Invitations(instanceName string) *InvitationQuery {
	return &InvitationQuery{qs: newQuerySet[Invitation](c, invitationMeta, Params{"instanceName": instanceName})}
}

func (q *InvitationQuery) List(ctx context.Context, params Params, opts ...ListOption) ([]*Invitation, error) {
	return q.qs.list(ctx, params, opts)
}

func (q *InvitationQuery) Page(ctx context.Context, params Params, opts ...ListOption) (*Page[Invitation], error) {
	return q.qs.page(ctx, params, opts)
}

func (q *InvitationQuery) All(ctx context.Context, params Params, opts ...ListOption) ([]*Invitation, error) {
	return q.qs.all(ctx, params, opts)
}

func (q *InvitationQuery) First(ctx context.Context, params Params, opts ...ListOption) (*Invitation, error) {
	return q.qs.first(ctx, params, opts)
}

// Get fetches one invitation. params must contain "id".
func (q *InvitationQuery) Get(ctx context.Context, params Params) (*Invitation, error) {
	return q.qs.get(ctx, params)
}

func (q *InvitationQuery) Create(ctx context.Context, inv *Invitation) (*Invitation, error) {
	return q.qs.create(ctx, inv)
}

func (q *InvitationQuery) Delete(ctx context.Context, params Params) error {
	return q.qs.delete(ctx, params)
}

// GetOrCreate looks the invitation up by id and creates it from defaults,
// which must then carry email and role, if it does not exist.
func (q *InvitationQuery) GetOrCreate(ctx context.Context, params Params, defaults map[string]any) (*Invitation, bool, error) {
	return q.qs.getOrCreate(ctx, params, defaults)
}

// Resend sends the invitation identified by params["id"] again.
func (q *InvitationQuery) Resend(ctx context.Context, params Params) error {
	path, err := q.qs.path("resend", q.qs.merged(params), http.MethodPost)
	if err != nil {
		return err
	}
	_, err = q.qs.client.Request(ctx, http.MethodPost, path, nil)
	return err
}
