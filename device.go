package syncano

import (
	"context"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func deviceMeta(name, plural, kind string) *Meta {
	return &Meta{
		Name:       name,
		PluralName: plural,
		Endpoints: map[string]Endpoint{
			"list": {
				Path:    "/v1.1/instances/{instanceName}/push_notifications/" + kind + "/devices/",
				Methods: []string{http.MethodGet, http.MethodPost},
			},
			"detail": {
				Path:    "/v1.1/instances/{instanceName}/push_notifications/" + kind + "/devices/{registration_id}/",
				Methods: []string{http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodDelete},
			},
		},
	}
}

var (
	apnsDeviceMeta = deviceMeta("APNSDevice", "APNSDevices", "apns")
	gcmDeviceMeta  = deviceMeta("GCMDevice", "GCMDevices", "gcm")
)

// Device holds the fields shared by push notification devices.
type Device struct {
	InstanceName   string         `json:"-"`
	RegistrationID string         `json:"registration_id"`
	DeviceID       string         `json:"device_id,omitempty"`
	Label          string         `json:"label,omitempty"`
	UserID         *int64         `json:"user,omitempty"`
	IsActive       *bool          `json:"is_active,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Links          map[string]any `json:"links,omitempty"`
	CreatedAt      string         `json:"created_at,omitempty"`
	UpdatedAt      string         `json:"updated_at,omitempty"`
}

func (d *Device) identity() Params {
	return Params{"instanceName": d.InstanceName, "registration_id": d.RegistrationID}
}

func (d *Device) bind(_ *Client, p Params) {
	if d.InstanceName == "" {
		d.InstanceName = p["instanceName"]
	}
}

func (d *Device) persisted() bool {
	return d.CreatedAt != ""
}

// APNSDevice is an iOS device registered for push notifications.
type APNSDevice struct {
	Device
}

// Validate checks the device locally before it is sent. APNS tokens are 64
// hex characters and device ids are UUIDs.
func (d *APNSDevice) Validate() error {
	return validation.ValidateStruct(&d.Device,
		validation.Field(&d.Device.InstanceName, instanceNameRules...),
		validation.Field(&d.Device.RegistrationID, validation.Required, validation.Length(64, 64)),
		validation.Field(&d.Device.DeviceID, validation.Length(36, 0)),
	)
}

// GCMDevice is an Android device registered for push notifications.
type GCMDevice struct {
	Device
}

// Validate checks the device locally before it is sent.
func (d *GCMDevice) Validate() error {
	return validation.ValidateStruct(&d.Device,
		validation.Field(&d.Device.InstanceName, instanceNameRules...),
		validation.Field(&d.Device.RegistrationID, validation.Required),
	)
}

// APNSDeviceQuery gives access to the APNS devices of one instance.
type APNSDeviceQuery struct {
	qs querySet[APNSDevice, *APNSDevice]
}

var (
	_ Listable[APNSDevice]          = (*APNSDeviceQuery)(nil)
	_ Gettable[APNSDevice]          = (*APNSDeviceQuery)(nil)
	_ Creatable[APNSDevice]         = (*APNSDeviceQuery)(nil)
	_ BulkCreatable[APNSDevice]     = (*APNSDeviceQuery)(nil)
	_ Updatable[APNSDevice]         = (*APNSDeviceQuery)(nil)
	_ Deletable                     = (*APNSDeviceQuery)(nil)
	_ GetOrCreatable[APNSDevice]    = (*APNSDeviceQuery)(nil)
	_ UpdateOrCreatable[APNSDevice] = (*APNSDeviceQuery)(nil)
)

// APNSDevices returns the APNS device query set of instanceName.
func (c *Client) APNSDevices(instanceName string) *APNSDeviceQuery {
	return &APNSDeviceQuery{qs: newQuerySet[APNSDevice](c, apnsDeviceMeta, Params{"instanceName": instanceName})}
}

func (q *APNSDeviceQuery) List(ctx context.Context, params Params, opts ...ListOption) ([]*APNSDevice, error) {
	return q.qs.list(ctx, params, opts)
}

func (q *APNSDeviceQuery) Page(ctx context.Context, params Params, opts ...ListOption) (*Page[APNSDevice], error) {
	return q.qs.page(ctx, params, opts)
}

func (q *APNSDeviceQuery) All(ctx context.Context, params Params, opts ...ListOption) ([]*APNSDevice, error) {
	return q.qs.all(ctx, params, opts)
}

func (q *APNSDeviceQuery) First(ctx context.Context, params Params, opts ...ListOption) (*APNSDevice, error) {
	return q.qs.first(ctx, params, opts)
}

// Get fetches one device. params must contain "registration_id".
func (q *APNSDeviceQuery) Get(ctx context.Context, params Params) (*APNSDevice, error) {
	return q.qs.get(ctx, params)
}

func (q *APNSDeviceQuery) Create(ctx context.Context, d *APNSDevice) (*APNSDevice, error) {
	return q.qs.create(ctx, d)
}

func (q *APNSDeviceQuery) BulkCreate(ctx context.Context, ds []*APNSDevice) ([]*APNSDevice, error) {
	return q.qs.bulkCreate(ctx, ds)
}

func (q *APNSDeviceQuery) Update(ctx context.Context, params Params, changes map[string]any) (*APNSDevice, error) {
	return q.qs.update(ctx, params, changes)
}

func (q *APNSDeviceQuery) Delete(ctx context.Context, params Params) error {
	return q.qs.delete(ctx, params)
}

func (q *APNSDeviceQuery) GetOrCreate(ctx context.Context, params Params, defaults map[string]any) (*APNSDevice, bool, error) {
	return q.qs.getOrCreate(ctx, params, defaults)
}

func (q *APNSDeviceQuery) UpdateOrCreate(ctx context.Context, params Params, changes, defaults map[string]any) (*APNSDevice, bool, error) {
	return q.qs.updateOrCreate(ctx, params, changes, defaults)
}

// GCMDeviceQuery gives access to the GCM devices of one instance.
type GCMDeviceQuery struct {
	qs querySet[GCMDevice, *GCMDevice]
}

var (
	_ Listable[GCMDevice]          = (*GCMDeviceQuery)(nil)
	_ Gettable[GCMDevice]          = (*GCMDeviceQuery)(nil)
	_ Creatable[GCMDevice]         = (*GCMDeviceQuery)(nil)
	_ BulkCreatable[GCMDevice]     = (*GCMDeviceQuery)(nil)
	_ Updatable[GCMDevice]         = (*GCMDeviceQuery)(nil)
	_ Deletable                    = (*GCMDeviceQuery)(nil)
	_ GetOrCreatable[GCMDevice]    = (*GCMDeviceQuery)(nil)
	_ UpdateOrCreatable[GCMDevice] = (*GCMDeviceQuery)(nil)
)

// GCMDevices returns the GCM device query set of instanceName.
func (c *Client) GCMDevices(instanceName string) *GCMDeviceQuery {
	return &GCMDeviceQuery{qs: newQuerySet[GCMDevice](c, gcmDeviceMeta, Params{"instanceName": instanceName})}
}

func (q *GCMDeviceQuery) List(ctx context.Context, params Params, opts ...ListOption) ([]*GCMDevice, error) {
	return q.qs.list(ctx, params, opts)
}

func (q *GCMDeviceQuery) Page(ctx context.Context, params Params, opts ...ListOption) (*Page[GCMDevice], error) {
	return q.qs.page(ctx, params, opts)
}

func (q *GCMDeviceQuery) All(ctx context.Context, params Params, opts ...ListOption) ([]*GCMDevice, error) {
	return q.qs.all(ctx, params, opts)
}

func (q *GCMDeviceQuery) First(ctx context.Context, params Params, opts ...ListOption) (*GCMDevice, error) {
	return q.qs.first(ctx, params, opts)
}

// Get fetches one device. params must contain "registration_id".
func (q *GCMDeviceQuery) Get(ctx context.Context, params Params) (*GCMDevice, error) {
	return q.qs.get(ctx, params)
}

func (q *GCMDeviceQuery) Create(ctx context.Context, d *GCMDevice) (*GCMDevice, error) {
	return q.qs.create(ctx, d)
}

func (q *GCMDeviceQuery) BulkCreate(ctx context.Context, ds []*GCMDevice) ([]*GCMDevice, error) {
	return q.qs.bulkCreate(ctx, ds)
}

func (q *GCMDeviceQuery) Update(ctx context.Context, params Params, changes map[string]any) (*GCMDevice, error) {
	return q.qs.update(ctx, params, changes)
}

func (q *GCMDeviceQuery) Delete(ctx context.Context, params Params) error {
	return q.qs.delete(ctx, params)
}

func (q *GCMDeviceQuery) GetOrCreate(ctx context.Context, params Params, defaults map[string]any) (*GCMDevice, bool, error) {
	return q.qs.getOrCreate(ctx, params, defaults)
}

func (q *GCMDeviceQuery) UpdateOrCreate(ctx context.Context, params Params, changes, defaults map[string]any) (*GCMDevice, bool, error) {
	return q.qs.updateOrCreate(ctx, params, changes, defaults)
}
