package syncano

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

// bulkCreateConcurrency bounds the number of concurrent create requests
// issued by BulkCreate.
const bulkCreateConcurrency = 4

// Capability interfaces implemented by the model query types. Each query
// type implements only what the API allows for that model, for example
// invitations cannot be updated and devices are never listed in pages of
// another model.
type (
	Listable[T any] interface {
		List(ctx context.Context, params Params, opts ...ListOption) ([]*T, error)
		Page(ctx context.Context, params Params, opts ...ListOption) (*Page[T], error)
		All(ctx context.Context, params Params, opts ...ListOption) ([]*T, error)
		First(ctx context.Context, params Params, opts ...ListOption) (*T, error)
	}

	Gettable[T any] interface {
		Get(ctx context.Context, params Params) (*T, error)
	}

	Creatable[T any] interface {
		Create(ctx context.Context, obj *T) (*T, error)
	}

	BulkCreatable[T any] interface {
		BulkCreate(ctx context.Context, objs []*T) ([]*T, error)
	}

	Updatable[T any] interface {
		Update(ctx context.Context, params Params, changes map[string]any) (*T, error)
	}

	Deletable interface {
		Delete(ctx context.Context, params Params) error
	}

	GetOrCreatable[T any] interface {
		GetOrCreate(ctx context.Context, params Params, defaults map[string]any) (obj *T, created bool, err error)
	}

	UpdateOrCreatable[T any] interface {
		UpdateOrCreate(ctx context.Context, params Params, changes, defaults map[string]any) (obj *T, created bool, err error)
	}
)

// Page is one page of a list response.
type Page[T any] struct {
	Objects []*T
	// Next and Prev are API paths of the neighbouring pages, empty at the ends.
	Next string
	Prev string
}

// Order is the sort direction of list results.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// ListOption adjusts the query string of list requests.
type ListOption func(url.Values)

// PageSize limits the number of objects per page.
func PageSize(n int) ListOption {
	return func(q url.Values) {
		if n > 0 {
			q.Set("page_size", strconv.Itoa(n))
		}
	}
}

// Ordering sorts results by creation, ascending or descending.
func Ordering(o Order) ListOption {
	return func(q url.Values) {
		if o == OrderAsc || o == OrderDesc {
			q.Set("ordering", string(o))
		}
	}
}

// QueryParam sets an arbitrary query parameter, such as a data object
// "query" filter or a history "room".
func QueryParam(key, value string) ListOption {
	return func(q url.Values) {
		q.Set(key, value)
	}
}

// model is implemented by pointers to the API model structs.
type model interface {
	// identity returns the placeholders that locate this object.
	identity() Params
	// bind attaches the client and the collection placeholders after decoding.
	bind(c *Client, p Params)
	// persisted reports whether the object came from the API.
	persisted() bool
	Validate() error
}

// querySet implements the operations shared by all model query types. The
// exported query types pick the subset their model supports.
type querySet[T any, PT interface {
	*T
	model
}] struct {
	client *Client
	meta   *Meta
	params Params
}

func newQuerySet[T any, PT interface {
	*T
	model
}](c *Client, meta *Meta, params Params) querySet[T, PT] {
	return querySet[T, PT]{client: c, meta: meta, params: params}
}

// merged overlays call params on the query set's bound params. Empty values
// do not override bound ones.
func (qs querySet[T, PT]) merged(params Params) Params {
	p := qs.params.clone()
	for k, v := range params {
		if v != "" || p[k] == "" {
			p[k] = v
		}
	}
	return p
}

func (qs querySet[T, PT]) path(endpoint string, params Params, method string) (string, error) {
	ep, err := qs.meta.Endpoint(endpoint)
	if err != nil {
		return "", err
	}
	if !ep.Allows(method) {
		return "", fmt.Errorf("%s %s endpoint does not allow %s", qs.meta.Name, endpoint, method)
	}
	return qs.meta.ResolvePath(endpoint, params)
}

func (qs querySet[T, PT]) decode(body []byte, params Params) (*T, error) {
	obj := PT(new(T))
	if err := json.Unmarshal(body, obj); err != nil {
		return nil, fmt.Errorf("decoding %s: %w: %v", qs.meta.Name, ErrMalformedResponse, err)
	}
	obj.bind(qs.client, params)
	return (*T)(obj), nil
}

type rawPage struct {
	Objects []json.RawMessage `json:"objects"`
	Next    *string           `json:"next"`
	Prev    *string           `json:"prev"`
}

func (qs querySet[T, PT]) page(ctx context.Context, params Params, opts []ListOption) (*Page[T], error) {
	p := qs.merged(params)
	path, err := qs.path("list", p, http.MethodGet)
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
	return qs.fetchPage(ctx, path, p)
}

func (qs querySet[T, PT]) fetchPage(ctx context.Context, path string, p Params) (*Page[T], error) {
	body, err := qs.client.Request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var raw rawPage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decoding %s list: %w: %v", qs.meta.PluralName, ErrMalformedResponse, err)
	}

	page := &Page[T]{Objects: make([]*T, 0, len(raw.Objects))}
	if raw.Next != nil {
		page.Next = *raw.Next
	}
	if raw.Prev != nil {
		page.Prev = *raw.Prev
	}
	for _, r := range raw.Objects {
		obj, err := qs.decode(r, p)
		if err != nil {
			return nil, err
		}
		page.Objects = append(page.Objects, obj)
	}
	return page, nil
}

func (qs querySet[T, PT]) list(ctx context.Context, params Params, opts []ListOption) ([]*T, error) {
	page, err := qs.page(ctx, params, opts)
	if err != nil {
		return nil, err
	}
	return page.Objects, nil
}

// all follows next links until the last page.
func (qs querySet[T, PT]) all(ctx context.Context, params Params, opts []ListOption) ([]*T, error) {
	page, err := qs.page(ctx, params, opts)
	if err != nil {
		return nil, err
	}
	objects := page.Objects
	p := qs.merged(params)
	for page.Next != "" {
		page, err = qs.fetchPage(ctx, page.Next, p)
		if err != nil {
			return nil, err
		}
		objects = append(objects, page.Objects...)
	}
	return objects, nil
}

func (qs querySet[T, PT]) first(ctx context.Context, params Params, opts []ListOption) (*T, error) {
	objects, err := qs.list(ctx, params, append(slices.Clip(opts), PageSize(1)))
	if err != nil {
		return nil, err
	}
	if len(objects) == 0 {
		return nil, fmt.Errorf("%w: no %s matched", ErrNotFound, qs.meta.PluralName)
	}
	return objects[0], nil
}

func (qs querySet[T, PT]) get(ctx context.Context, params Params) (*T, error) {
	p := qs.merged(params)
	path, err := qs.path("detail", p, http.MethodGet)
	if err != nil {
		return nil, err
	}
	body, err := qs.client.Request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return qs.decode(body, p)
}

func (qs querySet[T, PT]) validate(obj PT) error {
	if err := obj.Validate(); err != nil {
		return &ValidationError{Model: qs.meta.Name, Cause: err}
	}
	return nil
}

func (qs querySet[T, PT]) create(ctx context.Context, obj *T) (*T, error) {
	if obj == nil {
		return nil, fmt.Errorf("cannot create a nil %s", qs.meta.Name)
	}
	pobj := PT(obj)
	p := qs.merged(pobj.identity())
	pobj.bind(qs.client, p)
	if err := qs.validate(pobj); err != nil {
		return nil, err
	}

	path, err := qs.path("list", p, http.MethodPost)
	if err != nil {
		return nil, err
	}
	body, err := qs.client.Request(ctx, http.MethodPost, path, pobj)
	if err != nil {
		return nil, err
	}
	return qs.decode(body, p)
}

// createFields creates an object from identity params plus extra fields,
// validating the combination before sending it.
func (qs querySet[T, PT]) createFields(ctx context.Context, params Params, fields map[string]any) (*T, error) {
	p := qs.merged(params)
	collection := qs.meta.placeholders("list")

	payload := make(map[string]any, len(p)+len(fields))
	for k, v := range p {
		// ids are assigned by the server
		if !collection[k] && k != "id" {
			payload[k] = v
		}
	}
	for k, v := range fields {
		payload[k] = v
	}

	// decode into the model so local validation sees the same object the
	// server will
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", qs.meta.Name, err)
	}
	probe, err := qs.decode(raw, p)
	if err != nil {
		return nil, err
	}
	if err := qs.validate(PT(probe)); err != nil {
		return nil, err
	}

	path, err := qs.path("list", p, http.MethodPost)
	if err != nil {
		return nil, err
	}
	body, err := qs.client.Request(ctx, http.MethodPost, path, payload)
	if err != nil {
		return nil, err
	}
	return qs.decode(body, p)
}

func (qs querySet[T, PT]) update(ctx context.Context, params Params, changes map[string]any) (*T, error) {
	p := qs.merged(params)
	path, err := qs.path("detail", p, http.MethodPatch)
	if err != nil {
		return nil, err
	}
	body, err := qs.client.Request(ctx, http.MethodPatch, path, changes)
	if err != nil {
		return nil, err
	}
	return qs.decode(body, p)
}

// save creates obj if it did not come from the API, and otherwise sends all
// of its fields as a PATCH.
func (qs querySet[T, PT]) save(ctx context.Context, obj *T) (*T, error) {
	pobj := PT(obj)
	if !pobj.persisted() {
		return qs.create(ctx, obj)
	}
	p := qs.merged(pobj.identity())
	if err := qs.validate(pobj); err != nil {
		return nil, err
	}
	path, err := qs.path("detail", p, http.MethodPatch)
	if err != nil {
		return nil, err
	}
	body, err := qs.client.Request(ctx, http.MethodPatch, path, pobj)
	if err != nil {
		return nil, err
	}
	return qs.decode(body, p)
}

func (qs querySet[T, PT]) delete(ctx context.Context, params Params) error {
	path, err := qs.path("detail", qs.merged(params), http.MethodDelete)
	if err != nil {
		return err
	}
	_, err = qs.client.Request(ctx, http.MethodDelete, path, nil)
	return err
}

func (qs querySet[T, PT]) getOrCreate(ctx context.Context, params Params, defaults map[string]any) (*T, bool, error) {
	obj, err := qs.get(ctx, params)
	if err == nil {
		return obj, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	obj, err = qs.createFields(ctx, params, defaults)
	if err != nil {
		return nil, false, err
	}
	return obj, true, nil
}

// updateOrCreate applies changes to an existing object, or creates one
// from params and defaults if it does not exist. changes are not applied to
// a newly created object.
func (qs querySet[T, PT]) updateOrCreate(ctx context.Context, params Params, changes, defaults map[string]any) (*T, bool, error) {
	obj, err := qs.update(ctx, params, changes)
	if err == nil {
		return obj, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	obj, err = qs.createFields(ctx, params, defaults)
	if err != nil {
		return nil, false, err
	}
	return obj, true, nil
}

// bulkCreate creates objs concurrently. Results keep the input order. The
// first failure cancels the remaining creates and is returned.
func (qs querySet[T, PT]) bulkCreate(ctx context.Context, objs []*T) ([]*T, error) {
	for i, obj := range objs {
		if obj == nil {
			return nil, fmt.Errorf("%s %d is nil", qs.meta.Name, i)
		}
		pobj := PT(obj)
		pobj.bind(qs.client, qs.merged(pobj.identity()))
		if err := qs.validate(pobj); err != nil {
			return nil, fmt.Errorf("%s %d: %w", qs.meta.Name, i, err)
		}
	}

	results := make([]*T, len(objs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkCreateConcurrency)
	for i, obj := range objs {
		i, obj := i, obj
		g.Go(func() error {
			created, err := qs.create(gctx, obj)
			if err != nil {
				return fmt.Errorf("%s %d: %w", qs.meta.Name, i, err)
			}
			results[i] = created
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// errUnbound is returned by model methods on objects that were not obtained
// through a client.
func errUnbound(name string) error {
	return fmt.Errorf("%s is not bound to a client; obtain it through a query or pass it to Save", strings.ToLower(name))
}
