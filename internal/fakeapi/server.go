package fakeapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"

	"github.com/syncano/syncano-go/internal/store"
)

const (
	// DefaultPollWindow is how long a poll request waits for an event
	// before answering 204 No Content.
	DefaultPollWindow = 30 * time.Second

	defaultPageSize = 100
	maxBodySize     = 1 << 20
	shutdownTimeout = 5 * time.Second
)

// Server is an in-memory Syncano API.
//
// Server implements http.Handler; mount it on an httptest.Server in tests or
// run it with [Server.Start].
type Server struct {
	mu        sync.Mutex
	instances *collection
	state     map[string]*instanceState

	events     store.Store
	apiKey     string
	pollWindow time.Duration
	logger     *slog.Logger
	now        func() time.Time

	faultMu    sync.Mutex
	failPolls  int
	failStatus int

	pollRequests atomic.Int64

	router     *httprouter.Router
	httpServer *http.Server
}

type instanceState struct {
	channels    *collection
	classes     map[string]*collection
	devices     map[string]*collection
	invitations *collection
}

func newInstanceState() *instanceState {
	return &instanceState{
		channels: newCollection(),
		classes:  make(map[string]*collection),
		devices: map[string]*collection{
			"apns": newCollection(),
			"gcm":  newCollection(),
		},
		invitations: newCollection(),
	}
}

// Option configures a [Server].
type Option func(*Server)

// WithAPIKey makes the server reject requests that carry neither
// X-API-KEY nor X-USER-KEY equal to key. Without it any key is accepted.
func WithAPIKey(key string) Option {
	return func(s *Server) {
		s.apiKey = key
	}
}

// WithPollWindow sets how long poll requests wait for an event.
func WithPollWindow(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.pollWindow = d
		}
	}
}

// WithStore replaces the in-memory event log.
func WithStore(st store.Store) Option {
	return func(s *Server) {
		if st != nil {
			s.events = st
		}
	}
}

// WithLogger sets the server's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates an empty fake API.
func New(opts ...Option) *Server {
	s := &Server{
		instances:  newCollection(),
		state:      make(map[string]*instanceState),
		events:     store.NewMemoryStore(),
		pollWindow: DefaultPollWindow,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *httprouter.Router {
	router := httprouter.New()

	instances := &resource{
		name:    "Instance",
		key:     "name",
		idParam: "instance",
		collection: func(s *Server, _ httprouter.Params, _ bool) (*collection, bool) {
			return s.instances, true
		},
		validate: requireFields("name"),
		afterCreate: func(s *Server, _ httprouter.Params, obj object) {
			s.state[obj["name"].(string)] = newInstanceState()
		},
		afterDelete: func(s *Server, _ httprouter.Params, obj object) {
			name := obj["name"].(string)
			if st, ok := s.state[name]; ok {
				for _, ch := range st.channels.list() {
					s.events.Drop(channelKey(name, ch["name"].(string)))
				}
			}
			delete(s.state, name)
		},
	}
	s.register(router, "/v1.1/instances/", "/v1.1/instances/:instance/", instances)

	channels := &resource{
		name:       "Channel",
		key:        "name",
		idParam:    "name",
		collection: instanceCollection(func(st *instanceState, _ httprouter.Params, _ bool) *collection { return st.channels }),
		validate:   validateChannel,
		afterDelete: func(s *Server, ps httprouter.Params, obj object) {
			s.events.Drop(channelKey(ps.ByName("instance"), obj["name"].(string)))
		},
	}
	s.register(router, "/v1.1/instances/:instance/channels/", "/v1.1/instances/:instance/channels/:name/", channels)
	router.GET("/v1.1/instances/:instance/channels/:name/poll/", s.handlePoll)
	router.POST("/v1.1/instances/:instance/channels/:name/publish/", s.handlePublish)
	router.GET("/v1.1/instances/:instance/channels/:name/history/", s.handleHistory)

	objects := &resource{
		name:    "DataObject",
		key:     "id",
		idParam: "id",
		autoID:  true,
		collection: instanceCollection(func(st *instanceState, ps httprouter.Params, create bool) *collection {
			class := ps.ByName("class")
			coll, ok := st.classes[class]
			if !ok && create {
				coll = newCollection()
				st.classes[class] = coll
			}
			return coll
		}),
		validate: func(obj object) map[string][]string {
			obj["revision"] = int64(1)
			return nil
		},
		afterCreate: emitObjectEvent("create"),
		afterUpdate: emitObjectEvent("update"),
		afterDelete: emitObjectEvent("delete"),
	}
	s.register(router, "/v1.1/instances/:instance/classes/:class/objects/", "/v1.1/instances/:instance/classes/:class/objects/:id/", objects)

	devices := &resource{
		name:    "Device",
		key:     "registration_id",
		idParam: "registration_id",
		collection: instanceCollection(func(st *instanceState, ps httprouter.Params, _ bool) *collection {
			return st.devices[ps.ByName("kind")]
		}),
		validate: func(obj object) map[string][]string {
			fields := requireFields("registration_id")(obj)
			if _, ok := obj["is_active"]; !ok {
				obj["is_active"] = true
			}
			return fields
		},
	}
	s.register(router, "/v1.1/instances/:instance/push_notifications/:kind/devices/", "/v1.1/instances/:instance/push_notifications/:kind/devices/:registration_id/", devices)

	invitations := &resource{
		name:       "Invitation",
		key:        "id",
		idParam:    "id",
		autoID:     true,
		collection: instanceCollection(func(st *instanceState, _ httprouter.Params, _ bool) *collection { return st.invitations }),
		validate: func(obj object) map[string][]string {
			fields := requireFields("email", "role")(obj)
			obj["key"] = uuid.NewString()
			obj["state"] = "new"
			return fields
		},
	}
	router.GET("/v1/instances/:instance/invitations/", s.list(invitations))
	router.POST("/v1/instances/:instance/invitations/", s.create(invitations))
	router.GET("/v1/instances/:instance/invitations/:id/", s.detail(invitations))
	router.DELETE("/v1/instances/:instance/invitations/:id/", s.remove(invitations))
	router.POST("/v1/instances/:instance/invitations/:id/resend/", s.handleResend(invitations))

	return router
}

// register mounts the CRUD routes of res.
func (s *Server) register(router *httprouter.Router, listPath, detailPath string, res *resource) {
	router.GET(listPath, s.list(res))
	router.POST(listPath, s.create(res))
	router.GET(detailPath, s.detail(res))
	router.PUT(detailPath, s.update(res))
	router.PATCH(detailPath, s.update(res))
	router.DELETE(detailPath, s.remove(res))
}

// instanceCollection adapts a per-instance collection picker to
// resource.collection.
func instanceCollection(pick func(st *instanceState, ps httprouter.Params, create bool) *collection) func(*Server, httprouter.Params, bool) (*collection, bool) {
	return func(s *Server, ps httprouter.Params, create bool) (*collection, bool) {
		st, ok := s.state[ps.ByName("instance")]
		if !ok {
			return nil, false
		}
		coll := pick(st, ps, create)
		return coll, coll != nil
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.apiKey != "" && r.Header.Get("X-API-KEY") != s.apiKey && r.Header.Get("X-USER-KEY") != s.apiKey {
		writeDetail(w, http.StatusForbidden, "Authentication credentials were not provided.")
		return
	}
	s.router.ServeHTTP(w, r)
}

// Start serves the API on addr in a background goroutine until ctx is
// cancelled, then shuts down gracefully. It returns the bound address,
// which differs from addr when addr uses port 0.
func (s *Server) Start(ctx context.Context, addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind to %s: %w", addr, err)
	}

	s.httpServer = &http.Server{
		Handler: s,
		// request contexts end with ctx, so long-polls return on shutdown
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return ln.Addr(), nil
}

// AddInstance creates an instance directly, bypassing HTTP.
func (s *Server) AddInstance(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := timestamp(s.now())
	s.instances.put(name, object{"name": name, "created_at": now, "updated_at": now})
	if _, ok := s.state[name]; !ok {
		s.state[name] = newInstanceState()
	}
}

// AddChannel creates a channel of the given type in an existing instance.
func (s *Server) AddChannel(instance, name, channelType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.state[instance]
	if !ok {
		return fmt.Errorf("instance %q does not exist", instance)
	}
	obj := object{"name": name, "type": channelType}
	if fields := validateChannel(obj); len(fields) > 0 {
		return fmt.Errorf("invalid channel: %v", fields)
	}
	now := timestamp(s.now())
	obj["created_at"] = now
	obj["updated_at"] = now
	st.channels.put(name, obj)
	return nil
}

// Emit appends an event to a channel directly, bypassing HTTP, and returns
// it with its assigned id.
func (s *Server) Emit(instance, channel string, ev store.Event) store.Event {
	return s.events.Append(channelKey(instance, channel), ev)
}

// FailPolls makes the next n poll requests fail with status.
func (s *Server) FailPolls(n, status int) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	s.failPolls = n
	s.failStatus = status
}

// PollRequests returns the number of poll requests received so far,
// including failed ones.
func (s *Server) PollRequests() int64 {
	return s.pollRequests.Load()
}

func (s *Server) takePollFault() (int, bool) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	if s.failPolls <= 0 {
		return 0, false
	}
	s.failPolls--
	return s.failStatus, true
}

// channelExists reports whether instance has channel and returns its type.
func (s *Server) channelExists(instance, name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.state[instance]
	if !ok {
		return "", false
	}
	obj, ok := st.channels.get(name)
	if !ok {
		return "", false
	}
	typ, _ := obj["type"].(string)
	return typ, true
}

func channelKey(instance, channel string) string {
	return instance + "/" + channel
}

func validateChannel(obj object) map[string][]string {
	fields := requireFields("name")(obj)
	typ, _ := obj["type"].(string)
	switch typ {
	case "":
		obj["type"] = "default"
	case "default", "separate_rooms":
	default:
		fields["type"] = []string{fmt.Sprintf("%q is not a valid choice.", typ)}
	}
	for _, key := range []string{"group_permissions", "other_permissions"} {
		if _, ok := obj[key]; !ok {
			obj[key] = "none"
		}
	}
	if _, ok := obj["custom_publish"]; !ok {
		obj["custom_publish"] = false
	}
	return fields
}

// requireFields returns a validator reporting missing or empty fields.
func requireFields(keys ...string) func(object) map[string][]string {
	return func(obj object) map[string][]string {
		fields := make(map[string][]string)
		for _, key := range keys {
			if v, ok := obj[key]; !ok || v == nil || v == "" {
				fields[key] = []string{"This field is required."}
			}
		}
		return fields
	}
}

func paginate(r *http.Request, objects []object) map[string]any {
	q := r.URL.Query()
	size := defaultPageSize
	if n, err := strconv.Atoi(q.Get("page_size")); err == nil && n > 0 {
		size = n
	}
	offset, _ := strconv.Atoi(q.Get("offset"))
	if offset < 0 {
		offset = 0
	}
	if q.Get("ordering") == "desc" {
		for i, j := 0, len(objects)-1; i < j; i, j = i+1, j-1 {
			objects[i], objects[j] = objects[j], objects[i]
		}
	}

	link := func(off int) any {
		if off < 0 || off >= len(objects) {
			return nil
		}
		lq := r.URL.Query()
		lq.Set("offset", strconv.Itoa(off))
		return r.URL.Path + "?" + lq.Encode()
	}

	end := min(offset+size, len(objects))
	page := []object{}
	if offset < len(objects) {
		page = objects[offset:end]
	}
	var prev any
	if offset > 0 {
		prev = link(max(offset-size, 0))
	}
	return map[string]any{
		"objects": page,
		"next":    link(end),
		"prev":    prev,
	}
}

func decodeObject(r *http.Request) (object, error) {
	obj := make(object)
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if len(body) == 0 {
		return obj, nil
	}
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("JSON parse error - %v", err)
	}
	return obj, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeNotFound(w http.ResponseWriter) {
	writeDetail(w, http.StatusNotFound, "Not found.")
}
