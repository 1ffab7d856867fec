package syncano

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/syncano/syncano-go/internal/backoff"
)

// PollSession long-polls one channel and dispatches its events to listeners.
//
// A session is created idle by [Channel.Poll], [Client.Poll] or
// [NewPollSession]. Listeners are registered with [PollSession.On] and
// friends, and the loop is started with [PollSession.Start]:
//
//	session := channel.Poll()
//	session.On(syncano.EventMessage, func(ev syncano.ChannelEvent) {
//	    fmt.Println(ev.Payload)
//	})
//	session.OnError(func(err error) { log.Println(err) })
//	if err := session.Start(ctx); err != nil {
//	    return err
//	}
//	defer session.Stop()
//
// Delivery guarantees:
//   - Events are delivered in response order with strictly increasing ids.
//     An id that does not move forward is an ordering violation, which is
//     fatal for the session.
//   - Transient failures (network, timeout, 408, 429, 5xx) are retried with
//     backoff from the same cursor, so nothing is skipped or repeated.
//   - Fatal failures are reported once to the error listeners, after which
//     the session is stopped.
//   - After [PollSession.Stop], the in-flight request is the last one. Its
//     events are still delivered, then the session stops.
//
// Listeners run sequentially on the session's goroutine. A listener that
// blocks delays the next poll. Panics in listeners are recovered and
// logged. Listeners may call Stop.
type PollSession struct {
	requester Requester
	path      string
	pathErr   error
	channel   string
	room      string
	cursor    *Cursor
	backoff   *backoff.Controller
	logger    *slog.Logger

	mu        sync.Mutex
	status    SessionStatus
	err       error
	listeners map[EventName][]func(ChannelEvent)
	onError   []func(error)
	onStart   []func()
	onStop    []func()
	stopCh    chan struct{}
	done      chan struct{}
}

// NewPollSession creates an idle session for instance/channel that sends its
// requests through r. Most callers use [Channel.Poll] instead.
func NewPollSession(r Requester, instanceName, channelName string, opts ...PollOption) *PollSession {
	cfg := defaultPollConfig(nil)
	for _, opt := range opts {
		opt(cfg)
	}
	return newPollSession(r, instanceName, channelName, cfg)
}

func newPollSession(r Requester, instanceName, channelName string, cfg *pollConfig) *PollSession {
	cursor := &Cursor{}
	if cfg.startAfter != nil {
		cursor = NewCursor(*cfg.startAfter)
	}

	path, err := channelMeta.ResolvePath("poll", Params{
		"instanceName": instanceName,
		"name":         channelName,
	})

	return &PollSession{
		requester: r,
		path:      path,
		pathErr:   err,
		channel:   channelName,
		room:      cfg.room,
		cursor:    cursor,
		backoff:   backoff.NewController(cfg.policy, cfg.rnd),
		logger:    cfg.logger.With("channel", channelName, "instance", instanceName),
		status:    StatusIdle,
		listeners: make(map[EventName][]func(ChannelEvent)),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// On registers fn for the named channel event: [EventMessage],
// [EventCreate], [EventUpdate] or [EventDelete]. Listeners for the same name
// run in registration order. Nil listeners are ignored.
//
// Returns [ErrUnknownEvent] for any other name.
func (s *PollSession) On(name EventName, fn func(ChannelEvent)) error {
	if !validEventName(name) {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
	if fn == nil {
		return nil
	}
	s.mu.Lock()
	s.listeners[name] = append(s.listeners[name], fn)
	s.mu.Unlock()
	return nil
}

// OnError registers fn for fatal session errors. It is called at most once
// per session, just before the session stops.
func (s *PollSession) OnError(fn func(error)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.onError = append(s.onError, fn)
	s.mu.Unlock()
}

// OnStart registers fn to run on the session goroutine before the first
// request is issued.
func (s *PollSession) OnStart(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.onStart = append(s.onStart, fn)
	s.mu.Unlock()
}

// OnStop registers fn to run once the session has reached
// [StatusStopped], whatever the reason.
func (s *PollSession) OnStop(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.onStop = append(s.onStop, fn)
	s.mu.Unlock()
}

// Start transitions the session from idle to running and begins polling in
// a background goroutine. The first request is always issued, even if Stop
// is called right after Start.
//
// Cancelling ctx aborts the in-flight request and stops the session without
// an error event; use [PollSession.Stop] for a graceful stop.
//
// Start returns [ErrInvalidState] if the session is not idle. A stopped
// session cannot be restarted.
func (s *PollSession) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.status != StatusIdle {
		status := s.status
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot start a %s session", ErrInvalidState, status)
	}
	s.status = StatusRunning
	s.mu.Unlock()

	go s.run(ctx)
	return nil
}

// Stop asks a running session to finish after its in-flight request. It
// never blocks and never aborts the request. Use [PollSession.Wait] or
// [PollSession.Done] to wait for the session to stop.
//
// Stop is a no-op on idle, stopping and stopped sessions, and is safe to
// call from any goroutine, including from a listener.
func (s *PollSession) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusRunning {
		return
	}
	s.status = StatusStopping
	close(s.stopCh)
}

// Done returns a channel that is closed when the session has stopped and
// all stop listeners have returned.
func (s *PollSession) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session has stopped and returns the fatal error
// that stopped it, if any. Wait on an idle session blocks until it is
// started and stopped.
func (s *PollSession) Wait() error {
	<-s.done
	return s.Err()
}

// Status returns the current lifecycle state.
func (s *PollSession) Status() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Err returns the fatal error that stopped the session, or nil.
func (s *PollSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// LastID returns the id of the last delivered event, or the StartAfter
// position if nothing was delivered yet. ok is false if neither exists.
func (s *PollSession) LastID() (lastID int64, ok bool) {
	return s.cursor.Current()
}

// unboundRequester fails every request. It backs sessions of channels that
// were built by hand instead of fetched through a client.
type unboundRequester struct {
	name string
}

func (u unboundRequester) Request(context.Context, string, string, any) ([]byte, error) {
	return nil, errUnbound(u.name)
}

// Channel returns the name of the polled channel.
func (s *PollSession) Channel() string {
	return s.channel
}

func (s *PollSession) run(ctx context.Context) {
	defer close(s.done)

	s.logger.Debug("poll session started")
	for _, fn := range s.snapshotStart() {
		s.invokeSafe("start", func() { fn() })
	}

	// an unresolvable channel fails before any request is issued
	if s.pathErr != nil {
		s.fail(s.pathErr)
		return
	}

	for {
		events, err := s.fetch(ctx)
		if err == nil {
			s.backoff.Reset()
			err = s.deliver(events)
		}

		if err != nil {
			if ctx.Err() != nil {
				s.finish(nil)
				return
			}
			if !IsTransient(err) {
				s.fail(err)
				return
			}
			if !s.running() {
				s.finish(nil)
				return
			}

			delay := s.backoff.Next()
			lastID, _ := s.cursor.Current()
			s.logger.Warn("poll failed, retrying",
				"error", err.Error(),
				"attempt", s.backoff.Failures(),
				"delay", delay.String(),
				"last_id", lastID,
			)
			if !s.sleep(ctx, delay) {
				s.finish(nil)
				return
			}
			continue
		}

		if !s.running() {
			s.finish(nil)
			return
		}
	}
}

// fetch issues one long-poll request from the current cursor.
func (s *PollSession) fetch(ctx context.Context) ([]ChannelEvent, error) {
	q := url.Values{}
	if lastID, ok := s.cursor.Current(); ok {
		q.Set("last_id", strconv.FormatInt(lastID, 10))
	}
	if s.room != "" {
		q.Set("room", s.room)
	}
	path := s.path
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	body, err := s.requester.Request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return decodeEvents(body)
}

// deliver advances the cursor and dispatches each event in order. It stops
// at the first event that would move the cursor backwards.
func (s *PollSession) deliver(events []ChannelEvent) error {
	for _, ev := range events {
		if err := s.cursor.Advance(ev.ID); err != nil {
			return err
		}

		name := ev.Name()
		if name == "" {
			s.logger.Debug("skipping event with unknown action", "id", ev.ID, "action", string(ev.Action))
			continue
		}

		s.mu.Lock()
		listeners := slices.Clone(s.listeners[name])
		s.mu.Unlock()

		for _, fn := range listeners {
			s.invokeSafe(string(name), func() { fn(ev) })
		}
	}
	return nil
}

// sleep waits for d, returning false if the session was stopped or ctx was
// cancelled first.
func (s *PollSession) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-s.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

func (s *PollSession) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == StatusRunning
}

// fail reports err to the error listeners and stops the session.
func (s *PollSession) fail(err error) {
	s.mu.Lock()
	listeners := slices.Clone(s.onError)
	s.mu.Unlock()

	if len(listeners) == 0 {
		s.logger.Warn("poll session failed", "error", err.Error())
	}
	for _, fn := range listeners {
		s.invokeSafe("error", func() { fn(err) })
	}

	s.finish(err)
}

// finish moves the session to stopped and runs the stop listeners.
func (s *PollSession) finish(err error) {
	s.mu.Lock()
	s.status = StatusStopped
	s.err = err
	listeners := slices.Clone(s.onStop)
	s.mu.Unlock()

	lastID, _ := s.cursor.Current()
	s.logger.Debug("poll session stopped", "last_id", lastID)

	for _, fn := range listeners {
		s.invokeSafe("stop", func() { fn() })
	}
}

func (s *PollSession) snapshotStart() []func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.onStart)
}

// invokeSafe runs a listener with panic recovery. A panic is logged with a
// correlation id and the stack, and does not affect the session.
func (s *PollSession) invokeSafe(event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("listener panicked",
				"correlation_id", uuid.NewString(),
				"event", event,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn()
}
