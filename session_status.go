package syncano

// SessionStatus is the lifecycle state of a [PollSession].
//
// A session moves strictly forward: idle → running → stopping → stopped.
// A fatal error or context cancellation moves running straight to stopped.
type SessionStatus string

const (
	// StatusIdle is the state of a session that has not been started.
	StatusIdle SessionStatus = "idle"

	// StatusRunning means the poll loop is issuing requests.
	StatusRunning SessionStatus = "running"

	// StatusStopping means Stop was called; the in-flight request, if any,
	// is the last one processed.
	StatusStopping SessionStatus = "stopping"

	// StatusStopped is terminal. No further events are dispatched.
	StatusStopped SessionStatus = "stopped"
)

// String returns the string representation of the status.
func (s SessionStatus) String() string {
	return string(s)
}
