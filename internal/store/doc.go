// Package store keeps the per-channel event logs of the fake Syncano API.
//
// The main components are:
//
//   - [Store]: interface for appending, reading forward and subscribing
//   - [MemoryStore]: in-memory implementation with pub/sub wakeups
//   - [Event]: one log entry, in its wire shape
//
// Long-poll handlers subscribe to a channel, then read forward from their
// cursor with Since. Notifications are only wakeups; the log is the source
// of truth, so a dropped notification never loses an event.
package store
