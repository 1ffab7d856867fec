// Package fakeapi is an in-process Syncano API for tests and local demos.
//
// It serves the subset of the API the SDK talks to:
//
//   - Instances: /v1.1/instances/
//   - Channels with poll, publish and history: /v1.1/instances/{instance}/channels/
//   - Data objects, emitting channel events: /v1.1/instances/{instance}/classes/{class}/objects/
//   - APNS and GCM devices: /v1.1/instances/{instance}/push_notifications/{apns|gcm}/devices/
//   - Invitations with resend: /v1/instances/{instance}/invitations/
//
// Channel events live in an [store.Store]. Long-poll requests wait up to
// the poll window for a new event and answer 204 when none arrives.
// [Server.FailPolls] injects poll failures for retry tests.
//
// State is kept in memory and lost when the server is dropped.
package fakeapi
