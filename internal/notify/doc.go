// Package notify pushes video lifecycle events to websocket clients.
//
// Connections are grouped into rooms keyed by the owning user's ID, so
// a user with several open tabs sees progress in all of them. Events are
// fire-and-forget: nothing is queued for users with no live connection.
package notify
