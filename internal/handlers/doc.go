// Package handlers implements the HTTP API: account management, video
// upload and listing, range streaming, deletion, and the websocket
// endpoint for pipeline progress events. All responses are JSON except
// the video byte stream; errors share the {"success":false,"message"}
// shape.
package handlers
