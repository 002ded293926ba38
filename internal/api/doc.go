// Package api exposes the device's control surface over HTTP: the
// connectivity status and scan endpoints, credential submission, manual
// retry, the status indicator, a websocket event feed, and the static
// content tree.
//
// Handlers never touch state machine fields directly; every read or
// mutation goes through the machine's message interface, so the
// multi-field status snapshot is always consistent. All request bodies
// are size-capped before parsing and all responses are structured JSON.
package api
