// Package testserver runs an in-process fake venue speaking the
// newline-delimited JSON protocol on separate command and stream
// listeners, over loopback TCP or WebSocket endpoints. Tests drive it
// to exercise login, request round trips, subscription control frames,
// and pushed stream records without a network dependency.
package testserver
