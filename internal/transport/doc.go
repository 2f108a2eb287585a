// Package transport owns the raw sockets the channels talk through.
//
// A Conn is a bidirectional byte stream with read deadlines and an
// idempotent Close. Two carriers exist: plain TCP (optionally TLS) and a
// WebSocket variant where each message holds one frame. A read deadline
// expiring is a normal poll outcome, not a failure; use IsTimeout to tell
// the two apart. Transports never reconnect on their own.
package transport
