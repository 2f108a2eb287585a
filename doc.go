// Package xapi is a dual-channel client for a JSON-over-TCP trading venue
// session protocol.
//
// A Session owns two sockets to the venue: a command channel carrying
// synchronous request/response pairs, and a stream channel carrying
// subscription control frames out and pushed records back. Login
// authenticates the command channel and yields the stream session id that
// authorizes control frames; a background keepalive loop holds both
// sockets open across the venue's idle-disconnect window.
//
// Pushed records accumulate in per-subscription ring buffers and are
// consumed with Drain. When a buffer fills, the oldest records are
// discarded first.
package xapi
