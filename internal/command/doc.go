// Package command implements the synchronous request/response channel.
//
// The venue allows exactly one outstanding request per connection, so
// Execute holds a mutex across the full send-through-receive round trip;
// concurrent callers queue on it. A timed-out request leaves the channel
// desynchronized: a late reply could pair with the wrong call, so every
// Execute after a timeout fails fast until the session logs in again.
package command
