// Package stream implements the asynchronous push-feed channel.
//
// One socket multiplexes every subscription of a session. The venue echoes
// the subscribed feed name (and symbol, where the feed is per-symbol) in
// each pushed frame, so a background reader routes records through an
// explicit registry keyed by feed name and symbol rather than by request
// order.
// Subscribe returns before any data arrives; data may never arrive if
// there is nothing to report.
package stream
