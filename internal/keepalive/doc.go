// Package keepalive runs the background loop that keeps both channels
// alive across the venue's idle-disconnect window.
//
// Each tick pings the command channel when it has been idle for at least
// one interval, and always sends the stream keepalive control frame; the
// venue requires it even while subscriptions are active. Failures are
// absorbed up to a threshold; past it the session is degraded.
package keepalive
