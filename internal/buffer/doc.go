// Package buffer provides the per-subscription record store.
//
// A Ring is a fixed-capacity, insertion-ordered buffer of pushed records.
// The stream reader is the only appender; consumers drain or peek. When
// full, the oldest record is evicted to make room (drop-oldest). That
// eviction is the system's only backpressure mechanism: there is no flow
// control back to the venue.
package buffer
