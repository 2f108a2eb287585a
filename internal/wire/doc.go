// Package wire implements the venue's JSON frame format.
//
// Every frame is a single JSON object terminated by a newline. The command
// channel carries Request/Response pairs, the stream channel carries
// subscription control frames outbound and PushRecord frames inbound. A
// frame's shape decides its kind: a "status" field marks a solicited
// Response, a "command" plus "data" pair marks an unsolicited push.
package wire
