// Package protocol defines the messages exchanged with the cruxenv daemon.
//
// Every message is a JSON envelope carrying a protocol version, a command,
// and a command-specific payload. On the wire each envelope is one line
// terminated by a newline. A connection carries exactly one request and one
// response.
package protocol
