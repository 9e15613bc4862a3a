// Package protocol owns the glap wire contract and its parsing primitives.
//
// Ownership boundary:
// - cursor and field primitives (little-endian, length-prefixed text, optionals)
// - the two tagged message spaces (client->server, server->client)
// - encode/decode entry points, one message per buffer
//
// Connection phases and which messages are legal in them live in the
// session subpackage; stream framing lives in frame.
package protocol
