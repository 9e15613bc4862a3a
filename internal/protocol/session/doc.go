// Package session owns the connection state machine of the glap protocol.
//
// Ownership boundary:
// - connection phases (handshaking, connected, closed) and their legal messages
// - client and server halves of the handshake
// - announced-entity bookkeeping on the sending side
// - reconnect backoff and transport security settings
//
// A Client or Server belongs to one connection and is driven by one
// goroutine: each inbound buffer is decoded and validated to completion
// before the next. Any decode or phase failure is fatal for the connection.
package session
