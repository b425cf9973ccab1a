package websocket

import "errors"

var (
	// ErrParse marks an inbound frame that is not a JSON object.
	ErrParse = errors.New("malformed frame")
	// ErrUnknownMessageType marks a frame whose type has no handler.
	ErrUnknownMessageType = errors.New("unknown message type")
	// ErrDuplicateSession means a session id was registered twice. Seeing it
	// outside tests is a connect-sequencing bug.
	ErrDuplicateSession = errors.New("duplicate session")
	// ErrInvalidIdentity marks an identification without a usable user id.
	ErrInvalidIdentity = errors.New("invalid identity")
	// ErrSendFailure is returned when a frame cannot be queued on a connection.
	ErrSendFailure = errors.New("send failure")
	// ErrTransport wraps connection-level read/write failures.
	ErrTransport = errors.New("transport error")
	// ErrNotFound is returned for unknown session ids and unknown users.
	ErrNotFound = errors.New("not found")

	ErrClientDisconnected = errors.New("client disconnected")
	// ErrShuttingDown rejects connections and replies once shutdown started.
	ErrShuttingDown = errors.New("shutting down")
)
