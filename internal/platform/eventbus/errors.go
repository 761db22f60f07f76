package eventbus

import "errors"

var (
	// ErrClosed is returned when operations are attempted on a closed bus.
	ErrClosed = errors.New("eventbus: closed")
	// ErrEnded is returned once a connection has exhausted its reconnect
	// attempts. The bus must be recreated to recover.
	ErrEnded = errors.New("eventbus: connection ended, recreate the bus to recover")
	// ErrNotConnected is returned when an operation needs a live broker link
	// and none is available yet.
	ErrNotConnected = errors.New("eventbus: not connected")
)
