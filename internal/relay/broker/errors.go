package broker

import "errors"

var (
	// ErrUnderStopCondition - returns in case if Broker is under stop condition
	// and will not accept any new connections or messages, so you should close such connection by your own.
	ErrUnderStopCondition = errors.New("broker.Broker: under stop condition")

	// ErrBacklogFull - returns in case if too many accepted connections are waiting for the broadcast loop.
	// The connection is not kept, close it by your own.
	ErrBacklogFull = errors.New("broker.Broker: backlog of pending connections is full")
)
