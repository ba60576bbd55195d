package broker

import "errors"

// Sentinel errors returned by broker operations. They are wrapped with the
// offending channel, queue, exchange, or binding identifier; callers branch
// with errors.Is.
var (
	ErrNotConnectable    = errors.New("broker is not connectable")
	ErrNotConnected      = errors.New("broker is not connected")
	ErrUnknownChannel    = errors.New("unknown channel")
	ErrUnknownQueue      = errors.New("unknown queue")
	ErrUnknownExchange   = errors.New("unknown exchange")
	ErrUnknownBinding    = errors.New("unknown binding")
	ErrTxAlreadyStarted  = errors.New("transaction already started")
	ErrNoTx              = errors.New("no transaction started")
	ErrNoQueueSelected   = errors.New("no queue selected for receive")
	ErrUnsupportedOption = errors.New("unsupported option")
)
