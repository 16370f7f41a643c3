package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrNotReady      = errors.New("snapshot not ready")
	ErrStaleQuote    = errors.New("quote older than staleness bound")
	ErrTradeInFlight = errors.New("another trade is in flight")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInvalidOrder  = errors.New("invalid order parameters")
	ErrLockHeld      = errors.New("lock already held")
	ErrWSDisconnect  = errors.New("websocket disconnected")
)
