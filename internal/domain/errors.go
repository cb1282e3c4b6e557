package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnauthorized = errors.New("unauthorized")
	ErrWSDisconnect = errors.New("websocket disconnected")
	ErrLockHeld     = errors.New("lock already held")

	// Feed and book state.
	ErrFeedDesync      = errors.New("feed desynchronized")
	ErrBookUnavailable = errors.New("book unavailable")
	ErrSignalStale     = errors.New("signal stale")

	// Window discovery.
	ErrMarketNotFound = errors.New("market not found")
	ErrMarketNotReady = errors.New("market not open yet")
	ErrSameWindow     = errors.New("same market window still active")

	// Order placement. Both are terminal for the intent that produced them.
	ErrOrderTimeout  = errors.New("order timeout")
	ErrOrderRejected = errors.New("order rejected")
)
