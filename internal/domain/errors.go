// Package domain defines the shared types, sentinel errors, and collaborator
// interfaces used across the trading agent.
package domain

import "errors"

var (
	// ErrMarketNotFound means the targeted market no longer exists, usually
	// because a time-boxed window rolled over. Transient: a retry against the
	// next window may succeed.
	ErrMarketNotFound = errors.New("market not found")
	// ErrMarketClosed means the market stopped accepting orders. Transient
	// for the same reason as ErrMarketNotFound.
	ErrMarketClosed = errors.New("market closed")
	// ErrInsufficientBalance means the account cannot cover the order.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidOrder means the exchange rejected the order parameters.
	ErrInvalidOrder = errors.New("invalid order parameters")
	// ErrRateLimited means the exchange throttled the request.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnauthorized means the request failed authentication.
	ErrUnauthorized = errors.New("unauthorized")
)

// IsTransientOrderErr reports whether an order submission failure is worth
// retrying. Only market-window races (market gone or closed between signal
// detection and execution) qualify; every other rejection is permanent.
func IsTransientOrderErr(err error) bool {
	return errors.Is(err, ErrMarketNotFound) || errors.Is(err, ErrMarketClosed)
}
