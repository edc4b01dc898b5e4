package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateActivity = errors.New("activity already recorded")
	ErrUnknownEvent      = errors.New("unknown event name")
	ErrUnknownInterface  = errors.New("log does not match any known contract interface")
	ErrUnknownMarket     = errors.New("no market provisioned for address")
	ErrInvariantViolated = errors.New("matched/unmatched invariant violated")
	ErrLockHeld          = errors.New("lock already held")
)
