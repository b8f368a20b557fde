package service

import "errors"

var (
	ErrPoolNotFound     = errors.New("pool not found")
	ErrPledgeNotFound   = errors.New("pledge not found")
	ErrForbidden        = errors.New("forbidden")
	ErrPoolClosed       = errors.New("pool is not open")
	ErrPoolExpired      = errors.New("pool deadline has passed")
	ErrPoolLocked       = errors.New("pool already locked")
	ErrPoolNotTerminal  = errors.New("pool is not in a terminal status")
	ErrAlreadyCancelled = errors.New("pledge already cancelled")
	ErrQuantityInvalid  = errors.New("quantity must be > 0")
	ErrTargetInvalid    = errors.New("target quantity must be > 0")
	ErrDeadlineInvalid  = errors.New("deadline must be in the future")
	ErrPriceInvalid     = errors.New("unit price must be >= 0")
)
