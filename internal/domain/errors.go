package domain

import "errors"

var (
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidFeeRate         = errors.New("invalid fee rate")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrNotYetEligible         = errors.New("not yet eligible")
	ErrOrderNotFound          = errors.New("order not found")
	ErrEmptyDisputeReason     = errors.New("empty dispute reason")
	ErrConflict               = errors.New("conflict")
)
