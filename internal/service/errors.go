package service

import "errors"

var (
	ErrMissingAccountName       = errors.New("missing new account name")
	ErrInvalidUsername          = errors.New("invalid username")
	ErrUsernameTaken            = errors.New("username is already taken")
	ErrNoPendingClaimedAccounts = errors.New("no pending claimed accounts")
	ErrInsufficientMana         = errors.New("insufficient mana")
	ErrBelowMinimumRC           = errors.New("resource credits below the minimum threshold")
	ErrMissingCode              = errors.New("missing gift code")
	ErrInvalidGiftCode          = errors.New("invalid gift code")
	ErrBroadcast                = errors.New("broadcast failed")
)
