package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrDuplicateIdentity   = errors.New("ledger entry already exists")
	ErrUnresolvableAccount = errors.New("movement cannot be attributed to a card")
	ErrProviderFetch       = errors.New("provider fetch failed")
	ErrValidation          = errors.New("invalid movement")
	ErrVersionConflict     = errors.New("optimistic lock conflict")
	ErrUnknownStatus       = errors.New("unmapped provider status")
)
