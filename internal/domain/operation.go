package domain

import "fmt"

// OperationKind is the closed set of canonical movement categories. Both
// providers' status vocabularies collapse into this one set; everything
// that sums balances switches on it and nothing else.
type OperationKind string

const (
	OperationApproved        OperationKind = "approved"
	OperationRejected        OperationKind = "rejected"
	OperationReversed        OperationKind = "reversed"
	OperationRefund          OperationKind = "refund"
	OperationPending         OperationKind = "pending"
	OperationCancelled       OperationKind = "cancelled"
	OperationBlocked         OperationKind = "blocked"
	OperationDeposit         OperationKind = "deposit"
	OperationBalanceOverride OperationKind = "balance_override"
	OperationWithdrawal      OperationKind = "withdrawal"
)

// ProviderStatus is a movement status after the provider clients have
// normalized their raw vocabularies (Mercury lowercases its states,
// CryptoMate uses TRANSACTION_* constants and explicit operation actions).
type ProviderStatus string

const (
	StatusPending         ProviderStatus = "pending"
	StatusSettled         ProviderStatus = "settled"
	StatusSent            ProviderStatus = "sent"
	StatusCancelled       ProviderStatus = "cancelled"
	StatusFailed          ProviderStatus = "failed"
	StatusReversed        ProviderStatus = "reversed"
	StatusBlocked         ProviderStatus = "blocked"
	StatusRefund          ProviderStatus = "refund"
	StatusDeposit         ProviderStatus = "deposit"
	StatusBalanceOverride ProviderStatus = "balance_override"
	StatusWithdrawal      ProviderStatus = "withdrawal"
)

// Classify maps a normalized provider status plus the signed amount to a
// canonical operation kind. It is a pure lookup: an unmapped status is an
// error, never a silent default, so bad provider data surfaces instead of
// being miscounted.
//
// Deposit, balance override and withdrawal are explicit provider actions
// and classify by status alone. For the rest, a positive signed amount is
// money coming back to the card (refund), and a negative amount picks its
// kind from the status.
func Classify(status ProviderStatus, signedAmountMinor int64) (OperationKind, error) {
	switch status {
	case StatusDeposit:
		return OperationDeposit, nil
	case StatusBalanceOverride:
		return OperationBalanceOverride, nil
	case StatusWithdrawal:
		return OperationWithdrawal, nil
	}

	if signedAmountMinor >= 0 {
		switch status {
		case StatusPending, StatusSettled, StatusSent, StatusCancelled,
			StatusFailed, StatusReversed, StatusBlocked, StatusRefund:
			return OperationRefund, nil
		}
		return "", fmt.Errorf("Classify: status %q (credit): %w", status, ErrUnknownStatus)
	}

	switch status {
	case StatusPending:
		return OperationPending, nil
	case StatusSettled, StatusSent:
		return OperationApproved, nil
	case StatusCancelled:
		return OperationCancelled, nil
	case StatusFailed:
		return OperationRejected, nil
	case StatusReversed:
		return OperationReversed, nil
	case StatusBlocked:
		return OperationBlocked, nil
	}
	return "", fmt.Errorf("Classify: status %q (debit): %w", status, ErrUnknownStatus)
}
