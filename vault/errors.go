package vault

import "errors"

var (
	// ErrZeroAssets indicates a deposit, withdrawal or redemption of a zero
	// or missing amount.
	ErrZeroAssets = errors.New("vault: amount must be positive")
	// ErrMinShareRatioNotMet indicates the oracle rate fell below the
	// caller's floor. This is the slippage guard: a depositor who observed a
	// favourable rate off-chain can refuse execution when the live rate has
	// moved against them.
	ErrMinShareRatioNotMet = errors.New("vault: oracle rate below caller floor")
	// ErrInsufficientBalance indicates the owner lacks the required amount
	// of either the fungible shares or the receipt units at the supplied
	// rate. The whole operation fails with no partial state change.
	ErrInsufficientBalance = errors.New("vault: insufficient share or receipt balance")
	// ErrNotAuthorized indicates the caller is neither the owner nor an
	// approved operator over the owner's holdings.
	ErrNotAuthorized = errors.New("vault: caller not authorized for owner")
	// ErrNotConfigured indicates the engine is missing a collaborator.
	ErrNotConfigured = errors.New("vault: engine not configured")
)
