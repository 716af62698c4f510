package domain

import "errors"

var (
	ErrInvalidAmount     = errors.New("amount must be a positive number of minor units")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrSameAccount       = errors.New("source and destination accounts are the same")
	ErrAccountNotFound   = errors.New("account not found")
	ErrAccountClosed     = errors.New("account is closed")
	ErrAccountNotEmpty   = errors.New("account balance must be zero to close it")

	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidInput       = errors.New("invalid input")

	// ErrVersionConflict is returned by version-checked writes when the stored version
	// moved on. The ledger retries it and never surfaces it to callers.
	ErrVersionConflict = errors.New("version conflict")
	// ErrContention means the retry budget for version conflicts was exhausted.
	ErrContention = errors.New("too much contention on account, retry later")

	ErrReferentialIntegrity = errors.New("referenced account does not exist")
	ErrInvariantViolation   = errors.New("ledger invariant violated")
)

var businessRuleErrors = []error{
	ErrInvalidAmount,
	ErrInsufficientFunds,
	ErrSameAccount,
	ErrAccountNotFound,
	ErrAccountClosed,
	ErrAccountNotEmpty,
	ErrUserNotFound,
	ErrUserAlreadyExists,
	ErrInvalidCredentials,
	ErrInvalidInput,
}

// IsBusinessRule reports whether err is an expected rejection of a request
// rather than a system failure.
func IsBusinessRule(err error) bool {
	for _, target := range businessRuleErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
