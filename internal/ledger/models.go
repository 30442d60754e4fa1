// Package ledger persists commands and balances and enforces the transfer
// rules. Every operation runs in a single serializable transaction;
// command UUIDs are the idempotency keys.
package ledger

import "github.com/google/uuid"

// DefaultLimit is the overdraft floor assigned to new balances.
const DefaultLimit int64 = -50_000

// Failure reasons recorded on command rows and surfaced in failed events.
const (
	ReasonIbanExists        = "generated iban already exists, try again"
	ReasonFromInvalid       = "from is invalid"
	ReasonSameAccount       = "from and to can't be same for transfer"
	ReasonInvalidToken      = "invalid token"
	ReasonInsufficientFunds = "insufficient funds"
	ReasonFromExternal      = "from is external"
)

// Balance is an account's current state, keyed by iban.
type Balance struct {
	IBAN   string
	Token  string
	Amount int64
	Type   string
	Limit  int64
}

// AccountCreation is the persisted outcome of a confirm-account-creation
// command. IBAN and Token are set only on success.
type AccountCreation struct {
	UUID   uuid.UUID
	IBAN   *string
	Token  *string
	Type   *string
	Reason *string
}

// MoneyTransfer is the persisted outcome of a confirm-money-transfer
// command.
type MoneyTransfer struct {
	UUID   uuid.UUID
	Reason *string
}

// Transfer carries the typed payload fields of a money transfer command.
type Transfer struct {
	Token       string
	Amount      int64
	From        string
	To          string
	Description string
}
