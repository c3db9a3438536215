package domain

import "time"

// TransactionKind is the accounting side of a ledger entry.
type TransactionKind string

const (
	TransactionDebit  TransactionKind = "debit"
	TransactionCredit TransactionKind = "credit"
)

// CreditTransaction is one immutable row of the append-only credit log.
// The sum of a user's transactions equals the current balance at all times.
type CreditTransaction struct {
	ID        string
	UserID    string
	Amount    int
	Kind      TransactionKind
	Reason    string
	CreatedAt time.Time
}

// SignupBonusCredits is granted once when an account is created.
const SignupBonusCredits = 100
