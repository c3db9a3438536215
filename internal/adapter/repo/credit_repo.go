package repo

import (
	"context"

	"storyreel/internal/domain"
	"storyreel/internal/infra"
	"storyreel/internal/sqlinline"
)

// CreditLedgerPG implements domain.CreditLedger on PostgreSQL. The debit path
// relies on a single conditional-update statement, so two concurrent debits
// against the same account can never both pass the floor guard.
type CreditLedgerPG struct {
	sql infra.SQLExecutor
}

// NewCreditLedger creates a new CreditLedgerPG.
func NewCreditLedger(sql infra.SQLExecutor) *CreditLedgerPG {
	return &CreditLedgerPG{sql: sql}
}

// Balance returns the current credit balance for the user.
func (l *CreditLedgerPG) Balance(ctx context.Context, userID string) (int, error) {
	row := l.sql.QueryRow(ctx, sqlinline.QSelectBalance, userID)
	var balance int
	if err := row.Scan(&balance); err != nil {
		if infra.IsNoRows(err) {
			return 0, domain.ErrNotFound
		}
		return 0, err
	}
	return balance, nil
}

// HasSufficient reports whether the balance covers amount, alongside the
// balance itself. The verdict is advisory; Debit re-checks atomically.
func (l *CreditLedgerPG) HasSufficient(ctx context.Context, userID string, amount int) (bool, int, error) {
	balance, err := l.Balance(ctx, userID)
	if err != nil {
		return false, 0, err
	}
	return balance >= amount, balance, nil
}

// Debit decrements the balance and appends the transaction in one statement.
// No returned row means the floor guard rejected the debit.
func (l *CreditLedgerPG) Debit(ctx context.Context, userID string, amount int, reason string) (int, error) {
	row := l.sql.QueryRow(ctx, sqlinline.QDebitCredits, userID, amount, reason)
	var newBalance int
	if err := row.Scan(&newBalance); err != nil {
		if infra.IsNoRows(err) {
			current, berr := l.Balance(ctx, userID)
			if berr != nil {
				return 0, berr
			}
			return 0, &domain.InsufficientCreditsError{Required: amount, Current: current}
		}
		return 0, err
	}
	return newBalance, nil
}

// Credit increments the balance and appends the transaction in one statement.
func (l *CreditLedgerPG) Credit(ctx context.Context, userID string, amount int, reason string) (int, error) {
	row := l.sql.QueryRow(ctx, sqlinline.QCreditCredits, userID, amount, reason)
	var newBalance int
	if err := row.Scan(&newBalance); err != nil {
		if infra.IsNoRows(err) {
			return 0, domain.ErrNotFound
		}
		return 0, err
	}
	return newBalance, nil
}

// Transactions returns the most recent ledger entries for the user.
func (l *CreditLedgerPG) Transactions(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.sql.Query(ctx, sqlinline.QListTransactions, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.CreditTransaction
	for rows.Next() {
		var tx domain.CreditTransaction
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Amount, &tx.Kind, &tx.Reason, &tx.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

var _ domain.CreditLedger = (*CreditLedgerPG)(nil)
