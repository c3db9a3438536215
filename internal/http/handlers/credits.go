package handlers

import (
	"net/http"
	"strconv"
	"time"
)

// CreditsBalance returns the user's current balance.
func (a *App) CreditsBalance(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	balance, err := a.Ledger.Balance(r.Context(), userID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]int{"credits": balance})
}

type transactionDTO struct {
	ID        string    `json:"id"`
	Amount    int       `json:"amount"`
	Kind      string    `json:"kind"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// CreditsTransactions lists the most recent ledger entries, newest first.
func (a *App) CreditsTransactions(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	txs, err := a.Ledger.Transactions(r.Context(), userID, limit)
	if err != nil {
		a.domainError(w, err)
		return
	}
	out := make([]transactionDTO, 0, len(txs))
	for _, tx := range txs {
		out = append(out, transactionDTO{
			ID:        tx.ID,
			Amount:    tx.Amount,
			Kind:      string(tx.Kind),
			Reason:    tx.Reason,
			CreatedAt: tx.CreatedAt,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"transactions": out})
}
