package ledger

import (
	"context"
	"fmt"

	"goalplay-engagement/pkg/db/option"
	"goalplay-engagement/pkg/errutil"
)

type Verification struct {
	UserID       string   `json:"user_id"`
	Currency     Currency `json:"currency"`
	Valid        bool     `json:"valid"`
	Transactions int      `json:"transactions"`
	Balance      int64    `json:"balance"`
	Replayed     int64    `json:"replayed"`
	Problems     []string `json:"problems,omitempty"`
}

// VerifyHistory replays every transaction of the user's balance in sequence
// order and checks the snapshots, the hash chain and the stored balance.
func (s *Service) VerifyHistory(ctx context.Context, userID string) (*Verification, error) {
	bal, err := s.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	rows, err := s.entries.Find(ctx, &Transaction{BalanceID: bal.ID},
		option.WithSortBy(option.QuerySortBy{SortBy: "sequence", OrderBy: "asc", Allow: map[string]bool{"sequence": true}}),
	)
	if err != nil {
		return nil, errutil.Internal("failed to load transactions", err)
	}

	v := &Verification{
		UserID:       userID,
		Currency:     bal.Currency,
		Transactions: len(rows),
		Balance:      bal.Balance,
	}

	var running int64
	prevHash := ""
	for i, row := range rows {
		if row.Sequence != int64(i+1) {
			v.Problems = append(v.Problems, fmt.Sprintf("transaction %s: sequence %d, expected %d", row.ID, row.Sequence, i+1))
		}
		if row.BalanceBefore != running {
			v.Problems = append(v.Problems, fmt.Sprintf("transaction %s: balance_before %d, expected %d", row.ID, row.BalanceBefore, running))
		}
		if row.BalanceAfter != row.BalanceBefore+row.Amount {
			v.Problems = append(v.Problems, fmt.Sprintf("transaction %s: balance_after %d != %d%+d", row.ID, row.BalanceAfter, row.BalanceBefore, row.Amount))
		}
		if row.PreviousHash != prevHash {
			v.Problems = append(v.Problems, fmt.Sprintf("transaction %s: broken hash chain", row.ID))
		}
		if row.GenerateHash() != row.Hash {
			v.Problems = append(v.Problems, fmt.Sprintf("transaction %s: hash mismatch", row.ID))
		}
		running += row.Amount
		prevHash = row.Hash
	}

	v.Replayed = running
	if running != bal.Balance {
		v.Problems = append(v.Problems, fmt.Sprintf("stored balance %d, replayed %d", bal.Balance, running))
	}
	if bal.Version != int64(len(rows)) {
		v.Problems = append(v.Problems, fmt.Sprintf("stored version %d, transactions %d", bal.Version, len(rows)))
	}
	if bal.LastHash != prevHash {
		v.Problems = append(v.Problems, "stored last hash does not match the chain head")
	}

	v.Valid = len(v.Problems) == 0
	return v, nil
}
