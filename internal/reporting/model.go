package reporting

import "time"

// Party identifies an account on a report line.
type Party struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
	Rekening string `json:"rekening"`
}

// Transaction is a ledger entry as seen from one account.
type Transaction struct {
	ID           int64     `json:"id"`
	Type         string    `json:"type"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balance_after"`
	CreatedAt    time.Time `json:"created_at"`
	FromUserID   *int64    `json:"from_user_id"`
	ToUserID     int64     `json:"to_user_id"`
	FromUser     *Party    `json:"from_user,omitempty"`
	ToUser       *Party    `json:"to_user,omitempty"`
}

// TopUp is a line of the top-up report.
type TopUp struct {
	ID           int64     `json:"id"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balance_after"`
	CreatedAt    time.Time `json:"created_at"`
	User         Party     `json:"user"`
}

// Transfer is a line of the transfer report.
type Transfer struct {
	ID               int64     `json:"id"`
	Amount           int64     `json:"amount"`
	FromBalanceAfter int64     `json:"from_balance_after"`
	ToBalanceAfter   int64     `json:"to_balance_after"`
	CreatedAt        time.Time `json:"created_at"`
	FromUser         Party     `json:"from_user"`
	ToUser           Party     `json:"to_user"`
}

// Mismatch is an account whose stored state disagrees with its replayed
// history. EntryID is the first entry whose recorded balance differs from
// the replay, if any.
type Mismatch struct {
	AccountID       int64 `json:"user_id"`
	StoredBalance   int64 `json:"stored_balance"`
	ReplayedBalance int64 `json:"replayed_balance"`
	EntryID         int64 `json:"entry_id,omitempty"`
}

// Reconciliation summarises a full replay of the transaction log.
type Reconciliation struct {
	Accounts      int        `json:"accounts"`
	Entries       int        `json:"entries"`
	TotalTopUps   int64      `json:"total_topups"`
	TotalBalances int64      `json:"total_balances"`
	Balanced      bool       `json:"balanced"`
	Mismatches    []Mismatch `json:"mismatches"`
	CheckedAt     time.Time  `json:"checked_at"`
}
