package model

import (
	"fmt"
	"math/big"
)

// EventType classifies a balance-affecting action on the staking token.
type EventType string

const (
	EventTransferIn  EventType = "TransferIn"
	EventTransferOut EventType = "TransferOut"
	EventDeposit     EventType = "Deposit"
	EventWithdraw    EventType = "Withdraw"
)

// Increases reports whether the event raises the holder's balance.
func (t EventType) Increases() bool {
	return t == EventTransferIn || t == EventDeposit
}

// Valid reports whether the type is one of the known event kinds.
func (t EventType) Valid() bool {
	switch t {
	case EventTransferIn, EventTransferOut, EventDeposit, EventWithdraw:
		return true
	}
	return false
}

// LedgerEvent is an immutable record of a balance-affecting on-chain action.
type LedgerEvent struct {
	User            string    `json:"user"`
	Type            EventType `json:"type"`
	Amount          *big.Int  `json:"amount"`
	Chain           string    `json:"chain"`
	ContractAddress string    `json:"contract_address"`
	BlockNumber     uint64    `json:"block_number"`
	BlockTimestamp  uint64    `json:"block_timestamp"`
	TxHash          string    `json:"tx_hash"`
	LogIndex        uint64    `json:"log_index"`
}

// Identity uniquely identifies the event for dedupe-on-insert. The type
// is part of the key: a transfer between two tracked wallets is one log
// but two ledger rows, one per side.
func (e LedgerEvent) Identity() string {
	return fmt.Sprintf("%s:%s:%d:%s", e.Chain, e.TxHash, e.LogIndex, e.Type)
}
