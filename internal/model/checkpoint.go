package model

// ScanKind identifies an independent scan target on a chain.
type ScanKind string

const (
	ScanSettlements ScanKind = "settlements"
	ScanStaking     ScanKind = "staking"
)

// ScanCheckpoint records the last block durably ingested for a scan.
// It only moves forward, and only after a full target range succeeded.
type ScanCheckpoint struct {
	Kind               ScanKind `json:"kind"`
	Chain              string   `json:"chain"`
	LastProcessedBlock uint64   `json:"last_processed_block"`
}

// ScanGap is a chunk that failed during a scan and awaits retry.
type ScanGap struct {
	ID        int64    `json:"id"`
	Kind      ScanKind `json:"kind"`
	Chain     string   `json:"chain"`
	FromBlock uint64   `json:"from_block"`
	ToBlock   uint64   `json:"to_block"`
	Attempts  int      `json:"attempts"`
	LastError string   `json:"last_error"`
}
