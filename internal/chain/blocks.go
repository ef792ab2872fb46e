package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

// RPCTransaction is the subset of a block transaction needed for
// settlement discovery.
type RPCTransaction struct {
	Hash     common.Hash     `json:"hash"`
	From     common.Address  `json:"from"`
	To       *common.Address `json:"to"`
	Input    hexutil.Bytes   `json:"input"`
	GasPrice *hexutil.Big    `json:"gasPrice"`
}

// RPCBlock is a block with full transactions as returned by
// eth_getBlockByNumber.
type RPCBlock struct {
	Number       hexutil.Uint64   `json:"number"`
	Timestamp    hexutil.Uint64   `json:"timestamp"`
	Transactions []RPCTransaction `json:"transactions"`
}

// BlocksWithTxs fetches the closed block range [from, to] with full
// transactions in one batch round trip. Entries can be nil when the
// provider has no data for a block (lenient discovery semantics).
func (c *Client) BlocksWithTxs(ctx context.Context, from, to uint64) ([]*RPCBlock, error) {
	if to < from {
		return nil, fmt.Errorf("invalid block range %d-%d", from, to)
	}

	blocks := make([]*RPCBlock, to-from+1)
	elems := make([]rpc.BatchElem, to-from+1)
	for i := range elems {
		elems[i] = rpc.BatchElem{
			Method: "eth_getBlockByNumber",
			Args:   []interface{}{hexutil.EncodeUint64(from + uint64(i)), true},
			Result: &blocks[i],
		}
	}

	if err := c.batch.CallLenient(ctx, elems); err != nil {
		return nil, err
	}
	return blocks, nil
}

// TransactionReceipts fetches receipts for the given hashes in one batch
// round trip. Receipts feed monetary values, so the whole batch fails on
// any per-element error.
func (c *Client) TransactionReceipts(ctx context.Context, hashes []common.Hash) ([]*types.Receipt, error) {
	if len(hashes) == 0 {
		return nil, nil
	}

	receipts := make([]*types.Receipt, len(hashes))
	elems := make([]rpc.BatchElem, len(hashes))
	for i, hash := range hashes {
		elems[i] = rpc.BatchElem{
			Method: "eth_getTransactionReceipt",
			Args:   []interface{}{hash},
			Result: &receipts[i],
		}
	}

	if err := c.batch.CallStrict(ctx, elems); err != nil {
		return nil, err
	}
	for i, receipt := range receipts {
		if receipt == nil {
			return nil, fmt.Errorf("no receipt for %s", hashes[i].Hex())
		}
	}
	return receipts, nil
}

// BalancesAt performs balanceOf static calls for all holders at the given
// block in one strict batch.
func (c *Client) BalancesAt(ctx context.Context, token common.Address, holders []common.Address, blockNumber *big.Int) ([]*big.Int, error) {
	if len(holders) == 0 {
		return nil, nil
	}

	blockArg := "latest"
	if blockNumber != nil {
		blockArg = hexutil.EncodeBig(blockNumber)
	}

	outputs := make([]hexutil.Bytes, len(holders))
	elems := make([]rpc.BatchElem, len(holders))
	for i, holder := range holders {
		elems[i] = rpc.BatchElem{
			Method: "eth_call",
			Args: []interface{}{
				map[string]interface{}{
					"to":   token.Hex(),
					"data": hexutil.Encode(balanceOfCallData(holder)),
				},
				blockArg,
			},
			Result: &outputs[i],
		}
	}

	if err := c.batch.CallStrict(ctx, elems); err != nil {
		return nil, err
	}

	balances := make([]*big.Int, len(outputs))
	for i, out := range outputs {
		balances[i] = new(big.Int).SetBytes(out)
	}
	return balances, nil
}
