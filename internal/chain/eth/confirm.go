package eth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/subpass/internal/ledger"
	suberr "github.com/mrz1836/subpass/pkg/errors"
)

// WaitForConfirmation polls for the receipt of hash until it is included or
// ctx ends. Poll errors are logged and polling continues.
// Cancellation returns ctx.Err() unchanged; an expired deadline returns
// errors.ErrConfirmationTimeout.
func (c *Client) WaitForConfirmation(ctx context.Context, hash common.Hash) (*ledger.Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.rpcClient.GetTransactionReceipt(ctx, hash.Hex())
		switch {
		case err == nil && receipt != nil:
			if !receipt.Succeeded() {
				return nil, suberr.WithDetails(suberr.ErrTransactionReverted, map[string]string{
					"hash":  hash.Hex(),
					"block": strconv.FormatUint(receipt.BlockNumber, 10),
				})
			}
			c.logger.Debug("transaction %s included in block %d", hash.Hex(), receipt.BlockNumber)
			return &ledger.Receipt{
				Hash:        hash,
				BlockNumber: receipt.BlockNumber,
				GasUsed:     receipt.GasUsed,
			}, nil
		case err != nil && ctx.Err() == nil:
			c.logger.Debug("receipt poll for %s failed: %v", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, waitError(ctx, hash)
		case <-ticker.C:
		}
	}
}

func waitError(ctx context.Context, hash common.Hash) error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return suberr.WithDetails(suberr.WithCause(suberr.ErrConfirmationTimeout, err), map[string]string{
			"hash": hash.Hex(),
		})
	}
	return err
}
