package block

import (
	"context"
	"fmt"

	"github.com/roach88/rootstore/internal/ir"
	"github.com/roach88/rootstore/internal/merkle"
)

const verifyPageSize = 100

// ChainError reports the first block that breaks the chain.
type ChainError struct {
	Number int64
	Reason string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("block %d: %s", e.Number, e.Reason)
}

// Verify walks the chain from genesis and checks numbering, linkage and
// every block hash. An empty chain is valid. It returns the number of blocks
// checked and a *ChainError for the first broken block.
func (b *Builder) Verify(ctx context.Context) (int, error) {
	var prev *ir.Block
	checked := 0
	from := int64(0)
	for {
		page, err := b.store.ListBlocks(ctx, from, verifyPageSize)
		if err != nil {
			return checked, fmt.Errorf("verify chain: %w", err)
		}
		if len(page) == 0 {
			return checked, nil
		}
		for i := range page {
			blk := page[i]
			if err := checkBlock(prev, blk, b.cfg.Merkle); err != nil {
				b.logger.WithContext(ctx).Error("chain broken", "number", blk.Number, "error", err)
				return checked, err
			}
			prev = &blk
			checked++
		}
		from = prev.Number + 1
	}
}

func checkBlock(prev *ir.Block, blk ir.Block, fn merkle.HashFunc) error {
	if prev == nil {
		if !blk.IsGenesis() {
			return &ChainError{Number: blk.Number, Reason: "chain does not start at genesis"}
		}
	} else {
		if blk.Number != prev.Number+1 {
			return &ChainError{Number: blk.Number, Reason: fmt.Sprintf("expected number %d", prev.Number+1)}
		}
		if blk.Previous != prev.Hash {
			return &ChainError{Number: blk.Number, Reason: "previous hash does not match"}
		}
		if blk.Boundary.Before(prev.Boundary) {
			return &ChainError{Number: blk.Number, Reason: "boundary precedes previous block"}
		}
	}
	if blk.Count != len(blk.Data) {
		return &ChainError{Number: blk.Number, Reason: fmt.Sprintf("count %d does not match %d data entries", blk.Count, len(blk.Data))}
	}
	hash, err := merkle.RootHex(append(cloneStrings(blk.Data), blk.Previous), fn)
	if err != nil {
		return &ChainError{Number: blk.Number, Reason: err.Error()}
	}
	if hash != blk.Hash {
		return &ChainError{Number: blk.Number, Reason: "hash does not match data"}
	}
	return nil
}
