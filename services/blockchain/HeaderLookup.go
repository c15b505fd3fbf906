package blockchain

import (
	"context"

	"github.com/bsv-blockchain/chainlite/model"
	blockchainstore "github.com/bsv-blockchain/chainlite/stores/blockchain"
)

type headerLookup struct {
	store *blockchainstore.Store
}

// NewHeaderLookup resolves main chain blocks by height from the stored block metadata. The
// returned blocks carry a header and height but no transactions, which is all retargeting
// needs, and never touch a remote block source.
func NewHeaderLookup(store *blockchainstore.Store) BlockAtHeightLookup {
	return &headerLookup{store: store}
}

func (h *headerLookup) GetBlockAtHeight(ctx context.Context, height uint32) (*model.Block, error) {
	hash, err := h.store.GetHashAtHeight(ctx, height)
	if err != nil {
		return nil, err
	}

	header, err := h.store.GetBlockHeader(ctx, hash)
	if err != nil {
		return nil, err
	}

	block := model.NewBlock(header, nil)
	if err = block.SetHeight(height); err != nil {
		return nil, err
	}

	return block, nil
}
