package blockchain

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/bsv-blockchain/chainlite/errors"
	"github.com/bsv-blockchain/chainlite/model"
	"github.com/bsv-blockchain/chainlite/stores/kv"
	"github.com/bsv-blockchain/chainlite/ulogger"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

const (
	blockPrefix  = "blk-"
	metaPrefix   = "meta-"
	heightPrefix = "hgt-"
	tipKey       = "tip"
)

// BlockMeta is what the chain needs to know about any stored block, main chain or not.
type BlockMeta struct {
	Hash      *chainhash.Hash
	Header    *model.BlockHeader
	Height    uint32
	ChainWork *big.Int
}

func (m *BlockMeta) bytes() []byte {
	return []byte(fmt.Sprintf("%d:%s:%x", m.Height, m.ChainWork.Text(16), m.Header.Bytes()))
}

func parseBlockMeta(hash *chainhash.Hash, value []byte) (*BlockMeta, error) {
	parts := strings.Split(string(value), ":")
	if len(parts) != 3 {
		return nil, errors.NewProcessingError("malformed block meta for %s", hash)
	}

	height, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return nil, errors.NewProcessingError("bad height in block meta for %s", hash, err)
	}

	chainWork, ok := new(big.Int).SetString(parts[1], 16)
	if !ok {
		return nil, errors.NewProcessingError("bad chain work in block meta for %s", hash)
	}

	header, err := model.NewBlockHeaderFromString(parts[2])
	if err != nil {
		return nil, errors.NewProcessingError("bad header in block meta for %s", hash, err)
	}

	return &BlockMeta{Hash: hash, Header: header, Height: uint32(height), ChainWork: chainWork}, nil
}

// Store reads and writes block data. Writes are returned as operations so the chain can commit
// them in the same batch as the index changes of a block.
type Store struct {
	logger ulogger.Logger
	store  kv.Store
	remote BlockSource
}

// NewStore creates a block store. With a remote source only metadata is kept locally and block
// bodies are fetched from the remote on demand.
func NewStore(logger ulogger.Logger, store kv.Store, remote BlockSource) *Store {
	return &Store{
		logger: logger,
		store:  store,
		remote: remote,
	}
}

func (s *Store) KVStore() kv.Store {
	return s.store
}

// StoreBlockOperations writes the block meta and, without a remote source, its body.
func (s *Store) StoreBlockOperations(block *model.Block, meta *BlockMeta) []kv.Operation {
	hash := block.Hash().String()

	ops := []kv.Operation{kv.Put([]byte(metaPrefix+hash), meta.bytes())}

	if s.remote == nil {
		ops = append(ops, kv.Put([]byte(blockPrefix+hash), block.Bytes()))
	}

	return ops
}

// MainChainOperations links (add) or unlinks a block at height in the height index.
func MainChainOperations(hash *chainhash.Hash, height uint32, add bool) []kv.Operation {
	key := heightKey(height)
	value := []byte(hash.String())

	if add {
		return []kv.Operation{kv.Put(key, value)}
	}

	return []kv.Operation{kv.Del(key, value)}
}

// TipOperation moves the tip pointer.
func TipOperation(hash *chainhash.Hash) kv.Operation {
	return kv.Put([]byte(tipKey), []byte(hash.String()))
}

func heightKey(height uint32) []byte {
	return []byte(fmt.Sprintf("%s%010d", heightPrefix, height))
}

// GetTip returns the hash the tip pointer refers to, ErrNotFound on an empty store.
func (s *Store) GetTip(ctx context.Context) (*chainhash.Hash, error) {
	value, err := s.store.Get(ctx, []byte(tipKey))
	if err != nil {
		return nil, err
	}

	return chainhash.NewHashFromStr(string(value))
}

func (s *Store) GetBlockExists(ctx context.Context, hash *chainhash.Hash) (bool, error) {
	return s.store.Has(ctx, []byte(metaPrefix+hash.String()))
}

func (s *Store) GetBlockMeta(ctx context.Context, hash *chainhash.Hash) (*BlockMeta, error) {
	value, err := s.store.Get(ctx, []byte(metaPrefix+hash.String()))
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.NewBlockNotFoundError("block %s not found", hash)
		}

		return nil, err
	}

	return parseBlockMeta(hash, value)
}

// GetHashAtHeight reads the main chain height index.
func (s *Store) GetHashAtHeight(ctx context.Context, height uint32) (*chainhash.Hash, error) {
	value, err := s.store.Get(ctx, heightKey(height))
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.NewBlockNotFoundError("no main chain block at height %d", height)
		}

		return nil, err
	}

	return chainhash.NewHashFromStr(string(value))
}

// GetBlock returns a fresh copy of a stored block with its height set.
func (s *Store) GetBlock(ctx context.Context, hash *chainhash.Hash) (*model.Block, error) {
	meta, err := s.GetBlockMeta(ctx, hash)
	if err != nil {
		return nil, err
	}

	var block *model.Block

	if s.remote != nil {
		if block, err = s.remote.GetBlock(ctx, hash); err != nil {
			return nil, err
		}
	} else {
		value, err := s.store.Get(ctx, []byte(blockPrefix+hash.String()))
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				return nil, errors.NewBlockNotFoundError("body of block %s not found", hash)
			}

			return nil, err
		}

		if block, err = model.NewBlockFromBytes(value); err != nil {
			return nil, errors.NewStorageError("stored block %s is corrupt", hash, err)
		}
	}

	if err = block.SetHeight(meta.Height); err != nil {
		return nil, err
	}

	return block, nil
}

// GetBlockAtHeight returns the main chain block at height.
func (s *Store) GetBlockAtHeight(ctx context.Context, height uint32) (*model.Block, error) {
	hash, err := s.GetHashAtHeight(ctx, height)
	if err != nil {
		return nil, err
	}

	return s.GetBlock(ctx, hash)
}

// GetBlockHeader returns the header from the block meta, without touching the body.
func (s *Store) GetBlockHeader(ctx context.Context, hash *chainhash.Hash) (*model.BlockHeader, error) {
	meta, err := s.GetBlockMeta(ctx, hash)
	if err != nil {
		return nil, err
	}

	return meta.Header, nil
}

// DeleteBlockOperations drops the meta and body of a block that is not on the main chain.
func (s *Store) DeleteBlockOperations(hash *chainhash.Hash) []kv.Operation {
	return []kv.Operation{
		kv.Del([]byte(metaPrefix+hash.String()), nil),
		kv.Del([]byte(blockPrefix+hash.String()), nil),
	}
}
