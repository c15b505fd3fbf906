package model

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

const BlockHeaderSize = 80

type BlockHeader struct {
	// Version of the block.  This is not the same as the protocol version.
	Version uint32

	// Hash of the previous block header in the blockchain. All zeros for genesis.
	HashPrevBlock *chainhash.Hash

	// Merkle tree reference to hash of all transactions for the block.
	HashMerkleRoot *chainhash.Hash

	// Time the block was created in unix seconds.
	Timestamp uint32

	// Difficulty target for the block.
	Bits NBit

	// Nonce used to generate the block.
	Nonce uint32
}

func NewBlockHeaderFromBytes(headerBytes []byte) (*BlockHeader, error) {
	if len(headerBytes) != BlockHeaderSize {
		return nil, fmt.Errorf("block header should be %d bytes long", BlockHeaderSize)
	}

	hashPrevBlock, err := chainhash.NewHash(headerBytes[4:36])
	if err != nil {
		return nil, fmt.Errorf("error creating previous block hash from bytes: %w", err)
	}

	hashMerkleRoot, err := chainhash.NewHash(headerBytes[36:68])
	if err != nil {
		return nil, fmt.Errorf("error creating merkle root hash from bytes: %w", err)
	}

	bits, err := NewNBitFromSlice(headerBytes[72:76])
	if err != nil {
		return nil, err
	}

	return &BlockHeader{
		Version:        binary.LittleEndian.Uint32(headerBytes[:4]),
		HashPrevBlock:  hashPrevBlock,
		HashMerkleRoot: hashMerkleRoot,
		Timestamp:      binary.LittleEndian.Uint32(headerBytes[68:72]),
		Bits:           bits,
		Nonce:          binary.LittleEndian.Uint32(headerBytes[76:]),
	}, nil
}

func NewBlockHeaderFromString(headerHex string) (*BlockHeader, error) {
	headerBytes, err := hex.DecodeString(headerHex)
	if err != nil {
		return nil, fmt.Errorf("error decoding hex string to bytes: %w", err)
	}

	return NewBlockHeaderFromBytes(headerBytes)
}

func (bh *BlockHeader) Hash() *chainhash.Hash {
	hash := chainhash.DoubleHashH(bh.Bytes())
	return &hash
}

// HashBigInt reads the header hash in display order as a big endian integer.
func (bh *BlockHeader) HashBigInt() *big.Int {
	hash := bh.Hash()

	return new(big.Int).SetBytes(bt.ReverseBytes(hash.CloneBytes()))
}

// HasMetTarget reports whether the header hash is at or below target.
func (bh *BlockHeader) HasMetTarget(target *big.Int) bool {
	if target == nil || target.Sign() <= 0 {
		return false
	}

	return bh.HashBigInt().Cmp(target) <= 0
}

func (bh *BlockHeader) IsGenesis() bool {
	return bh.HashPrevBlock == nil || bh.HashPrevBlock.IsEqual(&chainhash.Hash{})
}

func (bh *BlockHeader) Time() time.Time {
	return time.Unix(int64(bh.Timestamp), 0)
}

func (bh *BlockHeader) Bytes() []byte {
	b := make([]byte, BlockHeaderSize)

	binary.LittleEndian.PutUint32(b[0:4], bh.Version)

	if bh.HashPrevBlock != nil {
		copy(b[4:36], bh.HashPrevBlock.CloneBytes())
	}

	if bh.HashMerkleRoot != nil {
		copy(b[36:68], bh.HashMerkleRoot.CloneBytes())
	}

	binary.LittleEndian.PutUint32(b[68:72], bh.Timestamp)
	binary.LittleEndian.PutUint32(b[72:76], uint32(bh.Bits))
	binary.LittleEndian.PutUint32(b[76:80], bh.Nonce)

	return b
}

func (bh *BlockHeader) String() string {
	return hex.EncodeToString(bh.Bytes())
}
