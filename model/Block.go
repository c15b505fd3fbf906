package model

import (
	"bytes"
	"encoding/hex"
	"io"

	"github.com/bsv-blockchain/chainlite/errors"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"go.uber.org/atomic"
)

// Block is a header plus its ordered transactions. The height is not part of the serialized
// block; the chain assigns it exactly once, when the tip advances onto the block.
type Block struct {
	Header       *BlockHeader
	Transactions []*bt.Tx

	height    atomic.Uint32
	heightSet atomic.Bool
	hash      *chainhash.Hash
}

func NewBlock(header *BlockHeader, txs []*bt.Tx) *Block {
	return &Block{
		Header:       header,
		Transactions: txs,
	}
}

func NewBlockFromBytes(blockBytes []byte) (*Block, error) {
	if len(blockBytes) < BlockHeaderSize {
		return nil, errors.NewProcessingError("block should be at least %d bytes, got %d", BlockHeaderSize, len(blockBytes))
	}

	header, err := NewBlockHeaderFromBytes(blockBytes[:BlockHeaderSize])
	if err != nil {
		return nil, errors.NewProcessingError("error reading block header", err)
	}

	block := &Block{Header: header}

	if len(blockBytes) == BlockHeaderSize {
		return block, nil
	}

	txCount, size := bt.NewVarIntFromBytes(blockBytes[BlockHeaderSize:])
	buf := bytes.NewReader(blockBytes[BlockHeaderSize+size:])

	block.Transactions = make([]*bt.Tx, 0, uint64(txCount))

	for i := uint64(0); i < uint64(txCount); i++ {
		tx := &bt.Tx{}
		if _, err = tx.ReadFrom(buf); err != nil {
			return nil, errors.NewProcessingError("error reading transaction %d", i, err)
		}

		block.Transactions = append(block.Transactions, tx)
	}

	if buf.Len() != 0 {
		return nil, errors.NewProcessingError("%d trailing bytes after transactions", buf.Len())
	}

	return block, nil
}

func NewBlockFromReader(r io.Reader) (*Block, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.NewProcessingError("error reading block", err)
	}

	return NewBlockFromBytes(b)
}

func NewBlockFromString(blockHex string) (*Block, error) {
	b, err := hex.DecodeString(blockHex)
	if err != nil {
		return nil, errors.NewProcessingError("error decoding block hex", err)
	}

	return NewBlockFromBytes(b)
}

func (b *Block) Hash() *chainhash.Hash {
	if b.hash == nil {
		b.hash = b.Header.Hash()
	}

	return b.hash
}

// ResetHash drops the cached hash after a header field changed, e.g. the nonce while mining.
func (b *Block) ResetHash() {
	b.hash = nil
}

// Height returns the height assigned by the chain, and false while the block is not accepted.
func (b *Block) Height() (uint32, bool) {
	if !b.heightSet.Load() {
		return 0, false
	}

	return b.height.Load(), true
}

// SetHeight assigns the height once. A second call fails.
func (b *Block) SetHeight(height uint32) error {
	if !b.heightSet.CompareAndSwap(false, true) {
		return errors.NewProcessingError("block %s already has height %d", b.Hash(), b.height.Load())
	}

	b.height.Store(height)

	return nil
}

// TimestampMillis is the block time in milliseconds, the resolution used by the index keys.
func (b *Block) TimestampMillis() int64 {
	return int64(b.Header.Timestamp) * 1000
}

func (b *Block) CoinbaseTx() *bt.Tx {
	if len(b.Transactions) == 0 {
		return nil
	}

	return b.Transactions[0]
}

// Payload is the serialized transaction data: a varint count followed by the transactions.
func (b *Block) Payload() []byte {
	var buf bytes.Buffer

	buf.Write(bt.VarInt(uint64(len(b.Transactions))).Bytes())

	for _, tx := range b.Transactions {
		buf.Write(tx.Bytes())
	}

	return buf.Bytes()
}

func (b *Block) Bytes() []byte {
	return append(b.Header.Bytes(), b.Payload()...)
}

func (b *Block) String() string {
	return b.Hash().String()
}

// CheckMerkleRoot recomputes the merkle root from the transactions.
func (b *Block) CheckMerkleRoot() error {
	root := CalculateMerkleRoot(b.Transactions)

	if b.Header.HashMerkleRoot == nil || !root.IsEqual(b.Header.HashMerkleRoot) {
		return errors.NewBlockInvalidError("merkle root mismatch: header %s, calculated %s", b.Header.HashMerkleRoot, root)
	}

	return nil
}
