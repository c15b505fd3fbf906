package utxo

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/bsv-blockchain/chainlite/errors"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/bscript"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

const (
	OutputsPrefix = "outs"
	SpentsPrefix  = "sp"
	TxPrefix      = "tx"
)

// Output is one entry of the outputs namespace, or an output of a pooled transaction when
// Mempool is set.
type Output struct {
	Address   string
	Timestamp int64
	TxID      *chainhash.Hash
	Index     uint32
	Satoshis  uint64
	Script    *bscript.Script
	Height    uint32
	Mempool   bool
}

// Spent records which input consumed an output.
type Spent struct {
	SpendingTxID *chainhash.Hash
	InputIndex   uint32
	Timestamp    int64
}

// TxRecord is a confirmed transaction with the block that carries it.
type TxRecord struct {
	Tx        *bt.Tx
	BlockHash *chainhash.Hash
	Height    uint32
}

// OutputKey is outs-<address>-<timestamp ms, 13 digits>-<txid>-<index>. The fixed width
// timestamp keeps an address range in time order.
func OutputKey(address string, timestampMs int64, txid string, index uint32) []byte {
	return []byte(fmt.Sprintf("%s-%s-%013d-%s-%d", OutputsPrefix, address, timestampMs, txid, index))
}

// AddressPrefix is the range of every output key paying address.
func AddressPrefix(address string) []byte {
	return []byte(OutputsPrefix + "-" + address + "-")
}

func OutputValue(satoshis uint64, script []byte, height uint32) []byte {
	return []byte(fmt.Sprintf("%d:%x:%d", satoshis, script, height))
}

func ParseOutput(key, value []byte) (*Output, error) {
	k := strings.Split(string(key), "-")
	if len(k) != 5 || k[0] != OutputsPrefix {
		return nil, errors.NewProcessingError("malformed output key %q", key)
	}

	v := strings.Split(string(value), ":")
	if len(v) != 3 {
		return nil, errors.NewProcessingError("malformed output value for %q", key)
	}

	timestamp, err := strconv.ParseInt(k[2], 10, 64)
	if err != nil {
		return nil, errors.NewProcessingError("bad timestamp in output key %q", key, err)
	}

	txid, err := chainhash.NewHashFromStr(k[3])
	if err != nil {
		return nil, errors.NewProcessingError("bad txid in output key %q", key, err)
	}

	index, err := strconv.ParseUint(k[4], 10, 32)
	if err != nil {
		return nil, errors.NewProcessingError("bad index in output key %q", key, err)
	}

	satoshis, err := strconv.ParseUint(v[0], 10, 64)
	if err != nil {
		return nil, errors.NewProcessingError("bad satoshis in output %q", key, err)
	}

	script, err := bscript.NewFromHexString(v[1])
	if err != nil {
		return nil, errors.NewProcessingError("bad script in output %q", key, err)
	}

	height, err := strconv.ParseUint(v[2], 10, 32)
	if err != nil {
		return nil, errors.NewProcessingError("bad height in output %q", key, err)
	}

	return &Output{
		Address:   k[1],
		Timestamp: timestamp,
		TxID:      txid,
		Index:     uint32(index),
		Satoshis:  satoshis,
		Script:    script,
		Height:    uint32(height),
	}, nil
}

// SpentKey is sp-<previous txid>-<previous index>.
func SpentKey(prevTxID string, prevIndex uint32) []byte {
	return []byte(fmt.Sprintf("%s-%s-%d", SpentsPrefix, prevTxID, prevIndex))
}

func SpentValue(spendingTxID string, inputIndex uint32, timestampMs int64) []byte {
	return []byte(fmt.Sprintf("%s:%d:%d", spendingTxID, inputIndex, timestampMs))
}

func ParseSpent(value []byte) (*Spent, error) {
	v := strings.Split(string(value), ":")
	if len(v) != 3 {
		return nil, errors.NewProcessingError("malformed spent value %q", value)
	}

	txid, err := chainhash.NewHashFromStr(v[0])
	if err != nil {
		return nil, errors.NewProcessingError("bad txid in spent value %q", value, err)
	}

	inputIndex, err := strconv.ParseUint(v[1], 10, 32)
	if err != nil {
		return nil, errors.NewProcessingError("bad input index in spent value %q", value, err)
	}

	timestamp, err := strconv.ParseInt(v[2], 10, 64)
	if err != nil {
		return nil, errors.NewProcessingError("bad timestamp in spent value %q", value, err)
	}

	return &Spent{SpendingTxID: txid, InputIndex: uint32(inputIndex), Timestamp: timestamp}, nil
}

// TxKey is tx-<txid>.
func TxKey(txid string) []byte {
	return []byte(TxPrefix + "-" + txid)
}

func TxValue(blockHash string, height uint32, rawTx []byte) []byte {
	return []byte(fmt.Sprintf("%s:%d:%x", blockHash, height, rawTx))
}

func ParseTxRecord(value []byte) (*TxRecord, error) {
	v := strings.Split(string(value), ":")
	if len(v) != 3 {
		return nil, errors.NewProcessingError("malformed tx record")
	}

	blockHash, err := chainhash.NewHashFromStr(v[0])
	if err != nil {
		return nil, errors.NewProcessingError("bad block hash in tx record", err)
	}

	height, err := strconv.ParseUint(v[1], 10, 32)
	if err != nil {
		return nil, errors.NewProcessingError("bad height in tx record", err)
	}

	rawTx, err := hex.DecodeString(v[2])
	if err != nil {
		return nil, errors.NewProcessingError("bad tx hex in tx record", err)
	}

	tx, err := bt.NewTxFromBytes(rawTx)
	if err != nil {
		return nil, errors.NewProcessingError("failed to parse tx record", err)
	}

	return &TxRecord{Tx: tx, BlockHash: blockHash, Height: uint32(height)}, nil
}
