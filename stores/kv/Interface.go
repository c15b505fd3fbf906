// Package kv defines the ordered key-value batch store the chain state is persisted in.
package kv

import (
	"context"
)

type OperationType uint8

const (
	OperationPut OperationType = iota
	OperationDel
)

func (t OperationType) String() string {
	if t == OperationDel {
		return "del"
	}

	return "put"
}

// Operation is a single write in a batch. Del operations may carry the value that was written
// by the matching put; stores ignore it.
type Operation struct {
	Type  OperationType
	Key   []byte
	Value []byte
}

func Put(key, value []byte) Operation {
	return Operation{Type: OperationPut, Key: key, Value: value}
}

func Del(key, value []byte) Operation {
	return Operation{Type: OperationDel, Key: key, Value: value}
}

// Iterator walks keys in ascending byte order. It is lazy: rows are read as Next is called.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Error() error
	Release()
}

type Reader interface {
	// Get returns errors.ErrNotFound when the key does not exist.
	Get(ctx context.Context, key []byte) ([]byte, error)
	Has(ctx context.Context, key []byte) (bool, error)
	// NewIterator returns all keys starting with prefix.
	NewIterator(ctx context.Context, prefix []byte) Iterator
}

// Snapshot is a consistent read view. It does not observe batches applied after it was taken.
type Snapshot interface {
	Reader
	Release()
}

type Store interface {
	Reader
	// ApplyBatch applies all operations atomically: either every operation is visible
	// afterwards or none is.
	ApplyBatch(ctx context.Context, ops []Operation) error
	Snapshot(ctx context.Context) (Snapshot, error)
	Close() error
}
