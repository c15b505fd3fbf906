// Package leveldb is a kv.Store on goleveldb, backed by files or by memory.
package leveldb

import (
	"context"

	"github.com/bsv-blockchain/chainlite/errors"
	"github.com/bsv-blockchain/chainlite/stores/kv"
	"github.com/bsv-blockchain/chainlite/ulogger"
	"github.com/btcsuite/goleveldb/leveldb"
	"github.com/btcsuite/goleveldb/leveldb/iterator"
	"github.com/btcsuite/goleveldb/leveldb/opt"
	"github.com/btcsuite/goleveldb/leveldb/storage"
	"github.com/btcsuite/goleveldb/leveldb/util"
)

type Store struct {
	logger ulogger.Logger
	db     *leveldb.DB
}

// New opens (or creates) a database in the given folder.
func New(logger ulogger.Logger, path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.NewStorageError("failed to open leveldb at %s", path, err)
	}

	logger.Infof("[leveldb] opened %s", path)

	return &Store{logger: logger, db: db}, nil
}

// NewMemory creates a database that lives only in memory.
func NewMemory(logger ulogger.Logger) (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, errors.NewStorageError("failed to open in-memory leveldb", err)
	}

	return &Store{logger: logger, db: db}, nil
}

func (s *Store) Get(ctx context.Context, key []byte) ([]byte, error) {
	return get(ctx, s.db, key)
}

func (s *Store) Has(ctx context.Context, key []byte) (bool, error) {
	return has(ctx, s.db, key)
}

func (s *Store) NewIterator(_ context.Context, prefix []byte) kv.Iterator {
	return s.db.NewIterator(util.BytesPrefix(prefix), nil)
}

func (s *Store) ApplyBatch(ctx context.Context, ops []kv.Operation) error {
	if err := ctx.Err(); err != nil {
		return errors.NewContextCanceledError("[leveldb] batch not applied", err)
	}

	batch := new(leveldb.Batch)

	for _, op := range ops {
		switch op.Type {
		case kv.OperationPut:
			batch.Put(op.Key, op.Value)
		case kv.OperationDel:
			batch.Delete(op.Key)
		default:
			return errors.NewInvalidArgumentError("[leveldb] unknown operation type %d", op.Type)
		}
	}

	if err := s.db.Write(batch, nil); err != nil {
		return errors.NewStorageError("[leveldb] failed to write batch of %d operations", len(ops), err)
	}

	return nil
}

func (s *Store) Snapshot(_ context.Context) (kv.Snapshot, error) {
	snap, err := s.db.GetSnapshot()
	if err != nil {
		return nil, errors.NewStorageError("[leveldb] failed to take snapshot", err)
	}

	return &snapshot{snap: snap}, nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return errors.NewStorageError("[leveldb] failed to close", err)
	}

	return nil
}

type snapshot struct {
	snap *leveldb.Snapshot
}

func (s *snapshot) Get(ctx context.Context, key []byte) ([]byte, error) {
	return get(ctx, s.snap, key)
}

func (s *snapshot) Has(ctx context.Context, key []byte) (bool, error) {
	return has(ctx, s.snap, key)
}

func (s *snapshot) NewIterator(_ context.Context, prefix []byte) kv.Iterator {
	return s.snap.NewIterator(util.BytesPrefix(prefix), nil)
}

func (s *snapshot) Release() {
	s.snap.Release()
}

// reader is the subset of leveldb.DB and leveldb.Snapshot used here.
type reader interface {
	Get(key []byte, ro *opt.ReadOptions) ([]byte, error)
	Has(key []byte, ro *opt.ReadOptions) (bool, error)
	NewIterator(slice *util.Range, ro *opt.ReadOptions) iterator.Iterator
}

func get(ctx context.Context, r reader, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewContextCanceledError("[leveldb] get aborted", err)
	}

	value, err := r.Get(key, nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, errors.NewNotFoundError("[leveldb] key %q not found", key)
		}

		return nil, errors.NewStorageError("[leveldb] failed to get %q", key, err)
	}

	return value, nil
}

func has(ctx context.Context, r reader, key []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, errors.NewContextCanceledError("[leveldb] has aborted", err)
	}

	ok, err := r.Has(key, nil)
	if err != nil {
		return false, errors.NewStorageError("[leveldb] failed to check %q", key, err)
	}

	return ok, nil
}
