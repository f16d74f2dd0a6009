package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/0xPolygon/polygon-preconf/helper/common"
)

var (
	userOpPrefix  = []byte("o")
	statusPrefix  = []byte("s")
	sequenceKey   = []byte("n")
	errInvalidSeq = errors.New("invalid id sequence value")
)

var _ StatusStore = (*levelDBStatusStore)(nil)

// levelDBStatusStore keeps the same layout as the bolt store, with prefixes instead of buckets.
// leveldb has no read-modify-write transactions, so writers are serialized by lock.
type levelDBStatusStore struct {
	db   *leveldb.DB
	lock sync.Mutex
}

// NewLevelDBStatusStore opens (or creates) the leveldb database in the directory at path
func NewLevelDBStatusStore(path string) (*levelDBStatusStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open status store at %s: %w", ErrStorage, path, err)
	}

	return &levelDBStatusStore{db: db}, nil
}

func (s *levelDBStatusStore) Insert(op *UserOp) (uint64, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	id, err := s.lastID()
	if err != nil {
		return 0, err
	}

	id++

	stored := op.Copy()
	stored.ID = id

	opRaw, err := json.Marshal(stored)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	statusRaw, err := json.Marshal(Pending())
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	batch := new(leveldb.Batch)
	batch.Put(sequenceKey, common.EncodeUint64ToBytes(id))
	batch.Put(prefixedKey(userOpPrefix, id), opRaw)
	batch.Put(prefixedKey(statusPrefix, id), statusRaw)

	if err := s.db.Write(batch, nil); err != nil {
		return 0, fmt.Errorf("%w: failed to insert user op: %w", ErrStorage, err)
	}

	return id, nil
}

func (s *levelDBStatusStore) Get(id uint64) (UserOpStatus, error) {
	var status UserOpStatus

	raw, err := s.db.Get(prefixedKey(statusPrefix, id), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return status, fmt.Errorf("%w: id=%d", ErrNotFound, id)
	} else if err != nil {
		return status, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	if err := json.Unmarshal(raw, &status); err != nil {
		return status, fmt.Errorf("%w: corrupted status id=%d: %w", ErrStorage, id, err)
	}

	return status, nil
}

func (s *levelDBStatusStore) GetUserOp(id uint64) (*UserOp, error) {
	raw, err := s.db.Get(prefixedKey(userOpPrefix, id), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("%w: id=%d", ErrNotFound, id)
	} else if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	op := &UserOp{}
	if err := json.Unmarshal(raw, op); err != nil {
		return nil, fmt.Errorf("%w: corrupted user op id=%d: %w", ErrStorage, id, err)
	}

	return op, nil
}

func (s *levelDBStatusStore) Transition(id uint64, next UserOpStatus) (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	current, err := s.Get(id)
	if err != nil {
		return false, err
	}

	if !current.CanTransitionTo(next) {
		return false, nil
	}

	raw, err := json.Marshal(next)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	if err := s.db.Put(prefixedKey(statusPrefix, id), raw, nil); err != nil {
		return false, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	return true, nil
}

func (s *levelDBStatusStore) Iterate(fn func(op *UserOp, status UserOpStatus) error) error {
	iter := s.db.NewIterator(util.BytesPrefix(userOpPrefix), nil)
	defer iter.Release()

	for iter.Next() {
		op := &UserOp{}
		if err := json.Unmarshal(iter.Value(), op); err != nil {
			return fmt.Errorf("%w: corrupted user op key=%x: %w", ErrStorage, iter.Key(), err)
		}

		status, err := s.Get(op.ID)
		if err != nil {
			return err
		}

		if err := fn(op, status); err != nil {
			return err
		}
	}

	return iter.Error()
}

func (s *levelDBStatusStore) Close() error {
	return s.db.Close()
}

func (s *levelDBStatusStore) lastID() (uint64, error) {
	raw, err := s.db.Get(sequenceKey, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	if len(raw) != 8 {
		return 0, fmt.Errorf("%w: %w", ErrStorage, errInvalidSeq)
	}

	return common.EncodeBytesToUint64(raw), nil
}

func prefixedKey(prefix []byte, id uint64) []byte {
	return append(append([]byte{}, prefix...), common.EncodeUint64ToBytes(id)...)
}
