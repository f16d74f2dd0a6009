package bridge

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/0xPolygon/polygon-preconf/helper/common"
)

var (
	// bucket with user ops keyed by big endian id
	userOpsBucket = []byte("userops")
	// bucket with user op statuses keyed by big endian id
	statusBucket = []byte("status")
)

var _ StatusStore = (*boltStatusStore)(nil)

type boltStatusStore struct {
	db *bolt.DB
}

// NewBoltStatusStore opens (or creates) the bolt database at path
func NewBoltStatusStore(path string) (*boltStatusStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open status store at %s: %w", ErrStorage, path, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{userOpsBucket, statusBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket=%s: %w", string(bucket), err)
			}
		}

		return nil
	}); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	return &boltStatusStore{db: db}, nil
}

func (s *boltStatusStore) Insert(op *UserOp) (id uint64, err error) {
	err = s.db.Update(func(tx *bolt.Tx) error {
		opsBucket := tx.Bucket(userOpsBucket)

		if id, err = opsBucket.NextSequence(); err != nil {
			return err
		}

		stored := op.Copy()
		stored.ID = id

		opRaw, err := json.Marshal(stored)
		if err != nil {
			return err
		}

		statusRaw, err := json.Marshal(Pending())
		if err != nil {
			return err
		}

		key := common.EncodeUint64ToBytes(id)

		if err := opsBucket.Put(key, opRaw); err != nil {
			return err
		}

		return tx.Bucket(statusBucket).Put(key, statusRaw)
	})
	if err != nil {
		return 0, fmt.Errorf("%w: failed to insert user op: %w", ErrStorage, err)
	}

	return id, nil
}

func (s *boltStatusStore) Get(id uint64) (status UserOpStatus, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		status, err = getStatus(tx, id)

		return err
	})

	return status, err
}

func (s *boltStatusStore) GetUserOp(id uint64) (*UserOp, error) {
	var op *UserOp

	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(userOpsBucket).Get(common.EncodeUint64ToBytes(id))
		if raw == nil {
			return fmt.Errorf("%w: id=%d", ErrNotFound, id)
		}

		op = &UserOp{}

		if err := json.Unmarshal(raw, op); err != nil {
			return fmt.Errorf("%w: corrupted user op id=%d: %w", ErrStorage, id, err)
		}

		return nil
	})

	return op, err
}

func (s *boltStatusStore) Transition(id uint64, next UserOpStatus) (applied bool, err error) {
	err = s.db.Update(func(tx *bolt.Tx) error {
		current, err := getStatus(tx, id)
		if err != nil {
			return err
		}

		if !current.CanTransitionTo(next) {
			return nil
		}

		raw, err := json.Marshal(next)
		if err != nil {
			return err
		}

		if err := tx.Bucket(statusBucket).Put(common.EncodeUint64ToBytes(id), raw); err != nil {
			return fmt.Errorf("%w: %w", ErrStorage, err)
		}

		applied = true

		return nil
	})

	return applied, err
}

func (s *boltStatusStore) Iterate(fn func(op *UserOp, status UserOpStatus) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		statuses := tx.Bucket(statusBucket)

		// bolt keeps keys sorted and ids are big endian, so this is ascending id order
		return tx.Bucket(userOpsBucket).ForEach(func(key, value []byte) error {
			op := &UserOp{}
			if err := json.Unmarshal(value, op); err != nil {
				return fmt.Errorf("%w: corrupted user op key=%x: %w", ErrStorage, key, err)
			}

			var status UserOpStatus

			raw := statuses.Get(key)
			if raw == nil {
				return fmt.Errorf("%w: user op id=%d has no status", ErrStorage, op.ID)
			}

			if err := json.Unmarshal(raw, &status); err != nil {
				return fmt.Errorf("%w: corrupted status id=%d: %w", ErrStorage, op.ID, err)
			}

			return fn(op, status)
		})
	})
}

func (s *boltStatusStore) Close() error {
	return s.db.Close()
}

func getStatus(tx *bolt.Tx, id uint64) (UserOpStatus, error) {
	var status UserOpStatus

	raw := tx.Bucket(statusBucket).Get(common.EncodeUint64ToBytes(id))
	if raw == nil {
		return status, fmt.Errorf("%w: id=%d", ErrNotFound, id)
	}

	if err := json.Unmarshal(raw, &status); err != nil {
		return status, fmt.Errorf("%w: corrupted status id=%d: %w", ErrStorage, id, err)
	}

	return status, nil
}
