package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	lru "github.com/hashicorp/golang-lru"
	"github.com/sethvargo/go-retry"
	"github.com/umbracle/ethgo"
)

const (
	defaultStatusCacheSize = 4096
	defaultRecoveryWindow  = 5 * time.Minute

	// reasons written by the handler itself
	reasonUnknownOutcome = "unknown outcome after restart"
	reasonReverted       = "reverted"
)

// ReceiptChecker queries the settlement chain for the receipt of a transaction
type ReceiptChecker interface {
	// ReceiptStatus returns found=false while the receipt is not available
	ReceiptStatus(ctx context.Context, hash ethgo.Hash) (found bool, success bool, err error)
}

type HandlerOption func(*Handler)

// WithStatusCacheSize sets the number of statuses kept in memory
func WithStatusCacheSize(size int) HandlerOption {
	return func(h *Handler) {
		h.cacheSize = size
	}
}

// WithWriteBackoff sets the backoff used to retry failed status writes
func WithWriteBackoff(backoff func() retry.Backoff) HandlerOption {
	return func(h *Handler) {
		h.writeBackoff = backoff
	}
}

// WithRecoveryWindow sets how long a Processing user op found on restart is re-queried
func WithRecoveryWindow(window time.Duration) HandlerOption {
	return func(h *Handler) {
		h.recoveryWindow = window
	}
}

// Handler owns the user op lifecycle: it accepts user ops, queues them for the proposal manager
// and applies status transitions in the order Pending -> Processing -> {Executed | Rejected}
type Handler struct {
	logger hclog.Logger
	store  StatusStore
	queue  *Queue

	// guards store transitions together with the cache update
	lock  sync.Mutex
	cache *lru.Cache

	cacheSize      int
	writeBackoff   func() retry.Backoff
	recoveryWindow time.Duration

	// lowest id submitted by this process, recovery never queues it or later ids
	liveLock    sync.Mutex
	firstLiveID uint64

	wg sync.WaitGroup
}

// NewHandler creates the bridge handler on top of the given status store
func NewHandler(logger hclog.Logger, store StatusStore, opts ...HandlerOption) (*Handler, error) {
	h := &Handler{
		logger:         logger.Named("bridge"),
		store:          store,
		queue:          NewQueue(),
		cacheSize:      defaultStatusCacheSize,
		recoveryWindow: defaultRecoveryWindow,
		writeBackoff: func() retry.Backoff {
			return retry.WithMaxRetries(5, retry.WithCappedDuration(2*time.Second,
				retry.NewExponential(50*time.Millisecond)))
		},
	}

	for _, opt := range opts {
		opt(h)
	}

	cache, err := lru.New(h.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create status cache: %w", err)
	}

	h.cache = cache

	return h, nil
}

// Submit persists the user op as Pending and enqueues it. It never waits on downstream processing.
func (h *Handler) Submit(op *UserOp) (uint64, error) {
	if err := op.Validate(); err != nil {
		return 0, err
	}

	id, err := h.store.Insert(op)
	if err != nil {
		return 0, err
	}

	h.markLive(id)

	queued := op.Copy()
	queued.ID = id

	h.cache.Add(id, Pending())
	h.queue.Push(queued)

	h.logger.Info("received user op", "id", id, "submitter", op.Submitter, "calldata_len", len(op.Calldata))

	incStatusMetric(StatusPending)
	updateQueueMetrics(h.queue.Len())

	return id, nil
}

func (h *Handler) markLive(id uint64) {
	h.liveLock.Lock()
	defer h.liveLock.Unlock()

	if h.firstLiveID == 0 || id < h.firstLiveID {
		h.firstLiveID = id
	}
}

// isLive reports whether the user op was submitted by this process and is already queued
func (h *Handler) isLive(id uint64) bool {
	h.liveLock.Lock()
	defer h.liveLock.Unlock()

	return h.firstLiveID != 0 && id >= h.firstLiveID
}

// Status returns the current status of the user op
func (h *Handler) Status(id uint64) (UserOpStatus, error) {
	if cached, ok := h.cache.Get(id); ok {
		return cached.(UserOpStatus), nil //nolint:forcetypeassert
	}

	// a miss is filled under the transition lock so a concurrent write is never overwritten by stale data
	h.lock.Lock()
	defer h.lock.Unlock()

	status, err := h.store.Get(id)
	if err != nil {
		return status, err
	}

	h.cache.Add(id, status)

	return status, nil
}

// NextPending pulls the next queued user op, it returns false when the queue is empty
func (h *Handler) NextPending() (*UserOp, bool) {
	op, ok := h.queue.Pop()
	if ok {
		updateQueueMetrics(h.queue.Len())
	}

	return op, ok
}

// HasPending returns true if there are queued user ops
func (h *Handler) HasPending() bool {
	return h.queue.Len() > 0
}

// PendingCount returns the number of queued user ops
func (h *Handler) PendingCount() int {
	return h.queue.Len()
}

// MarkProcessing records the hash of the settlement transaction carrying the user op
func (h *Handler) MarkProcessing(ctx context.Context, id uint64, txHash ethgo.Hash) error {
	return h.transition(ctx, id, Processing(txHash))
}

// RecordResubmission appends the hash of a gas bumped resubmission to a Processing user op,
// so restart recovery can find the receipt of whichever transaction was included
func (h *Handler) RecordResubmission(ctx context.Context, id uint64, txHash ethgo.Hash) error {
	h.lock.Lock()
	defer h.lock.Unlock()

	var current UserOpStatus

	if err := retry.Do(ctx, h.writeBackoff(), func(ctx context.Context) error {
		var err error

		current, err = h.store.Get(id)
		if errors.Is(err, ErrStorage) {
			return retry.RetryableError(err)
		}

		return err
	}); err != nil {
		return err
	}

	if current.Status != StatusProcessing {
		h.logger.Debug("ignored resubmission of user op", "id", id, "status", current, "tx", txHash)

		return nil
	}

	return h.transitionLocked(ctx, id, current.WithResubmission(txHash))
}

// MarkExecuted records a successful settlement
func (h *Handler) MarkExecuted(ctx context.Context, id uint64) error {
	return h.transition(ctx, id, Executed())
}

// MarkRejected records a rejection with the given reason
func (h *Handler) MarkRejected(ctx context.Context, id uint64, reason string) error {
	return h.transition(ctx, id, Rejected(reason))
}

// transition applies next if the lifecycle allows it. A disallowed transition,
// like a duplicate terminal notification, is a no-op and not an error.
// Storage faults are retried with backoff.
func (h *Handler) transition(ctx context.Context, id uint64, next UserOpStatus) error {
	h.lock.Lock()
	defer h.lock.Unlock()

	return h.transitionLocked(ctx, id, next)
}

func (h *Handler) transitionLocked(ctx context.Context, id uint64, next UserOpStatus) error {
	var applied bool

	err := retry.Do(ctx, h.writeBackoff(), func(ctx context.Context) error {
		var err error

		applied, err = h.store.Transition(id, next)
		if errors.Is(err, ErrStorage) {
			h.logger.Warn("status write failed, retrying", "id", id, "status", next, "err", err)

			return retry.RetryableError(err)
		}

		return err
	})
	if err != nil {
		return err
	}

	if !applied {
		h.logger.Debug("ignored status transition", "id", id, "status", next)

		return nil
	}

	h.cache.Add(id, next)

	h.logger.Info("user op status changed", "id", id, "status", next)
	incStatusMetric(next.Status)

	return nil
}

// Recover restores the handler state after a restart. Pending user ops are queued again in id order,
// except those submitted by this process which are queued already.
// Processing user ops have an unknown outcome, the receipts of every transaction sent for them
// are re-queried in the background until the recovery window elapses.
func (h *Handler) Recover(ctx context.Context, checker ReceiptChecker) error {
	var (
		pending    []*UserOp
		processing = map[uint64][]ethgo.Hash{}
	)

	if err := h.store.Iterate(func(op *UserOp, status UserOpStatus) error {
		switch status.Status {
		case StatusPending:
			if !h.isLive(op.ID) {
				pending = append(pending, op)
			}
		case StatusProcessing:
			if hashes := status.TxHashes(); len(hashes) > 0 {
				processing[op.ID] = hashes
			}
		}

		return nil
	}); err != nil {
		return err
	}

	for _, op := range pending {
		h.queue.Push(op)
	}

	updateQueueMetrics(h.queue.Len())

	h.logger.Info("recovered user ops", "pending", len(pending), "processing", len(processing))

	for id, hashes := range processing {
		h.wg.Add(1)

		go func(id uint64, hashes []ethgo.Hash) {
			defer h.wg.Done()

			h.recoverProcessing(ctx, checker, id, hashes)
		}(id, hashes)
	}

	return nil
}

func (h *Handler) recoverProcessing(ctx context.Context, checker ReceiptChecker, id uint64, hashes []ethgo.Hash) {
	var success bool

	backoff := retry.WithMaxDuration(h.recoveryWindow, retry.NewConstant(2*time.Second))

	// at most one of the hashes can be included, they share the nonce
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var lastErr error

		for _, hash := range hashes {
			found, ok, err := checker.ReceiptStatus(ctx, hash)
			if err != nil {
				lastErr = err

				continue
			}

			if found {
				success = ok

				return nil
			}
		}

		if lastErr != nil {
			return retry.RetryableError(lastErr)
		}

		return retry.RetryableError(fmt.Errorf("no receipt for any of %d transactions", len(hashes)))
	})

	if ctx.Err() != nil {
		return
	}

	switch {
	case err != nil:
		h.logger.Warn("outcome of user op is unknown", "id", id, "txs", hashes, "err", err)
		err = h.MarkRejected(ctx, id, reasonUnknownOutcome)
	case success:
		err = h.MarkExecuted(ctx, id)
	default:
		err = h.MarkRejected(ctx, id, reasonReverted)
	}

	if err != nil {
		h.logger.Error("failed to write recovered status", "id", id, "err", err)
	}
}

// Wait blocks until background recovery finished
func (h *Handler) Wait() {
	h.wg.Wait()
}
