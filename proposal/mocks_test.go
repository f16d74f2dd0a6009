package proposal

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
	"github.com/umbracle/ethgo"

	"github.com/0xPolygon/polygon-preconf/bridge"
	"github.com/0xPolygon/polygon-preconf/contractsapi"
	"github.com/0xPolygon/polygon-preconf/l1"
	"github.com/0xPolygon/polygon-preconf/l2"
	"github.com/0xPolygon/polygon-preconf/txmonitor"
)

var _ simulator = (*dummySimulator)(nil)

type dummySimulator struct {
	mock.Mock
}

func (d *dummySimulator) FindMessageAndSignal(ctx context.Context, op *bridge.UserOp) (*l1.BridgeEventPair, error) {
	args := d.Called(ctx, op)

	pair, _ := args.Get(0).(*l1.BridgeEventPair)

	return pair, args.Error(1)
}

var _ blockBuilder = (*fakeBuilder)(nil)

// fakeBuilder builds unsigned transactions with the rules of the real builder
type fakeBuilder struct {
	lock sync.Mutex

	anchoredSlots [][]ethgo.Hash
	checkpoints   []contractsapi.Checkpoint
	outbound      map[uint64][]*l2.OutboundMessage
	anchorErr     error
}

func newFakeBuilder() *fakeBuilder {
	return &fakeBuilder{outbound: map[uint64][]*l2.OutboundMessage{}}
}

func (f *fakeBuilder) ConstructAnchorTx(_ context.Context, parent *l2.Header,
	checkpoint contractsapi.Checkpoint, slots []ethgo.Hash) (*ethgo.Transaction, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.anchorErr != nil {
		return nil, f.anchorErr
	}

	f.anchoredSlots = append(f.anchoredSlots, append([]ethgo.Hash{}, slots...))
	f.checkpoints = append(f.checkpoints, checkpoint)

	return &ethgo.Transaction{Nonce: parent.Number, Input: []byte{0xa0}}, nil
}

func (f *fakeBuilder) ConstructL2CallTx(draft *l2.DraftBlock, call *l1.L2Call) (*ethgo.Transaction, error) {
	if !draft.IsAnchored(call.SignalSlot) {
		return nil, l2.ErrSlotNotAnchored
	}

	return &ethgo.Transaction{Nonce: draft.NextNonce(), Input: call.Message}, nil
}

func (f *fakeBuilder) FindMessageAndSignal(_ context.Context, block *l2.SealedBlock) ([]*l2.OutboundMessage, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	return f.outbound[block.Number], nil
}

var _ l2.Driver = (*fakeDriver)(nil)

// fakeDriver seals drafts on top of an in-memory chain
type fakeDriver struct {
	lock sync.Mutex

	head    uint64
	drafts  []*l2.DraftBlock
	pending bool
	sealErr error
}

func (f *fakeDriver) Head(context.Context) (*l2.Header, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	return &l2.Header{
		Number:    f.head,
		Hash:      blockHash(f.head),
		StateRoot: ethgo.BytesToHash([]byte{0x5, byte(f.head)}),
	}, nil
}

func (f *fakeDriver) SealBlock(_ context.Context, draft *l2.DraftBlock) (*l2.SealedBlock, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.sealErr != nil {
		return nil, f.sealErr
	}

	f.drafts = append(f.drafts, draft)
	f.head = draft.Parent.Number + 1

	txs := make([]bridge.HexBytes, len(draft.Transactions))
	for i, tx := range draft.Transactions {
		txs[i] = tx.Input
	}

	return &l2.SealedBlock{
		Number:       f.head,
		Hash:         blockHash(f.head),
		StateRoot:    ethgo.BytesToHash([]byte{0x5, byte(f.head)}),
		Timestamp:    1_700_000_000 + f.head,
		Transactions: txs,
	}, nil
}

func (f *fakeDriver) HasPendingTransactions(context.Context) (bool, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	return f.pending, nil
}

func blockHash(number uint64) ethgo.Hash {
	return ethgo.BytesToHash([]byte{0xb, byte(number)})
}

var _ Submission = (*fakeSubmission)(nil)

type fakeSubmission struct {
	hash        chan ethgo.Hash
	resubmitted chan ethgo.Hash
	outcome     chan *txmonitor.Outcome
	hashed      bool
}

func newFakeSubmission() *fakeSubmission {
	return &fakeSubmission{
		hash:        make(chan ethgo.Hash, 1),
		resubmitted: make(chan ethgo.Hash, 8),
		outcome:     make(chan *txmonitor.Outcome, 1),
	}
}

func (f *fakeSubmission) TxHash() <-chan ethgo.Hash {
	return f.hash
}

func (f *fakeSubmission) Resubmitted() <-chan ethgo.Hash {
	return f.resubmitted
}

func (f *fakeSubmission) Outcome() <-chan *txmonitor.Outcome {
	return f.outcome
}

func (f *fakeSubmission) sent(hash ethgo.Hash) {
	f.hash <- hash
	close(f.hash)
	f.hashed = true
}

func (f *fakeSubmission) resubmit(hash ethgo.Hash) {
	f.resubmitted <- hash
}

func (f *fakeSubmission) finish(outcome *txmonitor.Outcome) {
	if !f.hashed {
		close(f.hash)
	}

	close(f.resubmitted)

	f.outcome <- outcome
	close(f.outcome)
}

// failingStore fails the next status writes with a storage error
type failingStore struct {
	bridge.StatusStore

	lock     sync.Mutex
	failures int
}

func (f *failingStore) failNext(n int) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.failures = n
}

func (f *failingStore) Transition(id uint64, next bridge.UserOpStatus) (bool, error) {
	f.lock.Lock()
	if f.failures > 0 {
		f.failures--
		f.lock.Unlock()

		return false, bridge.ErrStorage
	}
	f.lock.Unlock()

	return f.StatusStore.Transition(id, next)
}

var _ Submitter = (*fakeSubmitter)(nil)

type fakeSubmitter struct {
	lock sync.Mutex

	busy        bool
	submitErr   error
	txs         []*ethgo.Transaction
	submissions []*fakeSubmission
}

func (f *fakeSubmitter) IsBusy() bool {
	f.lock.Lock()
	defer f.lock.Unlock()

	return f.busy
}

func (f *fakeSubmitter) Submit(_ context.Context, tx *ethgo.Transaction) (Submission, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.submitErr != nil {
		return nil, f.submitErr
	}

	sub := newFakeSubmission()
	f.txs = append(f.txs, tx)
	f.submissions = append(f.submissions, sub)

	return sub, nil
}

func (f *fakeSubmitter) last() *fakeSubmission {
	f.lock.Lock()
	defer f.lock.Unlock()

	return f.submissions[len(f.submissions)-1]
}
