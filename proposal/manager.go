package proposal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/umbracle/ethgo"

	"github.com/0xPolygon/polygon-preconf/bridge"
	"github.com/0xPolygon/polygon-preconf/contractsapi"
	"github.com/0xPolygon/polygon-preconf/l1"
	"github.com/0xPolygon/polygon-preconf/l2"
	"github.com/0xPolygon/polygon-preconf/txmonitor"
)

const (
	reasonReverted  = "reverted"
	reasonExhausted = "exhausted"
	reasonDropped   = "dropped"
)

var (
	// ErrSubmissionReverted is the error of a proposal whose multicall reverted on L1
	ErrSubmissionReverted = errors.New("proposal transaction reverted")

	errNoOutcome      = errors.New("submission finished without an outcome")
	errInvalidProof   = errors.New("invalid proof signature length")
	errBuilderMissing = errors.New("missing proposal collaborators")
)

// userOpStore is the part of the bridge handler used by the manager
type userOpStore interface {
	NextPending() (*bridge.UserOp, bool)
	HasPending() bool
	MarkProcessing(ctx context.Context, id uint64, txHash ethgo.Hash) error
	RecordResubmission(ctx context.Context, id uint64, txHash ethgo.Hash) error
	MarkExecuted(ctx context.Context, id uint64) error
	MarkRejected(ctx context.Context, id uint64, reason string) error
}

type simulator interface {
	FindMessageAndSignal(ctx context.Context, op *bridge.UserOp) (*l1.BridgeEventPair, error)
}

type blockBuilder interface {
	ConstructAnchorTx(ctx context.Context, parent *l2.Header,
		checkpoint contractsapi.Checkpoint, slots []ethgo.Hash) (*ethgo.Transaction, error)
	ConstructL2CallTx(draft *l2.DraftBlock, call *l1.L2Call) (*ethgo.Transaction, error)
	FindMessageAndSignal(ctx context.Context, block *l2.SealedBlock) ([]*l2.OutboundMessage, error)
}

var (
	_ userOpStore  = (*bridge.Handler)(nil)
	_ simulator    = (*l1.Simulator)(nil)
	_ blockBuilder = (*l2.Builder)(nil)
)

// Config holds the thresholds that make the accumulating proposal ready
type Config struct {
	MaxBlocksPerProposal int
	MaxProposalBytes     int
	MaxProposalAge       time.Duration
	SubmitEachUserOp     bool
}

func DefaultConfig() Config {
	return Config{
		MaxBlocksPerProposal: 8,
		MaxProposalBytes:     120_000,
		MaxProposalAge:       12 * time.Second,
		SubmitEachUserOp:     true,
	}
}

// Params are the collaborators of the manager
type Params struct {
	Handler   userOpStore
	Simulator simulator
	Builder   blockBuilder
	Driver    l2.Driver
	TxBuilder *TxBuilder
	Submitter Submitter
	// ProofKey signs the proofs of L2 to L1 messages
	ProofKey ethgo.Key
}

// Manager assembles sealed L2 blocks, user ops and L1 calls into proposals and submits them to L1.
// Step and TrySubmitOldest are driven by a single goroutine.
type Manager struct {
	logger hclog.Logger
	config Config
	params Params

	current *Proposal
	carried *bridge.UserOp
	// a simulation rejection whose status write failed, written again by the next step
	unwritten *rejection

	lock  sync.Mutex
	ready []*Proposal

	now func() time.Time
	wg  sync.WaitGroup
}

type rejection struct {
	id     uint64
	reason string
}

func NewManager(logger hclog.Logger, config Config, params Params) (*Manager, error) {
	if params.Handler == nil || params.Simulator == nil || params.Builder == nil ||
		params.Driver == nil || params.TxBuilder == nil || params.Submitter == nil || params.ProofKey == nil {
		return nil, errBuilderMissing
	}

	return &Manager{
		logger: logger,
		config: config,
		params: params,
		now:    time.Now,
	}, nil
}

// HasWork reports whether a step would build a block
func (m *Manager) HasWork(ctx context.Context) (bool, error) {
	if m.carried != nil || m.unwritten != nil || m.params.Handler.HasPending() {
		return true, nil
	}

	return m.params.Driver.HasPendingTransactions(ctx)
}

// Step builds one L2 block. A pending user op is simulated on L1 first and its message is
// delivered on L2 in the block. A rejected user op ends the step without a block.
// On construction errors the user op is kept and retried by the next step.
func (m *Manager) Step(ctx context.Context) error {
	defer measureStepMetric(time.Now())

	if m.unwritten != nil {
		return m.writeRejection(ctx, m.unwritten)
	}

	op := m.carried
	m.carried = nil

	if op == nil {
		op, _ = m.params.Handler.NextPending()
	}

	var call *l1.L2Call

	if op != nil {
		pair, err := m.params.Simulator.FindMessageAndSignal(ctx, op)
		if err != nil {
			var rejectedErr *l1.SimulationRejectedError
			if errors.As(err, &rejectedErr) {
				m.logger.Info("user op rejected by simulation", "id", op.ID, "reason", rejectedErr.Reason)

				return m.writeRejection(ctx, &rejection{id: op.ID, reason: rejectedErr.Reason})
			}

			m.carried = op

			return fmt.Errorf("failed to simulate user op %d: %w", op.ID, err)
		}

		call, err = pair.L2Call()
		if err != nil {
			m.carried = op

			return err
		}
	}

	if err := m.buildBlock(ctx, op, call); err != nil {
		if op != nil {
			m.carried = op
		}

		return err
	}

	return nil
}

// writeRejection records a simulation rejection. A failed write is kept and retried by the next step,
// the user op is not simulated again.
func (m *Manager) writeRejection(ctx context.Context, r *rejection) error {
	if err := m.params.Handler.MarkRejected(ctx, r.id, r.reason); err != nil {
		m.unwritten = r

		return fmt.Errorf("failed to mark user op %d rejected: %w", r.id, err)
	}

	m.unwritten = nil

	return nil
}

func (m *Manager) buildBlock(ctx context.Context, op *bridge.UserOp, call *l1.L2Call) error {
	parent, err := m.params.Driver.Head(ctx)
	if err != nil {
		return fmt.Errorf("failed to get L2 head: %w", err)
	}

	p := m.current
	if p == nil {
		p = newProposal(m.now())
	}

	var newSlot *ethgo.Hash
	if call != nil {
		newSlot = &call.SignalSlot
	}

	slots := p.SlotsWith(newSlot)

	anchor, err := m.params.Builder.ConstructAnchorTx(ctx, parent, contractsapi.Checkpoint{
		BlockNumber: parent.Number,
		BlockHash:   parent.Hash,
		StateRoot:   parent.StateRoot,
	}, slots)
	if err != nil {
		return fmt.Errorf("failed to construct anchor tx: %w", err)
	}

	draft := l2.NewDraftBlock(parent)
	if err := draft.AddAnchor(anchor, slots); err != nil {
		return err
	}

	if call != nil {
		tx, err := m.params.Builder.ConstructL2CallTx(draft, call)
		if err != nil {
			return fmt.Errorf("failed to construct bridge tx: %w", err)
		}

		draft.Add(tx)
	}

	block, err := m.params.Driver.SealBlock(ctx, draft)
	if err != nil {
		return fmt.Errorf("failed to seal block: %w", err)
	}

	outbound, err := m.params.Builder.FindMessageAndSignal(ctx, block)
	if err != nil {
		return fmt.Errorf("failed to scan block %d for outbound messages: %w", block.Number, err)
	}

	calls := make([]*L1Call, 0, len(outbound))

	for _, msg := range outbound {
		proof, err := m.signProof(msg.Slot)
		if err != nil {
			return fmt.Errorf("failed to sign proof for slot %s: %w", msg.Slot, err)
		}

		calls = append(calls, &L1Call{Message: msg.Message, Proof: proof})
	}

	// the block is sealed, from here on nothing fails
	if op != nil {
		p.addUserOp(op, call.SignalSlot)
	}

	p.addBlock(block)
	p.L1Calls = append(p.L1Calls, calls...)
	m.current = p

	m.logger.Info("block added to proposal", "proposal", p.ID, "number", block.Number,
		"hash", block.Hash, "user_op", op != nil, "l1_calls", len(calls))

	return m.checkThresholds(p, op != nil)
}

// signProof returns the signature of the slot laid out as r || s || v+27
func (m *Manager) signProof(slot ethgo.Hash) ([]byte, error) {
	sig, err := m.params.ProofKey.Sign(slot.Bytes())
	if err != nil {
		return nil, err
	}

	if len(sig) != 65 {
		return nil, fmt.Errorf("%w: %d", errInvalidProof, len(sig))
	}

	proof := append([]byte{}, sig...)
	proof[64] += 27

	return proof, nil
}

func (m *Manager) checkThresholds(p *Proposal, withUserOp bool) error {
	blob, err := EncodeBlob(p.Blocks)
	if err != nil {
		return fmt.Errorf("failed to encode blob: %w", err)
	}

	switch {
	case withUserOp && m.config.SubmitEachUserOp:
		m.markReady(p, "user op", len(blob))
	case m.config.MaxBlocksPerProposal > 0 && len(p.Blocks) >= m.config.MaxBlocksPerProposal:
		m.markReady(p, "max blocks", len(blob))
	case m.config.MaxProposalBytes > 0 && len(blob) >= m.config.MaxProposalBytes:
		m.markReady(p, "max bytes", len(blob))
	case m.expired(p):
		m.markReady(p, "max age", len(blob))
	}

	return nil
}

func (m *Manager) expired(p *Proposal) bool {
	return m.config.MaxProposalAge > 0 && m.now().Sub(p.CreatedAt) >= m.config.MaxProposalAge
}

func (m *Manager) markReady(p *Proposal, trigger string, blobSize int) {
	p.State = Ready
	m.current = nil

	m.lock.Lock()
	m.ready = append(m.ready, p)
	count := len(m.ready)
	m.lock.Unlock()

	m.logger.Info("proposal ready", "proposal", p.ID, "trigger", trigger, "blocks", len(p.Blocks),
		"user_ops", len(p.UserOps), "checkpoint", p.Checkpoint)

	incProposalMetric(Ready)
	setReadyProposalsMetric(count)
	observeProposalMetrics(p, blobSize)
}

// flushExpired makes the accumulating proposal ready once it is too old
func (m *Manager) flushExpired() error {
	if m.current == nil || m.current.IsEmpty() || !m.expired(m.current) {
		return nil
	}

	blob, err := EncodeBlob(m.current.Blocks)
	if err != nil {
		return err
	}

	m.markReady(m.current, "max age", len(blob))

	return nil
}

// ReadyCount returns the number of proposals waiting for submission
func (m *Manager) ReadyCount() int {
	m.lock.Lock()
	defer m.lock.Unlock()

	return len(m.ready)
}

func (m *Manager) popReady() *Proposal {
	m.lock.Lock()
	defer m.lock.Unlock()

	if len(m.ready) == 0 {
		return nil
	}

	p := m.ready[0]
	m.ready = m.ready[1:]

	return p
}

func (m *Manager) pushFront(p *Proposal) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.ready = append([]*Proposal{p}, m.ready...)
}

// TrySubmitOldest submits the oldest ready proposal when no proposal transaction is in flight
func (m *Manager) TrySubmitOldest(ctx context.Context) error {
	if err := m.flushExpired(); err != nil {
		return err
	}

	if m.params.Submitter.IsBusy() {
		return nil
	}

	p := m.popReady()
	if p == nil {
		return nil
	}

	tx, err := m.params.TxBuilder.BuildProposeTx(p)
	if err != nil {
		m.pushFront(p)

		return fmt.Errorf("failed to build proposal tx: %w", err)
	}

	sub, err := m.params.Submitter.Submit(ctx, tx)
	if err != nil {
		m.pushFront(p)

		if errors.Is(err, txmonitor.ErrTransactionInProgress) {
			return nil
		}

		return fmt.Errorf("failed to submit proposal: %w", err)
	}

	p.State = Submitted

	m.logger.Info("proposal submitted", "proposal", p.ID, "user_ops", len(p.UserOps),
		"l1_calls", len(p.L1Calls))
	incProposalMetric(Submitted)
	setReadyProposalsMetric(m.ReadyCount())

	m.wg.Add(1)

	go func() {
		defer m.wg.Done()

		m.consume(p, sub)
	}()

	return nil
}

// consume writes the user op statuses from the notifications of the proposal transaction
// Status writes are not bound to ctx, a hash delivered during shutdown must still be recorded.
func (m *Manager) consume(p *Proposal, sub Submission) {
	ctx := context.Background()
	ids := p.UserOpIDs()

	if hash, ok := <-sub.TxHash(); ok {
		for _, id := range ids {
			if err := m.params.Handler.MarkProcessing(ctx, id, hash); err != nil {
				m.logger.Error("failed to mark user op processing", "id", id, "err", err)
			}
		}
	}

	// closed before the outcome is delivered
	for hash := range sub.Resubmitted() {
		for _, id := range ids {
			if err := m.params.Handler.RecordResubmission(ctx, id, hash); err != nil {
				m.logger.Error("failed to record resubmission", "id", id, "hash", hash, "err", err)
			}
		}
	}

	outcome, ok := <-sub.Outcome()
	if !ok {
		outcome = &txmonitor.Outcome{Status: txmonitor.Failed, Err: errNoOutcome}
	}

	if outcome.Status == txmonitor.Confirmed {
		p.State = Executed

		for _, id := range ids {
			if err := m.params.Handler.MarkExecuted(ctx, id); err != nil {
				m.logger.Error("failed to mark user op executed", "id", id, "err", err)
			}
		}

		m.logger.Info("proposal executed", "proposal", p.ID, "hash", outcome.TxHash)
		incProposalMetric(Executed)

		return
	}

	reason, known := rejectionReason(outcome)
	if !known {
		// the transaction may still be included, the statuses are resolved by the restart recovery
		m.logger.Warn("proposal outcome unknown", "proposal", p.ID, "hash", outcome.TxHash, "err", outcome.Err)

		return
	}

	p.State = Failed

	for _, id := range ids {
		if err := m.params.Handler.MarkRejected(ctx, id, reason); err != nil {
			m.logger.Error("failed to mark user op rejected", "id", id, "err", err)
		}
	}

	err := outcome.Err
	if outcome.Status == txmonitor.Reverted {
		err = ErrSubmissionReverted
	}

	numbers := make([]uint64, len(p.Blocks))
	for i, b := range p.Blocks {
		numbers[i] = b.Number
	}

	m.logger.Error("proposal failed, blocks discarded", "proposal", p.ID, "status", outcome.Status,
		"blocks", numbers, "err", err)
	incProposalMetric(Failed)
}

// rejectionReason maps a failed outcome to the user op rejection reason.
// It reports false when the transaction was sent and its outcome is unknown.
func rejectionReason(outcome *txmonitor.Outcome) (string, bool) {
	switch outcome.Status {
	case txmonitor.Reverted:
		return reasonReverted, true
	case txmonitor.Dropped:
		return reasonDropped, true
	}

	switch {
	case errors.Is(outcome.Err, txmonitor.ErrMonitorExhausted):
		return reasonExhausted, true
	case outcome.TxHash != ethgo.ZeroHash &&
		(errors.Is(outcome.Err, context.Canceled) || errors.Is(outcome.Err, context.DeadlineExceeded)):
		return "", false
	case outcome.Err == nil:
		return "submission failed", true
	default:
		return "submission failed: " + outcome.Err.Error(), true
	}
}

// Wait blocks until the notifications of submitted proposals are consumed
func (m *Manager) Wait() {
	m.wg.Wait()
}
