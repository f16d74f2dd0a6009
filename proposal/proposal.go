package proposal

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/umbracle/ethgo"

	"github.com/0xPolygon/polygon-preconf/bridge"
	"github.com/0xPolygon/polygon-preconf/contractsapi"
	"github.com/0xPolygon/polygon-preconf/l2"
)

// State is the lifecycle state of a proposal
type State int

const (
	Accumulating State = iota
	Ready
	Submitted
	Executed
	Failed
)

func (s State) String() string {
	switch s {
	case Accumulating:
		return "accumulating"
	case Ready:
		return "ready"
	case Submitted:
		return "submitted"
	case Executed:
		return "executed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// L1Call is an L2 to L1 message relayed on L1 with its proof
type L1Call struct {
	Message []byte
	Proof   []byte
}

// Proposal is the unit of L2 blocks, user ops and L1 calls settled by one L1 transaction
type Proposal struct {
	ID          uuid.UUID
	Blocks      []*l2.SealedBlock
	UserOps     []*bridge.UserOp
	SignalSlots []ethgo.Hash
	L1Calls     []*L1Call
	Checkpoint  contractsapi.Checkpoint
	State       State
	CreatedAt   time.Time

	slots map[ethgo.Hash]struct{}
}

func newProposal(now time.Time) *Proposal {
	return &Proposal{
		ID:        uuid.New(),
		State:     Accumulating,
		CreatedAt: now,
		slots:     map[ethgo.Hash]struct{}{},
	}
}

// SlotsWith returns the signal slots of the proposal with slot appended when missing
func (p *Proposal) SlotsWith(slot *ethgo.Hash) []ethgo.Hash {
	slots := append([]ethgo.Hash{}, p.SignalSlots...)

	if slot != nil {
		if _, ok := p.slots[*slot]; !ok {
			slots = append(slots, *slot)
		}
	}

	return slots
}

// addUserOp records the user op and its signal slot
func (p *Proposal) addUserOp(op *bridge.UserOp, slot ethgo.Hash) {
	p.UserOps = append(p.UserOps, op)

	if _, ok := p.slots[slot]; !ok {
		p.slots[slot] = struct{}{}
		p.SignalSlots = append(p.SignalSlots, slot)
	}
}

// addBlock appends the sealed block and moves the checkpoint to it
func (p *Proposal) addBlock(block *l2.SealedBlock) {
	p.Blocks = append(p.Blocks, block)
	p.Checkpoint = contractsapi.Checkpoint{
		BlockNumber: block.Number,
		BlockHash:   block.Hash,
		StateRoot:   block.StateRoot,
	}
}

// IsEmpty reports whether the proposal has no blocks
func (p *Proposal) IsEmpty() bool {
	return len(p.Blocks) == 0
}

// UserOpIDs returns the ids of the user ops in proposal order
func (p *Proposal) UserOpIDs() []uint64 {
	ids := make([]uint64, len(p.UserOps))
	for i, op := range p.UserOps {
		ids[i] = op.ID
	}

	return ids
}

func (p *Proposal) String() string {
	return fmt.Sprintf("proposal(id=%s, blocks=%d, user_ops=%d, l1_calls=%d, state=%s)",
		p.ID, len(p.Blocks), len(p.UserOps), len(p.L1Calls), p.State)
}
