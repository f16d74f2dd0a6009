package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/umbracle/ethgo"

	"github.com/0xPolygon/polygon-preconf/helper/hex"
)

// HexBytes is a byte slice that is encoded as a 0x prefixed hex string in JSON
type HexBytes []byte

func (b HexBytes) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToHex(b)), nil
}

func (b *HexBytes) UnmarshalText(input []byte) error {
	buf, err := hex.DecodeHex(string(input))
	if err != nil {
		return err
	}

	*b = buf

	return nil
}

// UserOp is a client submitted cross-chain action request. It is immutable once created.
type UserOp struct {
	ID        uint64        `json:"id"`
	Submitter ethgo.Address `json:"submitter"`
	Calldata  HexBytes      `json:"calldata"`
}

// Validate checks the user op input received from a client
func (u *UserOp) Validate() error {
	if u.Submitter == ethgo.ZeroAddress {
		return fmt.Errorf("%w: submitter address is empty", ErrValidation)
	}

	if len(u.Calldata) == 0 {
		return fmt.Errorf("%w: calldata is empty", ErrValidation)
	}

	return nil
}

func (u *UserOp) Copy() *UserOp {
	return &UserOp{
		ID:        u.ID,
		Submitter: u.Submitter,
		Calldata:  append(HexBytes{}, u.Calldata...),
	}
}

// StatusKind is the tag of the user op status variant
type StatusKind string

const (
	StatusPending    StatusKind = "Pending"
	StatusProcessing StatusKind = "Processing"
	StatusExecuted   StatusKind = "Executed"
	StatusRejected   StatusKind = "Rejected"
)

// UserOpStatus is the lifecycle state of a user op. Transitions are monotonic:
// Pending -> Processing -> {Executed | Rejected}, or Pending -> Rejected.
// While Processing, the hashes of gas bumped resubmissions are appended to Resubmitted.
type UserOpStatus struct {
	Status      StatusKind   `json:"status"`
	TxHash      *ethgo.Hash  `json:"tx_hash,omitempty"`
	Resubmitted []ethgo.Hash `json:"resubmitted_tx_hashes,omitempty"`
	Reason      string       `json:"reason,omitempty"`
}

func Pending() UserOpStatus {
	return UserOpStatus{Status: StatusPending}
}

func Processing(txHash ethgo.Hash) UserOpStatus {
	return UserOpStatus{Status: StatusProcessing, TxHash: &txHash}
}

func Executed() UserOpStatus {
	return UserOpStatus{Status: StatusExecuted}
}

func Rejected(reason string) UserOpStatus {
	return UserOpStatus{Status: StatusRejected, Reason: reason}
}

// WithResubmission returns the Processing status extended with the hash of a resubmitted transaction
func (s UserOpStatus) WithResubmission(hash ethgo.Hash) UserOpStatus {
	next := s
	next.Resubmitted = append(append([]ethgo.Hash{}, s.Resubmitted...), hash)

	return next
}

// TxHashes returns every settlement transaction hash sent for the user op, first send first
func (s UserOpStatus) TxHashes() []ethgo.Hash {
	if s.TxHash == nil {
		return nil
	}

	return append([]ethgo.Hash{*s.TxHash}, s.Resubmitted...)
}

// IsTerminal returns true for Executed and Rejected
func (s UserOpStatus) IsTerminal() bool {
	return s.Status == StatusExecuted || s.Status == StatusRejected
}

// CanTransitionTo reports whether moving from s to next respects the lifecycle order
func (s UserOpStatus) CanTransitionTo(next UserOpStatus) bool {
	switch s.Status {
	case StatusPending:
		return next.Status == StatusProcessing || next.Status == StatusRejected
	case StatusProcessing:
		return next.IsTerminal() || s.isExtendedBy(next)
	default:
		return false
	}
}

// isExtendedBy reports whether next keeps the hashes of s and appends at least one resubmission
func (s UserOpStatus) isExtendedBy(next UserOpStatus) bool {
	if next.Status != StatusProcessing || s.TxHash == nil || next.TxHash == nil || *s.TxHash != *next.TxHash {
		return false
	}

	if len(next.Resubmitted) <= len(s.Resubmitted) {
		return false
	}

	for i, hash := range s.Resubmitted {
		if next.Resubmitted[i] != hash {
			return false
		}
	}

	return true
}

func (s UserOpStatus) String() string {
	switch s.Status {
	case StatusProcessing:
		if s.TxHash != nil && len(s.Resubmitted) > 0 {
			return fmt.Sprintf("Processing(tx_hash=%s, resubmitted=%d)", s.TxHash, len(s.Resubmitted))
		}

		if s.TxHash != nil {
			return fmt.Sprintf("Processing(tx_hash=%s)", s.TxHash)
		}
	case StatusRejected:
		return fmt.Sprintf("Rejected(reason=%s)", s.Reason)
	}

	return string(s.Status)
}

// UnmarshalJSON validates the status tag and its payload
func (s *UserOpStatus) UnmarshalJSON(data []byte) error {
	type status UserOpStatus

	var raw status
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch raw.Status {
	case StatusPending, StatusExecuted:
	case StatusProcessing:
		if raw.TxHash == nil {
			return fmt.Errorf("processing status without tx_hash")
		}
	case StatusRejected:
	default:
		return fmt.Errorf("unknown user op status %q", raw.Status)
	}

	*s = UserOpStatus(raw)

	return nil
}
