package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"stakevault/core/types"
)

// Receipt describes one committed operation.
type Receipt struct {
	ID   uuid.UUID
	Op   string
	Time time.Time
	// Amount carries the operation result where one exists: the repaid debt,
	// the withdrawal requested by WithdrawMax, the payout of a finalize or the
	// batch moved by ForceDelegate.
	Amount *uint256.Int
	Events []*types.Event
}

// EventTypes lists the committed event types in emission order.
func (r *Receipt) EventTypes() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.Events))
	for _, evt := range r.Events {
		if evt != nil {
			out = append(out, evt.Type)
		}
	}
	return out
}
