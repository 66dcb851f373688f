package vault

import (
	"github.com/holiman/uint256"

	"stakevault/core/events"
)

var accrualDenominator = uint256.NewInt(SecondsPerYear * BpsDivisor)

// SimpleInterest returns floor(principal × rateBps × elapsed / (year × bps)).
// An overflowing intermediate yields zero interest so accrual can never make
// a position unusable.
func SimpleInterest(principal *uint256.Int, rateBps, elapsed uint64) *uint256.Int {
	if principal == nil || principal.IsZero() || rateBps == 0 || elapsed == 0 {
		return new(uint256.Int)
	}
	scaled, overflow := new(uint256.Int).MulOverflow(principal, uint256.NewInt(rateBps))
	if overflow {
		return new(uint256.Int)
	}
	scaled, overflow = new(uint256.Int).MulOverflow(scaled, uint256.NewInt(elapsed))
	if overflow {
		return new(uint256.Int)
	}
	return scaled.Div(scaled, accrualDenominator)
}

func (e *Engine) elapsedSince(last uint64) uint64 {
	now := e.nowUnix()
	if now <= last {
		return 0
	}
	return now - last
}

// debtWithInterest is the principal plus interest accrued up to now. It does
// not touch state.
func (e *Engine) debtWithInterest(pos *Position) (*uint256.Int, error) {
	if pos.DebtPrincipal.IsZero() {
		return new(uint256.Int), nil
	}
	interest := SimpleInterest(pos.DebtPrincipal, e.params.InterestRateBps, e.elapsedSince(pos.LastAccrual))
	total, overflow := new(uint256.Int).AddOverflow(pos.DebtPrincipal, interest)
	if overflow {
		return nil, ErrOverflow
	}
	return total, nil
}

// accrue folds interest into the position principal and the global debt and
// always advances LastAccrual to now. The caller persists both records.
func (e *Engine) accrue(pos *Position, globals *Globals) error {
	now := e.nowUnix()
	if pos.DebtPrincipal.IsZero() {
		pos.LastAccrual = now
		return nil
	}
	if now <= pos.LastAccrual {
		return nil
	}
	interest := SimpleInterest(pos.DebtPrincipal, e.params.InterestRateBps, now-pos.LastAccrual)
	if !interest.IsZero() {
		principal, overflow := new(uint256.Int).AddOverflow(pos.DebtPrincipal, interest)
		if overflow {
			return ErrOverflow
		}
		total, overflow := new(uint256.Int).AddOverflow(globals.TotalDebt, interest)
		if overflow {
			return ErrOverflow
		}
		pos.DebtPrincipal = principal
		globals.TotalDebt = total
		e.emit(events.VaultInterestAccrued{
			User:     pos.Owner,
			Interest: interest,
			NewDebt:  new(uint256.Int).Set(principal),
		})
	}
	pos.LastAccrual = now
	return nil
}
