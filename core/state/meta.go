package state

import "time"

var clockOffsetKey = []byte("meta/clock-offset")

// ClockOffset returns the simulated time shift applied on top of the wall
// clock. Operators advance it to fast-forward interest and unbonding.
func (m *Manager) ClockOffset() (time.Duration, error) {
	var seconds uint64
	if _, err := m.KVGet(clockOffsetKey, &seconds); err != nil {
		return 0, err
	}
	return time.Duration(seconds) * time.Second, nil
}

// AdvanceClock adds d to the stored clock offset. Negative durations are
// ignored so time never moves backwards.
func (m *Manager) AdvanceClock(d time.Duration) (time.Duration, error) {
	current, err := m.ClockOffset()
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return current, nil
	}
	next := current + d
	if err := m.KVPut(clockOffsetKey, uint64(next/time.Second)); err != nil {
		return 0, err
	}
	return next, nil
}
