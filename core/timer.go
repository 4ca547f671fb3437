package core

import "time"

// Timer frequencies
const (
	TimerFreq = 1000000 // 1MHz, matches the RP2040 microsecond timer

	// BaseInterval is the step period at SpeedModifier 1: one second.
	// The step threshold is BaseInterval / SpeedModifier.
	BaseInterval = TimerFreq
)

// TicksSince returns the ticks elapsed from prev to now.
// Unsigned subtraction keeps the result correct across counter rollover.
func TicksSince(prev, now uint32) uint32 {
	return now - prev
}

// TimerFromUS converts microseconds to timer ticks
func TimerFromUS(us uint32) uint32 {
	return uint32(uint64(us) * TimerFreq / 1000000)
}

// TimerToUS converts timer ticks to microseconds
func TimerToUS(ticks uint32) uint32 {
	return uint32(uint64(ticks) * 1000000 / TimerFreq)
}

// TimerFromDuration converts a duration to timer ticks, saturating at the
// largest representable value.
func TimerFromDuration(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	ticks := uint64(d) * TimerFreq / uint64(time.Second)
	if ticks > 0xFFFFFFFF {
		return 0xFFFFFFFF
	}
	return uint32(ticks)
}

// StepThreshold returns the number of ticks that must be exceeded between
// two phase transitions at the given speed modifier.
func StepThreshold(speed uint8) uint32 {
	if speed == 0 {
		speed = MinSpeed
	}
	return BaseInterval / uint32(speed)
}
