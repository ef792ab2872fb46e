package boost

import (
	"time"

	"boostd/internal/model"
)

const (
	// EpochDuration is the fixed evaluation window length.
	EpochDuration = 28 * 24 * time.Hour
	// MaxBoostEpochs caps the consecutive-epoch streak that contributes
	// to the boost.
	MaxBoostEpochs = 7
)

// WindowsBackward generates the epochLimit windows ending at reference,
// newest first, numbered down from lastEpoch. Windows are contiguous and
// non-overlapping.
func WindowsBackward(reference time.Time, lastEpoch, epochLimit int) []model.EpochWindow {
	reference = reference.UTC().Truncate(24 * time.Hour)

	windows := make([]model.EpochWindow, 0, epochLimit)
	to := reference
	for i := 0; i < epochLimit; i++ {
		from := to.Add(-EpochDuration)
		windows = append(windows, model.EpochWindow{
			Number: lastEpoch - i,
			From:   from,
			To:     to,
		})
		to = from
	}
	return windows
}

// WindowsForward generates count windows starting at start, oldest first,
// numbered up from firstNumber.
func WindowsForward(start time.Time, firstNumber, count int) []model.EpochWindow {
	windows := make([]model.EpochWindow, 0, count)
	from := start
	for i := 0; i < count; i++ {
		to := from.Add(EpochDuration)
		windows = append(windows, model.EpochWindow{
			Number: firstNumber + i,
			From:   from,
			To:     to,
		})
		from = to
	}
	return windows
}

// ElapsedWindows reports how many full epoch windows fit between from and
// now.
func ElapsedWindows(from, now time.Time) int {
	if !now.After(from) {
		return 0
	}
	return int(now.Sub(from) / EpochDuration)
}
