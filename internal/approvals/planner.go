package approvals

import (
	"fmt"
	"math"

	"github.com/Fantasim/rektrescue/internal/config"
	"github.com/Fantasim/rektrescue/internal/models"
)

const planCapHint = 1024

// CountRanges returns how many sub-ranges PlanRanges would produce without
// building them.
func CountRanges(from, to, batchSize uint64) (uint64, error) {
	if batchSize == 0 {
		return 0, fmt.Errorf("%w: batch size must be >= 1", config.ErrInvalidBlockRange)
	}
	if from > to {
		from, to = to, from
	}
	n := (to - from) / batchSize
	if n == math.MaxUint64 {
		return n, nil
	}
	return n + 1, nil
}

// PlanRanges splits [from, to] into ascending, contiguous sub-ranges of at
// most batchSize blocks. Inverted bounds are swapped first.
func PlanRanges(from, to, batchSize uint64) ([]models.BlockRange, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("%w: batch size must be >= 1", config.ErrInvalidBlockRange)
	}
	if from > to {
		from, to = to, from
	}

	n := (to-from)/batchSize + 1
	if n == 0 || n > planCapHint {
		n = planCapHint
	}
	ranges := make([]models.BlockRange, 0, n)
	start := from
	for {
		end := to
		if to-start >= batchSize {
			end = start + batchSize - 1
		}
		ranges = append(ranges, models.BlockRange{From: start, To: end})
		if end == to {
			return ranges, nil
		}
		start = end + 1
	}
}

// ResolveWindow turns an optional user range into a concrete one against the
// current head: to defaults to latest, from defaults to the last window
// blocks, both are clamped to [0, latest] and swapped when inverted.
func ResolveWindow(latest uint64, from, to *uint64, window uint64) models.BlockRange {
	end := latest
	if to != nil && *to < latest {
		end = *to
	}

	var start uint64
	switch {
	case from != nil:
		start = *from
	case window == 0:
		start = latest
	case window-1 <= latest:
		start = latest - (window - 1)
	}
	if start > latest {
		start = latest
	}

	if start > end {
		start, end = end, start
	}
	return models.BlockRange{From: start, To: end}
}
