package indexer

import "fmt"

// BlockRange represents an inclusive block range.
type BlockRange struct {
	From uint64
	To   uint64
}

func (r BlockRange) String() string {
	return fmt.Sprintf("[%d,%d]", r.From, r.To)
}

// Blocks is the number of blocks covered by r.
func (r BlockRange) Blocks() uint64 {
	return r.To - r.From + 1
}

// SplitRange cuts [from, to] into consecutive batches of at most batchSize blocks.
// A positive limit keeps only the first limit batches; the caller resumes from the
// last returned block on its next cycle.
func SplitRange(from, to, batchSize uint64, limit int) ([]BlockRange, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("range %d..%d is inverted", from, to)
	}

	count := (to-from)/batchSize + 1
	if limit > 0 && count > uint64(limit) {
		count = uint64(limit)
	}
	ranges := make([]BlockRange, 0, count)
	for start := from; uint64(len(ranges)) < count; start += batchSize {
		end := to
		if to-start >= batchSize {
			end = start + batchSize - 1
		}
		ranges = append(ranges, BlockRange{From: start, To: end})
	}
	return ranges, nil
}
