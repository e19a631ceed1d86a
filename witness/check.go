package witness

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/juju/errors"
)

const (
	// ErrOverlap means two critical sections ran at the same time.
	ErrOverlap = errors.ConstError("critical sections overlap")

	// ErrMissing means the journal holds a different number of intervals
	// than there were holders.
	ErrMissing = errors.ConstError("journal has the wrong number of intervals")
)

// Overlap is a pair of intervals that were inside the lock together.
type Overlap struct {
	First, Second Interval
}

func (o Overlap) String() string {
	return fmt.Sprintf("pid %d [%d, %d] and pid %d [%d, %d]",
		o.First.PID, o.First.Start, o.First.End,
		o.Second.PID, o.Second.Start, o.Second.End)
}

// FindOverlaps returns every interval that starts before an earlier one
// has ended, paired with the earlier interval reaching furthest. Touching
// intervals (one ends exactly when the next starts) do not overlap.
func FindOverlaps(ivs []Interval) []Overlap {
	sorted := slices.Clone(ivs)
	slices.SortFunc(sorted, func(a, b Interval) int {
		return cmp.Compare(a.Start, b.Start)
	})

	var overlaps []Overlap
	var reach Interval
	for i, iv := range sorted {
		if i > 0 && iv.Start < reach.End {
			overlaps = append(overlaps, Overlap{First: reach, Second: iv})
		}
		if i == 0 || iv.End > reach.End {
			reach = iv
		}
	}
	return overlaps
}

// Verify checks that ivs has want entries (skipped when want < 0) and that
// none of them overlap.
func Verify(ivs []Interval, want int) error {
	if want >= 0 && len(ivs) != want {
		return errors.Annotatef(ErrMissing, "got %d, want %d", len(ivs), want)
	}
	if overlaps := FindOverlaps(ivs); len(overlaps) > 0 {
		return errors.Annotatef(ErrOverlap, "%d pairs, first %v", len(overlaps), overlaps[0])
	}
	return nil
}

// Summary aggregates a journal.
type Summary struct {
	Intervals int
	Processes int
	Recovered int
	Span      time.Duration
	MeanHold  time.Duration
	MaxHold   time.Duration
}

// Summarize computes a Summary of ivs.
func Summarize(ivs []Interval) Summary {
	s := Summary{Intervals: len(ivs)}
	if len(ivs) == 0 {
		return s
	}
	pids := make(map[int]struct{})
	first, last := ivs[0].Start, ivs[0].End
	var total time.Duration
	for _, iv := range ivs {
		pids[iv.PID] = struct{}{}
		if iv.Recovered {
			s.Recovered++
		}
		first = min(first, iv.Start)
		last = max(last, iv.End)
		d := iv.Duration()
		total += d
		s.MaxHold = max(s.MaxHold, d)
	}
	s.Processes = len(pids)
	s.Span = time.Duration(last - first)
	s.MeanHold = total / time.Duration(len(ivs))
	return s
}
