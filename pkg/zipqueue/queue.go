// Package zipqueue implements the cyclic zip-code rotation used to pick the
// next search target of an ingest run.
package zipqueue

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNotInQueue is returned when a zip code is not part of the rotation,
// typically after the configured ranges changed between runs.
var ErrNotInQueue = errors.New("zip code not in queue")

// Range is a named, half-open range of numeric zip codes [Start, End).
type Range struct {
	Name  string
	Start int
	End   int
}

// Len returns the number of zip codes in the range.
func (r Range) Len() int {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// DefaultRanges returns the two metro areas swept by default.
func DefaultRanges() []Range {
	return []Range{
		{Name: "LA", Start: 90001, End: 90510},
		{Name: "Boston", Start: 1907, End: 2305},
	}
}

// ParseRanges parses a list like "LA:90001-90510,Boston:1907-2305".
// The end of each range is exclusive.
func ParseRanges(raw string) ([]Range, error) {
	var ranges []Range
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		name, bounds, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("range %q: missing name separator", part)
		}
		lo, hi, ok := strings.Cut(bounds, "-")
		if !ok {
			return nil, fmt.Errorf("range %q: missing bounds separator", part)
		}

		start, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("range %q: parse start: %w", part, err)
		}
		end, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return nil, fmt.Errorf("range %q: parse end: %w", part, err)
		}
		if end <= start {
			return nil, fmt.Errorf("range %q: end must be greater than start", part)
		}

		ranges = append(ranges, Range{Name: strings.TrimSpace(name), Start: start, End: end})
	}

	if len(ranges) == 0 {
		return nil, errors.New("no zip ranges configured")
	}
	return ranges, nil
}

// Queue is a deterministic, wrap-around sequence of five-digit zip codes.
type Queue struct {
	zips  []string
	index map[string]int
}

// New builds a queue by taking one zip from each range in turn. Ranges that
// run out are skipped, so every zip of every range appears exactly once.
func New(ranges ...Range) *Queue {
	total := 0
	for _, r := range ranges {
		total += r.Len()
	}

	q := &Queue{
		zips:  make([]string, 0, total),
		index: make(map[string]int, total),
	}

	longest := 0
	for _, r := range ranges {
		longest = max(longest, r.Len())
	}

	for step := 0; step < longest; step++ {
		for _, r := range ranges {
			if step >= r.Len() {
				continue
			}
			zip := FormatZip(r.Start + step)
			// overlapping ranges contribute each zip once
			if _, dup := q.index[zip]; dup {
				continue
			}
			q.index[zip] = len(q.zips)
			q.zips = append(q.zips, zip)
		}
	}

	return q
}

// Len returns the number of distinct zip codes in the queue.
func (q *Queue) Len() int {
	return len(q.zips)
}

// Get returns the zip at position i modulo the queue length. Negative
// indices count from the end, so Get(-1) is the last zip. Get on an empty
// queue returns "".
func (q *Queue) Get(i int) string {
	n := len(q.zips)
	if n == 0 {
		return ""
	}
	i %= n
	if i < 0 {
		i += n
	}
	return q.zips[i]
}

// IndexOf returns the position of zip and whether it is in the queue.
func (q *Queue) IndexOf(zip string) (int, bool) {
	i, ok := q.index[zip]
	return i, ok
}

// PickNext returns the zip that follows last, wrapping to the start.
func (q *Queue) PickNext(last string) (string, error) {
	i, ok := q.IndexOf(last)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNotInQueue, last)
	}
	return q.Get(i + 1), nil
}

// Zips returns a copy of the queue order.
func (q *Queue) Zips() []string {
	out := make([]string, len(q.zips))
	copy(out, q.zips)
	return out
}

// FormatZip left-pads a numeric zip code to five digits.
func FormatZip(n int) string {
	return fmt.Sprintf("%05d", n)
}
